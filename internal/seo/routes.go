package seo

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

const cacheControl = "public, max-age=3600"

// Routes serves robots.txt and sitemap.xml. Both bodies are built once.
type Routes struct {
	robots  []byte
	sitemap []byte
}

func NewRoutes(s *Site) (*Routes, error) {
	sm, err := s.Sitemap()
	if err != nil {
		return nil, err
	}
	return &Routes{robots: s.Robots(), sitemap: sm}, nil
}

func (rt *Routes) RegisterRoutes(r chi.Router) {
	for _, m := range []string{http.MethodGet, http.MethodHead} {
		r.MethodFunc(m, "/robots.txt", rt.serveRobots)
		r.MethodFunc(m, "/sitemap.xml", rt.serveSitemap)
	}
}

func (rt *Routes) serveRobots(w http.ResponseWriter, r *http.Request) {
	write(w, r, "text/plain; charset=utf-8", rt.robots)
}

func (rt *Routes) serveSitemap(w http.ResponseWriter, r *http.Request) {
	write(w, r, "application/xml; charset=utf-8", rt.sitemap)
}

func write(w http.ResponseWriter, r *http.Request, contentType string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", cacheControl)
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		_, _ = w.Write(body)
	}
}
