package site

import (
	"html/template"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/clubdesk-web/internal/seo"
	"github.com/keithlinneman/clubdesk-web/internal/xerrors"
)

type Handler struct {
	opts         Options
	templates    map[string]*template.Template
	assetVersion string
}

func New(opts Options) (*Handler, error) {
	opts.setDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}
	tmpls, err := parseTemplates(opts.Templates)
	if err != nil {
		return nil, err
	}
	ver, err := assetVersion(opts.Static)
	if err != nil {
		return nil, xerrors.Wrap(err, "hash static assets")
	}
	return &Handler{opts: opts, templates: tmpls, assetVersion: ver}, nil
}

// AssetVersion is the digest appended to static asset urls
func (h *Handler) AssetVersion() string { return h.assetVersion }

// RegisterRoutes should be passed LAST so its NotFound becomes the final fallback
func (h *Handler) RegisterRoutes(r chi.Router) {
	for _, m := range []string{http.MethodGet, http.MethodHead} {
		r.MethodFunc(m, "/", h.redirectToLocale)
		r.MethodFunc(m, "/static/*", h.serveStatic)
		r.MethodFunc(m, "/{locale}", h.addSlash)
		r.MethodFunc(m, "/{locale}/", h.servePage(seo.Landing))
		r.MethodFunc(m, "/{locale}/"+seo.Privacy.Path, h.servePage(seo.Privacy))
	}
	r.NotFound(h.serveNotFound)
	r.MethodNotAllowed(h.serveMethodNotAllowed)
}

// redirectToLocale sends / to the best locale for Accept-Language
func (h *Handler) redirectToLocale(w http.ResponseWriter, r *http.Request) {
	loc := h.opts.Negotiator.Negotiate(r.Header.Get("Accept-Language"))
	w.Header().Add("Vary", "Accept-Language")
	w.Header().Set("Cache-Control", "no-cache")
	http.Redirect(w, r, "/"+loc+"/", http.StatusFound)
}

// addSlash redirects /{locale} to its canonical /{locale}/
func (h *Handler) addSlash(w http.ResponseWriter, r *http.Request) {
	loc := chi.URLParam(r, "locale")
	if !h.supported(loc) {
		h.serveNotFound(w, r)
		return
	}
	http.Redirect(w, r, "/"+loc+"/", http.StatusPermanentRedirect)
}

func (h *Handler) servePage(page seo.Page) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		loc := chi.URLParam(r, "locale")
		if !h.supported(loc) {
			h.serveNotFound(w, r)
			return
		}
		title, desc := "meta.title", "meta.description"
		if page.Name == seo.Privacy.Name {
			title, desc = "meta.privacyTitle", "meta.privacyDescription"
		}
		h.render(w, r, http.StatusOK, page.Name, h.newPageData(r, loc, page, title, desc))
	}
}

func (h *Handler) serveNotFound(w http.ResponseWriter, r *http.Request) {
	loc := h.localeForPath(r)
	// avoid caching 404 responses
	w.Header().Set("Cache-Control", "no-store")
	pd := h.newPageData(r, loc, seo.Landing, "notFound.title", "notFound.body")
	// the 404 page must not claim a canonical url or alternates
	pd.Meta.Canonical = ""
	pd.Meta.Alternates = nil
	h.render(w, r, http.StatusNotFound, notFoundPage, pd)
}

func (h *Handler) serveMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	allow := "GET, HEAD"
	if r.URL.Path == h.opts.ContactEndpoint {
		allow = "POST"
	}
	w.Header().Set("Allow", allow)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusMethodNotAllowed)
}

// localeForPath uses the first path segment when it is a locale, Accept-Language otherwise
func (h *Handler) localeForPath(r *http.Request) string {
	seg, _, _ := strings.Cut(strings.TrimPrefix(r.URL.Path, "/"), "/")
	if h.supported(seg) {
		return seg
	}
	return h.opts.Negotiator.Negotiate(r.Header.Get("Accept-Language"))
}

// supported only accepts the canonical lower-case form so every page has one url
func (h *Handler) supported(loc string) bool {
	return loc != "" && loc == strings.ToLower(loc) && h.opts.Negotiator.Supported(loc)
}
