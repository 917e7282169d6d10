package site

import (
	"bytes"
	"html/template"
	"io/fs"
	"net/http"

	"github.com/keithlinneman/clubdesk-web/internal/log"
	"github.com/keithlinneman/clubdesk-web/internal/seo"
	"github.com/keithlinneman/clubdesk-web/internal/xerrors"
)

const (
	layoutFile   = "layout.html"
	notFoundPage = "notfound"
)

// pageTemplates maps seo page names to their template file
var pageTemplates = map[string]string{
	seo.Landing.Name: "landing.html",
	seo.Privacy.Name: "privacy.html",
	notFoundPage:     "notfound.html",
}

// landing page feature blocks, in display order
var features = []string{"members", "training", "finance", "communication"}

func pageFiles() []string {
	return []string{"landing.html", "privacy.html", "notfound.html"}
}

func parseTemplates(fsys fs.FS) (map[string]*template.Template, error) {
	out := make(map[string]*template.Template, len(pageTemplates))
	for name, file := range pageTemplates {
		t, err := template.New(name).ParseFS(fsys, layoutFile, file)
		if err != nil {
			return nil, xerrors.Wrapf(err, "parse template %s", file)
		}
		out[name] = t
	}
	return out, nil
}

// languageLink is one entry of the language switcher
type languageLink struct {
	Code    string
	Name    string
	Path    string
	Current bool
}

// pageData is the template context for every page
type pageData struct {
	Lang            string
	Meta            seo.PageMeta
	Languages       []languageLink
	Features        []string
	Analytics       string
	ConsentPending  bool
	ContactEndpoint string
	Year            int

	t            Translator
	assetVersion string
}

// T looks key up for the page locale
func (p *pageData) T(key string) string { return p.t.T(p.Lang, key) }

// Asset returns the versioned url of a static file
func (p *pageData) Asset(name string) string {
	return "/static/" + name + "?v=" + p.assetVersion
}

func (h *Handler) newPageData(r *http.Request, locale string, page seo.Page, titleKey, descKey string) *pageData {
	pd := &pageData{
		Lang:            locale,
		Features:        features,
		ContactEndpoint: h.opts.ContactEndpoint,
		Year:            h.opts.Now().Year(),
		t:               h.opts.Messages,
		assetVersion:    h.assetVersion,
	}
	pd.Meta = h.opts.SEO.Meta(page, locale, pd.T(titleKey), pd.T(descKey))

	for _, l := range h.opts.Negotiator.Locales() {
		pd.Languages = append(pd.Languages, languageLink{
			Code:    l,
			Name:    h.opts.Messages.T(l, "locale.name"),
			Path:    "/" + l + "/" + page.Path,
			Current: l == locale,
		})
	}

	if h.opts.AnalyticsScript != "" {
		switch h.consent(r) {
		case ConsentAccepted:
			pd.Analytics = h.opts.AnalyticsScript
		case "":
			pd.ConsentPending = true
		}
	}
	return pd
}

// consent returns the consent cookie value, or "" when none was given
func (h *Handler) consent(r *http.Request) string {
	c, err := r.Cookie(h.opts.ConsentCookie)
	if err != nil {
		return ""
	}
	return c.Value
}

// render executes the page into a buffer first so a template error becomes a clean 500
func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, name string, data *pageData) {
	t, ok := h.templates[name]
	if !ok {
		h.renderError(w, r, xerrors.Newf("no template for page %q", name))
		return
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		h.renderError(w, r, xerrors.Wrapf(err, "render %s", name))
		return
	}

	hdr := w.Header()
	hdr.Set("Content-Type", "text/html; charset=utf-8")
	hdr.Set("Content-Language", data.Lang)
	if h.opts.AnalyticsScript != "" {
		hdr.Add("Vary", "Cookie")
	}
	if hdr.Get("Cache-Control") == "" {
		hdr.Set("Cache-Control", h.opts.HTMLCacheControl)
	}
	w.WriteHeader(status)
	if r.Method != http.MethodHead {
		_, _ = w.Write(buf.Bytes())
	}
}

func (h *Handler) renderError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	log.FromContext(ctx).Error(ctx, err, "page render failed", "path", r.URL.Path)
	w.Header().Set("Cache-Control", "no-store")
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}
