// Package seo builds canonical URLs, hreflang alternates, robots.txt and
// sitemap.xml for the localized pages of the site.
package seo

import (
	"net/url"
	"strings"

	"golang.org/x/text/language"

	"github.com/keithlinneman/clubdesk-web/internal/xerrors"
)

// XDefault is the hreflang value for the language-neutral entry point
const XDefault = "x-default"

// Page is one localized page, served at /{locale}/{Path}
type Page struct {
	Name       string
	Path       string
	ChangeFreq string
	Priority   float64
}

var (
	Landing = Page{Name: "landing", Path: "", ChangeFreq: "weekly", Priority: 1.0}
	Privacy = Page{Name: "privacy", Path: "privacy", ChangeFreq: "yearly", Priority: 0.3}
)

// Pages is every indexable page
var Pages = []Page{Landing, Privacy}

// Alternate is one <link rel="alternate" hreflang> entry
type Alternate struct {
	Hreflang string
	URL      string
}

// PageMeta is what the layout template needs for the <head>
type PageMeta struct {
	Title       string
	Description string
	Canonical   string
	Alternates  []Alternate
	OGType      string
	// OGLocale and OGLocaleAlternates use the territory form, e.g. de_DE
	OGLocale           string
	OGLocaleAlternates []string
}

type Site struct {
	base    *url.URL
	locales []string
	pages   []Page
}

// New builds a Site for baseURL (scheme and host, optional path prefix).
// The first locale is the default and backs x-default.
func New(baseURL string, locales []string, pages ...Page) (*Site, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, xerrors.Wrapf(err, "parse base url %q", baseURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, xerrors.Newf("base url %q must be http or https", baseURL)
	}
	if u.Host == "" {
		return nil, xerrors.Newf("base url %q has no host", baseURL)
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return nil, xerrors.Newf("base url %q must not carry a query or fragment", baseURL)
	}
	if len(locales) == 0 {
		return nil, xerrors.New("at least one locale is required")
	}
	if len(pages) == 0 {
		pages = Pages
	}
	u.Path = strings.TrimRight(u.Path, "/")
	return &Site{
		base:    u,
		locales: append([]string(nil), locales...),
		pages:   append([]Page(nil), pages...),
	}, nil
}

func (s *Site) Pages() []Page { return append([]Page(nil), s.pages...) }

// BaseURL has no trailing slash
func (s *Site) BaseURL() string { return s.base.String() }

// Page looks a page up by Path
func (s *Site) Page(path string) (Page, bool) {
	for _, p := range s.pages {
		if p.Path == path {
			return p, true
		}
	}
	return Page{}, false
}

// URL is the absolute URL of p in locale
func (s *Site) URL(p Page, locale string) string {
	return s.abs("/" + locale + "/" + p.Path)
}

// RootURL is where the locale redirect lives, used for x-default
func (s *Site) RootURL() string { return s.abs("/") }

func (s *Site) abs(path string) string {
	u := *s.base
	u.Path = s.base.Path + path
	return u.String()
}

// Alternates lists p in every locale followed by the x-default entry
func (s *Site) Alternates(p Page) []Alternate {
	out := make([]Alternate, 0, len(s.locales)+1)
	for _, l := range s.locales {
		out = append(out, Alternate{Hreflang: l, URL: s.URL(p, l)})
	}
	xdef := s.RootURL()
	if p.Path != "" {
		xdef = s.URL(p, s.locales[0])
	}
	return append(out, Alternate{Hreflang: XDefault, URL: xdef})
}

// Meta assembles the head metadata for p in locale. title and description come from the message catalog.
func (s *Site) Meta(p Page, locale, title, description string) PageMeta {
	m := PageMeta{
		Title:       title,
		Description: description,
		Canonical:   s.URL(p, locale),
		Alternates:  s.Alternates(p),
		OGType:      "website",
		OGLocale:    OGLocale(locale),
	}
	for _, l := range s.locales {
		if l != locale {
			m.OGLocaleAlternates = append(m.OGLocaleAlternates, OGLocale(l))
		}
	}
	return m
}

// OGLocale maps a language to the language_TERRITORY form Open Graph expects,
// filling in the most likely territory when none is given.
func OGLocale(locale string) string {
	tag, err := language.Parse(locale)
	if err != nil {
		return locale
	}
	base, _ := tag.Base()
	region, _ := tag.Region()
	if region.IsCountry() {
		return base.String() + "_" + region.String()
	}
	return base.String()
}
