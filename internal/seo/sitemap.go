package seo

import (
	"bytes"
	"encoding/xml"
	"strconv"
	"strings"

	"github.com/keithlinneman/clubdesk-web/internal/xerrors"
)

const (
	sitemapNS = "http://www.sitemaps.org/schemas/sitemap/0.9"
	xhtmlNS   = "http://www.w3.org/1999/xhtml"
)

type urlset struct {
	XMLName xml.Name     `xml:"urlset"`
	XMLNS   string       `xml:"xmlns,attr"`
	XHTML   string       `xml:"xmlns:xhtml,attr"`
	URLs    []sitemapURL `xml:"url"`
}

type sitemapURL struct {
	Loc        string      `xml:"loc"`
	ChangeFreq string      `xml:"changefreq,omitempty"`
	Priority   string      `xml:"priority,omitempty"`
	Links      []xhtmlLink `xml:"xhtml:link"`
}

type xhtmlLink struct {
	Rel      string `xml:"rel,attr"`
	Hreflang string `xml:"hreflang,attr"`
	Href     string `xml:"href,attr"`
}

// Sitemap lists every page in every locale. Each entry repeats the full
// alternate set, itself included, as search engines expect.
func (s *Site) Sitemap() ([]byte, error) {
	set := urlset{XMLNS: sitemapNS, XHTML: xhtmlNS}
	for _, p := range s.pages {
		alts := s.Alternates(p)
		links := make([]xhtmlLink, 0, len(alts))
		for _, a := range alts {
			links = append(links, xhtmlLink{Rel: "alternate", Hreflang: a.Hreflang, Href: a.URL})
		}
		prio := ""
		if p.Priority > 0 {
			prio = strconv.FormatFloat(p.Priority, 'f', 1, 64)
		}
		for _, l := range s.locales {
			set.URLs = append(set.URLs, sitemapURL{
				Loc:        s.URL(p, l),
				ChangeFreq: p.ChangeFreq,
				Priority:   prio,
				Links:      links,
			})
		}
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(set); err != nil {
		return nil, xerrors.Wrap(err, "encode sitemap")
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// Robots allows everything except the API and points at the sitemap
func (s *Site) Robots() []byte {
	var b strings.Builder
	b.WriteString("User-agent: *\n")
	b.WriteString("Allow: /\n")
	b.WriteString("Disallow: /api/\n")
	b.WriteString("\n")
	b.WriteString("Sitemap: " + s.abs("/sitemap.xml") + "\n")
	return []byte(b.String())
}
