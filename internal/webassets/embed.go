// Package webassets embeds the page templates, static files and the seed
// message catalogs so the binary can serve the site with no external state.
package webassets

import (
	"embed"
	"fmt"
	"io/fs"
)

//go:embed locales templates static
var embedded embed.FS

func sub(dir string) fs.FS {
	s, err := fs.Sub(embedded, dir)
	if err != nil {
		panic(fmt.Errorf("webassets: %s subfs: %w", dir, err))
	}
	return s
}

// LocalesFS holds one {locale}.json catalog per supported locale
func LocalesFS() fs.FS { return sub("locales") }

// TemplatesFS holds the html/template sources for every page
func TemplatesFS() fs.FS { return sub("templates") }

// StaticFS is served under /static/
func StaticFS() fs.FS { return sub("static") }
