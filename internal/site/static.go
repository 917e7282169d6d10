package site

import (
	"io/fs"
	"net/http"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/clubdesk-web/internal/cryptoutil"
)

// staticName maps the wildcard part of a /static/ url to a file in the static FS
func staticName(p string) (string, bool) {
	if p == "" || strings.HasSuffix(p, "/") {
		return "", false
	}
	// basic rejection of ambiguous/unsafe paths
	if strings.Contains(p, "\x00") || strings.Contains(p, "\\") || strings.Contains(p, "..") {
		return "", false
	}
	if hasDotSegments(p) {
		return "", false
	}
	name := strings.TrimPrefix(p, "/")
	if !fs.ValidPath(name) {
		return "", false
	}
	return name, true
}

func (h *Handler) serveStatic(w http.ResponseWriter, r *http.Request) {
	name, ok := staticName(chi.URLParam(r, "*"))
	if !ok || !existsFile(h.opts.Static, name) {
		w.Header().Set("Cache-Control", "no-store")
		http.NotFound(w, r)
		return
	}
	if cc := cacheControlForFile(name, &h.opts); cc != "" {
		w.Header().Set("Cache-Control", cc)
	}
	http.ServeFileFS(w, r, h.opts.Static, name)
}

// assetVersion is a short digest over every static file, appended to asset urls
// so the immutable cache policy never serves a stale file after a deploy.
func assetVersion(fsys fs.FS) (string, error) {
	var names []string
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			names = append(names, p)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	sort.Strings(names)

	var buf []byte
	for _, n := range names {
		data, err := fs.ReadFile(fsys, n)
		if err != nil {
			return "", err
		}
		buf = append(buf, n...)
		buf = append(buf, 0)
		buf = append(buf, cryptoutil.SHA256Hex(data)...)
		buf = append(buf, '\n')
	}
	return cryptoutil.Short(cryptoutil.SHA256Hex(buf)), nil
}

func existsFile(fsys fs.FS, name string) bool {
	if name == "" || !fs.ValidPath(name) {
		return false
	}
	info, err := fs.Stat(fsys, name)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// hasDotSegments reports whether any segment of p is "." or ".."
func hasDotSegments(p string) bool {
	for _, seg := range strings.Split(p, "/") {
		if seg == "." || seg == ".." {
			return true
		}
	}
	return false
}
