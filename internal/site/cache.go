package site

import (
	"path"
	"strings"
)

// fingerprintable assets are cached for a year, the embedded FS changes only with a new build
var immutableExt = map[string]bool{
	".css": true, ".js": true, ".mjs": true, ".map": true,
	".svg": true, ".png": true, ".jpg": true, ".jpeg": true, ".webp": true, ".gif": true, ".ico": true,
	".woff": true, ".woff2": true, ".ttf": true,
}

// cacheControlForFile treats extensionless and .html files as pages
func cacheControlForFile(name string, o *Options) string {
	switch ext := strings.ToLower(path.Ext(name)); {
	case ext == "" || ext == ".html":
		return o.HTMLCacheControl
	case immutableExt[ext]:
		return o.AssetCacheControl
	default:
		return o.OtherCacheControl
	}
}
