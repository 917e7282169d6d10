// Package site serves the localized marketing pages.
//
// Pages live at /{locale}/ and /{locale}/privacy and are rendered from
// html/template sources with messages from the active i18n catalog. A bare /
// redirects to the locale negotiated from Accept-Language. Static files are
// served from /static/ with long-lived cache headers, and their urls carry a
// content digest so a deploy is never masked by a cached copy.
//
// When an analytics script is configured the pages show a consent banner
// until the visitor decides, and only emit the analytics tag once the consent
// cookie says "accepted".
package site
