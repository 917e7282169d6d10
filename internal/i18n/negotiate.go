package i18n

import (
	"golang.org/x/text/language"
)

// Negotiator maps Accept-Language onto the supported locales
type Negotiator struct {
	locales []string
	matcher language.Matcher
}

// NewNegotiator builds a matcher over locales. The first locale is the default.
// Entries that are not valid BCP 47 tags are dropped, and an empty list means Supported.
func NewNegotiator(locales ...string) *Negotiator {
	if len(locales) == 0 {
		locales = Supported
	}
	n := &Negotiator{}
	tags := make([]language.Tag, 0, len(locales))
	for _, l := range locales {
		l = normalizeLocale(l)
		t, err := language.Parse(l)
		if err != nil {
			continue
		}
		n.locales = append(n.locales, l)
		tags = append(tags, t)
	}
	if len(tags) == 0 {
		n.locales = []string{DefaultLocale}
		tags = []language.Tag{language.English}
	}
	n.matcher = language.NewMatcher(tags)
	return n
}

// Default is the locale used when nothing in the header matches
func (n *Negotiator) Default() string { return n.locales[0] }

func (n *Negotiator) Locales() []string {
	out := make([]string, len(n.locales))
	copy(out, n.locales)
	return out
}

// Supported reports whether locale is served as-is, e.g. in a /{locale}/ path.
func (n *Negotiator) Supported(locale string) bool {
	locale = normalizeLocale(locale)
	for _, l := range n.locales {
		if l == locale {
			return true
		}
	}
	return false
}

// Negotiate returns the best supported locale for an Accept-Language header value.
// Malformed or empty headers give the default.
func (n *Negotiator) Negotiate(acceptLanguage string) string {
	if acceptLanguage == "" {
		return n.Default()
	}
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return n.Default()
	}
	_, idx, conf := n.matcher.Match(tags...)
	if conf == language.No || idx < 0 || idx >= len(n.locales) {
		return n.Default()
	}
	return n.locales[idx]
}
