package site

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/keithlinneman/clubdesk-web/internal/log"
	"github.com/keithlinneman/clubdesk-web/internal/seo"
)

var ErrInvalidOptions = errors.New("site: invalid options")

// ConsentAccepted is the cookie value that enables analytics
const ConsentAccepted = "accepted"

// Translator is satisfied by *i18n.Manager
type Translator interface {
	T(locale, key string) string
}

// Negotiator is satisfied by *i18n.Negotiator
type Negotiator interface {
	Negotiate(acceptLanguage string) string
	Supported(locale string) bool
	Locales() []string
	Default() string
}

type Options struct {
	Logger     log.Logger
	Messages   Translator
	Negotiator Negotiator
	SEO        *seo.Site

	// Templates holds layout.html plus one file per page, Static is served under /static/
	Templates fs.FS
	Static    fs.FS

	// AnalyticsScript is the analytics tag src. Empty disables both the tag and the consent banner.
	AnalyticsScript string
	ConsentCookie   string // default: "cookie_consent"

	// ContactEndpoint is where the contact form posts, default "/api/contact"
	ContactEndpoint string

	// Cache policies applied by file extension.
	HTMLCacheControl  string // default: "no-cache"
	AssetCacheControl string // default: "public, max-age=31536000, immutable"
	OtherCacheControl string // default: "public, max-age=3600"

	Now func() time.Time
}

func (o *Options) setDefaults() {
	if o.Logger == nil {
		o.Logger = log.Nop()
	}
	if o.ConsentCookie == "" {
		o.ConsentCookie = "cookie_consent"
	}
	if o.ContactEndpoint == "" {
		o.ContactEndpoint = "/api/contact"
	}
	if o.HTMLCacheControl == "" {
		o.HTMLCacheControl = "no-cache"
	}
	if o.AssetCacheControl == "" {
		o.AssetCacheControl = "public, max-age=31536000, immutable"
	}
	if o.OtherCacheControl == "" {
		o.OtherCacheControl = "public, max-age=3600"
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

func (o *Options) validate() error {
	if o.Messages == nil {
		return fmt.Errorf("%w: Messages is nil", ErrInvalidOptions)
	}
	if o.Negotiator == nil {
		return fmt.Errorf("%w: Negotiator is nil", ErrInvalidOptions)
	}
	if o.SEO == nil {
		return fmt.Errorf("%w: SEO is nil", ErrInvalidOptions)
	}
	if o.Templates == nil {
		return fmt.Errorf("%w: Templates is nil", ErrInvalidOptions)
	}
	if o.Static == nil {
		return fmt.Errorf("%w: Static is nil", ErrInvalidOptions)
	}
	// fail fast on boot if mispackaged
	for _, name := range append([]string{layoutFile}, pageFiles()...) {
		if !existsFile(o.Templates, name) {
			return fmt.Errorf("%w: missing template %q", ErrInvalidOptions, name)
		}
	}
	return nil
}
