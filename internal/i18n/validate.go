package i18n

import (
	"errors"

	"github.com/keithlinneman/clubdesk-web/internal/xerrors"
)

type ValidationOptions struct {
	// Locales the catalog may contain, anything else is rejected
	Locales []string
	// RequiredKeys must be present for DefaultLocale, every other locale can fall back to it
	RequiredKeys []string
}

// DefaultValidationOptions covers the keys every page template renders
func DefaultValidationOptions() ValidationOptions {
	return ValidationOptions{
		Locales: Supported,
		RequiredKeys: []string{
			"meta.title",
			"meta.description",
			"hero.title",
			"contact.title",
			"contact.submit",
			"privacy.title",
			"notFound.title",
		},
	}
}

// ValidateCatalog reports every problem found, joined, marked KindInvalid
func ValidateCatalog(c *Catalog, opts ValidationOptions) error {
	if c == nil {
		return xerrors.Mark(xerrors.New("validate: catalog is nil"), xerrors.KindInvalid)
	}

	var errs []error
	if !c.Has(DefaultLocale) {
		errs = append(errs, xerrors.Newf("validate: default locale %s missing", DefaultLocale))
	}

	if len(opts.Locales) > 0 {
		allowed := make(map[string]bool, len(opts.Locales))
		for _, l := range opts.Locales {
			allowed[normalizeLocale(l)] = true
		}
		for _, l := range c.Locales() {
			if !allowed[l] {
				errs = append(errs, xerrors.Newf("validate: unsupported locale %s", l))
			}
		}
	}

	def := c.messages[DefaultLocale]
	for _, k := range opts.RequiredKeys {
		if v, ok := def[k]; !ok || v == "" {
			errs = append(errs, xerrors.Newf("validate: required key %s missing for %s", k, DefaultLocale))
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return xerrors.Mark(errors.Join(errs...), xerrors.KindInvalid)
}
