// Package i18n serves translated UI messages for the site.
//
// Catalogs are nested JSON objects per locale, flattened to dotted keys
// ("contact.submit"). Lookups fall back from the requested locale to its base
// language, then to the default locale, and finally to the key itself, so a
// missing translation never breaks a page.
//
// The components are:
//   - [Catalog]: an immutable set of messages with its hash and source
//   - [Negotiator]: picks a supported locale from Accept-Language
//   - [Manager]: holds the active catalog behind an atomic pointer
//   - [Loader]: fetches an overlay bundle from S3, addressed by the sha256 kept in SSM
//   - [Watcher]: polls SSM and swaps a validated overlay into the Manager
//
// The embedded catalogs are always the base layer. A remote overlay only adds
// or replaces keys and is rejected unless it validates.
package i18n
