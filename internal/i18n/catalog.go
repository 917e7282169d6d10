package i18n

import (
	"bytes"
	"encoding/json"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/keithlinneman/clubdesk-web/internal/cryptoutil"
	"github.com/keithlinneman/clubdesk-web/internal/xerrors"
)

const DefaultLocale = "en"

// Supported lists the site locales, default first
var Supported = []string{"en", "de", "fr", "es", "nl"}

type Source string

const (
	SourceEmbedded Source = "embedded"
	SourceS3       Source = "s3"
)

// Messages maps locale -> dotted key -> message
type Messages map[string]map[string]string

type Meta struct {
	// Hash is the sha256 of the embedded files, or of the overlay bundle when one is active
	Hash     string
	Version  string
	Source   Source
	LoadedAt time.Time
}

// Catalog is immutable once built, share it freely
type Catalog struct {
	Meta     Meta
	messages Messages
}

// NewCatalog copies msgs so later changes by the caller are not visible.
func NewCatalog(msgs Messages, meta Meta) *Catalog {
	if meta.LoadedAt.IsZero() {
		meta.LoadedAt = time.Now().UTC()
	}
	return &Catalog{Meta: meta, messages: Merge(msgs, nil)}
}

// Lookup resolves key for locale: locale, then its base language, then DefaultLocale, then key itself.
func (c *Catalog) Lookup(locale, key string) string {
	if c == nil {
		return key
	}
	for _, l := range fallbackChain(locale) {
		if v, ok := c.messages[l][key]; ok {
			return v
		}
	}
	return key
}

// Has reports whether the catalog carries any messages for locale
func (c *Catalog) Has(locale string) bool {
	if c == nil {
		return false
	}
	_, ok := c.messages[normalizeLocale(locale)]
	return ok
}

// Locales returns the locales present, sorted
func (c *Catalog) Locales() []string {
	if c == nil {
		return nil
	}
	out := make([]string, 0, len(c.messages))
	for l := range c.messages {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

// Messages returns a copy of the messages
func (c *Catalog) Messages() Messages {
	if c == nil {
		return Messages{}
	}
	return Merge(c.messages, nil)
}

func normalizeLocale(l string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(l), "_", "-"))
}

func fallbackChain(locale string) []string {
	locale = normalizeLocale(locale)
	chain := make([]string, 0, 3)
	if locale != "" {
		chain = append(chain, locale)
	}
	if i := strings.IndexByte(locale, '-'); i > 0 {
		chain = append(chain, locale[:i])
	}
	if len(chain) == 0 || chain[len(chain)-1] != DefaultLocale {
		chain = append(chain, DefaultLocale)
	}
	return chain
}

// Merge returns a deep copy of base with overlay's keys written over it. Either may be nil.
func Merge(base, overlay Messages) Messages {
	out := make(Messages, len(base))
	for _, src := range []Messages{base, overlay} {
		for loc, kv := range src {
			loc = normalizeLocale(loc)
			dst, ok := out[loc]
			if !ok {
				dst = make(map[string]string, len(kv))
				out[loc] = dst
			}
			for k, v := range kv {
				dst[k] = v
			}
		}
	}
	return out
}

// Flatten turns one locale's nested JSON into dotted keys. Leaves must be strings.
func Flatten(nested map[string]any) (map[string]string, error) {
	out := make(map[string]string)
	if err := flattenInto(out, "", nested); err != nil {
		return nil, err
	}
	return out, nil
}

func flattenInto(out map[string]string, prefix string, nested map[string]any) error {
	for k, v := range nested {
		if k == "" || strings.Contains(k, ".") {
			return xerrors.Mark(xerrors.Newf("invalid message key %q under %q", k, prefix), xerrors.KindInvalid)
		}
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch tv := v.(type) {
		case string:
			out[key] = tv
		case map[string]any:
			if err := flattenInto(out, key, tv); err != nil {
				return err
			}
		default:
			return xerrors.Mark(xerrors.Newf("message %q must be a string or object, got %T", key, v), xerrors.KindInvalid)
		}
	}
	return nil
}

// ParseLocale parses one locale file
func ParseLocale(data []byte) (map[string]string, error) {
	var nested map[string]any
	if err := json.Unmarshal(data, &nested); err != nil {
		return nil, xerrors.Mark(xerrors.Wrap(err, "decode locale json"), xerrors.KindInvalid)
	}
	return Flatten(nested)
}

// ParseBundle parses an overlay bundle: one top-level key per locale, each a nested catalog
func ParseBundle(data []byte) (Messages, error) {
	var raw map[string]map[string]any
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&raw); err != nil {
		return nil, xerrors.Mark(xerrors.Wrap(err, "decode bundle json"), xerrors.KindInvalid)
	}
	if len(raw) == 0 {
		return nil, xerrors.Mark(xerrors.New("bundle has no locales"), xerrors.KindInvalid)
	}
	out := make(Messages, len(raw))
	for loc, nested := range raw {
		flat, err := Flatten(nested)
		if err != nil {
			return nil, xerrors.Wrapf(err, "locale %s", loc)
		}
		out[normalizeLocale(loc)] = flat
	}
	return out, nil
}

// LoadFS reads every {locale}.json at the root of fsys into a catalog.
func LoadFS(fsys fs.FS) (*Catalog, error) {
	names, err := fs.Glob(fsys, "*.json")
	if err != nil {
		return nil, xerrors.Wrap(err, "list locale files")
	}
	if len(names) == 0 {
		return nil, xerrors.Mark(xerrors.New("no locale files found"), xerrors.KindNotFound)
	}
	sort.Strings(names)

	msgs := make(Messages, len(names))
	var digest bytes.Buffer
	for _, name := range names {
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, xerrors.Wrapf(err, "read %s", name)
		}
		flat, err := ParseLocale(data)
		if err != nil {
			return nil, xerrors.Wrapf(err, "parse %s", name)
		}
		msgs[normalizeLocale(strings.TrimSuffix(path.Base(name), ".json"))] = flat

		digest.WriteString(name)
		digest.WriteByte(0)
		digest.Write(data)
	}

	return NewCatalog(msgs, Meta{
		Hash:    cryptoutil.SHA256Hex(digest.Bytes()),
		Version: string(SourceEmbedded),
		Source:  SourceEmbedded,
	}), nil
}
