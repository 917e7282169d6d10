package i18n

import (
	"errors"
	"sync/atomic"
)

// Manager holds the active catalog. Reads are lock-free.
type Manager struct {
	active atomic.Pointer[Catalog]
}

func NewManager(initial *Catalog) *Manager {
	m := &Manager{}
	if initial != nil {
		m.active.Store(initial)
	}
	return m
}

func (m *Manager) Set(c *Catalog) {
	if c != nil {
		m.active.Store(c)
	}
}

// Get returns the active catalog, nil before the first Set
func (m *Manager) Get() *Catalog { return m.active.Load() }

// T looks key up in the active catalog
func (m *Manager) T(locale, key string) string {
	return m.active.Load().Lookup(locale, key)
}

// CatalogVersion implements httpmw.CatalogInfo
func (m *Manager) CatalogVersion() string {
	if c := m.active.Load(); c != nil {
		return c.Meta.Version
	}
	return ""
}

// CatalogHash implements httpmw.CatalogInfo
func (m *Manager) CatalogHash() string {
	if c := m.active.Load(); c != nil {
		return c.Meta.Hash
	}
	return ""
}

// ReadyErr fails until a catalog has been installed
func (m *Manager) ReadyErr() error {
	if m.active.Load() == nil {
		return errors.New("i18n: no active catalog")
	}
	return nil
}
