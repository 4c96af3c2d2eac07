package pages

import (
	"context"
	"sync"

	"github.com/a-h/templ"

	"github.com/conneroisu/brokerage/internal/chunks"
	"github.com/conneroisu/brokerage/internal/errors"
	"github.com/conneroisu/brokerage/internal/forms"
)

// Loader returns the chunk loader for the page with slug. Each call reads
// the page from the catalogue, so a reload picks up edited content.
func Loader(catalog *Catalog, registry *forms.Registry, slug string) chunks.Loader {
	return func(ctx context.Context) (templ.Component, error) {
		page, err := catalog.Page(slug)
		if err != nil {
			return nil, err
		}

		var schema *forms.Schema
		if page.Form != "" {
			s, ok := registry.Lookup(page.Form)
			if !ok {
				return nil, errors.NewLoadError(errors.ErrCodeUnknownForm,
					"page "+slug+" uses unknown form "+page.Form, nil)
			}
			schema = s
		}

		return Body(page, schema), nil
	}
}

// Register adds a chunk for every catalogue page to cache and returns the
// index of the pages it registered.
func Register(cache *chunks.Cache, catalog *Catalog, registry *forms.Registry) (*Index, error) {
	all, err := catalog.Pages()
	if err != nil {
		return nil, err
	}

	for _, page := range all {
		cache.Register(page.Slug, Loader(catalog, registry, page.Slug))
	}

	return NewIndex(all), nil
}

// Index is the catalogue's page metadata, looked up by slug. It is what the
// server routes on; page bodies live in the chunk cache.
type Index struct {
	mu     sync.RWMutex
	bySlug map[string]*Page
	pages  []*Page
}

// NewIndex indexes pages.
func NewIndex(pages []*Page) *Index {
	idx := &Index{}
	idx.Replace(pages)
	return idx
}

// Replace swaps in a new set of pages.
func (i *Index) Replace(pages []*Page) {
	bySlug := make(map[string]*Page, len(pages))
	for _, p := range pages {
		bySlug[p.Slug] = p
	}

	i.mu.Lock()
	i.bySlug = bySlug
	i.pages = pages
	i.mu.Unlock()
}

// Lookup returns the page with slug.
func (i *Index) Lookup(slug string) (*Page, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	p, ok := i.bySlug[slug]
	return p, ok
}

// Pages returns every indexed page, sorted by path.
func (i *Index) Pages() []*Page {
	i.mu.RLock()
	defer i.mu.RUnlock()

	return append([]*Page(nil), i.pages...)
}
