// Package pages renders the site's pages as templ components from a YAML
// content catalogue.
//
// The catalogue is a directory (embedded by default) holding site.yaml and
// one pages/<slug>.yaml per page. Each page is a chunk: its body component is
// built by a loader registered in a chunks.Cache under the page's slug.
package pages

import (
	"embed"
	stderrors "errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/conneroisu/brokerage/internal/errors"
)

//go:embed content
var embeddedContent embed.FS

// EmbeddedContent returns the catalogue compiled into the binary.
func EmbeddedContent() fs.FS {
	sub, err := fs.Sub(embeddedContent, "content")
	if err != nil {
		panic(err)
	}
	return sub
}

// Link is a navigation target. Chunk names the page chunk behind Href so the
// browser can ask for it to be prefetched.
type Link struct {
	Label string `yaml:"label"`
	Href  string `yaml:"href"`
	Chunk string `yaml:"chunk,omitempty"`
}

// Site holds the agency details shown on every page.
type Site struct {
	Name    string `yaml:"name"`
	Tagline string `yaml:"tagline"`
	Phone   string `yaml:"phone"`
	Email   string `yaml:"email"`
	Address string `yaml:"address"`
	Hours   string `yaml:"hours"`
	License string `yaml:"license"`
	Nav     []Link `yaml:"nav"`
	Footer  []Link `yaml:"footer"`
}

// Hero is the banner at the top of a page.
type Hero struct {
	Heading    string `yaml:"heading"`
	Subheading string `yaml:"subheading"`
	CTA        *Link  `yaml:"cta,omitempty"`
}

// Card is a teaser inside a section.
type Card struct {
	Title string `yaml:"title"`
	Body  string `yaml:"body"`
	Link  *Link  `yaml:"link,omitempty"`
}

// Section is a block of page copy.
type Section struct {
	Heading string   `yaml:"heading"`
	Body    []string `yaml:"body"`
	Items   []string `yaml:"items"`
	Cards   []Card   `yaml:"cards"`
}

// Page is one page of the catalogue.
type Page struct {
	Slug        string    `yaml:"-"`
	Path        string    `yaml:"path"`
	Title       string    `yaml:"title"`
	Description string    `yaml:"description"`
	Hero        Hero      `yaml:"hero"`
	Sections    []Section `yaml:"sections"`
	// Form is the id of the form embedded in the page, if any.
	Form string `yaml:"form,omitempty"`
	// Prefetch lists chunks worth warming once this page is served.
	Prefetch []string `yaml:"prefetch,omitempty"`
	// Priority is the sitemap priority; zero means 0.5.
	Priority float64 `yaml:"priority,omitempty"`
}

// Catalog reads content from a filesystem.
type Catalog struct {
	fsys fs.FS
}

// NewCatalog returns a catalogue over fsys.
func NewCatalog(fsys fs.FS) *Catalog {
	return &Catalog{fsys: fsys}
}

// Site reads site.yaml.
func (c *Catalog) Site() (*Site, error) {
	var site Site
	if err := c.decode("site.yaml", &site); err != nil {
		return nil, err
	}
	return &site, nil
}

// Page reads the page with slug.
func (c *Catalog) Page(slug string) (*Page, error) {
	if !validSlug(slug) {
		return nil, errors.NewNotFoundError(errors.ErrCodeChunkNotFound, "invalid page slug: "+slug)
	}

	var page Page
	if err := c.decode(path.Join("pages", slug+".yaml"), &page); err != nil {
		return nil, err
	}
	page.Slug = slug
	if page.Path == "" {
		page.Path = "/" + slug
	}

	return &page, nil
}

// Slugs lists every page in the catalogue.
func (c *Catalog) Slugs() ([]string, error) {
	matches, err := fs.Glob(c.fsys, "pages/*.yaml")
	if err != nil {
		return nil, errors.NewLoadError(errors.ErrCodeChunkLoad, "listing pages", err)
	}

	slugs := make([]string, 0, len(matches))
	for _, m := range matches {
		slugs = append(slugs, strings.TrimSuffix(path.Base(m), ".yaml"))
	}
	sort.Strings(slugs)

	return slugs, nil
}

// Pages reads every page, sorted by path.
func (c *Catalog) Pages() ([]*Page, error) {
	slugs, err := c.Slugs()
	if err != nil {
		return nil, err
	}

	pages := make([]*Page, 0, len(slugs))
	for _, slug := range slugs {
		page, err := c.Page(slug)
		if err != nil {
			return nil, err
		}
		pages = append(pages, page)
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].Path < pages[j].Path })

	return pages, nil
}

func (c *Catalog) decode(name string, v any) error {
	data, err := fs.ReadFile(c.fsys, name)
	if stderrors.Is(err, fs.ErrNotExist) {
		return errors.NewNotFoundError(errors.ErrCodeChunkNotFound, "content not found: "+name)
	}
	if err != nil {
		return errors.NewLoadError(errors.ErrCodeChunkLoad, "reading "+name, err)
	}

	if err := yaml.Unmarshal(data, v); err != nil {
		return errors.NewLoadError(errors.ErrCodeChunkLoad, fmt.Sprintf("parsing %s", name), err)
	}

	return nil
}

func validSlug(slug string) bool {
	if slug == "" {
		return false
	}
	for _, r := range slug {
		if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '-') {
			return false
		}
	}
	return true
}

// SlugForPath maps a request path to the page slug serving it.
func SlugForPath(p string) string {
	p = strings.Trim(p, "/")
	if p == "" {
		return "home"
	}
	return strings.ReplaceAll(p, "/", "-")
}
