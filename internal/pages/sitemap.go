package pages

import (
	"encoding/xml"
	"strconv"
	"strings"
)

type urlset struct {
	XMLName xml.Name     `xml:"urlset"`
	XMLNS   string       `xml:"xmlns,attr"`
	URLs    []sitemapURL `xml:"url"`
}

type sitemapURL struct {
	Loc      string `xml:"loc"`
	Priority string `xml:"priority,omitempty"`
}

// Sitemap renders a sitemap.xml document for pages under baseURL.
func Sitemap(baseURL string, pages []*Page) ([]byte, error) {
	base := strings.TrimRight(baseURL, "/")

	set := urlset{XMLNS: "http://www.sitemaps.org/schemas/sitemap/0.9"}
	for _, p := range pages {
		priority := p.Priority
		if priority <= 0 {
			priority = 0.5
		}
		set.URLs = append(set.URLs, sitemapURL{
			Loc:      base + p.Path,
			Priority: strconv.FormatFloat(priority, 'f', 1, 64),
		})
	}

	out, err := xml.MarshalIndent(set, "", "  ")
	if err != nil {
		return nil, err
	}

	return append([]byte(xml.Header), out...), nil
}

// Robots renders robots.txt. The API and form drafts are not for crawlers.
func Robots(baseURL string) string {
	var b strings.Builder
	b.WriteString("User-agent: *\n")
	b.WriteString("Disallow: /api/\n")
	b.WriteString("Disallow: /ws/\n")
	b.WriteString("Allow: /\n")
	if baseURL != "" {
		b.WriteString("\nSitemap: " + strings.TrimRight(baseURL, "/") + "/sitemap.xml\n")
	}
	return b.String()
}
