package pages

import (
	"context"
	"io"
	"strconv"

	"github.com/a-h/templ"

	"github.com/conneroisu/brokerage/internal/forms"
)

// LayoutProps configures the page shell.
type LayoutProps struct {
	Site        *Site
	Title       string
	Description string
	Path        string
	// Chunk is the slug of the page in the body, used by the client to
	// report which chunk it is showing.
	Chunk string
	// Dev adds the live reload client.
	Dev  bool
	Body templ.Component
}

// Layout is the document shell around every page.
func Layout(p LayoutProps) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		h := &htmlWriter{w: w}
		site := p.Site
		if site == nil {
			site = &Site{}
		}

		title := site.Name
		if p.Title != "" && p.Title != site.Name {
			title = p.Title + " | " + site.Name
		}

		h.raw(`<!DOCTYPE html><html lang="en"><head><meta charset="utf-8">`)
		h.raw(`<meta name="viewport" content="width=device-width, initial-scale=1">`)
		h.element("title", "", title)
		if p.Description != "" {
			h.raw(`<meta name="description"`)
			h.attr("content", p.Description)
			h.raw(">")
		}
		h.raw(`<link rel="stylesheet" href="/static/app.css">`)
		h.raw(`<script src="/static/app.js" defer></script>`)
		if p.Dev {
			h.raw(`<script src="/static/reload.js" defer></script>`)
		}
		h.raw(`</head><body`)
		if p.Chunk != "" {
			h.attr("data-page", p.Chunk)
		}
		h.raw(`>`)

		h.raw(`<header class="site-header"><div class="container">`)
		h.raw(`<a class="brand" href="/" data-chunk="home">`)
		h.text(site.Name)
		h.raw(`</a><nav aria-label="Main"><ul>`)
		for _, l := range site.Nav {
			class := ""
			if l.Href == p.Path {
				class = "active"
			}
			h.raw("<li>")
			h.link(l, class)
			h.raw("</li>")
		}
		h.raw(`</ul></nav>`)
		if site.Phone != "" {
			h.raw(`<a class="phone"`)
			h.href("tel:" + site.Phone)
			h.raw(">")
			h.text(site.Phone)
			h.raw("</a>")
		}
		h.raw(`</div></header>`)

		h.raw(`<main id="main">`)
		h.render(ctx, p.Body)
		h.raw(`</main>`)

		h.raw(`<footer class="site-footer"><div class="container">`)
		h.element("p", "tagline", site.Tagline)
		h.raw(`<address>`)
		h.text(site.Address)
		if site.Hours != "" {
			h.raw("<br>")
			h.text(site.Hours)
		}
		h.raw(`</address><ul class="footer-links">`)
		for _, l := range site.Footer {
			h.raw("<li>")
			h.link(l, "")
			h.raw("</li>")
		}
		h.raw(`</ul>`)
		if site.License != "" {
			h.element("p", "license", site.License)
		}
		h.raw(`</div></footer></body></html>`)

		return h.err
	})
}

// Body renders a page's content: hero, sections and its form, if any.
// schema may be nil.
func Body(page *Page, schema *forms.Schema) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		h := &htmlWriter{w: w}

		h.raw(`<section class="hero"><div class="container">`)
		h.element("h1", "", page.Hero.Heading)
		if page.Hero.Subheading != "" {
			h.element("p", "lead", page.Hero.Subheading)
		}
		if page.Hero.CTA != nil {
			h.link(*page.Hero.CTA, "button")
		}
		h.raw(`</div></section>`)

		for _, s := range page.Sections {
			h.raw(`<section class="content"><div class="container">`)
			if s.Heading != "" {
				h.element("h2", "", s.Heading)
			}
			for _, para := range s.Body {
				h.element("p", "", para)
			}
			if len(s.Items) > 0 {
				h.raw(`<ul class="checklist">`)
				for _, item := range s.Items {
					h.element("li", "", item)
				}
				h.raw(`</ul>`)
			}
			if len(s.Cards) > 0 {
				h.raw(`<div class="cards">`)
				for _, c := range s.Cards {
					h.raw(`<article class="card">`)
					h.element("h3", "", c.Title)
					h.element("p", "", c.Body)
					if c.Link != nil {
						h.link(*c.Link, "card-link")
					}
					h.raw(`</article>`)
				}
				h.raw(`</div>`)
			}
			h.raw(`</div></section>`)
		}

		if schema != nil {
			h.raw(`<section class="form-section"><div class="container">`)
			h.render(ctx, Form(schema))
			h.raw(`</div></section>`)
		}

		return h.err
	})
}

// FormAction returns the endpoint a form posts to.
func FormAction(schema *forms.Schema) string {
	if schema.Line != "" {
		return "/api/quote/" + schema.Line
	}
	return "/api/" + schema.ID
}

// Form renders a lead form. The client script submits it as JSON and keeps
// a draft of the answers on the server while the visitor types.
func Form(schema *forms.Schema) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		h := &htmlWriter{w: w}

		h.raw(`<form class="lead-form" method="post" novalidate`)
		h.attr("action", FormAction(schema))
		h.attr("data-form-id", schema.ID)
		h.raw(`>`)
		h.element("h2", "", schema.Title)
		if schema.Description != "" {
			h.element("p", "form-description", schema.Description)
		}
		h.raw(`<div class="form-status" role="status" aria-live="polite" hidden></div>`)

		for _, f := range schema.Fields {
			id := schema.ID + "-" + f.Name
			h.raw(`<div class="field">`)
			h.raw(`<label`)
			h.attr("for", id)
			h.raw(`>`)
			h.text(f.Label)
			if f.Required {
				h.raw(` <span class="required" aria-hidden="true">*</span>`)
			}
			h.raw(`</label>`)

			switch f.Type {
			case forms.TypeTextarea:
				h.raw(`<textarea rows="5"`)
				fieldAttrs(h, id, f)
				h.raw(`></textarea>`)
			case forms.TypeSelect:
				h.raw(`<select`)
				fieldAttrs(h, id, f)
				h.raw(`><option value="">Choose one</option>`)
				for _, o := range f.Options {
					h.raw(`<option`)
					h.attr("value", o.Value)
					h.raw(`>`)
					h.text(o.Label)
					h.raw(`</option>`)
				}
				h.raw(`</select>`)
			default:
				h.raw(`<input`)
				h.attr("type", inputType(f.Type))
				fieldAttrs(h, id, f)
				if f.Placeholder != "" {
					h.attr("placeholder", f.Placeholder)
				}
				if f.Pattern != "" {
					h.attr("pattern", f.Pattern)
				}
				h.raw(`>`)
			}

			if f.Help != "" {
				h.element("small", "help", f.Help)
			}
			h.raw(`<p class="field-error" hidden></p></div>`)
		}

		h.raw(`<div class="form-actions"><button type="submit" class="button">`)
		h.text(schema.SubmitLabel)
		h.raw(`</button><button type="button" class="link-button" data-action="clear-draft">Clear form</button></div>`)
		h.raw(`</form>`)

		return h.err
	})
}

func fieldAttrs(h *htmlWriter, id string, f forms.Field) {
	h.attr("id", id)
	h.attr("name", f.Name)
	if f.Required {
		h.raw(` required`)
	}
	if f.MaxLength > 0 {
		h.attr("maxlength", strconv.Itoa(f.MaxLength))
	}
}

func inputType(t forms.FieldType) string {
	switch t {
	case forms.TypeEmail, forms.TypeTel, forms.TypeDate:
		return string(t)
	case forms.TypeNumber:
		// Formatted amounts like "$250,000" are accepted server side.
		return "text"
	default:
		return "text"
	}
}

// Loading is the placeholder shown while a page chunk is still loading.
// The client script reloads the page shortly after it is shown.
func Loading() templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		h := &htmlWriter{w: w}
		h.raw(`<section class="loading" aria-busy="true" data-lazy-pending><div class="container">`)
		h.raw(`<div class="spinner" aria-hidden="true"></div><p>Loading&hellip;</p>`)
		h.raw(`<noscript><p><a href="">Reload the page</a> if it does not appear.</p></noscript>`)
		h.raw(`</div></section>`)
		return h.err
	})
}

// ErrorBody is the content of error pages.
func ErrorBody(status int, heading, message string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		h := &htmlWriter{w: w}
		h.raw(`<section class="error-page"><div class="container">`)
		h.element("p", "status-code", strconv.Itoa(status))
		h.element("h1", "", heading)
		h.element("p", "", message)
		h.raw(`<p><a class="button" href="/">Back to the home page</a></p>`)
		h.raw(`</div></section>`)
		return h.err
	})
}

// NotFound is ErrorBody for a 404.
func NotFound() templ.Component {
	return ErrorBody(404, "Page not found", "We could not find the page you were looking for.")
}

// ServerError is ErrorBody for a 500.
func ServerError() templ.Component {
	return ErrorBody(500, "Something went wrong", "We could not load this page. Please try again in a moment or give us a call.")
}
