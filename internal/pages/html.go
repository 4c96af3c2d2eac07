package pages

import (
	"context"
	"io"

	"github.com/a-h/templ"
)

// htmlWriter writes markup and keeps the first error, so component bodies
// read top to bottom without an error check per line.
type htmlWriter struct {
	w   io.Writer
	err error
}

func (h *htmlWriter) raw(s string) {
	if h.err != nil {
		return
	}
	_, h.err = io.WriteString(h.w, s)
}

func (h *htmlWriter) text(s string) {
	h.raw(templ.EscapeString(s))
}

// attr writes ` name="value"` with value escaped.
func (h *htmlWriter) attr(name, value string) {
	h.raw(" " + name + `="` + templ.EscapeString(value) + `"`)
}

// href writes an href attribute through templ's URL sanitizer.
func (h *htmlWriter) href(url string) {
	h.attr("href", string(templ.URL(url)))
}

// element writes <tag attrs...>text</tag>.
func (h *htmlWriter) element(tag, class, content string) {
	h.raw("<" + tag)
	if class != "" {
		h.attr("class", class)
	}
	h.raw(">")
	h.text(content)
	h.raw("</" + tag + ">")
}

func (h *htmlWriter) link(l Link, class string) {
	h.raw("<a")
	h.href(l.Href)
	if class != "" {
		h.attr("class", class)
	}
	if l.Chunk != "" {
		h.attr("data-chunk", l.Chunk)
	}
	h.raw(">")
	h.text(l.Label)
	h.raw("</a>")
}

func (h *htmlWriter) render(ctx context.Context, c templ.Component) {
	if h.err != nil || c == nil {
		return
	}
	h.err = c.Render(ctx, h.w)
}
