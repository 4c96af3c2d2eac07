package forms

import (
	"strings"
	"unicode"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/text/unicode/norm"
)

// dropContent lists elements whose text never reaches the cleaned value.
var dropContent = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Iframe:   true,
	atom.Noscript: true,
	atom.Template: true,
}

// Sanitize turns submitted input into plain text: markup is stripped (the
// contents of script-like elements with it), entities are decoded, control
// characters other than newline and tab are removed, and the result is NFC
// normalized and trimmed.
func Sanitize(input string) string {
	if input == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(input))

	z := html.NewTokenizer(strings.NewReader(input))
	skip := 0
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}

		switch tt {
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}
		case html.StartTagToken:
			name, _ := z.TagName()
			if dropContent[atom.Lookup(name)] {
				skip++
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if dropContent[atom.Lookup(name)] && skip > 0 {
				skip--
			}
		}
	}

	cleaned := strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if r == '\r' {
			return -1
		}
		if unicode.IsControl(r) || r == unicode.ReplacementChar {
			return -1
		}
		return r
	}, b.String())

	return strings.TrimSpace(norm.NFC.String(cleaned))
}

// SanitizeLine is Sanitize for single-line fields: runs of whitespace,
// newlines included, collapse to one space.
func SanitizeLine(input string) string {
	return strings.Join(strings.Fields(Sanitize(input)), " ")
}
