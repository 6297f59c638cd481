// Package markup turns agent output into HTML that is safe to embed in a
// page, and flattens HTML for terminals.
package markup

import (
	"bytes"
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"
)

var (
	policy = newPolicy()

	// Raw HTML passes through goldmark and is cleaned by policy afterwards.
	md = goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(gmhtml.WithUnsafe()),
	)

	classRe    = regexp.MustCompile(`^[a-zA-Z0-9 _\-]+$`)
	cssValueRe = regexp.MustCompile(`^[#a-zA-Z0-9 .,%()\-]+$`)
	htmlTagRe  = regexp.MustCompile(`<[^>]*>`)
	blankRunRe = regexp.MustCompile(`\n{3,}`)
)

// Styles the card renderer emits. Anything else is dropped.
var allowedStyles = []string{
	"font-size", "font-weight", "text-align", "opacity",
	"padding", "margin", "width", "max-width", "height",
	"background", "background-color", "color",
	"border", "border-radius", "box-shadow",
	"display", "gap", "flex", "cursor",
}

func newPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowElements("button", "figure", "figcaption", "sup", "details", "summary")
	p.AllowAttrs("class").Matching(classRe).Globally()
	p.AllowStyles(allowedStyles...).MatchingHandler(safeCSSValue).Globally()
	p.AddTargetBlankToFullyQualifiedLinks(true)
	return p
}

func safeCSSValue(v string) bool {
	lower := strings.ToLower(v)
	if strings.Contains(lower, "url(") || strings.Contains(lower, "expression(") {
		return false
	}
	return cssValueRe.MatchString(v)
}

// Sanitize removes scripts, event handlers and anything outside the allow
// list from agent-supplied HTML.
func Sanitize(s string) string {
	return policy.Sanitize(s)
}

// Render converts agent markdown (which may contain inline HTML such as
// citation superscripts) to sanitized HTML.
func Render(s string) string {
	var buf bytes.Buffer
	if err := md.Convert([]byte(s), &buf); err != nil {
		// goldmark only fails on writer errors; keep the text visible.
		return Literal(s)
	}
	return Sanitize(buf.String())
}

// Literal escapes user-typed text for display. Newlines become <br>.
func Literal(s string) string {
	return strings.ReplaceAll(html.EscapeString(s), "\n", "<br>")
}

// StripHTML flattens HTML to plain text for terminal display.
func StripHTML(s string) string {
	s = strings.ReplaceAll(s, "<br/>", "\n")
	s = strings.ReplaceAll(s, "<br>", "\n")
	s = strings.ReplaceAll(s, "<br />", "\n")
	s = strings.ReplaceAll(s, "</p>", "\n\n")
	s = strings.ReplaceAll(s, "</div>", "\n")
	s = strings.ReplaceAll(s, "</li>", "\n")
	s = htmlTagRe.ReplaceAllString(s, "")
	s = html.UnescapeString(s)
	s = blankRunRe.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
