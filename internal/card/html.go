package card

import (
	"fmt"
	"html"
	"strings"
)

// HTMLSurface renders card elements as inline-styled HTML.
type HTMLSurface struct {
	b *strings.Builder
}

// NewHTMLSurface returns an empty surface.
func NewHTMLSurface() *HTMLSurface {
	return &HTMLSurface{b: &strings.Builder{}}
}

func (h *HTMLSurface) String() string { return h.b.String() }

func (h *HTMLSurface) Text(style TextStyle, text string) {
	css := "font-size: " + style.FontSize + ";"
	if style.Align != AlignLeft {
		css += " text-align: " + string(style.Align) + ";"
	}
	if style.Subtle {
		css += " opacity: 0.7;"
	}
	content := html.EscapeString(text)
	if style.Bold {
		content = "<strong>" + content + "</strong>"
	}
	fmt.Fprintf(h.b, `<div style="%s">%s</div>`, css, content)
}

func (h *HTMLSurface) Image(url, caption string, widthPx int) {
	css := "max-width: 100%;"
	if widthPx > 0 {
		css = fmt.Sprintf("width: %dpx;", widthPx)
	}
	fmt.Fprintf(h.b, `<figure style="margin: 5px 0;"><img src="%s" alt="%s" style="%s">`,
		html.EscapeString(url), html.EscapeString(caption), css)
	if caption != "" {
		fmt.Fprintf(h.b, "<figcaption>%s</figcaption>", html.EscapeString(caption))
	}
	h.b.WriteString("</figure>")
}

func (h *HTMLSurface) Container(fill func(Surface)) {
	h.b.WriteString(`<div style="padding: 10px; margin: 5px 0;">`)
	fill(h)
	h.b.WriteString("</div>")
}

func (h *HTMLSurface) Columns(n int, fill func(int, Surface)) {
	h.b.WriteString(`<div style="display: flex; gap: 10px;">`)
	for i := 0; i < n; i++ {
		h.b.WriteString(`<div style="flex: 1;">`)
		fill(i, h)
		h.b.WriteString("</div>")
	}
	h.b.WriteString("</div>")
}

func (h *HTMLSurface) ProgressBar(percent int) {
	fmt.Fprintf(h.b,
		`<div style="width: 100%%; background-color: #e0e0e0; border-radius: 4px; margin: 10px 0;">`+
			`<div style="width: %d%%; height: 8px; background-color: #0078d4; border-radius: 4px;"></div></div>`,
		percent)
}

func (h *HTMLSurface) Buttons(titles []string, align Alignment) {
	fmt.Fprintf(h.b, `<div style="margin: 10px 0; text-align: %s;">`, align)
	for _, t := range titles {
		fmt.Fprintf(h.b,
			`<button style="padding: 8px 16px; margin: 4px; border-radius: 4px; border: 1px solid #0078d4; background-color: #0078d4; color: white; cursor: pointer;">%s</button>`,
			html.EscapeString(t))
	}
	h.b.WriteString("</div>")
}

// RenderHTML renders a whole card inside a bordered frame. Documents whose
// type is not AdaptiveCard render as empty.
func (r *Renderer) RenderHTML(c *Card) string {
	if c == nil || c.Type != "AdaptiveCard" {
		return ""
	}
	s := NewHTMLSurface()
	s.b.WriteString(`<div class="adaptive-card" style="border: 1px solid #e0e0e0; border-radius: 8px; padding: 16px; margin: 10px 0; background-color: #fafafa; box-shadow: 0 2px 4px rgba(0,0,0,0.1);">`)
	r.Render(s, c.Body)
	s.b.WriteString("</div>")
	return s.String()
}
