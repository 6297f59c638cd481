package markup

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitize_StripsScripts(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		notWant string
	}{
		{"script tag", `<p>hi</p><script>alert(1)</script>`, "<script"},
		{"event handler", `<img src="https://x/a.png" onerror="alert(1)">`, "onerror"},
		{"javascript href", `<a href="javascript:alert(1)">x</a>`, "javascript:"},
		{"css url", `<div style="background: url(https://evil)">x</div>`, "url("},
		{"iframe", `<iframe src="https://x"></iframe>`, "<iframe"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Sanitize(tt.in)
			if strings.Contains(got, tt.notWant) {
				t.Errorf("Sanitize(%q) = %q, should not contain %q", tt.in, got, tt.notWant)
			}
		})
	}
}

func TestSanitize_KeepsCardMarkup(t *testing.T) {
	in := `<div style="font-size: 1.5em; text-align: center;"><strong>Title</strong></div>` +
		`<button style="padding: 8px 16px; margin: 4px;">Go</button>` +
		`<figure><img src="https://x/a.png" style="width: 80px;"><figcaption>cap</figcaption></figure>`
	got := Sanitize(in)

	assert.Contains(t, got, "font-size: 1.5em")
	assert.Contains(t, got, "text-align: center")
	assert.Contains(t, got, "<button")
	assert.Contains(t, got, "<figcaption>cap</figcaption>")
	assert.Contains(t, got, "width: 80px")
}

func TestRender_CitationAnchors(t *testing.T) {
	in := `Answer <sup class="citation"><a href="#cite-1">[1]</a></sup>` +
		"\n\n" + `<div class="references"><div id="cite-1">[1] <a href="https://a">A</a></div></div>`
	got := Render(in)

	assert.Contains(t, got, `href="#cite-1"`)
	assert.Contains(t, got, `id="cite-1"`)
	assert.Contains(t, got, "<sup")
}

func TestRender_Markdown(t *testing.T) {
	got := Render("**bold** and <script>x</script>\n\n| a | b |\n|---|---|\n| 1 | 2 |")

	assert.Contains(t, got, "<strong>bold</strong>")
	assert.Contains(t, got, "<table>")
	assert.NotContains(t, got, "<script")
}

func TestLiteral(t *testing.T) {
	got := Literal("<b>hi</b>\nthere")
	if got != "&lt;b&gt;hi&lt;/b&gt;<br>there" {
		t.Errorf("Literal() = %q", got)
	}
}

func TestStripHTML(t *testing.T) {
	got := StripHTML("<p>Hello&amp;bye</p><div>one</div><br/>two")
	assert.Equal(t, "Hello&bye\n\none\n\ntwo", got)
}
