package card

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder logs surface calls in order.
type recorder struct {
	ops    *[]string
	styles *[]TextStyle
}

func newRecorder() recorder {
	return recorder{ops: &[]string{}, styles: &[]TextStyle{}}
}

func (r recorder) Text(style TextStyle, text string) {
	*r.ops = append(*r.ops, "text:"+text)
	*r.styles = append(*r.styles, style)
}

func (r recorder) Image(url, caption string, widthPx int) {
	*r.ops = append(*r.ops, fmt.Sprintf("image:%s:%d", url, widthPx))
}

func (r recorder) Container(fill func(Surface)) {
	*r.ops = append(*r.ops, "container")
	fill(r)
}

func (r recorder) Columns(n int, fill func(int, Surface)) {
	*r.ops = append(*r.ops, fmt.Sprintf("columns:%d", n))
	for i := 0; i < n; i++ {
		fill(i, r)
	}
}

func (r recorder) ProgressBar(percent int) {
	*r.ops = append(*r.ops, fmt.Sprintf("progress:%d", percent))
}

func (r recorder) Buttons(titles []string, align Alignment) {
	*r.ops = append(*r.ops, fmt.Sprintf("buttons:%s:%s", strings.Join(titles, ","), align))
}

func mustParse(t *testing.T, js string) *Card {
	t.Helper()
	c, err := Parse([]byte(js))
	require.NoError(t, err)
	return c
}

func TestParse_MalformedElementsBecomeUnknown(t *testing.T) {
	c := mustParse(t, `{"type":"AdaptiveCard","version":"1.5","body":[
		{"type":"TextBlock","text":5},
		{"type":"TextBlock","text":"ok"},
		"junk",
		{"type":"RichTextBlock","inlines":[]}
	]}`)

	require.Len(t, c.Body, 4)
	assert.IsType(t, Unknown{}, c.Body[0])
	assert.Equal(t, TextBlock{Text: "ok"}, c.Body[1])
	assert.IsType(t, Unknown{}, c.Body[2])
	assert.Equal(t, Unknown{Type: "RichTextBlock"}, c.Body[3])
}

func TestParse_NotAnObject(t *testing.T) {
	_, err := Parse([]byte(`[1,2]`))
	assert.Error(t, err)
}

func TestRender_Elements(t *testing.T) {
	c := mustParse(t, `{"type":"AdaptiveCard","body":[
		{"type":"TextBlock","text":"Title","size":"Large","weight":"Bolder","horizontalAlignment":"Center","isSubtle":true},
		{"type":"TextBlock","text":""},
		{"type":"Image","url":"https://x/a.png","size":"Medium"},
		{"type":"Image","url":""},
		{"type":"ColumnSet","columns":[
			{"width":"auto","items":[{"type":"TextBlock","text":"L"}]},
			{"width":2,"items":[{"type":"TextBlock","text":"R"}]}
		]},
		{"type":"ProgressBar","value":0.2},
		{"type":"ActionSet","horizontalAlignment":"right","actions":[
			{"type":"Action.Submit","title":"Yes"},
			{"type":"Action.Submit"},
			{"type":"Action.OpenUrl","title":"Docs","url":"https://d"}
		]}
	]}`)

	rec := newRecorder()
	NewRenderer(nil).Render(rec, c.Body)

	assert.Equal(t, []string{
		"text:Title",
		"image:https://x/a.png:120",
		"columns:2",
		"text:L",
		"text:R",
		"progress:60",
		"buttons:Yes,Docs:right",
	}, *rec.ops)
	assert.Equal(t, TextStyle{FontSize: "1.5em", Bold: true, Align: AlignCenter, Subtle: true}, (*rec.styles)[0])
	assert.Equal(t, TextStyle{FontSize: "1em", Align: AlignLeft}, (*rec.styles)[1])
}

func TestTextStyle_SizeTable(t *testing.T) {
	tests := []struct {
		size string
		want string
	}{
		{"Small", "0.9em"},
		{"Default", "1em"},
		{"Medium", "1.2em"},
		{"Large", "1.5em"},
		{"ExtraLarge", "2em"},
		{"huge", "1em"},
		{"", "1em"},
	}
	for _, tt := range tests {
		got := textStyle(TextBlock{Text: "x", Size: tt.size}).FontSize
		if got != tt.want {
			t.Errorf("textStyle(size=%q).FontSize = %q, want %q", tt.size, got, tt.want)
		}
	}
}

func nested(depth int, leaf Element) Element {
	el := leaf
	for i := 0; i < depth; i++ {
		el = Container{Items: []Element{el}}
	}
	return el
}

func TestRender_DepthBound(t *testing.T) {
	r := NewRenderer(nil)

	rec := newRecorder()
	r.Render(rec, []Element{nested(DefaultMaxDepth, TextBlock{Text: "deep"})})
	assert.Contains(t, *rec.ops, "text:deep", "leaf at max depth renders")

	rec = newRecorder()
	r.Render(rec, []Element{nested(1000, TextBlock{Text: "too deep"})})
	assert.NotContains(t, *rec.ops, "text:too deep")
	assert.Len(t, *rec.ops, DefaultMaxDepth+1)
}

func TestRender_ElementBound(t *testing.T) {
	body := make([]Element, 0, 600)
	for i := 0; i < 600; i++ {
		body = append(body, TextBlock{Text: fmt.Sprint(i)})
	}
	rec := newRecorder()
	(&Renderer{MaxDepth: 4, MaxElements: 10}).Render(rec, body)

	assert.Len(t, *rec.ops, 10)
	assert.Equal(t, "text:9", (*rec.ops)[9])
}

func TestRenderHTML(t *testing.T) {
	c := mustParse(t, `{"type":"AdaptiveCard","body":[
		{"type":"TextBlock","text":"<b>hi</b>","weight":"bolder"},
		{"type":"Container","items":[{"type":"Image","url":"https://x/a.png","altText":"pic","size":"small"}]}
	]}`)
	out := NewRenderer(nil).RenderHTML(c)

	assert.True(t, strings.HasPrefix(out, `<div class="adaptive-card"`))
	assert.Contains(t, out, "<strong>&lt;b&gt;hi&lt;/b&gt;</strong>")
	assert.Contains(t, out, `style="width: 80px;"`)
	assert.Contains(t, out, "<figcaption>pic</figcaption>")
}

func TestRenderHTML_NotAdaptiveCard(t *testing.T) {
	c := mustParse(t, `{"type":"HeroCard","body":[{"type":"TextBlock","text":"x"}]}`)
	assert.Empty(t, NewRenderer(nil).RenderHTML(c))
}
