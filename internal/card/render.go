package card

import (
	"strings"

	"go.uber.org/zap"
)

const (
	DefaultMaxDepth    = 12
	DefaultMaxElements = 500

	// ProgressPercent is what every ProgressBar shows.
	ProgressPercent = 60
)

// Alignment is a horizontal alignment.
type Alignment string

const (
	AlignLeft   Alignment = "left"
	AlignCenter Alignment = "center"
	AlignRight  Alignment = "right"
)

// TextStyle is the resolved presentation of a TextBlock.
type TextStyle struct {
	FontSize string // CSS size, e.g. "1.5em"
	Bold     bool
	Align    Alignment
	Subtle   bool
}

// Surface receives rendered elements. Container and Columns hand the
// callback a surface scoped to the nested region.
type Surface interface {
	Text(style TextStyle, text string)
	Image(url, caption string, widthPx int)
	Container(fill func(Surface))
	Columns(n int, fill func(i int, s Surface))
	ProgressBar(percent int)
	Buttons(titles []string, align Alignment)
}

var fontSizes = map[string]string{
	"small":      "0.9em",
	"default":    "1em",
	"medium":     "1.2em",
	"large":      "1.5em",
	"extralarge": "2em",
}

var imageWidths = map[string]int{
	"small":  80,
	"medium": 120,
	"large":  200,
}

// Renderer walks card bodies onto a Surface with bounded depth and size.
type Renderer struct {
	MaxDepth    int
	MaxElements int
	Logger      *zap.Logger
}

// NewRenderer returns a Renderer with default limits.
func NewRenderer(logger *zap.Logger) *Renderer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Renderer{MaxDepth: DefaultMaxDepth, MaxElements: DefaultMaxElements, Logger: logger}
}

// Render draws body onto s. Elements nested deeper than MaxDepth, and any
// element past the MaxElements-th, are skipped.
func (r *Renderer) Render(s Surface, body []Element) {
	w := &walker{
		maxDepth:    r.MaxDepth,
		maxElements: r.MaxElements,
		log:         r.Logger,
	}
	if w.maxDepth <= 0 {
		w.maxDepth = DefaultMaxDepth
	}
	if w.maxElements <= 0 {
		w.maxElements = DefaultMaxElements
	}
	if w.log == nil {
		w.log = zap.NewNop()
	}
	w.renderAll(s, body, 0)
	if w.truncated {
		w.log.Debug("adaptive card truncated",
			zap.Int("rendered", w.count),
			zap.Int("max_depth", w.maxDepth),
			zap.Int("max_elements", w.maxElements))
	}
}

type walker struct {
	maxDepth    int
	maxElements int
	count       int
	truncated   bool
	log         *zap.Logger
}

func (w *walker) renderAll(s Surface, els []Element, depth int) {
	for _, el := range els {
		w.render(s, el, depth)
	}
}

func (w *walker) render(s Surface, el Element, depth int) {
	if depth > w.maxDepth || w.count >= w.maxElements {
		w.truncated = true
		return
	}
	w.count++

	switch el := el.(type) {
	case TextBlock:
		if el.Text == "" {
			return
		}
		s.Text(textStyle(el), el.Text)
	case Image:
		if el.URL == "" {
			return
		}
		s.Image(el.URL, el.AltText, imageWidths[strings.ToLower(el.Size)])
	case Container:
		s.Container(func(inner Surface) {
			w.renderAll(inner, el.Items, depth+1)
		})
	case ColumnSet:
		if len(el.Columns) == 0 {
			return
		}
		s.Columns(len(el.Columns), func(i int, col Surface) {
			w.renderAll(col, el.Columns[i].Items, depth+1)
		})
	case ProgressBar:
		s.ProgressBar(ProgressPercent)
	case ActionSet:
		var titles []string
		for _, a := range el.Actions {
			if a.Title != "" {
				titles = append(titles, a.Title)
			}
		}
		if len(titles) == 0 {
			return
		}
		s.Buttons(titles, alignment(el.HorizontalAlignment))
	default:
		w.log.Debug("skipping adaptive card element", zap.String("type", el.elementType()))
	}
}

func textStyle(tb TextBlock) TextStyle {
	size, ok := fontSizes[strings.ToLower(tb.Size)]
	if !ok {
		size = "1em"
	}
	return TextStyle{
		FontSize: size,
		Bold:     strings.EqualFold(tb.Weight, "bolder"),
		Align:    alignment(tb.HorizontalAlignment),
		Subtle:   tb.IsSubtle,
	}
}

func alignment(s string) Alignment {
	switch strings.ToLower(s) {
	case "center":
		return AlignCenter
	case "right":
		return AlignRight
	default:
		return AlignLeft
	}
}
