package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"copilot-chat/internal/agent"
	"copilot-chat/internal/card"
	"copilot-chat/internal/markup"
)

const minCardWidth = 20

// termSurface draws adaptive-card elements as styled terminal text.
type termSurface struct {
	width  int
	blocks []string
}

func newTermSurface(width int) *termSurface {
	if width < minCardWidth {
		width = minCardWidth
	}
	return &termSurface{width: width}
}

func (s *termSurface) String() string {
	return strings.Join(s.blocks, "\n")
}

func (s *termSurface) Text(style card.TextStyle, text string) {
	st := lipgloss.NewStyle().Width(s.width).Align(lipglossAlign(style.Align))
	switch style.FontSize {
	case "1.5em", "2em":
		st = st.Inherit(cardHeadingStyle)
	case "1.2em":
		st = st.Bold(true)
	}
	if style.Bold {
		st = st.Bold(true)
	}
	if style.Subtle {
		st = st.Foreground(colorGray)
	}
	s.blocks = append(s.blocks, st.Render(text))
}

func (s *termSurface) Image(url, caption string, widthPx int) {
	label := caption
	if label == "" {
		label = "image"
	}
	line := "🖼  " + label + " " + dimStyle.Render(url)
	s.blocks = append(s.blocks, lipgloss.NewStyle().Width(s.width).Render(line))
}

func (s *termSurface) Container(fill func(card.Surface)) {
	inner := newTermSurface(s.width - 2)
	fill(inner)
	if len(inner.blocks) == 0 {
		return
	}
	s.blocks = append(s.blocks, lipgloss.NewStyle().PaddingLeft(2).Render(inner.String()))
}

func (s *termSurface) Columns(n int, fill func(int, card.Surface)) {
	if n <= 0 {
		return
	}
	colWidth := (s.width - (n - 1)) / n
	cols := make([]string, 0, n)
	for i := 0; i < n; i++ {
		col := newTermSurface(colWidth)
		fill(i, col)
		cols = append(cols, lipgloss.NewStyle().Width(col.width).Render(col.String()))
		if i < n-1 {
			cols = append(cols, " ")
		}
	}
	s.blocks = append(s.blocks, lipgloss.JoinHorizontal(lipgloss.Top, cols...))
}

func (s *termSurface) ProgressBar(percent int) {
	barWidth := s.width - 6
	filled := barWidth * percent / 100
	bar := cardProgressStyle.Render(strings.Repeat("█", filled)) +
		dimStyle.Render(strings.Repeat("░", barWidth-filled))
	s.blocks = append(s.blocks, bar)
}

func (s *termSurface) Buttons(titles []string, align card.Alignment) {
	buttons := make([]string, 0, len(titles))
	for _, t := range titles {
		buttons = append(buttons, cardButtonStyle.Render(t))
	}
	row := lipgloss.JoinHorizontal(lipgloss.Top, buttons...)
	s.blocks = append(s.blocks, lipgloss.NewStyle().Width(s.width).Align(lipglossAlign(align)).Render(row))
}

func lipglossAlign(a card.Alignment) lipgloss.Position {
	switch a {
	case card.AlignCenter:
		return lipgloss.Center
	case card.AlignRight:
		return lipgloss.Right
	default:
		return lipgloss.Left
	}
}

// RenderCard draws one card payload for the terminal. HTML fragments are
// flattened to text.
func RenderCard(r *card.Renderer, p agent.CardPayload, width int) string {
	inner := width - 4
	if p.IsHTML() {
		text := strings.TrimSpace(markup.StripHTML(p.HTML))
		if text == "" {
			return ""
		}
		return cardFrameStyle.Render(lipgloss.NewStyle().Width(inner).Render(text))
	}
	c, err := card.Parse(p.JSON)
	if err != nil || c.Type != "AdaptiveCard" {
		return ""
	}
	s := newTermSurface(inner)
	r.Render(s, c.Body)
	if len(s.blocks) == 0 {
		return ""
	}
	return cardFrameStyle.Render(s.String())
}
