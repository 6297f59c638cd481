package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"

	"copilot-chat/internal/agent"
	"copilot-chat/internal/card"
	"copilot-chat/internal/citation"
	"copilot-chat/internal/stream"
)

// ─── Welcome Screen ─────────────────────────────────────────────────────────

const logoArt = `
   ╭──────────╮
   │  ◉    ◉  │
   │   ╰──╯   │
   ╰────┬─────╯
        ╰─ copilot`

func renderWelcome(version, agentName, user string) string {
	titleLine := logoTitleStyle.Render("Copilot Studio Chat") + " " + versionStyle.Render("v"+version)

	var infoLine string
	if agentName == "" {
		infoLine = welcomeHintStyle.Render("Run copilot-chat config set agent_identifier <id> to get started")
	} else {
		if len(agentName) > 40 {
			agentName = agentName[:37] + "..."
		}
		who := dimStyle.Render("not signed in")
		if user != "" {
			who = user
		}
		infoLine = welcomeInfoLabel.Render(fmt.Sprintf("%s · %s", agentName, who))
	}

	logo := logoStyle.Render(strings.Trim(logoArt, "\n"))
	return fmt.Sprintf("\n%s\n\n%s\n%s\n", logo, titleLine, infoLine)
}

// ─── Turn output ────────────────────────────────────────────────────────────

// newMarkdownRenderer returns a glamour renderer wrapped to width. style is
// a glamour standard style name; "" picks one from the terminal background.
func newMarkdownRenderer(style string, width int) (*glamour.TermRenderer, error) {
	if width <= 0 {
		width = 80
	}
	opt := glamour.WithAutoStyle()
	if style != "" {
		opt = glamour.WithStandardStyle(style)
	}
	return glamour.NewTermRenderer(opt, glamour.WithWordWrap(width))
}

// RenderOptions controls RenderResult.
type RenderOptions struct {
	Width int
	// Style is a glamour standard style ("dark", "light", "notty"). Empty
	// means auto-detect.
	Style string
	Cards *card.Renderer
}

// RenderResult formats a finished turn for the terminal: the answer as
// markdown with numbered citations and a references list, then any cards
// and the follow-up suggestion.
func RenderResult(res stream.Result, opts RenderOptions) string {
	width := opts.Width
	if width <= 0 {
		width = 80
	}
	cards := opts.Cards
	if cards == nil {
		cards = card.NewRenderer(nil)
	}

	var b strings.Builder
	if res.Err != nil {
		b.WriteString(errorMsgStyle.Render("  " + res.Text))
		b.WriteString("\n")
		return b.String()
	}

	text, cites := citation.Clean(res.Raw, citation.ModeMarkdown, res.Metadata)
	md := text + citation.FormatReferencesMarkdown(cites)
	if strings.TrimSpace(md) != "" {
		b.WriteString(renderMarkdown(md, opts.Style, width))
	}

	for _, p := range res.Cards {
		if out := RenderCard(cards, p, width-2); out != "" {
			b.WriteString(indentText(out, "  "))
			b.WriteString("\n")
		}
	}

	if res.Suggestion != "" {
		b.WriteString("\n")
		b.WriteString(suggestionStyle.Render("  💡 " + res.Suggestion))
		b.WriteString("\n")
	}
	return b.String()
}

func renderMarkdown(md, style string, width int) string {
	r, err := newMarkdownRenderer(style, width)
	if err != nil {
		return indentText(md, "  ") + "\n"
	}
	out, err := r.Render(md)
	if err != nil {
		return indentText(md, "  ") + "\n"
	}
	return out
}

// renderThoughts lists the agent's reasoning steps once a turn is done.
func renderThoughts(thoughts []agent.Thought) string {
	if len(thoughts) == 0 {
		return ""
	}
	lines := []string{thoughtHeaderStyle.Render("  🧠 Thoughts")}
	for _, t := range thoughts {
		line := t.Text
		if t.Task != "" {
			line = t.Task + ": " + t.Text
		}
		lines = append(lines, thoughtStyle.Render("     · "+line))
	}
	return strings.Join(lines, "\n")
}

// liveThought is the one-line view of the newest reasoning step.
func liveThought(thoughts []agent.Thought) string {
	if len(thoughts) == 0 {
		return ""
	}
	t := thoughts[len(thoughts)-1]
	if t.Task != "" {
		return "🧠 " + t.Task + ": " + t.Text
	}
	return "🧠 " + t.Text
}

// tail returns the last n lines of s.
func tail(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

func indentText(text, prefix string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if line != "" {
			lines[i] = prefix + line
		}
	}
	return strings.Join(lines, "\n")
}
