package tui

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"copilot-chat/internal/session"
)

type Options struct {
	Session *session.Session
	Version string
	// Agent and User are shown in the welcome banner.
	Agent string
	User  string
	// Style is the glamour style for answers; empty auto-detects.
	Style  string
	Logger *zap.Logger
}

// Run launches the interactive chat (inline, output scrolls above the prompt).
func Run(opts Options) error {
	p := tea.NewProgram(initialModel(opts))

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}

	return nil
}
