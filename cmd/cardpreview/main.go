// Command cardpreview renders an adaptive card JSON file the way the chat
// shows it, in the terminal and as sanitized HTML.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"copilot-chat/internal/agent"
	"copilot-chat/internal/card"
	"copilot-chat/internal/markup"
	"copilot-chat/internal/tui"
)

const (
	gray  = "\033[38;5;242m"
	reset = "\033[0m"
	bold  = "\033[1m"
	dim   = "\033[2m"
)

var (
	width    int
	htmlOnly bool
	debug    bool
)

var rootCmd = &cobra.Command{
	Use:          "cardpreview [file.json]",
	Short:        "Preview an adaptive card in the terminal and as HTML",
	Args:         cobra.MaximumNArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := zap.NewNop()
		if debug {
			l, err := zap.NewDevelopment()
			if err != nil {
				return err
			}
			logger = l
		}
		path := ""
		if len(args) == 1 {
			path = args[0]
		}
		return run(cmd.OutOrStdout(), path, width, htmlOnly, logger)
	},
}

func init() {
	rootCmd.Flags().IntVar(&width, "width", 80, "Terminal width")
	rootCmd.Flags().BoolVar(&htmlOnly, "html", false, "Print only the HTML rendering")
	rootCmd.Flags().BoolVar(&debug, "debug", false, "Log skipped elements")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(w io.Writer, path string, width int, htmlOnly bool, logger *zap.Logger) error {
	data, err := readInput(path)
	if err != nil {
		return err
	}
	c, err := card.Parse(data)
	if err != nil {
		return err
	}

	r := card.NewRenderer(logger)

	if !htmlOnly {
		fmt.Fprintln(w)
		fmt.Fprintln(w, bold+"═══ Terminal ═══"+reset)
		fmt.Fprintln(w)
		out := tui.RenderCard(r, agent.CardPayload{JSON: json.RawMessage(data)}, width)
		if out == "" {
			out = dim + "(nothing to render for type " + c.Type + ")" + reset
		}
		fmt.Fprintln(w, out)
		fmt.Fprintln(w)
		fmt.Fprintln(w, bold+"═══ HTML ═══"+reset)
		fmt.Fprintln(w)
	}

	html := markup.Sanitize(r.RenderHTML(c))
	if html == "" {
		fmt.Fprintln(w, gray+"(empty)"+reset)
		return nil
	}
	fmt.Fprintln(w, html)
	return nil
}

// readInput reads path, or stdin when path is empty or "-".
func readInput(path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(os.Stdin)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading card: %w", err)
	}
	return data, nil
}
