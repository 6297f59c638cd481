package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"copilot-chat/internal/agent"
	"copilot-chat/internal/card"
	"copilot-chat/internal/citation"
	"copilot-chat/internal/display"
	"copilot-chat/internal/stream"
	"copilot-chat/internal/tui"
)

var (
	askJSON  bool
	askStyle string
	askWidth int
)

var askCmd = &cobra.Command{
	Use:   "ask <prompt>",
	Short: "Ask a single question and print the answer",
	Long: `Starts a conversation, sends one prompt and prints the rendered answer with
its references. Use --json for machine-readable output.`,
	Example: `  copilot-chat ask "What is our travel policy?"
  copilot-chat ask --json "Summarize the Q3 report" | jq .text`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().BoolVar(&askJSON, "json", false, "Print the answer as JSON")
	askCmd.Flags().StringVar(&askStyle, "style", "", "Markdown style: dark, light or notty (default auto)")
	askCmd.Flags().IntVar(&askWidth, "width", 100, "Wrap width for the rendered answer")
}

func runAsk(cmd *cobra.Command, args []string) error {
	prompt := strings.TrimSpace(strings.Join(args, " "))
	if prompt == "" {
		return fmt.Errorf("prompt is empty")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	sess := sessionMaker(cfg)()
	if !askJSON {
		display.Spinner("Connecting to Copilot Studio...")
	}
	err = sess.Connect(ctx)
	if !askJSON {
		display.ClearLine()
	}
	if err != nil {
		return err
	}

	var obs stream.Observer = stream.NopObserver{}
	if !askJSON {
		obs = &consoleObserver{w: display.Err, showThoughts: verbose}
	}

	res, err := sess.Submit(ctx, prompt, obs)
	if err != nil {
		return err
	}

	if askJSON {
		if err := printAnswerJSON(cmd.OutOrStdout(), res); err != nil {
			return err
		}
	} else {
		fmt.Fprintln(cmd.OutOrStdout(), tui.RenderResult(res, tui.RenderOptions{
			Width: askWidth,
			Style: askStyle,
			Cards: card.NewRenderer(logger.Named("card")),
		}))
	}
	return res.Err
}

// answer is the --json shape of a finished turn.
type answer struct {
	Text       string              `json:"text"`
	Citations  []citation.Citation `json:"citations,omitempty"`
	Thoughts   []agent.Thought     `json:"thoughts,omitempty"`
	Cards      []json.RawMessage   `json:"cards,omitempty"`
	Suggestion string              `json:"suggestion,omitempty"`
	Error      string              `json:"error,omitempty"`
}

func printAnswerJSON(w io.Writer, res stream.Result) error {
	text, cites := citation.Clean(res.Raw, citation.ModeMarkdown, res.Metadata)
	out := answer{
		Text:       text,
		Citations:  cites,
		Thoughts:   res.Thoughts,
		Suggestion: res.Suggestion,
	}
	if res.Err != nil {
		out.Text = res.Text
		out.Citations = nil
		out.Error = res.Err.Error()
	}
	for _, c := range res.Cards {
		if c.IsHTML() || !json.Valid(c.JSON) {
			src := c.HTML
			if !c.IsHTML() {
				src = string(c.JSON)
			}
			raw, err := json.Marshal(src)
			if err != nil {
				return err
			}
			out.Cards = append(out.Cards, raw)
			continue
		}
		out.Cards = append(out.Cards, c.JSON)
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding answer: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// consoleObserver shows turn progress on a single terminal line.
type consoleObserver struct {
	w            io.Writer
	showThoughts bool
	printed      int
}

func (o *consoleObserver) Status(text string) {
	fmt.Fprintf(o.w, "\r\033[K  %s⠋%s %s", display.Cyan, display.Reset, text)
}

func (o *consoleObserver) ClearStatus() {
	fmt.Fprint(o.w, "\r\033[K")
}

func (o *consoleObserver) Thoughts(thoughts []agent.Thought, complete bool) {
	if !o.showThoughts {
		return
	}
	for _, t := range thoughts[min(o.printed, len(thoughts)):] {
		label := t.Task
		if label == "" {
			label = "thinking"
		}
		fmt.Fprintf(o.w, "\r\033[K  %s🧠 %s:%s %s\n", display.Gray, label, display.Reset, t.Text)
	}
	o.printed = len(thoughts)
}

func (o *consoleObserver) Partial(string) {}

func (o *consoleObserver) Error(message string) {
	fmt.Fprintf(o.w, "\r\033[K  %s✗%s %s\n", display.Red, display.Reset, message)
}
