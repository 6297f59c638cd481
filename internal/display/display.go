package display

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

const (
	Reset   = "\033[0m"
	Bold    = "\033[1m"
	Dim     = "\033[2m"
	Red     = "\033[31m"
	Green   = "\033[32m"
	Yellow  = "\033[33m"
	Blue    = "\033[34m"
	Magenta = "\033[35m"
	Cyan    = "\033[36m"
	White   = "\033[37m"
	Gray    = "\033[90m"
)

// Out and Err are where output goes. Tests swap them.
var (
	Out io.Writer = os.Stdout
	Err io.Writer = os.Stderr
)

func Header(text string) {
	fmt.Fprintf(Out, "\n%s%s%s\n", Bold+Cyan, text, Reset)
	fmt.Fprintln(Out, strings.Repeat("─", min(len(text)+4, 80)))
}

func SubHeader(text string) {
	fmt.Fprintf(Out, "%s%s%s\n", Bold+White, text, Reset)
}

func Success(text string) {
	fmt.Fprintf(Out, "%s✓%s %s\n", Green, Reset, text)
}

func Error(text string) {
	fmt.Fprintf(Err, "%s✗%s %s\n", Red, Reset, text)
}

func Warn(text string) {
	fmt.Fprintf(Out, "%s!%s %s\n", Yellow, Reset, text)
}

func Info(label, value string) {
	fmt.Fprintf(Out, "  %s%-20s%s %s\n", Dim, label, Reset, value)
}

func Spinner(text string) {
	fmt.Fprintf(Out, "\r%s⟳%s %s", Yellow, Reset, text)
}

func ClearLine() {
	fmt.Fprint(Out, "\r\033[K")
}

// EventLabel is the colored label for a stream event kind.
func EventLabel(kind string) string {
	labels := map[string]string{
		"status":        Yellow + "⟳ Status" + Reset,
		"thought":       Magenta + "🧠 Thinking" + Reset,
		"content":       Green + "💬 Response" + Reset,
		"final_content": Green + "💬 Response" + Reset,
		"citations":     Blue + "📎 Citations" + Reset,
		"search_result": Blue + "🔎 Search" + Reset,
		"adaptive_card": Cyan + "📋 Card" + Reset,
		"attachment":    Gray + "📎 Attachment" + Reset,
		"suggestion":    Cyan + "💡 Suggestion" + Reset,
	}
	if label, ok := labels[kind]; ok {
		return label
	}
	return Gray + kind + Reset
}

// Mask hides all but the last four characters of a secret.
func Mask(secret string) string {
	if secret == "" {
		return Gray + "(not set)" + Reset
	}
	if len(secret) <= 8 {
		return "****"
	}
	return "****" + secret[len(secret)-4:]
}

// FormatExpiry describes a token expiry relative to now.
func FormatExpiry(t, now time.Time) string {
	if t.IsZero() {
		return Gray + "unknown" + Reset
	}
	d := t.Sub(now).Round(time.Minute)
	if d <= 0 {
		return Red + "expired " + (-d).String() + " ago" + Reset
	}
	return Green + "in " + d.String() + Reset + " (" + t.Local().Format("2006-01-02 15:04:05") + ")"
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
