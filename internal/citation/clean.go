package citation

import (
	"fmt"
	"html"
	"regexp"
	"strings"
)

// Mode selects how Clean rewrites markers.
type Mode int

const (
	// ModePlain strips markers. Used for live, partial display.
	ModePlain Mode = iota
	// ModeHTML replaces markers with superscript links to #cite-N anchors.
	ModeHTML
	// ModeMarkdown replaces markers with a literal [N] for terminal output.
	ModeMarkdown
)

// Marker grammar:
//
//	U+E200 "cite" U+E202 ID (U+E202 ID)* U+E201   grounding markers
//	[ID]                                         bracket markers, unless followed by "(" (a markdown link)
var markerRe = regexp.MustCompile(
	`\x{E200}cite((?:\x{E202}[^\x{E200}-\x{E202}]+)+)\x{E201}` +
		`|\[([A-Za-z0-9_.:\-]+)\](\()?`)

const groundingSep = "\uE202"

// Reference definitions some producers append: [1]: https://example.com "Title"
var refDefRe = regexp.MustCompile(`(?m)^[ \t]*\[([^\]\s]+)\]:[ \t]*(\S+)(?:[ \t]+"([^"]*)")?[ \t]*\r?$\n?`)

var producerIDRe = regexp.MustCompile(`^turn\d+[a-z]+\d+$`)

// Fenced blocks (``` or ~~~, closed or running to the end) and inline code
// spans. Markers inside them are code, not citations.
var codeRe = regexp.MustCompile("(?ms)" +
	"^[ \t]*```.*?(?:^[ \t]*```[ \t]*$|\\z)" +
	"|^[ \t]*~~~.*?(?:^[ \t]*~~~[ \t]*$|\\z)" +
	"|``[^\n]+?``" +
	"|`[^`\n]+`")

// Clean rewrites citation markers in text and returns the displayed text
// with the ordered, URL-deduplicated citation list.
//
// Ordinals follow first appearance in the text, starting at 1. Markers whose
// entry has no URL are removed and produce no ordinal. Bracketed text that is
// not a citation marker is left untouched, as is everything inside code spans
// and fenced code blocks. meta is not modified.
func Clean(text string, mode Mode, meta Map) (string, []Citation) {
	text, defs := extractDefinitions(text)
	resolved := meta.Clone()
	for id, d := range defs {
		cur, ok := resolved[id]
		if !ok {
			resolved[id] = d
			continue
		}
		if cur.URL == "" {
			cur.URL = d.URL
		}
		if cur.Title == "" {
			cur.Title = d.Title
		}
	}

	var (
		out       strings.Builder
		cites     []Citation
		byURL     = make(map[string]int) // url -> index into cites
		lastIndex int
	)

	code := codeRanges(text)
	matches := markerRe.FindAllStringSubmatchIndex(text, -1)
	for _, m := range matches {
		start, end := m[0], m[1]
		if inRanges(code, start) {
			continue
		}
		var ids []string
		switch {
		case m[2] >= 0:
			for _, id := range strings.Split(text[m[2]:m[3]], groundingSep) {
				if id = strings.TrimSpace(id); id != "" {
					ids = append(ids, id)
				}
			}
		case m[6] >= 0:
			// [text](url) is a link, not a marker.
			continue
		default:
			id := text[m[4]:m[5]]
			if !isMarker(id, resolved) {
				continue
			}
			ids = []string{id}
		}

		out.WriteString(text[lastIndex:start])
		lastIndex = end

		var ordinals []int
		for _, id := range ids {
			e := resolved[id]
			if e == nil || strings.TrimSpace(e.URL) == "" {
				continue
			}
			key := strings.TrimSpace(e.URL)
			i, seen := byURL[key]
			if !seen {
				i = len(cites)
				byURL[key] = i
				cites = append(cites, Citation{Ordinal: i + 1, URL: key, Title: e.Title})
			}
			c := &cites[i]
			if !containsString(c.IDs, id) {
				c.IDs = append(c.IDs, id)
			}
			if c.Title == "" {
				c.Title = e.Title
			}
			if !containsInt(ordinals, c.Ordinal) {
				ordinals = append(ordinals, c.Ordinal)
			}
		}
		out.WriteString(formatMarker(ordinals, mode))
	}
	out.WriteString(text[lastIndex:])

	return out.String(), cites
}

// isMarker reports whether [id] refers to a citation. Plain numbers only
// count when the turn declared them, so index expressions like xs[0] survive.
func isMarker(id string, meta Map) bool {
	if _, ok := meta[id]; ok {
		return true
	}
	return producerIDRe.MatchString(id)
}

func codeRanges(text string) [][]int {
	return codeRe.FindAllStringIndex(text, -1)
}

func inRanges(ranges [][]int, pos int) bool {
	for _, r := range ranges {
		if pos >= r[0] && pos < r[1] {
			return true
		}
	}
	return false
}

func formatMarker(ordinals []int, mode Mode) string {
	if len(ordinals) == 0 || mode == ModePlain {
		return ""
	}
	var b strings.Builder
	for _, n := range ordinals {
		switch mode {
		case ModeHTML:
			fmt.Fprintf(&b, `<sup class="citation"><a href="#cite-%d">[%d]</a></sup>`, n, n)
		case ModeMarkdown:
			fmt.Fprintf(&b, "[%d]", n)
		}
	}
	return b.String()
}

// extractDefinitions removes trailing-style reference definitions and returns
// what they declared. Only http(s) targets count as URLs.
func extractDefinitions(text string) (string, Map) {
	defs := make(Map)
	code := codeRanges(text)
	var (
		cleaned strings.Builder
		last    int
	)
	for _, m := range refDefRe.FindAllStringSubmatchIndex(text, -1) {
		if inRanges(code, m[0]) {
			continue
		}
		e := &Entry{}
		if m[6] >= 0 {
			e.Title = text[m[6]:m[7]]
		}
		target := text[m[4]:m[5]]
		if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
			e.URL = target
		}
		defs[text[m[2]:m[3]]] = e
		cleaned.WriteString(text[last:m[0]])
		last = m[1]
	}
	if len(defs) == 0 {
		return text, defs
	}
	cleaned.WriteString(text[last:])
	return strings.TrimRight(cleaned.String(), "\n") + trailingNewline(text), defs
}

func trailingNewline(s string) string {
	if strings.HasSuffix(strings.TrimRight(s, " \t"), "\n") {
		return "\n"
	}
	return ""
}

// FormatReferencesHTML renders the trailing references block: one line per
// ordinal with an anchor the inline markers point at.
func FormatReferencesHTML(cites []Citation) string {
	if len(cites) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n\n<div class=\"references\"><hr><p><strong>References</strong></p>")
	for _, c := range cites {
		fmt.Fprintf(&b, `<div id="cite-%d">[%d] <a href="%s" target="_blank" rel="noopener noreferrer">%s</a></div>`,
			c.Ordinal, c.Ordinal, html.EscapeString(c.URL), html.EscapeString(c.Label()))
	}
	b.WriteString("</div>\n")
	return b.String()
}

// FormatReferencesMarkdown is the terminal counterpart of FormatReferencesHTML.
func FormatReferencesMarkdown(cites []Citation) string {
	if len(cites) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n\n---\n\n**References**\n\n")
	for _, c := range cites {
		label := strings.NewReplacer("[", "(", "]", ")").Replace(c.Label())
		fmt.Fprintf(&b, "%d. [%s](%s)\n", c.Ordinal, label, c.URL)
	}
	return b.String()
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func containsInt(list []int, n int) bool {
	for _, v := range list {
		if v == n {
			return true
		}
	}
	return false
}
