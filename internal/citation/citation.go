// Package citation resolves inline citation markers in agent text into
// numbered references.
package citation

import (
	"regexp"
	"strconv"
)

// Entry is what the producer tells us about one citation ID.
// URL and Title may be back-filled from search results while a turn is open.
type Entry struct {
	URL   string `json:"url,omitempty"`
	Title string `json:"title,omitempty"`
	Text  string `json:"text,omitempty"`
}

// Map holds citation entries keyed by producer-assigned ID (e.g. "turn52search0").
type Map map[string]*Entry

// SearchResult is a search hit announced during a turn. Citation IDs refer
// to it through the numeric suffix of the ID.
type SearchResult struct {
	Index int    `json:"index"`
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
}

// Citation is one deduplicated, numbered reference.
type Citation struct {
	Ordinal int      `json:"ordinal"`
	IDs     []string `json:"ids"`
	URL     string   `json:"url"`
	Title   string   `json:"title,omitempty"`
}

// Label is the text shown for the reference: its title, else its URL.
func (c Citation) Label() string {
	if c.Title != "" {
		return c.Title
	}
	return c.URL
}

var searchSuffixRe = regexp.MustCompile(`search(\d+)$`)

// SearchIndex extracts N from IDs ending in "search<N>".
// The convention is a producer habit, not a contract.
func SearchIndex(id string) (int, bool) {
	m := searchSuffixRe.FindStringSubmatch(id)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// Backfill copies URL (and Title, if the entry has none) from the first
// search result whose Index matches the ID's numeric suffix. It reports
// whether the entry changed. Entries that already have a URL are left alone.
func Backfill(id string, e *Entry, results []SearchResult) bool {
	if e == nil || e.URL != "" {
		return false
	}
	idx, ok := SearchIndex(id)
	if !ok {
		return false
	}
	for _, r := range results {
		if r.Index != idx {
			continue
		}
		if r.URL == "" {
			return false
		}
		e.URL = r.URL
		if e.Title == "" {
			e.Title = r.Title
		}
		return true
	}
	return false
}

// Resolve back-fills every entry in m that still lacks a URL.
func Resolve(m Map, results []SearchResult) {
	for id, e := range m {
		Backfill(id, e, results)
	}
}

// Merge folds src into dst. Non-empty fields win; an existing URL is never
// replaced by an empty one.
func Merge(dst, src Map) {
	for id, e := range src {
		if e == nil {
			continue
		}
		cur, ok := dst[id]
		if !ok || cur == nil {
			cp := *e
			dst[id] = &cp
			continue
		}
		if e.URL != "" {
			cur.URL = e.URL
		}
		if e.Title != "" {
			cur.Title = e.Title
		}
		if e.Text != "" {
			cur.Text = e.Text
		}
	}
}

// Clone returns a deep copy of m.
func (m Map) Clone() Map {
	out := make(Map, len(m))
	for id, e := range m {
		if e == nil {
			continue
		}
		cp := *e
		out[id] = &cp
	}
	return out
}
