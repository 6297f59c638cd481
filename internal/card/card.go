// Package card parses adaptive-card JSON into a closed set of element
// types and renders them onto a display surface.
package card

import (
	"encoding/json"
	"fmt"
)

// Card is a parsed adaptive card.
type Card struct {
	Type    string
	Version string
	Body    []Element
}

// Element is one node of a card body. The set of implementations is closed.
type Element interface {
	elementType() string
}

// TextBlock is a run of text with size, weight and alignment hints.
type TextBlock struct {
	Text                string `json:"text"`
	Size                string `json:"size"`
	Weight              string `json:"weight"`
	HorizontalAlignment string `json:"horizontalAlignment"`
	IsSubtle            bool   `json:"isSubtle"`
	Wrap                bool   `json:"wrap"`
}

// Image is a picture referenced by URL.
type Image struct {
	URL     string `json:"url"`
	AltText string `json:"altText"`
	Size    string `json:"size"`
}

// Container groups elements.
type Container struct {
	Items []Element
}

// Column is one column of a ColumnSet.
type Column struct {
	Width string
	Items []Element
}

// ColumnSet lays columns side by side.
type ColumnSet struct {
	Columns []Column
}

// ProgressBar is shown as a fixed placeholder; cards carry no usable value.
type ProgressBar struct{}

// Action is a button. Actions are display-only.
type Action struct {
	Type  string `json:"type"`
	Title string `json:"title"`
	URL   string `json:"url,omitempty"`
}

// ActionSet is a row of buttons.
type ActionSet struct {
	Actions             []Action
	HorizontalAlignment string
}

// Unknown stands in for unrecognized or malformed elements.
type Unknown struct {
	Type string
}

func (TextBlock) elementType() string   { return "TextBlock" }
func (Image) elementType() string       { return "Image" }
func (Container) elementType() string   { return "Container" }
func (ColumnSet) elementType() string   { return "ColumnSet" }
func (ProgressBar) elementType() string { return "ProgressBar" }
func (ActionSet) elementType() string   { return "ActionSet" }
func (u Unknown) elementType() string   { return u.Type }

// parseMaxDepth bounds recursion while decoding. Deeper nodes become Unknown;
// the renderer applies its own, tighter limit.
const parseMaxDepth = 64

// Parse decodes card JSON. Only a document that is not a JSON object is an
// error; malformed elements are kept as Unknown so the rest still renders.
func Parse(data []byte) (*Card, error) {
	var raw struct {
		Type    string            `json:"type"`
		Version string            `json:"version"`
		Body    []json.RawMessage `json:"body"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing adaptive card: %w", err)
	}
	return &Card{
		Type:    raw.Type,
		Version: raw.Version,
		Body:    parseElements(raw.Body, 0),
	}, nil
}

func parseElements(raws []json.RawMessage, depth int) []Element {
	out := make([]Element, 0, len(raws))
	for _, r := range raws {
		out = append(out, parseElement(r, depth))
	}
	return out
}

func parseElement(data json.RawMessage, depth int) Element {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return Unknown{}
	}
	if depth >= parseMaxDepth {
		return Unknown{Type: head.Type}
	}

	switch head.Type {
	case "TextBlock":
		var tb TextBlock
		if err := json.Unmarshal(data, &tb); err != nil {
			return Unknown{Type: head.Type}
		}
		return tb
	case "Image":
		var img Image
		if err := json.Unmarshal(data, &img); err != nil {
			return Unknown{Type: head.Type}
		}
		return img
	case "Container":
		var c struct {
			Items []json.RawMessage `json:"items"`
		}
		if err := json.Unmarshal(data, &c); err != nil {
			return Unknown{Type: head.Type}
		}
		return Container{Items: parseElements(c.Items, depth+1)}
	case "ColumnSet":
		var cs struct {
			Columns []struct {
				Width json.RawMessage   `json:"width"`
				Items []json.RawMessage `json:"items"`
			} `json:"columns"`
		}
		if err := json.Unmarshal(data, &cs); err != nil {
			return Unknown{Type: head.Type}
		}
		set := ColumnSet{Columns: make([]Column, 0, len(cs.Columns))}
		for _, col := range cs.Columns {
			set.Columns = append(set.Columns, Column{
				Width: widthString(col.Width),
				Items: parseElements(col.Items, depth+1),
			})
		}
		return set
	case "ProgressBar":
		return ProgressBar{}
	case "ActionSet":
		var as struct {
			Actions             []json.RawMessage `json:"actions"`
			HorizontalAlignment string            `json:"horizontalAlignment"`
		}
		if err := json.Unmarshal(data, &as); err != nil {
			return Unknown{Type: head.Type}
		}
		set := ActionSet{HorizontalAlignment: as.HorizontalAlignment}
		for _, ra := range as.Actions {
			var a Action
			if err := json.Unmarshal(ra, &a); err != nil {
				continue
			}
			set.Actions = append(set.Actions, a)
		}
		return set
	default:
		return Unknown{Type: head.Type}
	}
}

// Column widths are "auto", "stretch", or a number.
func widthString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
