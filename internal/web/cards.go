package web

import (
	"bytes"
	"encoding/json"
	"html/template"
	"strings"

	"go.uber.org/zap"

	"copilot-chat/internal/agent"
	"copilot-chat/internal/card"
	"copilot-chat/internal/markup"
)

// cardView is a card ready for the page: sanitized HTML plus its source for
// the "view raw" toggle. Payloads we cannot draw keep only the source.
type cardView struct {
	HTML template.HTML `json:"html,omitempty"`
	JSON string        `json:"json,omitempty"`
	Raw  string        `json:"raw,omitempty"`
}

func (s *Server) renderCards(payloads []agent.CardPayload) []cardView {
	var views []cardView
	for _, p := range payloads {
		if v, ok := s.renderCard(p); ok {
			views = append(views, v)
		}
	}
	return views
}

func (s *Server) renderCard(p agent.CardPayload) (cardView, bool) {
	if p.IsHTML() {
		if strings.TrimSpace(p.HTML) == "" {
			return cardView{}, false
		}
		return cardView{HTML: template.HTML(markup.Sanitize(p.HTML)), Raw: p.HTML}, true
	}
	if len(bytes.TrimSpace(p.JSON)) == 0 {
		return cardView{}, false
	}

	var v cardView
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, p.JSON, "", "  "); err == nil {
		v.JSON = pretty.String()
	} else {
		v.Raw = string(p.JSON)
	}

	c, err := card.Parse(p.JSON)
	if err != nil {
		s.logger.Debug("showing unreadable card as source", zap.Error(err))
		return v, true
	}
	if rendered := s.cards.RenderHTML(c); rendered != "" {
		v.HTML = template.HTML(markup.Sanitize(rendered))
	} else {
		s.logger.Debug("showing card as source", zap.String("type", c.Type))
	}
	return v, true
}
