package channel

import (
	"encoding/json"
	"strings"
	"time"
)

// linkedInPayload mirrors a LinkedIn messaging webhook.
type linkedInPayload struct {
	MessageID string `json:"messageId"`
	From      struct {
		FirstName  string `json:"firstName"`
		LastName   string `json:"lastName"`
		ProfileURN string `json:"profileUrn"`
	} `json:"from"`
	RecipientURN string `json:"recipientUrn"`
	Subject      string `json:"subject"`
	Text         string `json:"text"`
	CreatedAt    int64  `json:"createdAt"`
}

type LinkedInAdapter struct{}

func (a *LinkedInAdapter) Channel() Channel { return LinkedIn }

func (a *LinkedInAdapter) ExtractExternalID(payload json.RawMessage) string {
	var p linkedInPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return ""
	}
	return p.MessageID
}

func (a *LinkedInAdapter) ParseWebhook(payload json.RawMessage) (*PartialMessage, error) {
	var p linkedInPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, err
	}
	msg := &PartialMessage{
		Direction:  "INBOUND",
		ExternalID: p.MessageID,
		Subject:    p.Subject,
		Body:       p.Text,
	}
	name := strings.TrimSpace(p.From.FirstName + " " + p.From.LastName)
	if name != "" || p.From.ProfileURN != "" {
		msg.Sender = &Party{Name: name, ExternalID: p.From.ProfileURN}
	}
	if p.RecipientURN != "" {
		msg.Recipient = &Party{ExternalID: p.RecipientURN}
	}
	if p.CreatedAt > 0 {
		msg.ReceivedAt = time.UnixMilli(p.CreatedAt).UTC()
	}
	return msg, nil
}
