package channel

import (
	"encoding/base64"
	"encoding/json"
	"time"
)

// emailPayload mirrors the inbound-parse shape used by transactional email
// providers (message id at the top level, parsed address objects, optional
// base64 attachment content).
type emailPayload struct {
	MessageID string        `json:"message_id"`
	From      *emailAddress `json:"from"`
	To        *emailAddress `json:"to"`
	Subject   string        `json:"subject"`
	Text      string        `json:"text"`
	HTML      string        `json:"html"`
	Date      string        `json:"date"`
	Attachments []struct {
		Filename    string `json:"filename"`
		ContentType string `json:"content_type"`
		Size        int64  `json:"size"`
		URL         string `json:"url"`
		Content     string `json:"content"`
	} `json:"attachments"`
}

type emailAddress struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type EmailAdapter struct{}

func (a *EmailAdapter) Channel() Channel { return Email }

func (a *EmailAdapter) ExtractExternalID(payload json.RawMessage) string {
	var p emailPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return ""
	}
	return p.MessageID
}

func (a *EmailAdapter) ParseWebhook(payload json.RawMessage) (*PartialMessage, error) {
	var p emailPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, err
	}
	msg := &PartialMessage{
		Direction:  "INBOUND",
		ExternalID: p.MessageID,
		Subject:    p.Subject,
		Body:       p.Text,
		BodyHTML:   p.HTML,
		ReceivedAt: parseMailDate(p.Date),
	}
	if p.From != nil {
		msg.Sender = &Party{Name: p.From.Name, Email: p.From.Email}
	}
	if p.To != nil {
		msg.Recipient = &Party{Name: p.To.Name, Email: p.To.Email}
	}
	for _, att := range p.Attachments {
		entry := Attachment{
			Filename: att.Filename,
			MimeType: att.ContentType,
			Size:     att.Size,
			URL:      att.URL,
		}
		if att.Content != "" {
			if data, err := base64.StdEncoding.DecodeString(att.Content); err == nil {
				entry.Data = data
				if entry.Size == 0 {
					entry.Size = int64(len(data))
				}
			}
		}
		msg.Attachments = append(msg.Attachments, entry)
	}
	return msg, nil
}

func parseMailDate(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339, time.RFC1123Z, time.RFC1123} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
