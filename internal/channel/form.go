package channel

import (
	"encoding/json"
	"sort"
	"strings"
	"time"
)

// formPayload mirrors a website contact-form submission: a free-form field
// map plus a few well-known keys the site guarantees.
type formPayload struct {
	FormID       string            `json:"form_id"`
	SubmissionID string            `json:"submission_id"`
	SubmittedAt  string            `json:"submitted_at"`
	Fields       map[string]string `json:"fields"`
}

type FormAdapter struct{}

func (a *FormAdapter) Channel() Channel { return Form }

func (a *FormAdapter) ExtractExternalID(payload json.RawMessage) string {
	var p formPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return ""
	}
	return p.SubmissionID
}

func (a *FormAdapter) ParseWebhook(payload json.RawMessage) (*PartialMessage, error) {
	var p formPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, err
	}
	msg := &PartialMessage{
		Direction:  "INBOUND",
		ExternalID: p.SubmissionID,
		Subject:    p.Fields["subject"],
		Metadata:   map[string]string{"form_id": p.FormID},
	}
	sender := &Party{
		Email: p.Fields["email"],
		Phone: p.Fields["phone"],
		Name:  strings.TrimSpace(strings.TrimSpace(p.Fields["first_name"]) + " " + strings.TrimSpace(p.Fields["last_name"])),
	}
	if sender.Name == "" {
		sender.Name = strings.TrimSpace(p.Fields["name"])
	}
	if !sender.Empty() {
		msg.Sender = sender
	}
	msg.DossierTitle = p.Fields["dossier"]
	if body := p.Fields["message"]; body != "" {
		msg.Body = body
	} else {
		// No message field: flatten remaining fields into body lines so the
		// submission is still readable downstream.
		keys := make([]string, 0, len(p.Fields))
		for k := range p.Fields {
			switch k {
			case "email", "phone", "first_name", "last_name", "name", "subject", "dossier":
				continue
			}
			keys = append(keys, k)
		}
		sort.Strings(keys)
		lines := make([]string, 0, len(keys))
		for _, k := range keys {
			lines = append(lines, k+": "+p.Fields[k])
		}
		msg.Body = strings.Join(lines, "\n")
	}
	if t, err := time.Parse(time.RFC3339, p.SubmittedAt); err == nil {
		msg.ReceivedAt = t
	}
	return msg, nil
}
