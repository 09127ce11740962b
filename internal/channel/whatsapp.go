package channel

import (
	"encoding/json"
	"strconv"
	"time"
)

// whatsAppPayload mirrors the Meta Cloud API webhook envelope: the message
// id sits four levels deep under entry/changes/value/messages.
type whatsAppPayload struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Contacts []struct {
					WaID    string `json:"wa_id"`
					Profile struct {
						Name string `json:"name"`
					} `json:"profile"`
				} `json:"contacts"`
				Messages []struct {
					ID        string `json:"id"`
					From      string `json:"from"`
					Timestamp string `json:"timestamp"`
					Type      string `json:"type"`
					Text      struct {
						Body string `json:"body"`
					} `json:"text"`
					Document struct {
						Filename string `json:"filename"`
						MimeType string `json:"mime_type"`
						Link     string `json:"link"`
						SHA256   string `json:"sha256"`
					} `json:"document"`
				} `json:"messages"`
				Metadata struct {
					DisplayPhoneNumber string `json:"display_phone_number"`
				} `json:"metadata"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type WhatsAppAdapter struct{}

func (a *WhatsAppAdapter) Channel() Channel { return WhatsApp }

// ExtractExternalID walks entry[0].changes[0].value.messages[0].id. A batch
// with zero messages yields "" so the caller falls back to checksum dedup.
func (a *WhatsAppAdapter) ExtractExternalID(payload json.RawMessage) string {
	var p whatsAppPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return ""
	}
	if len(p.Entry) == 0 || len(p.Entry[0].Changes) == 0 {
		return ""
	}
	msgs := p.Entry[0].Changes[0].Value.Messages
	if len(msgs) == 0 {
		return ""
	}
	return msgs[0].ID
}

func (a *WhatsAppAdapter) ParseWebhook(payload json.RawMessage) (*PartialMessage, error) {
	var p whatsAppPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, err
	}
	msg := &PartialMessage{Direction: "INBOUND"}
	if len(p.Entry) == 0 || len(p.Entry[0].Changes) == 0 {
		return msg, nil
	}
	value := p.Entry[0].Changes[0].Value
	if value.Metadata.DisplayPhoneNumber != "" {
		msg.Recipient = &Party{Phone: value.Metadata.DisplayPhoneNumber}
	}
	if len(value.Contacts) > 0 {
		msg.Sender = &Party{
			Name:       value.Contacts[0].Profile.Name,
			Phone:      value.Contacts[0].WaID,
			ExternalID: value.Contacts[0].WaID,
		}
	}
	if len(value.Messages) == 0 {
		return msg, nil
	}
	m := value.Messages[0]
	msg.ExternalID = m.ID
	msg.Body = m.Text.Body
	if msg.Sender == nil && m.From != "" {
		msg.Sender = &Party{Phone: m.From}
	}
	if ts, err := strconv.ParseInt(m.Timestamp, 10, 64); err == nil {
		msg.ReceivedAt = time.Unix(ts, 0).UTC()
	}
	if m.Type == "document" || m.Document.Filename != "" || m.Document.Link != "" {
		msg.Attachments = append(msg.Attachments, Attachment{
			Filename: m.Document.Filename,
			MimeType: m.Document.MimeType,
			URL:      m.Document.Link,
			Checksum: m.Document.SHA256,
		})
	}
	return msg, nil
}

// ValidateSignature checks the X-Hub-Signature-256 style header:
// "sha256=" + hex HMAC-SHA256 over the raw body.
func (a *WhatsAppAdapter) ValidateSignature(signature string, raw []byte, secret string) bool {
	return verifyPrefixedHMAC(signature, "sha256=", raw, secret)
}
