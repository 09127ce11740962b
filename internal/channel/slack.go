package channel

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// slackPayload mirrors the Slack Events API envelope.
type slackPayload struct {
	EventID string `json:"event_id"`
	TeamID  string `json:"team_id"`
	Event   struct {
		Type     string `json:"type"`
		User     string `json:"user"`
		Username string `json:"username"`
		Text     string `json:"text"`
		Channel  string `json:"channel"`
		TS       string `json:"ts"`
		Files    []struct {
			Name       string `json:"name"`
			Mimetype   string `json:"mimetype"`
			Size       int64  `json:"size"`
			URLPrivate string `json:"url_private"`
		} `json:"files"`
	} `json:"event"`
}

type SlackAdapter struct{}

func (a *SlackAdapter) Channel() Channel { return Slack }

func (a *SlackAdapter) ExtractExternalID(payload json.RawMessage) string {
	var p slackPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return ""
	}
	return p.EventID
}

func (a *SlackAdapter) ParseWebhook(payload json.RawMessage) (*PartialMessage, error) {
	var p slackPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, err
	}
	msg := &PartialMessage{
		Direction:  "INBOUND",
		ExternalID: p.EventID,
		Body:       p.Event.Text,
	}
	if p.Event.User != "" || p.Event.Username != "" {
		msg.Sender = &Party{Name: p.Event.Username, ExternalID: p.Event.User}
	}
	if p.Event.Channel != "" {
		msg.Recipient = &Party{ExternalID: p.Event.Channel}
	}
	if p.Event.TS != "" {
		if sec, err := strconv.ParseFloat(strings.SplitN(p.Event.TS, ".", 2)[0], 64); err == nil {
			msg.ReceivedAt = time.Unix(int64(sec), 0).UTC()
		}
	}
	for _, f := range p.Event.Files {
		msg.Attachments = append(msg.Attachments, Attachment{
			Filename: f.Name,
			MimeType: f.Mimetype,
			Size:     f.Size,
			URL:      f.URLPrivate,
		})
	}
	return msg, nil
}

// ValidateSignature checks the Slack-style "v0=" hex HMAC over the raw body.
func (a *SlackAdapter) ValidateSignature(signature string, raw []byte, secret string) bool {
	return verifyPrefixedHMAC(signature, "v0=", raw, secret)
}
