package channel

import (
	"encoding/json"
	"strconv"
	"time"
)

// twitterPayload mirrors the account-activity direct message envelope: the
// message id is nested under direct_message_events, sender details under a
// separate users map keyed by id.
type twitterPayload struct {
	DirectMessageEvents []struct {
		ID               string `json:"id"`
		CreatedTimestamp string `json:"created_timestamp"`
		MessageCreate    struct {
			SenderID string `json:"sender_id"`
			Target   struct {
				RecipientID string `json:"recipient_id"`
			} `json:"target"`
			MessageData struct {
				Text string `json:"text"`
			} `json:"message_data"`
		} `json:"message_create"`
	} `json:"direct_message_events"`
	Users map[string]struct {
		Name       string `json:"name"`
		ScreenName string `json:"screen_name"`
	} `json:"users"`
}

type TwitterAdapter struct{}

func (a *TwitterAdapter) Channel() Channel { return Twitter }

func (a *TwitterAdapter) ExtractExternalID(payload json.RawMessage) string {
	var p twitterPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return ""
	}
	if len(p.DirectMessageEvents) == 0 {
		return ""
	}
	return p.DirectMessageEvents[0].ID
}

func (a *TwitterAdapter) ParseWebhook(payload json.RawMessage) (*PartialMessage, error) {
	var p twitterPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, err
	}
	msg := &PartialMessage{Direction: "INBOUND"}
	if len(p.DirectMessageEvents) == 0 {
		return msg, nil
	}
	ev := p.DirectMessageEvents[0]
	msg.ExternalID = ev.ID
	msg.Body = ev.MessageCreate.MessageData.Text
	senderID := ev.MessageCreate.SenderID
	if senderID != "" {
		sender := &Party{ExternalID: senderID}
		if u, ok := p.Users[senderID]; ok {
			sender.Name = u.Name
			if sender.Name == "" {
				sender.Name = u.ScreenName
			}
		}
		msg.Sender = sender
	}
	if rid := ev.MessageCreate.Target.RecipientID; rid != "" {
		msg.Recipient = &Party{ExternalID: rid}
	}
	if ms, err := strconv.ParseInt(ev.CreatedTimestamp, 10, 64); err == nil {
		msg.ReceivedAt = time.UnixMilli(ms).UTC()
	}
	return msg, nil
}

// ValidateSignature checks the "sha256=" hex HMAC over the raw body.
func (a *TwitterAdapter) ValidateSignature(signature string, raw []byte, secret string) bool {
	return verifyPrefixedHMAC(signature, "sha256=", raw, secret)
}
