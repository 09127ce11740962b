package channel

import (
	"encoding/json"
	"time"
)

// teamsPayload mirrors a Microsoft Graph change-notification batch for
// Teams chat messages. Batches may legitimately be empty.
type teamsPayload struct {
	Value []struct {
		ID              string `json:"id"`
		CreatedDateTime string `json:"createdDateTime"`
		From            struct {
			User struct {
				ID          string `json:"id"`
				DisplayName string `json:"displayName"`
			} `json:"user"`
		} `json:"from"`
		ChannelIdentity struct {
			ChannelID string `json:"channelId"`
		} `json:"channelIdentity"`
		Body struct {
			ContentType string `json:"contentType"`
			Content     string `json:"content"`
		} `json:"body"`
		Attachments []struct {
			Name        string `json:"name"`
			ContentType string `json:"contentType"`
			ContentURL  string `json:"contentUrl"`
		} `json:"attachments"`
	} `json:"value"`
}

type TeamsAdapter struct{}

func (a *TeamsAdapter) Channel() Channel { return Teams }

func (a *TeamsAdapter) ExtractExternalID(payload json.RawMessage) string {
	var p teamsPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return ""
	}
	if len(p.Value) == 0 {
		return ""
	}
	return p.Value[0].ID
}

func (a *TeamsAdapter) ParseWebhook(payload json.RawMessage) (*PartialMessage, error) {
	var p teamsPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, err
	}
	msg := &PartialMessage{Direction: "INBOUND"}
	if len(p.Value) == 0 {
		return msg, nil
	}
	v := p.Value[0]
	msg.ExternalID = v.ID
	msg.Body = v.Body.Content
	if v.Body.ContentType == "html" {
		msg.BodyHTML = v.Body.Content
	}
	if v.From.User.ID != "" || v.From.User.DisplayName != "" {
		msg.Sender = &Party{Name: v.From.User.DisplayName, ExternalID: v.From.User.ID}
	}
	if v.ChannelIdentity.ChannelID != "" {
		msg.Recipient = &Party{ExternalID: v.ChannelIdentity.ChannelID}
	}
	if t, err := time.Parse(time.RFC3339, v.CreatedDateTime); err == nil {
		msg.ReceivedAt = t
	}
	for _, att := range v.Attachments {
		msg.Attachments = append(msg.Attachments, Attachment{
			Filename: att.Name,
			MimeType: att.ContentType,
			URL:      att.ContentURL,
		})
	}
	return msg, nil
}
