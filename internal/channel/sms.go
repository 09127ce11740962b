package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// smsPayload mirrors a Twilio-style SMS webhook with the provider message id
// at the top level.
type smsPayload struct {
	MessageSid string `json:"MessageSid"`
	From       string `json:"From"`
	To         string `json:"To"`
	Body       string `json:"Body"`
	NumMedia   string `json:"NumMedia"`
	MediaURL0  string `json:"MediaUrl0"`
	MediaType0 string `json:"MediaContentType0"`
}

// SMSAdapter parses inbound provider webhooks and, when Endpoint is set,
// supports the outbound path by POSTing to the provider API.
type SMSAdapter struct {
	Endpoint string
	Client   *http.Client
}

func (a *SMSAdapter) Channel() Channel { return SMS }

func (a *SMSAdapter) ExtractExternalID(payload json.RawMessage) string {
	var p smsPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return ""
	}
	return p.MessageSid
}

func (a *SMSAdapter) ParseWebhook(payload json.RawMessage) (*PartialMessage, error) {
	var p smsPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, err
	}
	msg := &PartialMessage{
		Direction:  "INBOUND",
		ExternalID: p.MessageSid,
		Body:       p.Body,
	}
	if p.From != "" {
		msg.Sender = &Party{Phone: p.From}
	}
	if p.To != "" {
		msg.Recipient = &Party{Phone: p.To}
	}
	if n, err := strconv.Atoi(p.NumMedia); err == nil && n > 0 {
		// Only the first media item is carried; a missing URL still yields
		// a placeholder entry.
		msg.Attachments = append(msg.Attachments, Attachment{
			Filename: "media-0",
			MimeType: p.MediaType0,
			URL:      p.MediaURL0,
		})
	}
	return msg, nil
}

// ValidateSignature checks a hex HMAC-SHA256 over the raw body (no prefix).
func (a *SMSAdapter) ValidateSignature(signature string, raw []byte, secret string) bool {
	return verifyPrefixedHMAC(signature, "", raw, secret)
}

// SendMessage delivers an outbound SMS through the configured provider API.
func (a *SMSAdapter) SendMessage(ctx context.Context, msg *PartialMessage) (SendResult, error) {
	if a.Endpoint == "" {
		return SendResult{}, fmt.Errorf("sms outbound endpoint not configured")
	}
	client := a.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	to := ""
	if msg.Recipient != nil {
		to = msg.Recipient.Phone
	}
	body, _ := json.Marshal(map[string]string{"To": to, "Body": msg.Body})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.Endpoint, bytes.NewReader(body))
	if err != nil {
		return SendResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return SendResult{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return SendResult{}, fmt.Errorf("sms provider returned %d", resp.StatusCode)
	}
	var out struct {
		Sid string `json:"sid"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return SendResult{Success: true, ExternalID: out.Sid}, nil
}
