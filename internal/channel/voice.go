package channel

import (
	"encoding/json"
	"fmt"
	"time"
)

// voicePayload mirrors a telephony provider's call-completed webhook with an
// automatic transcript attached.
type voicePayload struct {
	CallID       string  `json:"call_id"`
	From         string  `json:"from"`
	To           string  `json:"to"`
	CallerName   string  `json:"caller_name"`
	Transcript   string  `json:"transcript"`
	RecordingURL string  `json:"recording_url"`
	Duration     float64 `json:"duration"`
	StartedAt    string  `json:"started_at"`
}

type VoiceAdapter struct{}

func (a *VoiceAdapter) Channel() Channel { return Voice }

func (a *VoiceAdapter) ExtractExternalID(payload json.RawMessage) string {
	var p voicePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return ""
	}
	return p.CallID
}

func (a *VoiceAdapter) ParseWebhook(payload json.RawMessage) (*PartialMessage, error) {
	var p voicePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, err
	}
	msg := &PartialMessage{
		Direction:  "INBOUND",
		ExternalID: p.CallID,
		// Transcripts come from speech recognition, so names mentioned in
		// them are frequent fuzzy-match inputs downstream.
		Body: p.Transcript,
		Metadata: map[string]string{
			"duration_seconds": fmt.Sprintf("%.0f", p.Duration),
		},
	}
	if p.From != "" || p.CallerName != "" {
		msg.Sender = &Party{Name: p.CallerName, Phone: p.From}
	}
	if p.To != "" {
		msg.Recipient = &Party{Phone: p.To}
	}
	if t, err := time.Parse(time.RFC3339, p.StartedAt); err == nil {
		msg.ReceivedAt = t
	}
	// A recording is always listed, even when the provider omitted the URL.
	msg.Attachments = append(msg.Attachments, Attachment{
		Filename: "recording-" + p.CallID + ".mp3",
		MimeType: "audio/mpeg",
		URL:      p.RecordingURL,
	})
	return msg, nil
}
