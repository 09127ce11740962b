package channel

import (
	"encoding/base64"
	"encoding/json"
	"time"
)

// documentPayload mirrors a client-portal file upload event. Content may be
// inlined as base64 or referenced by URL.
type documentPayload struct {
	UploadID    string `json:"upload_id"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	Content     string `json:"content"`
	URL         string `json:"url"`
	SHA256      string `json:"sha256"`
	Dossier     string `json:"dossier"`
	UploadedAt  string `json:"uploaded_at"`
	Uploader    struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		Email string `json:"email"`
	} `json:"uploader"`
}

type DocumentAdapter struct{}

func (a *DocumentAdapter) Channel() Channel { return Document }

func (a *DocumentAdapter) ExtractExternalID(payload json.RawMessage) string {
	var p documentPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return ""
	}
	return p.UploadID
}

func (a *DocumentAdapter) ParseWebhook(payload json.RawMessage) (*PartialMessage, error) {
	var p documentPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, err
	}
	msg := &PartialMessage{
		Direction:    "INBOUND",
		ExternalID:   p.UploadID,
		Subject:      p.Filename,
		DossierTitle: p.Dossier,
	}
	if p.Uploader.ID != "" || p.Uploader.Name != "" || p.Uploader.Email != "" {
		msg.Sender = &Party{ID: p.Uploader.ID, Name: p.Uploader.Name, Email: p.Uploader.Email}
	}
	att := Attachment{
		Filename: p.Filename,
		MimeType: p.ContentType,
		Size:     p.Size,
		URL:      p.URL,
		Checksum: p.SHA256,
	}
	if p.Content != "" {
		if data, err := base64.StdEncoding.DecodeString(p.Content); err == nil {
			att.Data = data
			if att.Size == 0 {
				att.Size = int64(len(data))
			}
		}
	}
	msg.Attachments = append(msg.Attachments, att)
	if t, err := time.Parse(time.RFC3339, p.UploadedAt); err == nil {
		msg.ReceivedAt = t
	}
	return msg, nil
}
