package channel

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// internalPayload mirrors a note or system message originating inside the
// practice itself (staff note on a dossier, pipeline-generated follow-up).
type internalPayload struct {
	NoteID    string `json:"note_id"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
	Dossier   string `json:"dossier"`
	CreatedAt string `json:"created_at"`
	Author    struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		Email string `json:"email"`
	} `json:"author"`
	Outbound bool `json:"outbound"`
}

type InternalAdapter struct{}

func (a *InternalAdapter) Channel() Channel { return Internal }

func (a *InternalAdapter) ExtractExternalID(payload json.RawMessage) string {
	var p internalPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return ""
	}
	return p.NoteID
}

func (a *InternalAdapter) ParseWebhook(payload json.RawMessage) (*PartialMessage, error) {
	var p internalPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, err
	}
	direction := "INBOUND"
	if p.Outbound {
		direction = "OUTBOUND"
	}
	msg := &PartialMessage{
		Direction:    direction,
		ExternalID:   p.NoteID,
		Subject:      p.Subject,
		Body:         p.Body,
		DossierTitle: p.Dossier,
	}
	if p.Author.ID != "" || p.Author.Name != "" || p.Author.Email != "" {
		msg.Sender = &Party{ID: p.Author.ID, Name: p.Author.Name, Email: p.Author.Email}
	}
	if t, err := time.Parse(time.RFC3339, p.CreatedAt); err == nil {
		msg.ReceivedAt = t
	}
	return msg, nil
}

// SendMessage records an outbound internal note. Nothing leaves the system,
// so delivery always succeeds with a generated id.
func (a *InternalAdapter) SendMessage(ctx context.Context, msg *PartialMessage) (SendResult, error) {
	return SendResult{Success: true, ExternalID: "note-" + uuid.New().String()}, nil
}
