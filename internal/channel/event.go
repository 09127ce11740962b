package channel

import (
	"encoding/json"
	"time"
)

// declarativePayload mirrors a declarative business event emitted by an
// integrated system (court registry feed, deadline tracker, partner API).
type declarativePayload struct {
	EventID    string            `json:"event_id"`
	EventType  string            `json:"event_type"`
	OccurredAt string            `json:"occurred_at"`
	Summary    string            `json:"summary"`
	Dossier    string            `json:"dossier"`
	Actor      struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"actor"`
	Data map[string]string `json:"data"`
}

type DeclarativeEventAdapter struct{}

func (a *DeclarativeEventAdapter) Channel() Channel { return DeclarativeEvent }

func (a *DeclarativeEventAdapter) ExtractExternalID(payload json.RawMessage) string {
	var p declarativePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return ""
	}
	return p.EventID
}

func (a *DeclarativeEventAdapter) ParseWebhook(payload json.RawMessage) (*PartialMessage, error) {
	var p declarativePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, err
	}
	msg := &PartialMessage{
		Direction:    "INBOUND",
		ExternalID:   p.EventID,
		Subject:      p.EventType,
		Body:         p.Summary,
		DossierTitle: p.Dossier,
		Metadata:     map[string]string{"event_type": p.EventType},
	}
	for k, v := range p.Data {
		msg.Metadata[k] = v
	}
	if p.Actor.ID != "" || p.Actor.Name != "" {
		msg.Sender = &Party{ID: p.Actor.ID, Name: p.Actor.Name}
	}
	if t, err := time.Parse(time.RFC3339, p.OccurredAt); err == nil {
		msg.ReceivedAt = t
	}
	return msg, nil
}
