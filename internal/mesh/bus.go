package mesh

import (
	"context"
	"encoding/json"
	"time"
)

const (
	// TopicMessageAnalyze carries ids of persisted messages awaiting AI analysis.
	TopicMessageAnalyze = "message.analyze"
	// TopicNotifyUrgent fans out messages whose analysis scored HIGH or CRITICAL.
	TopicNotifyUrgent = "notify.urgent"
)

type Event struct {
	Topic     string          `json:"topic"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"ts"`
}

type Handler func(ctx context.Context, e Event)

type Bus interface {
	Publish(ctx context.Context, e Event) error
	Subscribe(topic string, h Handler) (unsubscribe func(), err error)
	Close() error
}
