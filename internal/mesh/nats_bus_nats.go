//go:build nats

package mesh

import (
	"context"
	"encoding/json"
	"log"
	"time"

	nats "github.com/nats-io/nats.go"
)

// NatsBus carries analysis tasks and urgent notices over NATS so analysis
// workers can run in separate processes from the webhook intake. Events are
// the same JSON envelope the local bus uses, so the two are interchangeable
// behind the Bus interface.
type NatsBus struct {
	nc *nats.Conn
}

func NewNatsBus(url string) (*NatsBus, error) {
	nc, err := nats.Connect(url, nats.Name("juralis-ingest"))
	if err != nil {
		return nil, err
	}
	return &NatsBus{nc: nc}, nil
}

func (b *NatsBus) Publish(ctx context.Context, e Event) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return b.nc.Publish(e.Topic, payload)
}

func (b *NatsBus) Subscribe(topic string, h Handler) (func(), error) {
	sub, err := b.nc.Subscribe(topic, func(msg *nats.Msg) {
		var e Event
		if err := json.Unmarshal(msg.Data, &e); err != nil {
			log.Printf("mesh: dropping undecodable event on %s: %v", topic, err)
			return
		}
		h(context.Background(), e)
	})
	if err != nil {
		return nil, err
	}
	return func() { _ = sub.Unsubscribe() }, nil
}

func (b *NatsBus) Close() error { b.nc.Flush(); b.nc.Close(); return nil }
