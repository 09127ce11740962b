package mesh

import (
	"context"
	"sync"
	"time"
)

// LocalBus is the in-process bus used by single-node deployments and tests.
// Ingestion publishes analysis tasks and urgent notices here when no NATS
// url is configured; handlers run in their own goroutines so a slow analyzer
// never blocks the webhook response path.
type LocalBus struct {
	mu   sync.RWMutex
	next int
	subs map[string]map[int]Handler
}

func NewLocalBus() *LocalBus { return &LocalBus{subs: map[string]map[int]Handler{}} }

func (b *LocalBus) Publish(ctx context.Context, e Event) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	b.mu.RLock()
	hs := make([]Handler, 0, len(b.subs[e.Topic]))
	for _, h := range b.subs[e.Topic] {
		hs = append(hs, h)
	}
	b.mu.RUnlock()
	for _, h := range hs {
		go h(ctx, e)
	}
	return nil
}

// Subscribe registers h for topic. Subscriptions are keyed by token so any
// handler can unsubscribe at any time without disturbing the others.
func (b *LocalBus) Subscribe(topic string, h Handler) (func(), error) {
	b.mu.Lock()
	if b.subs[topic] == nil {
		b.subs[topic] = map[int]Handler{}
	}
	token := b.next
	b.next++
	b.subs[topic][token] = h
	b.mu.Unlock()
	return func() {
		b.mu.Lock()
		delete(b.subs[topic], token)
		b.mu.Unlock()
	}, nil
}

func (b *LocalBus) Close() error { return nil }
