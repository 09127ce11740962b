package channel

import (
	"fmt"
	"sort"
	"sync"
)

// ErrUnsupportedChannel is returned when no adapter is registered for a
// channel. This is a configuration error, not a retryable condition.
var ErrUnsupportedChannel = fmt.Errorf("unsupported channel")

// Registry resolves a channel to its adapter. Adapters are constructed once
// and reused across requests. The registry is built explicitly at startup
// and owned by the orchestrator; there is no ambient global instance.
type Registry struct {
	mu       sync.RWMutex
	adapters map[Channel]Adapter
}

// NewRegistry returns a registry pre-populated with the full fixed channel set.
func NewRegistry() *Registry {
	r := &Registry{adapters: make(map[Channel]Adapter, 12)}
	for _, a := range []Adapter{
		&EmailAdapter{},
		&WhatsAppAdapter{},
		&SMSAdapter{},
		&VoiceAdapter{},
		&SlackAdapter{},
		&TeamsAdapter{},
		&LinkedInAdapter{},
		&TwitterAdapter{},
		&FormAdapter{},
		&DocumentAdapter{},
		&DeclarativeEventAdapter{},
		&InternalAdapter{},
	} {
		r.adapters[a.Channel()] = a
	}
	return r
}

// Get returns the adapter for ch, or ErrUnsupportedChannel.
func (r *Registry) Get(ch Channel) (Adapter, error) {
	r.mu.RLock()
	a, ok := r.adapters[ch]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedChannel, ch)
	}
	return a, nil
}

// IsSupported reports whether an adapter exists for ch.
func (r *Registry) IsSupported(ch Channel) bool {
	r.mu.RLock()
	_, ok := r.adapters[ch]
	r.mu.RUnlock()
	return ok
}

// Channels lists the supported channels in stable order.
func (r *Registry) Channels() []Channel {
	r.mu.RLock()
	out := make([]Channel, 0, len(r.adapters))
	for ch := range r.adapters {
		out = append(out, ch)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// RegisterCustom installs or overrides the adapter for ch. Intended for
// tests and controlled extension points.
func (r *Registry) RegisterCustom(ch Channel, a Adapter) {
	r.mu.Lock()
	r.adapters[ch] = a
	r.mu.Unlock()
}
