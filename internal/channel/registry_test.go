package channel

import (
	"encoding/json"
	"testing"
)

func TestRegistryCoversFixedChannelSet(t *testing.T) {
	r := NewRegistry()
	for _, ch := range []Channel{Email, WhatsApp, SMS, Voice, Slack, Teams, LinkedIn, Twitter, Form, Document, DeclarativeEvent, Internal} {
		if !r.IsSupported(ch) {
			t.Fatalf("channel %s not supported", ch)
		}
		a, err := r.Get(ch)
		if err != nil {
			t.Fatalf("Get(%s): %v", ch, err)
		}
		if a.Channel() != ch {
			t.Fatalf("adapter for %s reports %s", ch, a.Channel())
		}
	}
	if got := len(r.Channels()); got != 12 {
		t.Fatalf("expected 12 channels, got %d", got)
	}
}

func TestRegistryUnsupportedChannel(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Get(Channel("CARRIER_PIGEON")); err == nil {
		t.Fatal("expected error for unsupported channel")
	}
	if r.IsSupported(Channel("CARRIER_PIGEON")) {
		t.Fatal("unknown channel reported as supported")
	}
}

func TestRegistryReturnsSingletons(t *testing.T) {
	r := NewRegistry()
	a1, _ := r.Get(Email)
	a2, _ := r.Get(Email)
	if a1 != a2 {
		t.Fatal("expected the same adapter instance on repeated Get")
	}
}

type fakeAdapter struct{}

func (fakeAdapter) Channel() Channel                              { return Email }
func (fakeAdapter) ExtractExternalID(_ json.RawMessage) string    { return "fake" }
func (fakeAdapter) ParseWebhook(_ json.RawMessage) (*PartialMessage, error) {
	return &PartialMessage{}, nil
}

func TestRegisterCustomOverrides(t *testing.T) {
	r := NewRegistry()
	r.RegisterCustom(Email, fakeAdapter{})
	a, err := r.Get(Email)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if a.ExtractExternalID(nil) != "fake" {
		t.Fatal("custom adapter not installed")
	}
}

func TestParseChannel(t *testing.T) {
	cases := map[string]Channel{
		"email":             Email,
		"WhatsApp":          WhatsApp,
		"declarative-event": DeclarativeEvent,
		"DECLARATIVE_EVENT": DeclarativeEvent,
	}
	for in, want := range cases {
		got, ok := ParseChannel(in)
		if !ok || got != want {
			t.Fatalf("ParseChannel(%q) = %q, %v; want %q", in, got, ok, want)
		}
	}
	if _, ok := ParseChannel("fax"); ok {
		t.Fatal("fax should not parse")
	}
}
