package channel

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"
)

// Channel identifies a message source. The set is closed: adding a channel
// means adding an Adapter implementation and a registry entry.
type Channel string

const (
	Email            Channel = "EMAIL"
	WhatsApp         Channel = "WHATSAPP"
	SMS              Channel = "SMS"
	Voice            Channel = "VOICE"
	Slack            Channel = "SLACK"
	Teams            Channel = "TEAMS"
	LinkedIn         Channel = "LINKEDIN"
	Twitter          Channel = "TWITTER"
	Form             Channel = "FORM"
	Document         Channel = "DOCUMENT"
	DeclarativeEvent Channel = "DECLARATIVE_EVENT"
	Internal         Channel = "INTERNAL"
)

// Party is the bag of identifiers we can know about a sender or recipient.
// Any subset of fields may be set; inbound identity resolution needs at
// least one of them on the sender.
type Party struct {
	ID         string `json:"id,omitempty"`
	Name       string `json:"name,omitempty"`
	Email      string `json:"email,omitempty"`
	Phone      string `json:"phone,omitempty"`
	ExternalID string `json:"external_id,omitempty"`
}

// Empty reports whether the party carries no identifier at all.
func (p *Party) Empty() bool {
	return p == nil || (p.ID == "" && p.Name == "" && p.Email == "" && p.Phone == "" && p.ExternalID == "")
}

// Attachment describes a file carried by a message. Data holds inline
// content decoded from the payload (never serialized back out); URL points
// at remote content when the provider hosts it. A payload with neither still
// yields a zero-length placeholder entry rather than a parse failure.
type Attachment struct {
	Filename   string `json:"filename"`
	MimeType   string `json:"mime_type"`
	Size       int64  `json:"size"`
	URL        string `json:"url,omitempty"`
	Locator    string `json:"locator,omitempty"`
	Checksum   string `json:"checksum,omitempty"`
	ScanResult string `json:"scan_result,omitempty"`
	Data       []byte `json:"-"`
}

// PartialMessage is what an adapter can fill in on its own: everything about
// the normalized message except identity linkage and processing state, which
// belong to the orchestrator.
type PartialMessage struct {
	Direction    string
	ExternalID   string
	Sender       *Party
	Recipient    *Party
	Subject      string
	Body         string
	BodyHTML     string
	Attachments  []Attachment
	DossierTitle string
	Metadata     map[string]string
	ReceivedAt   time.Time
}

// SendResult reports the outcome of an outbound send.
type SendResult struct {
	Success    bool
	ExternalID string
}

// Adapter translates one channel's raw webhook payloads into the normalized
// shape. Implementations are stateless and safe for concurrent use.
type Adapter interface {
	Channel() Channel

	// ExtractExternalID returns the source system's own message id, or ""
	// when the payload carries none (the caller then falls back to a
	// content checksum). It is pure and never fails.
	ExtractExternalID(payload json.RawMessage) string

	// ParseWebhook maps the channel payload into a PartialMessage. Missing
	// optional fields degrade to empty values; an error means the payload
	// is not decodable at all.
	ParseWebhook(payload json.RawMessage) (*PartialMessage, error)
}

// SignatureValidator is implemented by adapters whose provider signs webhook
// deliveries. Absence of the interface means no verification is available,
// not that any signature is valid.
type SignatureValidator interface {
	ValidateSignature(signature string, raw []byte, secret string) bool
}

// Sender is implemented by adapters that support the outbound path.
type Sender interface {
	SendMessage(ctx context.Context, msg *PartialMessage) (SendResult, error)
}

// checksumSep separates checksum fields so "ab"+"c" and "a"+"bc" differ.
const checksumSep = "\x1f"

// Checksum computes the fallback identity key for a message: SHA-256 over a
// canonical serialization of channel, external id, sender and body.
func Checksum(ch Channel, externalID, sender, body string) string {
	h := sha256.New()
	h.Write([]byte(string(ch) + checksumSep + externalID + checksumSep + sender + checksumSep + body))
	return hex.EncodeToString(h.Sum(nil))
}

// hmacSHA256Hex computes the hex HMAC-SHA256 of raw under secret.
func hmacSHA256Hex(secret string, raw []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(raw)
	return hex.EncodeToString(mac.Sum(nil))
}

// verifyPrefixedHMAC checks a hex HMAC-SHA256 signature that may carry a
// provider prefix such as "sha256=" or "v0=". Comparison is constant time.
func verifyPrefixedHMAC(signature, prefix string, raw []byte, secret string) bool {
	sig := strings.TrimPrefix(signature, prefix)
	if sig == "" || secret == "" {
		return false
	}
	expected, err := hex.DecodeString(hmacSHA256Hex(secret, raw))
	if err != nil {
		return false
	}
	got, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	return hmac.Equal(expected, got)
}

// ParseChannel maps a route or payload identifier (any case, "-" or "_") to
// its Channel. ok is false for identifiers outside the fixed set.
func ParseChannel(s string) (Channel, bool) {
	norm := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "-", "_"))
	switch Channel(norm) {
	case Email, WhatsApp, SMS, Voice, Slack, Teams, LinkedIn, Twitter, Form, Document, DeclarativeEvent, Internal:
		return Channel(norm), true
	}
	return "", false
}
