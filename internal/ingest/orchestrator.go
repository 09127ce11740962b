// Package ingest turns raw webhook payloads into persisted, deduplicated,
// identity-resolved messages and hands them to asynchronous analysis.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	database "github.com/juralis/juralis-backend/internal"
	"github.com/juralis/juralis-backend/internal/audit"
	"github.com/juralis/juralis-backend/internal/channel"
	"github.com/juralis/juralis-backend/internal/match"
	"github.com/juralis/juralis-backend/internal/mesh"
)

// Envelope is one raw webhook delivery as received by the API layer.
type Envelope struct {
	TenantID  string
	Channel   channel.Channel
	Signature string
	Timestamp time.Time
	Payload   json.RawMessage
}

// Result reports what Ingest did with an envelope. Duplicate results carry
// the previously stored message.
type Result struct {
	Message   *database.Message
	Created   bool
	Duplicate bool
}

// ErrInvalidSignature rejects a webhook before any state is touched; the
// rejection itself is still ledger-logged.
var ErrInvalidSignature = fmt.Errorf("ingest: invalid webhook signature")

// ErrBadPayload wraps adapter parse failures so the API layer can answer 400
// instead of 500.
var ErrBadPayload = fmt.Errorf("ingest: malformed payload")

// Uploader is the attachment blob sink (see the blob package).
type Uploader interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// Options wires an Orchestrator. Registry, Store and Ledger are required;
// everything else degrades gracefully when nil.
type Options struct {
	Registry *channel.Registry
	Resolver *match.Resolver
	Store    Store
	Ledger   *audit.Ledger
	Dedup    DedupFilter
	Blobs    Uploader
	Bus      mesh.Bus
	// Secret returns the shared webhook secret for a channel; "" disables
	// signature verification for that channel.
	Secret func(ch channel.Channel) string
	// MatchThreshold overrides the fuzzy-name threshold; 0 keeps the default.
	MatchThreshold float64
}

type Orchestrator struct {
	opts Options
}

func NewOrchestrator(opts Options) (*Orchestrator, error) {
	if opts.Registry == nil || opts.Store == nil || opts.Ledger == nil {
		return nil, fmt.Errorf("ingest: registry, store and ledger are required")
	}
	if opts.Secret == nil {
		opts.Secret = func(channel.Channel) string { return "" }
	}
	return &Orchestrator{opts: opts}, nil
}

// Ingest runs the full pipeline for one envelope: adapter lookup, signature
// verification, parse, dedup, identity resolution, persistence, ledger
// append and the async analysis hand-off.
func (o *Orchestrator) Ingest(ctx context.Context, env Envelope) (*Result, error) {
	ad, err := o.opts.Registry.Get(env.Channel)
	if err != nil {
		return nil, err
	}

	if sv, ok := ad.(channel.SignatureValidator); ok {
		if secret := o.opts.Secret(env.Channel); secret != "" {
			if !sv.ValidateSignature(env.Signature, env.Payload, secret) {
				if _, lerr := o.opts.Ledger.Log(ctx, audit.Record{
					TenantID:     env.TenantID,
					Action:       audit.ActionSignatureInvalid,
					ResourceType: "webhook",
					ResourceID:   string(env.Channel),
					Details:      map[string]any{"channel": string(env.Channel)},
				}); lerr != nil {
					log.Printf("ingest: ledger log failed: %v", lerr)
				}
				return nil, ErrInvalidSignature
			}
		}
	}

	pm, err := ad.ParseWebhook(env.Payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrBadPayload, env.Channel, err)
	}

	senderKey := partyKey(pm.Sender)
	checksum := channel.Checksum(env.Channel, pm.ExternalID, senderKey, pm.Body)
	dedupKey := env.TenantID + "|" + string(env.Channel) + "|" + checksum
	if pm.ExternalID != "" {
		dedupKey = env.TenantID + "|" + string(env.Channel) + "|" + pm.ExternalID
	}

	if o.opts.Dedup != nil {
		first, derr := o.opts.Dedup.FirstSeen(ctx, dedupKey)
		if derr != nil {
			log.Printf("ingest: dedup filter unavailable, falling back to store: %v", derr)
		} else if !first {
			existing, ferr := o.findExisting(ctx, env, pm.ExternalID, checksum)
			if ferr != nil {
				return nil, ferr
			}
			if existing != nil {
				return o.duplicate(ctx, env, existing)
			}
			// the filter remembered a key the store never saw (e.g. an
			// earlier run that failed after SETNX); keep going.
		}
	}

	existing, err := o.findExisting(ctx, env, pm.ExternalID, checksum)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return o.duplicate(ctx, env, existing)
	}

	msg := &database.Message{
		ID:            uuid.New(),
		TenantID:      env.TenantID,
		Channel:       string(env.Channel),
		Direction:     pm.Direction,
		Checksum:      checksum,
		Body:          pm.Body,
		Status:        database.MessageReceived,
		ConsentStatus: consentStatusFor(env.Channel),
		ReceivedAt:    receivedAt(pm.ReceivedAt, env.Timestamp),
	}
	if pm.ExternalID != "" {
		id := pm.ExternalID
		msg.ExternalID = &id
	}
	if pm.Subject != "" {
		s := pm.Subject
		msg.Subject = &s
	}
	if pm.BodyHTML != "" {
		h := pm.BodyHTML
		msg.BodyHTML = &h
	}
	msg.Sender = marshalParty(pm.Sender)
	msg.Recipient = marshalParty(pm.Recipient)

	if o.opts.Resolver != nil && pm.Direction == database.DirectionInbound && !pm.Sender.Empty() {
		if err := o.resolve(ctx, env.TenantID, pm, msg); err != nil {
			return nil, err
		}
	}

	o.uploadAttachments(ctx, env.TenantID, msg.ID, pm)
	if o.opts.Resolver != nil {
		o.ingestDocuments(ctx, env.TenantID, msg, pm)
	}
	msg.Attachments = marshalAttachments(pm.Attachments)

	if err := o.opts.Store.Create(ctx, msg); err != nil {
		return nil, err
	}
	if _, err := o.opts.Ledger.Log(ctx, audit.Record{
		TenantID:     env.TenantID,
		Action:       audit.ActionMessageReceived,
		ResourceType: "message",
		ResourceID:   msg.ID.String(),
		ClientID:     msg.ClientID,
		Details: map[string]any{
			"channel":   msg.Channel,
			"direction": msg.Direction,
			"checksum":  msg.Checksum,
		},
	}); err != nil {
		return nil, err
	}

	if err := o.opts.Store.SetStatus(ctx, msg.ID, database.MessageProcessing); err != nil {
		return nil, err
	}
	msg.Status = database.MessageProcessing

	if o.opts.Bus != nil {
		payload, _ := json.Marshal(analyzeTask{MessageID: msg.ID, TenantID: env.TenantID})
		if err := o.opts.Bus.Publish(ctx, mesh.Event{Topic: mesh.TopicMessageAnalyze, Payload: payload}); err != nil {
			log.Printf("ingest: analysis hand-off failed for %s: %v", msg.ID, err)
		}
	}

	return &Result{Message: msg, Created: true}, nil
}

func (o *Orchestrator) findExisting(ctx context.Context, env Envelope, externalID, checksum string) (*database.Message, error) {
	if externalID != "" {
		return o.opts.Store.FindByExternalID(ctx, env.TenantID, string(env.Channel), externalID)
	}
	return o.opts.Store.FindByChecksum(ctx, env.TenantID, string(env.Channel), checksum)
}

func (o *Orchestrator) duplicate(ctx context.Context, env Envelope, existing *database.Message) (*Result, error) {
	if _, err := o.opts.Ledger.Log(ctx, audit.Record{
		TenantID:     env.TenantID,
		Action:       audit.ActionMessageDuplicate,
		ResourceType: "message",
		ResourceID:   existing.ID.String(),
		ClientID:     existing.ClientID,
		Details:      map[string]any{"channel": string(env.Channel)},
	}); err != nil {
		return nil, err
	}
	return &Result{Message: existing, Duplicate: true}, nil
}

func (o *Orchestrator) resolve(ctx context.Context, tenantID string, pm *channel.PartialMessage, msg *database.Message) error {
	first, last := splitName(pm.Sender.Name)
	client, err := o.opts.Resolver.IdentifyOrCreateClient(ctx, tenantID, pm.Sender.Email, first, last, o.opts.MatchThreshold)
	if err != nil {
		return err
	}
	msg.ClientID = &client.ID

	if title := strings.TrimSpace(pm.DossierTitle); title != "" {
		dossier, err := o.opts.Resolver.AssociateDossier(ctx, tenantID, client, title)
		if err != nil {
			return err
		}
		msg.DossierID = &dossier.ID
	}
	return nil
}

func (o *Orchestrator) uploadAttachments(ctx context.Context, tenantID string, msgID uuid.UUID, pm *channel.PartialMessage) {
	if o.opts.Blobs == nil {
		return
	}
	for i := range pm.Attachments {
		att := &pm.Attachments[i]
		if len(att.Data) == 0 {
			continue
		}
		key := fmt.Sprintf("%s/%s/%s", tenantID, msgID, att.Filename)
		locator, err := o.opts.Blobs.Put(ctx, key, att.Data, att.MimeType)
		if err != nil {
			log.Printf("ingest: blob upload %s failed: %v", key, err)
			continue
		}
		att.Locator = locator
	}
}

// ingestDocuments runs content-hash dedup for inline attachments on
// messages that landed in a dossier.
func (o *Orchestrator) ingestDocuments(ctx context.Context, tenantID string, msg *database.Message, pm *channel.PartialMessage) {
	if msg.DossierID == nil {
		return
	}
	dossier := &database.Dossier{ID: *msg.DossierID}
	for i := range pm.Attachments {
		att := &pm.Attachments[i]
		if len(att.Data) == 0 {
			continue
		}
		doc, _, err := o.opts.Resolver.IngestDocument(ctx, tenantID, dossier, att.Filename, att.Data, att.Locator)
		if err != nil {
			log.Printf("ingest: document ingest %s failed: %v", att.Filename, err)
			continue
		}
		att.Checksum = doc.SHA256
		if doc.Locator != nil && att.Locator == "" {
			att.Locator = *doc.Locator
		}
	}
}

func consentStatusFor(ch channel.Channel) string {
	if ch == channel.Internal || ch == channel.DeclarativeEvent {
		return database.ConsentNotRequired
	}
	return database.ConsentPending
}

func receivedAt(parsed, envelope time.Time) time.Time {
	if !parsed.IsZero() {
		return parsed.UTC()
	}
	if !envelope.IsZero() {
		return envelope.UTC()
	}
	return time.Now().UTC()
}

func partyKey(p *channel.Party) string {
	switch {
	case p == nil:
		return ""
	case p.Email != "":
		return strings.ToLower(p.Email)
	case p.Phone != "":
		return p.Phone
	case p.ExternalID != "":
		return p.ExternalID
	default:
		return p.ID
	}
}

func splitName(full string) (first, last string) {
	parts := strings.Fields(full)
	if len(parts) == 0 {
		return "", ""
	}
	if len(parts) == 1 {
		return parts[0], ""
	}
	return strings.Join(parts[:len(parts)-1], " "), parts[len(parts)-1]
}

func marshalParty(p *channel.Party) json.RawMessage {
	if p == nil {
		return json.RawMessage("{}")
	}
	b, err := json.Marshal(p)
	if err != nil {
		return json.RawMessage("{}")
	}
	return b
}

func marshalAttachments(atts []channel.Attachment) json.RawMessage {
	if len(atts) == 0 {
		return json.RawMessage("[]")
	}
	b, err := json.Marshal(atts)
	if err != nil {
		return json.RawMessage("[]")
	}
	return b
}
