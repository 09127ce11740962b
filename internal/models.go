package database

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Message processing statuses.
const (
	MessageReceived   = "RECEIVED"
	MessageProcessing = "PROCESSING"
	MessageProcessed  = "PROCESSED"
	MessageFailed     = "FAILED"
	MessageArchived   = "ARCHIVED"
)

// Message directions.
const (
	DirectionInbound  = "INBOUND"
	DirectionOutbound = "OUTBOUND"
)

// Consent statuses.
const (
	ConsentPending     = "PENDING"
	ConsentGranted     = "GRANTED"
	ConsentRevoked     = "REVOKED"
	ConsentNotRequired = "NOT_REQUIRED"
)

// Audit actor types.
const (
	ActorSystem = "SYSTEM"
	ActorUser   = "USER"
	ActorAI     = "AI"
)

// Message represents the 'messages' table: the canonical normalized form of
// any inbound or outbound contact event, regardless of source channel.
// Sender, recipient, attachments and AI analysis are stored as JSONB; the
// structured shapes live in the channel and ingest packages.
type Message struct {
	ID            uuid.UUID       `db:"id" json:"id"`
	TenantID      string          `db:"tenant_id" json:"tenant_id"`
	Channel       string          `db:"channel" json:"channel"`
	Direction     string          `db:"direction" json:"direction"`
	ExternalID    *string         `db:"external_id" json:"external_id,omitempty"`
	Checksum      string          `db:"checksum" json:"checksum"`
	Sender        json.RawMessage `db:"sender" json:"sender"`
	Recipient     json.RawMessage `db:"recipient" json:"recipient"`
	Subject       *string         `db:"subject" json:"subject,omitempty"`
	Body          string          `db:"body" json:"body"`
	BodyHTML      *string         `db:"body_html" json:"body_html,omitempty"`
	Attachments   json.RawMessage `db:"attachments" json:"attachments"`
	Status        string          `db:"status" json:"status"`
	AIAnalysis    json.RawMessage `db:"ai_analysis" json:"ai_analysis,omitempty"`
	ConsentStatus string          `db:"consent_status" json:"consent_status"`
	ClientID      *uuid.UUID      `db:"client_id" json:"client_id,omitempty"`
	DossierID     *uuid.UUID      `db:"dossier_id" json:"dossier_id,omitempty"`
	ReceivedAt    time.Time       `db:"received_at" json:"received_at"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`
}

// Client represents the 'clients' table, the minimal identity anchor.
// Uniqueness is governed by the resolution algorithm, not a name constraint.
type Client struct {
	ID        uuid.UUID `db:"id" json:"id"`
	TenantID  string    `db:"tenant_id" json:"tenant_id"`
	Email     *string   `db:"email" json:"email,omitempty"`
	FirstName string    `db:"first_name" json:"first_name"`
	LastName  string    `db:"last_name" json:"last_name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Dossier represents the 'dossiers' table. One client may own many dossiers;
// dossier identity is (client_id, normalized title).
type Dossier struct {
	ID        uuid.UUID `db:"id" json:"id"`
	ClientID  uuid.UUID `db:"client_id" json:"client_id"`
	Title     string    `db:"title" json:"title"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Document represents the 'documents' table. Duplicate content (same sha256)
// within a dossier is never stored twice.
type Document struct {
	ID        uuid.UUID `db:"id" json:"id"`
	DossierID uuid.UUID `db:"dossier_id" json:"dossier_id"`
	Name      string    `db:"name" json:"name"`
	SHA256    string    `db:"sha256" json:"sha256"`
	Locator   *string   `db:"locator" json:"locator,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// AuditEntry represents the 'audit_ledger' table. Entries are immutable once
// appended; hash and prev_hash form a per-tenant chain.
type AuditEntry struct {
	ID           uuid.UUID       `db:"id" json:"id"`
	TenantID     string          `db:"tenant_id" json:"tenant_id"`
	Timestamp    time.Time       `db:"ts" json:"timestamp"`
	Action       string          `db:"action" json:"action"`
	ActorType    string          `db:"actor_type" json:"actor_type"`
	ActorID      *string         `db:"actor_id" json:"actor_id,omitempty"`
	ResourceType string          `db:"resource_type" json:"resource_type"`
	ResourceID   string          `db:"resource_id" json:"resource_id"`
	ClientID     *uuid.UUID      `db:"client_id" json:"client_id,omitempty"`
	Details      json.RawMessage `db:"details" json:"details"`
	Hash         string          `db:"hash" json:"hash"`
	PreviousHash string          `db:"prev_hash" json:"previous_hash"`
	// Anonymized lives outside the hashed fields so right-to-erasure can
	// set it without invalidating the chain.
	Anonymized bool `db:"anonymized" json:"anonymized"`
}

// Consent represents the 'consents' table.
type Consent struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	ClientID      uuid.UUID  `db:"client_id" json:"client_id"`
	Channel       string     `db:"channel" json:"channel"`
	Purpose       string     `db:"purpose" json:"purpose"`
	Granted       bool       `db:"granted" json:"granted"`
	GrantedAt     *time.Time `db:"granted_at" json:"granted_at,omitempty"`
	RevokedAt     *time.Time `db:"revoked_at" json:"revoked_at,omitempty"`
	ExpiresAt     *time.Time `db:"expires_at" json:"expires_at,omitempty"`
	ProofDocument *uuid.UUID `db:"proof_document" json:"proof_document,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
}

// APIKey represents the 'api_keys' table used to authenticate webhook callers.
type APIKey struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	TenantID   string     `db:"tenant_id" json:"tenant_id"`
	Name       string     `db:"name" json:"name"`
	KeyPrefix  string     `db:"key_prefix" json:"key_prefix"`
	HashedKey  string     `db:"hashed_key" json:"-"`
	LastUsedAt *time.Time `db:"last_used_at" json:"last_used_at,omitempty"`
	ExpiresAt  *time.Time `db:"expires_at" json:"expires_at,omitempty"`
	RevokedAt  *time.Time `db:"revoked_at" json:"revoked_at,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
}
