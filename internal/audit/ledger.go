// Package audit implements the tamper-evident ledger: an append-only,
// SHA-256 hash-chained event log partitioned per tenant, plus consent
// bookkeeping, retention runs and right-to-erasure.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	database "github.com/juralis/juralis-backend/internal"
)

// Well-known ledger actions emitted by the core.
const (
	ActionMessageReceived  = "MESSAGE_RECEIVED"
	ActionMessageDuplicate = "message.duplicate"
	ActionSignatureInvalid = "WEBHOOK_SIGNATURE_INVALID"
	ActionAnalysisFailed   = "ANALYSIS_FAILED"
	ActionAnalysisComplete = "ANALYSIS_COMPLETE"
	ActionConsentGranted   = "CONSENT_GRANTED"
	ActionConsentRevoked   = "CONSENT_REVOKED"
	ActionRetentionRun     = "RETENTION_RUN"
	ActionDataErasure      = "DATA_ERASURE"
	ActionClientMatchEmail = "client.match_email"
	ActionClientMatchName  = "client.match_name"
	ActionClientCreate     = "client.create"
	ActionDossierMatch     = "dossier.match"
	ActionDossierCreate    = "dossier.create"
	ActionDocCreate        = "doc.create"
	ActionDocSkipDuplicate = "doc.skip_duplicate"
)

// Record is the caller-facing input to Log. ActorType defaults to SYSTEM.
type Record struct {
	TenantID     string
	Action       string
	ActorType    string
	ActorID      string
	ResourceType string
	ResourceID   string
	ClientID     *uuid.UUID
	Details      map[string]any
}

// Ledger appends hash-chained entries to a Store. Appends within one tenant
// chain are strictly serialized: a read-head-then-append race would let two
// entries claim the same previous hash and branch the chain.
type Ledger struct {
	store Store

	mu     sync.Mutex
	chains map[string]*sync.Mutex
}

func NewLedger(store Store) *Ledger {
	return &Ledger{store: store, chains: map[string]*sync.Mutex{}}
}

func (l *Ledger) chainLock(tenantID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.chains[tenantID]
	if !ok {
		m = &sync.Mutex{}
		l.chains[tenantID] = m
	}
	return m
}

// Log appends a new entry to the tenant's chain and returns it.
func (l *Ledger) Log(ctx context.Context, rec Record) (*database.AuditEntry, error) {
	if rec.Action == "" {
		return nil, fmt.Errorf("audit: action is required")
	}
	if rec.ActorType == "" {
		rec.ActorType = database.ActorSystem
	}
	details := rec.Details
	if details == nil {
		details = map[string]any{}
	}
	raw, err := json.Marshal(details)
	if err != nil {
		return nil, fmt.Errorf("audit: marshal details: %w", err)
	}

	lock := l.chainLock(rec.TenantID)
	lock.Lock()
	defer lock.Unlock()

	prev, err := l.store.Head(ctx, rec.TenantID)
	if err != nil {
		return nil, fmt.Errorf("audit: read chain head: %w", err)
	}
	entry := &database.AuditEntry{
		ID:       uuid.New(),
		TenantID: rec.TenantID,
		// Truncated to microseconds: Postgres timestamptz stores no finer,
		// and the stored timestamp must recompute to the same hash.
		Timestamp:    time.Now().UTC().Truncate(time.Microsecond),
		Action:       rec.Action,
		ActorType:    rec.ActorType,
		ResourceType: rec.ResourceType,
		ResourceID:   rec.ResourceID,
		ClientID:     rec.ClientID,
		Details:      raw,
		PreviousHash: prev,
	}
	if rec.ActorID != "" {
		entry.ActorID = &rec.ActorID
	}
	entry.Hash = EntryHash(entry)
	if err := l.store.Append(ctx, entry); err != nil {
		return nil, fmt.Errorf("audit: append: %w", err)
	}
	return entry, nil
}

// EntryHash computes SHA256(id|timestamp|action|details|previousHash), hex.
// ClientID and ActorID are deliberately outside the hash so erasure can
// anonymize them without invalidating the chain.
func EntryHash(e *database.AuditEntry) string {
	payload := e.ID.String() + "|" +
		e.Timestamp.UTC().Format(time.RFC3339Nano) + "|" +
		e.Action + "|" +
		string(canonicalDetails(e.Details)) + "|" +
		e.PreviousHash
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}

// canonicalDetails re-encodes details through Go's JSON encoder (sorted map
// keys, no separator whitespace) so the hash preimage is independent of the
// stored rendering. The details column is jsonb, and Postgres re-emits jsonb
// values with its own key order and ": "/", " separators, so hashing the raw
// stored bytes would flag every legitimately appended entry on verify.
// Invalid JSON is hashed as-is.
func canonicalDetails(b []byte) []byte {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return b
	}
	out, err := json.Marshal(v)
	if err != nil {
		return b
	}
	return out
}

// Report is the result of an integrity verification pass.
type Report struct {
	Valid          bool        `json:"valid"`
	TotalEntries   int         `json:"total_entries"`
	InvalidEntries []uuid.UUID `json:"invalid_entries"`
	BrokenChainAt  *uuid.UUID  `json:"broken_chain_at,omitempty"`
}

// VerifyIntegrity replays the tenant's entries in ascending timestamp order,
// recomputing every hash and checking previous-hash linkage. Read-only and
// safe to run concurrently with ingestion.
//
// When verifying a sub-range the linkage seed is the first entry's own
// previous hash, since the true predecessor sits outside the range.
func (l *Ledger) VerifyIntegrity(ctx context.Context, tenantID string, from, to *time.Time) (*Report, error) {
	entries, err := l.store.List(ctx, tenantID, from, to)
	if err != nil {
		return nil, fmt.Errorf("audit: list entries: %w", err)
	}
	report := &Report{Valid: true, TotalEntries: len(entries), InvalidEntries: []uuid.UUID{}}
	if len(entries) == 0 {
		return report, nil
	}
	runningPrev := entries[0].PreviousHash
	for i := range entries {
		e := &entries[i]
		if e.PreviousHash != runningPrev && report.BrokenChainAt == nil {
			id := e.ID
			report.BrokenChainAt = &id
			report.Valid = false
		}
		if EntryHash(e) != e.Hash {
			report.InvalidEntries = append(report.InvalidEntries, e.ID)
			report.Valid = false
		}
		runningPrev = e.Hash
	}
	return report, nil
}

// Trail returns the ledger entries scoped to one resource, oldest first.
func (l *Ledger) Trail(ctx context.Context, resourceType, resourceID string) ([]database.AuditEntry, error) {
	return l.store.ListByResource(ctx, resourceType, resourceID)
}
