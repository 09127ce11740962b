package audit

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	database "github.com/juralis/juralis-backend/internal"
)

// Store is the append-only persistence behind the ledger. Append must never
// update or delete existing rows; AnonymizeClient may touch only client_id,
// actor_id and the anonymized flag.
type Store interface {
	// Head returns the hash of the most recently appended entry for the
	// tenant, or "" when the chain is empty.
	Head(ctx context.Context, tenantID string) (string, error)
	Append(ctx context.Context, e *database.AuditEntry) error
	// List returns entries ascending by timestamp, bounded by the optional
	// from/to range (inclusive).
	List(ctx context.Context, tenantID string, from, to *time.Time) ([]database.AuditEntry, error)
	ListByResource(ctx context.Context, resourceType, resourceID string) ([]database.AuditEntry, error)
	AnonymizeClient(ctx context.Context, clientID uuid.UUID) (int64, error)
}

// PGStore persists the ledger in the audit_ledger table.
type PGStore struct {
	db *sqlx.DB
}

func NewPGStore(db *sqlx.DB) *PGStore { return &PGStore{db: db} }

func (s *PGStore) Head(ctx context.Context, tenantID string) (string, error) {
	var hash string
	err := s.db.GetContext(ctx, &hash,
		`SELECT hash FROM audit_ledger WHERE tenant_id=$1 ORDER BY ts DESC, seq DESC LIMIT 1`, tenantID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return hash, err
}

func (s *PGStore) Append(ctx context.Context, e *database.AuditEntry) error {
	_, err := s.db.NamedExecContext(ctx, `INSERT INTO audit_ledger
		(id, tenant_id, ts, action, actor_type, actor_id, resource_type, resource_id, client_id, details, hash, prev_hash, anonymized)
		VALUES (:id, :tenant_id, :ts, :action, :actor_type, :actor_id, :resource_type, :resource_id, :client_id, :details, :hash, :prev_hash, :anonymized)`, e)
	return err
}

func (s *PGStore) List(ctx context.Context, tenantID string, from, to *time.Time) ([]database.AuditEntry, error) {
	q := `SELECT id, tenant_id, ts, action, actor_type, actor_id, resource_type, resource_id, client_id, details, hash, prev_hash, anonymized
		FROM audit_ledger WHERE tenant_id=$1`
	args := []any{tenantID}
	if from != nil {
		args = append(args, *from)
		q += ` AND ts >= $2`
	}
	if to != nil {
		args = append(args, *to)
		if from != nil {
			q += ` AND ts <= $3`
		} else {
			q += ` AND ts <= $2`
		}
	}
	q += ` ORDER BY ts ASC, seq ASC`
	out := []database.AuditEntry{}
	err := s.db.SelectContext(ctx, &out, q, args...)
	return out, err
}

func (s *PGStore) ListByResource(ctx context.Context, resourceType, resourceID string) ([]database.AuditEntry, error) {
	out := []database.AuditEntry{}
	err := s.db.SelectContext(ctx, &out,
		`SELECT id, tenant_id, ts, action, actor_type, actor_id, resource_type, resource_id, client_id, details, hash, prev_hash, anonymized
		FROM audit_ledger WHERE resource_type=$1 AND resource_id=$2 ORDER BY ts ASC, seq ASC`,
		resourceType, resourceID)
	return out, err
}

func (s *PGStore) AnonymizeClient(ctx context.Context, clientID uuid.UUID) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE audit_ledger SET client_id=NULL, actor_id=NULL, anonymized=TRUE WHERE client_id=$1`, clientID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// MemoryStore keeps the chain in process. Used by tests and by ingestion-only
// deployments that ship the ledger elsewhere.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []database.AuditEntry
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (s *MemoryStore) Head(ctx context.Context, tenantID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.entries) - 1; i >= 0; i-- {
		if s.entries[i].TenantID == tenantID {
			return s.entries[i].Hash, nil
		}
	}
	return "", nil
}

func (s *MemoryStore) Append(ctx context.Context, e *database.AuditEntry) error {
	s.mu.Lock()
	s.entries = append(s.entries, *e)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) List(ctx context.Context, tenantID string, from, to *time.Time) ([]database.AuditEntry, error) {
	s.mu.RLock()
	out := []database.AuditEntry{}
	for _, e := range s.entries {
		if e.TenantID != tenantID {
			continue
		}
		if from != nil && e.Timestamp.Before(*from) {
			continue
		}
		if to != nil && e.Timestamp.After(*to) {
			continue
		}
		out = append(out, e)
	}
	s.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (s *MemoryStore) ListByResource(ctx context.Context, resourceType, resourceID string) ([]database.AuditEntry, error) {
	s.mu.RLock()
	out := []database.AuditEntry{}
	for _, e := range s.entries {
		if e.ResourceType == resourceType && e.ResourceID == resourceID {
			out = append(out, e)
		}
	}
	s.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (s *MemoryStore) AnonymizeClient(ctx context.Context, clientID uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for i := range s.entries {
		if s.entries[i].ClientID != nil && *s.entries[i].ClientID == clientID {
			s.entries[i].ClientID = nil
			s.entries[i].ActorID = nil
			s.entries[i].Anonymized = true
			n++
		}
	}
	return n, nil
}

// Tamper mutates a stored entry's details in place without re-hashing.
// Test hook for exercising VerifyIntegrity; no production caller.
func (s *MemoryStore) Tamper(id uuid.UUID, details []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.entries {
		if s.entries[i].ID == id {
			s.entries[i].Details = details
			return true
		}
	}
	return false
}
