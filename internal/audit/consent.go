package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	database "github.com/juralis/juralis-backend/internal"
)

// ConsentStore persists consent records.
type ConsentStore interface {
	Create(ctx context.Context, c *database.Consent) error
	Get(ctx context.Context, id uuid.UUID) (*database.Consent, error)
	Revoke(ctx context.Context, id uuid.UUID, at time.Time) error
	// FindByClientChannel returns all consent records for the pair, newest first.
	FindByClientChannel(ctx context.Context, clientID uuid.UUID, channel string) ([]database.Consent, error)
	DeleteByClient(ctx context.Context, clientID uuid.UUID) (int64, error)
}

// ConsentRequest is the input to Consents.Record.
type ConsentRequest struct {
	TenantID      string
	ClientID      uuid.UUID
	Channel       string
	Purpose       string
	Granted       bool
	ExpiresAt     *time.Time
	ProofDocument *uuid.UUID
	ActorID       string
}

// Consents manages the consent ledger: every grant or revocation also lands
// in the hash chain.
type Consents struct {
	store  ConsentStore
	ledger *Ledger
}

func NewConsents(store ConsentStore, ledger *Ledger) *Consents {
	return &Consents{store: store, ledger: ledger}
}

// Record appends a consent record and the matching ledger entry.
func (c *Consents) Record(ctx context.Context, req ConsentRequest) (*database.Consent, error) {
	now := time.Now().UTC()
	rec := &database.Consent{
		ID:            uuid.New(),
		ClientID:      req.ClientID,
		Channel:       req.Channel,
		Purpose:       req.Purpose,
		Granted:       req.Granted,
		ExpiresAt:     req.ExpiresAt,
		ProofDocument: req.ProofDocument,
		CreatedAt:     now,
	}
	action := ActionConsentRevoked
	if req.Granted {
		rec.GrantedAt = &now
		action = ActionConsentGranted
	} else {
		rec.RevokedAt = &now
	}
	if err := c.store.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("consent: create: %w", err)
	}
	clientID := req.ClientID
	_, err := c.ledger.Log(ctx, Record{
		TenantID:     req.TenantID,
		Action:       action,
		ActorType:    database.ActorUser,
		ActorID:      req.ActorID,
		ResourceType: "consent",
		ResourceID:   rec.ID.String(),
		ClientID:     &clientID,
		Details:      map[string]any{"channel": req.Channel, "purpose": req.Purpose},
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Revoke marks an existing consent as revoked and logs it.
func (c *Consents) Revoke(ctx context.Context, tenantID string, id uuid.UUID, actorID string) error {
	rec, err := c.store.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("consent: get: %w", err)
	}
	now := time.Now().UTC()
	if err := c.store.Revoke(ctx, id, now); err != nil {
		return fmt.Errorf("consent: revoke: %w", err)
	}
	clientID := rec.ClientID
	_, err = c.ledger.Log(ctx, Record{
		TenantID:     tenantID,
		Action:       ActionConsentRevoked,
		ActorType:    database.ActorUser,
		ActorID:      actorID,
		ResourceType: "consent",
		ResourceID:   id.String(),
		ClientID:     &clientID,
		Details:      map[string]any{"channel": rec.Channel, "purpose": rec.Purpose},
	})
	return err
}

// Check reports whether the client currently holds a valid consent for the
// channel and purpose: granted, not revoked, not expired. A record with an
// empty purpose covers any purpose.
func (c *Consents) Check(ctx context.Context, clientID uuid.UUID, channel, purpose string) (bool, error) {
	recs, err := c.store.FindByClientChannel(ctx, clientID, channel)
	if err != nil {
		return false, err
	}
	now := time.Now().UTC()
	for _, r := range recs {
		if !r.Granted || r.RevokedAt != nil {
			continue
		}
		if r.ExpiresAt != nil && !r.ExpiresAt.After(now) {
			continue
		}
		if purpose != "" && r.Purpose != "" && r.Purpose != purpose {
			continue
		}
		return true, nil
	}
	return false, nil
}

// PGConsentStore persists consents in the consents table.
type PGConsentStore struct {
	db *sqlx.DB
}

func NewPGConsentStore(db *sqlx.DB) *PGConsentStore { return &PGConsentStore{db: db} }

func (s *PGConsentStore) Create(ctx context.Context, c *database.Consent) error {
	_, err := s.db.NamedExecContext(ctx, `INSERT INTO consents
		(id, client_id, channel, purpose, granted, granted_at, revoked_at, expires_at, proof_document, created_at)
		VALUES (:id, :client_id, :channel, :purpose, :granted, :granted_at, :revoked_at, :expires_at, :proof_document, :created_at)`, c)
	return err
}

func (s *PGConsentStore) Get(ctx context.Context, id uuid.UUID) (*database.Consent, error) {
	var c database.Consent
	err := s.db.GetContext(ctx, &c, `SELECT * FROM consents WHERE id=$1`, id)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *PGConsentStore) Revoke(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE consents SET revoked_at=$1 WHERE id=$2 AND revoked_at IS NULL`, at, id)
	return err
}

func (s *PGConsentStore) FindByClientChannel(ctx context.Context, clientID uuid.UUID, channel string) ([]database.Consent, error) {
	out := []database.Consent{}
	err := s.db.SelectContext(ctx, &out,
		`SELECT * FROM consents WHERE client_id=$1 AND channel=$2 ORDER BY created_at DESC`, clientID, channel)
	return out, err
}

func (s *PGConsentStore) DeleteByClient(ctx context.Context, clientID uuid.UUID) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM consents WHERE client_id=$1`, clientID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// MemoryConsentStore is the in-process ConsentStore used by tests.
type MemoryConsentStore struct {
	mu   sync.RWMutex
	recs map[uuid.UUID]*database.Consent
}

func NewMemoryConsentStore() *MemoryConsentStore {
	return &MemoryConsentStore{recs: map[uuid.UUID]*database.Consent{}}
}

func (s *MemoryConsentStore) Create(ctx context.Context, c *database.Consent) error {
	s.mu.Lock()
	cp := *c
	s.recs[c.ID] = &cp
	s.mu.Unlock()
	return nil
}

func (s *MemoryConsentStore) Get(ctx context.Context, id uuid.UUID) (*database.Consent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.recs[id]
	if !ok {
		return nil, fmt.Errorf("consent %s not found", id)
	}
	cp := *c
	return &cp, nil
}

func (s *MemoryConsentStore) Revoke(ctx context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.recs[id]; ok && c.RevokedAt == nil {
		t := at
		c.RevokedAt = &t
	}
	return nil
}

func (s *MemoryConsentStore) FindByClientChannel(ctx context.Context, clientID uuid.UUID, channel string) ([]database.Consent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []database.Consent{}
	for _, c := range s.recs {
		if c.ClientID == clientID && c.Channel == channel {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (s *MemoryConsentStore) DeleteByClient(ctx context.Context, clientID uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, c := range s.recs {
		if c.ClientID == clientID {
			delete(s.recs, id)
			n++
		}
	}
	return n, nil
}
