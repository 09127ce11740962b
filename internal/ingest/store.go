package ingest

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	database "github.com/juralis/juralis-backend/internal"
)

// ListFilter narrows List results. Zero values mean "any".
type ListFilter struct {
	Channel  string
	Status   string
	ClientID *uuid.UUID
	Limit    int
}

// Store persists normalized messages. It also serves the retention and
// erasure services, which is why the archive/delete methods live here.
type Store interface {
	Create(ctx context.Context, m *database.Message) error
	Get(ctx context.Context, tenantID string, id uuid.UUID) (*database.Message, error)
	List(ctx context.Context, tenantID string, f ListFilter) ([]database.Message, error)
	FindByExternalID(ctx context.Context, tenantID, channel, externalID string) (*database.Message, error)
	FindByChecksum(ctx context.Context, tenantID, channel, checksum string) (*database.Message, error)
	SetStatus(ctx context.Context, id uuid.UUID, status string) error
	SetAnalysis(ctx context.Context, id uuid.UUID, analysis json.RawMessage, status string) error

	ArchiveOlderThan(ctx context.Context, tenantID, channel string, cutoff time.Time) (int64, error)
	DeleteArchivedOlderThan(ctx context.Context, tenantID, channel string, cutoff time.Time) (int64, error)
	DeleteMessagesByClient(ctx context.Context, clientID uuid.UUID) (int64, error)
	DeleteDocumentsByClient(ctx context.Context, clientID uuid.UUID) (int64, error)
}

// PGStore backs Store with Postgres through sqlx.
type PGStore struct {
	db *sqlx.DB
}

func NewPGStore(db *sqlx.DB) *PGStore { return &PGStore{db: db} }

func (s *PGStore) Create(ctx context.Context, m *database.Message) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, tenant_id, channel, direction, external_id, checksum,
			sender, recipient, subject, body, body_html, attachments, status,
			ai_analysis, consent_status, client_id, dossier_id, received_at, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,now(),now())`,
		m.ID, m.TenantID, m.Channel, m.Direction, m.ExternalID, m.Checksum,
		m.Sender, m.Recipient, m.Subject, m.Body, m.BodyHTML, m.Attachments,
		m.Status, m.AIAnalysis, m.ConsentStatus, m.ClientID, m.DossierID, m.ReceivedAt)
	if err != nil {
		return fmt.Errorf("ingest: insert message: %w", err)
	}
	return nil
}

func (s *PGStore) Get(ctx context.Context, tenantID string, id uuid.UUID) (*database.Message, error) {
	var m database.Message
	err := s.db.GetContext(ctx, &m,
		`SELECT * FROM messages WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ingest: get message: %w", err)
	}
	return &m, nil
}

func (s *PGStore) List(ctx context.Context, tenantID string, f ListFilter) ([]database.Message, error) {
	q := `SELECT * FROM messages WHERE tenant_id = $1`
	args := []any{tenantID}
	if f.Channel != "" {
		args = append(args, f.Channel)
		q += fmt.Sprintf(" AND channel = $%d", len(args))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		q += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if f.ClientID != nil {
		args = append(args, *f.ClientID)
		q += fmt.Sprintf(" AND client_id = $%d", len(args))
	}
	q += " ORDER BY received_at DESC"
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	args = append(args, limit)
	q += fmt.Sprintf(" LIMIT $%d", len(args))

	var out []database.Message
	if err := s.db.SelectContext(ctx, &out, q, args...); err != nil {
		return nil, fmt.Errorf("ingest: list messages: %w", err)
	}
	return out, nil
}

func (s *PGStore) FindByExternalID(ctx context.Context, tenantID, channel, externalID string) (*database.Message, error) {
	return s.findOne(ctx,
		`SELECT * FROM messages WHERE tenant_id = $1 AND channel = $2 AND external_id = $3`,
		tenantID, channel, externalID)
}

func (s *PGStore) FindByChecksum(ctx context.Context, tenantID, channel, checksum string) (*database.Message, error) {
	return s.findOne(ctx,
		`SELECT * FROM messages WHERE tenant_id = $1 AND channel = $2 AND checksum = $3`,
		tenantID, channel, checksum)
}

func (s *PGStore) findOne(ctx context.Context, q string, args ...any) (*database.Message, error) {
	var m database.Message
	err := s.db.GetContext(ctx, &m, q, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ingest: find message: %w", err)
	}
	return &m, nil
}

func (s *PGStore) SetStatus(ctx context.Context, id uuid.UUID, status string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE messages SET status = $2, updated_at = now() WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("ingest: set status: %w", err)
	}
	return nil
}

func (s *PGStore) SetAnalysis(ctx context.Context, id uuid.UUID, analysis json.RawMessage, status string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE messages SET ai_analysis = $2, status = $3, updated_at = now() WHERE id = $1`,
		id, analysis, status)
	if err != nil {
		return fmt.Errorf("ingest: set analysis: %w", err)
	}
	return nil
}

func (s *PGStore) ArchiveOlderThan(ctx context.Context, tenantID, channel string, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE messages SET status = $4, updated_at = now()
		WHERE tenant_id = $1 AND ($2 = '' OR channel = $2) AND received_at < $3 AND status <> $4`,
		tenantID, channel, cutoff, database.MessageArchived)
	if err != nil {
		return 0, fmt.Errorf("ingest: archive: %w", err)
	}
	return res.RowsAffected()
}

func (s *PGStore) DeleteArchivedOlderThan(ctx context.Context, tenantID, channel string, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM messages
		WHERE tenant_id = $1 AND ($2 = '' OR channel = $2) AND received_at < $3 AND status = $4`,
		tenantID, channel, cutoff, database.MessageArchived)
	if err != nil {
		return 0, fmt.Errorf("ingest: retention delete: %w", err)
	}
	return res.RowsAffected()
}

func (s *PGStore) DeleteMessagesByClient(ctx context.Context, clientID uuid.UUID) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE client_id = $1`, clientID)
	if err != nil {
		return 0, fmt.Errorf("ingest: erase messages: %w", err)
	}
	return res.RowsAffected()
}

func (s *PGStore) DeleteDocumentsByClient(ctx context.Context, clientID uuid.UUID) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM documents
		WHERE dossier_id IN (SELECT id FROM dossiers WHERE client_id = $1)`, clientID)
	if err != nil {
		return 0, fmt.Errorf("ingest: erase documents: %w", err)
	}
	return res.RowsAffected()
}

// MemoryStore is the in-memory Store used by tests and local runs without
// Postgres. Documents live in the match repository, so the erasure hook for
// them is pluggable.
type MemoryStore struct {
	mu       sync.Mutex
	messages []database.Message

	// DocEraser, when set, handles DeleteDocumentsByClient.
	DocEraser func(ctx context.Context, clientID uuid.UUID) (int64, error)
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (s *MemoryStore) Create(ctx context.Context, m *database.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.messages {
		e := &s.messages[i]
		if e.TenantID != m.TenantID || e.Channel != m.Channel {
			continue
		}
		if m.ExternalID != nil && e.ExternalID != nil && *e.ExternalID == *m.ExternalID {
			return fmt.Errorf("ingest: duplicate external id %s", *m.ExternalID)
		}
		if e.Checksum == m.Checksum {
			return fmt.Errorf("ingest: duplicate checksum %s", m.Checksum)
		}
	}
	now := time.Now().UTC()
	m.CreatedAt = now
	m.UpdatedAt = now
	s.messages = append(s.messages, *m)
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, tenantID string, id uuid.UUID) (*database.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.messages {
		if s.messages[i].TenantID == tenantID && s.messages[i].ID == id {
			m := s.messages[i]
			return &m, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) List(ctx context.Context, tenantID string, f ListFilter) ([]database.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []database.Message
	for i := len(s.messages) - 1; i >= 0; i-- {
		m := s.messages[i]
		if m.TenantID != tenantID {
			continue
		}
		if f.Channel != "" && m.Channel != f.Channel {
			continue
		}
		if f.Status != "" && m.Status != f.Status {
			continue
		}
		if f.ClientID != nil && (m.ClientID == nil || *m.ClientID != *f.ClientID) {
			continue
		}
		out = append(out, m)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) FindByExternalID(ctx context.Context, tenantID, channel, externalID string) (*database.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.messages {
		m := s.messages[i]
		if m.TenantID == tenantID && m.Channel == channel && m.ExternalID != nil && *m.ExternalID == externalID {
			return &m, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) FindByChecksum(ctx context.Context, tenantID, channel, checksum string) (*database.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.messages {
		m := s.messages[i]
		if m.TenantID == tenantID && m.Channel == channel && m.Checksum == checksum {
			return &m, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) SetStatus(ctx context.Context, id uuid.UUID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.messages {
		if s.messages[i].ID == id {
			s.messages[i].Status = status
			s.messages[i].UpdatedAt = time.Now().UTC()
			return nil
		}
	}
	return fmt.Errorf("ingest: message %s not found", id)
}

func (s *MemoryStore) SetAnalysis(ctx context.Context, id uuid.UUID, analysis json.RawMessage, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.messages {
		if s.messages[i].ID == id {
			s.messages[i].AIAnalysis = analysis
			s.messages[i].Status = status
			s.messages[i].UpdatedAt = time.Now().UTC()
			return nil
		}
	}
	return fmt.Errorf("ingest: message %s not found", id)
}

// retentionChannelMatches mirrors the SQL predicate: an empty policy channel
// is a wildcard over every channel.
func retentionChannelMatches(got, want string) bool {
	return want == "" || strings.EqualFold(got, want)
}

func (s *MemoryStore) ArchiveOlderThan(ctx context.Context, tenantID, channel string, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for i := range s.messages {
		m := &s.messages[i]
		if m.TenantID == tenantID && retentionChannelMatches(m.Channel, channel) &&
			m.ReceivedAt.Before(cutoff) && m.Status != database.MessageArchived {
			m.Status = database.MessageArchived
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) DeleteArchivedOlderThan(ctx context.Context, tenantID, channel string, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var kept []database.Message
	var n int64
	for _, m := range s.messages {
		if m.TenantID == tenantID && retentionChannelMatches(m.Channel, channel) &&
			m.ReceivedAt.Before(cutoff) && m.Status == database.MessageArchived {
			n++
			continue
		}
		kept = append(kept, m)
	}
	s.messages = kept
	return n, nil
}

func (s *MemoryStore) DeleteMessagesByClient(ctx context.Context, clientID uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var kept []database.Message
	var n int64
	for _, m := range s.messages {
		if m.ClientID != nil && *m.ClientID == clientID {
			n++
			continue
		}
		kept = append(kept, m)
	}
	s.messages = kept
	return n, nil
}

func (s *MemoryStore) DeleteDocumentsByClient(ctx context.Context, clientID uuid.UUID) (int64, error) {
	if s.DocEraser != nil {
		return s.DocEraser(ctx, clientID)
	}
	return 0, nil
}
