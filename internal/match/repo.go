package match

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	database "github.com/juralis/juralis-backend/internal"
)

// PGRepository is the Postgres-backed Repository.
type PGRepository struct {
	db *sqlx.DB
}

func NewPGRepository(db *sqlx.DB) *PGRepository { return &PGRepository{db: db} }

func (r *PGRepository) FindClientByEmail(ctx context.Context, tenantID, email string) (*database.Client, error) {
	var c database.Client
	err := r.db.GetContext(ctx, &c,
		`SELECT * FROM clients WHERE tenant_id=$1 AND lower(email)=lower($2) LIMIT 1`, tenantID, email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *PGRepository) ListClients(ctx context.Context, tenantID string) ([]database.Client, error) {
	out := []database.Client{}
	err := r.db.SelectContext(ctx, &out, `SELECT * FROM clients WHERE tenant_id=$1 ORDER BY id ASC`, tenantID)
	return out, err
}

func (r *PGRepository) CreateClient(ctx context.Context, c *database.Client) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.NamedExecContext(ctx, `INSERT INTO clients (id, tenant_id, email, first_name, last_name, created_at)
		VALUES (:id, :tenant_id, :email, :first_name, :last_name, :created_at)`, c)
	return err
}

func (r *PGRepository) FindDossier(ctx context.Context, clientID uuid.UUID, normalizedTitle string) (*database.Dossier, error) {
	var d database.Dossier
	err := r.db.GetContext(ctx, &d,
		`SELECT * FROM dossiers WHERE client_id=$1 AND lower(trim(title))=$2 LIMIT 1`, clientID, normalizedTitle)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *PGRepository) CreateDossier(ctx context.Context, d *database.Dossier) error {
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.NamedExecContext(ctx, `INSERT INTO dossiers (id, client_id, title, created_at)
		VALUES (:id, :client_id, :title, :created_at)`, d)
	return err
}

func (r *PGRepository) FindDocByHash(ctx context.Context, dossierID uuid.UUID, sha string) (*database.Document, error) {
	var d database.Document
	err := r.db.GetContext(ctx, &d,
		`SELECT * FROM documents WHERE dossier_id=$1 AND sha256=$2 LIMIT 1`, dossierID, sha)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *PGRepository) CreateDoc(ctx context.Context, d *database.Document) error {
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.NamedExecContext(ctx, `INSERT INTO documents (id, dossier_id, name, sha256, locator, created_at)
		VALUES (:id, :dossier_id, :name, :sha256, :locator, :created_at)`, d)
	return err
}

// MemoryRepository is the in-process Repository used by tests.
type MemoryRepository struct {
	mu       sync.RWMutex
	clients  []database.Client
	dossiers []database.Dossier
	docs     []database.Document
}

func NewMemoryRepository() *MemoryRepository { return &MemoryRepository{} }

func (r *MemoryRepository) FindClientByEmail(ctx context.Context, tenantID, email string) (*database.Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for i := range r.clients {
		c := &r.clients[i]
		if c.TenantID == tenantID && c.Email != nil && strings.EqualFold(*c.Email, email) {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *MemoryRepository) ListClients(ctx context.Context, tenantID string) ([]database.Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []database.Client{}
	for _, c := range r.clients {
		if c.TenantID == tenantID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *MemoryRepository) CreateClient(ctx context.Context, c *database.Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	r.clients = append(r.clients, *c)
	return nil
}

func (r *MemoryRepository) FindDossier(ctx context.Context, clientID uuid.UUID, normalizedTitle string) (*database.Dossier, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for i := range r.dossiers {
		d := &r.dossiers[i]
		if d.ClientID == clientID && NormalizeTitle(d.Title) == normalizedTitle {
			cp := *d
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *MemoryRepository) CreateDossier(ctx context.Context, d *database.Dossier) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	r.dossiers = append(r.dossiers, *d)
	return nil
}

func (r *MemoryRepository) FindDocByHash(ctx context.Context, dossierID uuid.UUID, sha string) (*database.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for i := range r.docs {
		d := &r.docs[i]
		if d.DossierID == dossierID && d.SHA256 == sha {
			cp := *d
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *MemoryRepository) CreateDoc(ctx context.Context, d *database.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	r.docs = append(r.docs, *d)
	return nil
}
