package match

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	database "github.com/juralis/juralis-backend/internal"
	"github.com/juralis/juralis-backend/internal/audit"
)

// DefaultThreshold is the similarity ratio above which two normalized names
// are considered the same identity. 0.88 absorbs one or two character edits
// on typical name lengths without merging distinct short names.
const DefaultThreshold = 0.88

// Repository is the persistence collaborator behind identity resolution.
// Find methods return (nil, nil) on a clean miss.
type Repository interface {
	FindClientByEmail(ctx context.Context, tenantID, email string) (*database.Client, error)
	ListClients(ctx context.Context, tenantID string) ([]database.Client, error)
	CreateClient(ctx context.Context, c *database.Client) error
	FindDossier(ctx context.Context, clientID uuid.UUID, normalizedTitle string) (*database.Dossier, error)
	CreateDossier(ctx context.Context, d *database.Dossier) error
	FindDocByHash(ctx context.Context, dossierID uuid.UUID, sha string) (*database.Document, error)
	CreateDoc(ctx context.Context, d *database.Document) error
}

// Tracer is an optional lightweight diagnostic hook, distinct from the
// cryptographic ledger.
type Tracer interface {
	Log(action string, details map[string]any)
}

// Resolver matches inbound contact identities to clients, dossiers and
// documents, creating records lazily on first sight.
type Resolver struct {
	repo   Repository
	ledger *audit.Ledger
	tracer Tracer

	// Creation of a never-seen client/dossier/document is serialized per
	// identity key so two identical concurrent webhooks cannot both miss
	// the lookup and double-create.
	mu   sync.Mutex
	keys map[string]*sync.Mutex
}

func NewResolver(repo Repository, ledger *audit.Ledger, tracer Tracer) *Resolver {
	return &Resolver{repo: repo, ledger: ledger, tracer: tracer, keys: map[string]*sync.Mutex{}}
}

func (r *Resolver) keyLock(key string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.keys[key]
	if !ok {
		m = &sync.Mutex{}
		r.keys[key] = m
	}
	return m
}

func (r *Resolver) trace(action string, details map[string]any) {
	if r.tracer != nil {
		r.tracer.Log(action, details)
	}
}

// IdentifyOrCreateClient resolves a contact to an existing client or creates
// one. Exact case-insensitive email match is authoritative and skips fuzzy
// logic entirely; otherwise the best Levenshtein similarity over normalized
// names wins when it clears threshold. Ties on equal maximum ratio break
// deterministically toward the lowest client id. Pass threshold <= 0 for
// the default.
func (r *Resolver) IdentifyOrCreateClient(ctx context.Context, tenantID, email, first, last string, threshold float64) (*database.Client, error) {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	email = strings.ToLower(strings.TrimSpace(email))

	if email != "" {
		c, err := r.repo.FindClientByEmail(ctx, tenantID, email)
		if err != nil {
			return nil, fmt.Errorf("match: find by email: %w", err)
		}
		if c != nil {
			r.trace("client.match_email", map[string]any{"client_id": c.ID.String()})
			if err := r.logClient(ctx, tenantID, audit.ActionClientMatchEmail, c.ID, map[string]any{"email": email}); err != nil {
				return nil, err
			}
			return c, nil
		}
	}

	normalized := NormalizeName(first, last)
	lock := r.keyLock("client|" + tenantID + "|" + normalized)
	lock.Lock()
	defer lock.Unlock()

	clients, err := r.repo.ListClients(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("match: list clients: %w", err)
	}
	var best *database.Client
	bestRatio := -1.0
	for i := range clients {
		c := &clients[i]
		ratio := Similarity(normalized, NormalizeName(c.FirstName, c.LastName))
		if ratio > bestRatio || (ratio == bestRatio && best != nil && c.ID.String() < best.ID.String()) {
			best = c
			bestRatio = ratio
		}
	}
	if best != nil && bestRatio >= threshold {
		r.trace("client.match_name", map[string]any{"client_id": best.ID.String(), "ratio": bestRatio})
		if err := r.logClient(ctx, tenantID, audit.ActionClientMatchName, best.ID, map[string]any{
			"candidate": normalized,
			"ratio":     bestRatio,
		}); err != nil {
			return nil, err
		}
		return best, nil
	}

	c := &database.Client{
		ID:        uuid.New(),
		TenantID:  tenantID,
		FirstName: strings.TrimSpace(first),
		LastName:  strings.TrimSpace(last),
	}
	if email != "" {
		c.Email = &email
	}
	if err := r.repo.CreateClient(ctx, c); err != nil {
		return nil, fmt.Errorf("match: create client: %w", err)
	}
	r.trace("client.create", map[string]any{"client_id": c.ID.String()})
	if err := r.logClient(ctx, tenantID, audit.ActionClientCreate, c.ID, map[string]any{"name": normalized}); err != nil {
		return nil, err
	}
	return c, nil
}

// AssociateDossier finds the client's dossier with the same normalized title
// or creates it. Titles are matched exactly after normalization, never
// fuzzily.
func (r *Resolver) AssociateDossier(ctx context.Context, tenantID string, client *database.Client, title string) (*database.Dossier, error) {
	normalized := NormalizeTitle(title)
	if normalized == "" {
		return nil, fmt.Errorf("match: dossier title is empty")
	}
	lock := r.keyLock("dossier|" + client.ID.String() + "|" + normalized)
	lock.Lock()
	defer lock.Unlock()

	d, err := r.repo.FindDossier(ctx, client.ID, normalized)
	if err != nil {
		return nil, fmt.Errorf("match: find dossier: %w", err)
	}
	clientID := client.ID
	if d != nil {
		if _, err := r.ledger.Log(ctx, audit.Record{
			TenantID: tenantID, Action: audit.ActionDossierMatch,
			ResourceType: "dossier", ResourceID: d.ID.String(), ClientID: &clientID,
			Details: map[string]any{"title": normalized},
		}); err != nil {
			return nil, err
		}
		return d, nil
	}

	d = &database.Dossier{ID: uuid.New(), ClientID: client.ID, Title: strings.TrimSpace(title)}
	if err := r.repo.CreateDossier(ctx, d); err != nil {
		return nil, fmt.Errorf("match: create dossier: %w", err)
	}
	if _, err := r.ledger.Log(ctx, audit.Record{
		TenantID: tenantID, Action: audit.ActionDossierCreate,
		ResourceType: "dossier", ResourceID: d.ID.String(), ClientID: &clientID,
		Details: map[string]any{"title": normalized},
	}); err != nil {
		return nil, err
	}
	return d, nil
}

// IngestDocument stores content under the dossier unless a document with the
// same SHA-256 already exists there; retransmitted content is a silent,
// logged no-op with created=false.
func (r *Resolver) IngestDocument(ctx context.Context, tenantID string, dossier *database.Dossier, name string, content []byte, locator string) (*database.Document, bool, error) {
	sum := sha256.Sum256(content)
	sha := hex.EncodeToString(sum[:])

	lock := r.keyLock("doc|" + dossier.ID.String() + "|" + sha)
	lock.Lock()
	defer lock.Unlock()

	existing, err := r.repo.FindDocByHash(ctx, dossier.ID, sha)
	if err != nil {
		return nil, false, fmt.Errorf("match: find doc: %w", err)
	}
	if existing != nil {
		r.trace("doc.skip_duplicate", map[string]any{"doc_id": existing.ID.String()})
		if _, err := r.ledger.Log(ctx, audit.Record{
			TenantID: tenantID, Action: audit.ActionDocSkipDuplicate,
			ResourceType: "document", ResourceID: existing.ID.String(),
			Details: map[string]any{"sha256": sha, "name": name},
		}); err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}

	doc := &database.Document{ID: uuid.New(), DossierID: dossier.ID, Name: name, SHA256: sha}
	if locator != "" {
		doc.Locator = &locator
	}
	if err := r.repo.CreateDoc(ctx, doc); err != nil {
		return nil, false, fmt.Errorf("match: create doc: %w", err)
	}
	r.trace("doc.create", map[string]any{"doc_id": doc.ID.String()})
	if _, err := r.ledger.Log(ctx, audit.Record{
		TenantID: tenantID, Action: audit.ActionDocCreate,
		ResourceType: "document", ResourceID: doc.ID.String(),
		Details: map[string]any{"sha256": sha, "name": name},
	}); err != nil {
		return nil, false, err
	}
	return doc, true, nil
}

func (r *Resolver) logClient(ctx context.Context, tenantID, action string, clientID uuid.UUID, details map[string]any) error {
	id := clientID
	_, err := r.ledger.Log(ctx, audit.Record{
		TenantID:     tenantID,
		Action:       action,
		ResourceType: "client",
		ResourceID:   clientID.String(),
		ClientID:     &id,
		Details:      details,
	})
	return err
}
