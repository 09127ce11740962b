package audit

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// ErasureTarget is implemented by the message/document side of persistence.
type ErasureTarget interface {
	DeleteMessagesByClient(ctx context.Context, clientID uuid.UUID) (int64, error)
	DeleteDocumentsByClient(ctx context.Context, clientID uuid.UUID) (int64, error)
}

// ErasureOptions controls right-to-erasure behavior. The ledger itself is
// never deleted: entries are anonymized in place (client/actor references
// cleared, anonymized flag set) so the hash chain stays verifiable. Set
// KeepAuditLogs to leave ledger entries untouched instead.
type ErasureOptions struct {
	KeepAuditLogs bool
}

// ErasureReport lists what the erasure removed or anonymized.
type ErasureReport struct {
	MessagesDeleted   int64 `json:"messages_deleted"`
	DocumentsDeleted  int64 `json:"documents_deleted"`
	ConsentsDeleted   int64 `json:"consents_deleted"`
	EntriesAnonymized int64 `json:"entries_anonymized"`
}

// Erasure executes data-subject erasure requests.
type Erasure struct {
	target   ErasureTarget
	consents ConsentStore
	store    Store
	ledger   *Ledger
}

func NewErasure(target ErasureTarget, consents ConsentStore, store Store, ledger *Ledger) *Erasure {
	return &Erasure{target: target, consents: consents, store: store, ledger: ledger}
}

// DeleteClientData cascades deletion over messages, documents and consent
// records, then anonymizes the client's ledger entries unless opted out,
// and finally appends a DATA_ERASURE summary entry.
func (e *Erasure) DeleteClientData(ctx context.Context, tenantID string, clientID uuid.UUID, opts ErasureOptions) (*ErasureReport, error) {
	report := &ErasureReport{}

	n, err := e.target.DeleteDocumentsByClient(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("erasure: documents: %w", err)
	}
	report.DocumentsDeleted = n

	n, err = e.target.DeleteMessagesByClient(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("erasure: messages: %w", err)
	}
	report.MessagesDeleted = n

	n, err = e.consents.DeleteByClient(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("erasure: consents: %w", err)
	}
	report.ConsentsDeleted = n

	if !opts.KeepAuditLogs {
		n, err = e.store.AnonymizeClient(ctx, clientID)
		if err != nil {
			return nil, fmt.Errorf("erasure: anonymize ledger: %w", err)
		}
		report.EntriesAnonymized = n
	}

	// The summary entry intentionally omits ClientID: linking the erasure
	// record back to the erased identity would defeat the anonymization.
	_, err = e.ledger.Log(ctx, Record{
		TenantID:     tenantID,
		Action:       ActionDataErasure,
		ResourceType: "client",
		ResourceID:   "erased",
		Details: map[string]any{
			"messages_deleted":   report.MessagesDeleted,
			"documents_deleted":  report.DocumentsDeleted,
			"consents_deleted":   report.ConsentsDeleted,
			"entries_anonymized": report.EntriesAnonymized,
		},
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}
