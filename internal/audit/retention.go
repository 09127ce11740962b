package audit

import (
	"context"
	"fmt"
	"time"
)

// Policy describes one retention rule. An empty Channel applies to all.
type Policy struct {
	Channel       string `json:"channel,omitempty"`
	RetentionDays int    `json:"retention_days"`
	AutoArchive   bool   `json:"auto_archive"`
	AutoDelete    bool   `json:"auto_delete"`
}

// RetentionTarget is implemented by the message store.
type RetentionTarget interface {
	// ArchiveOlderThan marks non-archived messages received before cutoff
	// as ARCHIVED and returns how many changed.
	ArchiveOlderThan(ctx context.Context, tenantID, channel string, cutoff time.Time) (int64, error)
	// DeleteArchivedOlderThan hard-deletes already-archived messages
	// received before cutoff.
	DeleteArchivedOlderThan(ctx context.Context, tenantID, channel string, cutoff time.Time) (int64, error)
}

// RetentionResult summarizes one policy run.
type RetentionResult struct {
	Archived int64 `json:"archived"`
	Deleted  int64 `json:"deleted"`
}

// ApplyRetentionPolicy archives and/or deletes messages older than the
// policy cutoff. A run that touched anything emits one summary ledger entry
// with counts, never one entry per message.
func ApplyRetentionPolicy(ctx context.Context, target RetentionTarget, ledger *Ledger, tenantID string, p Policy) (RetentionResult, error) {
	var res RetentionResult
	if p.RetentionDays <= 0 {
		return res, fmt.Errorf("retention: retention_days must be positive")
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -p.RetentionDays)

	// Delete first: only messages that were already archived before this
	// run are eligible, so a single run never archives and deletes the
	// same message.
	if p.AutoDelete {
		n, err := target.DeleteArchivedOlderThan(ctx, tenantID, p.Channel, cutoff)
		if err != nil {
			return res, fmt.Errorf("retention: delete: %w", err)
		}
		res.Deleted = n
	}
	if p.AutoArchive {
		n, err := target.ArchiveOlderThan(ctx, tenantID, p.Channel, cutoff)
		if err != nil {
			return res, fmt.Errorf("retention: archive: %w", err)
		}
		res.Archived = n
	}

	if res.Archived > 0 || res.Deleted > 0 {
		_, err := ledger.Log(ctx, Record{
			TenantID:     tenantID,
			Action:       ActionRetentionRun,
			ResourceType: "retention_policy",
			ResourceID:   p.Channel,
			Details: map[string]any{
				"channel":        p.Channel,
				"retention_days": p.RetentionDays,
				"archived":       res.Archived,
				"deleted":        res.Deleted,
			},
		})
		if err != nil {
			return res, err
		}
	}
	return res, nil
}
