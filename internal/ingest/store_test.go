package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	database "github.com/juralis/juralis-backend/internal"
)

func seedMessage(t *testing.T, store *MemoryStore, tenant, channel, status string, age time.Duration) uuid.UUID {
	t.Helper()
	m := &database.Message{
		ID:         uuid.New(),
		TenantID:   tenant,
		Channel:    channel,
		Direction:  database.DirectionInbound,
		Checksum:   uuid.New().String(),
		Status:     status,
		ReceivedAt: time.Now().UTC().Add(-age),
	}
	if err := store.Create(context.Background(), m); err != nil {
		t.Fatalf("Create: %v", err)
	}
	return m.ID
}

func TestArchiveOlderThanEmptyChannelCoversAllChannels(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	oldEmail := seedMessage(t, store, "t1", "EMAIL", database.MessageReceived, 45*24*time.Hour)
	oldSMS := seedMessage(t, store, "t1", "SMS", database.MessageReceived, 45*24*time.Hour)
	fresh := seedMessage(t, store, "t1", "EMAIL", database.MessageReceived, 10*24*time.Hour)

	cutoff := time.Now().UTC().AddDate(0, 0, -30)
	n, err := store.ArchiveOlderThan(ctx, "t1", "", cutoff)
	if err != nil {
		t.Fatalf("ArchiveOlderThan: %v", err)
	}
	if n != 2 {
		t.Fatalf("archived = %d, want 2", n)
	}
	for _, id := range []uuid.UUID{oldEmail, oldSMS} {
		m, _ := store.Get(ctx, "t1", id)
		if m.Status != database.MessageArchived {
			t.Fatalf("message %s status = %s, want ARCHIVED", id, m.Status)
		}
	}
	if m, _ := store.Get(ctx, "t1", fresh); m.Status != database.MessageReceived {
		t.Fatalf("recent message touched: %s", m.Status)
	}
}

func TestDeleteArchivedOlderThanEmptyChannelCoversAllChannels(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	archEmail := seedMessage(t, store, "t1", "EMAIL", database.MessageArchived, 45*24*time.Hour)
	archForm := seedMessage(t, store, "t1", "FORM", database.MessageArchived, 45*24*time.Hour)
	live := seedMessage(t, store, "t1", "SMS", database.MessageProcessed, 45*24*time.Hour)

	cutoff := time.Now().UTC().AddDate(0, 0, -30)
	n, err := store.DeleteArchivedOlderThan(ctx, "t1", "", cutoff)
	if err != nil {
		t.Fatalf("DeleteArchivedOlderThan: %v", err)
	}
	if n != 2 {
		t.Fatalf("deleted = %d, want 2", n)
	}
	for _, id := range []uuid.UUID{archEmail, archForm} {
		if m, _ := store.Get(ctx, "t1", id); m != nil {
			t.Fatalf("archived message %s should be gone", id)
		}
	}
	if m, _ := store.Get(ctx, "t1", live); m == nil {
		t.Fatal("non-archived message deleted by retention")
	}
}

func TestRetentionScopedChannelLeavesOthersAlone(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	email := seedMessage(t, store, "t1", "EMAIL", database.MessageReceived, 45*24*time.Hour)
	sms := seedMessage(t, store, "t1", "SMS", database.MessageReceived, 45*24*time.Hour)

	cutoff := time.Now().UTC().AddDate(0, 0, -30)
	n, err := store.ArchiveOlderThan(ctx, "t1", "EMAIL", cutoff)
	if err != nil {
		t.Fatalf("ArchiveOlderThan: %v", err)
	}
	if n != 1 {
		t.Fatalf("archived = %d, want 1", n)
	}
	if m, _ := store.Get(ctx, "t1", email); m.Status != database.MessageArchived {
		t.Fatalf("email status = %s", m.Status)
	}
	if m, _ := store.Get(ctx, "t1", sms); m.Status != database.MessageReceived {
		t.Fatalf("sms status = %s, should be untouched", m.Status)
	}
}
