package audit

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
)

func newConsents() (*Consents, *Ledger) {
	ledger := NewLedger(NewMemoryStore())
	return NewConsents(NewMemoryConsentStore(), ledger), ledger
}

func TestConsentGrantAndCheck(t *testing.T) {
	ctx := context.Background()
	consents, _ := newConsents()
	clientID := uuid.New()

	if _, err := consents.Record(ctx, ConsentRequest{
		TenantID: "t1", ClientID: clientID, Channel: "WHATSAPP", Purpose: "case_updates", Granted: true,
	}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	ok, err := consents.Check(ctx, clientID, "WHATSAPP", "case_updates")
	if err != nil || !ok {
		t.Fatalf("Check = %v, %v; want granted", ok, err)
	}
	// A different channel has no consent.
	if ok, _ := consents.Check(ctx, clientID, "SMS", "case_updates"); ok {
		t.Fatal("consent leaked across channels")
	}
}

func TestConsentRevocationWins(t *testing.T) {
	ctx := context.Background()
	consents, _ := newConsents()
	clientID := uuid.New()
	rec, err := consents.Record(ctx, ConsentRequest{TenantID: "t1", ClientID: clientID, Channel: "EMAIL", Granted: true})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := consents.Revoke(ctx, "t1", rec.ID, "user-1"); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if ok, _ := consents.Check(ctx, clientID, "EMAIL", ""); ok {
		t.Fatal("revoked consent still valid")
	}
}

func TestConsentExpiry(t *testing.T) {
	ctx := context.Background()
	consents, _ := newConsents()
	clientID := uuid.New()
	past := time.Now().UTC().Add(-time.Hour)
	if _, err := consents.Record(ctx, ConsentRequest{
		TenantID: "t1", ClientID: clientID, Channel: "SMS", Granted: true, ExpiresAt: &past,
	}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if ok, _ := consents.Check(ctx, clientID, "SMS", ""); ok {
		t.Fatal("expired consent still valid")
	}
}

func TestConsentEmptyPurposeCoversAny(t *testing.T) {
	ctx := context.Background()
	consents, _ := newConsents()
	clientID := uuid.New()
	if _, err := consents.Record(ctx, ConsentRequest{TenantID: "t1", ClientID: clientID, Channel: "EMAIL", Granted: true}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if ok, _ := consents.Check(ctx, clientID, "EMAIL", "marketing"); !ok {
		t.Fatal("blanket consent should cover any purpose")
	}
}

func TestConsentOperationsLandInLedger(t *testing.T) {
	ctx := context.Background()
	consents, ledger := newConsents()
	clientID := uuid.New()
	rec, _ := consents.Record(ctx, ConsentRequest{TenantID: "t1", ClientID: clientID, Channel: "EMAIL", Granted: true})
	_ = consents.Revoke(ctx, "t1", rec.ID, "user-1")

	entries, err := ledger.Trail(ctx, "consent", rec.ID.String())
	if err != nil {
		t.Fatalf("Trail: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("ledger entries = %d, want 2", len(entries))
	}
	if entries[0].Action != ActionConsentGranted || entries[1].Action != ActionConsentRevoked {
		t.Fatalf("actions = %s, %s", entries[0].Action, entries[1].Action)
	}
}
