package ingest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	database "github.com/juralis/juralis-backend/internal"
)

func msgWith(subject, body string) *database.Message {
	m := &database.Message{Channel: "EMAIL", Body: body}
	if subject != "" {
		m.Subject = &subject
	}
	return m
}

func TestHeuristicUrgency(t *testing.T) {
	cases := []struct {
		body string
		want string
	}{
		{"Bonjour, merci pour votre retour.", UrgencyLow},
		{"Petit reminder pour le rendez-vous.", UrgencyMedium},
		{"URGENT: deadline demain matin.", UrgencyHigh},
		{"Nous avons recu une mise en demeure ce matin.", UrgencyCritical},
		{"The court order arrived today.", UrgencyCritical},
	}
	h := &HeuristicAnalyzer{}
	for _, c := range cases {
		out, err := h.Analyze(context.Background(), msgWith("", c.body))
		if err != nil {
			t.Fatalf("Analyze(%q): %v", c.body, err)
		}
		if out.Urgency != c.want {
			t.Fatalf("urgency(%q) = %s, want %s", c.body, out.Urgency, c.want)
		}
	}
}

func TestHeuristicSubjectCountsTowardUrgency(t *testing.T) {
	h := &HeuristicAnalyzer{}
	out, _ := h.Analyze(context.Background(), msgWith("Assignation en justice", "Voir piece jointe."))
	if out.Urgency != UrgencyCritical {
		t.Fatalf("urgency = %s, want %s", out.Urgency, UrgencyCritical)
	}
}

func TestHeuristicEntities(t *testing.T) {
	h := &HeuristicAnalyzer{}
	body := "Contactez alice@example.com ou +33 6 12 34 56 78. Ref RG 24/01234, montant 1 500,00 EUR, audience le 15/09/2026."
	out, err := h.Analyze(context.Background(), msgWith("", body))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	types := map[string]bool{}
	for _, e := range out.Entities {
		types[e.Type] = true
	}
	for _, want := range []string{"email", "phone", "case_ref", "amount", "date"} {
		if !types[want] {
			t.Fatalf("missing entity type %s in %+v", want, out.Entities)
		}
	}
	if out.Confidence >= 0.5 {
		t.Fatalf("heuristic confidence = %v, should stay low", out.Confidence)
	}
}

func TestHTTPAnalyzerParsesServiceResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req analyzeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		json.NewEncoder(w).Encode(Analysis{
			Summary:    "Client asks about contract clause",
			Category:   "CONTRACT",
			Tags:       []string{"contract"},
			Sentiment:  "NEUTRAL",
			Urgency:    UrgencyMedium,
			Confidence: 0.93,
		})
	}))
	defer srv.Close()

	a := NewHTTPAnalyzer(srv.URL, "")
	a.Breaker = GetBreaker("analysis-test-ok")
	out, err := a.Analyze(context.Background(), msgWith("s", "b"))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if out.Category != "CONTRACT" || out.Confidence != 0.93 {
		t.Fatalf("out = %+v", out)
	}
}

func TestHTTPAnalyzerFallsBackWhenServiceDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	a := NewHTTPAnalyzer(srv.URL, "")
	a.Breaker = GetBreaker("analysis-test-down")
	out, err := a.Analyze(context.Background(), msgWith("", "urgent please reply asap"))
	if err != nil {
		t.Fatalf("Analyze should degrade, got error: %v", err)
	}
	if out.Urgency != UrgencyHigh {
		t.Fatalf("fallback urgency = %s, want %s", out.Urgency, UrgencyHigh)
	}
	if out.Confidence >= 0.5 {
		t.Fatalf("fallback confidence = %v, should stay low", out.Confidence)
	}
	if out.Degraded == "" {
		t.Fatal("degraded result should carry the collaborator failure")
	}
}

func TestHTTPAnalyzerErrorsWithoutFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	a := NewHTTPAnalyzer(srv.URL, "")
	a.Breaker = GetBreaker("analysis-test-nofallback")
	a.Fallback = nil
	if _, err := a.Analyze(context.Background(), msgWith("", "b")); err == nil {
		t.Fatal("expected error without fallback")
	}
}

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b := GetBreaker("analysis-test-breaker")
	if !b.Allow() {
		t.Fatal("fresh breaker should allow")
	}
	for i := 0; i < 3; i++ {
		b.ReportFailure()
	}
	if b.Allow() {
		t.Fatal("breaker should be open after threshold failures")
	}
	b.ReportSuccess()
	if !b.Allow() {
		t.Fatal("success should close the breaker")
	}
}
