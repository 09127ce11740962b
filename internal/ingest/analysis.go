package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	database "github.com/juralis/juralis-backend/internal"
)

// Urgency levels as scored by analysis.
const (
	UrgencyLow      = "LOW"
	UrgencyMedium   = "MEDIUM"
	UrgencyHigh     = "HIGH"
	UrgencyCritical = "CRITICAL"
)

// Entity is one extracted reference (email, phone, amount, case number...).
type Entity struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Analysis is the fixed result shape shared by the external service and the
// local heuristic.
type Analysis struct {
	Summary    string   `json:"summary"`
	Category   string   `json:"category"`
	Tags       []string `json:"tags"`
	Sentiment  string   `json:"sentiment"`
	Urgency    string   `json:"urgency"`
	Entities   []Entity `json:"entities"`
	Confidence float64  `json:"confidence"`
	// Degraded carries the collaborator failure that forced the heuristic
	// fallback. Empty when the external service answered.
	Degraded string `json:"degraded,omitempty"`
}

type Analyzer interface {
	Analyze(ctx context.Context, m *database.Message) (*Analysis, error)
}

// HTTPAnalyzer calls the external analysis service. When the breaker is
// open, or the call fails, it degrades to Fallback instead of erroring; a
// nil Fallback turns those cases into errors.
type HTTPAnalyzer struct {
	Endpoint string
	APIKey   string
	Client   *http.Client
	Breaker  *CircuitBreaker
	Fallback Analyzer
}

func NewHTTPAnalyzer(endpoint, apiKey string) *HTTPAnalyzer {
	return &HTTPAnalyzer{
		Endpoint: endpoint,
		APIKey:   apiKey,
		Client:   &http.Client{Timeout: 15 * time.Second},
		Breaker:  GetBreaker("analysis"),
		Fallback: &HeuristicAnalyzer{},
	}
}

type analyzeRequest struct {
	Channel string `json:"channel"`
	Subject string `json:"subject,omitempty"`
	Body    string `json:"body"`
}

func (a *HTTPAnalyzer) Analyze(ctx context.Context, m *database.Message) (*Analysis, error) {
	if a.Breaker != nil && !a.Breaker.Allow() {
		return a.degrade(ctx, m, fmt.Errorf("ingest: analysis breaker open"))
	}
	out, err := a.call(ctx, m)
	if err != nil {
		if a.Breaker != nil {
			a.Breaker.ReportFailure()
		}
		return a.degrade(ctx, m, err)
	}
	if a.Breaker != nil {
		a.Breaker.ReportSuccess()
	}
	return out, nil
}

func (a *HTTPAnalyzer) call(ctx context.Context, m *database.Message) (*Analysis, error) {
	subject := ""
	if m.Subject != nil {
		subject = *m.Subject
	}
	body, err := json.Marshal(analyzeRequest{Channel: m.Channel, Subject: subject, Body: m.Body})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if a.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.APIKey)
	}
	resp, err := a.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ingest: analysis call: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ingest: analysis status %d", resp.StatusCode)
	}
	var out Analysis
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("ingest: analysis decode: %w", err)
	}
	if out.Urgency == "" {
		out.Urgency = UrgencyLow
	}
	return &out, nil
}

func (a *HTTPAnalyzer) degrade(ctx context.Context, m *database.Message, cause error) (*Analysis, error) {
	if a.Fallback == nil {
		return nil, cause
	}
	out, err := a.Fallback.Analyze(ctx, m)
	if err != nil {
		return nil, err
	}
	out.Degraded = cause.Error()
	return out, nil
}

// HeuristicAnalyzer is the degraded local path: keyword urgency scoring and
// regex entity extraction over subject+body. Confidence stays low so
// downstream consumers can tell it apart from real model output.
type HeuristicAnalyzer struct{}

var criticalKeywords = []string{
	"mise en demeure", "injunction", "subpoena", "court order", "saisie",
	"assignation", "seizure notice",
}

var highKeywords = []string{
	"urgent", "asap", "immediately", "as soon as possible", "deadline",
	"hearing", "audience", "expires today", "dernier delai",
}

var mediumKeywords = []string{
	"reminder", "relance", "this week", "follow up", "soon",
}

var entityPatterns = []struct {
	typ string
	re  *regexp.Regexp
}{
	{"email", regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)},
	{"phone", regexp.MustCompile(`\+?[0-9][0-9 .\-]{7,14}[0-9]`)},
	{"case_ref", regexp.MustCompile(`\bRG\s?[0-9]{2}/[0-9]{3,5}\b`)},
	{"amount", regexp.MustCompile(`[0-9][0-9 .,]*\s?(?:€|EUR|eur)\b`)},
	{"date", regexp.MustCompile(`\b[0-3]?[0-9]/[01]?[0-9]/20[0-9]{2}\b`)},
}

func (h *HeuristicAnalyzer) Analyze(ctx context.Context, m *database.Message) (*Analysis, error) {
	text := m.Body
	if m.Subject != nil {
		text = *m.Subject + "\n" + text
	}
	lower := strings.ToLower(text)

	urgency := UrgencyLow
	switch {
	case containsAny(lower, criticalKeywords):
		urgency = UrgencyCritical
	case containsAny(lower, highKeywords):
		urgency = UrgencyHigh
	case containsAny(lower, mediumKeywords):
		urgency = UrgencyMedium
	}

	var entities []Entity
	seen := map[string]bool{}
	for _, p := range entityPatterns {
		for _, v := range p.re.FindAllString(text, 10) {
			v = strings.TrimSpace(v)
			if !seen[p.typ+"|"+v] {
				seen[p.typ+"|"+v] = true
				entities = append(entities, Entity{Type: p.typ, Value: v})
			}
		}
	}

	summary := strings.TrimSpace(m.Body)
	if len(summary) > 200 {
		summary = summary[:200]
	}
	return &Analysis{
		Summary:    summary,
		Category:   "GENERAL",
		Tags:       []string{"heuristic"},
		Sentiment:  "NEUTRAL",
		Urgency:    urgency,
		Entities:   entities,
		Confidence: 0.2,
	}, nil
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}
