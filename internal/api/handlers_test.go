package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/bcrypt"

	database "github.com/juralis/juralis-backend/internal"
	"github.com/juralis/juralis-backend/internal/audit"
	channelpkg "github.com/juralis/juralis-backend/internal/channel"
	"github.com/juralis/juralis-backend/internal/ingest"
	"github.com/juralis/juralis-backend/internal/match"
)

func newTestServer(t *testing.T) (*Server, *gin.Engine, *ingest.MemoryStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	auditStore := audit.NewMemoryStore()
	ledger := audit.NewLedger(auditStore)
	messages := ingest.NewMemoryStore()
	consents := audit.NewMemoryConsentStore()
	resolver := match.NewResolver(match.NewMemoryRepository(), ledger, nil)

	orch, err := ingest.NewOrchestrator(ingest.Options{
		Registry: channelpkg.NewRegistry(),
		Resolver: resolver,
		Store:    messages,
		Ledger:   ledger,
		Secret: func(ch channelpkg.Channel) string {
			if ch == channelpkg.Slack {
				return "s3cr3t"
			}
			return ""
		},
	})
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}

	s := &Server{
		Orchestrator: orch,
		Messages:     messages,
		Ledger:       ledger,
		AuditStore:   auditStore,
		Consents:     audit.NewConsents(consents, ledger),
		Erasure:      audit.NewErasure(messages, consents, auditStore, ledger),
	}
	r := gin.New()
	s.Routes(r, RouterConfig{DisableAuth: true, TestTenant: "t1"})
	return s, r, messages
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestWebhookIntakeAcceptsAndDeduplicates(t *testing.T) {
	_, r, _ := newTestServer(t)
	payload := map[string]any{
		"message_id": "m-100",
		"from":       map[string]any{"name": "Alice Martin", "email": "alice@example.com"},
		"subject":    "Question",
		"text":       "Bonjour",
	}

	w := doJSON(t, r, http.MethodPost, "/v1/webhooks/email", payload)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body=%s", w.Code, w.Body.String())
	}
	var first map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &first)
	if dup, _ := first["duplicate"].(bool); dup {
		t.Fatal("first delivery flagged duplicate")
	}

	w2 := doJSON(t, r, http.MethodPost, "/v1/webhooks/email", payload)
	if w2.Code != http.StatusAccepted {
		t.Fatalf("duplicate status = %d, want 202", w2.Code)
	}
	var second map[string]any
	_ = json.Unmarshal(w2.Body.Bytes(), &second)
	if dup, _ := second["duplicate"].(bool); !dup {
		t.Fatalf("redelivery not flagged duplicate: %s", w2.Body.String())
	}
	if first["message_id"] != second["message_id"] {
		t.Fatal("duplicate returned a different message id")
	}
}

func TestWebhookIntakeUnsupportedChannel(t *testing.T) {
	_, r, _ := newTestServer(t)
	w := doJSON(t, r, http.MethodPost, "/v1/webhooks/fax", map[string]any{"x": 1})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestWebhookIntakeBadSignature(t *testing.T) {
	_, r, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/slack",
		bytes.NewReader([]byte(`{"event_id":"Ev9","event":{"user":"U1","text":"hi"}}`)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Slack-Signature", "v0=deadbeef")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401; body=%s", w.Code, w.Body.String())
	}
}

func TestWebhookIntakeBadPayload(t *testing.T) {
	_, r, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/email", bytes.NewReader([]byte("{not json")))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestGetAndListMessages(t *testing.T) {
	_, r, _ := newTestServer(t)
	w := doJSON(t, r, http.MethodPost, "/v1/webhooks/email", map[string]any{
		"message_id": "m-200",
		"from":       map[string]any{"name": "Alice Martin", "email": "alice@example.com"},
		"text":       "hello",
	})
	var created map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &created)
	id, _ := created["message_id"].(string)

	got := doJSON(t, r, http.MethodGet, "/v1/messages/"+id, nil)
	if got.Code != http.StatusOK {
		t.Fatalf("get status = %d", got.Code)
	}
	var msg database.Message
	if err := json.Unmarshal(got.Body.Bytes(), &msg); err != nil {
		t.Fatalf("decode message: %v", err)
	}
	if msg.Channel != "EMAIL" || msg.Body != "hello" {
		t.Fatalf("message = %+v", msg)
	}

	miss := doJSON(t, r, http.MethodGet, "/v1/messages/"+uuid.NewString(), nil)
	if miss.Code != http.StatusNotFound {
		t.Fatalf("miss status = %d, want 404", miss.Code)
	}

	list := doJSON(t, r, http.MethodGet, "/v1/messages?channel=EMAIL", nil)
	if list.Code != http.StatusOK {
		t.Fatalf("list status = %d", list.Code)
	}
	var page struct {
		Count int `json:"count"`
	}
	_ = json.Unmarshal(list.Body.Bytes(), &page)
	if page.Count != 1 {
		t.Fatalf("count = %d, want 1", page.Count)
	}
}

func TestAuditVerifyEndpoint(t *testing.T) {
	_, r, _ := newTestServer(t)
	doJSON(t, r, http.MethodPost, "/v1/webhooks/email", map[string]any{
		"message_id": "m-300",
		"from":       map[string]any{"name": "Alice Martin", "email": "alice@example.com"},
		"text":       "hello",
	})

	w := doJSON(t, r, http.MethodGet, "/v1/audit/verify", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var report audit.Report
	if err := json.Unmarshal(w.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if !report.Valid || report.TotalEntries == 0 {
		t.Fatalf("report = %+v, want valid non-empty chain", report)
	}
}

func TestConsentLifecycleOverHTTP(t *testing.T) {
	_, r, _ := newTestServer(t)
	clientID := uuid.New()

	w := doJSON(t, r, http.MethodPost, "/v1/consents", map[string]any{
		"client_id": clientID,
		"channel":   "WHATSAPP",
		"purpose":   "case_updates",
		"granted":   true,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("record status = %d, body=%s", w.Code, w.Body.String())
	}
	var rec database.Consent
	_ = json.Unmarshal(w.Body.Bytes(), &rec)

	check := doJSON(t, r, http.MethodGet,
		fmt.Sprintf("/v1/consents/check?client_id=%s&channel=WHATSAPP&purpose=case_updates", clientID), nil)
	var status map[string]bool
	_ = json.Unmarshal(check.Body.Bytes(), &status)
	if !status["granted"] {
		t.Fatalf("check = %s, want granted", check.Body.String())
	}

	rev := doJSON(t, r, http.MethodPost, "/v1/consents/"+rec.ID.String()+"/revoke", nil)
	if rev.Code != http.StatusOK {
		t.Fatalf("revoke status = %d", rev.Code)
	}
	check2 := doJSON(t, r, http.MethodGet,
		fmt.Sprintf("/v1/consents/check?client_id=%s&channel=WHATSAPP&purpose=case_updates", clientID), nil)
	_ = json.Unmarshal(check2.Body.Bytes(), &status)
	if status["granted"] {
		t.Fatal("consent still granted after revoke")
	}
}

func TestRetentionRunOverHTTP(t *testing.T) {
	_, r, store := newTestServer(t)
	old := &database.Message{
		ID:         uuid.New(),
		TenantID:   "t1",
		Channel:    "EMAIL",
		Direction:  database.DirectionInbound,
		Checksum:   "old-1",
		Status:     database.MessageProcessed,
		ReceivedAt: time.Now().AddDate(0, 0, -400),
	}
	if err := store.Create(t.Context(), old); err != nil {
		t.Fatalf("seed: %v", err)
	}

	w := doJSON(t, r, http.MethodPost, "/v1/retention/run", map[string]any{
		"channel":        "EMAIL",
		"retention_days": 365,
		"auto_archive":   true,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body=%s", w.Code, w.Body.String())
	}
	var result audit.RetentionResult
	_ = json.Unmarshal(w.Body.Bytes(), &result)
	if result.Archived != 1 {
		t.Fatalf("archived = %d, want 1", result.Archived)
	}
}

func TestErasureOverHTTP(t *testing.T) {
	_, r, store := newTestServer(t)
	clientID := uuid.New()
	msg := &database.Message{
		ID:         uuid.New(),
		TenantID:   "t1",
		Channel:    "EMAIL",
		Direction:  database.DirectionInbound,
		Checksum:   "erase-1",
		Status:     database.MessageProcessed,
		ClientID:   &clientID,
		ReceivedAt: time.Now(),
	}
	if err := store.Create(t.Context(), msg); err != nil {
		t.Fatalf("seed: %v", err)
	}

	w := doJSON(t, r, http.MethodPost, "/v1/clients/"+clientID.String()+"/erasure", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body=%s", w.Code, w.Body.String())
	}
	var report audit.ErasureReport
	_ = json.Unmarshal(w.Body.Bytes(), &report)
	if report.MessagesDeleted != 1 {
		t.Fatalf("report = %+v, want 1 message deleted", report)
	}
	msgs, _ := store.List(t.Context(), "t1", ingest.ListFilter{})
	if len(msgs) != 0 {
		t.Fatalf("%d messages remain after erasure", len(msgs))
	}
}

func TestApiKeyAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rawKey := "jur_sk_abcdefgh0123456789"
	hashed, err := bcrypt.GenerateFromPassword([]byte(rawKey), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	database.DB = sqlx.NewDb(db, "sqlmock")

	keyID := uuid.New()
	sel := regexp.QuoteMeta(`SELECT id, tenant_id, name, key_prefix, hashed_key, last_used_at, expires_at, revoked_at, created_at FROM api_keys WHERE key_prefix=$1 AND revoked_at IS NULL LIMIT 1`)
	rows := sqlmock.NewRows([]string{"id", "tenant_id", "name", "key_prefix", "hashed_key", "last_used_at", "expires_at", "revoked_at", "created_at"}).
		AddRow(keyID, "t1", "intake", "abcdefgh", string(hashed), nil, nil, nil, time.Now())
	mock.ExpectQuery(sel).WithArgs("abcdefgh").WillReturnRows(rows)
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE api_keys SET last_used_at=$1 WHERE id=$2`)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	r := gin.New()
	r.GET("/ping", ApiKeyAuthMiddleware(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"tenant": c.GetString("tenantID")})
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-API-Key", rawKey)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body=%s", w.Code, w.Body.String())
	}
	if !bytes.Contains(w.Body.Bytes(), []byte(`"tenant":"t1"`)) {
		t.Fatalf("body = %s", w.Body.String())
	}

	// wrong key for the same prefix
	rows2 := sqlmock.NewRows([]string{"id", "tenant_id", "name", "key_prefix", "hashed_key", "last_used_at", "expires_at", "revoked_at", "created_at"}).
		AddRow(keyID, "t1", "intake", "abcdefgh", string(hashed), nil, nil, nil, time.Now())
	mock.ExpectQuery(sel).WithArgs("abcdefgh").WillReturnRows(rows2)

	req2 := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req2.Header.Set("X-API-Key", "jur_sk_abcdefgh_wrong_secret")
	w2 := httptest.NewRecorder()
	r.ServeHTTP(w2, req2)
	if w2.Code != http.StatusUnauthorized {
		t.Fatalf("wrong key status = %d, want 401", w2.Code)
	}

	// missing key entirely
	req3 := httptest.NewRequest(http.MethodGet, "/ping", nil)
	w3 := httptest.NewRecorder()
	r.ServeHTTP(w3, req3)
	if w3.Code != http.StatusUnauthorized {
		t.Fatalf("missing key status = %d, want 401", w3.Code)
	}
}
