package ingest

import (
	"context"
	"encoding/json"
	"log"

	"github.com/google/uuid"

	database "github.com/juralis/juralis-backend/internal"
	"github.com/juralis/juralis-backend/internal/audit"
	"github.com/juralis/juralis-backend/internal/mesh"
)

type analyzeTask struct {
	MessageID uuid.UUID `json:"message_id"`
	TenantID  string    `json:"tenant_id"`
}

// UrgentNotice is the payload published on notify.urgent.
type UrgentNotice struct {
	MessageID uuid.UUID `json:"message_id"`
	TenantID  string    `json:"tenant_id"`
	Channel   string    `json:"channel"`
	Urgency   string    `json:"urgency"`
	Summary   string    `json:"summary"`
}

// OnAnalysisOutcome is called once per finished analysis with the scored
// urgency. The api package points it at the prometheus counter; the default
// is a no-op so the worker stays metrics-agnostic.
var OnAnalysisOutcome = func(urgency string, success bool) {}

// Worker consumes message.analyze events, runs the analyzer and records the
// outcome. An analysis failure marks the message FAILED but the message
// itself stays ingested.
type Worker struct {
	store    Store
	ledger   *audit.Ledger
	analyzer Analyzer
	bus      mesh.Bus
}

func NewWorker(store Store, ledger *audit.Ledger, analyzer Analyzer, bus mesh.Bus) *Worker {
	return &Worker{store: store, ledger: ledger, analyzer: analyzer, bus: bus}
}

// Start subscribes on the bus and returns the unsubscribe func.
func (w *Worker) Start() (func(), error) {
	return w.bus.Subscribe(mesh.TopicMessageAnalyze, func(ctx context.Context, e mesh.Event) {
		var task analyzeTask
		if err := json.Unmarshal(e.Payload, &task); err != nil {
			log.Printf("ingest: bad analyze task: %v", err)
			return
		}
		w.Process(ctx, task.TenantID, task.MessageID)
	})
}

// Process analyzes one message by id. Exposed for synchronous use in tests
// and the replay CLI path.
func (w *Worker) Process(ctx context.Context, tenantID string, id uuid.UUID) {
	msg, err := w.store.Get(ctx, tenantID, id)
	if err != nil || msg == nil {
		log.Printf("ingest: analyze lookup %s: %v", id, err)
		return
	}

	analysis, err := w.analyzer.Analyze(ctx, msg)
	if err != nil {
		w.fail(ctx, msg, err)
		return
	}
	raw, err := json.Marshal(analysis)
	if err != nil {
		w.fail(ctx, msg, err)
		return
	}
	if err := w.store.SetAnalysis(ctx, msg.ID, raw, database.MessageProcessed); err != nil {
		log.Printf("ingest: persist analysis %s: %v", msg.ID, err)
		return
	}
	OnAnalysisOutcome(analysis.Urgency, true)
	details := map[string]any{
		"urgency":    analysis.Urgency,
		"category":   analysis.Category,
		"confidence": analysis.Confidence,
	}
	if analysis.Degraded != "" {
		// The collaborator was down and the heuristic answered; the outage
		// has to stay visible in the trail even though ingestion succeeded.
		details["degraded"] = analysis.Degraded
	}
	if _, err := w.ledger.Log(ctx, audit.Record{
		TenantID:     tenantID,
		Action:       audit.ActionAnalysisComplete,
		ActorType:    database.ActorAI,
		ResourceType: "message",
		ResourceID:   msg.ID.String(),
		ClientID:     msg.ClientID,
		Details:      details,
	}); err != nil {
		log.Printf("ingest: ledger log failed: %v", err)
	}

	if analysis.Urgency == UrgencyHigh || analysis.Urgency == UrgencyCritical {
		w.notify(ctx, tenantID, msg, analysis)
	}
}

func (w *Worker) fail(ctx context.Context, msg *database.Message, cause error) {
	log.Printf("ingest: analysis failed for %s: %v", msg.ID, cause)
	OnAnalysisOutcome("", false)
	if err := w.store.SetStatus(ctx, msg.ID, database.MessageFailed); err != nil {
		log.Printf("ingest: set failed status %s: %v", msg.ID, err)
	}
	if _, err := w.ledger.Log(ctx, audit.Record{
		TenantID:     msg.TenantID,
		Action:       audit.ActionAnalysisFailed,
		ActorType:    database.ActorAI,
		ResourceType: "message",
		ResourceID:   msg.ID.String(),
		ClientID:     msg.ClientID,
		Details:      map[string]any{"error": cause.Error()},
	}); err != nil {
		log.Printf("ingest: ledger log failed: %v", err)
	}
}

// notify is fire-and-forget: delivery problems are logged, never retried
// here.
func (w *Worker) notify(ctx context.Context, tenantID string, msg *database.Message, analysis *Analysis) {
	if w.bus == nil {
		return
	}
	payload, _ := json.Marshal(UrgentNotice{
		MessageID: msg.ID,
		TenantID:  tenantID,
		Channel:   msg.Channel,
		Urgency:   analysis.Urgency,
		Summary:   analysis.Summary,
	})
	if err := w.bus.Publish(ctx, mesh.Event{Topic: mesh.TopicNotifyUrgent, Payload: payload}); err != nil {
		log.Printf("ingest: urgent notify %s: %v", msg.ID, err)
	}
}
