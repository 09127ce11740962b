package api

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"

	"github.com/juralis/juralis-backend/internal/ingest"
)

var (
	reqDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "juralis",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	reqTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "juralis", Name: "http_requests_total", Help: "Total HTTP requests"},
		[]string{"method", "path", "status"},
	)
	ingestTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "juralis", Name: "messages_ingested_total", Help: "Webhook ingestions by channel and outcome"},
		[]string{"channel", "outcome"},
	)
	analysisTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "juralis", Name: "analysis_total", Help: "Message analyses by urgency and outcome"},
		[]string{"urgency", "outcome"},
	)
	ledgerVerifyTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "juralis", Name: "ledger_verify_total", Help: "Ledger integrity verifications by result"},
		[]string{"result"},
	)
	retentionRunTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "juralis", Name: "retention_run_total", Help: "Retention runs by channel"},
		[]string{"channel"},
	)
	breakerOpen = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Namespace: "juralis", Name: "circuit_breaker_open", Help: "Circuit breaker state: 1=open, 0=closed"},
		[]string{"breaker"},
	)
	apiKeyUsageTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "juralis", Name: "api_key_usage_total", Help: "API key usage by key prefix and tenant"},
		[]string{"key_prefix", "tenant"},
	)
)

func init() {
	prometheus.MustRegister(reqDuration, reqTotal, ingestTotal, analysisTotal, ledgerVerifyTotal, retentionRunTotal, breakerOpen, apiKeyUsageTotal)
	ingest.OnBreakerState = SetBreakerState
	ingest.OnAnalysisOutcome = RecordAnalysis
}

// MetricsMiddleware records basic HTTP metrics
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		dur := time.Since(start).Seconds()
		status := c.Writer.Status()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		observer := reqDuration.WithLabelValues(c.Request.Method, path, toStr(status))
		// attach exemplar with trace_id if present
		if sc := trace.SpanContextFromContext(c.Request.Context()); sc.IsValid() {
			if eo, ok := observer.(prometheus.ExemplarObserver); ok {
				eo.ObserveWithExemplar(dur, prometheus.Labels{"trace_id": sc.TraceID().String()})
			} else {
				observer.Observe(dur)
			}
		} else {
			observer.Observe(dur)
		}
		reqTotal.With(prometheus.Labels{"method": c.Request.Method, "path": path, "status": toStr(status)}).Inc()
	}
}

func toStr(i int) string { return strconv.Itoa(i) }

// RecordIngest counts one webhook ingestion outcome (created, duplicate,
// rejected, error).
func RecordIngest(channel, outcome string) {
	ingestTotal.WithLabelValues(channel, outcome).Inc()
}

// RecordAnalysis counts one analysis by urgency and outcome.
func RecordAnalysis(urgency string, success bool) {
	outcome := "success"
	if !success {
		outcome = "error"
	}
	if urgency == "" {
		urgency = "unknown"
	}
	analysisTotal.WithLabelValues(urgency, outcome).Inc()
}

// RecordLedgerVerify counts an integrity verification result.
func RecordLedgerVerify(valid bool) {
	result := "valid"
	if !valid {
		result = "invalid"
	}
	ledgerVerifyTotal.WithLabelValues(result).Inc()
}

// RecordRetentionRun counts a retention run per channel.
func RecordRetentionRun(channel string) {
	retentionRunTotal.WithLabelValues(channel).Inc()
}

// SetBreakerState updates the breaker state gauge (1=open, 0=closed)
func SetBreakerState(name string, open bool) {
	if open {
		breakerOpen.WithLabelValues(name).Set(1)
	} else {
		breakerOpen.WithLabelValues(name).Set(0)
	}
}

// RecordAPIKeyUsage increments usage counters labeled by key prefix and tenant
func RecordAPIKeyUsage(keyPrefix, tenant string) {
	apiKeyUsageTotal.With(prometheus.Labels{"key_prefix": keyPrefix, "tenant": tenant}).Inc()
}
