package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	database "github.com/juralis/juralis-backend/internal"
	"github.com/juralis/juralis-backend/internal/api"
	"github.com/juralis/juralis-backend/internal/audit"
	"github.com/juralis/juralis-backend/internal/blob"
	"github.com/juralis/juralis-backend/internal/channel"
	"github.com/juralis/juralis-backend/internal/ingest"
	"github.com/juralis/juralis-backend/internal/match"
	"github.com/juralis/juralis-backend/internal/mesh"
)

func main() {
	database.Connect()

	port := os.Getenv("PORT")
	if port == "" {
		port = os.Getenv("JURALIS_PORT")
	}
	if port == "" {
		port = "8081"
	}
	log.Println("Starting Juralis ingestion backend on :" + port + "...")

	// --- core services ---
	auditStore := audit.NewPGStore(database.DB)
	ledger := audit.NewLedger(auditStore)
	messages := ingest.NewPGStore(database.DB)
	consents := audit.NewPGConsentStore(database.DB)
	resolver := match.NewResolver(match.NewPGRepository(database.DB), ledger, nil)

	bus := buildBus()
	defer bus.Close()

	blobs, err := blob.NewFromEnv(context.Background())
	if err != nil {
		log.Fatalf("blob store init failed: %v", err)
	}
	if blobs == nil {
		log.Println("blob store not configured; attachments keep provider URLs only")
	}

	var dedup ingest.DedupFilter
	var rdb *redis.Client
	if addr := os.Getenv("JURALIS_REDIS_ADDR"); addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: os.Getenv("JURALIS_REDIS_PASSWORD"),
		})
		ttl := 24 * time.Hour
		if v := os.Getenv("JURALIS_DEDUP_TTL_HOURS"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				ttl = time.Duration(n) * time.Hour
			}
		}
		dedup = ingest.NewRedisDedup(rdb, ttl)
	}

	orchOpts := ingest.Options{
		Registry: channel.NewRegistry(),
		Resolver: resolver,
		Store:    messages,
		Ledger:   ledger,
		Dedup:    dedup,
		Bus:      bus,
		Secret:   webhookSecretFromEnv,
	}
	if blobs != nil {
		orchOpts.Blobs = blobs
	}
	orch, err := ingest.NewOrchestrator(orchOpts)
	if err != nil {
		log.Fatalf("orchestrator init failed: %v", err)
	}

	analyzer := ingest.Analyzer(&ingest.HeuristicAnalyzer{})
	if endpoint := os.Getenv("JURALIS_ANALYSIS_URL"); endpoint != "" {
		analyzer = ingest.NewHTTPAnalyzer(endpoint, os.Getenv("JURALIS_ANALYSIS_API_KEY"))
	}
	worker := ingest.NewWorker(messages, ledger, analyzer, bus)
	stopWorker, err := worker.Start()
	if err != nil {
		log.Fatalf("analysis worker start failed: %v", err)
	}
	defer stopWorker()

	// urgent notifications are fire-and-forget; delivery is a collaborator's
	// job, here we only log the hand-off
	unsubNotify, _ := bus.Subscribe(mesh.TopicNotifyUrgent, func(ctx context.Context, e mesh.Event) {
		log.Printf("urgent message notification: %s", string(e.Payload))
	})
	defer unsubNotify()

	// scheduled retention runs from env policy
	scheduler := startRetentionCron(messages, ledger)
	if scheduler != nil {
		defer scheduler.Stop()
	}

	// --- HTTP ---
	router := gin.Default()
	if shutdown, ok := api.SetupOTelFromEnv(); ok {
		defer shutdown(context.Background())
		router.Use(otelgin.Middleware("juralis-backend"))
	}
	router.Use(api.MetricsMiddleware())
	router.Use(api.RequestIDMiddleware())

	config := cors.Config{
		AllowAllOrigins:  true,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", "Authorization", "X-API-Key", "X-Request-ID", "X-Juralis-Signature"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if origins := os.Getenv("JURALIS_CORS_ORIGINS"); origins != "" {
		config.AllowAllOrigins = false
		parts := strings.Split(origins, ",")
		allow := make([]string, 0, len(parts))
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				allow = append(allow, s)
			}
		}
		if len(allow) > 0 {
			config.AllowOrigins = allow
		}
	}
	router.Use(cors.New(config))
	if tp := os.Getenv("JURALIS_TRUSTED_PROXIES"); tp != "" {
		parts := strings.Split(tp, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		if err := router.SetTrustedProxies(parts); err != nil {
			log.Printf("warning: failed to set trusted proxies: %v", err)
		}
	}

	server := &api.Server{
		Orchestrator: orch,
		Messages:     messages,
		Ledger:       ledger,
		AuditStore:   auditStore,
		Consents:     audit.NewConsents(consents, ledger),
		Erasure:      audit.NewErasure(messages, consents, auditStore, ledger),
	}
	server.Routes(router, api.RouterConfig{})

	router.GET("/healthz", func(c *gin.Context) { c.Status(200) })
	router.GET("/readyz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 300*time.Millisecond)
		defer cancel()
		if err := database.DB.DB.PingContext(ctx); err != nil {
			c.JSON(503, gin.H{"status": "not ready", "error": err.Error()})
			return
		}
		if rdb != nil {
			if err := rdb.Ping(ctx).Err(); err != nil {
				c.JSON(503, gin.H{"status": "not ready", "error": "redis ping failed"})
				return
			}
		}
		c.JSON(200, gin.H{"status": "ready"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// graceful shutdown on SIGINT/SIGTERM
	go func() {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
		<-sigc
		log.Println("signal received, shutting down...")
		os.Exit(0)
	}()

	if err := router.Run(":" + port); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server failed: %v", err)
	}
}

// webhookSecretFromEnv looks up JURALIS_WEBHOOK_SECRET_<CHANNEL>, falling
// back to JURALIS_WEBHOOK_SECRET.
func webhookSecretFromEnv(ch channel.Channel) string {
	name := strings.ReplaceAll(string(ch), "-", "_")
	if v := os.Getenv("JURALIS_WEBHOOK_SECRET_" + name); v != "" {
		return v
	}
	return os.Getenv("JURALIS_WEBHOOK_SECRET")
}

func buildBus() mesh.Bus {
	if url := os.Getenv("JURALIS_NATS_URL"); url != "" {
		if b, err := mesh.NewNatsBus(url); err == nil {
			log.Println("using NATS bus at " + url)
			return b
		} else {
			log.Printf("nats unavailable (%v), using local bus", err)
		}
	}
	return mesh.NewLocalBus()
}

// startRetentionCron schedules retention policy runs defined by env:
// JURALIS_RETENTION_POLICIES is a comma-separated list of
// channel:days[:archive|delete] triples, run on JURALIS_RETENTION_CRON
// (default daily at 03:00).
func startRetentionCron(messages ingest.Store, ledger *audit.Ledger) *cron.Cron {
	spec := os.Getenv("JURALIS_RETENTION_POLICIES")
	if spec == "" {
		return nil
	}
	var policies []audit.Policy
	for _, part := range strings.Split(spec, ",") {
		fields := strings.Split(strings.TrimSpace(part), ":")
		if len(fields) < 2 {
			log.Printf("skipping malformed retention policy %q", part)
			continue
		}
		days, err := strconv.Atoi(fields[1])
		if err != nil || days <= 0 {
			log.Printf("skipping retention policy %q: bad day count", part)
			continue
		}
		p := audit.Policy{Channel: strings.ToUpper(fields[0]), RetentionDays: days, AutoArchive: true}
		if len(fields) > 2 && fields[2] == "delete" {
			p.AutoDelete = true
		}
		policies = append(policies, p)
	}
	if len(policies) == 0 {
		return nil
	}

	schedule := os.Getenv("JURALIS_RETENTION_CRON")
	if schedule == "" {
		schedule = "0 3 * * *"
	}
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		var tenants []string
		if err := database.DB.SelectContext(ctx, &tenants, `SELECT DISTINCT tenant_id FROM messages`); err != nil {
			log.Printf("retention run skipped: %v", err)
			return
		}
		for _, tenant := range tenants {
			for _, p := range policies {
				result, err := audit.ApplyRetentionPolicy(ctx, messages, ledger, tenant, p)
				if err != nil {
					log.Printf("retention run %s/%s failed: %v", tenant, p.Channel, err)
					continue
				}
				if result.Archived > 0 || result.Deleted > 0 {
					api.RecordRetentionRun(p.Channel)
					log.Printf("retention run %s/%s: archived=%d deleted=%d", tenant, p.Channel, result.Archived, result.Deleted)
				}
			}
		}
	})
	if err != nil {
		log.Printf("retention cron disabled: %v", err)
		return nil
	}
	c.Start()
	return c
}
