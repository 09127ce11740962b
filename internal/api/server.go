// Package api exposes the ingestion pipeline over HTTP: webhook intake,
// message queries, ledger verification, consent and data-lifecycle
// endpoints.
package api

import (
	"github.com/gin-gonic/gin"

	"github.com/juralis/juralis-backend/internal/audit"
	"github.com/juralis/juralis-backend/internal/ingest"
)

// Server bundles the services the handlers need. All fields are required
// unless noted.
type Server struct {
	Orchestrator *ingest.Orchestrator
	Messages     ingest.Store
	Ledger       *audit.Ledger
	AuditStore   audit.Store
	Consents     *audit.Consents
	Erasure      *audit.Erasure
}

// RouterConfig controls the middleware assembled around the routes. Tests
// disable auth and inject the tenant directly.
type RouterConfig struct {
	DisableAuth bool
	// TestTenant is the tenant id injected when DisableAuth is set.
	TestTenant string
}

// Routes registers all v1 routes on the router group.
func (s *Server) Routes(r *gin.Engine, cfg RouterConfig) {
	v1 := r.Group("/v1")
	if cfg.DisableAuth {
		tenant := cfg.TestTenant
		if tenant == "" {
			tenant = "default"
		}
		v1.Use(func(c *gin.Context) { c.Set("tenantID", tenant); c.Next() })
	} else {
		v1.Use(ApiKeyAuthMiddleware())
		v1.Use(RateLimitMiddlewareFromEnv())
	}

	v1.POST("/webhooks/:channel", s.HandleWebhook)

	v1.GET("/messages", s.ListMessages)
	v1.GET("/messages/:id", s.GetMessage)

	v1.GET("/audit/verify", s.VerifyLedger)
	v1.GET("/audit/entries", s.ListAuditEntries)

	v1.POST("/consents", s.RecordConsent)
	v1.POST("/consents/:id/revoke", s.RevokeConsent)
	v1.GET("/consents/check", s.CheckConsent)

	admin := v1.Group("")
	if !cfg.DisableAuth {
		admin.Use(AuthMiddleware(), RequireAdmin())
	}
	admin.POST("/retention/run", s.RunRetention)
	admin.POST("/clients/:clientId/erasure", s.EraseClient)
}

func tenantFrom(c *gin.Context) string {
	return c.GetString("tenantID")
}
