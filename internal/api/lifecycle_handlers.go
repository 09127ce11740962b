package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/juralis/juralis-backend/internal/audit"
)

type retentionRequest struct {
	// Channel empty means the policy spans every channel.
	Channel       string `json:"channel"`
	RetentionDays int    `json:"retention_days" binding:"required"`
	AutoArchive   bool   `json:"auto_archive"`
	AutoDelete    bool   `json:"auto_delete"`
}

// POST /v1/retention/run (admin)
func (s *Server) RunRetention(c *gin.Context) {
	var req retentionRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.RetentionDays <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "a positive retention_days is required"})
		return
	}
	result, err := audit.ApplyRetentionPolicy(c.Request.Context(), s.Messages, s.Ledger, tenantFrom(c), audit.Policy{
		Channel:       req.Channel,
		RetentionDays: req.RetentionDays,
		AutoArchive:   req.AutoArchive,
		AutoDelete:    req.AutoDelete,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	RecordRetentionRun(req.Channel)
	c.JSON(http.StatusOK, result)
}

type erasureRequest struct {
	KeepAuditLogs bool `json:"keep_audit_logs"`
}

// POST /v1/clients/:clientId/erasure (admin)
func (s *Server) EraseClient(c *gin.Context) {
	clientID, err := uuid.Parse(c.Param("clientId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid client ID"})
		return
	}
	var req erasureRequest
	_ = c.ShouldBindJSON(&req) // body optional

	report, err := s.Erasure.DeleteClientData(c.Request.Context(), tenantFrom(c), clientID, audit.ErasureOptions{
		KeepAuditLogs: req.KeepAuditLogs,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, report)
}
