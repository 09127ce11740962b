package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/juralis/juralis-backend/internal/audit"
)

type recordConsentRequest struct {
	ClientID      uuid.UUID  `json:"client_id" binding:"required"`
	Channel       string     `json:"channel" binding:"required"`
	Purpose       string     `json:"purpose"`
	Granted       bool       `json:"granted"`
	ExpiresAt     *time.Time `json:"expires_at"`
	ProofDocument *uuid.UUID `json:"proof_document"`
}

// POST /v1/consents
func (s *Server) RecordConsent(c *gin.Context) {
	var req recordConsentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	rec, err := s.Consents.Record(c.Request.Context(), audit.ConsentRequest{
		TenantID:      tenantFrom(c),
		ClientID:      req.ClientID,
		Channel:       req.Channel,
		Purpose:       req.Purpose,
		Granted:       req.Granted,
		ExpiresAt:     req.ExpiresAt,
		ProofDocument: req.ProofDocument,
		ActorID:       c.GetString("apiKeyID"),
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, rec)
}

// POST /v1/consents/:id/revoke
func (s *Server) RevokeConsent(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid consent ID"})
		return
	}
	if err := s.Consents.Revoke(c.Request.Context(), tenantFrom(c), id, c.GetString("apiKeyID")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"revoked": true})
}

// GET /v1/consents/check?client_id=&channel=&purpose=
func (s *Server) CheckConsent(c *gin.Context) {
	clientID, err := uuid.Parse(c.Query("client_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid client_id"})
		return
	}
	ch := c.Query("channel")
	if ch == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "channel is required"})
		return
	}
	granted, err := s.Consents.Check(c.Request.Context(), clientID, ch, c.Query("purpose"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"granted": granted})
}
