package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/juralis/juralis-backend/internal/ingest"
)

// GET /v1/messages/:id
func (s *Server) GetMessage(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid message ID"})
		return
	}
	msg, err := s.Messages.Get(c.Request.Context(), tenantFrom(c), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if msg == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Message not found"})
		return
	}
	c.JSON(http.StatusOK, msg)
}

// GET /v1/messages?channel=&status=&client_id=&limit=
func (s *Server) ListMessages(c *gin.Context) {
	f := ingest.ListFilter{
		Channel: c.Query("channel"),
		Status:  c.Query("status"),
	}
	if v := c.Query("client_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid client_id"})
			return
		}
		f.ClientID = &id
	}
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			f.Limit = n
		}
	}
	items, err := s.Messages.List(c.Request.Context(), tenantFrom(c), f)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "count": len(items)})
}
