package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/juralis/juralis-backend/internal/channel"
	"github.com/juralis/juralis-backend/internal/ingest"
)

// provider-specific signature headers, checked before the generic one
var signatureHeaders = map[channel.Channel]string{
	channel.Slack:    "X-Slack-Signature",
	channel.WhatsApp: "X-Hub-Signature-256",
	channel.Twitter:  "X-Hub-Signature-256",
	channel.SMS:      "X-Twilio-Signature",
}

func webhookSignature(c *gin.Context, ch channel.Channel) string {
	if h, ok := signatureHeaders[ch]; ok {
		if sig := c.GetHeader(h); sig != "" {
			return sig
		}
	}
	return c.GetHeader("X-Juralis-Signature")
}

// HandleWebhook accepts one raw provider payload on
// POST /v1/webhooks/:channel and runs it through the ingestion pipeline.
// Accepted deliveries (including duplicates) return 202.
func (s *Server) HandleWebhook(c *gin.Context) {
	ch, ok := channel.ParseChannel(c.Param("channel"))
	if !ok {
		RecordIngest(c.Param("channel"), "rejected")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unsupported channel"})
		return
	}
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 10<<20))
	if err != nil || len(body) == 0 {
		RecordIngest(string(ch), "rejected")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Empty or unreadable payload"})
		return
	}

	res, err := s.Orchestrator.Ingest(c.Request.Context(), ingest.Envelope{
		TenantID:  tenantFrom(c),
		Channel:   ch,
		Signature: webhookSignature(c, ch),
		Timestamp: time.Now().UTC(),
		Payload:   body,
	})
	switch {
	case errors.Is(err, ingest.ErrInvalidSignature):
		RecordIngest(string(ch), "rejected")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid webhook signature"})
		return
	case errors.Is(err, channel.ErrUnsupportedChannel):
		RecordIngest(string(ch), "rejected")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unsupported channel"})
		return
	case errors.Is(err, ingest.ErrBadPayload):
		RecordIngest(string(ch), "rejected")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Could not parse payload"})
		return
	case err != nil:
		RecordIngest(string(ch), "error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Ingestion failed"})
		return
	}

	outcome := "created"
	if res.Duplicate {
		outcome = "duplicate"
	}
	RecordIngest(string(ch), outcome)
	c.JSON(http.StatusAccepted, gin.H{
		"message_id": res.Message.ID,
		"status":     res.Message.Status,
		"duplicate":  res.Duplicate,
	})
}
