package signaling

import (
	"context"
	"crypto/subtle"
	"io"
	"net/http"

	"voicecall-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Dispatcher routes an inbound push to the target user's orchestrator.
type Dispatcher interface {
	Deliver(ctx context.Context, to string, ev Event) error
}

// WebhookHandler receives push deliveries from the gateway and hands them to
// the dispatcher. No business logic here; the orchestrator decides what an
// event means.
//
// The gateway authenticates with a shared secret header. Duplicate and
// out-of-order deliveries are expected and are the dispatcher's problem.
type WebhookHandler struct {
	Dispatcher Dispatcher
	Secret     string
}

const maxPushBody = 64 << 10

func (h WebhookHandler) HandleInbound(c *gin.Context) {
	log := logger.FromGin(c)

	if h.Dispatcher == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "dispatcher not configured"})
		return
	}
	if h.Secret != "" {
		got := c.GetHeader(gatewaySecretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.Secret)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "bad gateway secret"})
			return
		}
	}

	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxPushBody))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	var msg PushMessage
	if err := decodePushMessage(raw, &msg); err != nil {
		log.Warn("signaling webhook parse failed", "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	if err := h.Dispatcher.Deliver(c.Request.Context(), msg.To, msg.Event); err != nil {
		log.Error("signal dispatch failed", "call_id", msg.Event.CallID, "type", msg.Event.Type, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "dispatch failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "accepted"})
}
