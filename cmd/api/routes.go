package main

import (
	"voicecall-platform/internal/httpapi"
	"voicecall-platform/internal/signaling"

	"github.com/gin-gonic/gin"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, h httpapi.Handlers, webhook signaling.WebhookHandler, authMW gin.HandlerFunc) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Push gateway webhook (public, authenticated by shared secret header).
	r.POST("/webhooks/signaling", webhook.HandleInbound)

	// AUTH routes (token issuance).
	// NOTE: This is a placeholder login route; real credential validation is not implemented.
	r.POST("/auth/login", h.Login)

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(authMW)
	{
		calls := v1.Group("/calls")
		{
			calls.POST("/start", h.StartCall)
			calls.POST("/accept", h.AcceptCall)
			calls.POST("/decline", h.DeclineCall)
			calls.POST("/end", h.EndCall)
			calls.GET("/active", h.ActiveCall)

			calls.POST("/media/join", h.JoinMedia)
			calls.POST("/media/mute", h.ToggleMute)
			calls.POST("/media/speaker", h.ToggleSpeaker)

			calls.GET("/history", h.CallHistory)
			calls.GET("/summary", h.CallSummary)
		}
	}
}
