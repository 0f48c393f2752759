package main

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"agentsflow-voice/internal/auth"
	"agentsflow-voice/internal/config"
	"agentsflow-voice/internal/httpapi"
	"agentsflow-voice/internal/telephony"
	"agentsflow-voice/pkg/utils"
)

type routeDeps struct {
	cfg   config.Config
	db    *sql.DB
	rdb   *redis.Client
	auth  *auth.Manager
	hooks telephony.WebhookHandler
	api   httpapi.Handlers
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, d routeDeps) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		if err := utils.HealthCheck(c.Request.Context(), d.db, 2*time.Second); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "postgres": err.Error()})
			return
		}
		if err := d.rdb.Ping(c.Request.Context()).Err(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "redis": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Provider webhooks. Authenticated by X-Twilio-Signature, not by JWT.
	hooks := r.Group("/webhooks/voice")
	hooks.Use(telephony.RequireSignature(telephony.SignatureConfig{
		Enabled:       d.cfg.Twilio.VerifySignature,
		AuthToken:     d.cfg.Twilio.AuthToken,
		PublicBaseURL: d.cfg.Twilio.PublicBaseURL,
	}))
	{
		hooks.POST("/incoming", d.hooks.HandleIncoming)
		hooks.POST("/speech", d.hooks.HandleSpeech)
		hooks.POST("/analyze", d.hooks.HandleAnalyze)
		hooks.POST("/voicemail", d.hooks.HandleVoicemail)
		hooks.POST("/status", d.hooks.HandleStatus)
	}

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(auth.RequireAccessToken(d.auth))
	{
		v1.GET("/calls", d.api.GetCall)
		v1.GET("/me", d.api.Me)
	}
}
