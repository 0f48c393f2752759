package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"agentsflow-voice/internal/auth"
	"agentsflow-voice/internal/callsession"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Calls *callsession.Service
}

// GetCall returns a session with its transcripts and response logs.
// Operator dashboards poll this while a call is live.
func (h Handlers) GetCall(c *gin.Context) {
	if h.Calls == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "calls not configured"})
		return
	}
	callID := c.Query("call_id")
	if callID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "call_id required"})
		return
	}

	detail, err := h.Calls.GetDetail(c.Request.Context(), callID)
	switch {
	case errors.Is(err, callsession.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "unknown call"})
		return
	case err != nil:
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "call lookup failed"})
		return
	}
	c.JSON(http.StatusOK, detail)
}

// Me echoes the verified identity. Useful for smoke-testing token wiring.
func (h Handlers) Me(c *gin.Context) {
	uid, _ := auth.UserID(c.Request.Context())
	role, _ := auth.Role(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"user_id": uid, "role": role})
}
