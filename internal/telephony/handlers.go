package telephony

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"agentsflow-voice/internal/callsession"
	"agentsflow-voice/pkg/logger"
)

const contentTypeXML = "application/xml"

// WebhookHandler converts provider webhooks to state-machine events and
// renders the resulting action. No business logic here: parse, delegate,
// encode.
//
// Error policy: internal detail never reaches the provider. Voice endpoints
// answer failures with the fallback TwiML document so the caller always hears
// something well-formed; JSON endpoints answer a generic error object.
type WebhookHandler struct {
	Calls *callsession.Service
}

// HandleIncoming answers the first webhook of a call with the greeting (or
// voicemail prompt) TwiML.
func (h WebhookHandler) HandleIncoming(c *gin.Context) {
	form, err := ParseIncomingForm(c.Request)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid form"})
		return
	}

	act, err := h.Calls.HandleIncoming(c.Request.Context(), callsession.IncomingCall{
		CallID: form.CallSid,
		From:   form.From,
		To:     form.To,
	})
	if err != nil {
		h.voiceError(c, "incoming call handling failed", err)
		return
	}
	c.Data(http.StatusOK, contentTypeXML, []byte(RenderTwiMLOrFallback(act)))
}

// HandleSpeech stores one speech-recognition result and acks with JSON.
func (h WebhookHandler) HandleSpeech(c *gin.Context) {
	t, err := ParseSpeechForm(c.Request)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid form"})
		return
	}

	if _, err := h.Calls.HandleSpeech(c.Request.Context(), t); err != nil {
		h.jsonError(c, "speech handling failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// HandleAnalyze runs the caller's turn through the generator and answers
// with the reply (or re-prompt) TwiML.
func (h WebhookHandler) HandleAnalyze(c *gin.Context) {
	form, err := ParseAnalyzeForm(c.Request)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid form"})
		return
	}

	act, err := h.Calls.HandleAnalyze(c.Request.Context(), callsession.AnalyzeInput{
		CallID: form.CallSid,
		Text:   form.Text,
	})
	if err != nil {
		h.voiceError(c, "analyze handling failed", err)
		return
	}
	c.Data(http.StatusOK, contentTypeXML, []byte(RenderTwiMLOrFallback(act)))
}

// HandleVoicemail stores the completed recording and acks with JSON.
func (h WebhookHandler) HandleVoicemail(c *gin.Context) {
	form, err := ParseVoicemailForm(c.Request)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid form"})
		return
	}

	err = h.Calls.HandleVoicemail(c.Request.Context(), callsession.VoicemailEvent{
		CallID:            form.CallSid,
		RecordingURL:      form.RecordingURL,
		TranscriptionText: form.TranscriptionText,
	})
	if err != nil {
		h.jsonError(c, "voicemail handling failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// HandleStatus applies a call-status callback and acks with JSON.
func (h WebhookHandler) HandleStatus(c *gin.Context) {
	form, err := ParseStatusForm(c.Request)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid form"})
		return
	}

	if _, err := h.Calls.HandleStatus(c.Request.Context(), form.CallSid, form.CallStatus); err != nil {
		h.jsonError(c, "status handling failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// voiceError answers a voice endpoint failure. The caller always receives
// well-formed TwiML; the status code still signals failure so the provider's
// retry machinery kicks in where appropriate.
func (h WebhookHandler) voiceError(c *gin.Context, msg string, err error) {
	switch {
	case errors.Is(err, callsession.ErrInvalidArgument):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
	case errors.Is(err, callsession.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "unknown call"})
	default:
		// Generator failures land here too; the call stays in its current
		// phase and the provider may retry.
		logger.FromGin(c).Error(msg, "err", err)
		c.Data(http.StatusInternalServerError, contentTypeXML, []byte(fallbackTwiML))
	}
}

func (h WebhookHandler) jsonError(c *gin.Context, msg string, err error) {
	switch {
	case errors.Is(err, callsession.ErrInvalidArgument):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
	case errors.Is(err, callsession.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "unknown call"})
	default:
		logger.FromGin(c).Error(msg, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
