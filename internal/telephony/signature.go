package telephony

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base64"
	"net/http"
	"net/url"
	"sort"

	"github.com/gin-gonic/gin"

	"agentsflow-voice/pkg/logger"
)

const headerTwilioSignature = "X-Twilio-Signature"

// ComputeSignature builds the expected X-Twilio-Signature value: base64 of
// HMAC-SHA1 over the full request URL followed by every POST parameter name
// and value in lexicographic parameter order.
func ComputeSignature(authToken, fullURL string, form url.Values) string {
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(fullURL))
	for _, k := range keys {
		for _, v := range form[k] {
			mac.Write([]byte(k))
			mac.Write([]byte(v))
		}
	}
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// ValidSignature checks a provider-supplied signature in constant time.
func ValidSignature(authToken, fullURL string, form url.Values, signature string) bool {
	if signature == "" {
		return false
	}
	want := ComputeSignature(authToken, fullURL, form)
	return subtle.ConstantTimeCompare([]byte(want), []byte(signature)) == 1
}

// SignatureConfig controls webhook signature enforcement.
type SignatureConfig struct {
	Enabled   bool
	AuthToken string

	// PublicBaseURL is the externally visible scheme+host this service is
	// reached at; the signed URL is PublicBaseURL + request path (+ query).
	PublicBaseURL string
}

// RequireSignature returns a Gin middleware that rejects unsigned or
// tampered webhook deliveries with 403. Disabled configs pass everything
// through, for local tunnels that rewrite URLs.
func RequireSignature(cfg SignatureConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !cfg.Enabled {
			c.Next()
			return
		}

		if err := c.Request.ParseForm(); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid form"})
			return
		}

		fullURL := cfg.PublicBaseURL + c.Request.URL.RequestURI()
		sig := c.GetHeader(headerTwilioSignature)
		if !ValidSignature(cfg.AuthToken, fullURL, c.Request.PostForm, sig) {
			logger.FromGin(c).Warn("webhook signature rejected", "path", c.Request.URL.Path)
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "invalid signature"})
			return
		}
		c.Next()
	}
}
