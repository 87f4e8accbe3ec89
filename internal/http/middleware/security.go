// Package middleware – security headers and webhook authentication.
package middleware

import (
	"crypto/subtle"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// SecurityOptions configures SecurityHeaders.
type SecurityOptions struct {
	EnableHSTS bool          // set true only when traffic is HTTPS end-to-end
	HSTSMaxAge time.Duration // defaults to 180 days
	NoStore    bool          // add Cache-Control: no-store
}

// SecurityHeaders adds conservative hardening headers for a JSON-only server.
// Strict-Transport-Security is sent only for HTTPS requests (directly or via
// X-Forwarded-Proto) and only when enabled.
func SecurityHeaders(opt SecurityOptions) gin.HandlerFunc {
	maxAge := int(opt.HSTSMaxAge.Seconds())
	if maxAge <= 0 {
		maxAge = int((180 * 24 * time.Hour).Seconds())
	}
	hsts := "max-age=" + strconv.Itoa(maxAge) + "; includeSubDomains"

	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		if opt.NoStore {
			h.Set("Cache-Control", "no-store")
		}
		if opt.EnableHSTS && isHTTPS(c.Request) {
			h.Set("Strict-Transport-Security", hsts)
		}
		c.Next()
	}
}

// WebhookSecret rejects requests whose X-Telegram-Bot-Api-Secret-Token does
// not match secret with 401. An empty secret disables the check.
func WebhookSecret(secret string) gin.HandlerFunc {
	want := []byte(secret)
	return func(c *gin.Context) {
		if secret == "" {
			c.Next()
			return
		}
		got := []byte(c.GetHeader(HeaderTelegramSecret))
		if subtle.ConstantTimeCompare(got, want) != 1 {
			LoggerFrom(c).Warn().Msg("webhook secret mismatch")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"request_id": asString(c.Value(requestIDKey)),
				"code":       "unauthorized",
				"message":    "invalid webhook secret",
			})
			return
		}
		c.Next()
	}
}

// isHTTPS reports whether the request used HTTPS directly or via a proxy.
func isHTTPS(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}
