// Package middleware – RedactingLogger
//
// RedactingLogger is the access logger of the ops server. It never logs
// bodies (webhook bodies carry user messages), masks credential headers
// including Telegram's webhook secret, and scrubs emails, phone numbers and
// UUIDs from query strings and remaining header values.
package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-report-bot/internal/sysutil"
)

// HeaderTelegramSecret is the header Telegram uses to echo the webhook secret.
const HeaderTelegramSecret = "X-Telegram-Bot-Api-Secret-Token"

// RedactOptions configures RedactingLogger.
type RedactOptions struct {
	// MaskHeaders are replaced with "[REDACTED]" in addition to
	// Authorization, Cookie, Set-Cookie and the Telegram secret header.
	MaskHeaders []string
	// QuietPaths are logged at debug level (health checks, scrapes).
	QuietPaths []string
}

// RedactingLogger logs one structured line per request and installs a
// request-scoped logger for LoggerFrom. Level follows the status: error for
// 5xx, warn for 4xx, info otherwise.
func RedactingLogger(opts RedactOptions) gin.HandlerFunc {
	mask := map[string]struct{}{
		"authorization":                       {},
		"cookie":                              {},
		"set-cookie":                          {},
		strings.ToLower(HeaderTelegramSecret): {},
	}
	for _, h := range opts.MaskHeaders {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			mask[h] = struct{}{}
		}
	}
	quiet := make(map[string]struct{}, len(opts.QuietPaths))
	for _, p := range opts.QuietPaths {
		quiet[p] = struct{}{}
	}

	return func(c *gin.Context) {
		start := time.Now()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		headers := make(map[string]string, len(c.Request.Header))
		for k, vv := range c.Request.Header {
			if _, ok := mask[strings.ToLower(k)]; ok {
				headers[k] = "[REDACTED]"
				continue
			}
			headers[k] = sysutil.Redact(strings.Join(vv, ", "))
		}

		l := log.With().
			Str("request_id", asString(c.Value(requestIDKey))).
			Str("method", c.Request.Method).
			Str("path", path).
			Logger()
		c.Set(loggerKey, &l)

		c.Next()

		status := c.Writer.Status()
		var ev *zerolog.Event
		switch {
		case status >= 500 || len(c.Errors) > 0:
			ev = l.Error()
		case status >= 400:
			ev = l.Warn()
		default:
			if _, ok := quiet[path]; ok {
				ev = l.Debug()
			} else {
				ev = l.Info()
			}
		}
		if len(c.Errors) > 0 {
			ev = ev.Str("errors", c.Errors.String())
		}
		ev.
			Str("query", sysutil.Redact(c.Request.URL.RawQuery)).
			Str("remote_ip", c.ClientIP()).
			Int("status", status).
			Int("bytes", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Interface("headers", headers).
			Msg("http_request")
	}
}
