package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestRedactingLogger_MasksAndLevels(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogger(t)

	r := gin.New()
	r.Use(RequestID(), RedactingLogger(RedactOptions{MaskHeaders: []string{" X-Api-Key "}, QuietPaths: []string{"/health"}}))
	r.GET("/ok", func(c *gin.Context) {
		LoggerFrom(c).Info().Msg("inside")
		c.String(http.StatusOK, "ok")
	})
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/bad", func(c *gin.Context) { c.Status(http.StatusBadRequest) })
	r.GET("/fail", func(c *gin.Context) { c.Status(http.StatusServiceUnavailable) })

	req := httptest.NewRequest(http.MethodGet, "/ok?q=bob@example.com", nil)
	req.Header.Set("Authorization", "Bearer secret")
	req.Header.Set(HeaderTelegramSecret, "s3cr3t")
	req.Header.Set("X-Api-Key", "key")
	req.Header.Set("X-Note", "call +1 202 555 0147")
	r.ServeHTTP(httptest.NewRecorder(), req)

	for _, p := range []string{"/health", "/bad", "/fail", "/nope"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, p, nil))
	}

	raw := buf.String()
	for _, leak := range []string{"Bearer secret", "s3cr3t", `"key"`, "bob@example.com", "202 555 0147"} {
		if strings.Contains(raw, leak) {
			t.Fatalf("log leaked %q: %s", leak, raw)
		}
	}

	logs := lines(t, buf)
	if len(logs) != 6 {
		t.Fatalf("want 6 lines, got %d: %s", len(logs), raw)
	}
	if logs[0]["message"] != "inside" || logs[0]["path"] != "/ok" || logs[0]["request_id"] == "" {
		t.Fatalf("request-scoped logger fields missing: %#v", logs[0])
	}
	wantLevels := []string{"info", "debug", "warn", "error", "warn"}
	for i, lvl := range wantLevels {
		if got := logs[i+1]["level"]; got != lvl {
			t.Fatalf("line %d level = %v; want %s (%#v)", i+1, got, lvl, logs[i+1])
		}
	}
	if logs[5]["path"] != "/nope" {
		t.Fatalf("unmatched route should log raw path, got %v", logs[5]["path"])
	}
	hdrs, _ := logs[1]["headers"].(map[string]any)
	if hdrs["Authorization"] != "[REDACTED]" || hdrs[HeaderTelegramSecret] != "[REDACTED]" || hdrs["X-Api-Key"] != "[REDACTED]" {
		t.Fatalf("headers not masked: %#v", hdrs)
	}
}
