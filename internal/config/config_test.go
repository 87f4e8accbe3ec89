package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

// setRequired provides the minimum env for a valid configuration.
func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("SEARCH_API_TOKEN", "api-token")
	t.Setenv("SEARCH_API_URL", "https://search.example.com/api")
	t.Setenv("LOG_LEVEL", "info")
	t.Setenv("UPDATE_MODE", "polling")
}

// --- MustLoad ---

func TestMustLoad_PanicsOnInvalidConfig(t *testing.T) {
	setRequired(t)
	t.Setenv("LOG_LEVEL", "verbose") // invalid -> Load() error
	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("MustLoad should panic on invalid config")
		}
	}()
	_ = MustLoad()
}

// --- Load defaults ---

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)
	for _, k := range []string{
		"SEARCH_API_LANG", "SEARCH_API_LIMIT", "SEARCH_API_TIMEOUT",
		"REPORT_CACHE_SIZE", "REPORT_CACHE_TTL", "MAX_MESSAGE_LENGTH", "USER_COOLDOWN",
		"WORKERS", "POLL_TIMEOUT", "POLL_RETRY_DELAY", "WEBHOOK_PATH", "LOG_FILE",
		"OPS_RATE_RPS", "OPS_RATE_BURST", "AUDIT_RETENTION", "JANITOR_INTERVAL",
	} {
		unsetenv(t, k)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Search.Lang != "ru" || cfg.Search.Limit != 300 || cfg.Search.Timeout != 30*time.Second {
		t.Fatalf("search defaults unexpected: %+v", cfg.Search)
	}
	want := ReportConfig{CacheSize: 500, CacheTTL: time.Hour, MaxMessageLength: 4096, UserCooldown: 3 * time.Second}
	if cfg.Report != want {
		t.Fatalf("report defaults = %+v; want %+v", cfg.Report, want)
	}
	if cfg.Telegram.Workers != 16 || cfg.Telegram.PollTimeout != 60 || cfg.Telegram.PollRetryDelay != 5*time.Second {
		t.Fatalf("telegram defaults unexpected: %+v", cfg.Telegram)
	}
	if cfg.Telegram.WebhookPath != "/telegram/webhook" {
		t.Fatalf("WebhookPath = %q", cfg.Telegram.WebhookPath)
	}
	if cfg.LogFile != "bot.log" {
		t.Fatalf("LogFile = %q; want bot.log", cfg.LogFile)
	}
	if cfg.OpsRateRPS != 5 || cfg.OpsRateBurst != 10 {
		t.Fatalf("ops rate defaults = %v/%d", cfg.OpsRateRPS, cfg.OpsRateBurst)
	}
	if cfg.AuditRetention != 30*24*time.Hour || cfg.JanitorEvery != 10*time.Minute {
		t.Fatalf("audit defaults = %v/%v", cfg.AuditRetention, cfg.JanitorEvery)
	}
}

// --- Load success + normalization + parsing ---

func TestLoad_OverridesAndNormalization(t *testing.T) {
	setRequired(t)
	t.Setenv("LOG_LEVEL", "warning") // -> warn
	t.Setenv("GIN_MODE", "weird")    // -> release
	t.Setenv("API_BASE_PATH", "ops/")
	t.Setenv("WEBHOOK_PATH", "hook/")
	t.Setenv("SEARCH_API_LANG", "EN-us")
	t.Setenv("SEARCH_API_LIMIT", "nope") // falls back to default
	t.Setenv("USER_COOLDOWN", "10s")
	t.Setenv("REPORT_CACHE_SIZE", "7")
	t.Setenv("LOG_FILE", "")
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.com , , http://b ")
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "0.25")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.LogLevel != "warn" || cfg.GinMode != "release" {
		t.Fatalf("normalization failed: level=%q gin=%q", cfg.LogLevel, cfg.GinMode)
	}
	if cfg.APIBasePath != "/ops" || cfg.Telegram.WebhookPath != "/hook" {
		t.Fatalf("paths not normalized: %q %q", cfg.APIBasePath, cfg.Telegram.WebhookPath)
	}
	if cfg.Search.Lang != "en-US" {
		t.Fatalf("Lang = %q; want canonical en-US", cfg.Search.Lang)
	}
	if cfg.Search.Limit != 300 {
		t.Fatalf("Limit = %d; want fallback 300", cfg.Search.Limit)
	}
	if cfg.Report.UserCooldown != 10*time.Second || cfg.Report.CacheSize != 7 {
		t.Fatalf("report overrides not applied: %+v", cfg.Report)
	}
	if cfg.LogFile != "" {
		t.Fatalf("explicit empty LOG_FILE should disable file sink, got %q", cfg.LogFile)
	}
	if !reflect.DeepEqual(cfg.CORS.AllowedOrigins, []string{"https://a.com", "http://b"}) {
		t.Fatalf("CORS origins = %#v", cfg.CORS.AllowedOrigins)
	}
	if cfg.OTEL.SampleRatio != 0.25 {
		t.Fatalf("SampleRatio = %v", cfg.OTEL.SampleRatio)
	}
}

func TestLoad_YAMLFile_EnvWins(t *testing.T) {
	setRequired(t)
	unsetenv(t, "TELEGRAM_BOT_TOKEN")
	unsetenv(t, "SEARCH_API_LIMIT")
	unsetenv(t, "PORT")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yml := `
telegram:
  token: "from-file"
search:
  limit: 50
  timeout: 5s
port: "9090"
`
	if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
		t.Fatalf("write yaml: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("SEARCH_API_TIMEOUT", "7s") // env beats file

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Telegram.Token != "from-file" || cfg.Search.Limit != 50 || cfg.Port != "9090" {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.Search.Timeout != 7*time.Second {
		t.Fatalf("env should override file timeout, got %v", cfg.Search.Timeout)
	}
}

func TestLoad_YAMLFile_Errors(t *testing.T) {
	setRequired(t)
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "read config") {
		t.Fatalf("expected read error, got %v", err)
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("telegram: [unclosed"), 0o600); err != nil {
		t.Fatalf("write yaml: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "parse config") {
		t.Fatalf("expected parse error, got %v", err)
	}
}

// --- validation ---

func TestLoad_ValidationErrors(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"bot token", map[string]string{"TELEGRAM_BOT_TOKEN": " "}, "TELEGRAM_BOT_TOKEN"},
		{"api token", map[string]string{"SEARCH_API_TOKEN": " "}, "SEARCH_API_TOKEN"},
		{"api url", map[string]string{"SEARCH_API_URL": "not a url"}, "SEARCH_API_URL"},
		{"api url scheme", map[string]string{"SEARCH_API_URL": "ftp://x.y/z"}, "SEARCH_API_URL"},
		{"lang", map[string]string{"SEARCH_API_LANG": "!!"}, "SEARCH_API_LANG"},
		{"limit", map[string]string{"SEARCH_API_LIMIT": "0"}, "SEARCH_API_LIMIT"},
		{"timeout", map[string]string{"SEARCH_API_TIMEOUT": "-1s"}, "SEARCH_API_TIMEOUT"},
		{"mode", map[string]string{"UPDATE_MODE": "carrier-pigeon"}, "UPDATE_MODE"},
		{"webhook url", map[string]string{"UPDATE_MODE": "webhook", "WEBHOOK_URL": ""}, "WEBHOOK_URL"},
		{"workers", map[string]string{"WORKERS": "0"}, "WORKERS"},
		{"cache size", map[string]string{"REPORT_CACHE_SIZE": "0"}, "REPORT_CACHE_SIZE"},
		{"cache ttl", map[string]string{"REPORT_CACHE_TTL": "0s"}, "REPORT_CACHE_TTL"},
		{"msg len", map[string]string{"MAX_MESSAGE_LENGTH": "50"}, "MAX_MESSAGE_LENGTH"},
		{"cooldown", map[string]string{"USER_COOLDOWN": "-2s"}, "USER_COOLDOWN"},
		{"timeouts", map[string]string{"READ_TIMEOUT": "0s"}, "timeouts"},
		{"ops rate", map[string]string{"OPS_RATE_RPS": "0"}, "OPS_RATE_RPS"},
		{"ops burst", map[string]string{"OPS_RATE_BURST": "0"}, "OPS_RATE_BURST"},
		{"retention", map[string]string{"AUDIT_RETENTION": "-1h"}, "AUDIT_RETENTION"},
		{"janitor", map[string]string{"JANITOR_INTERVAL": "0s"}, "JANITOR_INTERVAL"},
		{"db path", map[string]string{"AUDIT_ENABLED": "true", "DB_PATH": " "}, "DB_PATH"},
		{"otel", map[string]string{"OTEL_TRACES_SAMPLER_ARG": "1.5"}, "OTEL_TRACES_SAMPLER_ARG"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			setRequired(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("want error mentioning %q, got %v", tc.want, err)
			}
		})
	}
}

// --- helpers ---

func TestNormalizeBasePath(t *testing.T) {
	cases := map[string]string{
		"":         "/",
		"  ":       "/",
		"api":      "/api",
		"/api/":    "/api",
		"/":        "/",
		"/a/b///":  "/a/b",
		" /x/y/ ":  "/x/y",
		"no/slash": "/no/slash",
	}
	for in, want := range cases {
		if got := normalizeBasePath(in); got != want {
			t.Errorf("normalizeBasePath(%q) = %q; want %q", in, got, want)
		}
	}
}

func TestGetters_FallbackOnGarbage(t *testing.T) {
	t.Setenv("X_INT", "abc")
	t.Setenv("X_DUR", "soon")
	t.Setenv("X_BOOL", "maybe")
	t.Setenv("X_FLOAT", "pi")
	if getint("X_INT", 3) != 3 || getdur("X_DUR", time.Second) != time.Second ||
		getbool("X_BOOL", true) != true || getfloat("X_FLOAT", 1.5) != 1.5 {
		t.Fatalf("getters must fall back to defaults on unparsable input")
	}
}

// unsetenv removes k for the duration of the test, restoring it afterwards.
func unsetenv(t *testing.T, k string) {
	t.Helper()
	t.Setenv(k, "") // registers restore
	_ = os.Unsetenv(k)
}
