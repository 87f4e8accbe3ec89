// Package config provides application configuration loaded from environment
// variables with defaults and validation. Values may also come from an
// optional YAML file (CONFIG_FILE); environment variables always win over the
// file, and the file wins over built-in defaults.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// Update delivery modes.
const (
	ModePolling = "polling"
	ModeWebhook = "webhook"
)

// CORSConfig defines Cross-Origin Resource Sharing settings for the ops API.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// TelegramConfig holds bot credentials and update delivery settings.
type TelegramConfig struct {
	Token          string        // TELEGRAM_BOT_TOKEN
	UpdateMode     string        // polling|webhook
	PollTimeout    int           // long-poll timeout in seconds
	PollRetryDelay time.Duration // pause before restarting a failed poll loop
	Workers        int           // max updates processed concurrently
	WebhookURL     string        // public URL registered with Telegram
	WebhookPath    string        // route on the ops server
	WebhookSecret  string        // X-Telegram-Bot-Api-Secret-Token value
}

// SearchConfig holds the external search API settings.
type SearchConfig struct {
	Token   string
	URL     string
	Lang    string
	Limit   int
	Timeout time.Duration
}

// ReportConfig bounds report rendering and caching.
type ReportConfig struct {
	CacheSize        int
	CacheTTL         time.Duration
	MaxMessageLength int
	UserCooldown     time.Duration
}

// Config holds all configuration values for the application.
type Config struct {
	Telegram TelegramConfig
	Search   SearchConfig
	Report   ReportConfig

	// Ops HTTP server
	Port              string
	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	GinMode           string // debug|release|test
	APIBasePath       string
	OpsRateRPS        float64 // per-IP token refill rate for the ops API
	OpsRateBurst      int

	// Logging
	LogLevel         string // debug|info|warn|error|fatal|panic
	LogPretty        bool
	LogFile          string // empty disables the file sink
	LogRedactQueries bool

	// Audit log
	AuditEnabled   bool
	DBPath         string
	AuditRetention time.Duration // 0 keeps records forever
	JanitorEvery   time.Duration // cache purge / audit prune interval

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Observability
	OTEL OTELConfig
}

// FileConfig mirrors the subset of settings that may be supplied through a
// YAML file. Zero values fall through to built-in defaults.
type FileConfig struct {
	Telegram struct {
		Token       string `yaml:"token"`
		UpdateMode  string `yaml:"updateMode"`
		WebhookURL  string `yaml:"webhookURL"`
		WebhookPath string `yaml:"webhookPath"`
		Workers     int    `yaml:"workers"`
	} `yaml:"telegram"`
	Search struct {
		Token   string `yaml:"token"`
		URL     string `yaml:"url"`
		Lang    string `yaml:"lang"`
		Limit   int    `yaml:"limit"`
		Timeout string `yaml:"timeout"`
	} `yaml:"search"`
	Port     string `yaml:"port"`
	LogLevel string `yaml:"logLevel"`
	LogFile  string `yaml:"logFile"`
	DBPath   string `yaml:"dbPath"`
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables (and CONFIG_FILE when
// set), applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	fc, err := readFile(getenv("CONFIG_FILE", ""))
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Telegram: TelegramConfig{
			Token:          getenv("TELEGRAM_BOT_TOKEN", fc.Telegram.Token),
			UpdateMode:     strings.ToLower(getenv("UPDATE_MODE", or(fc.Telegram.UpdateMode, ModePolling))),
			PollTimeout:    getint("POLL_TIMEOUT", 60),
			PollRetryDelay: getdur("POLL_RETRY_DELAY", 5*time.Second),
			Workers:        getint("WORKERS", orInt(fc.Telegram.Workers, 16)),
			WebhookURL:     getenv("WEBHOOK_URL", fc.Telegram.WebhookURL),
			WebhookPath:    normalizeBasePath(getenv("WEBHOOK_PATH", or(fc.Telegram.WebhookPath, "/telegram/webhook"))),
			WebhookSecret:  getenv("WEBHOOK_SECRET", ""),
		},
		Search: SearchConfig{
			Token:   getenv("SEARCH_API_TOKEN", fc.Search.Token),
			URL:     getenv("SEARCH_API_URL", fc.Search.URL),
			Lang:    getenv("SEARCH_API_LANG", or(fc.Search.Lang, "ru")),
			Limit:   getint("SEARCH_API_LIMIT", orInt(fc.Search.Limit, 300)),
			Timeout: getdur("SEARCH_API_TIMEOUT", parseDur(fc.Search.Timeout, 30*time.Second)),
		},
		Report: ReportConfig{
			CacheSize:        getint("REPORT_CACHE_SIZE", 500),
			CacheTTL:         getdur("REPORT_CACHE_TTL", time.Hour),
			MaxMessageLength: getint("MAX_MESSAGE_LENGTH", 4096),
			UserCooldown:     getdur("USER_COOLDOWN", 3*time.Second),
		},

		Port:              getenv("PORT", or(fc.Port, "8080")),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),
		APIBasePath:       normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),
		OpsRateRPS:        getfloat("OPS_RATE_RPS", 5),
		OpsRateBurst:      getint("OPS_RATE_BURST", 10),

		LogLevel:         strings.ToLower(getenv("LOG_LEVEL", or(fc.LogLevel, "info"))),
		LogPretty:        getbool("LOG_PRETTY", false),
		LogFile:          getenvAllowEmpty("LOG_FILE", or(fc.LogFile, "bot.log")),
		LogRedactQueries: getbool("LOG_REDACT_QUERIES", false),

		AuditEnabled:   getbool("AUDIT_ENABLED", true),
		DBPath:         getenv("DB_PATH", or(fc.DBPath, "bot.db")),
		AuditRetention: getdur("AUDIT_RETENTION", 30*24*time.Hour),
		JanitorEvery:   getdur("JANITOR_INTERVAL", 10*time.Minute),

		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-report-bot"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}
	if tag, err := language.Parse(cfg.Search.Lang); err == nil {
		cfg.Search.Lang = tag.String()
	}

	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func validate(cfg Config) error {
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		return errors.New("TELEGRAM_BOT_TOKEN must not be empty")
	}
	switch cfg.Telegram.UpdateMode {
	case ModePolling:
	case ModeWebhook:
		if strings.TrimSpace(cfg.Telegram.WebhookURL) == "" {
			return errors.New("WEBHOOK_URL is required when UPDATE_MODE=webhook")
		}
	default:
		return errors.New("UPDATE_MODE must be one of: polling, webhook")
	}
	if cfg.Telegram.PollTimeout < 0 {
		return errors.New("POLL_TIMEOUT must be >= 0")
	}
	if cfg.Telegram.PollRetryDelay <= 0 {
		return errors.New("POLL_RETRY_DELAY must be > 0")
	}
	if cfg.Telegram.Workers < 1 {
		return errors.New("WORKERS must be >= 1")
	}
	if strings.TrimSpace(cfg.Search.Token) == "" {
		return errors.New("SEARCH_API_TOKEN must not be empty")
	}
	if u, err := url.Parse(cfg.Search.URL); err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return errors.New("SEARCH_API_URL must be an absolute http(s) URL")
	}
	if _, err := language.Parse(cfg.Search.Lang); err != nil {
		return fmt.Errorf("SEARCH_API_LANG is not a valid language tag: %w", err)
	}
	if cfg.Search.Limit <= 0 {
		return errors.New("SEARCH_API_LIMIT must be > 0")
	}
	if cfg.Search.Timeout <= 0 {
		return errors.New("SEARCH_API_TIMEOUT must be > 0")
	}
	if cfg.Report.CacheSize < 1 {
		return errors.New("REPORT_CACHE_SIZE must be >= 1")
	}
	if cfg.Report.CacheTTL <= 0 {
		return errors.New("REPORT_CACHE_TTL must be > 0")
	}
	// Room for the truncation marker.
	if cfg.Report.MaxMessageLength <= 100 {
		return errors.New("MAX_MESSAGE_LENGTH must be > 100")
	}
	if cfg.Report.UserCooldown < 0 {
		return errors.New("USER_COOLDOWN must be >= 0")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if cfg.OpsRateRPS <= 0 || cfg.OpsRateBurst < 1 {
		return errors.New("OPS_RATE_RPS must be > 0 and OPS_RATE_BURST >= 1")
	}
	if cfg.AuditRetention < 0 {
		return errors.New("AUDIT_RETENTION must be >= 0")
	}
	if cfg.JanitorEvery <= 0 {
		return errors.New("JANITOR_INTERVAL must be > 0")
	}
	if cfg.AuditEnabled && strings.TrimSpace(cfg.DBPath) == "" {
		return errors.New("DB_PATH must not be empty when AUDIT_ENABLED")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}
	return nil
}

// readFile parses the optional YAML file. An empty path yields a zero FileConfig.
func readFile(path string) (FileConfig, error) {
	var fc FileConfig
	if strings.TrimSpace(path) == "" {
		return fc, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fc, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fc, fmt.Errorf("parse config: %w", err)
	}
	return fc, nil
}

// ---- helpers ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

// getenvAllowEmpty treats an explicitly empty variable as a value.
func getenvAllowEmpty(k, def string) string {
	if v, ok := os.LookupEnv(k); ok {
		return strings.TrimSpace(v)
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return parseDur(v, def)
	}
	return def
}

func parseDur(v string, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil {
		return d
	}
	return def
}

func or(v, def string) string {
	if strings.TrimSpace(v) != "" {
		return v
	}
	return def
}

func orInt(v, def int) int {
	if v != 0 {
		return v
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
