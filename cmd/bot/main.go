// Command bot runs the Telegram report bot: it receives queries by long
// polling or webhook, looks them up in the search API and answers with
// paginated HTML reports. An ops HTTP server exposes health, metrics, stats
// and (in webhook mode) the webhook endpoint.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/tbourn/go-report-bot/internal/bot"
	"github.com/tbourn/go-report-bot/internal/cache"
	"github.com/tbourn/go-report-bot/internal/config"
	httpapi "github.com/tbourn/go-report-bot/internal/http"
	"github.com/tbourn/go-report-bot/internal/observability"
	"github.com/tbourn/go-report-bot/internal/ratelimit"
	"github.com/tbourn/go-report-bot/internal/repo"
	"github.com/tbourn/go-report-bot/internal/search"
	"github.com/tbourn/go-report-bot/internal/services"
	"github.com/tbourn/go-report-bot/internal/sysutil"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// shutdownGrace bounds the ops server and exporter shutdown.
const shutdownGrace = 10 * time.Second

func main() {
	envErr := godotenv.Load()

	cfg := config.MustLoad()

	closer, err := sysutil.SetupLogger(sysutil.LogOptions{
		Level:  cfg.LogLevel,
		Pretty: cfg.LogPretty,
		File:   cfg.LogFile,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger setup: %v\n", err)
		os.Exit(1)
	}
	defer closer.Close()

	if envErr != nil {
		log.Debug().Msg("no .env file found, using environment variables")
	}

	if err := run(cfg); err != nil {
		log.Error().Err(err).Msg("bot stopped")
		closer.Close()
		os.Exit(1)
	}
	log.Info().Msg("bot stopped")
}

func run(cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTEL, err := observability.Setup(ctx, cfg.OTEL, version, observability.UpdateMode(cfg.Telegram.UpdateMode))
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := shutdownOTEL(sctx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	opts := []bot.Option{bot.WithQueryRedaction(cfg.LogRedactQueries)}
	var db *gorm.DB
	if cfg.AuditEnabled {
		db, err = repo.OpenSQLite(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("open audit db: %w", err)
		}
		if sqlDB, err := db.DB(); err == nil {
			defer sqlDB.Close()
		}
		if err := repo.AutoMigrate(db); err != nil {
			return fmt.Errorf("migrate audit db: %w", err)
		}
		opts = append(opts, bot.WithAudit(repo.QueryLog{DB: db}))
		log.Info().Str("path", cfg.DBPath).Msg("audit log enabled")
	}

	reports, err := cache.New(cfg.Report.CacheSize, cfg.Report.CacheTTL, cache.WithEvictionHook(bot.ObserveCacheEviction))
	if err != nil {
		return fmt.Errorf("report cache: %w", err)
	}
	cooldown := ratelimit.NewCooldown(cfg.Report.UserCooldown)

	client := search.NewClient(cfg.Search.URL, cfg.Search.Token, cfg.Search.Limit, cfg.Search.Lang, cfg.Search.Timeout)
	svc := services.NewReportService(client, reports)
	svc.MaxMessageLength = cfg.Report.MaxMessageLength
	svc.Observe = bot.ObserveSearch

	api, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		return fmt.Errorf("telegram login: %w", err)
	}
	log.Info().
		Str("bot", api.Self.UserName).
		Str("mode", cfg.Telegram.UpdateMode).
		Str("version", version).
		Msg("bot authorized")

	router := bot.NewRouter(bot.NewTelegramGateway(api), cooldown, svc, reports, opts...)
	pool := bot.NewPool(ctx, router, cfg.Telegram.Workers)
	deps := httpapi.Deps{Cache: reports, Cooldown: cooldown, DB: db}

	g, gctx := errgroup.WithContext(ctx)

	switch cfg.Telegram.UpdateMode {
	case config.ModeWebhook:
		if err := bot.RegisterWebhook(api, cfg.Telegram.WebhookURL, cfg.Telegram.WebhookSecret); err != nil {
			return fmt.Errorf("register webhook: %w", err)
		}
		deps.Updates = pool
		defer pool.Wait()
		log.Info().Str("url", cfg.Telegram.WebhookURL).Msg("webhook registered")
	default:
		// getUpdates is refused while a webhook is set.
		if err := bot.ClearWebhook(api); err != nil {
			return fmt.Errorf("clear webhook: %w", err)
		}
		poller := &bot.Poller{
			Source:     api,
			Pool:       pool,
			Timeout:    cfg.Telegram.PollTimeout,
			RetryDelay: cfg.Telegram.PollRetryDelay,
		}
		g.Go(func() error { return poller.Run(gctx) })
	}

	gin.SetMode(cfg.GinMode)
	engine := gin.New()
	httpapi.RegisterRoutes(engine, deps, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           engine,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}
	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Msg("ops server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("ops server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	j := &janitor{
		every:     cfg.JanitorEvery,
		retention: cfg.AuditRetention,
		cache:     reports,
	}
	if db != nil {
		j.prune = func(ctx context.Context, before time.Time) (int64, error) {
			return repo.PruneQueryRecords(ctx, db, before)
		}
	}
	g.Go(func() error { return j.run(gctx) })

	return g.Wait()
}
