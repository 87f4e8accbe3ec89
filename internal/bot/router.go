package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"math"
	"math/rand/v2"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-report-bot/internal/domain"
	"github.com/tbourn/go-report-bot/internal/services"
	"github.com/tbourn/go-report-bot/internal/sysutil"
)

// Fixed replies.
const (
	TextWelcome = "Hi! I'm a bot for searching public databases. For more info on how to use me, send /help."
	TextHelp    = "<b>How to use this bot:</b>\n\n" +
		"Simply send me a query to search for, such as:\n" +
		"- An email address (<code>example@gmail.com</code>)\n" +
		"- A phone number (<code>1234567890</code>)\n" +
		"- A username (<code>example_user</code>)\n\n" +
		"The bot will search for matches in public data leaks. You can navigate the results " +
		"using the <code>&lt;&lt;</code> and <code>&gt;&gt;</code> buttons and delete the report with the 🗑️ button."
	TextNonText   = "Sorry, I can only process text queries. Please send something like an email, phone number, or username."
	TextSearching = "⏳ Searching, please wait..."
	TextNoResults = "✅ No results found for your query."
	TextExpired   = "This query has expired and its results are no longer available."

	NoticeExpired       = "Query expired."
	NoticeInvalid       = "Invalid callback data."
	NoticeDeleted       = "Report deleted."
	NoticeDeleteFailed  = "Could not delete message (it might be too old)."
	maxQueryIDExclusive = 10_000_000
)

// Reporter generates and caches a report for a query.
type Reporter interface {
	Generate(ctx context.Context, key, text string) (domain.Report, error)
}

// ReportLookup reads previously generated reports.
type ReportLookup interface {
	Get(key string) (domain.Report, bool)
}

// Limiter decides whether a user may submit a query now.
type Limiter interface {
	Allow(userID int64, now time.Time) (bool, time.Duration)
}

// AuditRecorder persists one row per query outcome.
type AuditRecorder interface {
	RecordQuery(ctx context.Context, rec *domain.QueryRecord) error
}

// Router consumes inbound updates and drives report generation, navigation,
// and deletion. Safe for concurrent use; all shared state lives in the
// injected Limiter and ReportLookup.
type Router struct {
	gw      Gateway
	limiter Limiter
	reports Reporter
	cache   ReportLookup
	audit   AuditRecorder

	now         func() time.Time
	newQueryID  func() int64
	redactQuery bool
}

// Option customizes a Router.
type Option func(*Router)

// WithClock overrides the time source used for cooldown decisions.
func WithClock(now func() time.Time) Option { return func(r *Router) { r.now = now } }

// WithQueryIDs overrides the query id generator.
func WithQueryIDs(next func() int64) Option { return func(r *Router) { r.newQueryID = next } }

// WithAudit enables the query audit log.
func WithAudit(a AuditRecorder) Option { return func(r *Router) { r.audit = a } }

// WithQueryRedaction masks emails, phone numbers and UUIDs in logged and
// audited query text.
func WithQueryRedaction(on bool) Option { return func(r *Router) { r.redactQuery = on } }

// NewRouter wires a Router. Query ids default to uniformly random values in
// [0, 10_000_000); a collision with a live report overwrites it.
func NewRouter(gw Gateway, limiter Limiter, reports Reporter, cache ReportLookup, opts ...Option) *Router {
	r := &Router{
		gw:         gw,
		limiter:    limiter,
		reports:    reports,
		cache:      cache,
		now:        time.Now,
		newQueryID: func() int64 { return rand.Int64N(maxQueryIDExclusive) },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Dispatch routes one update. A panic in any handler is recovered and logged
// so that a single faulty event never stops the caller's loop.
func (r *Router) Dispatch(ctx context.Context, u Update) {
	logger := log.With().Str("update_id", uuid.NewString()).Logger()
	ctx = logger.WithContext(ctx)

	defer func() {
		if rec := recover(); rec != nil {
			updatePanics.Inc()
			logger.Error().Interface("panic", rec).Msg("update handler panicked")
		}
	}()

	switch {
	case u.Callback != nil:
		r.HandleCallback(ctx, *u.Callback)
	case u.Message != nil:
		r.HandleMessage(ctx, *u.Message)
	}
}

// HandleMessage handles commands, non-text content, and free-text queries.
func (r *Router) HandleMessage(ctx context.Context, m Message) {
	if m.NonText {
		r.reply(ctx, m, TextNonText, false)
		return
	}
	switch command(m.Text) {
	case "/start":
		r.reply(ctx, m, TextWelcome, false)
	case "/help":
		r.reply(ctx, m, TextHelp, true)
	default:
		r.HandleQuery(ctx, m)
	}
}

// HandleQuery runs the cooldown check, generates a report, and posts its
// first page.
func (r *Router) HandleQuery(ctx context.Context, m Message) {
	logger := logFrom(ctx)

	allowed, wait := r.limiter.Allow(m.UserID, r.now())
	if !allowed {
		queriesTotal.WithLabelValues(domain.OutcomeRateLimited).Inc()
		r.record(ctx, domain.Query{UserID: m.UserID, Username: m.Username, Text: m.Text}, domain.OutcomeRateLimited, 0, 0)
		r.reply(ctx, m, RateLimitedText(wait), false)
		return
	}

	q := domain.Query{
		ID:        r.newQueryID(),
		UserID:    m.UserID,
		Username:  m.Username,
		ChatID:    m.ChatID,
		MessageID: m.MessageID,
		Text:      m.Text,
	}
	logger.Info().
		Int64("user_id", q.UserID).
		Str("username", q.Username).
		Int64("query_id", q.ID).
		Str("query", r.loggable(services.FirstLine(q.Text))).
		Msg("query received")

	waitID, err := r.gw.SendMessage(ctx, OutgoingMessage{ChatID: m.ChatID, ReplyTo: m.MessageID, Text: TextSearching})
	if err != nil {
		logger.Warn().Err(err).Msg("send searching notice")
	}

	start := time.Now()
	pages, genErr := r.reports.Generate(ctx, q.Key(), q.Text)
	latency := time.Since(start)

	if waitID != 0 {
		if err := r.gw.DeleteMessage(ctx, m.ChatID, waitID); err != nil {
			logger.Debug().Err(err).Msg("delete searching notice")
		}
	}
	r.syncCacheGauge()

	outcome := services.Outcome(len(pages), genErr)
	queriesTotal.WithLabelValues(outcome).Inc()
	r.record(ctx, q, outcome, len(pages), latency)

	switch {
	case genErr != nil:
		logger.Warn().Err(genErr).Int64("query_id", q.ID).Str("outcome", outcome).Msg("report generation failed")
		r.reply(ctx, m, "⚠️ Error: "+services.UserMessage(genErr), false)
	case len(pages) == 0:
		r.reply(ctx, m, TextNoResults, false)
	default:
		kb := BuildKeyboard(q.Key(), 0, len(pages))
		r.sendPage(ctx, m.ChatID, pages[0], &kb)
	}
}

// HandleCallback handles navigation, delete, and no-op button presses.
func (r *Router) HandleCallback(ctx context.Context, cb CallbackQuery) {
	action, err := ParseCallback(cb.Data)
	if err != nil {
		callbacksTotal.WithLabelValues("invalid").Inc()
		r.answer(ctx, cb.ID, NoticeInvalid)
		return
	}

	switch action.Kind {
	case CallbackPage:
		r.navigate(ctx, cb, action)
	case CallbackDelete:
		r.deleteReport(ctx, cb)
	case CallbackNoop:
		callbacksTotal.WithLabelValues("noop").Inc()
		r.answer(ctx, cb.ID, "")
	}
}

func (r *Router) navigate(ctx context.Context, cb CallbackQuery, a Action) {
	logger := logFrom(ctx)

	pages, ok := r.cache.Get(a.QueryID)
	r.syncCacheGauge()
	if !ok {
		callbacksTotal.WithLabelValues("expired").Inc()
		err := r.gw.EditMessage(ctx, EditMessage{ChatID: cb.ChatID, MessageID: cb.MessageID, Text: TextExpired})
		if err != nil {
			logger.Warn().Err(err).Str("query_id", a.QueryID).Msg("edit expired report")
		}
		r.answer(ctx, cb.ID, NoticeExpired)
		return
	}
	if a.Page >= len(pages) {
		callbacksTotal.WithLabelValues("invalid").Inc()
		r.answer(ctx, cb.ID, NoticeInvalid)
		return
	}

	callbacksTotal.WithLabelValues("page").Inc()
	kb := BuildKeyboard(a.QueryID, a.Page, len(pages))
	edit := EditMessage{ChatID: cb.ChatID, MessageID: cb.MessageID, Text: pages[a.Page], HTML: true, Keyboard: &kb}
	err := r.gw.EditMessage(ctx, edit)
	switch {
	case err == nil:
	case errors.Is(err, ErrNotModified):
		logger.Debug().Str("query_id", a.QueryID).Int("page", a.Page).Msg("page already displayed")
	case errors.Is(err, ErrRejected):
		logger.Warn().Err(err).Msg("rich text edit rejected, falling back to plain text")
		edit.Text, edit.HTML = PlainText(edit.Text), false
		if err := r.gw.EditMessage(ctx, edit); err != nil && !errors.Is(err, ErrNotModified) {
			logger.Warn().Err(err).Msg("plain text edit failed")
		}
	default:
		logger.Warn().Err(err).Str("query_id", a.QueryID).Msg("edit report page")
	}
	r.answer(ctx, cb.ID, "")
}

func (r *Router) deleteReport(ctx context.Context, cb CallbackQuery) {
	if err := r.gw.DeleteMessage(ctx, cb.ChatID, cb.MessageID); err != nil {
		callbacksTotal.WithLabelValues("delete_failed").Inc()
		logFrom(ctx).Warn().Err(err).Int("message_id", cb.MessageID).Msg("could not delete report")
		r.answer(ctx, cb.ID, NoticeDeleteFailed)
		return
	}
	callbacksTotal.WithLabelValues("delete").Inc()
	r.answer(ctx, cb.ID, NoticeDeleted)
}

// sendPage posts a report page, retrying as plain text with the same
// controls if the transport rejects the markup.
func (r *Router) sendPage(ctx context.Context, chatID int64, page string, kb *domain.Keyboard) {
	logger := logFrom(ctx)
	_, err := r.gw.SendMessage(ctx, OutgoingMessage{ChatID: chatID, Text: page, HTML: true, Keyboard: kb})
	if err == nil {
		return
	}
	if !errors.Is(err, ErrRejected) {
		logger.Error().Err(err).Msg("send report page")
		return
	}
	logger.Warn().Err(err).Msg("rich text send rejected, falling back to plain text")
	if _, err := r.gw.SendMessage(ctx, OutgoingMessage{ChatID: chatID, Text: PlainText(page), Keyboard: kb}); err != nil {
		logger.Error().Err(err).Msg("plain text send failed")
	}
}

func (r *Router) reply(ctx context.Context, m Message, text string, asHTML bool) {
	_, err := r.gw.SendMessage(ctx, OutgoingMessage{ChatID: m.ChatID, ReplyTo: m.MessageID, Text: text, HTML: asHTML})
	if err != nil {
		logFrom(ctx).Warn().Err(err).Int64("chat_id", m.ChatID).Msg("send reply")
	}
}

func (r *Router) answer(ctx context.Context, callbackID, text string) {
	if err := r.gw.AnswerCallback(ctx, callbackID, text); err != nil {
		logFrom(ctx).Debug().Err(err).Msg("answer callback")
	}
}

func (r *Router) record(ctx context.Context, q domain.Query, outcome string, pages int, latency time.Duration) {
	if r.audit == nil {
		return
	}
	rec := &domain.QueryRecord{
		QueryID:   q.ID,
		UserID:    q.UserID,
		Username:  q.Username,
		Query:     r.loggable(services.FirstLine(q.Text)),
		Outcome:   outcome,
		PageCount: pages,
		LatencyMS: latency.Milliseconds(),
	}
	if err := r.audit.RecordQuery(ctx, rec); err != nil {
		logFrom(ctx).Warn().Err(err).Msg("audit query")
	}
}

func (r *Router) loggable(s string) string {
	if r.redactQuery {
		return sysutil.Redact(s)
	}
	return s
}

func (r *Router) syncCacheGauge() {
	if l, ok := r.cache.(interface{ Len() int }); ok {
		cacheEntries.Set(float64(l.Len()))
	}
}

// logFrom returns the update-scoped logger attached by Dispatch, or the
// global logger.
func logFrom(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &log.Logger
}

// RateLimitedText is the reply for a query rejected by the cooldown.
func RateLimitedText(wait time.Duration) string {
	// Round first so float noise in the limiter never adds a second.
	secs := int(math.Ceil(wait.Round(time.Millisecond).Seconds()))
	if secs < 1 {
		secs = 1
	}
	return fmt.Sprintf("Please wait %d seconds before sending another query.", secs)
}

var tagRe = regexp.MustCompile(`<[^>]*>`)

// PlainText strips HTML markup from a page, keeping its visible content.
func PlainText(s string) string {
	return html.UnescapeString(tagRe.ReplaceAllString(s, ""))
}

// command returns the bot command at the start of text ("/start@MyBot x"
// yields "/start"), or "" when text is not a command.
func command(text string) string {
	if !strings.HasPrefix(text, "/") {
		return ""
	}
	cmd, _, _ := strings.Cut(text, " ")
	cmd, _, _ = strings.Cut(cmd, "\n")
	cmd, _, _ = strings.Cut(cmd, "@")
	return strings.ToLower(cmd)
}
