// Package services – ReportService
//
// ReportService turns a user's query into a rendered, paginated report. It
// submits the first line of the query to the search API, renders one HTML
// page per result group, bounds every page to the display limit, and stores
// non-empty reports in the report cache for later navigation.
//
// The search call is the only blocking step and runs without holding any
// shared lock; its duration is bounded by the search client's timeout.
package services

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-report-bot/internal/domain"
	"github.com/tbourn/go-report-bot/internal/search"
)

const (
	// DefaultMaxMessageLength is Telegram's message text limit.
	DefaultMaxMessageLength = 4096

	// TruncationMarker is appended to pages cut at the length limit.
	TruncationMarker = "\n\n[...Message truncated...]"

	// truncationReserve is the room left for the marker and closing tags.
	truncationReserve = 100
)

// Searcher is the search API contract consumed by ReportService.
type Searcher interface {
	Search(ctx context.Context, query string) (*search.Result, error)
}

// ReportStore receives generated reports.
type ReportStore interface {
	Put(key string, pages domain.Report)
}

// ReportService generates reports. Safe for concurrent use.
type ReportService struct {
	Searcher Searcher
	Cache    ReportStore

	// MaxMessageLength bounds each page in Unicode code points.
	MaxMessageLength int

	// Observe, when set, receives the outcome label and search latency of
	// every Generate call.
	Observe func(outcome string, elapsed time.Duration)
}

// NewReportService constructs a ReportService with the default page limit.
func NewReportService(s Searcher, c ReportStore) *ReportService {
	return &ReportService{
		Searcher:         s,
		Cache:            c,
		MaxMessageLength: DefaultMaxMessageLength,
	}
}

// Generate runs the query and returns its pages.
//
// Outcomes:
//   - error: ErrEmptyQuery, ErrNetwork, ErrServiceResponse, or a *ServiceError
//     (matching ErrServiceReported); no pages, nothing cached.
//   - empty report, nil error: the search matched nothing; nothing cached.
//   - non-empty report: pages are stored in the cache under key.
func (s *ReportService) Generate(ctx context.Context, key, text string) (domain.Report, error) {
	tr := otel.Tracer("services/ReportService")
	ctx, span := tr.Start(ctx, "Generate",
		trace.WithAttributes(attribute.String("query.key", key)),
	)
	defer span.End()

	query := FirstLine(text)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	start := time.Now()
	res, err := s.Searcher.Search(ctx, query)
	elapsed := time.Since(start)

	pages, err := s.build(res, err)
	span.SetAttributes(
		attribute.Int("report.pages", len(pages)),
		attribute.String("report.outcome", Outcome(len(pages), err)),
	)
	if s.Observe != nil {
		s.Observe(Outcome(len(pages), err), elapsed)
	}
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if len(pages) > 0 && s.Cache != nil {
		s.Cache.Put(key, pages)
	}
	return pages, nil
}

// build classifies the search result and renders its groups.
func (s *ReportService) build(res *search.Result, err error) (domain.Report, error) {
	var apiErr *search.APIError
	switch {
	case err == nil:
	case errors.As(err, &apiErr):
		return nil, &ServiceError{Detail: apiErr.Detail}
	case errors.Is(err, search.ErrMalformed):
		return nil, fmt.Errorf("%w: %v", ErrServiceResponse, err)
	default:
		// Transport failures, timeouts, and anything unclassified.
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	if res == nil || len(res.Groups) == 0 {
		return domain.Report{}, nil
	}

	limit := s.MaxMessageLength
	if limit <= 0 {
		limit = DefaultMaxMessageLength
	}
	pages := make(domain.Report, 0, len(res.Groups))
	for _, g := range res.Groups {
		pages = append(pages, RenderPage(g, limit))
	}
	return pages, nil
}

// FirstLine returns the first line of text, trimmed. Only this line is ever
// submitted to the search API.
func FirstLine(text string) string {
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[:i]
	}
	return strings.TrimSpace(text)
}

// RenderPage formats one result group as an HTML page:
//
//	<b>Group</b>
//
//	Info line
//
//	<b>Field</b>:  value
//	<b>Field</b>:  value
//
//	<b>Field</b>:  value
//
// All API-supplied text is HTML-escaped. The result never exceeds limit
// code points.
func RenderPage(g search.Group, limit int) string {
	var b strings.Builder
	b.WriteString("<b>" + html.EscapeString(g.Name) + "</b>\n\n")
	if info := strings.TrimSpace(g.Info); info != "" {
		b.WriteString(html.EscapeString(info) + "\n\n")
	}
	for _, rec := range g.Records {
		for _, f := range rec {
			b.WriteString("<b>" + html.EscapeString(f.Name) + "</b>:  " + html.EscapeString(f.Value) + "\n")
		}
		b.WriteString("\n")
	}
	return TruncatePage(strings.TrimRight(b.String(), "\n"), limit)
}

// TruncatePage bounds an HTML page to limit code points. Oversized pages are
// cut without splitting a tag or entity, any open <b> is closed, and the
// truncation marker is appended.
func TruncatePage(page string, limit int) string {
	if utf8.RuneCountInString(page) <= limit {
		return page
	}

	keep := limit - truncationReserve
	if ceiling := limit - utf8.RuneCountInString(TruncationMarker) - len("</b>"); keep < 0 || keep > ceiling {
		keep = ceiling
	}
	if keep < 0 {
		keep = 0
	}

	cut := string([]rune(page)[:keep])
	// Drop a trailing partial tag or entity.
	if i := strings.LastIndexByte(cut, '<'); i > strings.LastIndexByte(cut, '>') {
		cut = cut[:i]
	}
	if i := strings.LastIndexByte(cut, '&'); i > strings.LastIndexByte(cut, ';') {
		cut = cut[:i]
	}
	if strings.Count(cut, "<b>") > strings.Count(cut, "</b>") {
		cut += "</b>"
	}
	return cut + TruncationMarker
}
