package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Dispatcher handles one update to completion.
type Dispatcher interface {
	Dispatch(ctx context.Context, u Update)
}

// Pool runs updates on a bounded number of goroutines. Submit blocks while
// all workers are busy.
type Pool struct {
	ctx context.Context
	d   Dispatcher
	g   errgroup.Group
}

// NewPool returns a Pool of size workers. Handlers get a context carrying the
// values of ctx but not its cancellation, so shutdown lets in-flight updates
// finish.
func NewPool(ctx context.Context, d Dispatcher, workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	p := &Pool{ctx: context.WithoutCancel(ctx), d: d}
	p.g.SetLimit(workers)
	return p
}

// Submit schedules u.
func (p *Pool) Submit(u Update) {
	p.g.Go(func() error {
		p.d.Dispatch(p.ctx, u)
		return nil
	})
}

// Wait blocks until every submitted update has been handled.
func (p *Pool) Wait() { _ = p.g.Wait() }

// UpdateSource is the subset of *tgbotapi.BotAPI used for long polling.
type UpdateSource interface {
	GetUpdatesChan(cfg tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// errUpdatesClosed is returned when the update channel closes on its own.
var errUpdatesClosed = errors.New("update channel closed")

// Poller receives updates by long polling and feeds them to a Pool.
type Poller struct {
	Source     UpdateSource
	Pool       *Pool
	Timeout    int           // long-poll timeout in seconds
	RetryDelay time.Duration // pause before resuming after a fault
}

// Run polls until ctx is cancelled. A fault in the receive loop is logged
// and the loop resumes after RetryDelay. In-flight updates are drained
// before Run returns.
func (p *Poller) Run(ctx context.Context) error {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = p.Timeout
	cfg.AllowedUpdates = []string{"message", "callback_query"}
	updates := p.Source.GetUpdatesChan(cfg)

	defer p.Pool.Wait()
	for {
		err := p.consume(ctx, updates)
		if ctx.Err() != nil {
			p.Source.StopReceivingUpdates()
			return nil
		}
		if errors.Is(err, errUpdatesClosed) {
			return err
		}
		log.Error().Err(err).Dur("retry_in", p.RetryDelay).Msg("polling loop fault, resuming")
		select {
		case <-ctx.Done():
			p.Source.StopReceivingUpdates()
			return nil
		case <-time.After(p.RetryDelay):
		}
	}
}

func (p *Poller) consume(ctx context.Context, updates tgbotapi.UpdatesChannel) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case u, ok := <-updates:
			if !ok {
				return errUpdatesClosed
			}
			if upd, ok := FromTelegram(u); ok {
				p.Pool.Submit(upd)
			}
		}
	}
}
