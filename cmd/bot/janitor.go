package main

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// janitor periodically drops expired reports and audit rows past retention.
type janitor struct {
	every     time.Duration
	retention time.Duration // <= 0 keeps audit rows forever
	cache     interface{ PurgeExpired() int }
	// prune is nil when the audit log is disabled.
	prune func(ctx context.Context, before time.Time) (int64, error)
	now   func() time.Time
}

func (j *janitor) run(ctx context.Context) error {
	t := time.NewTicker(j.every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			j.sweep(ctx)
		}
	}
}

func (j *janitor) sweep(ctx context.Context) {
	now := time.Now
	if j.now != nil {
		now = j.now
	}

	if n := j.cache.PurgeExpired(); n > 0 {
		log.Debug().Int("reports", n).Msg("expired reports purged")
	}
	if j.prune == nil || j.retention <= 0 {
		return
	}
	n, err := j.prune(ctx, now().Add(-j.retention))
	if err != nil {
		log.Warn().Err(err).Msg("audit prune failed")
		return
	}
	if n > 0 {
		log.Info().Int64("records", n).Msg("audit records pruned")
	}
}
