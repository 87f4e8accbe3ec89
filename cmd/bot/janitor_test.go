package main

import (
	"context"
	"errors"
	"testing"
	"time"
)

type countingCache struct{ calls int }

func (c *countingCache) PurgeExpired() int { c.calls++; return 1 }

func TestJanitor_SweepPurgesAndPrunes(t *testing.T) {
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	var gotBefore time.Time
	c := &countingCache{}
	j := &janitor{
		retention: 24 * time.Hour,
		cache:     c,
		now:       func() time.Time { return now },
		prune: func(_ context.Context, before time.Time) (int64, error) {
			gotBefore = before
			return 3, nil
		},
	}
	j.sweep(context.Background())

	if c.calls != 1 {
		t.Fatalf("PurgeExpired calls = %d", c.calls)
	}
	if want := now.Add(-24 * time.Hour); !gotBefore.Equal(want) {
		t.Fatalf("prune cutoff = %v; want %v", gotBefore, want)
	}
}

func TestJanitor_SweepSkipsPrune(t *testing.T) {
	pruned := false
	prune := func(context.Context, time.Time) (int64, error) { pruned = true; return 0, nil }

	// retention disabled
	(&janitor{cache: &countingCache{}, prune: prune}).sweep(context.Background())
	// audit disabled
	(&janitor{cache: &countingCache{}, retention: time.Hour}).sweep(context.Background())
	if pruned {
		t.Fatalf("prune must not run without retention")
	}

	// errors are logged, not fatal
	failing := func(context.Context, time.Time) (int64, error) { return 0, errors.New("locked") }
	(&janitor{cache: &countingCache{}, retention: time.Hour, prune: failing}).sweep(context.Background())
}

func TestJanitor_RunStopsOnCancel(t *testing.T) {
	j := &janitor{every: time.Millisecond, cache: &countingCache{}}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- j.run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("run did not stop after cancel")
	}
}
