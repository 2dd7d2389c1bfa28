package dispatch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
)

type countingLimiter struct {
	mu    sync.Mutex
	waits int
}

func (l *countingLimiter) Wait(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.waits++
	return nil
}

func slogDiscard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLocalDeliversEveryJob(t *testing.T) {
	var mu sync.Mutex
	seen := map[string]int{}
	handler := func(ctx context.Context, job Job) error {
		mu.Lock()
		defer mu.Unlock()
		seen[job.MessageID]++
		return nil
	}
	limiter := &countingLimiter{}
	d := NewLocal(handler, limiter, slogDiscard(), 2, 3)

	for _, id := range []string{"a", "b", "c"} {
		if err := d.Submit(context.Background(), NewJob("user@example.com", id)); err != nil {
			t.Fatalf("submit %s: %v", id, err)
		}
	}
	d.Close()

	if len(seen) != 3 {
		t.Fatalf("expected 3 distinct jobs handled, got %d", len(seen))
	}
	if limiter.waits != 3 {
		t.Fatalf("expected limiter consulted per submission, got %d waits", limiter.waits)
	}
}

func TestLocalRetriesUntilSuccess(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	handler := func(ctx context.Context, job Job) error {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	}
	d := NewLocal(handler, nil, slogDiscard(), 1, 5)
	if err := d.Submit(context.Background(), NewJob("user@example.com", "m1")); err != nil {
		t.Fatalf("submit: %v", err)
	}
	d.Close()

	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestLocalDropsAfterAttempts(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	handler := func(ctx context.Context, job Job) error {
		mu.Lock()
		defer mu.Unlock()
		calls++
		return errors.New("permanent")
	}
	d := NewLocal(handler, nil, slogDiscard(), 1, 2)
	if err := d.Submit(context.Background(), NewJob("user@example.com", "m1")); err != nil {
		t.Fatalf("submit: %v", err)
	}
	d.Close()

	if calls != 2 {
		t.Fatalf("expected exactly 2 attempts, got %d", calls)
	}
}
