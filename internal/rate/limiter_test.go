package rate

import (
	"context"
	"testing"
	"time"
)

func TestWaitReturnsOnCancel(t *testing.T) {
	tb := NewTokenBucket(1, 1)
	defer tb.Stop()

	// drain the initial token
	if err := tb.Wait(context.Background()); err != nil {
		t.Fatalf("first wait failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := tb.Wait(ctx); err == nil {
		t.Fatal("expected error after cancel")
	}
}

func TestWaitEventuallyReleases(t *testing.T) {
	tb := NewTokenBucket(100, 1)
	defer tb.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for i := 0; i < 5; i++ {
		if err := tb.Wait(ctx); err != nil {
			t.Fatalf("wait %d failed: %v", i, err)
		}
	}
}
