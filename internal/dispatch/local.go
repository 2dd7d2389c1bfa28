package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/yourorg/mailharvest/internal/rate"
)

// Local runs jobs on an in-process worker pool. It exists for single-binary
// deployments; the AMQP dispatcher covers everything else.
type Local struct {
	handler  Handler
	limiter  rate.Limiter
	log      *slog.Logger
	attempts int
	jobs     chan Job
	wg       sync.WaitGroup
}

// NewLocal starts workers goroutines feeding handler. Each job is attempted
// up to attempts times before it is dropped with an error log.
func NewLocal(handler Handler, limiter rate.Limiter, log *slog.Logger, workers, attempts int) *Local {
	if workers <= 0 {
		workers = 4
	}
	if attempts <= 0 {
		attempts = 3
	}
	d := &Local{
		handler:  handler,
		limiter:  limiter,
		log:      log,
		attempts: attempts,
		jobs:     make(chan Job, workers*2),
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

func (d *Local) Submit(ctx context.Context, job Job) error {
	if d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	select {
	case d.jobs <- job:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("submit job %s: %w", job.ID, ctx.Err())
	}
}

func (d *Local) worker() {
	defer d.wg.Done()
	for job := range d.jobs {
		d.deliver(job)
	}
}

func (d *Local) deliver(job Job) {
	var err error
	for attempt := 1; attempt <= d.attempts; attempt++ {
		if err = d.handler(context.Background(), job); err == nil {
			return
		}
		d.log.Warn("fetch job failed",
			"job", job.ID, "message", job.MessageID, "attempt", attempt, "error", err)
	}
	d.log.Error("fetch job dropped",
		"job", job.ID, "message", job.MessageID, "attempts", d.attempts, "error", err)
}

// Close stops accepting jobs and waits for in-flight work to drain.
func (d *Local) Close() {
	close(d.jobs)
	d.wg.Wait()
}

var _ Dispatcher = (*Local)(nil)
