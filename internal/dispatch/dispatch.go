package dispatch

import (
	"context"

	"github.com/google/uuid"
)

// Job describes one unit of fetch work. Delivery is at-least-once and
// unordered, so handlers must be idempotent.
type Job struct {
	ID           uuid.UUID `json:"job_id"`
	AccountEmail string    `json:"account_email"`
	MessageID    string    `json:"message_id"`
}

// NewJob builds a job descriptor for fetching one message.
func NewJob(accountEmail, messageID string) Job {
	return Job{ID: uuid.New(), AccountEmail: accountEmail, MessageID: messageID}
}

// Handler executes one job. A nil return acknowledges the job; an error
// makes the dispatcher redeliver according to its own policy.
type Handler func(ctx context.Context, job Job) error

// Dispatcher accepts jobs for background execution. Submit blocks until the
// submission rate ceiling admits the job or ctx is canceled.
type Dispatcher interface {
	Submit(ctx context.Context, job Job) error
}
