package queue

import (
	"context"
	"time"
)

const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusDone       = "done"
	StatusFailed     = "failed"
)

// Job is one delivery of a description task. Attempts counts deliveries
// including the current one; the handler sees Attempts == MaxAttempts on the
// last try.
type Job struct {
	ID           string    `json:"id"`
	TaskID       string    `json:"taskId"`
	Status       string    `json:"status"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
	Attempts     int       `json:"attempts"`
	MaxAttempts  int       `json:"maxAttempts"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Final reports whether a failure of this delivery exhausts the retries.
func (j Job) Final() bool {
	return j.MaxAttempts > 0 && j.Attempts >= j.MaxAttempts
}

// Handler processes a job. A non-nil error schedules a retry until the
// attempts run out.
type Handler func(ctx context.Context, job Job) error

// JobQueue carries description task ids from the web service to the worker.
type JobQueue interface {
	Enqueue(ctx context.Context, taskID string) (Job, error)
	// Start launches consumers and returns; they stop when ctx is done.
	Start(ctx context.Context, concurrency int, handler Handler) error
	Close() error
}
