package queue

import (
	"context"
	"time"

	"github.com/feedpulse/feedpulse/app/retry"
)

const (
	DefaultPollInterval  = time.Second
	DefaultKeepCompleted = 50
	DefaultKeepFailed    = 50
)

// Queue holds pending and delayed refresh jobs, deduplicated by key.
// All state transitions go through it; the dedupe check on enqueue and
// the pending-to-active transition on dequeue are atomic with respect
// to every other operation.
type Queue interface {
	// Enqueue inserts a job unless one with the same key is already
	// pending or active. Returns false when deduplicated.
	Enqueue(key string, payload Payload) (bool, error)

	// EnqueueDelayed is Enqueue with the job becoming ready only after
	// the delay elapses. Used for retry re-enqueue.
	EnqueueDelayed(key string, payload Payload, delay time.Duration) (bool, error)

	// DequeueNext blocks until a ready job exists (or ctx is done) and
	// atomically claims it. Among equally ready jobs order is FIFO by
	// enqueue time.
	DequeueNext(ctx context.Context) (*Job, error)

	// ReportOutcome transitions the claimed job. On failure the backoff
	// policy is applied: the job is re-enqueued delayed with the attempt
	// counter incremented, or abandoned once the ceiling is reached.
	// The resulting state is returned.
	ReportOutcome(job *Job, outcome Outcome) (State, error)

	// Stats returns counters for observability.
	Stats() Stats
}

// Options configures retention, retry behavior and idle polling.
type Options struct {
	Backoff       retry.Policy
	KeepCompleted int
	KeepFailed    int
	PollInterval  time.Duration
}

func (o Options) withDefaults() Options {
	if o.Backoff.BaseDelay == 0 {
		o.Backoff.BaseDelay = retry.DefaultBaseDelay
	}
	if o.Backoff.MaxAttempts == 0 {
		o.Backoff.MaxAttempts = retry.DefaultMaxAttempts
	}
	if o.KeepCompleted == 0 {
		o.KeepCompleted = DefaultKeepCompleted
	}
	if o.KeepFailed == 0 {
		o.KeepFailed = DefaultKeepFailed
	}
	if o.PollInterval == 0 {
		o.PollInterval = DefaultPollInterval
	}
	return o
}

// Stats is a point-in-time snapshot of queue counters. Completed,
// Abandoned and Retries are cumulative for the process lifetime.
type Stats struct {
	Pending   int64
	Active    int64
	Completed int64
	Abandoned int64
	Retries   int64
}
