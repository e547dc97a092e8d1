package queue

import (
	"time"
)

type State string

const (
	StatePending   State = "pending"
	StateActive    State = "active"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateAbandoned State = "abandoned"
)

// Terminal reports whether no further transition will happen for a job
// in this state.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateAbandoned
}

// FeedKey derives the dedupe key for a feed's refresh job. At most one
// pending or active job exists per key at any time.
func FeedKey(feedName string) string {
	return "feed-" + feedName
}

// Payload is captured at enqueue time. If the feed URL changes while a
// job is queued, the job still refreshes the URL it was enqueued with.
type Payload struct {
	FeedName string
	FeedURL  string
}

// Job is a single refresh unit. It is created by the orchestrator,
// claimed by exactly one worker slot, and transitioned by the queue.
type Job struct {
	ID          int64
	DedupeKey   string
	Payload     Payload
	Attempt     int
	MaxAttempts int
	State       State
	LastError   string
	NewItems    int
	EnqueuedAt  time.Time
	ScheduledAt time.Time
	CompletedAt *time.Time
}

// Outcome is reported by a worker slot after one execution attempt.
type Outcome struct {
	Err      error
	NewItems int
}
