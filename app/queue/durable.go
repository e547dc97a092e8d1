package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Store is the durable backend the SQL-backed queue delegates to. The
// backend must provide atomic dedupe-on-insert and claim-on-dequeue so
// that concurrent scheduler processes never double-run a feed.
type Store interface {
	// InsertJob inserts unless a job with the same dedupe key is pending
	// or active. Returns false on a dedupe hit.
	InsertJob(job *Job) (bool, error)

	// ClaimNext atomically moves the earliest ready pending job to
	// active and returns it, or nil when nothing is ready.
	ClaimNext(now time.Time) (*Job, error)

	// Reschedule returns a failed job to pending at its new scheduled
	// time with the updated attempt counter.
	Reschedule(job *Job) error

	// Finish records a terminal state and trims retained terminal rows
	// beyond keep.
	Finish(job *Job, keep int) error

	// ResetActive returns active jobs to pending. Called once at startup
	// to recover claims orphaned by a previous process.
	ResetActive() (int64, error)

	CountByState() (map[State]int64, error)
}

var _ Queue = (*Durable)(nil)

// Durable persists jobs through a Store so queued work survives process
// restarts. Wake signaling is process-local; cross-process consumers
// fall back to the poll interval.
type Durable struct {
	store Store
	opts  Options

	mu    sync.Mutex
	wake  chan struct{}
	stats Stats
}

func NewDurable(store Store, opts Options) (*Durable, error) {
	q := &Durable{
		store: store,
		opts:  opts.withDefaults(),
		wake:  make(chan struct{}),
	}

	recovered, err := store.ResetActive()
	if err != nil {
		return nil, fmt.Errorf("failed to recover orphaned jobs: %w", err)
	}
	if recovered > 0 {
		slog.Info("Recovered orphaned jobs from previous run", "count", recovered)
	}

	return q, nil
}

func (q *Durable) Enqueue(key string, payload Payload) (bool, error) {
	return q.insert(key, payload, 0)
}

func (q *Durable) EnqueueDelayed(key string, payload Payload, delay time.Duration) (bool, error) {
	return q.insert(key, payload, delay)
}

func (q *Durable) insert(key string, payload Payload, delay time.Duration) (bool, error) {
	now := time.Now().UTC()
	job := &Job{
		DedupeKey:   key,
		Payload:     payload,
		MaxAttempts: q.opts.Backoff.MaxAttempts,
		State:       StatePending,
		EnqueuedAt:  now,
		ScheduledAt: now.Add(delay),
	}

	inserted, err := q.store.InsertJob(job)
	if err != nil {
		return false, fmt.Errorf("failed to enqueue job %s: %w", key, err)
	}
	if inserted {
		q.signal()
	}
	return inserted, nil
}

func (q *Durable) DequeueNext(ctx context.Context) (*Job, error) {
	for {
		job, err := q.store.ClaimNext(time.Now().UTC())
		if err != nil {
			return nil, fmt.Errorf("failed to claim job: %w", err)
		}
		if job != nil {
			return job, nil
		}

		q.mu.Lock()
		wake := q.wake
		q.mu.Unlock()

		timer := time.NewTimer(q.opts.PollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-wake:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// ReportOutcome transitions the claimed job through the store. If the
// store write itself fails the row stays active and its dedupe key
// stays held; ResetActive returns such rows to pending on the next
// process start, the same path that recovers claims orphaned by a
// crash.
func (q *Durable) ReportOutcome(job *Job, outcome Outcome) (State, error) {
	job.Attempt++

	if outcome.Err == nil {
		now := time.Now().UTC()
		job.State = StateCompleted
		job.NewItems = outcome.NewItems
		job.CompletedAt = &now
		if err := q.store.Finish(job, q.opts.KeepCompleted); err != nil {
			return job.State, fmt.Errorf("failed to record completion: %w", err)
		}
		q.count(func(s *Stats) { s.Completed++ })
		return StateCompleted, nil
	}

	// Failed is a routing state: the backoff policy immediately decides
	// between abandonment and a delayed retry.
	job.State = StateFailed
	job.LastError = outcome.Err.Error()

	if q.opts.Backoff.Exhausted(job.Attempt) {
		now := time.Now().UTC()
		job.State = StateAbandoned
		job.CompletedAt = &now
		if err := q.store.Finish(job, q.opts.KeepFailed); err != nil {
			return job.State, fmt.Errorf("failed to record abandonment: %w", err)
		}
		q.count(func(s *Stats) { s.Abandoned++ })
		return StateAbandoned, nil
	}

	delay := q.opts.Backoff.NextDelay(job.Attempt - 1)
	job.State = StatePending
	job.ScheduledAt = time.Now().UTC().Add(delay)
	if err := q.store.Reschedule(job); err != nil {
		return job.State, fmt.Errorf("failed to reschedule job: %w", err)
	}
	q.count(func(s *Stats) { s.Retries++ })
	q.signal()

	return StatePending, nil
}

func (q *Durable) Stats() Stats {
	q.mu.Lock()
	stats := q.stats
	q.mu.Unlock()

	counts, err := q.store.CountByState()
	if err != nil {
		slog.Warn("Failed to read queue counts", "error", err)
		return stats
	}
	stats.Pending = counts[StatePending]
	stats.Active = counts[StateActive]

	return stats
}

func (q *Durable) count(fn func(*Stats)) {
	q.mu.Lock()
	fn(&q.stats)
	q.mu.Unlock()
}

func (q *Durable) signal() {
	q.mu.Lock()
	close(q.wake)
	q.wake = make(chan struct{})
	q.mu.Unlock()
}
