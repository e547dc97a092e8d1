package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

var _ Queue = (*Memory)(nil)

// Memory is the single-process queue implementation. A mutex guards all
// state; idle dequeuers suspend on a broadcast channel instead of
// busy-polling.
type Memory struct {
	opts Options

	mu      sync.Mutex
	seq     int64
	pending []*Job
	active  map[string]*Job
	recent  map[State][]*Job
	stats   Stats
	wake    chan struct{}
}

func NewMemory(opts Options) *Memory {
	return &Memory{
		opts:   opts.withDefaults(),
		active: make(map[string]*Job),
		recent: make(map[State][]*Job),
		wake:   make(chan struct{}),
	}
}

func (q *Memory) Enqueue(key string, payload Payload) (bool, error) {
	return q.insert(key, payload, 0)
}

func (q *Memory) EnqueueDelayed(key string, payload Payload, delay time.Duration) (bool, error) {
	return q.insert(key, payload, delay)
}

func (q *Memory) insert(key string, payload Payload, delay time.Duration) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.liveLocked(key) {
		return false, nil
	}

	now := time.Now().UTC()
	q.seq++
	job := &Job{
		ID:          q.seq,
		DedupeKey:   key,
		Payload:     payload,
		MaxAttempts: q.opts.Backoff.MaxAttempts,
		State:       StatePending,
		EnqueuedAt:  now,
		ScheduledAt: now.Add(delay),
	}
	q.pending = append(q.pending, job)
	q.stats.Pending++
	q.wakeLocked()

	return true, nil
}

// liveLocked reports whether a job with the key is pending or active.
func (q *Memory) liveLocked(key string) bool {
	if _, ok := q.active[key]; ok {
		return true
	}
	for _, job := range q.pending {
		if job.DedupeKey == key {
			return true
		}
	}
	return false
}

func (q *Memory) DequeueNext(ctx context.Context) (*Job, error) {
	for {
		q.mu.Lock()
		job, wait := q.claimLocked()
		if job != nil {
			q.mu.Unlock()
			return job, nil
		}
		wake := q.wake
		q.mu.Unlock()

		timer := time.NewTimer(wait)
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

// claimLocked picks the ready job with the lowest (scheduled time,
// insertion order) and marks it active. When nothing is ready it
// returns how long the caller may sleep before rechecking.
func (q *Memory) claimLocked() (*Job, time.Duration) {
	now := time.Now().UTC()
	wait := q.opts.PollInterval

	best := -1
	for i, job := range q.pending {
		if job.ScheduledAt.After(now) {
			if until := job.ScheduledAt.Sub(now); until < wait {
				wait = until
			}
			continue
		}
		if best == -1 || q.readyBefore(job, q.pending[best]) {
			best = i
		}
	}
	if best == -1 {
		return nil, wait
	}

	job := q.pending[best]
	q.pending = append(q.pending[:best], q.pending[best+1:]...)
	job.State = StateActive
	q.active[job.DedupeKey] = job
	q.stats.Pending--
	q.stats.Active++

	return job, 0
}

func (q *Memory) readyBefore(a, b *Job) bool {
	if !a.ScheduledAt.Equal(b.ScheduledAt) {
		return a.ScheduledAt.Before(b.ScheduledAt)
	}
	return a.ID < b.ID
}

func (q *Memory) ReportOutcome(job *Job, outcome Outcome) (State, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	delete(q.active, job.DedupeKey)
	q.stats.Active--
	job.Attempt++

	if outcome.Err == nil {
		now := time.Now().UTC()
		job.State = StateCompleted
		job.NewItems = outcome.NewItems
		job.CompletedAt = &now
		q.stats.Completed++
		q.retainLocked(StateCompleted, job, q.opts.KeepCompleted)
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
		q.stats.Abandoned++
		q.retainLocked(StateAbandoned, job, q.opts.KeepFailed)
		return StateAbandoned, nil
	}

	delay := q.opts.Backoff.NextDelay(job.Attempt - 1)
	job.State = StatePending
	job.ScheduledAt = time.Now().UTC().Add(delay)
	q.pending = append(q.pending, job)
	q.stats.Pending++
	q.stats.Retries++
	q.wakeLocked()
	slog.Debug("Job retry scheduled", "key", job.DedupeKey, "attempt", job.Attempt, "delay", delay.String())

	return StatePending, nil
}

func (q *Memory) retainLocked(state State, job *Job, keep int) {
	jobs := append(q.recent[state], job)
	if len(jobs) > keep {
		jobs = jobs[len(jobs)-keep:]
	}
	q.recent[state] = jobs
}

// Recent returns copies of the retained terminal jobs in the given
// state, oldest first. Bookkeeping only.
func (q *Memory) Recent(state State) []Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	jobs := make([]Job, len(q.recent[state]))
	for i, job := range q.recent[state] {
		jobs[i] = *job
	}
	return jobs
}

func (q *Memory) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.stats
}

// wakeLocked wakes every suspended dequeuer. Close-and-replace gives a
// broadcast without tracking individual waiters.
func (q *Memory) wakeLocked() {
	close(q.wake)
	q.wake = make(chan struct{})
}
