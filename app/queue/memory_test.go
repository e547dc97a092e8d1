package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/feedpulse/feedpulse/app/retry"
)

func testOptions() Options {
	return Options{
		Backoff:      retry.Policy{BaseDelay: 5 * time.Second, MaxAttempts: 3},
		PollInterval: 10 * time.Millisecond,
	}
}

func mustDequeue(t *testing.T, q Queue) *Job {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	job, err := q.DequeueNext(ctx)
	if err != nil {
		t.Fatalf("DequeueNext failed: %v", err)
	}
	return job
}

func TestEnqueueDedupe(t *testing.T) {
	q := NewMemory(testOptions())

	ok, err := q.Enqueue("feed-F1", Payload{FeedName: "F1", FeedURL: "http://x/feed.xml"})
	if err != nil || !ok {
		t.Fatalf("first enqueue = (%v, %v), want (true, nil)", ok, err)
	}

	ok, err = q.Enqueue("feed-F1", Payload{FeedName: "F1", FeedURL: "http://x/feed.xml"})
	if err != nil {
		t.Fatalf("second enqueue failed: %v", err)
	}
	if ok {
		t.Error("second enqueue for same key should be a no-op")
	}

	if stats := q.Stats(); stats.Pending != 1 {
		t.Errorf("expected 1 pending job, got %d", stats.Pending)
	}
}

func TestEnqueueDedupeWhileActive(t *testing.T) {
	q := NewMemory(testOptions())

	q.Enqueue("feed-F1", Payload{FeedName: "F1"})
	job := mustDequeue(t, q)
	if job.State != StateActive {
		t.Fatalf("dequeued job state = %s, want active", job.State)
	}

	ok, err := q.Enqueue("feed-F1", Payload{FeedName: "F1"})
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	if ok {
		t.Error("enqueue while job is active should be a no-op")
	}

	// Once terminal, the key is free again.
	if _, err := q.ReportOutcome(job, Outcome{NewItems: 1}); err != nil {
		t.Fatalf("ReportOutcome failed: %v", err)
	}
	ok, _ = q.Enqueue("feed-F1", Payload{FeedName: "F1"})
	if !ok {
		t.Error("enqueue after completion should succeed")
	}
}

func TestDequeueFIFO(t *testing.T) {
	q := NewMemory(testOptions())

	q.Enqueue("feed-a", Payload{FeedName: "a"})
	q.Enqueue("feed-b", Payload{FeedName: "b"})
	q.Enqueue("feed-c", Payload{FeedName: "c"})

	for _, want := range []string{"feed-a", "feed-b", "feed-c"} {
		job := mustDequeue(t, q)
		if job.DedupeKey != want {
			t.Errorf("dequeued %s, want %s", job.DedupeKey, want)
		}
	}
}

func TestDequeueBlocksUntilEnqueue(t *testing.T) {
	q := NewMemory(testOptions())

	done := make(chan *Job, 1)
	go func() {
		job := mustDequeue(t, q)
		done <- job
	}()

	select {
	case <-done:
		t.Fatal("dequeue returned before anything was enqueued")
	case <-time.After(50 * time.Millisecond):
	}

	q.Enqueue("feed-F1", Payload{FeedName: "F1"})

	select {
	case job := <-done:
		if job.DedupeKey != "feed-F1" {
			t.Errorf("dequeued %s, want feed-F1", job.DedupeKey)
		}
	case <-time.After(time.Second):
		t.Fatal("dequeue did not wake after enqueue")
	}
}

func TestDequeueContextCancel(t *testing.T) {
	q := NewMemory(testOptions())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := q.DequeueNext(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestEnqueueDelayed(t *testing.T) {
	q := NewMemory(testOptions())

	q.EnqueueDelayed("feed-slow", Payload{FeedName: "slow"}, 60*time.Millisecond)
	q.Enqueue("feed-fast", Payload{FeedName: "fast"})

	// The immediately-ready job comes out first despite later insertion
	// being irrelevant here; the delayed one is not ready yet.
	job := mustDequeue(t, q)
	if job.DedupeKey != "feed-fast" {
		t.Fatalf("dequeued %s, want feed-fast", job.DedupeKey)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	if _, err := q.DequeueNext(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("delayed job should not be ready yet, got err %v", err)
	}
	cancel()

	job = mustDequeue(t, q)
	if job.DedupeKey != "feed-slow" {
		t.Errorf("dequeued %s, want feed-slow", job.DedupeKey)
	}
}

func TestReportOutcomeCompleted(t *testing.T) {
	q := NewMemory(testOptions())

	q.Enqueue("feed-F1", Payload{FeedName: "F1", FeedURL: "http://x/feed.xml"})
	job := mustDequeue(t, q)

	state, err := q.ReportOutcome(job, Outcome{NewItems: 3})
	if err != nil {
		t.Fatalf("ReportOutcome failed: %v", err)
	}
	if state != StateCompleted {
		t.Errorf("state = %s, want completed", state)
	}
	if job.NewItems != 3 {
		t.Errorf("NewItems = %d, want 3", job.NewItems)
	}
	if job.Attempt != 1 {
		t.Errorf("Attempt = %d, want 1 (no retry)", job.Attempt)
	}
	if job.CompletedAt == nil {
		t.Error("CompletedAt not set")
	}

	stats := q.Stats()
	if stats.Completed != 1 || stats.Retries != 0 {
		t.Errorf("stats = %+v, want 1 completed, 0 retries", stats)
	}
}

func TestReportOutcomeRetryBackoff(t *testing.T) {
	q := NewMemory(testOptions())

	q.Enqueue("feed-F2", Payload{FeedName: "F2"})

	// First failure: re-enqueued ~5s out.
	job := mustDequeue(t, q)
	before := time.Now().UTC()
	state, err := q.ReportOutcome(job, Outcome{Err: errors.New("connection refused")})
	if err != nil {
		t.Fatalf("ReportOutcome failed: %v", err)
	}
	if state != StatePending {
		t.Fatalf("state = %s, want pending", state)
	}
	delay := job.ScheduledAt.Sub(before)
	if delay < 4900*time.Millisecond || delay > 5200*time.Millisecond {
		t.Errorf("first retry delay = %v, want ~5s", delay)
	}
	if job.Attempt != 1 {
		t.Errorf("Attempt = %d, want 1", job.Attempt)
	}

	// Second failure: ~10s out. Force readiness instead of sleeping.
	q.mu.Lock()
	job.ScheduledAt = time.Now().UTC()
	q.mu.Unlock()

	job = mustDequeue(t, q)
	before = time.Now().UTC()
	if _, err := q.ReportOutcome(job, Outcome{Err: errors.New("connection refused")}); err != nil {
		t.Fatalf("ReportOutcome failed: %v", err)
	}
	delay = job.ScheduledAt.Sub(before)
	if delay < 9900*time.Millisecond || delay > 10200*time.Millisecond {
		t.Errorf("second retry delay = %v, want ~10s", delay)
	}

	if stats := q.Stats(); stats.Retries != 2 {
		t.Errorf("retries = %d, want 2", stats.Retries)
	}
}

func TestAbandonedAfterMaxAttempts(t *testing.T) {
	opts := testOptions()
	opts.Backoff = retry.Policy{BaseDelay: time.Millisecond, MaxAttempts: 3}
	q := NewMemory(opts)

	q.Enqueue("feed-F3", Payload{FeedName: "F3"})

	var state State
	for i := 0; i < 3; i++ {
		job := mustDequeue(t, q)
		var err error
		state, err = q.ReportOutcome(job, Outcome{Err: errors.New("boom")})
		if err != nil {
			t.Fatalf("ReportOutcome failed: %v", err)
		}
	}

	if state != StateAbandoned {
		t.Fatalf("state after 3 failures = %s, want abandoned", state)
	}

	stats := q.Stats()
	if stats.Pending != 0 {
		t.Errorf("abandoned job was re-enqueued: %d pending", stats.Pending)
	}
	if stats.Abandoned != 1 {
		t.Errorf("abandoned = %d, want 1", stats.Abandoned)
	}
	if stats.Retries != 2 {
		t.Errorf("retries = %d, want 2", stats.Retries)
	}

	// A fourth dequeue must never surface this job.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if job, err := q.DequeueNext(ctx); err == nil {
		t.Errorf("unexpected job %s after abandonment", job.DedupeKey)
	}
}

func TestFailureThenSuccess(t *testing.T) {
	opts := testOptions()
	opts.Backoff = retry.Policy{BaseDelay: 10 * time.Millisecond, MaxAttempts: 3}
	q := NewMemory(opts)

	q.Enqueue("feed-F2", Payload{FeedName: "F2"})

	for i := 0; i < 2; i++ {
		job := mustDequeue(t, q)
		if _, err := q.ReportOutcome(job, Outcome{Err: errors.New("transient")}); err != nil {
			t.Fatalf("ReportOutcome failed: %v", err)
		}
	}

	job := mustDequeue(t, q)
	state, err := q.ReportOutcome(job, Outcome{NewItems: 2})
	if err != nil {
		t.Fatalf("ReportOutcome failed: %v", err)
	}
	if state != StateCompleted {
		t.Errorf("state = %s, want completed", state)
	}
	if job.Attempt != 3 {
		t.Errorf("completed on attempt %d, want 3", job.Attempt)
	}
}

func TestTerminalRetention(t *testing.T) {
	opts := testOptions()
	opts.KeepCompleted = 2
	q := NewMemory(opts)

	for _, name := range []string{"a", "b", "c", "d"} {
		q.Enqueue("feed-"+name, Payload{FeedName: name})
		job := mustDequeue(t, q)
		if _, err := q.ReportOutcome(job, Outcome{}); err != nil {
			t.Fatalf("ReportOutcome failed: %v", err)
		}
	}

	recent := q.Recent(StateCompleted)
	if len(recent) != 2 {
		t.Fatalf("retained %d completed jobs, want 2", len(recent))
	}
	if recent[0].Payload.FeedName != "c" || recent[1].Payload.FeedName != "d" {
		t.Errorf("retained wrong jobs: %s, %s", recent[0].Payload.FeedName, recent[1].Payload.FeedName)
	}

	// Cumulative counter is unaffected by retention.
	if stats := q.Stats(); stats.Completed != 4 {
		t.Errorf("completed = %d, want 4", stats.Completed)
	}
}

func TestRecentReturnsCopies(t *testing.T) {
	q := NewMemory(testOptions())

	q.Enqueue("feed-F1", Payload{FeedName: "F1"})
	job := mustDequeue(t, q)
	if _, err := q.ReportOutcome(job, Outcome{NewItems: 3}); err != nil {
		t.Fatalf("ReportOutcome failed: %v", err)
	}

	recent := q.Recent(StateCompleted)
	if len(recent) != 1 {
		t.Fatalf("retained %d jobs, want 1", len(recent))
	}
	recent[0].NewItems = 99
	recent[0].State = StatePending

	again := q.Recent(StateCompleted)
	if again[0].NewItems != 3 || again[0].State != StateCompleted {
		t.Errorf("mutating a returned job leaked into the queue: %+v", again[0])
	}
}
