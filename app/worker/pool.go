package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/feedpulse/feedpulse/app/queue"
)

const (
	DefaultWorkerCount = 5
	DefaultRateLimit   = 10
	DefaultRateWindow  = time.Second
)

// Fetcher is the collaborator a worker slot invokes once per attempt.
// It returns the count of newly ingested items.
type Fetcher interface {
	FetchArticles(ctx context.Context, feedName, feedURL string) (int, error)
}

// Options configures the pool. JobTimeout of zero leaves a single
// execution unbounded; an execution that never returns then occupies
// its slot indefinitely, so production deployments should set one.
type Options struct {
	Workers    int
	RateLimit  int
	RateWindow time.Duration
	JobTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = DefaultWorkerCount
	}
	if o.RateLimit <= 0 {
		o.RateLimit = DefaultRateLimit
	}
	if o.RateWindow <= 0 {
		o.RateWindow = DefaultRateWindow
	}
	return o
}

// Pool runs a fixed number of slots over the shared queue. The rate
// limiter caps execution starts across the whole pool, independent of
// the concurrency bound the slot count provides.
type Pool struct {
	queue      queue.Queue
	fetcher    Fetcher
	limiter    *rate.Limiter
	workers    int
	jobTimeout time.Duration
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

func NewPool(q queue.Queue, fetcher Fetcher, opts Options) *Pool {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())

	// Starts spaced at window/limit with burst 1: any window of the
	// configured length then holds at most RateLimit starts. A burst
	// allowance equal to the limit would permit double that.
	interval := opts.RateWindow / time.Duration(opts.RateLimit)

	return &Pool{
		queue:      q,
		fetcher:    fetcher,
		limiter:    rate.NewLimiter(rate.Every(interval), 1),
		workers:    opts.Workers,
		jobTimeout: opts.JobTimeout,
		ctx:        ctx,
		cancel:     cancel,
	}
}

func (p *Pool) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.slot(i)
	}
	slog.Info("Worker pool started", "workers", p.workers)
}

func (p *Pool) Stop() {
	p.cancel()
	p.wg.Wait()
	slog.Info("Worker pool stopped")
}

// slot is one execution loop: claim the next ready job, wait for a
// start permit, execute, report. The permit is taken after the claim;
// a permit acquired before a long empty-queue block would be stale by
// the time jobs arrive, and the accumulated permits across slots would
// let the first batch exceed the cap. A claimed job waits at most a
// few limiter intervals here, which only delays its start.
func (p *Pool) slot(id int) {
	defer p.wg.Done()

	for {
		job, err := p.queue.DequeueNext(p.ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			slog.Error("Worker dequeue failed", "worker_id", id, "error", err)
			select {
			case <-p.ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		if err := p.limiter.Wait(p.ctx); err != nil {
			// Shutdown with a claimed but unstarted job. The durable
			// backend returns it to pending on the next start.
			return
		}

		p.execute(id, job)
	}
}

func (p *Pool) execute(id int, job *queue.Job) {
	started := time.Now()

	count, err := p.runFetch(job)
	state, reportErr := p.queue.ReportOutcome(job, queue.Outcome{Err: err, NewItems: count})
	if reportErr != nil {
		slog.Error("Failed to report job outcome", "worker_id", id, "key", job.DedupeKey, "error", reportErr)
		return
	}

	duration := time.Since(started)

	switch state {
	case queue.StateCompleted:
		slog.Info("Refresh completed",
			"worker_id", id,
			"feed", job.Payload.FeedName,
			"new_items", count,
			"attempt", job.Attempt,
			"duration", duration.String())
	case queue.StatePending:
		slog.Warn("Refresh failed, retry scheduled",
			"worker_id", id,
			"feed", job.Payload.FeedName,
			"attempt", job.Attempt,
			"max_attempts", job.MaxAttempts,
			"error", err)
	case queue.StateAbandoned:
		slog.Error("Refresh abandoned after maximum attempts",
			"worker_id", id,
			"feed", job.Payload.FeedName,
			"attempt", job.Attempt,
			"error", err)
	}
}

// runFetch invokes the collaborator with the job payload. Errors and
// panics stop at this boundary; the slot keeps processing.
func (p *Pool) runFetch(job *queue.Job) (count int, err error) {
	ctx := p.ctx
	if p.jobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.jobTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("fetch panicked: %v", r)
		}
	}()

	return p.fetcher.FetchArticles(ctx, job.Payload.FeedName, job.Payload.FeedURL)
}
