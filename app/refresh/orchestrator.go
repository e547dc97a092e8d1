package refresh

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/feedpulse/feedpulse/app/database"
	"github.com/feedpulse/feedpulse/app/queue"
)

const DefaultStaleThreshold = 30 * time.Minute

// FeedDirectory is the slice of the feed repository the orchestrator
// consumes.
type FeedDirectory interface {
	ListFeedsDueForRefresh(staleThreshold time.Duration) ([]database.Feed, error)
}

// Orchestrator decides which feeds are due and enqueues refresh jobs
// for them. It holds no mutable state; all coordination lives in the
// queue.
type Orchestrator struct {
	feeds          FeedDirectory
	queue          queue.Queue
	staleThreshold time.Duration
}

func NewOrchestrator(feeds FeedDirectory, q queue.Queue, staleThreshold time.Duration) *Orchestrator {
	if staleThreshold <= 0 {
		staleThreshold = DefaultStaleThreshold
	}
	return &Orchestrator{
		feeds:          feeds,
		queue:          q,
		staleThreshold: staleThreshold,
	}
}

// ScheduleOne enqueues a refresh job for a single feed. A feed already
// pending or mid-refresh is deduplicated by the queue; that is not an
// error. Returns whether a new job was enqueued.
func (o *Orchestrator) ScheduleOne(feedName, feedURL string) (bool, error) {
	enqueued, err := o.queue.Enqueue(queue.FeedKey(feedName), queue.Payload{
		FeedName: feedName,
		FeedURL:  feedURL,
	})
	if err != nil {
		return false, fmt.Errorf("failed to schedule refresh for %s: %w", feedName, err)
	}
	if !enqueued {
		slog.Debug("Refresh already queued, skipping", "feed", feedName)
	}
	return enqueued, nil
}

// ScheduleDue runs one scheduling pass: every enabled feed whose last
// fetch is missing or stale gets a job. Feeds mid-refresh are skipped
// by the queue's dedupe check rather than by the eligibility query; the
// two mechanisms compose.
func (o *Orchestrator) ScheduleDue() error {
	feeds, err := o.feeds.ListFeedsDueForRefresh(o.staleThreshold)
	if err != nil {
		return fmt.Errorf("failed to list feeds due for refresh: %w", err)
	}

	if len(feeds) == 0 {
		slog.Debug("No feeds due for refresh")
		return nil
	}

	enqueued := 0
	for _, feed := range feeds {
		ok, err := o.ScheduleOne(feed.Name, feed.FeedURL)
		if err != nil {
			slog.Warn("Failed to enqueue refresh", "feed", feed.Name, "error", err)
			continue
		}
		if ok {
			enqueued++
		}
	}

	slog.Info("Scheduling pass completed", "due", len(feeds), "enqueued", enqueued)
	return nil
}
