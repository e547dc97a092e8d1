package api

import (
	"github.com/feedpulse/feedpulse/app/database"
	"github.com/feedpulse/feedpulse/app/queue"
	"github.com/feedpulse/feedpulse/app/refresh"
)

// RefreshScheduler is the slice of the orchestrator the API consumes:
// on-demand scheduling of a single feed.
type RefreshScheduler interface {
	ScheduleOne(feedName, feedURL string) (bool, error)
}

var _ RefreshScheduler = (*refresh.Orchestrator)(nil)

type Handler struct {
	feedRepo  database.FeedRepositoryInterface
	itemRepo  database.ItemRepositoryInterface
	queue     queue.Queue
	scheduler RefreshScheduler
	version   string
}
