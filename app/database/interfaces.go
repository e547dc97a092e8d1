package database

import (
	"time"
)

// FeedItem is an item as produced by the fetch pipeline, before it is
// persisted.
type FeedItem struct {
	GUID        string
	Title       string
	Link        string
	Description string
	PublishedAt *time.Time
	ContentHash string
}

type FeedRepositoryInterface interface {
	GetFeed(feedName string) (*Feed, error)
	GetFeedCount() (int, error)
	ListFeeds() ([]Feed, error)

	// ListFeedsDueForRefresh returns enabled feeds whose last successful
	// fetch is missing or older than the staleness threshold, least
	// recently fetched first.
	ListFeedsDueForRefresh(staleThreshold time.Duration) ([]Feed, error)

	// UpsertFeed registers a configured feed. Reports whether an
	// existing feed's URL changed.
	UpsertFeed(feedName, feedURL string) (bool, error)
	SetFeedEnabled(feedName string, enabled bool) error
	UpdateFeedTitle(feedName, title string) error
	MarkFetched(feedName string, fetchedAt time.Time) error
}

type ItemRepositoryInterface interface {
	GetItemCount(feedName string) (int, error)

	// CheckDuplicate reports whether an item with the content hash is
	// already stored for the feed.
	CheckDuplicate(feedName, contentHash string) (bool, error)
	UpsertItem(feedName string, item FeedItem) error
}
