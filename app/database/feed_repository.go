package database

import (
	"database/sql"
	"fmt"
	"time"
)

var _ FeedRepositoryInterface = (*FeedRepository)(nil)

// FeedRepository handles database operations for feeds
type FeedRepository struct {
	db *DB
}

// NewFeedRepository creates a new feed repository
func NewFeedRepository(db *DB) *FeedRepository {
	return &FeedRepository{db: db}
}

// UpsertFeed inserts or updates a feed registration. Returns whether an
// existing feed's URL changed.
func (r *FeedRepository) UpsertFeed(feedName, feedURL string) (bool, error) {
	existing, err := r.GetFeed(feedName)
	if err != nil {
		return false, fmt.Errorf("failed to check existing feed: %w", err)
	}

	now := formatTime(time.Now())

	if existing == nil {
		_, err = r.db.Exec(`
			INSERT INTO feeds (name, feed_url, created_at, updated_at)
			VALUES (?, ?, ?, ?)
		`, feedName, feedURL, now, now)
		if err != nil {
			return false, fmt.Errorf("failed to insert feed: %w", err)
		}
		return false, nil
	}

	urlChanged := existing.FeedURL != feedURL
	_, err = r.db.Exec(`
		UPDATE feeds
		SET feed_url = ?, updated_at = ?
		WHERE name = ?
	`, feedURL, now, feedName)
	if err != nil {
		return false, fmt.Errorf("failed to update feed: %w", err)
	}

	return urlChanged, nil
}

// GetFeed retrieves a feed by its configuration name
func (r *FeedRepository) GetFeed(feedName string) (*Feed, error) {
	row := r.db.QueryRow(`
		SELECT id, name, feed_url, title, enabled, last_fetched_at, created_at, updated_at
		FROM feeds
		WHERE name = ?
	`, feedName)

	feed, err := scanFeed(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get feed: %w", err)
	}

	return feed, nil
}

// ListFeeds returns all registered feeds ordered by name
func (r *FeedRepository) ListFeeds() ([]Feed, error) {
	rows, err := r.db.Query(`
		SELECT id, name, feed_url, title, enabled, last_fetched_at, created_at, updated_at
		FROM feeds
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list feeds: %w", err)
	}
	defer rows.Close()

	return collectFeeds(rows)
}

// ListFeedsDueForRefresh returns enabled feeds never fetched or last
// fetched before the staleness threshold, least recently fetched first.
func (r *FeedRepository) ListFeedsDueForRefresh(staleThreshold time.Duration) ([]Feed, error) {
	cutoff := formatTime(time.Now().Add(-staleThreshold))

	rows, err := r.db.Query(`
		SELECT id, name, feed_url, title, enabled, last_fetched_at, created_at, updated_at
		FROM feeds
		WHERE enabled = 1
		  AND (last_fetched_at IS NULL OR last_fetched_at <= ?)
		ORDER BY COALESCE(last_fetched_at, ''), name
	`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to get feeds due for refresh: %w", err)
	}
	defer rows.Close()

	return collectFeeds(rows)
}

// MarkFetched records a successful fetch
func (r *FeedRepository) MarkFetched(feedName string, fetchedAt time.Time) error {
	_, err := r.db.Exec(`
		UPDATE feeds
		SET last_fetched_at = ?, updated_at = ?
		WHERE name = ?
	`, formatTime(fetchedAt), formatTime(time.Now()), feedName)
	if err != nil {
		return fmt.Errorf("failed to mark feed fetched: %w", err)
	}
	return nil
}

// UpdateFeedTitle stores the title discovered during parsing
func (r *FeedRepository) UpdateFeedTitle(feedName, title string) error {
	_, err := r.db.Exec(`
		UPDATE feeds
		SET title = ?, updated_at = ?
		WHERE name = ?
	`, title, formatTime(time.Now()), feedName)
	if err != nil {
		return fmt.Errorf("failed to update feed title: %w", err)
	}
	return nil
}

// SetFeedEnabled toggles whether a feed participates in scheduling
func (r *FeedRepository) SetFeedEnabled(feedName string, enabled bool) error {
	_, err := r.db.Exec(`
		UPDATE feeds
		SET enabled = ?, updated_at = ?
		WHERE name = ?
	`, enabled, formatTime(time.Now()), feedName)
	if err != nil {
		return fmt.Errorf("failed to set feed enabled: %w", err)
	}
	return nil
}

// GetFeedCount returns the number of registered feeds
func (r *FeedRepository) GetFeedCount() (int, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM feeds`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count feeds: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFeed(row rowScanner) (*Feed, error) {
	var feed Feed
	var lastFetched sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(&feed.ID, &feed.Name, &feed.FeedURL, &feed.Title,
		&feed.Enabled, &lastFetched, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	if feed.LastFetchedAt, err = parseNullTime(lastFetched); err != nil {
		return nil, err
	}
	if feed.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if feed.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}

	return &feed, nil
}

func collectFeeds(rows *sql.Rows) ([]Feed, error) {
	var feeds []Feed
	for rows.Next() {
		feed, err := scanFeed(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan feed row: %w", err)
		}
		feeds = append(feeds, *feed)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating feed rows: %w", err)
	}
	return feeds, nil
}
