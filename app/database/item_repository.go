package database

import (
	"database/sql"
	"fmt"
	"time"
)

var _ ItemRepositoryInterface = (*ItemRepository)(nil)

// ItemRepository handles database operations for feed items
type ItemRepository struct {
	db *DB
}

// NewItemRepository creates a new item repository
func NewItemRepository(db *DB) *ItemRepository {
	return &ItemRepository{db: db}
}

// CheckDuplicate checks if an item with the given content hash already
// exists for the feed
func (r *ItemRepository) CheckDuplicate(feedName, contentHash string) (bool, error) {
	var id int64
	err := r.db.QueryRow(`
		SELECT id FROM items WHERE feed_name = ? AND content_hash = ? LIMIT 1
	`, feedName, contentHash).Scan(&id)

	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check duplicate: %w", err)
	}

	return true, nil
}

// UpsertItem stores an ingested item, updating mutable fields when the
// item was seen before
func (r *ItemRepository) UpsertItem(feedName string, item FeedItem) error {
	var publishedAt any
	if item.PublishedAt != nil {
		publishedAt = formatTime(*item.PublishedAt)
	}

	_, err := r.db.Exec(`
		INSERT INTO items (feed_name, guid, link, title, description, published_at, content_hash, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (feed_name, content_hash) DO UPDATE SET
			link = excluded.link,
			title = excluded.title,
			description = excluded.description,
			published_at = excluded.published_at
	`, feedName, item.GUID, item.Link, item.Title, item.Description,
		publishedAt, item.ContentHash, formatTime(time.Now()))

	if err != nil {
		return fmt.Errorf("failed to store item: %w", err)
	}

	return nil
}

// GetItemCount returns the number of stored items for a feed
func (r *ItemRepository) GetItemCount(feedName string) (int, error) {
	var count int
	err := r.db.QueryRow(`
		SELECT COUNT(*) FROM items WHERE feed_name = ?
	`, feedName).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count items: %w", err)
	}
	return count, nil
}
