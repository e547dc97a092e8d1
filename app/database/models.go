package database

import (
	"database/sql"
	"fmt"
	"time"
)

// timeLayout is fixed-width so lexicographic comparison of stored
// timestamps matches chronological order in SQL.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp %q: %w", s, err)
	}
	return t, nil
}

func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Feed represents a subscribed feed record
type Feed struct {
	ID            int64
	Name          string // Configuration feed identifier derived from filename
	FeedURL       string
	Title         string
	Enabled       bool
	LastFetchedAt *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Item represents an ingested feed item record
type Item struct {
	ID          int64
	FeedName    string
	GUID        string
	Link        string
	Title       string
	Description string
	PublishedAt *time.Time
	ContentHash string
	CreatedAt   time.Time
}
