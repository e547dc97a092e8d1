package fetch

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"
	"golang.org/x/text/unicode/norm"

	"github.com/feedpulse/feedpulse/app/database"
	"github.com/feedpulse/feedpulse/app/worker"
)

const (
	DefaultRequestTimeout = 30 * time.Second
	maxBodySize           = 10 << 20
)

var _ worker.Fetcher = (*Fetcher)(nil)

// Fetcher downloads a feed, parses it and stores items that were not
// seen before. It is the pipeline's fetch collaborator: one invocation
// per job attempt, returning the count of newly ingested items.
type Fetcher struct {
	httpClient *http.Client
	parser     *gofeed.Parser
	feedRepo   database.FeedRepositoryInterface
	itemRepo   database.ItemRepositoryInterface
	userAgent  string
	timeout    time.Duration
}

func NewFetcher(httpClient *http.Client, feedRepo database.FeedRepositoryInterface,
	itemRepo database.ItemRepositoryInterface, userAgent string) *Fetcher {
	return &Fetcher{
		httpClient: httpClient,
		parser:     gofeed.NewParser(),
		feedRepo:   feedRepo,
		itemRepo:   itemRepo,
		userAgent:  userAgent,
		timeout:    DefaultRequestTimeout,
	}
}

func (f *Fetcher) FetchArticles(ctx context.Context, feedName, feedURL string) (int, error) {
	data, err := f.download(ctx, feedURL)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch feed: %w", err)
	}

	parsed, err := f.parser.Parse(bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("failed to parse feed: %w", err)
	}

	if parsed.Title != "" {
		if err := f.feedRepo.UpdateFeedTitle(feedName, parsed.Title); err != nil {
			return 0, fmt.Errorf("failed to store feed title: %w", err)
		}
	}

	newCount := 0
	for _, item := range parsed.Items {
		feedItem := normalizeItem(item)

		duplicate, err := f.itemRepo.CheckDuplicate(feedName, feedItem.ContentHash)
		if err != nil {
			return 0, fmt.Errorf("failed to check for duplicates: %w", err)
		}
		if duplicate {
			continue
		}

		if err := f.itemRepo.UpsertItem(feedName, feedItem); err != nil {
			return 0, fmt.Errorf("failed to store item: %w", err)
		}
		newCount++
	}

	if err := f.feedRepo.MarkFetched(feedName, time.Now().UTC()); err != nil {
		return 0, fmt.Errorf("failed to record fetch time: %w", err)
	}

	return newCount, nil
}

func (f *Fetcher) download(ctx context.Context, url string) ([]byte, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(timeoutCtx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return data, nil
}

// normalizeItem converts a gofeed.Item into a storable item. Titles are
// NFC-normalized before hashing so encoding variants of the same entry
// deduplicate.
func normalizeItem(item *gofeed.Item) database.FeedItem {
	title := norm.NFC.String(item.Title)

	feedItem := database.FeedItem{
		GUID:        item.GUID,
		Title:       title,
		Link:        item.Link,
		Description: item.Description,
		PublishedAt: item.PublishedParsed,
	}
	if feedItem.GUID == "" {
		feedItem.GUID = item.Link
	}
	feedItem.ContentHash = contentHash(title, item.Link, feedItem.GUID)

	return feedItem
}

func contentHash(parts ...string) string {
	h := sha256.New()
	for _, part := range parts {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
