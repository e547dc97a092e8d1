package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/feedpulse/feedpulse/app/database"
	"github.com/feedpulse/feedpulse/app/queue"
	"github.com/feedpulse/feedpulse/app/retry"
)

type mockFeedRepo struct {
	feeds []database.Feed
}

func (m *mockFeedRepo) GetFeed(feedName string) (*database.Feed, error) {
	for i := range m.feeds {
		if m.feeds[i].Name == feedName {
			return &m.feeds[i], nil
		}
	}
	return nil, nil
}

func (m *mockFeedRepo) GetFeedCount() (int, error) { return len(m.feeds), nil }

func (m *mockFeedRepo) ListFeeds() ([]database.Feed, error) { return m.feeds, nil }

func (m *mockFeedRepo) ListFeedsDueForRefresh(staleThreshold time.Duration) ([]database.Feed, error) {
	return nil, nil
}

func (m *mockFeedRepo) UpsertFeed(feedName, feedURL string) (bool, error) { return false, nil }

func (m *mockFeedRepo) SetFeedEnabled(feedName string, enabled bool) error { return nil }

func (m *mockFeedRepo) UpdateFeedTitle(feedName, title string) error { return nil }

func (m *mockFeedRepo) MarkFetched(feedName string, fetchedAt time.Time) error { return nil }

type mockItemRepo struct {
	counts map[string]int
}

func (m *mockItemRepo) GetItemCount(feedName string) (int, error) { return m.counts[feedName], nil }

func (m *mockItemRepo) CheckDuplicate(feedName, contentHash string) (bool, error) {
	return false, nil
}

func (m *mockItemRepo) UpsertItem(feedName string, item database.FeedItem) error { return nil }

type mockScheduler struct {
	scheduled []string
}

func (m *mockScheduler) ScheduleOne(feedName, feedURL string) (bool, error) {
	for _, name := range m.scheduled {
		if name == feedName {
			return false, nil
		}
	}
	m.scheduled = append(m.scheduled, feedName)
	return true, nil
}

func newTestServer(apiKey string) (*gin.Engine, *mockScheduler) {
	feedRepo := &mockFeedRepo{feeds: []database.Feed{
		{Name: "tech-news", FeedURL: "http://example.com/feed.xml", Title: "Tech News", Enabled: true},
	}}
	itemRepo := &mockItemRepo{counts: map[string]int{"tech-news": 7}}
	q := queue.NewMemory(queue.Options{Backoff: retry.Policy{BaseDelay: time.Second, MaxAttempts: 3}})
	scheduler := &mockScheduler{}

	handler := NewHandler(feedRepo, itemRepo, q, scheduler, "test")
	return NewServer(handler, apiKey), scheduler
}

func doRequest(router *gin.Engine, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestGetHealth(t *testing.T) {
	router, _ := newTestServer("")

	w := doRequest(router, "GET", "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("health status = %d, want 200", w.Code)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	if body["version"] != "test" {
		t.Errorf("version = %v, want test", body["version"])
	}
	if body["feeds"] != float64(1) {
		t.Errorf("feeds = %v, want 1", body["feeds"])
	}
	if _, ok := body["queue"]; !ok {
		t.Error("health response missing queue section")
	}
}

func TestGetStats(t *testing.T) {
	router, _ := newTestServer("")

	w := doRequest(router, "GET", "/stats", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("stats status = %d, want 200", w.Code)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	for _, field := range []string{"pending", "active", "completed", "abandoned", "retries"} {
		if _, ok := body[field]; !ok {
			t.Errorf("stats response missing %q", field)
		}
	}
}

func TestAPIRequiresAuth(t *testing.T) {
	router, _ := newTestServer("secret")

	if w := doRequest(router, "GET", "/api/feeds", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("no key: status = %d, want 401", w.Code)
	}

	headers := map[string]string{"X-API-Key": "wrong"}
	if w := doRequest(router, "GET", "/api/feeds", headers); w.Code != http.StatusUnauthorized {
		t.Errorf("wrong key: status = %d, want 401", w.Code)
	}

	headers = map[string]string{"X-API-Key": "secret"}
	if w := doRequest(router, "GET", "/api/feeds", headers); w.Code != http.StatusOK {
		t.Errorf("valid key: status = %d, want 200", w.Code)
	}

	headers = map[string]string{"Authorization": "Bearer secret"}
	if w := doRequest(router, "GET", "/api/feeds", headers); w.Code != http.StatusOK {
		t.Errorf("bearer token: status = %d, want 200", w.Code)
	}
}

func TestAPIDisabledWithoutKey(t *testing.T) {
	router, _ := newTestServer("")

	if w := doRequest(router, "GET", "/api/feeds", nil); w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 when API is disabled", w.Code)
	}
}

func TestAPIListFeeds(t *testing.T) {
	router, _ := newTestServer("secret")

	w := doRequest(router, "GET", "/api/feeds", map[string]string{"X-API-Key": "secret"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var body struct {
		Count int `json:"count"`
		Feeds []struct {
			Name      string `json:"name"`
			Title     string `json:"title"`
			ItemCount int    `json:"item_count"`
		} `json:"feeds"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	if body.Count != 1 || len(body.Feeds) != 1 {
		t.Fatalf("count = %d, feeds = %d, want 1 each", body.Count, len(body.Feeds))
	}
	if body.Feeds[0].Name != "tech-news" || body.Feeds[0].ItemCount != 7 {
		t.Errorf("feed = %+v", body.Feeds[0])
	}
}

func TestAPIRefreshFeed(t *testing.T) {
	router, scheduler := newTestServer("secret")
	headers := map[string]string{"X-API-Key": "secret"}

	w := doRequest(router, "POST", "/api/feeds/tech-news/refresh", headers)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", w.Code)
	}

	var body struct {
		Feed      string `json:"feed"`
		Scheduled bool   `json:"scheduled"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	if body.Feed != "tech-news" || !body.Scheduled {
		t.Errorf("response = %+v, want scheduled tech-news", body)
	}
	if len(scheduler.scheduled) != 1 {
		t.Errorf("scheduler called %d times, want 1", len(scheduler.scheduled))
	}

	// A second request while the job is queued still answers 202 but
	// reports scheduled=false.
	w = doRequest(router, "POST", "/api/feeds/tech-news/refresh", headers)
	if w.Code != http.StatusAccepted {
		t.Fatalf("second refresh status = %d, want 202", w.Code)
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	if body.Scheduled {
		t.Error("second refresh reported scheduled=true")
	}
}

func TestAPIRefreshUnknownFeed(t *testing.T) {
	router, _ := newTestServer("secret")

	w := doRequest(router, "POST", "/api/feeds/nope/refresh", map[string]string{"X-API-Key": "secret"})
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}
