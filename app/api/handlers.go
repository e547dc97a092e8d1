package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/feedpulse/feedpulse/app/database"
	"github.com/feedpulse/feedpulse/app/queue"
)

func NewHandler(feedRepo database.FeedRepositoryInterface, itemRepo database.ItemRepositoryInterface,
	q queue.Queue, scheduler RefreshScheduler, version string) *Handler {
	return &Handler{
		feedRepo:  feedRepo,
		itemRepo:  itemRepo,
		queue:     q,
		scheduler: scheduler,
		version:   version,
	}
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]interface{}{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   h.version,
	}

	if feedCount, err := h.feedRepo.GetFeedCount(); err == nil {
		health["feeds"] = feedCount
	}

	stats := h.queue.Stats()
	health["queue"] = map[string]interface{}{
		"pending": stats.Pending,
		"active":  stats.Active,
	}

	c.JSON(http.StatusOK, health)
}

func (h *Handler) GetStats(c *gin.Context) {
	stats := h.queue.Stats()

	c.JSON(http.StatusOK, gin.H{
		"pending":   stats.Pending,
		"active":    stats.Active,
		"completed": stats.Completed,
		"abandoned": stats.Abandoned,
		"retries":   stats.Retries,
	})
}

func (h *Handler) APIListFeeds(c *gin.Context) {
	feeds, err := h.feedRepo.ListFeeds()
	if err != nil {
		slog.Error("Database error", "operation", "list_feeds", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	out := make([]map[string]interface{}, 0, len(feeds))
	for _, feed := range feeds {
		feedInfo := map[string]interface{}{
			"name":    feed.Name,
			"url":     feed.FeedURL,
			"title":   feed.Title,
			"enabled": feed.Enabled,
		}
		if feed.LastFetchedAt != nil {
			feedInfo["last_fetched_at"] = feed.LastFetchedAt.UTC().Format(time.RFC3339)
		}
		if itemCount, err := h.itemRepo.GetItemCount(feed.Name); err == nil {
			feedInfo["item_count"] = itemCount
		}
		out = append(out, feedInfo)
	}

	c.JSON(http.StatusOK, gin.H{"feeds": out, "count": len(out)})
}

// APIRefreshFeed schedules an immediate refresh for one feed. A feed
// already queued or mid-refresh reports scheduled=false.
func (h *Handler) APIRefreshFeed(c *gin.Context) {
	name := c.Param("name")
	if name == "" {
		c.Status(http.StatusBadRequest)
		return
	}

	feed, err := h.feedRepo.GetFeed(name)
	if err != nil {
		slog.Error("Database error", "operation", "get_feed", "feed", name, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}
	if feed == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "feed not found"})
		return
	}

	scheduled, err := h.scheduler.ScheduleOne(feed.Name, feed.FeedURL)
	if err != nil {
		slog.Error("Failed to schedule refresh", "feed", name, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"feed":      feed.Name,
		"scheduled": scheduled,
	})
}
