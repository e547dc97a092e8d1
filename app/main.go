package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/feedpulse/feedpulse/app/api"
	"github.com/feedpulse/feedpulse/app/cfg"
	"github.com/feedpulse/feedpulse/app/config"
	"github.com/feedpulse/feedpulse/app/database"
	"github.com/feedpulse/feedpulse/app/fetch"
	"github.com/feedpulse/feedpulse/app/queue"
	"github.com/feedpulse/feedpulse/app/refresh"
	"github.com/feedpulse/feedpulse/app/retry"
	"github.com/feedpulse/feedpulse/app/worker"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	// A missing .env file is fine; flags and real env vars still apply
	_ = godotenv.Load()

	appCfg, err := cfg.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if appCfg == nil {
		// Help was shown, exit gracefully
		return
	}

	setupLogging(appCfg.Debug)

	log.Printf("Starting FeedPulse %s...", appCfg.Version)

	db, err := database.NewConnection(appCfg.DBPath)
	if err != nil {
		log.Fatal("Failed to open database:", err)
	}
	defer db.Close()

	version, dirty, err := database.RunMigrations(db)
	if err != nil {
		log.Fatal("Failed to run migrations:", err)
	}
	log.Printf("Database ready (schema version %d, dirty: %v)", version, dirty)

	feedRepo := database.NewFeedRepository(db)
	itemRepo := database.NewItemRepository(db)

	// Register subscribed feeds
	log.Printf("Loading feed subscriptions from %s...", appCfg.FeedsDir)
	loader := config.NewLoader(appCfg.FeedsDir)
	configs, err := loader.LoadAll()
	if err != nil {
		log.Fatal("Failed to load feed subscriptions:", err)
	}

	registered := 0
	for name, feedConfig := range configs {
		urlChanged, err := feedRepo.UpsertFeed(name, feedConfig.Feed.URL)
		if err != nil {
			log.Printf("Warning: Failed to register feed %s: %v", name, err)
			continue
		}
		if err := feedRepo.SetFeedEnabled(name, feedConfig.Settings.Enabled); err != nil {
			log.Printf("Warning: Failed to update feed %s: %v", name, err)
			continue
		}
		if urlChanged {
			log.Printf("Feed URL updated: %s (%s)", name, feedConfig.Feed.URL)
		}
		registered++
	}
	log.Printf("Registered %d/%d feeds", registered, len(configs))

	// Job queue
	queueOpts := queue.Options{
		Backoff: retry.Policy{
			BaseDelay:   time.Duration(appCfg.RetryBaseDelay) * time.Second,
			MaxAttempts: appCfg.MaxAttempts,
		},
	}
	jobQueue, err := buildQueue(appCfg.QueueBackend, db, queueOpts)
	if err != nil {
		log.Fatal("Failed to initialize job queue:", err)
	}

	// Worker pool with the fetch collaborator
	fetcher := fetch.NewFetcher(&http.Client{}, feedRepo, itemRepo, appCfg.UserAgent)
	pool := worker.NewPool(jobQueue, fetcher, worker.Options{
		Workers:    appCfg.WorkerCount,
		RateLimit:  appCfg.RateLimit,
		RateWindow: time.Duration(appCfg.RateWindowMS) * time.Millisecond,
		JobTimeout: time.Duration(appCfg.JobTimeout) * time.Second,
	})
	pool.Start()
	defer pool.Stop()

	// Orchestrator and its periodic trigger
	orchestrator := refresh.NewOrchestrator(feedRepo, jobQueue,
		time.Duration(appCfg.StaleAfter)*time.Second)
	trigger := refresh.NewTrigger(time.Duration(appCfg.RefreshInterval)*time.Second,
		orchestrator.ScheduleDue)
	trigger.Start()
	defer trigger.Stop()

	// HTTP server
	apiHandler := api.NewHandler(feedRepo, itemRepo, jobQueue, orchestrator, appCfg.Version)
	server := api.NewServer(apiHandler, appCfg.APIAccessKey)

	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      server,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		log.Printf("Starting HTTP server on port %s", appCfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	log.Println("FeedPulse started successfully")

	select {
	case sig := <-sigChan:
		log.Printf("Received signal: %v", sig)
	case err := <-serverErrChan:
		log.Printf("Server error: %v", err)
	}

	log.Println("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	// Trigger and pool are stopped via defer
	log.Println("FeedPulse shutdown complete")
}

func buildQueue(backend string, db *database.DB, opts queue.Options) (queue.Queue, error) {
	switch backend {
	case "memory":
		return queue.NewMemory(opts), nil
	default:
		return queue.NewDurable(database.NewJobStore(db), opts)
	}
}

func setupLogging(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})))
}
