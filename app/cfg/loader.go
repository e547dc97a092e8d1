package cfg

import (
	"cmp"
	"fmt"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Storage configuration
	DBPath       string `long:"db-path" env:"DB_PATH" default:"./feedpulse.db" description:"Path to the SQLite database file"`
	QueueBackend string `long:"queue-backend" env:"QUEUE_BACKEND" default:"sqlite" choice:"sqlite" choice:"memory" description:"Job queue backend (sqlite survives restarts)"`

	// Application configuration
	FeedsDir     string `long:"feeds-dir" env:"FEEDS_DIR" default:"./feeds" description:"Directory containing feed subscription files"`
	Port         string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	APIAccessKey string `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for authentication (optional)"`

	// Pipeline configuration
	WorkerCount     int `long:"worker-count" env:"WORKER_COUNT" default:"5" description:"Number of concurrent refresh workers"`
	RateLimit       int `long:"rate-limit" env:"RATE_LIMIT" default:"10" description:"Maximum refresh starts per rate window, across all workers"`
	RateWindowMS    int `long:"rate-window-ms" env:"RATE_WINDOW_MS" default:"1000" description:"Rate limit window in milliseconds"`
	MaxAttempts     int `long:"max-attempts" env:"MAX_ATTEMPTS" default:"3" description:"Attempt ceiling per refresh job, counting the first attempt"`
	RetryBaseDelay  int `long:"retry-base-delay" env:"RETRY_BASE_DELAY" default:"5" description:"Base retry backoff in seconds (doubles per attempt)"`
	RefreshInterval int `long:"refresh-interval" env:"REFRESH_INTERVAL" default:"900" description:"Seconds between scheduling passes"`
	StaleAfter      int `long:"stale-after" env:"STALE_AFTER" default:"1800" description:"Seconds after which a fetched feed becomes stale"`
	JobTimeout      int `long:"job-timeout" env:"JOB_TIMEOUT" default:"0" description:"Per-job execution timeout in seconds (0 disables; unbounded executions can occupy a worker slot indefinitely)"`

	// Application metadata
	UserAgent string `long:"user-agent" env:"USER_AGENT" default:"FeedPulse/1.0" description:"User agent string for HTTP requests"`
	Debug     bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

var globalCfg *Cfg

func Load() (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Cfg{
		DBPath:          raw.DBPath,
		QueueBackend:    raw.QueueBackend,
		FeedsDir:        raw.FeedsDir,
		Port:            raw.Port,
		APIAccessKey:    raw.APIAccessKey,
		WorkerCount:     raw.WorkerCount,
		RateLimit:       raw.RateLimit,
		RateWindowMS:    raw.RateWindowMS,
		MaxAttempts:     raw.MaxAttempts,
		RetryBaseDelay:  raw.RetryBaseDelay,
		RefreshInterval: raw.RefreshInterval,
		StaleAfter:      raw.StaleAfter,
		JobTimeout:      raw.JobTimeout,
		UserAgent:       raw.UserAgent,
		Debug:           raw.Debug,
		Version:         GetVersion(),
	}

	globalCfg = cfg

	return cfg, nil
}

func Get() *Cfg {
	if globalCfg == nil {
		panic("configuration not loaded - call cfg.Load() first")
	}
	return globalCfg
}
