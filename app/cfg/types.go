package cfg

type Cfg struct {
	// Storage configuration
	DBPath       string
	QueueBackend string

	// Application configuration
	FeedsDir     string
	Port         string
	APIAccessKey string

	// Pipeline configuration
	WorkerCount     int
	RateLimit       int
	RateWindowMS    int
	MaxAttempts     int
	RetryBaseDelay  int // seconds
	RefreshInterval int // seconds
	StaleAfter      int // seconds
	JobTimeout      int // seconds, 0 disables

	// Application metadata
	UserAgent string
	Debug     bool
	Version   string
}
