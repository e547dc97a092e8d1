package config

// FeedConfig represents a feed subscription loaded from a YAML file
type FeedConfig struct {
	Feed     FeedInfo     `yaml:"feed"`
	Settings FeedSettings `yaml:"settings"`
}

// FeedInfo contains basic feed information
type FeedInfo struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// FeedSettings contains per-feed scheduling settings
type FeedSettings struct {
	Enabled bool `yaml:"enabled"`
}
