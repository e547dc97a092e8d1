package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Loader handles loading and validation of feed subscription files
type Loader struct {
	feedsDir string
}

// NewLoader creates a new subscription loader
func NewLoader(feedsDir string) *Loader {
	return &Loader{feedsDir: feedsDir}
}

// LoadAll loads all YAML subscription files from the feeds directory,
// keyed by feed name. A feed whose file omits a name takes the filename
// without extension.
func (l *Loader) LoadAll() (map[string]*FeedConfig, error) {
	configs := make(map[string]*FeedConfig)

	if _, err := os.Stat(l.feedsDir); os.IsNotExist(err) {
		return configs, nil
	}

	files, err := filepath.Glob(filepath.Join(l.feedsDir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("failed to find YAML files: %w", err)
	}

	ymlFiles, err := filepath.Glob(filepath.Join(l.feedsDir, "*.yml"))
	if err != nil {
		return nil, fmt.Errorf("failed to find YML files: %w", err)
	}
	files = append(files, ymlFiles...)

	for _, file := range files {
		config, err := l.loadFile(file)
		if err != nil {
			return nil, fmt.Errorf("error loading %s: %w", file, err)
		}

		if err := l.validate(config); err != nil {
			return nil, fmt.Errorf("invalid config %s: %w", file, err)
		}

		if _, exists := configs[config.Feed.Name]; exists {
			return nil, fmt.Errorf("duplicate feed name %q in %s", config.Feed.Name, file)
		}
		configs[config.Feed.Name] = config
	}

	return configs, nil
}

// loadFile loads a single YAML subscription file
func (l *Loader) loadFile(path string) (*FeedConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	// Feeds are enabled unless the file says otherwise.
	config := FeedConfig{Settings: FeedSettings{Enabled: true}}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if config.Feed.Name == "" {
		base := filepath.Base(path)
		config.Feed.Name = strings.TrimSuffix(base, filepath.Ext(base))
	}

	return &config, nil
}

// validate validates the subscription
func (l *Loader) validate(config *FeedConfig) error {
	if config.Feed.URL == "" {
		return fmt.Errorf("feed URL is required")
	}
	if !strings.HasPrefix(config.Feed.URL, "http://") && !strings.HasPrefix(config.Feed.URL, "https://") {
		return fmt.Errorf("feed URL must be an http(s) URL")
	}
	if strings.ContainsAny(config.Feed.Name, " /") {
		return fmt.Errorf("feed name must not contain spaces or slashes")
	}
	return nil
}
