// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/remote-lead-crawler/internal/crawler"
)

// Source names accepted in run.sources.
const (
	SourceLinkedIn = "linkedin"
	SourceRemoteOK = "remoteok"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Run        RunConfig        `mapstructure:"run"`
	Checkpoint CheckpointConfig `mapstructure:"checkpoint"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	Throttle   ThrottleConfig   `mapstructure:"throttle"`
	Resolver   ResolverConfig   `mapstructure:"resolver"`
	Headless   HeadlessConfig   `mapstructure:"headless"`
	LinkedIn   LinkedInConfig   `mapstructure:"linkedin"`
	RemoteOK   RemoteOKConfig   `mapstructure:"remoteok"`
	DB         DBConfig         `mapstructure:"db"`
	PubSub     PubSubConfig     `mapstructure:"pubsub"`
	Server     ServerConfig     `mapstructure:"server"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// RunConfig governs the pipeline driver.
type RunConfig struct {
	Target             int      `mapstructure:"target"`
	Concurrency        int      `mapstructure:"concurrency"`
	MaxPagesPerTerm    int      `mapstructure:"max_pages_per_term"`
	MaxPostingsPerPage int      `mapstructure:"max_postings_per_page"`
	Terms              []string `mapstructure:"terms"`
	Sources            []string `mapstructure:"sources"`
}

// CheckpointConfig controls where and how often leads are persisted.
type CheckpointConfig struct {
	Dir       string `mapstructure:"dir"`
	Every     int    `mapstructure:"every"`
	FinalName string `mapstructure:"final_name"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	GCSPrefix string `mapstructure:"gcs_prefix"`
}

// HTTPConfig configures the outbound HTTP capability.
type HTTPConfig struct {
	UserAgent      string `mapstructure:"user_agent"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	IgnoreRobots   bool   `mapstructure:"ignore_robots"`
}

// ThrottleConfig configures the per-host rate/backoff controller.
type ThrottleConfig struct {
	MinIntervalMs    int `mapstructure:"min_interval_ms"`
	JitterMs         int `mapstructure:"jitter_ms"`
	FailureThreshold int `mapstructure:"failure_threshold"`
}

// ResolverConfig bounds the email discovery chain.
type ResolverConfig struct {
	MaxPages         int `mapstructure:"max_pages"`
	MaxContactLinks  int `mapstructure:"max_contact_links"`
	DescriptionLimit int `mapstructure:"description_limit"`
}

// HeadlessConfig configures the browser capability used for authenticated profile pages.
type HeadlessConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	UserDataDir   string `mapstructure:"user_data_dir"`
	NavTimeoutSec int    `mapstructure:"nav_timeout_seconds"`
}

// Location is one LinkedIn search location.
type Location struct {
	Name  string `mapstructure:"name"`
	GeoID string `mapstructure:"geo_id"`
}

// LinkedInConfig configures the LinkedIn guest-search adapter.
type LinkedInConfig struct {
	BaseURL   string     `mapstructure:"base_url"`
	Locations []Location `mapstructure:"locations"`
}

// RemoteOKConfig configures the RemoteOK API adapter.
type RemoteOKConfig struct {
	APIURL string `mapstructure:"api_url"`
}

// DBConfig controls the optional Postgres lead sink.
type DBConfig struct {
	DSN   string `mapstructure:"dsn"`
	Table string `mapstructure:"table"`
}

// PubSubConfig holds metadata for run-summary notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// ServerConfig controls the optional status API. Port 0 disables it.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CRAWLER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("run.target", 100)
	v.SetDefault("run.concurrency", 2)
	v.SetDefault("run.max_pages_per_term", 10)
	v.SetDefault("run.max_postings_per_page", 25)
	v.SetDefault("run.terms", []string{
		"data scientist",
		"ai engineer",
		"data analysis",
		"artificial intelligence engineer",
		"data analyst",
	})
	v.SetDefault("run.sources", []string{SourceLinkedIn, SourceRemoteOK})
	v.SetDefault("checkpoint.dir", "data/checkpoints")
	v.SetDefault("checkpoint.every", 500)
	v.SetDefault("checkpoint.final_name", "leads_final.csv")
	v.SetDefault("checkpoint.gcs_prefix", "checkpoints")
	v.SetDefault("http.user_agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0 Safari/537.36")
	v.SetDefault("http.timeout_seconds", 20)
	v.SetDefault("http.ignore_robots", true)
	v.SetDefault("throttle.min_interval_ms", 1500)
	v.SetDefault("throttle.jitter_ms", 1000)
	v.SetDefault("throttle.failure_threshold", 20)
	v.SetDefault("resolver.max_pages", 6)
	v.SetDefault("resolver.max_contact_links", 3)
	v.SetDefault("resolver.description_limit", 300)
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.nav_timeout_seconds", 25)
	v.SetDefault("linkedin.base_url", "https://www.linkedin.com")
	v.SetDefault("linkedin.locations", []map[string]any{
		{"name": "Germany", "geo_id": "101282230"},
		{"name": "China", "geo_id": "102890883"},
		{"name": "United Kingdom", "geo_id": "101165590"},
		{"name": "Australia", "geo_id": "101452733"},
		{"name": "Canada", "geo_id": "101174742"},
	})
	v.SetDefault("remoteok.api_url", "https://remoteok.com/api")
	v.SetDefault("db.table", "leads")
	v.SetDefault("server.port", 0)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits. Every failure wraps crawler.ErrFatalConfig.
func (c Config) Validate() error {
	if err := c.validate(); err != nil {
		return fmt.Errorf("%w: %w", crawler.ErrFatalConfig, err)
	}
	return nil
}

func (c Config) validate() error {
	if c.Run.Target <= 0 {
		return fmt.Errorf("run.target must be > 0")
	}
	if c.Run.Concurrency < 1 || c.Run.Concurrency > 4 {
		return fmt.Errorf("run.concurrency must be between 1 and 4")
	}
	if c.Run.MaxPagesPerTerm <= 0 {
		return fmt.Errorf("run.max_pages_per_term must be > 0")
	}
	if c.Run.MaxPostingsPerPage <= 0 {
		return fmt.Errorf("run.max_postings_per_page must be > 0")
	}
	if len(c.Run.Terms) == 0 {
		return fmt.Errorf("run.terms must not be empty")
	}
	if len(c.Run.Sources) == 0 {
		return fmt.Errorf("run.sources must not be empty")
	}
	for _, name := range c.Run.Sources {
		switch name {
		case SourceLinkedIn, SourceRemoteOK:
		default:
			return fmt.Errorf("run.sources: unknown source %q", name)
		}
	}
	if c.Checkpoint.Dir == "" {
		return fmt.Errorf("checkpoint.dir must be set")
	}
	if c.Checkpoint.Every <= 0 {
		return fmt.Errorf("checkpoint.every must be > 0")
	}
	if c.HTTP.TimeoutSeconds < 10 || c.HTTP.TimeoutSeconds > 30 {
		return fmt.Errorf("http.timeout_seconds must be between 10 and 30")
	}
	if c.Throttle.MinIntervalMs < 0 || c.Throttle.JitterMs < 0 {
		return fmt.Errorf("throttle intervals must be >= 0")
	}
	if c.Throttle.FailureThreshold <= 0 {
		return fmt.Errorf("throttle.failure_threshold must be > 0")
	}
	if c.Resolver.MaxPages <= 0 || c.Resolver.MaxPages > 6 {
		return fmt.Errorf("resolver.max_pages must be between 1 and 6")
	}
	if c.Resolver.DescriptionLimit <= 0 || c.Resolver.DescriptionLimit > 300 {
		return fmt.Errorf("resolver.description_limit must be between 1 and 300")
	}
	if c.Headless.Enabled {
		if c.Headless.UserDataDir == "" {
			return fmt.Errorf("headless.user_data_dir must be set when headless is enabled")
		}
		if _, err := os.Stat(c.Headless.UserDataDir); err != nil {
			return fmt.Errorf("headless.user_data_dir: %w", err)
		}
	}
	if c.Server.Port < 0 {
		return fmt.Errorf("server.port must be >= 0")
	}
	return nil
}

// SearchTerms crosses configured locations with roles. Order is location-major and stable.
func (c Config) SearchTerms() []crawler.SearchTerm {
	if len(c.LinkedIn.Locations) == 0 {
		terms := make([]crawler.SearchTerm, 0, len(c.Run.Terms))
		for _, role := range c.Run.Terms {
			terms = append(terms, crawler.SearchTerm{Query: role})
		}
		return terms
	}
	terms := make([]crawler.SearchTerm, 0, len(c.Run.Terms)*len(c.LinkedIn.Locations))
	for _, loc := range c.LinkedIn.Locations {
		for _, role := range c.Run.Terms {
			terms = append(terms, crawler.SearchTerm{Query: role, Location: loc.Name, GeoID: loc.GeoID})
		}
	}
	return terms
}

// FetchTimeout is the per-request timeout for HTTP fetches.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// NavTimeout is the per-navigation timeout for headless fetches.
func (c Config) NavTimeout() time.Duration {
	return time.Duration(c.Headless.NavTimeoutSec) * time.Second
}
