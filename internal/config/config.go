package config

import (
	"embed"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed example.yaml
var exampleConfig embed.FS

// Config represents the complete clawrank configuration
type Config struct {
	Relays   Relays   `yaml:"relays"`
	Source   Source   `yaml:"source"`
	Query    Query    `yaml:"query"`
	Feed     Feed     `yaml:"feed"`
	Caching  Caching  `yaml:"caching"`
	Activity Activity `yaml:"activity"`
	Server   Server   `yaml:"server"`
	Logging  Logging  `yaml:"logging"`
}

// Relays contains relay configuration
type Relays struct {
	Seeds  []string    `yaml:"seeds"`
	Policy RelayPolicy `yaml:"policy"`
}

// RelayPolicy contains relay connection policies
type RelayPolicy struct {
	ConnectTimeoutMs int `yaml:"connect_timeout_ms"`
}

// Source selects where events are read from
type Source struct {
	Driver       string `yaml:"driver"` // relays|snapshot
	SnapshotPath string `yaml:"snapshot_path"`
}

// Query contains per-query timeouts and limits
type Query struct {
	Timeouts QueryTimeouts `yaml:"timeouts"`
	Limits   QueryLimits   `yaml:"limits"`
}

// QueryTimeouts are in milliseconds
type QueryTimeouts struct {
	PostsMs     int `yaml:"posts_ms"`
	PaymentsMs  int `yaml:"payments_ms"`
	ReactionsMs int `yaml:"reactions_ms"`
	RepliesMs   int `yaml:"replies_ms"`
	AuthorsMs   int `yaml:"authors_ms"`
	ActivityMs  int `yaml:"activity_ms"`
	LargestMs   int `yaml:"largest_ms"`
	SingleMs    int `yaml:"single_ms"`
}

// QueryLimits caps the number of events requested per query
type QueryLimits struct {
	Posts     int `yaml:"posts"`
	Payments  int `yaml:"payments"`
	Reactions int `yaml:"reactions"`
	Replies   int `yaml:"replies"`
	Authors   int `yaml:"authors"`
	Activity  int `yaml:"activity"`
}

// Feed contains listing defaults
type Feed struct {
	ShowAll        bool   `yaml:"show_all"` // false = agent-authored content only
	TimeRange      string `yaml:"time_range"`
	PageSize       int    `yaml:"page_size"`
	PopularLimit   int    `yaml:"popular_limit"`
	RecentLimit    int    `yaml:"recent_limit"`
	AgentsLimit    int    `yaml:"agents_limit"`
	ZapsLimit      int    `yaml:"zaps_limit"`
	AuthorLimit    int    `yaml:"author_limit"`
	MaxThreadDepth int    `yaml:"max_thread_depth"`
}

// Caching contains cache configuration
type Caching struct {
	Enabled  bool     `yaml:"enabled"`
	Engine   string   `yaml:"engine"` // memory|redis
	RedisURL string   `yaml:"redis_url"`
	TTL      CacheTTL `yaml:"ttl"`
}

// CacheTTL holds staleness windows in seconds
type CacheTTL struct {
	Posts    int `yaml:"posts"`
	Metrics  int `yaml:"metrics"`
	Single   int `yaml:"single"`
	Activity int `yaml:"activity"`
}

// Activity controls the live zap activity refresher
type Activity struct {
	Enabled        bool `yaml:"enabled"`
	RefreshSeconds int  `yaml:"refresh_seconds"`
}

// Server contains HTTP API settings
type Server struct {
	Enabled       bool   `yaml:"enabled"`
	Bind          string `yaml:"bind"`
	Port          int    `yaml:"port"`
	MetricsWaitMs int    `yaml:"metrics_wait_ms"`
	ServeRelay    bool   `yaml:"serve_relay"` // expose the snapshot relay at /relay
}

// Logging contains logging configuration
type Logging struct {
	Level  string `yaml:"level"`  // debug|info|warn|error
	Format string `yaml:"format"` // text|json|pretty
}

// Addr returns the listen address for the HTTP server
func (s Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.Bind, s.Port)
}

// MetricsWait returns how long handlers wait for metrics before answering with a partial listing
func (s Server) MetricsWait() time.Duration {
	return time.Duration(s.MetricsWaitMs) * time.Millisecond
}

// Duration converts a millisecond setting to a time.Duration
func Duration(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// Seconds converts a second setting to a time.Duration
func Seconds(s int) time.Duration {
	return time.Duration(s) * time.Second
}

// applyDefaults fills in missing configuration fields with sensible defaults
func applyDefaults(cfg *Config) {
	defaults := Default()

	if len(cfg.Relays.Seeds) == 0 {
		cfg.Relays.Seeds = defaults.Relays.Seeds
	}
	if cfg.Relays.Policy.ConnectTimeoutMs == 0 {
		cfg.Relays.Policy.ConnectTimeoutMs = defaults.Relays.Policy.ConnectTimeoutMs
	}
	if cfg.Source.Driver == "" {
		cfg.Source.Driver = defaults.Source.Driver
	}

	t := &cfg.Query.Timeouts
	dt := defaults.Query.Timeouts
	fillInt(&t.PostsMs, dt.PostsMs)
	fillInt(&t.PaymentsMs, dt.PaymentsMs)
	fillInt(&t.ReactionsMs, dt.ReactionsMs)
	fillInt(&t.RepliesMs, dt.RepliesMs)
	fillInt(&t.AuthorsMs, dt.AuthorsMs)
	fillInt(&t.ActivityMs, dt.ActivityMs)
	fillInt(&t.LargestMs, dt.LargestMs)
	fillInt(&t.SingleMs, dt.SingleMs)

	l := &cfg.Query.Limits
	dl := defaults.Query.Limits
	fillInt(&l.Posts, dl.Posts)
	fillInt(&l.Payments, dl.Payments)
	fillInt(&l.Reactions, dl.Reactions)
	fillInt(&l.Replies, dl.Replies)
	fillInt(&l.Authors, dl.Authors)
	fillInt(&l.Activity, dl.Activity)

	if cfg.Feed.TimeRange == "" {
		cfg.Feed.TimeRange = defaults.Feed.TimeRange
	}
	fillInt(&cfg.Feed.PageSize, defaults.Feed.PageSize)
	fillInt(&cfg.Feed.PopularLimit, defaults.Feed.PopularLimit)
	fillInt(&cfg.Feed.RecentLimit, defaults.Feed.RecentLimit)
	fillInt(&cfg.Feed.AgentsLimit, defaults.Feed.AgentsLimit)
	fillInt(&cfg.Feed.ZapsLimit, defaults.Feed.ZapsLimit)
	fillInt(&cfg.Feed.AuthorLimit, defaults.Feed.AuthorLimit)
	fillInt(&cfg.Feed.MaxThreadDepth, defaults.Feed.MaxThreadDepth)

	if cfg.Caching.Engine == "" {
		cfg.Caching.Engine = defaults.Caching.Engine
	}
	fillInt(&cfg.Caching.TTL.Posts, defaults.Caching.TTL.Posts)
	fillInt(&cfg.Caching.TTL.Metrics, defaults.Caching.TTL.Metrics)
	fillInt(&cfg.Caching.TTL.Single, defaults.Caching.TTL.Single)
	fillInt(&cfg.Caching.TTL.Activity, defaults.Caching.TTL.Activity)

	fillInt(&cfg.Activity.RefreshSeconds, defaults.Activity.RefreshSeconds)

	if cfg.Server.Bind == "" {
		cfg.Server.Bind = defaults.Server.Bind
	}
	fillInt(&cfg.Server.Port, defaults.Server.Port)
	fillInt(&cfg.Server.MetricsWaitMs, defaults.Server.MetricsWaitMs)

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = defaults.Logging.Level
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = defaults.Logging.Format
	}
}

func fillInt(dst *int, def int) {
	if *dst == 0 {
		*dst = def
	}
}

// Load reads and parses a configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse parses configuration from YAML bytes, applying defaults, env overrides and validation
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(cfg *Config) error {
	if redisURL := os.Getenv("CLAWRANK_REDIS_URL"); redisURL != "" {
		cfg.Caching.RedisURL = redisURL
	}

	// Comma separated list replaces the configured seeds
	if relays := os.Getenv("CLAWRANK_RELAYS"); relays != "" {
		seeds := make([]string, 0)
		for _, r := range strings.Split(relays, ",") {
			if r = strings.TrimSpace(r); r != "" {
				seeds = append(seeds, r)
			}
		}
		if len(seeds) == 0 {
			return fmt.Errorf("CLAWRANK_RELAYS contains no relay urls")
		}
		cfg.Relays.Seeds = seeds
	}

	if path := os.Getenv("CLAWRANK_SNAPSHOT"); path != "" {
		cfg.Source.Driver = "snapshot"
		cfg.Source.SnapshotPath = path
	}

	return nil
}

// GetExampleConfig returns the embedded example configuration
func GetExampleConfig() ([]byte, error) {
	return exampleConfig.ReadFile("example.yaml")
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		Relays: Relays{
			Seeds: []string{
				"wss://relay.ditto.pub",
				"wss://relay.primal.net",
				"wss://relay.damus.io",
				"wss://nos.lol",
			},
			Policy: RelayPolicy{
				ConnectTimeoutMs: 30000,
			},
		},
		Source: Source{
			Driver: "relays",
		},
		Query: Query{
			Timeouts: QueryTimeouts{
				PostsMs:     10000,
				PaymentsMs:  10000,
				ReactionsMs: 8000,
				RepliesMs:   10000,
				AuthorsMs:   15000,
				ActivityMs:  8000,
				LargestMs:   5000,
				SingleMs:    5000,
			},
			Limits: QueryLimits{
				Posts:     100,
				Payments:  2000,
				Reactions: 1000,
				Replies:   2000,
				Authors:   500,
				Activity:  100,
			},
		},
		Feed: Feed{
			ShowAll:        false,
			TimeRange:      "24h",
			PageSize:       20,
			PopularLimit:   50,
			RecentLimit:    50,
			AgentsLimit:    10,
			ZapsLimit:      10,
			AuthorLimit:    50,
			MaxThreadDepth: 6,
		},
		Caching: Caching{
			Enabled: true,
			Engine:  "memory",
			TTL: CacheTTL{
				Posts:    30,
				Metrics:  60,
				Single:   300,
				Activity: 30,
			},
		},
		Activity: Activity{
			Enabled:        true,
			RefreshSeconds: 60,
		},
		Server: Server{
			Enabled:       true,
			Bind:          "127.0.0.1",
			Port:          8787,
			MetricsWaitMs: 5000,
		},
		Logging: Logging{
			Level:  "info",
			Format: "text",
		},
	}
}

var validSourceDrivers = map[string]bool{
	"relays":   true,
	"snapshot": true,
}

var validCacheEngines = map[string]bool{
	"memory": true,
	"redis":  true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validLogFormats = map[string]bool{
	"text":   true,
	"json":   true,
	"pretty": true,
}

var validTimeRanges = map[string]bool{
	"24h": true,
	"7d":  true,
	"all": true,
}

// Validate checks if a configuration is valid
func Validate(cfg *Config) error {
	if !validSourceDrivers[cfg.Source.Driver] {
		return fmt.Errorf("invalid source driver: %s (must be one of: relays, snapshot)", cfg.Source.Driver)
	}

	if cfg.Source.Driver == "relays" {
		if len(cfg.Relays.Seeds) == 0 {
			return fmt.Errorf("at least one relay seed is required")
		}
		for _, seed := range cfg.Relays.Seeds {
			if !strings.HasPrefix(seed, "wss://") && !strings.HasPrefix(seed, "ws://") {
				return fmt.Errorf("relay seed must start with ws:// or wss://: %s", seed)
			}
		}
	}

	if cfg.Source.Driver == "snapshot" && cfg.Source.SnapshotPath == "" {
		return fmt.Errorf("source.snapshot_path is required when source.driver is snapshot")
	}

	t := cfg.Query.Timeouts
	for name, ms := range map[string]int{
		"posts_ms":     t.PostsMs,
		"payments_ms":  t.PaymentsMs,
		"reactions_ms": t.ReactionsMs,
		"replies_ms":   t.RepliesMs,
		"authors_ms":   t.AuthorsMs,
		"activity_ms":  t.ActivityMs,
		"largest_ms":   t.LargestMs,
		"single_ms":    t.SingleMs,
	} {
		if ms < 100 || ms > 120000 {
			return fmt.Errorf("query.timeouts.%s must be between 100 and 120000", name)
		}
	}

	l := cfg.Query.Limits
	for name, n := range map[string]int{
		"posts":     l.Posts,
		"payments":  l.Payments,
		"reactions": l.Reactions,
		"replies":   l.Replies,
		"authors":   l.Authors,
		"activity":  l.Activity,
	} {
		if n < 1 || n > 10000 {
			return fmt.Errorf("query.limits.%s must be between 1 and 10000", name)
		}
	}

	if !validTimeRanges[cfg.Feed.TimeRange] {
		return fmt.Errorf("invalid feed.time_range: %s (must be one of: 24h, 7d, all)", cfg.Feed.TimeRange)
	}
	if cfg.Feed.PageSize < 1 || cfg.Feed.PageSize > 500 {
		return fmt.Errorf("feed.page_size must be between 1 and 500")
	}
	if cfg.Feed.MaxThreadDepth < 1 || cfg.Feed.MaxThreadDepth > 20 {
		return fmt.Errorf("feed.max_thread_depth must be between 1 and 20")
	}

	if cfg.Caching.Enabled && !validCacheEngines[cfg.Caching.Engine] {
		return fmt.Errorf("invalid cache engine: %s (must be one of: memory, redis)", cfg.Caching.Engine)
	}
	if cfg.Caching.Enabled && cfg.Caching.Engine == "redis" && cfg.Caching.RedisURL == "" {
		return fmt.Errorf("caching.redis_url is required when caching.engine is redis")
	}

	if cfg.Activity.Enabled && cfg.Activity.RefreshSeconds < 5 {
		return fmt.Errorf("activity.refresh_seconds must be at least 5")
	}

	if cfg.Server.Enabled && (cfg.Server.Port < 1 || cfg.Server.Port > 65535) {
		return fmt.Errorf("server port must be between 1 and 65535")
	}

	if !validLogLevels[cfg.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (must be one of: debug, info, warn, error)", cfg.Logging.Level)
	}
	if !validLogFormats[cfg.Logging.Format] {
		return fmt.Errorf("invalid log format: %s (must be one of: text, json, pretty)", cfg.Logging.Format)
	}

	return nil
}
