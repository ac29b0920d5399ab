// Package config loads service settings from config/{ENV_NAME}.yaml with
// environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kjstillabower/temperature-heatmap-service/internal/heatmap"
)

// DefaultDatasetURL is the published monthly global land-surface temperature document.
const DefaultDatasetURL = "https://raw.githubusercontent.com/freeCodeCamp/ProjectReferenceData/master/global-temperature.json"

// Config holds service configuration loaded from YAML and env.
type Config struct {
	ServerPort string

	DatasetURL     string
	DatasetTimeout time.Duration

	RequestTimeout time.Duration

	CacheBackend  string // "in_memory" or "memcached"
	CacheTTL      time.Duration
	StaleCacheTTL time.Duration // 0 disables stale fallback

	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	RetryAttempts  int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	RateLimitRPS   int
	RateLimitBurst int

	CircuitBreakerEnabled          bool
	CircuitBreakerFailureThreshold int
	CircuitBreakerSuccessThreshold int
	CircuitBreakerTimeout          time.Duration

	CoalesceEnabled bool
	CoalesceTimeout time.Duration

	WarmingEnabled  bool
	WarmingInterval time.Duration

	ShutdownTimeout time.Duration

	OverloadWindow       time.Duration
	OverloadThresholdPct int
	DegradedWindow       time.Duration
	DegradedErrorPct     int

	Chart ChartConfig
}

// ChartConfig is the chart section. Zero fields keep heatmap.DefaultConfig values.
type ChartConfig struct {
	Title             string
	Width             float64
	Height            float64
	Margin            *heatmap.Margin
	Colors            []string
	TickIntervalYears int
	PlaceholderColor  string
	EntranceDelay     *time.Duration
}

type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	Dataset struct {
		URL     string `yaml:"url"`
		Timeout string `yaml:"timeout"`
	} `yaml:"dataset"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Cache struct {
		Backend   string `yaml:"backend"`
		TTL       string `yaml:"ttl"`
		StaleTTL  string `yaml:"stale_ttl"`
		Memcached struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
	} `yaml:"cache"`

	Reliability struct {
		RetryMaxAttempts int    `yaml:"retry_max_attempts"`
		RetryBaseDelay   string `yaml:"retry_base_delay"`
		RetryMaxDelay    string `yaml:"retry_max_delay"`
		RateLimitRPS     int    `yaml:"rate_limit_rps"`
		RateLimitBurst   int    `yaml:"rate_limit_burst"`
		CircuitBreaker   struct {
			Enabled          *bool  `yaml:"enabled"`
			FailureThreshold int    `yaml:"failure_threshold"`
			SuccessThreshold int    `yaml:"success_threshold"`
			Timeout          string `yaml:"timeout"`
		} `yaml:"circuit_breaker"`
		Coalescing struct {
			Enabled *bool  `yaml:"enabled"`
			Timeout string `yaml:"timeout"`
		} `yaml:"coalescing"`
	} `yaml:"reliability"`

	Warming struct {
		Enabled  bool   `yaml:"enabled"`
		Interval string `yaml:"interval"`
	} `yaml:"warming"`

	Shutdown struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"shutdown"`

	Lifecycle struct {
		OverloadWindow       string `yaml:"overload_window"`
		OverloadThresholdPct int    `yaml:"overload_threshold_pct"`
		DegradedWindow       string `yaml:"degraded_window"`
		DegradedErrorPct     int    `yaml:"degraded_error_pct"`
	} `yaml:"lifecycle"`

	Chart struct {
		Title             string   `yaml:"title"`
		Width             float64  `yaml:"width"`
		Height            float64  `yaml:"height"`
		Colors            []string `yaml:"colors"`
		TickIntervalYears int      `yaml:"tick_interval_years"`
		PlaceholderColor  string   `yaml:"placeholder_color"`
		EntranceDelay     string   `yaml:"entrance_delay"`
		Margin            *struct {
			Top    float64 `yaml:"top"`
			Right  float64 `yaml:"right"`
			Bottom float64 `yaml:"bottom"`
			Left   float64 `yaml:"left"`
		} `yaml:"margin"`
	} `yaml:"chart"`
}

// Load reads config/{ENV_NAME}.yaml (default dev) under the working directory.
func Load() (*Config, error) {
	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	return LoadFile(filepath.Join(cwd, "config", env+".yaml"))
}

// LoadFile reads one YAML file, applies env overrides and defaults, and validates.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse builds a Config from YAML bytes plus env overrides.
func Parse(data []byte) (*Config, error) {
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg := &Config{}

	cfg.ServerPort = strings.TrimSpace(fc.Server.Port)
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}

	cfg.DatasetURL = firstNonEmpty(os.Getenv("DATASET_URL"), fc.Dataset.URL, DefaultDatasetURL)
	cfg.DatasetTimeout = parseDurationOrZero(fc.Dataset.Timeout, 5*time.Second)
	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 10*time.Second)

	cfg.CacheBackend = strings.ToLower(firstNonEmpty(os.Getenv("CACHE_BACKEND"), fc.Cache.Backend, "in_memory"))
	cfg.CacheTTL = parseDuration(fc.Cache.TTL, time.Hour)
	cfg.StaleCacheTTL = parseDurationOrZero(fc.Cache.StaleTTL, 24*time.Hour)
	cfg.MemcachedAddrs = firstNonEmpty(os.Getenv("MEMCACHED_ADDRS"), fc.Cache.Memcached.Addrs, "localhost:11211")
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = positiveOr(fc.Cache.Memcached.MaxIdleConns, 2)

	rel := fc.Reliability
	cfg.RetryAttempts = positiveOr(rel.RetryMaxAttempts, 3)
	cfg.RetryBaseDelay = parseDuration(rel.RetryBaseDelay, 100*time.Millisecond)
	cfg.RetryMaxDelay = parseDuration(rel.RetryMaxDelay, 2*time.Second)
	cfg.RateLimitRPS = positiveOr(rel.RateLimitRPS, 50)
	cfg.RateLimitBurst = positiveOr(rel.RateLimitBurst, 100)
	cfg.CircuitBreakerEnabled = boolOr(rel.CircuitBreaker.Enabled, true)
	cfg.CircuitBreakerFailureThreshold = positiveOr(rel.CircuitBreaker.FailureThreshold, 5)
	cfg.CircuitBreakerSuccessThreshold = positiveOr(rel.CircuitBreaker.SuccessThreshold, 2)
	cfg.CircuitBreakerTimeout = parseDuration(rel.CircuitBreaker.Timeout, 30*time.Second)
	cfg.CoalesceEnabled = boolOr(rel.Coalescing.Enabled, true)
	cfg.CoalesceTimeout = parseDuration(rel.Coalescing.Timeout, 15*time.Second)

	cfg.WarmingEnabled = fc.Warming.Enabled
	cfg.WarmingInterval = parseDurationOrZero(fc.Warming.Interval, 30*time.Minute)

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)

	lc := fc.Lifecycle
	cfg.OverloadWindow = parseDuration(lc.OverloadWindow, 60*time.Second)
	cfg.OverloadThresholdPct = positiveOr(lc.OverloadThresholdPct, 80)
	cfg.DegradedWindow = parseDuration(lc.DegradedWindow, 60*time.Second)
	cfg.DegradedErrorPct = positiveOr(lc.DegradedErrorPct, 50)

	ch := fc.Chart
	cfg.Chart = ChartConfig{
		Title:             strings.TrimSpace(ch.Title),
		Width:             ch.Width,
		Height:            ch.Height,
		Colors:            ch.Colors,
		TickIntervalYears: ch.TickIntervalYears,
		PlaceholderColor:  strings.TrimSpace(ch.PlaceholderColor),
	}
	if ch.Margin != nil {
		cfg.Chart.Margin = &heatmap.Margin{Top: ch.Margin.Top, Right: ch.Margin.Right, Bottom: ch.Margin.Bottom, Left: ch.Margin.Left}
	}
	if s := strings.TrimSpace(ch.EntranceDelay); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil {
			return nil, fmt.Errorf("chart.entrance_delay: %w", err)
		}
		cfg.Chart.EntranceDelay = &d
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Heatmap returns the chart settings as a heatmap.Config.
func (c *Config) Heatmap() heatmap.Config {
	hc := heatmap.DefaultConfig()
	ch := c.Chart
	if ch.Width > 0 {
		hc.Width = ch.Width
	}
	if ch.Height > 0 {
		hc.Height = ch.Height
	}
	if ch.Margin != nil {
		hc.Margin = *ch.Margin
	}
	if len(ch.Colors) > 0 {
		hc.Colors = append([]string(nil), ch.Colors...)
		hc.BucketCount = len(ch.Colors)
	}
	if ch.TickIntervalYears > 0 {
		hc.TickIntervalYears = ch.TickIntervalYears
	}
	if ch.PlaceholderColor != "" {
		hc.PlaceholderColor = ch.PlaceholderColor
	}
	if ch.EntranceDelay != nil {
		hc.EntranceDelay = *ch.EntranceDelay
	}
	return hc
}

// parseDuration parses s, falling back to defaultVal when s is empty,
// malformed, or not positive.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero is parseDuration that keeps an explicit zero.
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

func positiveOr(v, defaultVal int) int {
	if v <= 0 {
		return defaultVal
	}
	return v
}

func boolOr(v *bool, defaultVal bool) bool {
	if v == nil {
		return defaultVal
	}
	return *v
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// validate checks cross-field constraints. RequestTimeout is raised to cover
// the full retry budget of one dataset fetch.
func validate(cfg *Config) error {
	if cfg.DatasetTimeout <= 0 {
		return fmt.Errorf("dataset.timeout must be positive")
	}
	if cfg.RequestTimeout <= cfg.DatasetTimeout {
		cfg.RequestTimeout = cfg.DatasetTimeout + time.Second
	}
	if cfg.StaleCacheTTL < 0 {
		return fmt.Errorf("cache.stale_ttl must not be negative")
	}
	switch cfg.CacheBackend {
	case "in_memory", "memcached":
	default:
		return fmt.Errorf("cache.backend must be in_memory or memcached, got %q", cfg.CacheBackend)
	}
	if cfg.WarmingEnabled && cfg.WarmingInterval < 0 {
		return fmt.Errorf("warming.interval must not be negative")
	}
	if err := cfg.Heatmap().Validate(); err != nil {
		return fmt.Errorf("chart: %w", err)
	}
	return nil
}
