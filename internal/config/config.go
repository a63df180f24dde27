package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds service configuration loaded from YAML and env.
type Config struct {
	ServerPort string

	BackendURL     string
	BackendTimeout time.Duration

	OpenMeteoArchiveURL  string
	OpenMeteoForecastURL string
	OpenMeteoTimeout     time.Duration

	RequestTimeout time.Duration
	CacheTTL       time.Duration
	CacheBackend   string // "in_memory" or "memcached"

	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	RateLimitRPS   int
	RateLimitBurst int

	CircuitBreakerEnabled          bool
	CircuitBreakerFailureThreshold int
	CircuitBreakerSuccessThreshold int
	CircuitBreakerTimeout          time.Duration

	ShutdownTimeout               time.Duration
	ShutdownInFlightTimeout       time.Duration
	ShutdownInFlightCheckInterval time.Duration

	HealthWindow               time.Duration
	OverloadThresholdPct       int
	SyntheticShareThresholdPct float64

	YearFrom int
	YearTo   int

	TrackedCells []string
	NodeCatalog  []string

	FeedbackPath string
}

type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	Backend struct {
		URL     string `yaml:"url"`
		Timeout string `yaml:"timeout"`
	} `yaml:"backend"`

	OpenMeteo struct {
		ArchiveURL  string `yaml:"archive_url"`
		ForecastURL string `yaml:"forecast_url"`
		Timeout     string `yaml:"timeout"`
	} `yaml:"open_meteo"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Cache struct {
		Backend   string `yaml:"backend"`
		TTL       string `yaml:"ttl"`
		Memcached struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
	} `yaml:"cache"`

	Reliability struct {
		RateLimitRPS   int `yaml:"rate_limit_rps"`
		RateLimitBurst int `yaml:"rate_limit_burst"`
		CircuitBreaker struct {
			Enabled          *bool  `yaml:"enabled"`
			FailureThreshold int    `yaml:"failure_threshold"`
			SuccessThreshold int    `yaml:"success_threshold"`
			Timeout          string `yaml:"timeout"`
		} `yaml:"circuit_breaker"`
	} `yaml:"reliability"`

	Shutdown struct {
		Timeout               string `yaml:"timeout"`
		InFlightTimeout       string `yaml:"in_flight_timeout"`
		InFlightCheckInterval string `yaml:"in_flight_check_interval"`
	} `yaml:"shutdown"`

	Health struct {
		Window                     string  `yaml:"window"`
		OverloadThresholdPct       int     `yaml:"overload_threshold_pct"`
		SyntheticShareThresholdPct float64 `yaml:"synthetic_share_threshold_pct"`
	} `yaml:"health"`

	Dataset struct {
		YearFrom    int      `yaml:"year_from"`
		YearTo      int      `yaml:"year_to"`
		NodeCatalog []string `yaml:"node_catalog"`
	} `yaml:"dataset"`

	Metrics struct {
		TrackedCells []string `yaml:"tracked_cells"`
	} `yaml:"metrics"`

	Feedback struct {
		Path string `yaml:"path"`
	} `yaml:"feedback"`
}

// Load reads configuration from config/{ENV_NAME}.yaml (default dev).
// BACKEND_URL and CACHE_BACKEND env vars override the file. Call from
// project root.
func Load() (*Config, error) {
	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	configPath := filepath.Join(cwd, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg := &Config{}

	cfg.ServerPort = fc.Server.Port
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}

	cfg.BackendURL = strings.TrimSpace(os.Getenv("BACKEND_URL"))
	if cfg.BackendURL == "" {
		cfg.BackendURL = strings.TrimSpace(fc.Backend.URL)
	}
	cfg.BackendTimeout = parseDuration(fc.Backend.Timeout, 2*time.Second)

	cfg.OpenMeteoArchiveURL = strings.TrimSpace(fc.OpenMeteo.ArchiveURL)
	if cfg.OpenMeteoArchiveURL == "" {
		cfg.OpenMeteoArchiveURL = "https://archive-api.open-meteo.com/v1/archive"
	}
	cfg.OpenMeteoForecastURL = strings.TrimSpace(fc.OpenMeteo.ForecastURL)
	if cfg.OpenMeteoForecastURL == "" {
		cfg.OpenMeteoForecastURL = "https://api.open-meteo.com/v1/forecast"
	}
	cfg.OpenMeteoTimeout = parseDuration(fc.OpenMeteo.Timeout, 2*time.Second)

	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 10*time.Second)
	cfg.CacheTTL = parseDuration(fc.Cache.TTL, 5*time.Minute)
	cfg.CacheBackend = strings.TrimSpace(strings.ToLower(os.Getenv("CACHE_BACKEND")))
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = strings.TrimSpace(strings.ToLower(fc.Cache.Backend))
	}
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = "in_memory"
	}
	cfg.MemcachedAddrs = strings.TrimSpace(os.Getenv("MEMCACHED_ADDRS"))
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = strings.TrimSpace(fc.Cache.Memcached.Addrs)
	}
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = "localhost:11211"
	}
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.Cache.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}

	cfg.RateLimitRPS = fc.Reliability.RateLimitRPS
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 100
	}
	cfg.RateLimitBurst = fc.Reliability.RateLimitBurst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 250
	}

	cfg.CircuitBreakerEnabled = true
	if fc.Reliability.CircuitBreaker.Enabled != nil {
		cfg.CircuitBreakerEnabled = *fc.Reliability.CircuitBreaker.Enabled
	}
	cfg.CircuitBreakerFailureThreshold = fc.Reliability.CircuitBreaker.FailureThreshold
	if cfg.CircuitBreakerFailureThreshold <= 0 {
		cfg.CircuitBreakerFailureThreshold = 5
	}
	cfg.CircuitBreakerSuccessThreshold = fc.Reliability.CircuitBreaker.SuccessThreshold
	if cfg.CircuitBreakerSuccessThreshold <= 0 {
		cfg.CircuitBreakerSuccessThreshold = 2
	}
	cfg.CircuitBreakerTimeout = parseDuration(fc.Reliability.CircuitBreaker.Timeout, 30*time.Second)

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)
	cfg.ShutdownInFlightTimeout = parseDuration(fc.Shutdown.InFlightTimeout, 10*time.Second)
	cfg.ShutdownInFlightCheckInterval = parseDuration(fc.Shutdown.InFlightCheckInterval, 100*time.Millisecond)

	cfg.HealthWindow = parseDuration(fc.Health.Window, 60*time.Second)
	cfg.OverloadThresholdPct = fc.Health.OverloadThresholdPct
	if cfg.OverloadThresholdPct <= 0 {
		cfg.OverloadThresholdPct = 80
	}
	cfg.SyntheticShareThresholdPct = fc.Health.SyntheticShareThresholdPct
	if cfg.SyntheticShareThresholdPct <= 0 {
		cfg.SyntheticShareThresholdPct = 90
	}

	cfg.YearFrom = fc.Dataset.YearFrom
	if cfg.YearFrom == 0 {
		cfg.YearFrom = 2021
	}
	cfg.YearTo = fc.Dataset.YearTo
	if cfg.YearTo == 0 {
		cfg.YearTo = time.Now().UTC().Year()
	}
	cfg.NodeCatalog = fc.Dataset.NodeCatalog
	cfg.TrackedCells = fc.Metrics.TrackedCells
	cfg.FeedbackPath = strings.TrimSpace(fc.Feedback.Path)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parseDuration parses a duration string and returns defaultVal on empty
// input, parse error, or a non-positive result.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}

// validate performs post-load validation of configuration values. The
// request timeout must outlast one full pass of the fallback chain
// (backend + two weather stages), otherwise every miss degrades to
// synthesis.
func validate(cfg *Config) error {
	chain := cfg.BackendTimeout + 2*cfg.OpenMeteoTimeout
	if cfg.RequestTimeout <= chain {
		cfg.RequestTimeout = chain + time.Second
	}
	switch cfg.CacheBackend {
	case "in_memory", "memcached":
		// valid
	default:
		return fmt.Errorf("cache.backend must be in_memory or memcached, got %q", cfg.CacheBackend)
	}
	if cfg.YearFrom > cfg.YearTo {
		return fmt.Errorf("dataset.year_from %d exceeds year_to %d", cfg.YearFrom, cfg.YearTo)
	}
	return nil
}
