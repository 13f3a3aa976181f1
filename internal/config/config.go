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

	WeatherAPIKey     string
	WeatherCurrentURL string
	WeatherForecastURL string
	IconBaseURL       string
	WeatherAPITimeout time.Duration

	GeoDirectURL  string
	GeoZipURL     string
	GeoReverseURL string

	RequestTimeout time.Duration

	CacheBackend  string // "in_memory" or "memcached"
	CacheCapacity int
	CurrentTTL    time.Duration
	ForecastTTL   time.Duration
	GeoDirectTTL  time.Duration
	GeoReverseTTL time.Duration

	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	DatabasePath string

	RateLimitRPS    int
	RateLimitBurst  int
	CoalesceTimeout time.Duration

	ShutdownTimeout time.Duration

	HealthWindow   time.Duration
	HealthErrorPct int
}

type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	WeatherAPI struct {
		CurrentURL  string `yaml:"current_url"`
		ForecastURL string `yaml:"forecast_url"`
		IconBaseURL string `yaml:"icon_base_url"`
		Timeout     string `yaml:"timeout"`
	} `yaml:"weather_api"`

	Geocoding struct {
		DirectURL  string `yaml:"direct_url"`
		ZipURL     string `yaml:"zip_url"`
		ReverseURL string `yaml:"reverse_url"`
	} `yaml:"geocoding"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Cache struct {
		Backend       string `yaml:"backend"`
		Capacity      int    `yaml:"capacity"`
		CurrentTTL    string `yaml:"current_ttl"`
		ForecastTTL   string `yaml:"forecast_ttl"`
		GeoDirectTTL  string `yaml:"geo_direct_ttl"`
		GeoReverseTTL string `yaml:"geo_reverse_ttl"`
		Memcached     struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
	} `yaml:"cache"`

	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Reliability struct {
		RateLimitRPS    int    `yaml:"rate_limit_rps"`
		RateLimitBurst  int    `yaml:"rate_limit_burst"`
		CoalesceTimeout string `yaml:"coalesce_timeout"`
	} `yaml:"reliability"`

	Shutdown struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"shutdown"`

	Health struct {
		Window   string `yaml:"window"`
		ErrorPct int    `yaml:"error_pct"`
	} `yaml:"health"`
}

type secretsFile struct {
	WeatherAPIKey string `yaml:"weather_api_key"`
}

// Load reads configuration from config/{ENV_NAME}.yaml (default dev) and config/secrets.yaml.
// API key comes from WEATHER_API_KEY env or secrets file. Call from project root.
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

	cfg.WeatherAPIKey = os.Getenv("WEATHER_API_KEY")
	if cfg.WeatherAPIKey == "" {
		secretsPath := filepath.Join(cwd, "config", "secrets.yaml")
		secretsData, err := os.ReadFile(secretsPath)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read secrets file: %w", err)
			}
		} else {
			var sec secretsFile
			if err := yaml.Unmarshal(secretsData, &sec); err != nil {
				return nil, fmt.Errorf("parse secrets file: %w", err)
			}
			cfg.WeatherAPIKey = sec.WeatherAPIKey
		}
	}
	if cfg.WeatherAPIKey == "" {
		return nil, fmt.Errorf("WEATHER_API_KEY required (set env or config/secrets.yaml weather_api_key)")
	}

	cfg.WeatherCurrentURL = fc.WeatherAPI.CurrentURL
	if cfg.WeatherCurrentURL == "" {
		cfg.WeatherCurrentURL = "https://api.openweathermap.org/data/2.5/weather"
	}
	cfg.WeatherForecastURL = fc.WeatherAPI.ForecastURL
	if cfg.WeatherForecastURL == "" {
		cfg.WeatherForecastURL = "https://api.openweathermap.org/data/2.5/forecast"
	}
	cfg.IconBaseURL = fc.WeatherAPI.IconBaseURL
	if cfg.IconBaseURL == "" {
		cfg.IconBaseURL = "https://openweathermap.org/img/wn"
	}
	cfg.WeatherAPITimeout = parseDurationOrZero(fc.WeatherAPI.Timeout, 5*time.Second)

	cfg.GeoDirectURL = fc.Geocoding.DirectURL
	if cfg.GeoDirectURL == "" {
		cfg.GeoDirectURL = "https://api.openweathermap.org/geo/1.0/direct"
	}
	cfg.GeoZipURL = fc.Geocoding.ZipURL
	if cfg.GeoZipURL == "" {
		cfg.GeoZipURL = "https://api.openweathermap.org/geo/1.0/zip"
	}
	cfg.GeoReverseURL = fc.Geocoding.ReverseURL
	if cfg.GeoReverseURL == "" {
		cfg.GeoReverseURL = "https://api.openweathermap.org/geo/1.0/reverse"
	}

	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 10*time.Second)

	cfg.CacheBackend = strings.TrimSpace(strings.ToLower(os.Getenv("CACHE_BACKEND")))
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = strings.TrimSpace(strings.ToLower(fc.Cache.Backend))
	}
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = "in_memory"
	}
	cfg.CacheCapacity = fc.Cache.Capacity
	if cfg.CacheCapacity <= 0 {
		cfg.CacheCapacity = 1024
	}
	cfg.CurrentTTL = parseDuration(fc.Cache.CurrentTTL, 10*time.Minute)
	cfg.ForecastTTL = parseDuration(fc.Cache.ForecastTTL, 30*time.Minute)
	cfg.GeoDirectTTL = parseDuration(fc.Cache.GeoDirectTTL, 24*time.Hour)
	cfg.GeoReverseTTL = parseDuration(fc.Cache.GeoReverseTTL, 10*time.Minute)

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

	cfg.DatabasePath = strings.TrimSpace(os.Getenv("DATABASE_PATH"))
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = strings.TrimSpace(fc.Database.Path)
	}
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = "weatherhub.db"
	}

	cfg.RateLimitRPS = fc.Reliability.RateLimitRPS
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 100
	}
	cfg.RateLimitBurst = fc.Reliability.RateLimitBurst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 250
	}
	cfg.CoalesceTimeout = parseDurationOrZero(fc.Reliability.CoalesceTimeout, 10*time.Second)

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)

	cfg.HealthWindow = parseDuration(fc.Health.Window, 60*time.Second)
	cfg.HealthErrorPct = fc.Health.ErrorPct
	if cfg.HealthErrorPct <= 0 {
		cfg.HealthErrorPct = 50
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Returns zero or negative durations as-is (caller should handle fallback).
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

// validate performs post-load validation. The outer request timeout must
// leave room for an upstream call plus response writing.
func validate(cfg *Config) error {
	if cfg.WeatherAPITimeout <= 0 {
		return fmt.Errorf("weather_api.timeout must be positive")
	}
	if cfg.RequestTimeout <= cfg.WeatherAPITimeout {
		cfg.RequestTimeout = cfg.WeatherAPITimeout + time.Second
	}
	switch cfg.CacheBackend {
	case "in_memory", "memcached":
		// valid
	default:
		return fmt.Errorf("cache.backend must be in_memory or memcached, got %q", cfg.CacheBackend)
	}
	return nil
}
