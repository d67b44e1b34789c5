package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Environment variable name for exposing the full statistics history
const EnvDevMode = "DEV_MODE"

var (
	errInvalidPort      = errors.New("config: port must be 1-65535")
	errSamePorts        = errors.New("config: API_PORT and UI_PORT must differ")
	errInvalidTimeout   = errors.New("config: FETCH_TIMEOUT must be positive")
	errInvalidRedirects = errors.New("config: FETCH_MAX_REDIRECTS must be 1-50")
	errInvalidBodyLimit = errors.New("config: FETCH_MAX_BODY_BYTES must be positive")
	errInvalidRateLimit = errors.New("config: RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	errInvalidProxy     = errors.New("config: TRUSTED_PROXIES entries must be IPs or CIDRs")
)

// envFiles are tried in order; variables already set in the process win.
var envFiles = []string{".env.development", ".env"}

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Fetch     FetchConfig
	RateLimit RateLimitConfig
	Log       LogConfig
	Stats     StatsConfig
	DevMode   bool

	// EnvFiles lists the dotenv files that were found and loaded.
	EnvFiles []string
}

// ServerConfig controls the API and UI listeners.
type ServerConfig struct {
	Host    string // default: "127.0.0.1"
	APIPort int    // default: 8420
	UIPort  int    // default: 8421
	Mode    string // gin mode: "debug", "release", "test"; default: "release"

	// TrustedProxies may set X-Forwarded-For. Empty means the peer address is the client.
	TrustedProxies []string
}

// FetchConfig controls page retrieval.
type FetchConfig struct {
	Timeout      time.Duration // default: 10s, covers the whole redirect chain
	MaxRedirects int           // default: 10
	MaxBodyBytes int64         // default: 10 MiB
	UserAgent    string

	// BlockPrivateNetworks rejects loopback, private and reserved addresses at dial time.
	BlockPrivateNetworks bool // default: false
}

// RateLimitConfig controls per-client rate limiting on the API.
type RateLimitConfig struct {
	RequestsPerSecond float64 // default: 2
	Burst             int     // default: 5
}

// LogConfig controls logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "text"
}

// StatsConfig controls usage statistics persistence.
type StatsConfig struct {
	Dir string // default: "data"
}

// Load reads dotenv files, then configuration from environment variables with sane defaults.
func Load() (*Config, error) {
	loaded := loadEnvFiles(envFiles...)

	cfg := &Config{
		Server: ServerConfig{
			Host:    envOr("HOST", "127.0.0.1"),
			APIPort: envIntOr("API_PORT", envIntOr("PORT", 8420)),
			UIPort:  envIntOr("UI_PORT", 8421),
			Mode:    envOr("GIN_MODE", "release"),

			TrustedProxies: envListOr("TRUSTED_PROXIES", nil),
		},
		Fetch: FetchConfig{
			Timeout:              envDurationOr("FETCH_TIMEOUT", 10*time.Second),
			MaxRedirects:         envIntOr("FETCH_MAX_REDIRECTS", 10),
			MaxBodyBytes:         int64(envIntOr("FETCH_MAX_BODY_BYTES", 10<<20)),
			UserAgent:            envOr("FETCH_USER_AGENT", "SEOInspector/1.0"),
			BlockPrivateNetworks: envBoolOr("FETCH_BLOCK_PRIVATE", false),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("RATE_LIMIT_RPS", 2),
			Burst:             envIntOr("RATE_LIMIT_BURST", 5),
		},
		Log: LogConfig{
			Level:  envOr("LOG_LEVEL", "info"),
			Format: envOr("LOG_FORMAT", "text"),
		},
		Stats: StatsConfig{
			Dir: envOr("STATS_DIR", "data"),
		},
		DevMode:  envBoolOr(EnvDevMode, false),
		EnvFiles: loaded,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges that would otherwise fail late at runtime.
func (c *Config) Validate() error {
	for _, p := range []int{c.Server.APIPort, c.Server.UIPort} {
		if p < 1 || p > 65535 {
			return fmt.Errorf("%w: got %d", errInvalidPort, p)
		}
	}
	if c.Server.APIPort == c.Server.UIPort {
		return fmt.Errorf("%w: both %d", errSamePorts, c.Server.APIPort)
	}
	for _, p := range c.Server.TrustedProxies {
		if net.ParseIP(p) == nil {
			if _, _, err := net.ParseCIDR(p); err != nil {
				return fmt.Errorf("%w: got %q", errInvalidProxy, p)
			}
		}
	}
	if c.Fetch.Timeout <= 0 {
		return fmt.Errorf("%w: got %s", errInvalidTimeout, c.Fetch.Timeout)
	}
	if c.Fetch.MaxRedirects < 1 || c.Fetch.MaxRedirects > 50 {
		return fmt.Errorf("%w: got %d", errInvalidRedirects, c.Fetch.MaxRedirects)
	}
	if c.Fetch.MaxBodyBytes <= 0 {
		return fmt.Errorf("%w: got %d", errInvalidBodyLimit, c.Fetch.MaxBodyBytes)
	}
	if c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst < 1 {
		return fmt.Errorf("%w: got %g/%d", errInvalidRateLimit, c.RateLimit.RequestsPerSecond, c.RateLimit.Burst)
	}
	return nil
}

// APIAddr is the listen address of the API server.
func (c *Config) APIAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.APIPort)
}

// UIAddr is the listen address of the UI server.
func (c *Config) UIAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.UIPort)
}

func loadEnvFiles(files ...string) []string {
	var loaded []string
	for _, f := range files {
		if err := godotenv.Load(f); err == nil {
			loaded = append(loaded, f)
		}
	}
	return loaded
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envListOr(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
