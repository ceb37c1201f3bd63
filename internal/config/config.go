package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/snapetech/tribute/internal/httpclient"
)

// Config holds server, preload and mount settings.
// Load from env; main applies flag overrides on top.
type Config struct {
	// Server
	Addr        string // listen address, e.g. :8080
	MaxConns    int    // concurrent connection cap; <0 = unlimited
	MediaPrefix string // URL path ready locators are served under

	// Catalog
	CatalogPath string // .json / .toml / .yaml; "" = built-in catalog
	Origin      string // base URL relative locators are resolved against

	// Paths
	CacheDir   string // spill dir for downloaded assets; "" = keep in memory only
	DBPath     string // sqlite session ledger; "" = no ledger
	MountPoint string // FUSE mount for the mount subcommand
	AllowOther bool

	// Fetch
	FetchTimeout    time.Duration
	FetchRetry      bool    // retry once on 429/5xx
	FetchRate       float64 // requests per second across all hosts; 0 = unlimited
	FetchMaxBytes   int64
	HostConcurrency int

	// Validation and reveal
	FFprobePath       string
	VideoProbeTimeout time.Duration
	RevealTimeout     time.Duration

	SkipHealth bool // skip the origin reachability check before preloading
}

// Load reads config from environment. Call LoadEnvFile(".env") before Load() to use a .env file.
func Load() *Config {
	c := &Config{
		Addr:              getEnv("TRIBUTE_ADDR", ":8080"),
		MaxConns:          getEnvInt("TRIBUTE_MAX_CONNS", 256),
		MediaPrefix:       getEnv("TRIBUTE_MEDIA_PREFIX", "/media"),
		CatalogPath:       os.Getenv("TRIBUTE_CATALOG"),
		Origin:            strings.TrimSpace(os.Getenv("TRIBUTE_ORIGIN")),
		CacheDir:          os.Getenv("TRIBUTE_CACHE_DIR"),
		DBPath:            os.Getenv("TRIBUTE_DB"),
		MountPoint:        getEnv("TRIBUTE_MOUNT", "/mnt/tribute"),
		AllowOther:        getEnvBool("TRIBUTE_MOUNT_ALLOW_OTHER", false),
		FetchTimeout:      getEnvDuration("TRIBUTE_FETCH_TIMEOUT", httpclient.DefaultTimeout),
		FetchRetry:        getEnvBool("TRIBUTE_FETCH_RETRY", false),
		FetchRate:         getEnvFloat("TRIBUTE_FETCH_RATE", 0),
		FetchMaxBytes:     getEnvInt64("TRIBUTE_FETCH_MAX_BYTES", 256<<20),
		HostConcurrency:   getEnvInt("TRIBUTE_HOST_CONCURRENCY", 6),
		FFprobePath:       getEnv("TRIBUTE_FFPROBE", "ffprobe"),
		VideoProbeTimeout: getEnvDuration("TRIBUTE_VIDEO_PROBE_TIMEOUT", 10*time.Second),
		RevealTimeout:     getEnvDuration("TRIBUTE_REVEAL_TIMEOUT", 90*time.Second),
		SkipHealth:        getEnvBool("TRIBUTE_SKIP_HEALTH", false),
	}
	if c.HostConcurrency <= 0 {
		c.HostConcurrency = 6
	}
	if c.FetchMaxBytes <= 0 {
		c.FetchMaxBytes = 256 << 20
	}
	if c.VideoProbeTimeout <= 0 {
		c.VideoProbeTimeout = 10 * time.Second
	}
	if c.RevealTimeout <= 0 {
		c.RevealTimeout = 90 * time.Second
	}
	if c.FetchRate < 0 {
		c.FetchRate = 0
	}
	return c
}

// RetryPolicy is the zero policy unless FetchRetry is set.
func (c *Config) RetryPolicy() httpclient.RetryPolicy {
	if !c.FetchRetry {
		return httpclient.RetryPolicy{}
	}
	return httpclient.DefaultRetryPolicy
}

// Limiter returns nil when FetchRate is 0. Burst lets one wave of per-host
// slots start at once.
func (c *Config) Limiter() *rate.Limiter {
	if c.FetchRate <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(c.FetchRate), c.HostConcurrency)
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return defaultVal
		}
		return n
	}
	return defaultVal
}

// getEnvInt64 accepts plain byte counts and the suffixes k, m, g (binary).
func getEnvInt64(key string, defaultVal int64) int64 {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if v == "" {
		return defaultVal
	}
	mult := int64(1)
	switch {
	case strings.HasSuffix(v, "k"):
		mult, v = 1<<10, strings.TrimSuffix(v, "k")
	case strings.HasSuffix(v, "m"):
		mult, v = 1<<20, strings.TrimSuffix(v, "m")
	case strings.HasSuffix(v, "g"):
		mult, v = 1<<30, strings.TrimSuffix(v, "g")
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return n * mult
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return defaultVal
		}
		return f
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "1" || strings.EqualFold(v, "true") || strings.EqualFold(v, "yes")
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
