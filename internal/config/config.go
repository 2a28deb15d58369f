// Package config handles application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Server settings
	Port    int
	BaseURL string

	// Database
	DatabaseURL string

	// Object Storage (S3-compatible: Tigris, MinIO, AWS)
	StorageEnabled   bool
	StorageEndpoint  string // AWS_ENDPOINT_URL_S3
	StorageAccessKey string // AWS_ACCESS_KEY_ID
	StorageSecretKey string // AWS_SECRET_ACCESS_KEY
	StorageBucket    string
	StorageRegion    string

	// Archive pipeline
	WorkDir         string        // scratch space for handler downloads
	MaxRetries      int           // retry ceiling per archive (default 4)
	RetryBaseDelay  time.Duration // backoff ladder base (default 5m)
	WorkerCount     int           // concurrent archive workers
	PollInterval    time.Duration // how often workers poll for eligible archives
	BatchSize       int           // archives claimed per scheduler pass
	FetchTimeout    time.Duration // per-request timeout in the generic handler
	ShutdownGrace   time.Duration // max wait for in-flight archives on SIGTERM
	ExcludedDomains []string      // never archive links on these domains

	// Startup recovery
	RecoverTodaysFailures bool // re-enqueue same-day failures on boot

	// Handler credentials
	CookieFiles map[string]string // handler site id -> Netscape cookie file path

	// Submissions
	SubmissionRateLimit  int           // per-IP submissions per hour
	SubmissionDedupeTTL  time.Duration // reject resubmission of same URL within this window
	SubmissionPollPeriod time.Duration // background ingest cadence

	// RSS forum feed
	FeedURL          string
	FeedPollInterval time.Duration
	FeedEnabled      bool

	// CORS
	CORSOrigins []string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnvInt("PORT", 8080),
		BaseURL:     getEnv("BASE_URL", "http://localhost:8080"),
		DatabaseURL: getEnv("DATABASE_URL", "file:linkarchive.db"),

		StorageEndpoint:  getEnv("AWS_ENDPOINT_URL_S3", ""),
		StorageAccessKey: getEnv("AWS_ACCESS_KEY_ID", ""),
		StorageSecretKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
		StorageBucket:    getEnvWithFallback("BUCKET_NAME", "STORAGE_BUCKET", ""),
		StorageRegion:    getEnv("AWS_REGION", "auto"),

		WorkDir:        getEnv("WORK_DIR", os.TempDir()),
		MaxRetries:     getEnvInt("MAX_RETRIES", 4),
		RetryBaseDelay: getEnvDuration("RETRY_BASE_DELAY", 5*time.Minute),
		WorkerCount:    getEnvInt("WORKER_COUNT", 2),
		PollInterval:   getEnvDuration("WORKER_POLL_INTERVAL", 15*time.Second),
		BatchSize:      getEnvInt("BATCH_SIZE", 10),
		FetchTimeout:   getEnvDuration("FETCH_TIMEOUT", 60*time.Second),
		ShutdownGrace:  getEnvDuration("SHUTDOWN_GRACE_PERIOD", 30*time.Second),

		RecoverTodaysFailures: getEnvBool("RECOVER_TODAYS_FAILURES", true),

		SubmissionRateLimit:  getEnvInt("SUBMISSION_RATE_LIMIT", 60),
		SubmissionDedupeTTL:  getEnvDuration("SUBMISSION_DEDUPE_TTL", 24*time.Hour),
		SubmissionPollPeriod: getEnvDuration("SUBMISSION_POLL_PERIOD", 10*time.Second),

		FeedURL:          getEnv("FEED_URL", ""),
		FeedPollInterval: getEnvDuration("FEED_POLL_INTERVAL", 10*time.Minute),

		CORSOrigins: getEnvSlice("CORS_ORIGINS", []string{"http://localhost:3000"}),
	}

	cfg.StorageEnabled = cfg.StorageBucket != "" && cfg.StorageEndpoint != ""
	cfg.FeedEnabled = cfg.FeedURL != ""

	cfg.ExcludedDomains = getEnvSlice("EXCLUDED_DOMAINS", nil)
	for i, d := range cfg.ExcludedDomains {
		cfg.ExcludedDomains[i] = strings.ToLower(strings.TrimSpace(d))
	}

	// COOKIE_FILES is "site=path" pairs, e.g. "youtube=/data/yt.txt,twitter=/data/tw.txt"
	cfg.CookieFiles = map[string]string{}
	for _, pair := range getEnvSlice("COOKIE_FILES", nil) {
		site, path, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("COOKIE_FILES entry %q is not site=path", pair)
		}
		cfg.CookieFiles[strings.TrimSpace(site)] = strings.TrimSpace(path)
	}

	if cfg.MaxRetries < 1 {
		return nil, fmt.Errorf("MAX_RETRIES must be at least 1, got %d", cfg.MaxRetries)
	}
	if cfg.WorkerCount < 1 {
		return nil, fmt.Errorf("WORKER_COUNT must be at least 1, got %d", cfg.WorkerCount)
	}

	return cfg, nil
}

// DomainExcluded reports whether a domain is on the exclusion list.
// Subdomains of an excluded domain are excluded too.
func (c *Config) DomainExcluded(domain string) bool {
	domain = strings.ToLower(domain)
	for _, d := range c.ExcludedDomains {
		if domain == d || strings.HasSuffix(domain, "."+d) {
			return true
		}
	}
	return false
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		lower := strings.ToLower(value)
		return lower == "true" || lower == "1" || lower == "yes"
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}

func getEnvWithFallback(primary, fallback, defaultValue string) string {
	if value := os.Getenv(primary); value != "" {
		return value
	}
	if value := os.Getenv(fallback); value != "" {
		return value
	}
	return defaultValue
}
