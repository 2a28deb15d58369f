package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.MaxRetries != 4 {
		t.Errorf("MaxRetries = %d, want 4", cfg.MaxRetries)
	}
	if cfg.RetryBaseDelay != 5*time.Minute {
		t.Errorf("RetryBaseDelay = %v, want 5m", cfg.RetryBaseDelay)
	}
	if cfg.WorkerCount != 2 {
		t.Errorf("WorkerCount = %d, want 2", cfg.WorkerCount)
	}
	if !cfg.RecoverTodaysFailures {
		t.Error("RecoverTodaysFailures should default to true")
	}
	if cfg.StorageEnabled {
		t.Error("StorageEnabled should be false without bucket and endpoint")
	}
	if cfg.FeedEnabled {
		t.Error("FeedEnabled should be false without FEED_URL")
	}
	if cfg.SubmissionDedupeTTL != 24*time.Hour {
		t.Errorf("SubmissionDedupeTTL = %v, want 24h", cfg.SubmissionDedupeTTL)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("MAX_RETRIES", "6")
	t.Setenv("RETRY_BASE_DELAY", "2m")
	t.Setenv("EXCLUDED_DOMAINS", "Spam.Example, tracker.example")
	t.Setenv("COOKIE_FILES", "youtube=/data/yt.txt,twitter=/data/tw.txt")
	t.Setenv("BUCKET_NAME", "archive-bucket")
	t.Setenv("AWS_ENDPOINT_URL_S3", "https://fly.storage.tigris.dev")
	t.Setenv("FEED_URL", "https://forum.example.com/posts.rss")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.MaxRetries != 6 {
		t.Errorf("MaxRetries = %d, want 6", cfg.MaxRetries)
	}
	if cfg.RetryBaseDelay != 2*time.Minute {
		t.Errorf("RetryBaseDelay = %v, want 2m", cfg.RetryBaseDelay)
	}
	if len(cfg.ExcludedDomains) != 2 || cfg.ExcludedDomains[0] != "spam.example" {
		t.Errorf("ExcludedDomains = %v, want lowercased trimmed entries", cfg.ExcludedDomains)
	}
	if cfg.CookieFiles["youtube"] != "/data/yt.txt" || cfg.CookieFiles["twitter"] != "/data/tw.txt" {
		t.Errorf("CookieFiles = %v", cfg.CookieFiles)
	}
	if !cfg.StorageEnabled {
		t.Error("StorageEnabled should be true with bucket and endpoint set")
	}
	if !cfg.FeedEnabled {
		t.Error("FeedEnabled should be true with FEED_URL set")
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Run("zero max retries", func(t *testing.T) {
		t.Setenv("MAX_RETRIES", "0")
		if _, err := Load(); err == nil {
			t.Error("Load() accepted MAX_RETRIES=0")
		}
	})

	t.Run("malformed cookie files", func(t *testing.T) {
		t.Setenv("COOKIE_FILES", "just-a-path-no-site")
		if _, err := Load(); err == nil {
			t.Error("Load() accepted malformed COOKIE_FILES")
		}
	})
}

func TestDomainExcluded(t *testing.T) {
	cfg := &Config{ExcludedDomains: []string{"spam.example", "ads.example"}}

	tests := []struct {
		domain string
		want   bool
	}{
		{"spam.example", true},
		{"SPAM.EXAMPLE", true},
		{"cdn.spam.example", true},
		{"deep.cdn.spam.example", true},
		{"notspam.example", false},
		{"spam.example.org", false},
		{"example.com", false},
	}
	for _, tt := range tests {
		if got := cfg.DomainExcluded(tt.domain); got != tt.want {
			t.Errorf("DomainExcluded(%q) = %v, want %v", tt.domain, got, tt.want)
		}
	}
}

func TestGetEnvDuration(t *testing.T) {
	t.Run("valid duration", func(t *testing.T) {
		t.Setenv("TEST_DURATION", "90s")
		if got := getEnvDuration("TEST_DURATION", time.Minute); got != 90*time.Second {
			t.Errorf("getEnvDuration() = %v, want 90s", got)
		}
	})

	t.Run("invalid duration falls back", func(t *testing.T) {
		t.Setenv("TEST_DURATION_BAD", "soon")
		if got := getEnvDuration("TEST_DURATION_BAD", time.Minute); got != time.Minute {
			t.Errorf("getEnvDuration() = %v, want default", got)
		}
	})
}
