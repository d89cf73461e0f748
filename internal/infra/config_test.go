package infra

import (
	"testing"
	"time"

	"github.com/oclite/studio/internal/secrets"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("GENERATION_API_KEY", "plain-key")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.Port != "8080" {
		t.Fatalf("unexpected port: %s", cfg.Port)
	}
	if cfg.PollInterval != 2*time.Second {
		t.Fatalf("unexpected poll interval: %s", cfg.PollInterval)
	}
	if cfg.MaxPolls != 30 {
		t.Fatalf("unexpected max polls: %d", cfg.MaxPolls)
	}
	if cfg.CacheTTL != 30*time.Minute {
		t.Fatalf("unexpected cache ttl: %s", cfg.CacheTTL)
	}
	if cfg.RateLimitOps != 10 || cfg.RateLimitWindow != time.Minute {
		t.Fatalf("unexpected rate limit: %d per %s", cfg.RateLimitOps, cfg.RateLimitWindow)
	}
	if cfg.CacheDir == "" {
		t.Fatal("cache dir should default to a user cache location")
	}
}

func TestLoadConfigRequiresGenerationKey(t *testing.T) {
	t.Setenv("GENERATION_API_KEY", "")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected an error without GENERATION_API_KEY")
	}
}

func TestLoadConfigDecodesObfuscatedKeys(t *testing.T) {
	encoded, err := secrets.Encode("real-cdn-key", "unlock")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	t.Setenv("GENERATION_API_KEY", "plain-key")
	t.Setenv("CDN_API_KEY", encoded)
	t.Setenv("STUDIO_SECRET_KEY", "unlock")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.CDNAPIKey != "real-cdn-key" {
		t.Fatalf("cdn key not decoded: %q", cfg.CDNAPIKey)
	}
	if cfg.GenerationAPIKey != "plain-key" {
		t.Fatalf("plain key must pass through: %q", cfg.GenerationAPIKey)
	}
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("STUDIO_TEST_STR", "value")
	t.Setenv("STUDIO_TEST_INT", "7")
	t.Setenv("STUDIO_TEST_BOOL", "true")

	if got := getEnv("STUDIO_TEST_STR", "fallback"); got != "value" {
		t.Fatalf("getEnv = %q", got)
	}
	if got := getEnv("STUDIO_TEST_MISSING", "fallback"); got != "fallback" {
		t.Fatalf("getEnv fallback = %q", got)
	}
	if got := getEnvInt("STUDIO_TEST_INT", 1); got != 7 {
		t.Fatalf("getEnvInt = %d", got)
	}
	if got := getEnvInt("STUDIO_TEST_STR", 1); got != 1 {
		t.Fatalf("getEnvInt non-numeric fallback = %d", got)
	}
	if got := getEnvBool("STUDIO_TEST_BOOL", false); !got {
		t.Fatal("getEnvBool should parse true")
	}
}
