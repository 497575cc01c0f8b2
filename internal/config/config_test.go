package config

import (
	"strings"
	"testing"

	"github.com/spf13/viper"
)

func TestLoadConfig_AppliesDefaults(t *testing.T) {
	viper.Reset()
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/buddypass")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}

	if cfg.ServerPort != "8080" {
		t.Errorf("expected default server port 8080, got %s", cfg.ServerPort)
	}
	if cfg.EventExchange != "buddypass.events" {
		t.Errorf("expected default event exchange buddypass.events, got %s", cfg.EventExchange)
	}
	if cfg.RedisRateLimitPrefix != "buddypass:rate_limit" {
		t.Errorf("expected default rate limit prefix, got %s", cfg.RedisRateLimitPrefix)
	}
	if cfg.SlotRequestRateLimitPerMinute != 30 {
		t.Errorf("expected default rate limit of 30, got %d", cfg.SlotRequestRateLimitPerMinute)
	}
	if cfg.ReplenishJobSchedule != "* * * * *" {
		t.Errorf("expected every-minute default schedule, got %s", cfg.ReplenishJobSchedule)
	}
	if cfg.ReplenishBatchSize != 100 {
		t.Errorf("expected default batch size 100, got %d", cfg.ReplenishBatchSize)
	}
}

func TestLoadConfig_ReadsEnvironmentOverrides(t *testing.T) {
	viper.Reset()
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/buddypass")
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("SLOT_REQUEST_RATE_LIMIT_PER_MINUTE", "5")
	t.Setenv("REPLENISH_JOB_SCHEDULE", "*/5 * * * *")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}

	if cfg.ServerPort != "9090" {
		t.Errorf("expected server port 9090, got %s", cfg.ServerPort)
	}
	if cfg.SlotRequestRateLimitPerMinute != 5 {
		t.Errorf("expected rate limit of 5, got %d", cfg.SlotRequestRateLimitPerMinute)
	}
	if cfg.ReplenishJobSchedule != "*/5 * * * *" {
		t.Errorf("expected */5 schedule, got %s", cfg.ReplenishJobSchedule)
	}
}

func TestLoadConfig_RequiresDatabaseURL(t *testing.T) {
	viper.Reset()
	t.Setenv("DATABASE_URL", "")

	_, err := LoadConfig(t.TempDir())
	if err == nil {
		t.Fatal("expected an error when DATABASE_URL is missing")
	}
	if !strings.Contains(err.Error(), "DATABASE_URL") {
		t.Fatalf("expected the error to name DATABASE_URL, got %v", err)
	}
}

func TestLoadConfig_DisablesNegativeRateLimit(t *testing.T) {
	viper.Reset()
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/buddypass")
	t.Setenv("SLOT_REQUEST_RATE_LIMIT_PER_MINUTE", "-1")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.SlotRequestRateLimitPerMinute != 0 {
		t.Fatalf("expected negative rate limit to disable throttling, got %d", cfg.SlotRequestRateLimitPerMinute)
	}
}
