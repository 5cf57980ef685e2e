package config

import (
	"testing"
	"time"
)

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
}

func TestLoadSplitsKafkaBrokers(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", " kafka-1:9092, ,kafka-2:9092 ")

	cfg := Load()
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[0] != "kafka-1:9092" || cfg.KafkaBrokers[1] != "kafka-2:9092" {
		t.Fatalf("unexpected brokers %q", cfg.KafkaBrokers)
	}
}

func TestLoadFallsBackOnInvalidNumbers(t *testing.T) {
	t.Setenv("DASHBOARD_CACHE_TTL_SECONDS", "abc")
	t.Setenv("ACCESS_TOKEN_TTL_MINUTES", "-5")
	t.Setenv("NOTIFIER_WORKERS", "0")
	t.Setenv("KAFKA_BROKERS", "")

	cfg := Load()
	if cfg.DashboardCacheTTLSeconds != 30 {
		t.Fatalf("expected cache ttl fallback 30, got %d", cfg.DashboardCacheTTLSeconds)
	}
	if cfg.AccessTokenTTLMinutes != 480 {
		t.Fatalf("expected token ttl fallback 480, got %d", cfg.AccessTokenTTLMinutes)
	}
	if cfg.NotifierWorkers != 4 {
		t.Fatalf("expected 4 notifier workers, got %d", cfg.NotifierWorkers)
	}
	if len(cfg.KafkaBrokers) != 0 {
		t.Fatalf("expected no brokers, got %q", cfg.KafkaBrokers)
	}
}

func TestLocationFallsBackToUTC(t *testing.T) {
	cfg := Config{ReportTimezone: "Nowhere/Invalid"}
	if cfg.Location() != time.UTC {
		t.Fatalf("expected UTC fallback, got %v", cfg.Location())
	}
}
