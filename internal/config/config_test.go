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

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"ALLOW_BELOW_COST", "PHONE_REGION", "LOW_STOCK_THRESHOLD", "SNAPSHOT_TTL_SECONDS", "ACCESS_TOKEN_TTL_MINUTES", "DUE_REMINDER_TO"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.AllowBelowCost {
		t.Fatalf("expected below-cost sales disabled by default")
	}
	if cfg.PhoneRegion != "BD" || cfg.LowStockThreshold != 20 {
		t.Fatalf("unexpected defaults region=%q threshold=%d", cfg.PhoneRegion, cfg.LowStockThreshold)
	}
	if cfg.SnapshotTTL() != 30*time.Second || cfg.AccessTokenTTL != 8*time.Hour {
		t.Fatalf("unexpected ttl defaults %s %s", cfg.SnapshotTTL(), cfg.AccessTokenTTL)
	}
	if len(cfg.DueReminderTo) != 0 {
		t.Fatalf("expected no reminder recipients, got %v", cfg.DueReminderTo)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	t.Setenv("ALLOW_BELOW_COST", "true")
	t.Setenv("LOW_STOCK_THRESHOLD", "-3")
	t.Setenv("PHONE_REGION", "in")
	t.Setenv("DUE_REMINDER_TO", "owner@shop.local, ,manager@shop.local")
	t.Setenv("TIMEZONE", "Not/AZone")

	cfg := Load()
	if !cfg.AllowBelowCost {
		t.Fatalf("expected ALLOW_BELOW_COST=true to be honoured")
	}
	if cfg.LowStockThreshold != 20 {
		t.Fatalf("expected invalid threshold to fall back to 20, got %d", cfg.LowStockThreshold)
	}
	if cfg.PhoneRegion != "IN" {
		t.Fatalf("expected upper-cased region, got %q", cfg.PhoneRegion)
	}
	if len(cfg.DueReminderTo) != 2 || cfg.DueReminderTo[1] != "manager@shop.local" {
		t.Fatalf("unexpected recipients %v", cfg.DueReminderTo)
	}
	if cfg.Location() != time.UTC {
		t.Fatalf("expected unknown timezone to fall back to UTC")
	}
}
