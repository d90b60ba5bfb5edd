package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaultsWithMemoryDriver(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.AppName != "Economy" {
		t.Fatalf("expected default app name, got %q", cfg.AppName)
	}
	if cfg.SaveQueueInterval != 0 {
		t.Fatalf("periodic save must be disabled by default, got %s", cfg.SaveQueueInterval)
	}
	if cfg.AllowNegativeBalance {
		t.Fatalf("negative balances must be disallowed by default")
	}
	if len(cfg.WalletKinds) != 1 || cfg.WalletKinds[0] != "credits" {
		t.Fatalf("expected default wallet kinds [credits], got %v", cfg.WalletKinds)
	}
	if cfg.Address() != ":8080" {
		t.Fatalf("unexpected address %q", cfg.Address())
	}
}

func TestLoadRequiresDatabaseURLForPostgres(t *testing.T) {
	t.Setenv("STORE_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "")

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "DATABASE_URL") {
		t.Fatalf("expected DATABASE_URL error, got %v", err)
	}
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	t.Setenv("STORE_DRIVER", "mongo")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestLoadParsesWalletKindsAndDurations(t *testing.T) {
	t.Setenv("STORE_DRIVER", "sqlite")
	t.Setenv("WALLET_KINDS", "credits, gems,,credits")
	t.Setenv("SAVE_QUEUE_INTERVAL", "15s")
	t.Setenv("FINAL_FLUSH_TIMEOUT", "2s")
	t.Setenv("PORT", ":9000")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := strings.Join(cfg.WalletKinds, ","); got != "credits,gems" {
		t.Fatalf("unexpected wallet kinds %q", got)
	}
	if cfg.SaveQueueInterval != 15*time.Second {
		t.Fatalf("expected 15s save interval, got %s", cfg.SaveQueueInterval)
	}
	if cfg.FinalFlushTimeout != 2*time.Second {
		t.Fatalf("expected 2s final flush timeout, got %s", cfg.FinalFlushTimeout)
	}
	if cfg.Address() != ":9000" {
		t.Fatalf("unexpected address %q", cfg.Address())
	}
}

func TestLoadInvalidDuration(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("FLUSH_TIMEOUT", "soon")

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("expected parse env error, got %v", err)
	}
}
