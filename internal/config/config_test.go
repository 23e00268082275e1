package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	apperrors "market-tracker/internal/errors"
	"market-tracker/internal/security"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"FINNHUB_API_KEY", "TRACKER_DEMO_MODE", "TRACKER_STORAGE_BACKEND", "TRACKER_POLL_INTERVAL", VaultPasswordEnv} {
		t.Setenv(k, "")
	}
}

func TestLoadCreatesTemplateWithDefaults(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "config.toml")); err != nil {
		t.Fatalf("template not created: %v", err)
	}
	if cfg.RateLimit.QuotesPerWindow != 60 || cfg.RateLimit.CandlesPerWindow != 30 || cfg.RateLimit.Window != time.Minute {
		t.Errorf("unexpected rate limits %+v", cfg.RateLimit)
	}
	if cfg.Polling.Interval != 60*time.Second {
		t.Errorf("unexpected poll interval %v", cfg.Polling.Interval)
	}
	if cfg.Storage.Backend != "sqlite" || cfg.Storage.Key != "marketAlerts" {
		t.Errorf("unexpected storage %+v", cfg.Storage)
	}
	if !cfg.UseDemo() {
		t.Errorf("no token configured, expected demo mode")
	}

	// A second load reads the template back.
	again, err := Load(dir)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if again.API.BaseURL != "https://finnhub.io/api/v1" || again.API.Timeout != 10*time.Second {
		t.Errorf("template did not round-trip: %+v", again.API)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("FINNHUB_API_KEY", "abc123")
	t.Setenv("TRACKER_STORAGE_BACKEND", "MEMORY")
	t.Setenv("TRACKER_POLL_INTERVAL", "15s")

	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.API.Token != "abc123" || cfg.UseDemo() {
		t.Errorf("token override not applied")
	}
	if cfg.Storage.Backend != "memory" || cfg.Polling.Interval != 15*time.Second {
		t.Errorf("overrides not applied: %+v %+v", cfg.Storage, cfg.Polling)
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	body := "[rate_limit]\nquotes_per_window = 0\n"
	if err := os.WriteFile(filepath.Join(dir, "config.toml"), []byte(body), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(dir); !apperrors.Is(err, apperrors.ErrConfigInvalid) {
		t.Fatalf("expected invalid config, got %v", err)
	}
}

func TestValidateStorageBackend(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	cfg.Storage.Backend = "postgres"
	if err := cfg.Validate(); err == nil {
		t.Errorf("postgres without dsn should be rejected")
	}
	cfg.Storage.Backend = "etcd"
	if err := cfg.Validate(); err == nil {
		t.Errorf("unknown backend should be rejected")
	}
}

func TestResolveTokenFromVault(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	if err := security.NewTokenVault(dir).Seal("pw", "vault-token"); err != nil {
		t.Fatal(err)
	}
	t.Setenv(VaultPasswordEnv, "pw")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	src, err := cfg.ResolveToken()
	if err != nil || src != "vault" || cfg.API.Token != "vault-token" {
		t.Fatalf("ResolveToken = %q, %v, token %q", src, err, cfg.API.Token)
	}
}

func TestLoadSymbolFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "symbols.yaml")
	body := `
indices:
  - name: CAC 40
    symbol: "^fchi"
crypto:
  - name: Dogecoin
    symbol: binance:dogeusdt
`
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatal(err)
	}
	table, err := LoadSymbolFile(path)
	if err != nil {
		t.Fatalf("LoadSymbolFile: %v", err)
	}
	if table.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", table.Len())
	}
	e, ok := table.ByName("Dogecoin")
	if !ok || e.Symbol != "BINANCE:DOGEUSDT" {
		t.Errorf("unexpected entry %+v", e)
	}

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(bad, []byte("indices:\n  - name: Evil\n    symbol: \"<script>\"\n"), 0600)
	if _, err := LoadSymbolFile(bad); err == nil {
		t.Errorf("expected invalid symbol to be rejected")
	}
}
