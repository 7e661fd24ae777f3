package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/investable/accessgate/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Env != "dev" || cfg.Ledger.HTTPAddr != ":8080" || cfg.Ledger.Store != "sqlite" {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.Ledger.AllowClear {
		t.Error("clear must be disabled by default")
	}
	if cfg.Client.Cache.Freshness != 5*time.Minute {
		t.Errorf("freshness = %v", cfg.Client.Cache.Freshness)
	}
	if cfg.Client.PollInterval != 30*time.Second || cfg.Client.FetchTimeout != 10*time.Second {
		t.Errorf("poll = %v, fetch timeout = %v", cfg.Client.PollInterval, cfg.Client.FetchTimeout)
	}
	if cfg.Client.AllowRerequest {
		t.Error("re-request after denial must default to off")
	}
	if strings.HasPrefix(cfg.Client.Cache.Path, "~") {
		t.Errorf("cache path not expanded: %q", cfg.Client.Cache.Path)
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "accessgate.yaml")
	body := `
env: PROD
ledger:
  store: postgres
  allow_clear: true
client:
  poll_interval: 5s
  cache:
    backend: redis
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("ACCESSGATE_LEDGER_HTTP_ADDR", ":9090")
	t.Setenv("ACCESSGATE_CLIENT_ALLOW_REREQUEST", "true")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Env != "prod" {
		t.Errorf("env = %q", cfg.Env)
	}
	if cfg.Ledger.Store != "postgres" || !cfg.Ledger.AllowClear {
		t.Errorf("ledger = %+v", cfg.Ledger)
	}
	if cfg.Ledger.HTTPAddr != ":9090" {
		t.Errorf("env override ignored: %q", cfg.Ledger.HTTPAddr)
	}
	if cfg.Client.PollInterval != 5*time.Second || cfg.Client.Cache.Backend != "redis" {
		t.Errorf("client = %+v", cfg.Client)
	}
	if !cfg.Client.AllowRerequest {
		t.Error("env override for allow_rerequest ignored")
	}
}

func TestLoad_UnknownEnvFallsBackToDev(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("ACCESSGATE_ENV", "staging")

	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Env != "dev" {
		t.Errorf("env = %q, want dev", cfg.Env)
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	if _, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}
