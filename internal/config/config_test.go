package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/yuriy-kovalchuk/yk-seed-dns/internal/dns/providers"
)

const sampleConfig = `debug: true
loop: true
delay: 60
zones:
  monero:
    provider: cloudflare
    domain: example.org
    subdomain: seeds
    required_port: 18080
    rpc_host: 127.0.0.1
    rpc_port: 18081
    login: ops@example.org
    password: "${TEST_CF_KEY}"
  wownero:
    provider: opnsense
    domain: example.net
    subdomain: nodes
    required_port: 34568
    rpc_host: 10.0.0.5
    rpc_port: 34570
    ttl: 120
    probe_timeout: 2s
    rpc_timeout: 30s
    probe_workers: 4
    eligible_state: normal
    settings:
      base_url: "https://opnsense.local/api"
      api_key: "${TEST_OPN_KEY}"
      api_secret: literal
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFromPath(t *testing.T) {
	t.Setenv("TEST_CF_KEY", "cf-key-from-env")
	t.Setenv("TEST_OPN_KEY", "opn-key-from-env")

	cfg, err := LoadFromPath(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.Debug || !cfg.Loop || cfg.Interval() != time.Minute {
		t.Errorf("unexpected process flags: %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	m := cfg.Zones["monero"]
	if m.Name != "monero" {
		t.Errorf("expected zone name to be filled in, got %q", m.Name)
	}
	if m.FQDN() != "seeds.example.org" {
		t.Errorf("expected FQDN 'seeds.example.org', got %q", m.FQDN())
	}
	settings := m.ProviderSettings()
	if settings["login"] != "ops@example.org" || settings["password"] != "cf-key-from-env" {
		t.Errorf("unexpected provider settings %v", settings)
	}
	if m.RecordTTL() != 300 || m.State() != DefaultEligibleState || m.Workers() != DefaultProbeWorkers {
		t.Errorf("expected defaults, got ttl=%d state=%q workers=%d", m.RecordTTL(), m.State(), m.Workers())
	}

	w := cfg.Zones["wownero"]
	if w.Settings["api_key"] != "opn-key-from-env" || w.Settings["api_secret"] != "literal" {
		t.Errorf("unexpected expanded settings %v", w.Settings)
	}
	if w.RecordTTL() != 120 || w.ProbeTimeout != 2*time.Second || w.RPCTimeout != 30*time.Second {
		t.Errorf("unexpected tunables %+v", w)
	}
	if w.State() != "normal" || w.Workers() != 4 {
		t.Errorf("expected overrides, got state=%q workers=%d", w.State(), w.Workers())
	}
}

func TestLoadFromPath_DotEnv(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("TEST_DOTENV_KEY=from-dotenv\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("TEST_DOTENV_KEY") })

	content := `zones:
  monero:
    provider: cloudflare
    domain: example.org
    subdomain: seeds
    required_port: 18080
    rpc_host: 127.0.0.1
    rpc_port: 18081
    settings:
      api_token: "${TEST_DOTENV_KEY}"
`
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := cfg.Zones["monero"].Settings["api_token"]; got != "from-dotenv" {
		t.Errorf("expected api_token from .env, got %q", got)
	}
}

func TestLoad_EnvPath(t *testing.T) {
	t.Setenv("SEED_DNS_CONFIG", writeConfig(t, sampleConfig))
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Zones) != 2 {
		t.Errorf("expected 2 zones, got %d", len(cfg.Zones))
	}
}

func TestLoadFromPath_MissingFile(t *testing.T) {
	if _, err := LoadFromPath("/nonexistent/path/config.yaml"); err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}

func TestLoadFromPath_InvalidYAML(t *testing.T) {
	if _, err := LoadFromPath(writeConfig(t, "zones: [unterminated")); err == nil {
		t.Fatal("expected error for invalid YAML, got nil")
	}
}

func TestSelect(t *testing.T) {
	cfg := &Config{Zones: map[string]ZoneConfig{"b": {}, "a": {}}}

	all, err := cfg.Select(AllZones)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(all) != 2 || all[0] != "a" || all[1] != "b" {
		t.Errorf("expected sorted [a b], got %v", all)
	}

	one, err := cfg.Select("b")
	if err != nil || len(one) != 1 || one[0] != "b" {
		t.Errorf("expected [b], got %v (%v)", one, err)
	}

	if _, err := cfg.Select("c"); !errors.Is(err, ErrUnknownZone) {
		t.Errorf("expected ErrUnknownZone, got %v", err)
	}
}
