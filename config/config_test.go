package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"LISTEN_ADDR", "UPSTREAM_URL", "LOG_LEVEL", "SHUTDOWN_TIMEOUT", "CONCURRENCY_TIMEOUT",
		"RATE_ENABLED", "RATE_PER_MINUTE", "RATE_PER_HOUR",
		"SECURITY_ENABLED", "SECURITY_ALLOWED_IPS", "KEY_STORE", "USAGE_FLUSH_INTERVAL",
		"REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB", "STATS_ENABLED", "STATS_BACKEND",
	} {
		if v, ok := os.LookupEnv(k); ok {
			t.Setenv(k, v)
			os.Unsetenv(k)
		}
	}
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_MissingFileCreatesDefault(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "conf", "config.yml")
	m := NewManager(path)

	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.RateLimit.Enabled || cfg.RateLimit.RequestsPerMinute != 60 || cfg.RateLimit.RequestsPerHour != 1000 {
		t.Fatalf("unexpected rate defaults %+v", cfg.RateLimit)
	}
	if cfg.Security.Enabled {
		t.Fatal("expected security disabled by default")
	}
	if cfg.Server.ListenAddr != ":8080" || cfg.Server.ShutdownTimeout != 5*time.Second {
		t.Fatalf("unexpected server defaults %+v", cfg.Server)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected default file written: %v", err)
	}

	// o arquivo gerado carrega de novo sem erro
	if _, err := NewManager(path).Load(); err != nil {
		t.Fatalf("reload default: %v", err)
	}
}

func TestLoad_PartialFileFillsDefaults(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, `
rateLimit:
  enabled: true
  requestsPerMinute: 2
  requestsPerHour: 100
security:
  enabled: true
  allowedIPs: ["127.0.0.1", "192.168.1.0/24"]
  apiKeys:
    - key: UK_seed
      name: seeded
    - key: UK_off
      name: disabled
      active: false
`)
	cfg, err := NewManager(path).Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RateLimit.RequestsPerMinute != 2 || cfg.RateLimit.RequestsPerHour != 100 {
		t.Fatalf("unexpected rate config %+v", cfg.RateLimit)
	}
	if cfg.RateLimit.SweepInterval != time.Minute {
		t.Fatalf("expected default sweep interval, got %s", cfg.RateLimit.SweepInterval)
	}
	if cfg.Security.KeyStore != "file" || cfg.Security.KeyFile != "data/api_keys.json" {
		t.Fatalf("unexpected key store defaults %+v", cfg.Security)
	}
	if len(cfg.Security.AllowedIPs) != 2 {
		t.Fatalf("expected 2 allowed IPs, got %v", cfg.Security.AllowedIPs)
	}
	if len(cfg.Security.APIKeys) != 2 || !cfg.Security.APIKeys[0].IsActive() || cfg.Security.APIKeys[1].IsActive() {
		t.Fatalf("unexpected seed keys %+v", cfg.Security.APIKeys)
	}
}

func TestLoad_OmittedKeysKeepDefaults(t *testing.T) {
	clearEnv(t)
	// sem rateLimit.enabled e sem o bloco server inteiro
	path := writeFile(t, "rateLimit:\n  requestsPerMinute: 2\n  requestsPerHour: 100\n")

	cfg, err := NewManager(path).Load()
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.RateLimit.Enabled {
		t.Fatal("expected rate limiting to stay enabled when the key is omitted")
	}
	if cfg.RateLimit.RequestsPerMinute != 2 || cfg.RateLimit.RequestsPerHour != 100 {
		t.Fatalf("expected file values applied, got %+v", cfg.RateLimit)
	}
	want := Default().Server
	if cfg.Server != want {
		t.Fatalf("expected default server block %+v, got %+v", want, cfg.Server)
	}
	if cfg.Server.MaxConcurrent != 10 {
		t.Fatalf("expected default concurrency bound, got %d", cfg.Server.MaxConcurrent)
	}

	// false explícito continua valendo
	path = writeFile(t, "rateLimit:\n  enabled: false\n")
	cfg, err = NewManager(path).Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.RateLimit.Enabled || cfg.RateLimit.RequestsPerMinute != 60 {
		t.Fatalf("expected explicit false kept with default limits, got %+v", cfg.RateLimit)
	}
}

func TestLoad_DurationsFromYAML(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, `
server:
  shutdownTimeout: 12s
  concurrencyTimeout: 250ms
security:
  usageFlushInterval: 2s
`)
	cfg, err := NewManager(path).Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.ShutdownTimeout != 12*time.Second || cfg.Server.ConcurrencyTimeout != 250*time.Millisecond {
		t.Fatalf("unexpected durations %+v", cfg.Server)
	}
	if cfg.Security.UsageFlushInterval != 2*time.Second {
		t.Fatalf("unexpected flush interval %s", cfg.Security.UsageFlushInterval)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "rateLimit:\n  requestsPerMinute: 5\n  requestsPerHour: 50\n")
	t.Setenv("RATE_PER_MINUTE", "7")
	t.Setenv("SECURITY_ENABLED", "true")
	t.Setenv("SECURITY_ALLOWED_IPS", " 10.0.0.1, 10.1.0.0/16 ,,")
	t.Setenv("LISTEN_ADDR", ":9090")
	t.Setenv("RATE_PER_HOUR", "not-a-number")

	m := NewManager(path)
	cfg, err := m.Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.RateLimit.RequestsPerMinute != 7 {
		t.Fatalf("expected env override, got %d", cfg.RateLimit.RequestsPerMinute)
	}
	if cfg.RateLimit.RequestsPerHour != 50 {
		t.Fatalf("expected invalid env value ignored, got %d", cfg.RateLimit.RequestsPerHour)
	}
	if !cfg.Security.Enabled || cfg.Server.ListenAddr != ":9090" {
		t.Fatalf("unexpected overrides %+v %+v", cfg.Security, cfg.Server)
	}
	if strings.Join(cfg.Security.AllowedIPs, ",") != "10.0.0.1,10.1.0.0/16" {
		t.Fatalf("unexpected allowed IPs %v", cfg.Security.AllowedIPs)
	}

	// SetSecurityEnabled não grava o que veio do ambiente
	if err := m.SetSecurityEnabled(false); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), ":9090") {
		t.Fatalf("expected env values kept out of the file:\n%s", data)
	}
	if m.Get().Security.Enabled {
		t.Fatal("expected effective config updated")
	}
}

func TestSetSecurityEnabled_PersistsFlag(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "security:\n  enabled: false\n  allowedIPs: [\"127.0.0.1\"]\n")
	m := NewManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatal(err)
	}
	if err := m.SetSecurityEnabled(true); err != nil {
		t.Fatal(err)
	}

	cfg, err := NewManager(path).Load()
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Security.Enabled {
		t.Fatal("expected security.enabled persisted")
	}
	if len(cfg.Security.AllowedIPs) != 1 {
		t.Fatalf("expected rest of the file preserved, got %v", cfg.Security.AllowedIPs)
	}
}

func TestSetSecurityEnabled_BeforeLoadFails(t *testing.T) {
	if err := NewManager(filepath.Join(t.TempDir(), "c.yml")).SetSecurityEnabled(true); err == nil {
		t.Fatal("expected error before load")
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero rpm", func(c *Config) { c.RateLimit.RequestsPerMinute = 0 }},
		{"hour below minute", func(c *Config) { c.RateLimit.RequestsPerMinute = 100; c.RateLimit.RequestsPerHour = 10 }},
		{"unknown key store", func(c *Config) { c.Security.KeyStore = "mongo" }},
		{"redis store without addr", func(c *Config) { c.Security.KeyStore = "redis" }},
		{"redis stats without addr", func(c *Config) { c.Stats.Enabled = true; c.Stats.Backend = "redis" }},
		{"bad log level", func(c *Config) { c.Server.LogLevel = "loud" }},
		{"bad upstream", func(c *Config) { c.Server.UpstreamURL = "::not a url" }},
		{"seed without key", func(c *Config) { c.Security.APIKeys = []SeedKey{{Name: "x"}} }},
		{"duplicate seed", func(c *Config) { c.Security.APIKeys = []SeedKey{{Key: "a"}, {Key: "a"}} }},
		{"zero shutdown timeout", func(c *Config) { c.Server.ShutdownTimeout = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := Default()
			tc.mutate(c)
			if err := Validate(c); !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}

	if err := Validate(Default()); err != nil {
		t.Fatalf("expected defaults valid, got %v", err)
	}
	ok := Default()
	ok.Security.KeyStore = "redis"
	ok.Redis.Addr = "localhost:6379"
	ok.Server.UpstreamURL = "http://localhost:9000"
	if err := Validate(ok); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "rateLimit: [this is not a map\n")
	if _, err := NewManager(path).Load(); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}
