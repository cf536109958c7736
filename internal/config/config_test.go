package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Run.Concurrency != 3 {
		t.Errorf("expected Concurrency=3, got %d", cfg.Run.Concurrency)
	}
	if cfg.Orders.ListPath != "/api/orders" {
		t.Errorf("expected ListPath=/api/orders, got %s", cfg.Orders.ListPath)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate, got %v", err)
	}
}

func TestConfig_SaveLoad(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "nested", "cttsync.yaml")

	cfg := DefaultConfig()
	cfg.Orders.BaseURL = "http://orders.internal"
	cfg.Run.Concurrency = 7
	cfg.Carrier.Prefixes = []string{"RT", "RU", "LX"}

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Orders.BaseURL != "http://orders.internal" {
		t.Errorf("expected BaseURL=http://orders.internal, got %s", loaded.Orders.BaseURL)
	}
	if loaded.Run.Concurrency != 7 {
		t.Errorf("expected Concurrency=7, got %d", loaded.Run.Concurrency)
	}
	if len(loaded.Carrier.Prefixes) != 3 {
		t.Errorf("expected 3 prefixes, got %v", loaded.Carrier.Prefixes)
	}
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Listen != ":3000" {
		t.Errorf("expected default listen, got %s", cfg.Server.Listen)
	}
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "cttsync.yaml")
	if err := os.WriteFile(path, []byte("run:\n  concurrency: 5\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Run.Concurrency != 5 {
		t.Errorf("expected Concurrency=5, got %d", cfg.Run.Concurrency)
	}
	if cfg.Carrier.Country != "PT" {
		t.Errorf("expected default country PT, got %s", cfg.Carrier.Country)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cttsync.yaml")
	if err := os.WriteFile(path, []byte("run: [unclosed"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty base url", func(c *Config) { c.Orders.BaseURL = " " }},
		{"template without placeholder", func(c *Config) { c.Carrier.URLTemplate = "https://example.com" }},
		{"no prefixes", func(c *Config) { c.Carrier.Prefixes = nil }},
		{"long prefix", func(c *Config) { c.Carrier.Prefixes = []string{"RTX"} }},
		{"bad country", func(c *Config) { c.Carrier.Country = "PRT" }},
		{"zero concurrency", func(c *Config) { c.Run.Concurrency = 0 }},
		{"history without path", func(c *Config) { c.History.Enabled = true; c.History.Path = "" }},
		{"notify without url", func(c *Config) { c.Notify.Enabled = true; c.Notify.URL = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestConfig_Helpers(t *testing.T) {
	cfg := DefaultConfig()

	cfg.Orders.Timeout = "garbage"
	if got := cfg.GetOrdersTimeout(); got != 30*time.Second {
		t.Errorf("GetOrdersTimeout fallback = %v", got)
	}
	cfg.Run.Concurrency = -2
	if got := cfg.GetConcurrency(); got != 1 {
		t.Errorf("GetConcurrency clamp = %d", got)
	}

	b := DefaultBrowserConfig()
	if b.GetNavigationTimeout() != 60*time.Second {
		t.Errorf("navigation timeout = %v", b.GetNavigationTimeout())
	}
	b.IdleWindow = "0s"
	if b.GetIdleWindow() != 500*time.Millisecond {
		t.Errorf("idle window fallback = %v", b.GetIdleWindow())
	}
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"CTTSYNC_ORDERS_URL", "CTTSYNC_CONCURRENCY", "CTTSYNC_LISTEN", "PORT",
		"CTTSYNC_CHROME_BIN", "CTTSYNC_DEBUGGER_URL", "CTTSYNC_HISTORY_DB",
		"CTTSYNC_AMQP_URL", "CTTSYNC_LOG_LEVEL",
	} {
		t.Setenv(k, "")
	}
}
