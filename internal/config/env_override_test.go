package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnvOverrides(t *testing.T) {
	t.Run("orders url and concurrency", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("CTTSYNC_ORDERS_URL", "http://store:8080")
		t.Setenv("CTTSYNC_CONCURRENCY", "8")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, "http://store:8080", cfg.Orders.BaseURL)
		assert.Equal(t, 8, cfg.Run.Concurrency)
	})

	t.Run("non-numeric concurrency is ignored", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("CTTSYNC_CONCURRENCY", "lots")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, 3, cfg.Run.Concurrency)
	})

	t.Run("PORT sets listen address", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("PORT", "8081")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, ":8081", cfg.Server.Listen)
	})

	t.Run("Precedence: CTTSYNC_LISTEN overrides PORT", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("PORT", "8081")
		t.Setenv("CTTSYNC_LISTEN", "127.0.0.1:9000")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, "127.0.0.1:9000", cfg.Server.Listen)
	})

	t.Run("history and amqp env enable their sections", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("CTTSYNC_HISTORY_DB", "/tmp/h.db")
		t.Setenv("CTTSYNC_AMQP_URL", "amqp://rabbit/")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.True(t, cfg.History.Enabled)
		assert.Equal(t, "/tmp/h.db", cfg.History.Path)
		assert.True(t, cfg.Notify.Enabled)
		assert.Equal(t, "amqp://rabbit/", cfg.Notify.URL)
	})

	t.Run("browser overrides", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("CTTSYNC_CHROME_BIN", "/opt/chrome")
		t.Setenv("CTTSYNC_DEBUGGER_URL", "ws://127.0.0.1:9222/devtools/browser/x")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, "/opt/chrome", cfg.Browser.Bin)
		assert.Equal(t, "ws://127.0.0.1:9222/devtools/browser/x", cfg.Browser.DebuggerURL)
	})
}
