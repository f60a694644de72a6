package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"badewanne/internal/strategy"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "http://pricingapi.local/Ebay/EbayPrices", cfg.Gateway.URL)
	assert.Equal(t, 30*time.Second, cfg.Gateway.Timeout)
	assert.Equal(t, "0 0 6 * * *", cfg.Schedule.CycleCron)
	assert.Equal(t, 5*time.Second, cfg.Schedule.TriggerDelay)
	assert.Equal(t, strategy.DefaultThresholds(), cfg.Thresholds)
	assert.Equal(t, "data/badewanne.db", cfg.Database.SQLitePath)
	assert.Equal(t, "data/history.db", cfg.Database.HistoryPath)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.False(t, cfg.TelegramEnabled())
	assert.NoError(t, cfg.Validate())
}

func TestLoad_YAML(t *testing.T) {
	path := writeConfig(t, `
gateway:
  url: https://pricing.example.com/Ebay/EbayPrices
  api_key: k1
  timeout: 10s
feed:
  warehouse_dsn: postgres://bi@warehouse/dwh?sslmode=disable
  warehouse_view: vDailyPrices
schedule:
  cycle_cron: "0 30 5 * * *"
  trigger_delay: 2s
  run_on_start: true
thresholds:
  first: 80
  second: 95
  last: 85
telegram:
  bot_token: t
  chat_id: "7"
http:
  addr: ""
log:
  level: debug
  pretty: true
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://pricing.example.com/Ebay/EbayPrices", cfg.Gateway.URL)
	assert.Equal(t, 10*time.Second, cfg.Gateway.Timeout)
	assert.Equal(t, "vDailyPrices", cfg.Feed.WarehouseView)
	assert.Equal(t, 2*time.Second, cfg.Schedule.TriggerDelay)
	assert.True(t, cfg.Schedule.RunOnStart)
	assert.Equal(t, strategy.Thresholds{First: 80, Second: 95, Last: 85}, cfg.Thresholds)
	assert.True(t, cfg.TelegramEnabled())
	assert.Empty(t, cfg.HTTP.Addr)
	assert.True(t, cfg.Log.Pretty)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, "gateway:\n  url: http://a.local/x\n")
	t.Setenv("GATEWAY_URL", "http://b.local/y")
	t.Setenv("GATEWAY_API_KEY", "secret")
	t.Setenv("SQLITE_PATH", "/tmp/bw.db")
	t.Setenv("FEED_URL", "http://feed.local/rows")
	t.Setenv("CYCLE_CRON", "@every 1h")
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("RUN_ON_START", "true")
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://b.local/y", cfg.Gateway.URL)
	assert.Equal(t, "secret", cfg.Gateway.APIKey)
	assert.Equal(t, "/tmp/bw.db", cfg.Database.SQLitePath)
	assert.Equal(t, "http://feed.local/rows", cfg.Feed.URL)
	assert.Equal(t, "@every 1h", cfg.Schedule.CycleCron)
	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.True(t, cfg.Schedule.RunOnStart)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "gateway: [unclosed"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"relative gateway url": func(c *Config) { c.Gateway.URL = "/Ebay/EbayPrices" },
		"zero timeout":         func(c *Config) { c.Gateway.Timeout = 0 },
		"two feeds": func(c *Config) {
			c.Feed.URL = "http://feed.local"
			c.Feed.WarehouseDSN = "postgres://x"
		},
		"bad cron":           func(c *Config) { c.Schedule.CycleCron = "every morning" },
		"negative threshold": func(c *Config) { c.Thresholds.Second = -1 },
		"half telegram":      func(c *Config) { c.Telegram.BotToken = "t" },
		"bad log level":      func(c *Config) { c.Log.Level = "loud" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
			require.NoError(t, err)
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
