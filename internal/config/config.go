package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"badewanne/internal/strategy"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Gateway struct {
		URL     string        `yaml:"url"`
		APIKey  string        `yaml:"api_key"`
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"gateway"`
	Feed struct {
		URL           string `yaml:"url"`
		APIKey        string `yaml:"api_key"`
		WarehouseDSN  string `yaml:"warehouse_dsn"`
		WarehouseView string `yaml:"warehouse_view"`
	} `yaml:"feed"`
	Schedule struct {
		CycleCron    string        `yaml:"cycle_cron"`
		TriggerDelay time.Duration `yaml:"trigger_delay"`
		RunOnStart   bool          `yaml:"run_on_start"`
	} `yaml:"schedule"`
	Thresholds strategy.Thresholds `yaml:"thresholds"`
	Database   struct {
		SQLitePath  string `yaml:"sqlite_path"`
		HistoryPath string `yaml:"history_path"`
	} `yaml:"database"`
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram"`
	HTTP struct {
		Addr string `yaml:"addr"`
	} `yaml:"http"`
	Log struct {
		Level  string `yaml:"level"`
		Pretty bool   `yaml:"pretty"`
	} `yaml:"log"`
	Proxy string `yaml:"proxy"`
}

// Load reads config from a YAML file and an optional .env file, then applies
// environment variable overrides and defaults. A missing YAML file is not an
// error.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	cfg.HTTP.Addr = ":8080"

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	setString(&cfg.Gateway.URL, "GATEWAY_URL")
	setString(&cfg.Gateway.APIKey, "GATEWAY_API_KEY")
	setString(&cfg.Database.SQLitePath, "SQLITE_PATH")
	setString(&cfg.Feed.URL, "FEED_URL")
	setString(&cfg.Feed.APIKey, "FEED_API_KEY")
	setString(&cfg.Feed.WarehouseDSN, "WAREHOUSE_DSN")
	setString(&cfg.Schedule.CycleCron, "CYCLE_CRON")
	setString(&cfg.Telegram.BotToken, "TELEGRAM_BOT_TOKEN")
	setString(&cfg.Telegram.ChatID, "TELEGRAM_CHAT_ID")
	setString(&cfg.Proxy, "HTTPS_PROXY")
	setString(&cfg.Log.Level, "LOG_LEVEL")
	if v, ok := os.LookupEnv("HTTP_ADDR"); ok {
		cfg.HTTP.Addr = v
	}
	if v := os.Getenv("RUN_ON_START"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Schedule.RunOnStart = b
		}
	}

	// Defaults
	if cfg.Gateway.URL == "" {
		cfg.Gateway.URL = "http://pricingapi.local/Ebay/EbayPrices"
	}
	if cfg.Gateway.Timeout == 0 {
		cfg.Gateway.Timeout = 30 * time.Second
	}
	if cfg.Schedule.CycleCron == "" {
		cfg.Schedule.CycleCron = "0 0 6 * * *"
	}
	if cfg.Schedule.TriggerDelay == 0 {
		cfg.Schedule.TriggerDelay = 5 * time.Second
	}
	if cfg.Thresholds == (strategy.Thresholds{}) {
		cfg.Thresholds = strategy.DefaultThresholds()
	}
	if cfg.Database.SQLitePath == "" {
		cfg.Database.SQLitePath = "data/badewanne.db"
	}
	if cfg.Database.HistoryPath == "" {
		cfg.Database.HistoryPath = "data/history.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}

	return cfg, nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// TelegramEnabled reports whether cycle reports are sent.
func (c *Config) TelegramEnabled() bool {
	return c.Telegram.BotToken != "" && c.Telegram.ChatID != ""
}

// Validate checks that all required fields are set.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Gateway.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("gateway.url must be an absolute http(s) URL")
	}
	if c.Gateway.Timeout <= 0 {
		return fmt.Errorf("gateway.timeout must be positive")
	}
	if c.Feed.URL != "" && c.Feed.WarehouseDSN != "" {
		return fmt.Errorf("feed.url and feed.warehouse_dsn are mutually exclusive")
	}
	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(c.Schedule.CycleCron); err != nil {
		return fmt.Errorf("schedule.cycle_cron: %w", err)
	}
	if c.Schedule.TriggerDelay < 0 {
		return fmt.Errorf("schedule.trigger_delay must not be negative")
	}
	th := c.Thresholds
	if th.First <= 0 || th.Second <= 0 || th.Last <= 0 {
		return fmt.Errorf("thresholds must be positive")
	}
	if (c.Telegram.BotToken == "") != (c.Telegram.ChatID == "") {
		return fmt.Errorf("telegram.bot_token and telegram.chat_id must be set together")
	}
	if c.Database.SQLitePath == "" {
		return fmt.Errorf("database.sqlite_path is required")
	}
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}
