package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"zone-alerts/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Market    MarketConfig    `mapstructure:"market"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Zones     ZonesConfig     `mapstructure:"zones"`
	Trades    TradesConfig    `mapstructure:"trades"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// MarketConfig covers quote retrieval and the trading session window.
type MarketConfig struct {
	QuoteBaseURL   string        `mapstructure:"quote_base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
	DefaultSuffix  string        `mapstructure:"default_suffix"`
	Timezone       string        `mapstructure:"timezone"`
	SessionOpen    string        `mapstructure:"session_open"`
	SessionClose   string        `mapstructure:"session_close"`
}

// AlertingConfig defines alert routing.
type AlertingConfig struct {
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig describes the Telegram delivery channel.
type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	APIBase        string        `mapstructure:"api_base"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// ZonesConfig tunes the demand-zone evaluator.
type ZonesConfig struct {
	ApproachPct float64 `mapstructure:"approach_pct"`
}

// TradesConfig tunes the open-trade evaluator.
type TradesConfig struct {
	ApproachPct float64       `mapstructure:"approach_pct"`
	Cooldown    time.Duration `mapstructure:"cooldown"`
	ResetAfter  string        `mapstructure:"reset_after"`
}

// SchedulerConfig governs the long-running watch loop.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	AlignToInterval   bool          `mapstructure:"align_to_interval"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ZONEWATCHER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "zonewatcher")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("market.quote_base_url", "https://query1.finance.yahoo.com")
	v.SetDefault("market.request_timeout", "10s")
	v.SetDefault("market.user_agent", "zonewatcher/1.0")
	v.SetDefault("market.default_suffix", ".NS")
	v.SetDefault("market.timezone", "Asia/Kolkata")
	v.SetDefault("market.session_open", "09:15")
	v.SetDefault("market.session_close", "15:30")

	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")
	v.SetDefault("alerting.telegram.max_attempts", 3)
	v.SetDefault("alerting.telegram.request_timeout", "10s")

	v.SetDefault("zones.approach_pct", 0.03)

	v.SetDefault("trades.approach_pct", 0.02)
	v.SetDefault("trades.cooldown", "30m")
	v.SetDefault("trades.reset_after", "15:30")

	v.SetDefault("scheduler.interval", "5m")
	v.SetDefault("scheduler.align_to_interval", true)
	v.SetDefault("scheduler.advisory_lock_key", int64(0x7a6f6e65))
	v.SetDefault("scheduler.startup_delay", "0s")

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs fail-fast checks on required settings. Both evaluator
// entry points share this, so a missing credential stops either run before
// any store or network access happens.
func (c *Config) Validate() error {
	if c.Alerting.Telegram.BotToken == "" {
		return fmt.Errorf("alerting.telegram.bot_token is required")
	}
	if c.Alerting.Telegram.ChatID == "" {
		return fmt.Errorf("alerting.telegram.chat_id is required")
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if c.Alerting.Telegram.MaxAttempts <= 0 {
		return fmt.Errorf("alerting.telegram.max_attempts must be greater than zero")
	}
	if c.Zones.ApproachPct <= 0 || c.Zones.ApproachPct >= 1 {
		return fmt.Errorf("zones.approach_pct must be within (0, 1)")
	}
	if c.Trades.ApproachPct <= 0 || c.Trades.ApproachPct >= 1 {
		return fmt.Errorf("trades.approach_pct must be within (0, 1)")
	}
	if c.Trades.Cooldown <= 0 {
		return fmt.Errorf("trades.cooldown must be greater than zero")
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	return nil
}
