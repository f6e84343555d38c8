package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	cfg := &Config{}
	cfg.Alerting.Telegram.BotToken = "token"
	cfg.Alerting.Telegram.ChatID = "chat"
	cfg.Alerting.Telegram.MaxAttempts = 3
	cfg.Database.DSN = "postgres://localhost/zonewatcher"
	cfg.Zones.ApproachPct = 0.03
	cfg.Trades.ApproachPct = 0.02
	cfg.Trades.Cooldown = 30 * time.Minute
	cfg.Scheduler.Interval = 5 * time.Minute
	return cfg
}

func TestValidateAcceptsCompleteConfig(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("complete config should validate: %v", err)
	}
}

func TestValidateFailsFastOnMissingRequired(t *testing.T) {
	cases := []struct {
		name  string
		mutate func(*Config)
		want  string
	}{
		{"bot token", func(c *Config) { c.Alerting.Telegram.BotToken = "" }, "bot_token"},
		{"chat id", func(c *Config) { c.Alerting.Telegram.ChatID = "" }, "chat_id"},
		{"dsn", func(c *Config) { c.Database.DSN = "" }, "database.dsn"},
		{"cooldown", func(c *Config) { c.Trades.Cooldown = 0 }, "cooldown"},
		{"zone threshold", func(c *Config) { c.Zones.ApproachPct = 0 }, "approach_pct"},
	}

	for _, tc := range cases {
		cfg := validConfig()
		tc.mutate(cfg)
		err := cfg.Validate()
		if err == nil {
			t.Fatalf("%s: expected validation error", tc.name)
		}
		if !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("%s: error %q should mention %q", tc.name, err, tc.want)
		}
	}
}
