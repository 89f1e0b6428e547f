// Package config handles application configuration from environment variables
// and the hot-reloaded settings file.
package config

import (
	"fmt"
	"os"
)

// Config holds the bootstrap configuration read once at startup.
type Config struct {
	TelegramBotToken string
	SettingsPath     string
	DatabasePath     string
	LogLevel         string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}

	return &Config{
		TelegramBotToken: token,
		SettingsPath:     envOrDefault("SETTINGS_PATH", "./settings.yaml"),
		DatabasePath:     envOrDefault("DATABASE_PATH", "./data/bot.db"),
		LogLevel:         envOrDefault("LOG_LEVEL", "info"),
	}, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
