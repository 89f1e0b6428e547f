package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/joho/godotenv"

	"newsnow_bot/internal/bot"
	"newsnow_bot/internal/config"
	"newsnow_bot/internal/fetcher"
	"newsnow_bot/internal/scheduler"
	"newsnow_bot/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel)

	settings := config.NewManager(cfg.SettingsPath, log)
	if err := settings.Load(); err != nil {
		log.Error("load settings", "path", cfg.SettingsPath, "error", err)
		os.Exit(1)
	}
	if err := settings.Current().RequireAPIURL(); err != nil {
		log.Warn("api_url not set; only feed sources will work", "path", cfg.SettingsPath)
	}

	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			log.Error("create data directory", "path", dir, "error", err)
			os.Exit(1)
		}
	}

	store, err := storage.NewSQLite(cfg.DatabasePath)
	if err != nil {
		log.Error("open database", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	news := fetcher.New(http.DefaultClient, settings)

	b, err := bot.New(cfg.TelegramBotToken, settings, store, news, log)
	if err != nil {
		log.Error("create bot", "error", err)
		os.Exit(1)
	}

	sched := scheduler.New(settings, news, b, log,
		scheduler.SettingsRules{Settings: settings},
		store,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go settings.Watch(ctx)
	sched.Start(ctx)

	log.Info("starting bot", "settings", cfg.SettingsPath, "database", cfg.DatabasePath)
	notify(log, daemon.SdNotifyReady)

	b.Run(ctx)

	notify(log, daemon.SdNotifyStopping)
	sched.Stop()

	log.Info("bot stopped")
}

func notify(log *slog.Logger, state string) {
	if _, err := daemon.SdNotify(false, state); err != nil {
		log.Warn("sd_notify", "state", state, "error", err)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
