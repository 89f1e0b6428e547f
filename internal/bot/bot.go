// Package bot is the Telegram front end: it answers commands on demand and
// delivers scheduled messages.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"

	"newsnow_bot/internal/config"
	"newsnow_bot/internal/model"
	"newsnow_bot/internal/storage"
)

const pollTimeoutSeconds = 60

// ErrInvalidDestination is returned for destinations that are neither a
// numeric chat ID nor an @channel username.
var ErrInvalidDestination = errors.New("invalid destination")

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// NewsFetcher retrieves one source.
type NewsFetcher interface {
	Fetch(ctx context.Context, source string, timeout time.Duration) model.FetchResult
}

// Bot is the Telegram bot that handles user commands and sends notifications.
type Bot struct {
	api      telegramAPI
	settings config.Provider
	store    storage.Storage
	fetcher  NewsFetcher
	log      *slog.Logger

	limiter *rate.Limiter
	// handlers tracks in-flight command handlers.
	handlers sync.WaitGroup
}

// apiClientTimeout bounds every Telegram API call. It must exceed the
// long-poll timeout used by Run.
const apiClientTimeout = 90 * time.Second

// New creates a Bot with the given Telegram token, settings, storage and fetcher.
func New(token string, settings config.Provider, store storage.Storage, fetcher NewsFetcher, log *slog.Logger) (*Bot, error) {
	client := &http.Client{Timeout: apiClientTimeout}
	api, err := tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, client)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	return newBot(api, settings, store, fetcher, log), nil
}

func newBot(api telegramAPI, settings config.Provider, store storage.Storage, fetcher NewsFetcher, log *slog.Logger) *Bot {
	rps := settings.Current().SendRate()
	return &Bot{
		api:      api,
		settings: settings,
		store:    store,
		fetcher:  fetcher,
		log:      log,
		limiter:  rate.NewLimiter(rate.Limit(rps), rps),
	}
}

// Run starts the bot's long-polling loop, blocking until ctx is cancelled.
// Each update is handled on its own goroutine; Run waits for in-flight
// handlers before returning.
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = pollTimeoutSeconds

	updates := b.api.GetUpdatesChan(u)
	defer b.handlers.Wait()

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.dispatch(ctx, update)
		}
	}
}

// dispatch detaches handlers from ctx's cancellation so that requests
// in flight at shutdown still complete or fail on their own timeouts.
func (b *Bot) dispatch(ctx context.Context, update tgbotapi.Update) {
	ctx = context.WithoutCancel(ctx)
	switch {
	case update.CallbackQuery != nil:
		b.goHandle(func() { b.handleCallback(ctx, update.CallbackQuery) })
	case update.Message != nil && update.Message.IsCommand() && update.Message.From != nil:
		b.goHandle(func() { b.handleCommand(ctx, update.Message) })
	}
}

func (b *Bot) goHandle(fn func()) {
	b.handlers.Add(1)
	go func() {
		defer b.handlers.Done()
		defer func() {
			if r := recover(); r != nil {
				b.log.Error("handler panic", "panic", r)
			}
		}()
		fn()
	}()
}

// Send delivers segments to destination, packed into as few messages as the
// Telegram size limit allows. destination is a numeric chat ID or an
// @channel username.
func (b *Bot) Send(ctx context.Context, destination string, segments []string) error {
	chatID, channel, err := parseDestination(destination)
	if err != nil {
		return err
	}
	for _, text := range JoinSegments(segments, maxMessageRunes) {
		var msg tgbotapi.MessageConfig
		if channel != "" {
			msg = tgbotapi.NewMessageToChannel(channel, text)
		} else {
			msg = tgbotapi.NewMessage(chatID, text)
		}
		msg.DisableWebPagePreview = true
		if err := b.send(ctx, msg); err != nil {
			return fmt.Errorf("send to %s: %w", destination, err)
		}
	}
	return nil
}

// SendMessage sends a text message to the given chat, logging failures.
func (b *Bot) SendMessage(ctx context.Context, chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	if err := b.send(ctx, msg); err != nil {
		b.log.Error("send message", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) reply(ctx context.Context, chatID int64, text string) {
	b.SendMessage(ctx, chatID, text)
}

func (b *Bot) replySegments(ctx context.Context, chatID int64, segments []string) {
	if err := b.Send(ctx, strconv.FormatInt(chatID, 10), segments); err != nil {
		b.log.Error("send reply", "chat_id", chatID, "error", err)
	}
}

// send waits for the rate limiter, picking up limit changes from settings.
func (b *Bot) send(ctx context.Context, c tgbotapi.Chattable) error {
	if rps := b.settings.Current().SendRate(); rate.Limit(rps) != b.limiter.Limit() {
		b.limiter.SetLimit(rate.Limit(rps))
		b.limiter.SetBurst(rps)
	}
	if err := b.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}
	if _, err := b.api.Send(c); err != nil {
		return err
	}
	return nil
}

func parseDestination(dest string) (int64, string, error) {
	dest = strings.TrimSpace(dest)
	if strings.HasPrefix(dest, "@") && len(dest) > 1 {
		return 0, dest, nil
	}
	id, err := strconv.ParseInt(dest, 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("%w %q", ErrInvalidDestination, dest)
	}
	return id, "", nil
}
