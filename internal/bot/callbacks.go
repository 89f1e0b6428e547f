package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"newsnow_bot/internal/access"
)

const (
	cbRemoveConfirm = "rmrule_confirm"
	cbRemove        = "rmrule"
	cbNoop          = "noop"
)

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	callback := tgbotapi.NewCallback(cb.ID, "")
	if _, err := b.api.Send(callback); err != nil {
		b.log.Error("send callback ack", "error", err)
	}

	if cb.Message == nil || cb.Message.Chat == nil || cb.From == nil {
		return
	}
	chatID := cb.Message.Chat.ID

	action, idStr, ok := strings.Cut(cb.Data, ":")
	if !ok {
		return
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return
	}

	lists := access.ListsFrom(b.settings.Current())
	if d := access.DecideIdentity(accessContext(cb.Message.Chat, cb.From, ""), lists); d.Verdict != access.Allow {
		return
	}

	b.log.Info("callback",
		"action", action,
		"id", id,
		"chat_id", chatID,
		"user_id", cb.From.ID,
		"username", cb.From.UserName,
	)

	switch action {
	case cbRemoveConfirm:
		r, ok := b.lookupOwnRule(ctx, chatID, id)
		if !ok {
			return
		}
		msg := tgbotapi.NewMessage(chatID, fmt.Sprintf("删除定时推送 #%d (%s %s)？", id, r.TimeOfDay, r.Source))
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("确认删除", fmt.Sprintf("%s:%d", cbRemove, id)),
				tgbotapi.NewInlineKeyboardButtonData("取消", cbNoop+":0"),
			),
		)
		if err := b.send(ctx, msg); err != nil {
			b.log.Error("send remove confirmation", "error", err)
		}
	case cbRemove:
		b.handleScheduleRemove(ctx, chatID, idStr)
	}
}
