package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"newsnow_bot/internal/access"
	"newsnow_bot/internal/model"
	"newsnow_bot/internal/storage"
)

// OnDemandTimeout bounds the fetch behind /news.
const OnDemandTimeout = 15 * time.Second

const (
	cmdNews           = "news"
	cmdNewsID         = "news_id"
	cmdScheduleAdd    = "schedule_add"
	cmdScheduleList   = "schedule_list"
	cmdScheduleRemove = "schedule_remove"
)

// accessContext builds the policy input for a message. Group and supergroup
// chats carry a group ID; private chats do not.
func accessContext(chat *tgbotapi.Chat, from *tgbotapi.User, source string) model.AccessContext {
	ctx := model.AccessContext{Source: source}
	if from != nil {
		ctx.CallerID = strconv.FormatInt(from.ID, 10)
	}
	if chat != nil && (chat.IsGroup() || chat.IsSuperGroup()) {
		ctx.GroupID = strconv.FormatInt(chat.ID, 10)
	}
	return ctx
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	cmd := msg.Command()
	args := strings.TrimSpace(msg.CommandArguments())
	chatID := msg.Chat.ID

	b.log.Debug("command", "cmd", cmd, "args", args, "chat_id", chatID, "user_id", msg.From.ID)

	switch cmd {
	case cmdNewsID:
		b.handleNewsID(ctx, chatID)
		return
	case cmdNews:
		b.handleNews(ctx, msg, args)
		return
	}

	lists := access.ListsFrom(b.settings.Current())
	if d := access.DecideIdentity(accessContext(msg.Chat, msg.From, ""), lists); d.Verdict != access.Allow {
		b.log.Debug("command denied", "cmd", cmd, "chat_id", chatID, "user_id", msg.From.ID)
		return
	}

	switch cmd {
	case "start":
		b.handleStart(ctx, chatID)
	case "help":
		b.handleHelp(ctx, chatID)
	case cmdScheduleAdd:
		b.handleScheduleAdd(ctx, msg, args)
	case cmdScheduleList:
		b.handleScheduleList(ctx, chatID)
	case cmdScheduleRemove:
		b.handleScheduleRemove(ctx, chatID, args)
	default:
		b.reply(ctx, chatID, "未知命令，使用 /help 查看帮助。")
	}
}

func (b *Bot) handleStart(ctx context.Context, chatID int64) {
	b.reply(ctx, chatID, `欢迎使用 NewsNow 热点机器人！

获取各平台实时热点，也可以定时推送到当前会话。

快速开始:
1. /news — 知乎实时热点
2. /news weibo — 指定数据源
3. /schedule_add 08:00 weibo — 每天 08:00 推送

使用 /help 查看全部命令。`)
}

func (b *Bot) handleHelp(ctx context.Context, chatID int64) {
	b.reply(ctx, chatID, `热点新闻:
/news [source] — 获取实时热点 (默认 zhihu)
  常用数据源: zhihu, weibo, 36kr, ithome, baidu
/news_id — 显示当前会话 ID (用于 scheduled_tasks)

定时推送:
/schedule_add HH:MM [source] — 每天定时推送到当前会话
/schedule_list — 查看当前会话的定时推送
/schedule_remove <id> — 删除定时推送`)
}

func (b *Bot) handleNewsID(ctx context.Context, chatID int64) {
	b.reply(ctx, chatID, fmt.Sprintf("当前会话 ID: %d\n定时任务格式: HH:MM#%d#source", chatID, chatID))
}

// handleNews serves /news. Identity and group denials produce no output at all.
func (b *Bot) handleNews(ctx context.Context, msg *tgbotapi.Message, args string) {
	chatID := msg.Chat.ID
	source := ParseSourceArg(args)
	s := b.settings.Current()

	d := access.Decide(accessContext(msg.Chat, msg.From, source), access.ListsFrom(s))
	switch d.Verdict {
	case access.DenySilent:
		b.log.Debug("news denied", "chat_id", chatID, "user_id", msg.From.ID)
		return
	case access.DenyExplicit:
		b.reply(ctx, chatID, fmt.Sprintf("❌ %s: %s", d.Reason, source))
		return
	}

	if _, ok := s.FeedURL(source); !ok {
		if err := s.RequireAPIURL(); err != nil {
			b.log.Warn("news requested without api_url", "chat_id", chatID)
			b.reply(ctx, chatID, "❌ 配置错误：未设置 api_url，请联系管理员检查机器人设置。")
			return
		}
	}

	b.reply(ctx, chatID, fmt.Sprintf("正在从 %s 获取最新热点...", source))

	result := b.fetcher.Fetch(ctx, source, OnDemandTimeout)
	if result.Failed() {
		b.log.Warn("news fetch failed",
			"source", source,
			"kind", result.Kind.String(),
			"status", result.StatusCode,
			"reason", result.Reason,
		)
	}
	b.replySegments(ctx, chatID, FormatResult(result))
}

func (b *Bot) handleScheduleAdd(ctx context.Context, msg *tgbotapi.Message, args string) {
	chatID := msg.Chat.ID
	parsed, err := ParseScheduleArgs(args)
	if err != nil {
		b.reply(ctx, chatID, err.Error())
		return
	}

	d := access.Decide(accessContext(msg.Chat, msg.From, parsed.Source), access.ListsFrom(b.settings.Current()))
	switch d.Verdict {
	case access.DenySilent:
		return
	case access.DenyExplicit:
		b.reply(ctx, chatID, fmt.Sprintf("❌ %s: %s", d.Reason, parsed.Source))
		return
	}

	r := &model.StoredRule{
		Destination: strconv.FormatInt(chatID, 10),
		TimeOfDay:   parsed.TimeOfDay,
		Source:      parsed.Source,
		CreatedBy:   strconv.FormatInt(msg.From.ID, 10),
	}
	if err := b.store.CreateRule(ctx, r); err != nil {
		b.log.Error("create rule", "chat_id", chatID, "error", err)
		b.reply(ctx, chatID, fmt.Sprintf("保存失败: %v", err))
		return
	}

	b.log.Info("rule added", "rule_id", r.ID, "chat_id", chatID, "time", r.TimeOfDay, "source", r.Source)
	b.reply(ctx, chatID, fmt.Sprintf("已添加定时推送 #%d: 每天 %s 推送 %s", r.ID, r.TimeOfDay, r.Source))
}

func (b *Bot) handleScheduleList(ctx context.Context, chatID int64) {
	rules, err := b.store.ListRules(ctx, strconv.FormatInt(chatID, 10))
	if err != nil {
		b.reply(ctx, chatID, fmt.Sprintf("查询失败: %v", err))
		return
	}

	msg := tgbotapi.NewMessage(chatID, FormatRuleList(rules))
	if len(rules) > 0 {
		var rows [][]tgbotapi.InlineKeyboardButton
		for _, r := range rules {
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData(
					fmt.Sprintf("删除 #%d %s %s", r.ID, r.TimeOfDay, r.Source),
					fmt.Sprintf("%s:%d", cbRemoveConfirm, r.ID),
				),
			))
		}
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	}
	if err := b.send(ctx, msg); err != nil {
		b.log.Error("send rule list", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) handleScheduleRemove(ctx context.Context, chatID int64, args string) {
	id, err := ParseIDArg(args)
	if err != nil {
		b.reply(ctx, chatID, "用法: /schedule_remove <id>")
		return
	}

	r, ok := b.lookupOwnRule(ctx, chatID, id)
	if !ok {
		return
	}

	if err := b.store.DeleteRule(ctx, id); err != nil && !errors.Is(err, storage.ErrNotFound) {
		b.reply(ctx, chatID, fmt.Sprintf("删除失败: %v", err))
		return
	}
	b.log.Info("rule removed", "rule_id", id, "chat_id", chatID)
	b.reply(ctx, chatID, fmt.Sprintf("已删除定时推送 #%d (%s %s)。", id, r.TimeOfDay, r.Source))
}

// lookupOwnRule loads rule id for chatID and replies on failure. Rules of
// other chats are reported as missing.
func (b *Bot) lookupOwnRule(ctx context.Context, chatID, id int64) (*model.StoredRule, bool) {
	r, err := b.store.GetRule(ctx, id)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		b.log.Error("get rule", "rule_id", id, "chat_id", chatID, "error", err)
		b.reply(ctx, chatID, fmt.Sprintf("查询失败: %v", err))
		return nil, false
	case r.Destination == strconv.FormatInt(chatID, 10):
		return r, true
	}
	b.reply(ctx, chatID, fmt.Sprintf("定时推送 #%d 不存在。", id))
	return nil, false
}
