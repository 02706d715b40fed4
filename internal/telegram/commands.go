package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/mixelka/inboxrelay/internal/monitor"
	appmodels "github.com/mixelka/inboxrelay/pkg/models"
)

// Replies are MarkdownV2, so literal dots are escaped
const (
	notMonitoringText = `📭 No inbox is being monitored for this chat\.`
	stoppedText       = `🛑 Monitoring stopped\.`
	checkedText       = `✅ Inbox checked\.`
	checkFailedText   = `⚠️ Could not check the inbox right now, try again later\.`
)

// checkTimeout bounds how long /check waits for the forced poll
const checkTimeout = 30 * time.Second

// handleStatus handles /status command
func (b *Bot) handleStatus(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	chatID := update.Message.Chat.ID
	b.reply(ctx, chatID, statusText(b.monitors.Status(chatID)))
}

// handleStop handles /stop command
func (b *Bot) handleStop(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	chatID := update.Message.Chat.ID
	if !b.monitors.Stop(chatID) {
		b.reply(ctx, chatID, notMonitoringText)
		return
	}

	b.logger.Info("monitoring stopped from chat", "chat_id", chatID)
	b.reply(ctx, chatID, stoppedText)
}

// handleCheck handles /check command
func (b *Bot) handleCheck(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	chatID := update.Message.Chat.ID

	checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	b.reply(ctx, chatID, checkText(b.monitors.ForcePoll(checkCtx, chatID)))
}

// statusText renders a monitor status for a chat reply
func statusText(status appmodels.MonitorStatus) string {
	if !status.Active {
		return notMonitoringText
	}
	address := strings.NewReplacer(`\`, `\\`, "`", "\\`").Replace(status.MailAddress)
	return fmt.Sprintf("📬 Monitoring `%s`\n\n📊 Messages seen : %d", address, status.MessageCount)
}

// checkText renders the outcome of a forced poll
func checkText(err error) string {
	switch {
	case err == nil:
		return checkedText
	case errors.Is(err, monitor.ErrNotFound):
		return notMonitoringText
	default:
		return checkFailedText
	}
}
