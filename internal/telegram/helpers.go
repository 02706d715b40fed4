package telegram

import (
	"context"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// sendMessage sends a MarkdownV2 message to a chat
func (b *Bot) sendMessage(ctx context.Context, chatID int64, text string) (*models.Message, error) {
	return b.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      text,
		ParseMode: models.ParseModeMarkdown,
	})
}

// reply answers a command, logging instead of failing
func (b *Bot) reply(ctx context.Context, chatID int64, text string) {
	if _, err := b.sendMessage(ctx, chatID, text); err != nil {
		b.logger.Error("failed to send reply", "chat_id", chatID, "error", err)
	}
}
