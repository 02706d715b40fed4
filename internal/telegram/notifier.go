package telegram

import (
	"context"
	"fmt"
)

// Send delivers a notification to a chat. The text must already be
// MarkdownV2, with mail-provided fields escaped by the formatter.
func (b *Bot) Send(ctx context.Context, chatID int64, text string) error {
	if _, err := b.sendMessage(ctx, chatID, text); err != nil {
		return fmt.Errorf("failed to send to telegram: %w", err)
	}
	return nil
}
