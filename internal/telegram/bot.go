package telegram

import (
	"context"
	"log/slog"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	appmodels "github.com/mixelka/inboxrelay/pkg/models"
)

// Monitors is the part of the scheduler the chat commands drive
type Monitors interface {
	Status(userID int64) appmodels.MonitorStatus
	Stop(userID int64) bool
	ForcePoll(ctx context.Context, userID int64) error
}

// Bot represents the Telegram bot
type Bot struct {
	bot      *bot.Bot
	monitors Monitors
	logger   *slog.Logger
}

// BotDeps dependencies for creating a bot
type BotDeps struct {
	Token  string
	Logger *slog.Logger
}

// NewBot creates a new Telegram bot
func NewBot(deps BotDeps) (*Bot, error) {
	b := &Bot{
		logger: deps.Logger.With("component", "telegram_bot"),
	}

	opts := []bot.Option{
		bot.WithDefaultHandler(b.defaultHandler),
	}

	tgBot, err := bot.New(deps.Token, opts...)
	if err != nil {
		return nil, err
	}

	b.bot = tgBot
	return b, nil
}

// EnableCommands registers the chat commands backed by monitors
func (b *Bot) EnableCommands(monitors Monitors) {
	b.monitors = monitors
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/status", bot.MatchTypePrefix, b.handleStatus)
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/stop", bot.MatchTypePrefix, b.handleStop)
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/check", bot.MatchTypePrefix, b.handleCheck)
}

// Start receives updates until ctx is cancelled
func (b *Bot) Start(ctx context.Context) {
	b.logger.Info("starting telegram bot")
	b.bot.Start(ctx)
}

// defaultHandler handles unknown messages
func (b *Bot) defaultHandler(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}

	if update.Message.Text != "" && update.Message.Text[0] == '/' {
		b.logger.Debug("unknown command", "text", update.Message.Text)
	}
}
