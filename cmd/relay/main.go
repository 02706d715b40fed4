package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mixelka/inboxrelay/internal/api"
	"github.com/mixelka/inboxrelay/internal/config"
	"github.com/mixelka/inboxrelay/internal/database"
	"github.com/mixelka/inboxrelay/internal/email"
	"github.com/mixelka/inboxrelay/internal/formatter"
	"github.com/mixelka/inboxrelay/internal/mailbox"
	"github.com/mixelka/inboxrelay/internal/mailtm"
	"github.com/mixelka/inboxrelay/internal/monitor"
	"github.com/mixelka/inboxrelay/internal/parser"
	"github.com/mixelka/inboxrelay/internal/telegram"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup logger
	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting inbox relay", "provider", cfg.MailboxProvider, "interval", cfg.PollInterval)

	ctx := context.Background()

	// Delivery journal (optional)
	var journal monitor.Journal
	var deliveries api.Deliveries
	if cfg.JournalEnabled() {
		db, err := database.New(cfg.DatabasePath)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		if err := db.Migrate(ctx); err != nil {
			logger.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}
		logger.Info("delivery journal enabled", "path", cfg.DatabasePath)
		journal = db
		deliveries = db
	}

	// Create components
	mailboxClient := newMailboxClient(cfg, logger)

	var codeDetector *parser.CodeDetector
	if cfg.DetectCodes {
		codeDetector = parser.NewCodeDetector()
	}
	notificationFormatter := formatter.NewNotificationFormatter(formatter.Options{
		MaxBodyLength: cfg.BodyPreviewLimit,
		HTMLParser:    parser.NewHTMLParser(),
		CodeDetector:  codeDetector,
	})

	// Create bot
	bot, err := telegram.NewBot(telegram.BotDeps{
		Token:  cfg.TelegramToken,
		Logger: logger,
	})
	if err != nil {
		logger.Error("failed to create bot", "error", err)
		os.Exit(1)
	}

	scheduler := monitor.New(monitor.Deps{
		Mailbox:   mailboxClient,
		Notifier:  bot,
		Formatter: notificationFormatter,
		Journal:   journal,
		Logger:    logger,
		Options: monitor.Options{
			Interval:       cfg.PollInterval,
			RetryDelay:     cfg.TokenRetryDelay,
			RequestTimeout: cfg.RequestTimeout,
		},
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if cfg.TelegramCommands {
		bot.EnableCommands(scheduler)
		go bot.Start(ctx)
	}

	apiServer := api.NewServer(api.ServerDeps{
		Monitors:     scheduler,
		Deliveries:   deliveries,
		Logger:       logger,
		CheckTimeout: cfg.RequestTimeout,
	})
	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Setup graceful shutdown
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh

		logger.Info("received shutdown signal", "signal", sig)
		logger.Info("shutting down...")

		// no new registrations once the monitors are being stopped
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http shutdown", "error", err)
		}

		cancel()
		scheduler.StopAll()
	}()

	// Start server
	logger.Info("relay is running, press Ctrl+C to stop", "addr", httpServer.Addr)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server failed", "error", err)
		os.Exit(1)
	}

	<-stopped
	logger.Info("relay stopped")
}

func newMailboxClient(cfg *config.Config, logger *slog.Logger) mailbox.Client {
	if cfg.MailboxProvider == config.ProviderIMAP {
		logger.Info("using IMAP mailbox provider", "server", cfg.IMAPServer)
		return email.NewClient(email.ClientConfig{
			Server:      cfg.IMAPServer,
			DialTimeout: cfg.IMAPDialTimeout,
			PlainText:   cfg.IMAPPlainText,
		}, logger)
	}

	logger.Info("using mail.tm mailbox provider", "base_url", cfg.MailTMBaseURL)
	return mailtm.NewClient(mailtm.Config{
		BaseURL: cfg.MailTMBaseURL,
		Timeout: cfg.RequestTimeout,
	})
}

func setupLogger(level, format string) *slog.Logger {
	var handler slog.Handler
	logLevel := parseLevel(level)

	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: logLevel,
		})
	} else {
		// Pretty colored output for console
		handler = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      logLevel,
			TimeFormat: time.DateTime,
		})
	}

	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
