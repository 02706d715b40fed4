package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Mailbox providers
const (
	ProviderMailTM = "mailtm"
	ProviderIMAP   = "imap"
)

// Config application configuration
type Config struct {
	// Telegram
	TelegramToken    string `env:"TELEGRAM_BOT_TOKEN,required,notEmpty"`
	TelegramCommands bool   `env:"TELEGRAM_COMMANDS" envDefault:"false"` // answer /status, /stop, /check in chats

	// HTTP
	Port string `env:"PORT" envDefault:"3000"`

	// Mailbox provider
	MailboxProvider string        `env:"MAILBOX_PROVIDER" envDefault:"mailtm"` // "mailtm" or "imap"
	MailTMBaseURL   string        `env:"MAILTM_BASE_URL" envDefault:"https://api.mail.tm"`
	IMAPServer      string        `env:"IMAP_SERVER"` // host:port, resolved from the address when empty
	IMAPDialTimeout time.Duration `env:"IMAP_DIAL_TIMEOUT" envDefault:"30s"`
	IMAPPlainText   bool          `env:"IMAP_PLAINTEXT" envDefault:"false"` // local bridges without TLS
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`

	// Monitoring
	PollInterval     time.Duration `env:"POLL_INTERVAL" envDefault:"15s"`
	TokenRetryDelay  time.Duration `env:"TOKEN_RETRY_DELAY" envDefault:"1s"`
	BodyPreviewLimit int           `env:"BODY_PREVIEW_LIMIT" envDefault:"800"`
	DetectCodes      bool          `env:"DETECT_CODES" envDefault:"false"`

	// Delivery journal, empty disables it
	DatabasePath string `env:"DATABASE_PATH" envDefault:"./data/relay.db"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"` // "json" or "text"
}

// JournalEnabled returns true if the delivery journal is configured
func (c *Config) JournalEnabled() bool {
	return c.DatabasePath != ""
}

// Addr returns the HTTP listen address
func (c *Config) Addr() string {
	return ":" + c.Port
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks values env tags cannot express
func (c *Config) Validate() error {
	switch c.MailboxProvider {
	case ProviderMailTM, ProviderIMAP:
	default:
		return fmt.Errorf("MAILBOX_PROVIDER must be %q or %q, got %q", ProviderMailTM, ProviderIMAP, c.MailboxProvider)
	}

	if c.PollInterval <= 0 {
		return fmt.Errorf("POLL_INTERVAL must be positive, got %s", c.PollInterval)
	}
	if c.TokenRetryDelay <= 0 {
		return fmt.Errorf("TOKEN_RETRY_DELAY must be positive, got %s", c.TokenRetryDelay)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive, got %s", c.RequestTimeout)
	}
	if c.BodyPreviewLimit <= 0 {
		return fmt.Errorf("BODY_PREVIEW_LIMIT must be positive, got %d", c.BodyPreviewLimit)
	}

	return nil
}
