package formatter

import (
	"fmt"
	"strings"

	"github.com/go-telegram/bot"

	"github.com/mixelka/inboxrelay/internal/parser"
	"github.com/mixelka/inboxrelay/pkg/models"
)

// DefaultMaxBodyLength keeps notifications well below Telegram's message limit
const DefaultMaxBodyLength = 800

const (
	unavailable = "unavailable"
	noContent   = "No content available"
	ellipsis    = "..."
)

// Options for the notification formatter
type Options struct {
	MaxBodyLength int
	HTMLParser    *parser.HTMLParser
	CodeDetector  *parser.CodeDetector // nil disables the code line
}

// NotificationFormatter formats new-mail notifications for Telegram
type NotificationFormatter struct {
	maxLength    int
	htmlParser   *parser.HTMLParser
	codeDetector *parser.CodeDetector
}

// NewNotificationFormatter creates a new notification formatter
func NewNotificationFormatter(opts Options) *NotificationFormatter {
	maxLength := opts.MaxBodyLength
	if maxLength <= 0 {
		maxLength = DefaultMaxBodyLength
	}

	htmlParser := opts.HTMLParser
	if htmlParser == nil {
		htmlParser = parser.NewHTMLParser()
	}

	return &NotificationFormatter{
		maxLength:    maxLength,
		htmlParser:   htmlParser,
		codeDetector: opts.CodeDetector,
	}
}

// FormatMessage renders a message into MarkdownV2 notification text.
// Every mail-provided field is escaped.
func (f *NotificationFormatter) FormatMessage(msg *models.Message) string {
	if msg == nil {
		msg = &models.Message{}
	}

	var sb strings.Builder

	sb.WriteString("📩 New Mail Received In Your Email ID 🪧\n\n")
	sb.WriteString(fmt.Sprintf("📇 From : %s\n\n", escape(orUnavailable(msg.FromAddr))))
	sb.WriteString(fmt.Sprintf("🗒️ Subject : %s\n\n", escape(orUnavailable(msg.Subject))))

	content := f.content(msg)
	sb.WriteString(fmt.Sprintf("💬 Text : *%s*", escape(f.truncate(content))))

	if f.codeDetector != nil && content != noContent {
		codes := f.codeDetector.DetectCodes(content)
		if len(codes) > 0 {
			values := make([]string, len(codes))
			for i, code := range codes {
				values[i] = "`" + escapeCode(code.Value) + "`"
			}
			sb.WriteString(fmt.Sprintf("\n\n🔑 Code : %s", strings.Join(values, " ")))
		}
	}

	return sb.String()
}

// content picks the text body, falling back to the HTML body, without markup
func (f *NotificationFormatter) content(msg *models.Message) string {
	content := msg.BodyText
	if content == "" && msg.BodyHTML != "" {
		parsed, err := f.htmlParser.Parse(msg.BodyHTML)
		if err != nil {
			parsed = msg.BodyHTML
		}
		content = parsed
	}

	content = parser.StripTags(content)
	if strings.TrimSpace(content) == "" {
		return noContent
	}
	return content
}

// truncate truncates text to maxLength characters
func (f *NotificationFormatter) truncate(s string) string {
	runes := []rune(s)
	if len(runes) <= f.maxLength {
		return s
	}
	return string(runes[:f.maxLength]) + ellipsis
}

func orUnavailable(s string) string {
	if strings.TrimSpace(s) == "" {
		return unavailable
	}
	return s
}

// escape makes mail text literal in MarkdownV2. bot.EscapeMarkdown leaves
// the backslash alone, so it is doubled first.
func escape(s string) string {
	return bot.EscapeMarkdown(strings.ReplaceAll(s, `\`, `\\`))
}

// escapeCode escapes the two characters MarkdownV2 reserves inside code spans
func escapeCode(s string) string {
	return codeEscaper.Replace(s)
}

var codeEscaper = strings.NewReplacer("\\", "\\\\", "`", "\\`")
