package monitor

import (
	"context"
	"log/slog"
	"time"

	"github.com/mixelka/inboxrelay/internal/mailbox"
	"github.com/mixelka/inboxrelay/internal/metrics"
	"github.com/mixelka/inboxrelay/pkg/models"
)

// tick checks the inbox once and notifies about new messages.
//
// retryToken is set only for the retry that follows a token refresh; that
// retry never refreshes again. The returned token is non-empty when this
// tick refreshed the credential and wants a retry scheduled.
func (s *Scheduler) tick(rec *record, retryToken string, logger *slog.Logger) string {
	creds, ok := s.store.credentials(rec)
	if !ok {
		return ""
	}

	retrying := retryToken != ""
	token := creds.token
	if retrying {
		token = retryToken
	}

	ctx, cancel := context.WithTimeout(rec.ctx, s.opts.RequestTimeout)
	messages, err := s.mailbox.ListMessages(ctx, creds.address, token)
	cancel()

	if err != nil {
		if rec.ctx.Err() != nil {
			metrics.Ticks.WithLabelValues(metrics.TickDiscarded).Inc()
			return ""
		}
		if mailbox.IsUnauthorized(err) {
			metrics.Ticks.WithLabelValues(metrics.TickUnauthorized).Inc()
			if retrying {
				logger.Warn("refreshed token rejected, waiting for next tick", "error", err)
				return ""
			}
			return s.refreshToken(rec, creds, logger)
		}
		metrics.Ticks.WithLabelValues(metrics.TickError).Inc()
		logger.Error("failed to check inbox", "error", err)
		return ""
	}

	currentCount := len(messages)
	if currentCount <= creds.lastSeen {
		metrics.Ticks.WithLabelValues(metrics.TickUnchanged).Inc()
		return ""
	}

	// newest first, so the head of the listing is the delta
	newMessages := messages[:currentCount-creds.lastSeen]
	logger.Info("new messages", "count", len(newMessages), "total", currentCount)

	for _, summary := range newMessages {
		if rec.ctx.Err() != nil {
			metrics.Ticks.WithLabelValues(metrics.TickDiscarded).Inc()
			return ""
		}
		if summary.ID == "" {
			// counted by the provider but not listed, nothing to fetch
			logger.Debug("skipping unlisted message")
			continue
		}
		s.deliver(rec, creds.address, token, summary, logger)
	}

	if !s.store.advance(rec, currentCount) {
		metrics.Ticks.WithLabelValues(metrics.TickDiscarded).Inc()
		return ""
	}
	metrics.Ticks.WithLabelValues(metrics.TickNewMail).Inc()
	return ""
}

// deliver fetches one message, formats it and sends the notification.
// Failures are logged and contained.
func (s *Scheduler) deliver(rec *record, address, token string, summary models.MessageSummary, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(rec.ctx, s.opts.RequestTimeout)
	defer cancel()

	detail, err := s.mailbox.GetMessage(ctx, address, token, summary.ID)
	if err != nil {
		metrics.DetailFailures.Inc()
		logger.Error("failed to get message details", "message_id", summary.ID, "error", err)
		return
	}

	text := s.formatter.FormatMessage(models.NewMessage(summary, detail))

	delivery := &models.Delivery{
		ChatID:      rec.userID,
		MailAddress: address,
		MessageID:   summary.ID,
		FromAddr:    summary.From.Address,
		Subject:     summary.Subject,
		Status:      models.DeliverySent,
	}

	if err := s.notifier.Send(ctx, rec.userID, text); err != nil {
		metrics.Notifications.WithLabelValues(metrics.ResultFailed).Inc()
		logger.Error("failed to send notification", "message_id", summary.ID, "error", err)
		delivery.Status = models.DeliveryFailed
		delivery.Error = err.Error()
	} else {
		metrics.Notifications.WithLabelValues(metrics.ResultOK).Inc()
		logger.Debug("notification sent", "message_id", summary.ID)
	}

	s.record(delivery, logger)
}

// refreshToken issues a new token from the stored secret
func (s *Scheduler) refreshToken(rec *record, creds credentials, logger *slog.Logger) string {
	if creds.secret == "" {
		logger.Warn("token expired and no password on record")
		return ""
	}

	logger.Info("token expired, attempting to refresh")

	ctx, cancel := context.WithTimeout(rec.ctx, s.opts.RequestTimeout)
	defer cancel()

	token, err := s.mailbox.IssueToken(ctx, creds.address, creds.secret)
	if err != nil {
		if rec.ctx.Err() != nil {
			return ""
		}
		metrics.TokenRefreshes.WithLabelValues(metrics.ResultFailed).Inc()
		logger.Error("failed to refresh token", "error", err)
		return ""
	}

	if !s.store.replaceToken(rec, token) {
		return ""
	}

	metrics.TokenRefreshes.WithLabelValues(metrics.ResultOK).Inc()
	logger.Info("token refreshed, retrying", "delay", s.opts.RetryDelay)
	return token
}

// record writes the delivery to the journal. Failures are only logged.
func (s *Scheduler) record(d *models.Delivery, logger *slog.Logger) {
	if s.journal == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.journal.RecordDelivery(ctx, d); err != nil {
		logger.Warn("failed to record delivery", "message_id", d.MessageID, "error", err)
	}
}
