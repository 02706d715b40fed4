// Package monitor runs one independent polling loop per registered user,
// turning new mailbox messages into notifications.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/mixelka/inboxrelay/internal/mailbox"
	"github.com/mixelka/inboxrelay/internal/metrics"
	"github.com/mixelka/inboxrelay/pkg/models"
)

// ErrNotFound is returned for operations on a user that is not monitored
var ErrNotFound = errors.New("user not monitored")

// ErrClosed is returned by Start once StopAll has run
var ErrClosed = errors.New("scheduler closed")

// ErrInvalidRegistration is returned when required registration fields are missing
var ErrInvalidRegistration = errors.New("missing required fields")

// Default loop timings
const (
	DefaultInterval       = 15 * time.Second
	DefaultRetryDelay     = time.Second
	DefaultRequestTimeout = 30 * time.Second
)

// Notifier delivers notification text to a user
type Notifier interface {
	Send(ctx context.Context, chatID int64, text string) error
}

// Formatter renders a message into notification text
type Formatter interface {
	FormatMessage(msg *models.Message) string
}

// Journal records notification attempts
type Journal interface {
	RecordDelivery(ctx context.Context, d *models.Delivery) error
}

// Options tune the polling loops
type Options struct {
	Interval       time.Duration // between regular ticks
	RetryDelay     time.Duration // before the retry that follows a token refresh
	RequestTimeout time.Duration // per mailbox / notifier call
}

// Deps dependencies for creating a scheduler
type Deps struct {
	Mailbox   mailbox.Client
	Notifier  Notifier
	Formatter Formatter
	Journal   Journal // optional
	Logger    *slog.Logger
	Options   Options
}

// Registration is what a user registers for monitoring
type Registration struct {
	UserID      int64
	MailAddress string
	Token       string
	Secret      string // optional, enables token refresh
}

// Validate checks that all required fields are present
func (r Registration) Validate() error {
	var missing []string
	if r.UserID == 0 {
		missing = append(missing, "chat_id")
	}
	if strings.TrimSpace(r.MailAddress) == "" {
		missing = append(missing, "email")
	}
	if strings.TrimSpace(r.Token) == "" {
		missing = append(missing, "token")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidRegistration, strings.Join(missing, ", "))
	}
	return nil
}

// Scheduler owns the set of monitored users and their polling loops
type Scheduler struct {
	store     *store
	mailbox   mailbox.Client
	notifier  Notifier
	formatter Formatter
	journal   Journal
	opts      Options
	logger    *slog.Logger
	wg        sync.WaitGroup

	// mu orders Start against StopAll so no loop is added after the wait
	mu     sync.Mutex
	closed bool
}

// New creates a new scheduler
func New(deps Deps) *Scheduler {
	opts := deps.Options
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Scheduler{
		store:     newStore(),
		mailbox:   deps.Mailbox,
		notifier:  deps.Notifier,
		formatter: deps.Formatter,
		journal:   deps.Journal,
		opts:      opts,
		logger:    logger.With("component", "monitor"),
	}
}

// Start begins monitoring a user, replacing any existing monitor for them.
// The first poll runs immediately in the background.
func (s *Scheduler) Start(reg Registration) error {
	if err := reg.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	rec := &record{
		userID:  reg.UserID,
		address: reg.MailAddress,
		secret:  reg.Secret,
		token:   reg.Token,
		ctx:     ctx,
		cancel:  cancel,
		force:   make(chan chan struct{}),
		done:    make(chan struct{}),
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		cancel()
		return ErrClosed
	}
	replaced := s.store.put(rec)
	s.wg.Add(1)
	s.mu.Unlock()

	if replaced {
		s.logger.Info("replaced existing monitor", "chat_id", reg.UserID)
	}
	metrics.ActiveMonitors.Set(float64(s.store.size()))

	go s.run(rec)

	s.logger.Info("started monitoring", "chat_id", reg.UserID, "email", reg.MailAddress)
	return nil
}

// Stop stops monitoring a user and forgets all of their state.
// It reports whether the user was monitored.
func (s *Scheduler) Stop(userID int64) bool {
	rec := s.store.remove(userID)
	if rec == nil {
		return false
	}
	metrics.ActiveMonitors.Set(float64(s.store.size()))

	s.logger.Info("stopped monitoring", "chat_id", userID)
	return true
}

// Status returns the monitoring state of a user
func (s *Scheduler) Status(userID int64) models.MonitorStatus {
	return s.store.status(userID)
}

// ListActive returns a snapshot of all monitors ordered by user
func (s *Scheduler) ListActive() []models.MonitorSummary {
	return s.store.snapshot()
}

// Count returns the number of monitored users
func (s *Scheduler) Count() int {
	return s.store.size()
}

// ForcePoll runs one tick for the user now and waits for it to finish.
// The tick runs inside the user's loop, so it never overlaps a scheduled one.
func (s *Scheduler) ForcePoll(ctx context.Context, userID int64) error {
	rec, ok := s.store.get(userID)
	if !ok {
		return ErrNotFound
	}

	reply := make(chan struct{})
	select {
	case rec.force <- reply:
	case <-rec.done:
		return ErrNotFound
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-reply:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// StopAll stops every monitor and waits for their loops to exit.
// Start fails with ErrClosed afterwards.
func (s *Scheduler) StopAll() {
	s.logger.Info("stopping all monitors")

	s.mu.Lock()
	s.closed = true
	recs := s.store.drain()
	s.mu.Unlock()

	for _, rec := range recs {
		s.logger.Info("stopped monitoring", "chat_id", rec.userID)
	}
	metrics.ActiveMonitors.Set(0)

	s.wg.Wait()
	s.logger.Info("all monitors stopped")
}

// pendingRetry is the one-shot tick armed after a token refresh
type pendingRetry struct {
	timer *time.Timer
	token string
}

// run is the polling loop of one user. Regular, forced and retry ticks
// all execute here, one at a time.
func (s *Scheduler) run(rec *record) {
	defer s.wg.Done()
	defer close(rec.done)

	logger := s.logger.With("chat_id", rec.userID, "email", rec.address)

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	var retry *pendingRetry
	defer func() {
		if retry != nil {
			retry.timer.Stop()
		}
	}()

	retry = s.arm(retry, s.tick(rec, "", logger))

	for {
		var retryC <-chan time.Time
		if retry != nil {
			retryC = retry.timer.C
		}

		select {
		case <-rec.ctx.Done():
			return
		case <-ticker.C:
			retry = s.arm(retry, s.tick(rec, "", logger))
		case <-retryC:
			token := retry.token
			retry = nil
			s.tick(rec, token, logger)
		case reply := <-rec.force:
			retry = s.arm(retry, s.tick(rec, "", logger))
			close(reply)
		}
	}
}

// arm schedules a retry with the refreshed token, replacing a pending one
func (s *Scheduler) arm(current *pendingRetry, token string) *pendingRetry {
	if token == "" {
		return current
	}
	if current != nil {
		current.timer.Stop()
	}
	return &pendingRetry{
		timer: time.NewTimer(s.opts.RetryDelay),
		token: token,
	}
}
