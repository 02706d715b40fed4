package monitor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/mixelka/inboxrelay/internal/mailbox"
	"github.com/mixelka/inboxrelay/pkg/models"
)

// fakeMailbox is an in-memory provider keyed by address
type fakeMailbox struct {
	mu sync.Mutex

	inbox      map[string][]models.MessageSummary // newest first
	badTokens  map[string]bool
	listErr    error
	detailErr  map[string]error
	issued     string
	issueErr   error
	blockList  map[string]chan struct{}
	listCalls  map[string]int
	listTokens []string
	detailIDs  []string
	issueCalls int
	entered    chan string
}

func newFakeMailbox() *fakeMailbox {
	return &fakeMailbox{
		inbox:     make(map[string][]models.MessageSummary),
		badTokens: make(map[string]bool),
		detailErr: make(map[string]error),
		blockList: make(map[string]chan struct{}),
		listCalls: make(map[string]int),
		entered:   make(chan string, 16),
	}
}

// setInbox sets the listing to ids, newest first
func (f *fakeMailbox) setInbox(address string, ids ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	msgs := make([]models.MessageSummary, len(ids))
	for i, id := range ids {
		msgs[i] = models.MessageSummary{
			ID:      id,
			From:    models.Address{Address: "sender-" + id + "@example.com"},
			Subject: "subject " + id,
		}
	}
	f.inbox[address] = msgs
}

func (f *fakeMailbox) ListMessages(ctx context.Context, address, token string) ([]models.MessageSummary, error) {
	f.mu.Lock()
	f.listCalls[address]++
	f.listTokens = append(f.listTokens, token)
	block := f.blockList[address]
	f.mu.Unlock()

	select {
	case f.entered <- address:
	default:
	}

	if block != nil {
		<-block
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.badTokens[token] {
		return nil, fmt.Errorf("list messages: %w", mailbox.ErrUnauthorized)
	}
	if f.listErr != nil {
		return nil, f.listErr
	}
	msgs := make([]models.MessageSummary, len(f.inbox[address]))
	copy(msgs, f.inbox[address])
	return msgs, nil
}

func (f *fakeMailbox) GetMessage(ctx context.Context, address, token, id string) (*models.MessageDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.detailIDs = append(f.detailIDs, id)
	if err := f.detailErr[id]; err != nil {
		return nil, err
	}
	return &models.MessageDetail{ID: id, Text: "body of " + id}, nil
}

func (f *fakeMailbox) IssueToken(ctx context.Context, address, secret string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.issueCalls++
	if f.issueErr != nil {
		return "", f.issueErr
	}
	return f.issued, nil
}

func (f *fakeMailbox) tokens() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.listTokens...)
}

func (f *fakeMailbox) calls(address string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls[address]
}

func (f *fakeMailbox) issues() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.issueCalls
}

func (f *fakeMailbox) set(fn func(f *fakeMailbox)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

type sentNotification struct {
	chatID int64
	text   string
}

// fakeNotifier records every send
type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
	fail map[string]bool // by text
}

func (n *fakeNotifier) Send(ctx context.Context, chatID int64, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.sent = append(n.sent, sentNotification{chatID: chatID, text: text})
	if n.fail[text] {
		return fmt.Errorf("telegram: bad request")
	}
	return nil
}

func (n *fakeNotifier) texts(chatID int64) []string {
	n.mu.Lock()
	defer n.mu.Unlock()

	var texts []string
	for _, s := range n.sent {
		if s.chatID == chatID {
			texts = append(texts, s.text)
		}
	}
	return texts
}

// idFormatter renders a message as its id
type idFormatter struct{}

func (idFormatter) FormatMessage(msg *models.Message) string {
	return msg.ID
}

// fakeJournal records deliveries in memory
type fakeJournal struct {
	mu         sync.Mutex
	deliveries []models.Delivery
}

func (j *fakeJournal) RecordDelivery(ctx context.Context, d *models.Delivery) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.deliveries = append(j.deliveries, *d)
	return nil
}

func (j *fakeJournal) all() []models.Delivery {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]models.Delivery(nil), j.deliveries...)
}

type testEnv struct {
	sched    *Scheduler
	mailbox  *fakeMailbox
	notifier *fakeNotifier
	journal  *fakeJournal
}

// newTestEnv builds a scheduler whose regular interval never fires during a
// test, so ticks happen only on start, ForcePoll and token retries.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWith(t, Options{
		Interval:       time.Hour,
		RetryDelay:     10 * time.Millisecond,
		RequestTimeout: time.Second,
	})
}

func newTestEnvWith(t *testing.T, opts Options) *testEnv {
	t.Helper()

	env := &testEnv{
		mailbox:  newFakeMailbox(),
		notifier: &fakeNotifier{fail: make(map[string]bool)},
		journal:  &fakeJournal{},
	}
	env.sched = New(Deps{
		Mailbox:   env.mailbox,
		Notifier:  env.notifier,
		Formatter: idFormatter{},
		Journal:   env.journal,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		Options:   opts,
	})
	t.Cleanup(env.sched.StopAll)

	return env
}

const (
	waitFor   = 2 * time.Second
	pollEvery = 5 * time.Millisecond
)
