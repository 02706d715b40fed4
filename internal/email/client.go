package email

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message/mail"

	"github.com/mixelka/inboxrelay/internal/mailbox"
	"github.com/mixelka/inboxrelay/pkg/models"
)

// DefaultListLimit is how many of the newest messages get envelopes
const DefaultListLimit = 50

// ClientConfig configuration for IMAP client
type ClientConfig struct {
	Server      string // host:port, resolved from the address when empty
	DialTimeout time.Duration
	ListLimit   int  // newest messages listed with envelopes
	PlainText   bool // no TLS, for local bridges
}

// Client is a mailbox provider backed by IMAP. The account password is
// used as the token, every call opens its own session.
type Client struct {
	config  ClientConfig
	logger  *slog.Logger
	servers sync.Map // domain -> host:port
}

// NewClient creates a new IMAP client
func NewClient(cfg ClientConfig, logger *slog.Logger) *Client {
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 30 * time.Second
	}
	if cfg.ListLimit <= 0 {
		cfg.ListLimit = DefaultListLimit
	}
	return &Client{
		config: cfg,
		logger: logger.With("component", "imap"),
	}
}

// ListMessages returns one entry per message in INBOX, newest first, so
// the listing length is the mailbox total. Only the newest ListLimit
// entries carry sender and subject; older ones carry the UID alone.
func (c *Client) ListMessages(ctx context.Context, address, token string) ([]models.MessageSummary, error) {
	const op = "list messages"

	sess, err := c.connect(ctx, op, address, token)
	if err != nil {
		return nil, err
	}
	defer sess.close()

	if _, err := sess.client.Select("INBOX", true); err != nil {
		return nil, sess.fail(op, fmt.Errorf("failed to select INBOX: %w", err))
	}

	uids, err := sess.client.UidSearch(imap.NewSearchCriteria())
	if err != nil {
		return nil, sess.fail(op, fmt.Errorf("failed to search: %w", err))
	}

	summaries, head := listing(uids, c.config.ListLimit)
	if len(head) == 0 {
		return summaries, nil
	}

	position := make(map[uint32]int, len(head))
	for i, uid := range head {
		position[uid] = i
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(head...)

	messages := make(chan *imap.Message, len(head))
	done := make(chan error, 1)
	go func() {
		done <- sess.client.UidFetch(seqSet, []imap.FetchItem{imap.FetchEnvelope, imap.FetchUid, imap.FetchInternalDate}, messages)
	}()

	for msg := range messages {
		if i, ok := position[msg.Uid]; ok {
			summaries[i] = summaryFromMessage(msg)
		}
	}
	if err := <-done; err != nil {
		return nil, sess.fail(op, fmt.Errorf("failed to fetch: %w", err))
	}

	return summaries, nil
}

// GetMessage fetches and parses one message by UID
func (c *Client) GetMessage(ctx context.Context, address, token, id string) (*models.MessageDetail, error) {
	const op = "get message"

	uid, err := strconv.ParseUint(id, 10, 32)
	if err != nil {
		return nil, &mailbox.ProviderError{Op: op, Err: fmt.Errorf("invalid uid %q", id)}
	}

	sess, err := c.connect(ctx, op, address, token)
	if err != nil {
		return nil, err
	}
	defer sess.close()

	if _, err := sess.client.Select("INBOX", true); err != nil {
		return nil, sess.fail(op, fmt.Errorf("failed to select INBOX: %w", err))
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uint32(uid))

	section := &imap.BodySectionName{Peek: true}
	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- sess.client.UidFetch(seqSet, []imap.FetchItem{imap.FetchUid, section.FetchItem()}, messages)
	}()

	var detail *models.MessageDetail
	for msg := range messages {
		body := msg.GetBody(section)
		if body == nil {
			continue
		}
		detail, err = parseBody(body)
		if err != nil {
			c.logger.Warn("failed to parse message", "uid", msg.Uid, "error", err)
		}
	}
	if err := <-done; err != nil {
		return nil, sess.fail(op, fmt.Errorf("failed to fetch: %w", err))
	}
	if detail == nil {
		return nil, &mailbox.ProviderError{Op: op, Err: fmt.Errorf("message %s not found", id)}
	}

	detail.ID = id
	return detail, nil
}

// IssueToken verifies the password with a login and hands it back as the token
func (c *Client) IssueToken(ctx context.Context, address, secret string) (string, error) {
	sess, err := c.connect(ctx, "issue token", address, secret)
	if err != nil {
		return "", err
	}
	sess.close()
	return secret, nil
}

// session is one logged-in IMAP connection bound to a context
type session struct {
	client *client.Client
	ctx    context.Context
	stop   func() bool
}

// connect dials the server for address and logs in. A login the server
// answers with NO or BAD maps to mailbox.ErrUnauthorized; a connection
// lost during login stays a provider error.
func (c *Client) connect(ctx context.Context, op, address, password string) (*session, error) {
	server, err := c.server(ctx, address)
	if err != nil {
		return nil, &mailbox.ProviderError{Op: op, Err: err}
	}

	dialer := &net.Dialer{Timeout: c.config.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", server)
	if err != nil {
		return nil, &mailbox.ProviderError{Op: op, Err: fmt.Errorf("failed to connect: %w", err)}
	}

	if !c.config.PlainText {
		host, _, _ := net.SplitHostPort(server)
		tlsConn := tls.Client(conn, &tls.Config{ServerName: host})
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			conn.Close()
			return nil, &mailbox.ProviderError{Op: op, Err: fmt.Errorf("tls handshake: %w", err)}
		}
		conn = tlsConn
	}

	// bounds the greeting read, which happens before cancellation is wired
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	imapClient, err := client.New(conn)
	if err != nil {
		conn.Close()
		return nil, &mailbox.ProviderError{Op: op, Err: fmt.Errorf("failed to create IMAP client: %w", err)}
	}

	// go-imap v1 has no context support, cancelling drops the connection
	sess := &session{
		client: imapClient,
		ctx:    ctx,
		stop:   context.AfterFunc(ctx, func() { imapClient.Terminate() }),
	}

	if err := imapClient.Login(address, password); err != nil {
		rejected := loginRejected(imapClient)
		failed := sess.fail(op, fmt.Errorf("failed to login: %w", err))
		sess.close()
		if ctx.Err() != nil || !rejected {
			return nil, failed
		}
		c.logger.Debug("login rejected", "email", address, "error", err)
		return nil, fmt.Errorf("%s: %w", op, mailbox.ErrUnauthorized)
	}

	return sess, nil
}

// loginRejected reports whether the server answered the login, as opposed
// to the connection dropping under it
func loginRejected(c *client.Client) bool {
	select {
	case <-c.LoggedOut():
		return false
	default:
		return true
	}
}

// fail wraps err as a provider error, preferring the context error when
// the session was cut by cancellation
func (s *session) fail(op string, err error) error {
	if ctxErr := s.ctx.Err(); ctxErr != nil {
		err = ctxErr
	}
	return &mailbox.ProviderError{Op: op, Err: err}
}

func (s *session) close() {
	if s.stop() {
		s.client.Logout()
	}
}

// server returns the IMAP server for address, resolving once per domain
func (c *Client) server(ctx context.Context, address string) (string, error) {
	if c.config.Server != "" {
		return c.config.Server, nil
	}

	domain := GetDomainFromEmail(address)
	if domain == "" {
		return "", fmt.Errorf("invalid email format")
	}
	if server, ok := c.servers.Load(domain); ok {
		return server.(string), nil
	}

	server, err := ResolveIMAPServer(ctx, address)
	if err != nil {
		return "", err
	}
	c.logger.Info("resolved IMAP server", "domain", domain, "server", server)
	c.servers.Store(domain, server)
	return server, nil
}

// newestFirst returns a copy of uids sorted highest first
func newestFirst(uids []uint32) []uint32 {
	sorted := append([]uint32(nil), uids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] > sorted[j] })
	return sorted
}

// listing builds one UID-only summary per message, newest first, and
// returns the head of at most limit UIDs that should get envelopes
func listing(uids []uint32, limit int) ([]models.MessageSummary, []uint32) {
	sorted := newestFirst(uids)

	summaries := make([]models.MessageSummary, len(sorted))
	for i, uid := range sorted {
		summaries[i] = models.MessageSummary{ID: strconv.FormatUint(uint64(uid), 10)}
	}

	head := sorted
	if len(head) > limit {
		head = head[:limit]
	}
	return summaries, head
}

// summaryFromMessage converts a fetched envelope into a listing entry
func summaryFromMessage(msg *imap.Message) models.MessageSummary {
	summary := models.MessageSummary{
		ID:        strconv.FormatUint(uint64(msg.Uid), 10),
		CreatedAt: msg.InternalDate,
	}

	if msg.Envelope != nil {
		summary.Subject = msg.Envelope.Subject
		if summary.CreatedAt.IsZero() {
			summary.CreatedAt = msg.Envelope.Date
		}
		if len(msg.Envelope.From) > 0 {
			from := msg.Envelope.From[0]
			summary.From = models.Address{
				Name:    from.PersonalName,
				Address: from.Address(),
			}
		}
	}

	return summary
}

// parseBody extracts the text and HTML parts of a raw message
func parseBody(r io.Reader) (*models.MessageDetail, error) {
	mr, err := mail.CreateReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to create mail reader: %w", err)
	}

	detail := &models.MessageDetail{}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return detail, fmt.Errorf("failed to read part: %w", err)
		}

		h, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}

		ct, _, _ := h.ContentType()
		body, err := io.ReadAll(part.Body)
		if err != nil {
			continue
		}

		switch {
		case strings.HasPrefix(ct, "text/html") && detail.HTML == "":
			detail.HTML = string(body)
		case strings.HasPrefix(ct, "text/plain") && detail.Text == "":
			detail.Text = string(body)
		}
	}

	return detail, nil
}
