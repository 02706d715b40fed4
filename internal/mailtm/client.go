package mailtm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mixelka/inboxrelay/internal/mailbox"
	"github.com/mixelka/inboxrelay/pkg/models"
)

// DefaultBaseURL public mail.tm API
const DefaultBaseURL = "https://api.mail.tm"

// Client is a mail.tm API client
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Config for mail.tm client
type Config struct {
	BaseURL string // e.g., https://api.mail.tm
	Timeout time.Duration
}

// tokenRequest request for issuing a bearer token
type tokenRequest struct {
	Address  string `json:"address"`
	Password string `json:"password"`
}

// tokenResponse token endpoint response
type tokenResponse struct {
	ID    string `json:"id"`
	Token string `json:"token"`
}

// messageList JSON-LD collection returned by GET /messages
type messageList struct {
	Members    []models.MessageSummary `json:"hydra:member"`
	TotalItems int                     `json:"hydra:totalItems"`
}

// messageDetail GET /messages/{id} response
type messageDetail struct {
	ID   string          `json:"id"`
	Text string          `json:"text"`
	HTML json.RawMessage `json:"html"` // string or array of strings
}

// NewClient creates a new mail.tm API client
func NewClient(cfg Config) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// ListMessages returns the first page of the inbox, newest first, padded
// with ID-less entries up to the mailbox total so the listing length
// counts every message
func (c *Client) ListMessages(ctx context.Context, address, token string) ([]models.MessageSummary, error) {
	var list messageList
	if err := c.do(ctx, "list messages", http.MethodGet, "/messages", token, nil, &list); err != nil {
		return nil, err
	}

	total := max(list.TotalItems, len(list.Members))
	summaries := make([]models.MessageSummary, total)
	copy(summaries, list.Members)
	return summaries, nil
}

// GetMessage returns the full content of a message
func (c *Client) GetMessage(ctx context.Context, address, token, id string) (*models.MessageDetail, error) {
	var detail messageDetail
	path := "/messages/" + url.PathEscape(id)
	if err := c.do(ctx, "get message", http.MethodGet, path, token, nil, &detail); err != nil {
		return nil, err
	}

	html, err := decodeHTML(detail.HTML)
	if err != nil {
		return nil, &mailbox.ProviderError{Op: "get message", Err: fmt.Errorf("failed to decode html: %w", err)}
	}

	return &models.MessageDetail{
		ID:   detail.ID,
		Text: detail.Text,
		HTML: html,
	}, nil
}

// IssueToken requests a new bearer token for the account
func (c *Client) IssueToken(ctx context.Context, address, secret string) (string, error) {
	var resp tokenResponse
	req := tokenRequest{Address: address, Password: secret}
	if err := c.do(ctx, "issue token", http.MethodPost, "/token", "", req, &resp); err != nil {
		return "", err
	}
	if resp.Token == "" {
		return "", &mailbox.ProviderError{Op: "issue token", Err: fmt.Errorf("empty token in response")}
	}
	return resp.Token, nil
}

// do sends a request and decodes the JSON response into result
func (c *Client) do(ctx context.Context, op, method, path, token string, body, result interface{}) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Accept", "application/ld+json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return &mailbox.ProviderError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &mailbox.ProviderError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%s: %w", op, mailbox.ErrUnauthorized)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &mailbox.ProviderError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("API error: %s", string(respBody))}
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		return &mailbox.ProviderError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("failed to parse response: %w", err)}
	}

	return nil
}

// decodeHTML accepts the html field as a string or as an array of strings
func decodeHTML(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}

	var parts []string
	if err := json.Unmarshal(raw, &parts); err != nil {
		return "", err
	}
	return strings.Join(parts, "\n"), nil
}
