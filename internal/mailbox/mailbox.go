// Package mailbox defines the contract the relay expects from a remote
// mailbox provider and the errors providers report through it.
package mailbox

import (
	"context"
	"errors"
	"fmt"

	"github.com/mixelka/inboxrelay/pkg/models"
)

// ErrUnauthorized is returned when the provider rejects the credential.
// The poller answers it by issuing a fresh token.
var ErrUnauthorized = errors.New("mailbox: unauthorized")

// Client is a remote mailbox provider
type Client interface {
	// ListMessages returns one entry per inbox message, newest first.
	// Entries with an empty ID are counted but cannot be fetched.
	ListMessages(ctx context.Context, address, token string) ([]models.MessageSummary, error)
	// GetMessage returns the full content of one message
	GetMessage(ctx context.Context, address, token, id string) (*models.MessageDetail, error)
	// IssueToken exchanges the account secret for a new access token
	IssueToken(ctx context.Context, address, secret string) (string, error)
}

// ProviderError is a transient failure talking to the provider
// (transport error, unexpected status, undecodable body).
type ProviderError struct {
	Op     string
	Status int // HTTP status, 0 when not applicable
	Err    error
}

func (e *ProviderError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("mailbox %s: status %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("mailbox %s: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// IsUnauthorized reports whether err signals an expired or invalid credential
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// IsProviderError reports whether err (or any error in its chain) is a ProviderError
func IsProviderError(err error) bool {
	var perr *ProviderError
	return errors.As(err, &perr)
}
