package database

import (
	"context"
	"fmt"
	"time"

	"github.com/mixelka/inboxrelay/pkg/models"
)

// DefaultListLimit is used when no positive limit is given
const DefaultListLimit = 50

// RecordDelivery stores a notification attempt
func (db *DB) RecordDelivery(ctx context.Context, d *models.Delivery) error {
	query := `
		INSERT INTO deliveries (chat_id, mail_address, message_id, from_addr, subject, status, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	now := time.Now().UTC()
	result, err := db.ExecContext(ctx, query,
		d.ChatID,
		d.MailAddress,
		d.MessageID,
		d.FromAddr,
		d.Subject,
		d.Status,
		d.Error,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to record delivery: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	d.ID = id
	d.CreatedAt = now
	return nil
}

// ListDeliveries returns the most recent deliveries for a chat, newest first
func (db *DB) ListDeliveries(ctx context.Context, chatID int64, limit int) ([]*models.Delivery, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	deliveries := []*models.Delivery{}
	query := `SELECT * FROM deliveries WHERE chat_id = ? ORDER BY id DESC LIMIT ?`
	if err := db.SelectContext(ctx, &deliveries, query, chatID, limit); err != nil {
		return nil, fmt.Errorf("failed to list deliveries: %w", err)
	}
	return deliveries, nil
}
