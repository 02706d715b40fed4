package models

import "time"

// DeliveryStatus outcome of a notification attempt
type DeliveryStatus string

const (
	DeliverySent   DeliveryStatus = "sent"
	DeliveryFailed DeliveryStatus = "failed"
)

// Delivery is a journal entry for one notification attempt
type Delivery struct {
	ID          int64          `db:"id" json:"id"`
	ChatID      int64          `db:"chat_id" json:"chat_id"`
	MailAddress string         `db:"mail_address" json:"email"`
	MessageID   string         `db:"message_id" json:"message_id"`
	FromAddr    string         `db:"from_addr" json:"from"`
	Subject     string         `db:"subject" json:"subject"`
	Status      DeliveryStatus `db:"status" json:"status"`
	Error       string         `db:"error" json:"error,omitempty"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
}
