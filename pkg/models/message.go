package models

import "time"

// Address represents an email address
type Address struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

// MessageSummary is one entry of a mailbox listing (newest first)
type MessageSummary struct {
	ID        string    `json:"id"`
	From      Address   `json:"from"`
	Subject   string    `json:"subject"`
	CreatedAt time.Time `json:"createdAt"`
}

// MessageDetail holds the full content of a single message
type MessageDetail struct {
	ID   string
	Text string
	HTML string
}

// Message is what gets rendered into a notification
type Message struct {
	ID       string
	FromAddr string
	Subject  string
	BodyText string
	BodyHTML string
}

// NewMessage combines a listing entry with its fetched detail
func NewMessage(summary MessageSummary, detail *MessageDetail) *Message {
	msg := &Message{
		ID:       summary.ID,
		FromAddr: summary.From.Address,
		Subject:  summary.Subject,
	}
	if detail != nil {
		msg.BodyText = detail.Text
		msg.BodyHTML = detail.HTML
	}
	return msg
}

// DetectedCode represents a detected verification code
type DetectedCode struct {
	Type  string `json:"type"`  // "otp", "verification", "pin", "code"
	Value string `json:"value"` // The code itself
}
