package domain

import (
	"context"
	"time"
)

// Message is a direct message between two identities. It is created by the
// dispatcher, persisted once, and never mutated afterwards.
type Message struct {
	ID          string    `json:"id"`
	SenderID    string    `json:"sender_id"`
	RecipientID string    `json:"recipient_id"`
	Payload     string    `json:"payload"`
	CreatedAt   time.Time `json:"created_at"`
}

// MessageRepository is the durable message store the dispatcher writes to.
type MessageRepository interface {
	// Append durably records a message. The message ID is assigned by the caller.
	Append(ctx context.Context, msg Message) error
	// Conversation returns up to limit of the most recent messages exchanged
	// between a and b in either direction, oldest first.
	Conversation(ctx context.Context, a, b string, limit int) ([]Message, error)
}

// Receipt reports the outcome of a successful send: the persisted message and
// how many live connections accepted it.
type Receipt struct {
	Message   Message `json:"message"`
	Delivered int     `json:"delivered"`
}
