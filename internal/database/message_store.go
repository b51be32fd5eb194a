package database

import (
	"context"
	"fmt"
	"time"

	"github.com/nfrund/gobychat/internal/domain"
	"github.com/surrealdb/surrealdb.go"
	"github.com/surrealdb/surrealdb.go/pkg/models"
)

type messageRow struct {
	ID           *models.RecordID `json:"id,omitempty"`
	SenderID     string           `json:"sender_id"`
	RecipientID  string           `json:"recipient_id"`
	Conversation string           `json:"conversation"`
	Payload      string           `json:"payload"`
	CreatedAt    string           `json:"created_at"`
}

func (r *messageRow) toDomain() domain.Message {
	m := domain.Message{
		ID:          recordKey(r.ID),
		SenderID:    r.SenderID,
		RecipientID: r.RecipientID,
		Payload:     r.Payload,
	}
	if t, err := time.Parse(timeLayout, r.CreatedAt); err == nil {
		m.CreatedAt = t
	}
	return m
}

// SurrealMessageStore persists direct messages in SurrealDB.
type SurrealMessageStore struct {
	db *surrealdb.DB
}

// NewSurrealMessageStore creates a new SurrealMessageStore.
func NewSurrealMessageStore(db *surrealdb.DB) *SurrealMessageStore {
	return &SurrealMessageStore{db: db}
}

func (s *SurrealMessageStore) Append(ctx context.Context, msg domain.Message) error {
	query := `CREATE type::thing("message", $id) CONTENT {
		sender_id: $sender_id,
		recipient_id: $recipient_id,
		conversation: $conversation,
		payload: $payload,
		created_at: $created_at
	}`
	params := map[string]any{
		"id":           msg.ID,
		"sender_id":    msg.SenderID,
		"recipient_id": msg.RecipientID,
		"conversation": ConversationKey(msg.SenderID, msg.RecipientID),
		"payload":      msg.Payload,
		"created_at":   msg.CreatedAt.UTC().Format(timeLayout),
	}

	if err := Execute(ctx, s.db, query, params); err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

// Conversation returns the newest limit messages between a and b, oldest first.
func (s *SurrealMessageStore) Conversation(ctx context.Context, a, b string, limit int) ([]domain.Message, error) {
	query := "SELECT * FROM message WHERE conversation = $conversation ORDER BY created_at DESC"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := Query[messageRow](ctx, s.db, query, map[string]any{"conversation": ConversationKey(a, b)})
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}

	msgs := make([]domain.Message, len(rows))
	for i := range rows {
		msgs[len(rows)-1-i] = rows[i].toDomain()
	}
	return msgs, nil
}

// ConversationKey returns the same key for (a, b) and (b, a).
func ConversationKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}
