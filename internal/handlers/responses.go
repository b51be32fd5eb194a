package handlers

import (
	"time"

	"github.com/nfrund/gobychat/internal/domain"
)

// ErrorResponse is the standard format for API error responses.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// UserResponse is the public view of a user.
type UserResponse struct {
	ID        string    `json:"_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

func NewUserResponse(u *domain.User) UserResponse {
	return UserResponse{ID: u.ID, Name: u.Name, Email: u.Email, CreatedAt: u.CreatedAt}
}

func NewUserList(users []domain.User) []UserResponse {
	out := make([]UserResponse, len(users))
	for i := range users {
		out[i] = NewUserResponse(&users[i])
	}
	return out
}

// MessageResponse is the REST view of a message.
type MessageResponse struct {
	ID          string    `json:"_id"`
	SenderID    string    `json:"senderId"`
	RecipientID string    `json:"receiverId"`
	Text        string    `json:"text"`
	CreatedAt   time.Time `json:"createdAt"`
	Delivered   *int      `json:"delivered,omitempty"`
}

func NewMessageResponse(m domain.Message) MessageResponse {
	return MessageResponse{
		ID:          m.ID,
		SenderID:    m.SenderID,
		RecipientID: m.RecipientID,
		Text:        m.Payload,
		CreatedAt:   m.CreatedAt,
	}
}

func NewMessageList(msgs []domain.Message) []MessageResponse {
	out := make([]MessageResponse, len(msgs))
	for i, m := range msgs {
		out[i] = NewMessageResponse(m)
	}
	return out
}

// PresenceResponse lists the identities with a live connection.
type PresenceResponse struct {
	OnlineUsers []domain.Identity `json:"online_users"`
	Count       int               `json:"count"`
}
