package websocket

import (
	"encoding/json"

	"github.com/nfrund/gobychat/internal/domain"
)

// Frame types on the wire.
const (
	FrameSendMessage = "send_message"
	FramePing        = "ping"

	FramePresence    = "presence_update"
	FrameNewMessage  = "new_message"
	FrameMessageSent = "message_sent"
	FrameError       = "error"
	FramePong        = "pong"
)

// Error codes carried by error frames.
const (
	CodeInvalidPayload   = "invalid_payload"
	CodePersistenceError = "persistence_error"
	CodeUnknownRecipient = "unknown_recipient"
	CodeRateLimited      = "rate_limited"
	CodeBadRequest       = "bad_request"
)

// Inbound is a client-to-server frame.
type Inbound struct {
	Type    string `json:"type"`
	Ref     string `json:"id,omitempty"`
	To      string `json:"to,omitempty"`
	Payload string `json:"payload,omitempty"`
}

type PresenceFrame struct {
	Type  string   `json:"type"`
	Seq   uint64   `json:"seq"`
	Users []string `json:"users"`
}

type MessageFrame struct {
	Type    string         `json:"type"`
	Message domain.Message `json:"message"`
}

type SentFrame struct {
	Type      string         `json:"type"`
	Ref       string         `json:"ref,omitempty"`
	Message   domain.Message `json:"message"`
	Delivered int            `json:"delivered"`
}

type ErrorFrame struct {
	Type    string `json:"type"`
	Ref     string `json:"ref,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type pongFrame struct {
	Type string `json:"type"`
}

// EncodePresence renders the presence set as a presence_update frame.
func EncodePresence(seq uint64, online []domain.Identity) []byte {
	users := make([]string, len(online))
	for i, id := range online {
		users[i] = id.ID()
	}
	return mustEncode(PresenceFrame{Type: FramePresence, Seq: seq, Users: users})
}

// EncodeNewMessage renders a message pushed to its recipient.
func EncodeNewMessage(msg domain.Message) []byte {
	return mustEncode(MessageFrame{Type: FrameNewMessage, Message: msg})
}

func encodeSent(ref string, receipt domain.Receipt) []byte {
	return mustEncode(SentFrame{Type: FrameMessageSent, Ref: ref, Message: receipt.Message, Delivered: receipt.Delivered})
}

func encodeError(ref, code, message string) []byte {
	return mustEncode(ErrorFrame{Type: FrameError, Ref: ref, Code: code, Message: message})
}

func encodePong() []byte {
	return mustEncode(pongFrame{Type: FramePong})
}

// Every frame is built from strings, numbers and times, so encoding cannot fail.
func mustEncode(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}
