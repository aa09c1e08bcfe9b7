package ws

import (
	"encoding/json"

	"github.com/cwrk-planet/chat-service/internal/domain"
)

// Frame types on the live channel.
const (
	TypeReady     = "ready"      // server: subscription is live
	TypeMessage   = "message"    // server: a stored message for the room
	TypeSend      = "send"       // client: send a message
	TypeSendAck   = "send_ack"   // server: the sender's message was stored
	TypeSendError = "send_error" // server: the sender's message was rejected
	TypeError     = "error"      // server: malformed frame
)

type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

type inbound struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type ReadyPayload struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
}

type SendPayload struct {
	TempID     string      `json:"tempId"`
	Kind       domain.Kind `json:"kind"`
	Content    *string     `json:"content,omitempty"`
	Attachment *string     `json:"attachment,omitempty"`
}

// SendAckPayload lets the sender swap its pending entry for the stored message.
type SendAckPayload struct {
	TempID  string         `json:"tempId"`
	Message domain.Message `json:"message"`
}

type SendErrorPayload struct {
	TempID  string `json:"tempId"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}
