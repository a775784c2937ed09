// Package protocol defines the websocket wire format: a symmetric
// {"type": string, "data": object} envelope with one typed payload struct
// per frame type. Inbound frames decode into a tagged union so handlers
// never touch raw JSON.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	chat "github.com/SCS-Technik/Assixx-sub005/internal/pkg/chat/domain"
)

// Inbound frame types.
const (
	TypeSendMessage      = "send_message"
	TypeTypingStart      = "typing_start"
	TypeTypingStop       = "typing_stop"
	TypeMarkRead         = "mark_read"
	TypeJoinConversation = "join_conversation"
	TypePing             = "ping"
)

// Outbound frame types.
const (
	TypeConnectionEstablished = "connection_established"
	TypeNewMessage            = "new_message"
	TypeMessageSent           = "message_sent"
	TypeUserTyping            = "user_typing"
	TypeUserStoppedTyping     = "user_stopped_typing"
	TypeMessageRead           = "message_read"
	TypeUserJoined            = "user_joined_conversation"
	TypeUserStatusChanged     = "user_status_changed"
	TypeScheduledDelivered    = "scheduled_message_delivered"
	TypePong                  = "pong"
	TypeError                 = "error"
)

// ErrUnknownType marks a frame whose type has no handler. The dispatcher
// logs these and moves on; they are not an error to the client.
var ErrUnknownType = errors.New("protocol: unknown frame type")

// Envelope is the symmetric wire wrapper for every frame in both directions.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Inbound is the tagged union of client-originated frames.
type Inbound interface {
	inbound()
}

type SendMessage struct {
	ConversationID string     `json:"conversationId"`
	Content        string     `json:"content"`
	Attachments    []string   `json:"attachments,omitempty"`
	ScheduledAt    *time.Time `json:"scheduledAt,omitempty"`
}

type TypingStart struct {
	ConversationID string `json:"conversationId"`
}

type TypingStop struct {
	ConversationID string `json:"conversationId"`
}

type MarkRead struct {
	MessageID string `json:"messageId"`
}

type JoinConversation struct {
	ConversationID string `json:"conversationId"`
}

type Ping struct{}

func (SendMessage) inbound()      {}
func (TypingStart) inbound()      {}
func (TypingStop) inbound()       {}
func (MarkRead) inbound()         {}
func (JoinConversation) inbound() {}
func (Ping) inbound()             {}

// DecodeInbound parses a raw frame into its typed payload. A frame that is
// not valid JSON, or whose data does not match the payload shape, fails with
// a decode error; a structurally valid frame with an unrecognized type fails
// with ErrUnknownType.
func DecodeInbound(raw []byte) (Inbound, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("protocol: decode envelope: %w", err)
	}
	if env.Type == "" {
		return nil, errors.New("protocol: frame type is required")
	}

	data := env.Data
	if len(data) == 0 {
		data = []byte("{}")
	}

	var (
		payload Inbound
		err     error
	)
	switch env.Type {
	case TypeSendMessage:
		var p SendMessage
		err = json.Unmarshal(data, &p)
		payload = p
	case TypeTypingStart:
		var p TypingStart
		err = json.Unmarshal(data, &p)
		payload = p
	case TypeTypingStop:
		var p TypingStop
		err = json.Unmarshal(data, &p)
		payload = p
	case TypeMarkRead:
		var p MarkRead
		err = json.Unmarshal(data, &p)
		payload = p
	case TypeJoinConversation:
		var p JoinConversation
		err = json.Unmarshal(data, &p)
		payload = p
	case TypePing:
		payload = Ping{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("protocol: decode %s: %w", env.Type, err)
	}
	return payload, nil
}

// Marshal wraps a payload in the envelope and encodes it.
func Marshal(frameType string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("protocol: encode %s: %w", frameType, err)
	}
	return json.Marshal(Envelope{Type: frameType, Data: raw})
}

// Outbound payloads.

type ConnectionEstablished struct {
	UserID    string    `json:"userId"`
	Timestamp time.Time `json:"timestamp"`
}

type NewMessage struct {
	ID             string              `json:"id"`
	ConversationID string              `json:"conversationId"`
	Content        string              `json:"content"`
	SenderID       string              `json:"senderId"`
	SenderName     string              `json:"senderName"`
	SenderAvatar   string              `json:"senderAvatar,omitempty"`
	CreatedAt      time.Time           `json:"createdAt"`
	DeliveryStatus chat.DeliveryStatus `json:"deliveryStatus"`
	IsRead         bool                `json:"isRead"`
	Attachments    []string            `json:"attachments,omitempty"`
	IsScheduled    bool                `json:"isScheduled,omitempty"`
}

type MessageSent struct {
	MessageID string    `json:"messageId"`
	Timestamp time.Time `json:"timestamp"`
}

type Typing struct {
	ConversationID string    `json:"conversationId"`
	UserID         string    `json:"userId"`
	Timestamp      time.Time `json:"timestamp"`
}

type MessageRead struct {
	MessageID string    `json:"messageId"`
	ReadBy    string    `json:"readBy"`
	Timestamp time.Time `json:"timestamp"`
}

type UserJoined struct {
	ConversationID string    `json:"conversationId"`
	UserID         string    `json:"userId"`
	Timestamp      time.Time `json:"timestamp"`
}

type UserStatusChanged struct {
	UserID    string    `json:"userId"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

type Pong struct {
	Timestamp time.Time `json:"timestamp"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

// NewMessagePayload assembles the outbound message shape shared by the
// live fan-out path, the delivery worker and the scheduler.
func NewMessagePayload(m chat.Message, sender chat.UserDisplay) NewMessage {
	content := ""
	if m.Content != nil {
		content = *m.Content
	}
	return NewMessage{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		Content:        content,
		SenderID:       m.SenderID,
		SenderName:     sender.Name,
		SenderAvatar:   sender.Avatar,
		CreatedAt:      m.CreatedAt,
		DeliveryStatus: m.DeliveryStatus,
		IsRead:         m.IsRead,
		Attachments:    m.Attachments,
	}
}
