package chat

import (
	"errors"
	"strings"
	"time"
)

// DeliveryStatus tracks where a message sits in the delivery pipeline.
type DeliveryStatus string

const (
	DeliveryStatusSent      DeliveryStatus = "sent"
	DeliveryStatusScheduled DeliveryStatus = "scheduled"
	DeliveryStatusDelivered DeliveryStatus = "delivered"
	DeliveryStatusFailed    DeliveryStatus = "failed"
)

// Message is an immutable log entry in a conversation. Rows are never
// hard-deleted by the transport; only delivery/read state mutates.
type Message struct {
	ID                string         `db:"id"`
	ConversationID    string         `db:"conversation_id"`
	SenderID          string         `db:"sender_id"`
	TenantID          string         `db:"tenant_id"`
	Content           *string        `db:"content"`
	Attachments       []string       `db:"attachments"`
	CreatedAt         time.Time      `db:"created_at"`
	DeliveryStatus    DeliveryStatus `db:"delivery_status"`
	ScheduledDelivery *time.Time     `db:"scheduled_delivery"`
	IsRead            bool           `db:"is_read"`
	ReadAt            *time.Time     `db:"read_at"`
}

// NewMessage validates and normalizes a message before persistence.
// A message carrying a ScheduledDelivery starts out "scheduled";
// everything else starts out "sent".
func NewMessage(m Message) (*Message, error) {
	if m.ConversationID == "" || m.SenderID == "" || m.TenantID == "" {
		return nil, errors.New("conversation_id, sender_id and tenant_id are required")
	}

	if m.Content != nil {
		trimmed := strings.TrimSpace(*m.Content)
		if trimmed == "" {
			m.Content = nil
		} else {
			m.Content = &trimmed
		}
	}

	if m.Content == nil && len(m.Attachments) == 0 {
		return nil, errors.New("message must contain either content or attachments")
	}

	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}

	if m.ScheduledDelivery != nil {
		m.DeliveryStatus = DeliveryStatusScheduled
	} else if m.DeliveryStatus == "" {
		m.DeliveryStatus = DeliveryStatusSent
	}

	return &m, nil
}
