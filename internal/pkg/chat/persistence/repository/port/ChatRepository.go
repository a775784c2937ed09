package repository

import (
	"context"
	"time"

	chat "github.com/SCS-Technik/Assixx-sub005/internal/pkg/chat/domain"
)

// ChatRepository defines the persistence operations of the realtime
// transport. Every method that touches conversation, participant or message
// state is tenant-scoped; the delivery-queue methods inherit tenant scope
// through the message foreign key.
type ChatRepository interface {
	// Membership / participants
	IsParticipant(ctx context.Context, conversationID, userID, tenantID string) (bool, error)
	ListParticipantIDs(ctx context.Context, conversationID, tenantID string) ([]string, error)
	// CoParticipantIDs returns the distinct users sharing at least one
	// conversation with userID inside the tenant, excluding userID itself.
	CoParticipantIDs(ctx context.Context, userID, tenantID string) ([]string, error)

	// Messages
	SaveMessage(ctx context.Context, m chat.Message) (string, error)
	GetMessage(ctx context.Context, messageID, tenantID string) (*chat.Message, error)
	// GetMessageByID is reserved for background paths where the tenant is
	// carried by the row itself.
	GetMessageByID(ctx context.Context, messageID string) (*chat.Message, error)
	MarkMessageRead(ctx context.Context, messageID, tenantID string, readAt time.Time) (*chat.Message, error)
	SetMessageDeliveryStatus(ctx context.Context, messageID string, status chat.DeliveryStatus) error

	// Sender display fields
	GetUserDisplay(ctx context.Context, userID string) (*chat.UserDisplay, error)

	// Delivery queue
	EnqueueDelivery(ctx context.Context, messageID, recipientID string) (string, error)
	PendingDeliveries(ctx context.Context, limit, maxAttempts int) ([]chat.PendingDelivery, error)
	// MarkDeliveryProcessing flips the entry to processing, increments the
	// attempt counter, stamps last_attempt and returns the new counter.
	MarkDeliveryProcessing(ctx context.Context, entryID string, at time.Time) (int, error)
	MarkDeliveryDelivered(ctx context.Context, entryID, messageID string) error
	MarkDeliveryFailed(ctx context.Context, entryID, messageID string) error
	ResetDeliveryPending(ctx context.Context, entryID string) error
	GetDeliveryAttempts(ctx context.Context, entryID string) (int, error)

	// Scheduled messages
	DueScheduledMessages(ctx context.Context, now time.Time, limit int) ([]chat.Message, error)
	// PromoteScheduledMessage flips a still-scheduled row to delivered and
	// clears the scheduling column. It reports false when another pass got
	// there first, which makes re-selection idempotent.
	PromoteScheduledMessage(ctx context.Context, messageID string) (bool, error)
}
