package chat

import "time"

// QueueStatus is the lifecycle of a delivery-queue entry. "delivered" and
// "failed" are terminal; "processing" is only ever held for the duration of
// a single worker pass.
type QueueStatus string

const (
	QueueStatusPending    QueueStatus = "pending"
	QueueStatusProcessing QueueStatus = "processing"
	QueueStatusDelivered  QueueStatus = "delivered"
	QueueStatusFailed     QueueStatus = "failed"
)

// DeliveryQueueEntry is the durable record of a push owed to one recipient.
// Tenant scoping is inherited from the referenced message.
type DeliveryQueueEntry struct {
	ID          string      `db:"id"`
	MessageID   string      `db:"message_id"`
	RecipientID string      `db:"recipient_id"`
	Status      QueueStatus `db:"status"`
	Attempts    int         `db:"attempts"`
	LastAttempt *time.Time  `db:"last_attempt"`
}

// PendingDelivery is a queue entry joined with its message, as selected by
// the delivery worker in a single query.
type PendingDelivery struct {
	Entry   DeliveryQueueEntry
	Message Message
}
