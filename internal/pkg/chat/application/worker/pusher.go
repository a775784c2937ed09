// Package worker hosts the recurring background loops of the chat
// transport: the delivery-queue processor, the scheduled-message processor
// and the connection heartbeat. The two persistence-driven loops are kept
// separate on purpose; each has its own idempotence guard (queue status vs.
// scheduling column) and merging them would entangle those guards.
package worker

// Pusher is the slice of the session registry the loops need: best-effort
// push to a user's live connection. A false return means the user is
// unreachable right now; it is never an error.
type Pusher interface {
	NotifyUser(userID string, payload []byte) bool
}
