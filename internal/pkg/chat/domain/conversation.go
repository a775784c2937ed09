package chat

import "time"

// Conversation is the thread a message belongs to. Every conversation is
// owned by exactly one tenant; the transport never reads across tenants.
type Conversation struct {
	ID        string    `db:"id"`
	TenantID  string    `db:"tenant_id"`
	CreatedAt time.Time `db:"created_at"`
}
