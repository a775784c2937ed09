package chat

import "errors"

// ErrNotParticipant rejects any mutating command whose caller is not an
// active participant of the target conversation within their tenant.
var ErrNotParticipant = errors.New("user is not a participant in this conversation")

// ErrMessageNotFound is returned when a tenant-scoped message lookup matches
// no row; callers must not learn whether the row exists in another tenant.
var ErrMessageNotFound = errors.New("message not found")
