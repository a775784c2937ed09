// Package mocks provides an in-memory ChatRepository for tests. Semantics
// mirror the pgx adapter, including tenant scoping and the status-guarded
// transitions the background workers rely on.
package mocks

import (
	"context"
	"fmt"
	"sync"
	"time"

	chat "github.com/SCS-Technik/Assixx-sub005/internal/pkg/chat/domain"
)

type Repo struct {
	mu sync.Mutex

	conversations map[string]chat.Conversation // id -> conversation
	participants  map[string][]string          // conversationID -> userIDs
	messages      map[string]*chat.Message
	users         map[string]chat.UserDisplay
	queue         map[string]*chat.DeliveryQueueEntry
	nextID        int

	// FailOn injects a persistent error per method name.
	FailOn map[string]error
}

func NewRepo() *Repo {
	return &Repo{
		conversations: make(map[string]chat.Conversation),
		participants:  make(map[string][]string),
		messages:      make(map[string]*chat.Message),
		users:         make(map[string]chat.UserDisplay),
		queue:         make(map[string]*chat.DeliveryQueueEntry),
		FailOn:        make(map[string]error),
	}
}

// Seed helpers

func (r *Repo) AddConversation(id, tenantID string, userIDs ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conversations[id] = chat.Conversation{ID: id, TenantID: tenantID, CreatedAt: time.Now()}
	r.participants[id] = append([]string(nil), userIDs...)
}

func (r *Repo) AddUser(id, name, avatar string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[id] = chat.UserDisplay{ID: id, Name: name, Avatar: avatar}
}

func (r *Repo) AddMessage(m chat.Message) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m.ID == "" {
		m.ID = r.genID("msg")
	}
	r.messages[m.ID] = &m
	return m.ID
}

func (r *Repo) AddQueueEntry(messageID, recipientID string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.genID("dq")
	r.queue[id] = &chat.DeliveryQueueEntry{
		ID:          id,
		MessageID:   messageID,
		RecipientID: recipientID,
		Status:      chat.QueueStatusPending,
	}
	return id
}

// Inspection helpers

func (r *Repo) Message(id string) chat.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.messages[id]; ok {
		return *m
	}
	return chat.Message{}
}

func (r *Repo) Messages() []chat.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]chat.Message, 0, len(r.messages))
	for _, m := range r.messages {
		out = append(out, *m)
	}
	return out
}

func (r *Repo) QueueEntry(id string) chat.DeliveryQueueEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.queue[id]; ok {
		return *e
	}
	return chat.DeliveryQueueEntry{}
}

func (r *Repo) QueueEntries() []chat.DeliveryQueueEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]chat.DeliveryQueueEntry, 0, len(r.queue))
	for _, e := range r.queue {
		out = append(out, *e)
	}
	return out
}

// ChatRepository implementation

func (r *Repo) IsParticipant(ctx context.Context, conversationID, userID, tenantID string) (bool, error) {
	if err := r.fail("IsParticipant"); err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.conversations[conversationID]
	if !ok || conv.TenantID != tenantID {
		return false, nil
	}
	for _, id := range r.participants[conversationID] {
		if id == userID {
			return true, nil
		}
	}
	return false, nil
}

func (r *Repo) ListParticipantIDs(ctx context.Context, conversationID, tenantID string) ([]string, error) {
	if err := r.fail("ListParticipantIDs"); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.conversations[conversationID]
	if !ok || conv.TenantID != tenantID {
		return nil, nil
	}
	return append([]string(nil), r.participants[conversationID]...), nil
}

func (r *Repo) CoParticipantIDs(ctx context.Context, userID, tenantID string) ([]string, error) {
	if err := r.fail("CoParticipantIDs"); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := make(map[string]struct{})
	var out []string
	for convID, conv := range r.conversations {
		if conv.TenantID != tenantID {
			continue
		}
		members := r.participants[convID]
		var mine bool
		for _, id := range members {
			if id == userID {
				mine = true
				break
			}
		}
		if !mine {
			continue
		}
		for _, id := range members {
			if id == userID {
				continue
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out, nil
}

func (r *Repo) SaveMessage(ctx context.Context, m chat.Message) (string, error) {
	if err := r.fail("SaveMessage"); err != nil {
		return "", err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	m.ID = r.genID("msg")
	r.messages[m.ID] = &m
	return m.ID, nil
}

func (r *Repo) GetMessage(ctx context.Context, messageID, tenantID string) (*chat.Message, error) {
	if err := r.fail("GetMessage"); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.messages[messageID]
	if !ok || m.TenantID != tenantID {
		return nil, chat.ErrMessageNotFound
	}
	cp := *m
	return &cp, nil
}

func (r *Repo) GetMessageByID(ctx context.Context, messageID string) (*chat.Message, error) {
	if err := r.fail("GetMessageByID"); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.messages[messageID]
	if !ok {
		return nil, chat.ErrMessageNotFound
	}
	cp := *m
	return &cp, nil
}

func (r *Repo) MarkMessageRead(ctx context.Context, messageID, tenantID string, readAt time.Time) (*chat.Message, error) {
	if err := r.fail("MarkMessageRead"); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.messages[messageID]
	if !ok || m.TenantID != tenantID {
		return nil, chat.ErrMessageNotFound
	}
	m.IsRead = true
	m.ReadAt = &readAt
	cp := *m
	return &cp, nil
}

func (r *Repo) SetMessageDeliveryStatus(ctx context.Context, messageID string, status chat.DeliveryStatus) error {
	if err := r.fail("SetMessageDeliveryStatus"); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.messages[messageID]; ok {
		m.DeliveryStatus = status
	}
	return nil
}

func (r *Repo) GetUserDisplay(ctx context.Context, userID string) (*chat.UserDisplay, error) {
	if err := r.fail("GetUserDisplay"); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.users[userID]
	if !ok {
		return nil, fmt.Errorf("user %s not found", userID)
	}
	return &d, nil
}

func (r *Repo) EnqueueDelivery(ctx context.Context, messageID, recipientID string) (string, error) {
	if err := r.fail("EnqueueDelivery"); err != nil {
		return "", err
	}
	return r.AddQueueEntry(messageID, recipientID), nil
}

func (r *Repo) PendingDeliveries(ctx context.Context, limit, maxAttempts int) ([]chat.PendingDelivery, error) {
	if err := r.fail("PendingDeliveries"); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []chat.PendingDelivery
	for _, e := range r.queue {
		if e.Status != chat.QueueStatusPending || e.Attempts >= maxAttempts {
			continue
		}
		m, ok := r.messages[e.MessageID]
		if !ok {
			continue
		}
		out = append(out, chat.PendingDelivery{Entry: *e, Message: *m})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (r *Repo) MarkDeliveryProcessing(ctx context.Context, entryID string, at time.Time) (int, error) {
	if err := r.fail("MarkDeliveryProcessing"); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.queue[entryID]
	if !ok {
		return 0, fmt.Errorf("queue entry %s not found", entryID)
	}
	e.Status = chat.QueueStatusProcessing
	e.Attempts++
	e.LastAttempt = &at
	return e.Attempts, nil
}

func (r *Repo) MarkDeliveryDelivered(ctx context.Context, entryID, messageID string) error {
	if err := r.fail("MarkDeliveryDelivered"); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.queue[entryID]; ok {
		e.Status = chat.QueueStatusDelivered
	}
	if m, ok := r.messages[messageID]; ok {
		m.DeliveryStatus = chat.DeliveryStatusDelivered
	}
	return nil
}

func (r *Repo) MarkDeliveryFailed(ctx context.Context, entryID, messageID string) error {
	if err := r.fail("MarkDeliveryFailed"); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.queue[entryID]; ok {
		e.Status = chat.QueueStatusFailed
	}
	if m, ok := r.messages[messageID]; ok {
		m.DeliveryStatus = chat.DeliveryStatusFailed
	}
	return nil
}

func (r *Repo) ResetDeliveryPending(ctx context.Context, entryID string) error {
	if err := r.fail("ResetDeliveryPending"); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.queue[entryID]; ok {
		e.Status = chat.QueueStatusPending
	}
	return nil
}

func (r *Repo) GetDeliveryAttempts(ctx context.Context, entryID string) (int, error) {
	if err := r.fail("GetDeliveryAttempts"); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.queue[entryID]
	if !ok {
		return 0, fmt.Errorf("queue entry %s not found", entryID)
	}
	return e.Attempts, nil
}

func (r *Repo) DueScheduledMessages(ctx context.Context, now time.Time, limit int) ([]chat.Message, error) {
	if err := r.fail("DueScheduledMessages"); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []chat.Message
	for _, m := range r.messages {
		if m.DeliveryStatus != chat.DeliveryStatusScheduled || m.ScheduledDelivery == nil {
			continue
		}
		if m.ScheduledDelivery.After(now) {
			continue
		}
		out = append(out, *m)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (r *Repo) PromoteScheduledMessage(ctx context.Context, messageID string) (bool, error) {
	if err := r.fail("PromoteScheduledMessage"); err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.messages[messageID]
	if !ok || m.DeliveryStatus != chat.DeliveryStatusScheduled {
		return false, nil
	}
	m.DeliveryStatus = chat.DeliveryStatusDelivered
	m.ScheduledDelivery = nil
	return true, nil
}

func (r *Repo) fail(method string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.FailOn[method]
}

func (r *Repo) genID(prefix string) string {
	r.nextID++
	return fmt.Sprintf("%s-%d", prefix, r.nextID)
}
