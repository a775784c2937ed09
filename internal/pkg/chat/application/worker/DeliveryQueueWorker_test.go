package worker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SCS-Technik/Assixx-sub005/internal/pkg/chat/application/usecase"
	chat "github.com/SCS-Technik/Assixx-sub005/internal/pkg/chat/domain"
	"github.com/SCS-Technik/Assixx-sub005/internal/pkg/chat/persistence/repository/mocks"
	"github.com/SCS-Technik/Assixx-sub005/internal/pkg/chat/protocol"
)

// fakePusher tracks which users are reachable and what they were sent.
type fakePusher struct {
	mu     sync.Mutex
	online map[string]bool
	sent   map[string][][]byte
}

func newFakePusher(online ...string) *fakePusher {
	p := &fakePusher{online: make(map[string]bool), sent: make(map[string][][]byte)}
	for _, id := range online {
		p.online[id] = true
	}
	return p
}

func (p *fakePusher) NotifyUser(userID string, payload []byte) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.online[userID] {
		return false
	}
	cp := append([]byte(nil), payload...)
	p.sent[userID] = append(p.sent[userID], cp)
	return true
}

func (p *fakePusher) sentTo(userID string) [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sent[userID]
}

func (p *fakePusher) setOnline(userID string, online bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.online[userID] = online
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func decodeEnvelope(t *testing.T, raw []byte) (string, protocol.NewMessage) {
	t.Helper()
	var env protocol.Envelope
	require.NoError(t, json.Unmarshal(raw, &env))
	var msg protocol.NewMessage
	require.NoError(t, json.Unmarshal(env.Data, &msg))
	return env.Type, msg
}

func queuedMessage(repo *mocks.Repo) (msgID, entryID string) {
	content := "queued hello"
	repo.AddConversation("c1", "t1", "u1", "u2")
	repo.AddUser("u1", "Sam Sender", "sam.png")
	msgID = repo.AddMessage(chat.Message{
		ConversationID: "c1",
		SenderID:       "u1",
		TenantID:       "t1",
		Content:        &content,
		DeliveryStatus: chat.DeliveryStatusSent,
	})
	entryID = repo.AddQueueEntry(msgID, "u2")
	return msgID, entryID
}

func TestDeliveryQueueWorker_DeliversToOnlineRecipient(t *testing.T) {
	repo := mocks.NewRepo()
	msgID, entryID := queuedMessage(repo)
	pusher := newFakePusher("u2")

	w := NewDeliveryQueueWorker(repo, pusher, usecase.NewGetUserDisplayUseCase(repo, nil), testLogger())
	processed := w.RunPass(context.Background())

	assert.Equal(t, 1, processed)

	entry := repo.QueueEntry(entryID)
	assert.Equal(t, chat.QueueStatusDelivered, entry.Status)
	assert.Equal(t, 1, entry.Attempts)
	require.NotNil(t, entry.LastAttempt)
	assert.Equal(t, chat.DeliveryStatusDelivered, repo.Message(msgID).DeliveryStatus)

	frames := pusher.sentTo("u2")
	require.Len(t, frames, 1)
	frameType, msg := decodeEnvelope(t, frames[0])
	assert.Equal(t, protocol.TypeNewMessage, frameType)
	assert.Equal(t, "queued hello", msg.Content)
	assert.Equal(t, "Sam Sender", msg.SenderName)
}

func TestDeliveryQueueWorker_FailsExactlyAfterThirdAttempt(t *testing.T) {
	repo := mocks.NewRepo()
	msgID, entryID := queuedMessage(repo)
	pusher := newFakePusher() // recipient never online

	w := NewDeliveryQueueWorker(repo, pusher, usecase.NewGetUserDisplayUseCase(repo, nil), testLogger())
	ctx := context.Background()

	w.RunPass(ctx)
	entry := repo.QueueEntry(entryID)
	assert.Equal(t, chat.QueueStatusPending, entry.Status, "first miss retries")
	assert.Equal(t, 1, entry.Attempts)

	w.RunPass(ctx)
	entry = repo.QueueEntry(entryID)
	assert.Equal(t, chat.QueueStatusPending, entry.Status, "second miss retries")
	assert.Equal(t, 2, entry.Attempts)

	w.RunPass(ctx)
	entry = repo.QueueEntry(entryID)
	assert.Equal(t, chat.QueueStatusFailed, entry.Status, "third miss is terminal")
	assert.Equal(t, 3, entry.Attempts)
	assert.Equal(t, chat.DeliveryStatusFailed, repo.Message(msgID).DeliveryStatus)

	// A failed entry is never selected again.
	assert.Equal(t, 0, w.RunPass(ctx))
	assert.Empty(t, pusher.sentTo("u2"))
}

func TestDeliveryQueueWorker_RecipientComingOnlineDelivers(t *testing.T) {
	repo := mocks.NewRepo()
	_, entryID := queuedMessage(repo)
	pusher := newFakePusher()

	w := NewDeliveryQueueWorker(repo, pusher, usecase.NewGetUserDisplayUseCase(repo, nil), testLogger())
	ctx := context.Background()

	w.RunPass(ctx)
	w.RunPass(ctx)
	pusher.setOnline("u2", true)
	w.RunPass(ctx)

	entry := repo.QueueEntry(entryID)
	assert.Equal(t, chat.QueueStatusDelivered, entry.Status)
	assert.Equal(t, 3, entry.Attempts)
	require.Len(t, pusher.sentTo("u2"), 1)
}

func TestDeliveryQueueWorker_ProcessingErrorResetsBelowCap(t *testing.T) {
	repo := mocks.NewRepo()
	_, entryID := queuedMessage(repo)
	repo.FailOn["MarkDeliveryProcessing"] = errors.New("deadlock detected")
	pusher := newFakePusher("u2")

	w := NewDeliveryQueueWorker(repo, pusher, usecase.NewGetUserDisplayUseCase(repo, nil), testLogger())
	w.RunPass(context.Background())

	entry := repo.QueueEntry(entryID)
	assert.Equal(t, chat.QueueStatusPending, entry.Status, "attempts below cap reset to pending")
	assert.Empty(t, pusher.sentTo("u2"))
}

func TestDeliveryQueueWorker_SelectErrorIsSwallowed(t *testing.T) {
	repo := mocks.NewRepo()
	queuedMessage(repo)
	repo.FailOn["PendingDeliveries"] = errors.New("connection refused")

	w := NewDeliveryQueueWorker(repo, newFakePusher(), usecase.NewGetUserDisplayUseCase(repo, nil), testLogger())
	assert.Equal(t, 0, w.RunPass(context.Background()))
}
