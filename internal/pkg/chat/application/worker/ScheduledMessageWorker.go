package worker

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/SCS-Technik/Assixx-sub005/internal/pkg/chat/application/usecase"
	chat "github.com/SCS-Technik/Assixx-sub005/internal/pkg/chat/domain"
	repository "github.com/SCS-Technik/Assixx-sub005/internal/pkg/chat/persistence/repository/port"
	"github.com/SCS-Technik/Assixx-sub005/internal/pkg/chat/protocol"
)

const (
	defaultScheduledInterval = 60 * time.Second
	defaultScheduledBatch    = 50
)

// ScheduledMessageWorker promotes messages whose scheduled delivery time has
// elapsed into the live delivery path. There is no retry logic: a missed row
// is still due on the next pass, and the status flip keeps re-selection
// idempotent.
type ScheduledMessageWorker struct {
	repo    repository.ChatRepository
	pusher  Pusher
	display *usecase.GetUserDisplayUseCase
	log     *slog.Logger

	interval time.Duration
	batch    int

	busy atomic.Bool
}

func NewScheduledMessageWorker(repo repository.ChatRepository, pusher Pusher, display *usecase.GetUserDisplayUseCase, log *slog.Logger) *ScheduledMessageWorker {
	return &ScheduledMessageWorker{
		repo:     repo,
		pusher:   pusher,
		display:  display,
		log:      log,
		interval: defaultScheduledInterval,
		batch:    defaultScheduledBatch,
	}
}

// WithInterval overrides the pass cadence; zero keeps the default.
func (w *ScheduledMessageWorker) WithInterval(interval time.Duration) *ScheduledMessageWorker {
	if interval > 0 {
		w.interval = interval
	}
	return w
}

// Run blocks until ctx is canceled.
func (w *ScheduledMessageWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.RunPass(ctx)
		}
	}
}

// RunPass executes a single pass and returns how many messages it promoted.
func (w *ScheduledMessageWorker) RunPass(ctx context.Context) int {
	if !w.busy.CompareAndSwap(false, true) {
		return 0
	}
	defer w.busy.Store(false)

	due, err := w.repo.DueScheduledMessages(ctx, time.Now(), w.batch)
	if err != nil {
		w.log.Error("scheduled messages: select due", "err", err)
		return 0
	}

	promoted := 0
	for _, msg := range due {
		if w.promote(ctx, msg) {
			promoted++
		}
	}
	return promoted
}

func (w *ScheduledMessageWorker) promote(ctx context.Context, msg chat.Message) bool {
	ok, err := w.repo.PromoteScheduledMessage(ctx, msg.ID)
	if err != nil {
		w.log.Error("scheduled messages: promote", "message", msg.ID, "err", err)
		return false
	}
	if !ok {
		// Another pass won the status flip.
		return false
	}

	msg.DeliveryStatus = chat.DeliveryStatusDelivered
	msg.ScheduledDelivery = nil

	sender := chat.UserDisplay{ID: msg.SenderID}
	if d, err := w.display.Execute(ctx, msg.SenderID); err == nil {
		sender = *d
	}
	out := protocol.NewMessagePayload(msg, sender)
	out.IsScheduled = true
	payload, err := protocol.Marshal(protocol.TypeScheduledDelivered, out)
	if err != nil {
		w.log.Error("scheduled messages: encode payload", "message", msg.ID, "err", err)
		return true
	}

	participants, err := w.repo.ListParticipantIDs(ctx, msg.ConversationID, msg.TenantID)
	if err != nil {
		w.log.Error("scheduled messages: list participants", "message", msg.ID, "err", err)
		return true
	}
	for _, userID := range participants {
		w.pusher.NotifyUser(userID, payload)
	}
	return true
}
