package worker

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/SCS-Technik/Assixx-sub005/internal/pkg/chat/application/usecase"
	chat "github.com/SCS-Technik/Assixx-sub005/internal/pkg/chat/domain"
	"github.com/SCS-Technik/Assixx-sub005/internal/pkg/chat/protocol"
	repository "github.com/SCS-Technik/Assixx-sub005/internal/pkg/chat/persistence/repository/port"
)

const (
	defaultDeliveryInterval = 5 * time.Second
	defaultDeliveryBatch    = 50
	defaultMaxAttempts      = 3
)

// DeliveryQueueWorker drains the durable delivery queue: it picks up
// pending entries below the attempt cap, pushes them to the recipient's
// live connection and tracks attempt state. Retries run at the loop's
// fixed cadence with no backoff; after the attempt cap an entry is
// terminally failed and needs external intervention.
type DeliveryQueueWorker struct {
	repo    repository.ChatRepository
	pusher  Pusher
	display *usecase.GetUserDisplayUseCase
	log     *slog.Logger

	interval    time.Duration
	batch       int
	maxAttempts int

	busy atomic.Bool
}

func NewDeliveryQueueWorker(repo repository.ChatRepository, pusher Pusher, display *usecase.GetUserDisplayUseCase, log *slog.Logger) *DeliveryQueueWorker {
	return &DeliveryQueueWorker{
		repo:        repo,
		pusher:      pusher,
		display:     display,
		log:         log,
		interval:    defaultDeliveryInterval,
		batch:       defaultDeliveryBatch,
		maxAttempts: defaultMaxAttempts,
	}
}

// WithCadence overrides interval, batch size and attempt cap; zero values
// keep the defaults.
func (w *DeliveryQueueWorker) WithCadence(interval time.Duration, batch, maxAttempts int) *DeliveryQueueWorker {
	if interval > 0 {
		w.interval = interval
	}
	if batch > 0 {
		w.batch = batch
	}
	if maxAttempts > 0 {
		w.maxAttempts = maxAttempts
	}
	return w
}

// Run blocks until ctx is canceled, with an immediate first pass at startup.
func (w *DeliveryQueueWorker) Run(ctx context.Context) {
	w.RunPass(ctx)

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

// RunPass executes a single pass and returns how many entries it handled.
// Overlapping invocations are serialized away with a busy flag.
func (w *DeliveryQueueWorker) RunPass(ctx context.Context) int {
	if !w.busy.CompareAndSwap(false, true) {
		return 0
	}
	defer w.busy.Store(false)

	deliveries, err := w.repo.PendingDeliveries(ctx, w.batch, w.maxAttempts)
	if err != nil {
		w.log.Error("delivery queue: select pending", "err", err)
		return 0
	}

	for _, d := range deliveries {
		w.process(ctx, d)
	}
	return len(deliveries)
}

func (w *DeliveryQueueWorker) process(ctx context.Context, d chat.PendingDelivery) {
	attempts, err := w.repo.MarkDeliveryProcessing(ctx, d.Entry.ID, time.Now())
	if err != nil {
		w.log.Error("delivery queue: mark processing", "entry", d.Entry.ID, "err", err)
		w.recover(ctx, d)
		return
	}

	payload, err := w.buildPayload(ctx, d.Message)
	if err != nil {
		w.log.Error("delivery queue: build payload", "entry", d.Entry.ID, "err", err)
		w.settle(ctx, d, attempts)
		return
	}

	if w.pusher.NotifyUser(d.Entry.RecipientID, payload) {
		if err := w.repo.MarkDeliveryDelivered(ctx, d.Entry.ID, d.Entry.MessageID); err != nil {
			w.log.Error("delivery queue: mark delivered", "entry", d.Entry.ID, "err", err)
		}
		return
	}

	// Recipient unreachable: the attempt still counts.
	w.settle(ctx, d, attempts)
}

// settle decides between terminal failure and another fixed-interval retry.
func (w *DeliveryQueueWorker) settle(ctx context.Context, d chat.PendingDelivery, attempts int) {
	if attempts >= w.maxAttempts {
		if err := w.repo.MarkDeliveryFailed(ctx, d.Entry.ID, d.Entry.MessageID); err != nil {
			w.log.Error("delivery queue: mark failed", "entry", d.Entry.ID, "err", err)
		}
		return
	}
	if err := w.repo.ResetDeliveryPending(ctx, d.Entry.ID); err != nil {
		w.log.Error("delivery queue: reset pending", "entry", d.Entry.ID, "err", err)
	}
}

// recover handles entries whose attempt counter state is unknown because
// the processing update itself failed: re-read the counter and settle.
func (w *DeliveryQueueWorker) recover(ctx context.Context, d chat.PendingDelivery) {
	attempts, err := w.repo.GetDeliveryAttempts(ctx, d.Entry.ID)
	if err != nil {
		w.log.Error("delivery queue: read attempts", "entry", d.Entry.ID, "err", err)
		return
	}
	w.settle(ctx, d, attempts)
}

func (w *DeliveryQueueWorker) buildPayload(ctx context.Context, m chat.Message) ([]byte, error) {
	sender := chat.UserDisplay{ID: m.SenderID}
	if d, err := w.display.Execute(ctx, m.SenderID); err == nil {
		sender = *d
	}
	return protocol.Marshal(protocol.TypeNewMessage, protocol.NewMessagePayload(m, sender))
}
