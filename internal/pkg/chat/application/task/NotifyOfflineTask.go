package task

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	qport "github.com/SCS-Technik/Assixx-sub005/internal/infrastructure/queue/port"
	"github.com/SCS-Technik/Assixx-sub005/internal/pkg/chat/application/usecase"
	chat "github.com/SCS-Technik/Assixx-sub005/internal/pkg/chat/domain"
	repository "github.com/SCS-Technik/Assixx-sub005/internal/pkg/chat/persistence/repository/port"
	"github.com/SCS-Technik/Assixx-sub005/internal/pkg/chat/protocol"
)

// NotifyOfflineTaskType is the queue task name for nudging a participant who
// was offline when a message was fanned out.
const NotifyOfflineTaskType = "chat:notify_offline"

// NotifyOfflinePayload is the JSON payload transported via the queue.
// Kept decoupled from domain types to avoid tight coupling with JSON tags.
type NotifyOfflinePayload struct {
	MessageID   string `json:"messageId"`
	RecipientID string `json:"recipientId"`
}

// Pusher mirrors worker.Pusher; declared locally so the task package does
// not depend on the worker package.
type Pusher interface {
	NotifyUser(userID string, payload []byte) bool
}

// EnqueueNotifyOffline schedules a best-effort nudge for an offline
// recipient. Uniqueness keeps reconnect storms from duplicating tasks.
func EnqueueNotifyOffline(ctx context.Context, client qport.Client, messageID, recipientID string) error {
	raw, err := json.Marshal(NotifyOfflinePayload{MessageID: messageID, RecipientID: recipientID})
	if err != nil {
		return err
	}
	_, err = client.Enqueue(ctx, qport.Task{Type: NotifyOfflineTaskType, Payload: raw}, qport.EnqueueOption{
		Queue:     "chat",
		MaxRetry:  3,
		UniqueTTL: time.Minute,
	})
	return err
}

// RegisterNotifyOfflineTask binds the task handler to the provided server.
// If the recipient came online between fan-out and task execution, the
// message is pushed over the live connection; otherwise the handler succeeds
// quietly and the REST history endpoints cover catch-up on reconnect.
func RegisterNotifyOfflineTask(srv qport.Server, repo repository.ChatRepository, pusher Pusher, display *usecase.GetUserDisplayUseCase, log *slog.Logger) {
	srv.Register(NotifyOfflineTaskType, func(ctx context.Context, t qport.Task) error {
		var p NotifyOfflinePayload
		if err := json.Unmarshal(t.Payload, &p); err != nil {
			// malformed payload: do not retry indefinitely
			return err
		}

		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		msg, err := repo.GetMessageByID(ctx, p.MessageID)
		if err != nil {
			return err
		}

		sender := chat.UserDisplay{ID: msg.SenderID}
		if d, err := display.Execute(ctx, msg.SenderID); err == nil {
			sender = *d
		}
		payload, err := protocol.Marshal(protocol.TypeNewMessage, protocol.NewMessagePayload(*msg, sender))
		if err != nil {
			return err
		}

		if pusher.NotifyUser(p.RecipientID, payload) {
			log.Debug("notify offline: delivered on reconnect", "message", p.MessageID, "recipient", p.RecipientID)
		}
		return nil
	})
}
