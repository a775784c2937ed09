package usecase

import (
	"context"
	"fmt"
	"time"

	chat "github.com/SCS-Technik/Assixx-sub005/internal/pkg/chat/domain"
	repository "github.com/SCS-Technik/Assixx-sub005/internal/pkg/chat/persistence/repository/port"
)

// SendMessageInput carries the data needed to persist a new message.
// ScheduledAt, when set, defers delivery to the scheduled-message worker.
type SendMessageInput struct {
	ConversationID string
	SenderID       string
	TenantID       string
	Content        string
	Attachments    []string
	ScheduledAt    *time.Time
}

// SendMessageUseCase authorizes the sender against the conversation's
// participant set and persists the message. Fan-out to live connections is
// the transport's job; no write happens when authorization fails.
type SendMessageUseCase struct {
	Repo repository.ChatRepository
}

func NewSendMessageUseCase(repo repository.ChatRepository) *SendMessageUseCase {
	return &SendMessageUseCase{Repo: repo}
}

func (uc *SendMessageUseCase) Execute(ctx context.Context, in SendMessageInput) (*chat.Message, error) {
	if in.ConversationID == "" || in.SenderID == "" || in.TenantID == "" {
		return nil, fmt.Errorf("conversationId, senderId and tenantId are required")
	}

	isParticipant, err := uc.Repo.IsParticipant(ctx, in.ConversationID, in.SenderID, in.TenantID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if !isParticipant {
		return nil, chat.ErrNotParticipant
	}

	var content *string
	if in.Content != "" {
		content = &in.Content
	}

	msg, err := chat.NewMessage(chat.Message{
		ConversationID:    in.ConversationID,
		SenderID:          in.SenderID,
		TenantID:          in.TenantID,
		Content:           content,
		Attachments:       in.Attachments,
		ScheduledDelivery: in.ScheduledAt,
	})
	if err != nil {
		return nil, err
	}

	// Persist letting the DB generate the ID
	id, err := uc.Repo.SaveMessage(ctx, *msg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	msg.ID = id
	return msg, nil
}
