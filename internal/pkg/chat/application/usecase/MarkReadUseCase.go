package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	chat "github.com/SCS-Technik/Assixx-sub005/internal/pkg/chat/domain"
	repository "github.com/SCS-Technik/Assixx-sub005/internal/pkg/chat/persistence/repository/port"
)

// MarkReadInput identifies the message a reader acknowledges.
type MarkReadInput struct {
	MessageID string
	ReaderID  string
	TenantID  string
}

// MarkReadUseCase flips a message's read flag within the reader's tenant and
// returns the updated row so the transport can notify the original sender.
// The reader must be a participant of the message's conversation.
type MarkReadUseCase struct {
	Repo repository.ChatRepository
}

func NewMarkReadUseCase(repo repository.ChatRepository) *MarkReadUseCase {
	return &MarkReadUseCase{Repo: repo}
}

func (uc *MarkReadUseCase) Execute(ctx context.Context, in MarkReadInput) (*chat.Message, error) {
	if in.MessageID == "" || in.ReaderID == "" || in.TenantID == "" {
		return nil, fmt.Errorf("messageId, readerId and tenantId are required")
	}

	msg, err := uc.Repo.GetMessage(ctx, in.MessageID, in.TenantID)
	if err != nil {
		if errors.Is(err, chat.ErrMessageNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	isParticipant, err := uc.Repo.IsParticipant(ctx, msg.ConversationID, in.ReaderID, in.TenantID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if !isParticipant {
		return nil, chat.ErrNotParticipant
	}

	updated, err := uc.Repo.MarkMessageRead(ctx, in.MessageID, in.TenantID, time.Now())
	if err != nil {
		if errors.Is(err, chat.ErrMessageNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return updated, nil
}
