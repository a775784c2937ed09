package usecase

import (
	"context"
	"fmt"

	chat "github.com/SCS-Technik/Assixx-sub005/internal/pkg/chat/domain"
	repository "github.com/SCS-Technik/Assixx-sub005/internal/pkg/chat/persistence/repository/port"
)

// JoinConversationInput validates a request to attach a user session to a conversation.
type JoinConversationInput struct {
	ConversationID string
	UserID         string
	TenantID       string
}

// JoinConversationUseCase ensures the user belongs to the conversation
// before the connection caches it locally.
type JoinConversationUseCase struct {
	Repo repository.ChatRepository
}

func NewJoinConversationUseCase(repo repository.ChatRepository) *JoinConversationUseCase {
	return &JoinConversationUseCase{Repo: repo}
}

func (uc *JoinConversationUseCase) Execute(ctx context.Context, in JoinConversationInput) error {
	if in.ConversationID == "" || in.UserID == "" || in.TenantID == "" {
		return fmt.Errorf("conversationId, userId and tenantId are required")
	}

	ok, err := uc.Repo.IsParticipant(ctx, in.ConversationID, in.UserID, in.TenantID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if !ok {
		return chat.ErrNotParticipant
	}
	return nil
}
