package usecase

import (
	"context"
	"fmt"

	repository "github.com/SCS-Technik/Assixx-sub005/internal/pkg/chat/persistence/repository/port"
)

// ListParticipantsInput wraps the tenant-scoped conversation identifier.
type ListParticipantsInput struct {
	ConversationID string
	TenantID       string
}

// ListParticipantsUseCase returns user IDs for all participants in the
// conversation. Fan-out keys off this set, not off in-memory rooms, so a
// participant receives messages without having joined on this socket.
type ListParticipantsUseCase struct {
	Repo repository.ChatRepository
}

func NewListParticipantsUseCase(repo repository.ChatRepository) *ListParticipantsUseCase {
	return &ListParticipantsUseCase{Repo: repo}
}

func (uc *ListParticipantsUseCase) Execute(ctx context.Context, in ListParticipantsInput) ([]string, error) {
	if in.ConversationID == "" || in.TenantID == "" {
		return nil, fmt.Errorf("conversationId and tenantId are required")
	}

	ids, err := uc.Repo.ListParticipantIDs(ctx, in.ConversationID, in.TenantID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return ids, nil
}
