package usecase

import (
	"context"
	"fmt"

	repository "github.com/SCS-Technik/Assixx-sub005/internal/pkg/chat/persistence/repository/port"
)

// PresenceInput identifies whose status change is being broadcast.
type PresenceInput struct {
	UserID   string
	TenantID string
}

// PresenceUseCase resolves the audience of a presence change: every distinct
// user who shares at least one conversation with the subject inside the same
// tenant, excluding the subject.
type PresenceUseCase struct {
	Repo repository.ChatRepository
}

func NewPresenceUseCase(repo repository.ChatRepository) *PresenceUseCase {
	return &PresenceUseCase{Repo: repo}
}

func (uc *PresenceUseCase) Execute(ctx context.Context, in PresenceInput) ([]string, error) {
	if in.UserID == "" || in.TenantID == "" {
		return nil, fmt.Errorf("userId and tenantId are required")
	}

	ids, err := uc.Repo.CoParticipantIDs(ctx, in.UserID, in.TenantID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return ids, nil
}
