package usecase

import (
	"context"
	"fmt"

	repository "github.com/SCS-Technik/Assixx-sub005/internal/pkg/chat/persistence/repository/port"
)

// QueueDeliveryUseCase records a durable delivery obligation for one
// recipient. The delivery-queue worker owns every later state transition.
type QueueDeliveryUseCase struct {
	Repo repository.ChatRepository
}

func NewQueueDeliveryUseCase(repo repository.ChatRepository) *QueueDeliveryUseCase {
	return &QueueDeliveryUseCase{Repo: repo}
}

func (uc *QueueDeliveryUseCase) Execute(ctx context.Context, messageID, recipientID string) (string, error) {
	if messageID == "" || recipientID == "" {
		return "", fmt.Errorf("messageId and recipientId are required")
	}

	id, err := uc.Repo.EnqueueDelivery(ctx, messageID, recipientID)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return id, nil
}
