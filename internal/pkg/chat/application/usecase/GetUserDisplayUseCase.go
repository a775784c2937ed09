package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	cacheport "github.com/SCS-Technik/Assixx-sub005/internal/infrastructure/cache/port"
	chat "github.com/SCS-Technik/Assixx-sub005/internal/pkg/chat/domain"
	repository "github.com/SCS-Technik/Assixx-sub005/internal/pkg/chat/persistence/repository/port"
)

const displayCacheTTL = 5 * time.Minute

// GetUserDisplayUseCase resolves the sender display fields attached to
// outbound payloads. Lookups sit on the fan-out hot path, so results are
// cached; the cache is optional and failures fall through to the store.
type GetUserDisplayUseCase struct {
	Repo  repository.ChatRepository
	Cache cacheport.Cache // may be nil
}

func NewGetUserDisplayUseCase(repo repository.ChatRepository, cache cacheport.Cache) *GetUserDisplayUseCase {
	return &GetUserDisplayUseCase{Repo: repo, Cache: cache}
}

func (uc *GetUserDisplayUseCase) Execute(ctx context.Context, userID string) (*chat.UserDisplay, error) {
	if userID == "" {
		return nil, fmt.Errorf("userId is required")
	}

	key := "chat:display:" + userID
	if uc.Cache != nil {
		if raw, err := uc.Cache.Get(ctx, key); err == nil {
			var d chat.UserDisplay
			if json.Unmarshal([]byte(raw), &d) == nil {
				return &d, nil
			}
		}
	}

	d, err := uc.Repo.GetUserDisplay(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	if uc.Cache != nil {
		if raw, err := json.Marshal(d); err == nil {
			_ = uc.Cache.Set(ctx, key, string(raw), displayCacheTTL)
		}
	}
	return d, nil
}
