package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SCS-Technik/Assixx-sub005/internal/pkg/chat/persistence/repository/mocks"
)

func TestPresenceUseCase_Execute(t *testing.T) {
	ctx := context.Background()

	repo := mocks.NewRepo()
	repo.AddConversation("c1", "t1", "u1", "u2")
	repo.AddConversation("c2", "t1", "u1", "u3")
	repo.AddConversation("c3", "t1", "u2", "u3")
	// Same user id in another tenant must stay invisible.
	repo.AddConversation("c4", "t2", "u1", "u9")

	uc := NewPresenceUseCase(repo)

	t.Run("audience is the distinct co-participant set", func(t *testing.T) {
		ids, err := uc.Execute(ctx, PresenceInput{UserID: "u1", TenantID: "t1"})
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"u2", "u3"}, ids)
	})

	t.Run("tenant scoping holds", func(t *testing.T) {
		ids, err := uc.Execute(ctx, PresenceInput{UserID: "u1", TenantID: "t2"})
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"u9"}, ids)
	})

	t.Run("user with no conversations has no audience", func(t *testing.T) {
		ids, err := uc.Execute(ctx, PresenceInput{UserID: "hermit", TenantID: "t1"})
		require.NoError(t, err)
		assert.Empty(t, ids)
	})

	t.Run("missing input", func(t *testing.T) {
		_, err := uc.Execute(ctx, PresenceInput{UserID: "u1"})
		require.Error(t, err)
	})
}
