package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWalletAccessGuard(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	guard := NewWalletAccessGuard(env.store)

	t.Run("advisor of the client is allowed", func(t *testing.T) {
		require.NoError(t, guard.Authorize(ctx, 10, RoleAdvisor, env.walletID))
	})

	t.Run("another advisor is forbidden", func(t *testing.T) {
		err := guard.Authorize(ctx, 11, RoleAdvisor, env.walletID)
		require.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("owning client is allowed", func(t *testing.T) {
		require.NoError(t, guard.Authorize(ctx, 20, RoleClient, env.walletID))
	})

	t.Run("another client is forbidden", func(t *testing.T) {
		err := guard.Authorize(ctx, 21, RoleClient, env.walletID)
		require.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("client id does not grant advisor access", func(t *testing.T) {
		err := guard.Authorize(ctx, 20, RoleAdvisor, env.walletID)
		require.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("unknown wallet", func(t *testing.T) {
		err := guard.Authorize(ctx, 10, RoleAdvisor, 99999)
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("unknown role", func(t *testing.T) {
		err := guard.Authorize(ctx, 10, ActorRole("AUDITOR"), env.walletID)
		require.ErrorIs(t, err, ErrValidation)
	})
}
