package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Gsaudx/Advision-sub001/models"
)

func TestAssetResolver(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	t.Run("creates a stock asset on first use", func(t *testing.T) {
		asset, err := env.assets.Resolve(ctx, "PETR4")
		require.NoError(t, err)
		require.Equal(t, models.AssetTypeStock, asset.Type)

		again, err := env.assets.Resolve(ctx, "PETR4")
		require.NoError(t, err)
		require.Equal(t, asset.ID, again.ID)
	})

	t.Run("creates an option asset with detail and underlying", func(t *testing.T) {
		asset, err := env.assets.ResolveOption(ctx, "PETRA30", callSpec("PETR4", "30"))
		require.NoError(t, err)
		require.Equal(t, models.AssetTypeOption, asset.Type)
		require.NotNil(t, asset.OptionDetail)
		require.Equal(t, models.ExerciseStyleAmerican, asset.OptionDetail.ExerciseType)

		underlying, err := env.assets.Get(ctx, "PETR4")
		require.NoError(t, err)
		require.Equal(t, underlying.ID, asset.OptionDetail.UnderlyingAssetID)
	})

	t.Run("option assets are immutable once created", func(t *testing.T) {
		again, err := env.assets.ResolveOption(ctx, "PETRA30", callSpec("PETR4", "999"))
		require.NoError(t, err)
		requireDecimalEqual(t, "30", again.OptionDetail.StrikePrice)
	})

	t.Run("creates the underlying stock lazily", func(t *testing.T) {
		asset, err := env.assets.ResolveOption(ctx, "VALEM60", putSpec("VALE3", "60"))
		require.NoError(t, err)

		underlying, err := env.assets.Get(ctx, "VALE3")
		require.NoError(t, err)
		require.Equal(t, underlying.ID, asset.OptionDetail.UnderlyingAssetID)
	})

	t.Run("resolving a stock ticker as an option is rejected", func(t *testing.T) {
		_, err := env.assets.ResolveOption(ctx, "PETR4", callSpec("PETR4", "30"))
		require.ErrorIs(t, err, ErrValidation)
	})

	t.Run("rejects malformed option specs", func(t *testing.T) {
		spec := callSpec("PETR4", "30")
		spec.OptionType = ""
		_, err := env.assets.ResolveOption(ctx, "PETRX1", spec)
		require.ErrorIs(t, err, ErrValidation)

		spec = callSpec("PETR4", "-5")
		_, err = env.assets.ResolveOption(ctx, "PETRX2", spec)
		require.ErrorIs(t, err, ErrValidation)

		spec = callSpec("", "30")
		_, err = env.assets.ResolveOption(ctx, "PETRX3", spec)
		require.ErrorIs(t, err, ErrValidation)
	})

	t.Run("get never creates", func(t *testing.T) {
		_, err := env.assets.Get(ctx, "GHOST3")
		require.ErrorIs(t, err, ErrNotFound)
	})
}
