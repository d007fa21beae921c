package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Gsaudx/Advision-sub001/models"
)

func TestBuyOption(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.deposit(t, "10000")

	t.Run("debits premium at contract size", func(t *testing.T) {
		result, err := env.derivatives.BuyOption(ctx, env.walletID, OptionTradeRequest{
			Ticker:         "PETRA240",
			Option:         callSpec("PETR4", "24"),
			Contracts:      dec("10"),
			Premium:        dec("1.50"),
			IdempotencyKey: key(),
		})
		require.NoError(t, err)
		requireDecimalEqual(t, "8500", result.Wallet.CashBalance)
		requireDecimalEqual(t, "10", result.Position.Quantity)
		requireDecimalEqual(t, "1.50", result.Position.AveragePrice)
		require.Equal(t, models.TransactionTypeOptionBuy, result.Transaction.Type)
		require.EqualValues(t, 1, env.countLifecycleEvents(t, models.LifecycleEventOpened))
	})

	t.Run("creates the option asset with its contract terms", func(t *testing.T) {
		asset, err := env.assets.Get(ctx, "PETRA240")
		require.NoError(t, err)
		require.Equal(t, models.AssetTypeOption, asset.Type)
		require.NotNil(t, asset.OptionDetail)
		require.Equal(t, models.OptionTypeCall, asset.OptionDetail.OptionType)
		requireDecimalEqual(t, "24", asset.OptionDetail.StrikePrice)
	})

	t.Run("a second buy merges without a new lifecycle event", func(t *testing.T) {
		result, err := env.derivatives.BuyOption(ctx, env.walletID, OptionTradeRequest{
			Ticker:         "PETRA240",
			Option:         callSpec("PETR4", "24"),
			Contracts:      dec("10"),
			Premium:        dec("2.50"),
			IdempotencyKey: key(),
		})
		require.NoError(t, err)
		requireDecimalEqual(t, "6000", result.Wallet.CashBalance)
		requireDecimalEqual(t, "20", result.Position.Quantity)
		requireDecimalEqual(t, "2", result.Position.AveragePrice)
		require.EqualValues(t, 1, env.countLifecycleEvents(t, models.LifecycleEventOpened))
	})

	t.Run("rejects fractional contracts", func(t *testing.T) {
		_, err := env.derivatives.BuyOption(ctx, env.walletID, OptionTradeRequest{
			Ticker:         "PETRA240",
			Option:         callSpec("PETR4", "24"),
			Contracts:      dec("1.5"),
			Premium:        dec("1"),
			IdempotencyKey: key(),
		})
		require.ErrorIs(t, err, ErrValidation)
	})
}

func TestSellOption(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.deposit(t, "35000")

	t.Run("short put blocks strike value as collateral", func(t *testing.T) {
		result, err := env.derivatives.SellOption(ctx, env.walletID, OptionTradeRequest{
			Ticker:         "PETRM100",
			Option:         putSpec("PETR4", "100"),
			Contracts:      dec("3"),
			Premium:        dec("2"),
			IdempotencyKey: key(),
		})
		require.NoError(t, err)
		requireDecimalEqual(t, "35600", result.Wallet.CashBalance)
		requireDecimalEqual(t, "30000", result.Wallet.BlockedCollateral)
		requireDecimalEqual(t, "-3", result.Position.Quantity)
		require.True(t, result.Position.CollateralBlocked.Valid)
		requireDecimalEqual(t, "30000", result.Position.CollateralBlocked.Decimal)
	})

	t.Run("short put without collateral coverage is rejected", func(t *testing.T) {
		_, err := env.derivatives.SellOption(ctx, env.walletID, OptionTradeRequest{
			Ticker:         "PETRM200",
			Option:         putSpec("PETR4", "200"),
			Contracts:      dec("1"),
			Premium:        dec("2"),
			IdempotencyKey: key(),
		})
		require.ErrorIs(t, err, ErrInsufficientCollateral)
		require.Nil(t, env.position(t, "PETRM200"))
		requireDecimalEqual(t, "35600", env.wallet(t).CashBalance)
		requireDecimalEqual(t, "30000", env.wallet(t).BlockedCollateral)
	})

	t.Run("covered call requires the underlying shares", func(t *testing.T) {
		_, err := env.derivatives.SellOption(ctx, env.walletID, OptionTradeRequest{
			Ticker:         "PETRC30",
			Option:         callSpec("PETR4", "30"),
			Contracts:      dec("2"),
			Premium:        dec("1"),
			Covered:        true,
			IdempotencyKey: key(),
		})
		require.ErrorIs(t, err, ErrInsufficientCollateral)

		_, err = env.trading.Buy(ctx, env.walletID, TradeRequest{
			Ticker:         "PETR4",
			Quantity:       dec("200"),
			Price:          dec("25"),
			IdempotencyKey: key(),
		})
		require.NoError(t, err)

		result, err := env.derivatives.SellOption(ctx, env.walletID, OptionTradeRequest{
			Ticker:         "PETRC30",
			Option:         callSpec("PETR4", "30"),
			Contracts:      dec("2"),
			Premium:        dec("1"),
			Covered:        true,
			IdempotencyKey: key(),
		})
		require.NoError(t, err)
		requireDecimalEqual(t, "-2", result.Position.Quantity)
		// Covered calls reserve shares, not cash.
		requireDecimalEqual(t, "30000", result.Wallet.BlockedCollateral)
	})
}

func TestCloseOption(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.deposit(t, "25000")

	_, err := env.derivatives.SellOption(ctx, env.walletID, OptionTradeRequest{
		Ticker:         "PETRM50",
		Option:         putSpec("PETR4", "50"),
		Contracts:      dec("4"),
		Premium:        dec("2"),
		IdempotencyKey: key(),
	})
	require.NoError(t, err)
	requireDecimalEqual(t, "25800", env.wallet(t).CashBalance)
	requireDecimalEqual(t, "20000", env.wallet(t).BlockedCollateral)

	t.Run("partial close releases proportional collateral", func(t *testing.T) {
		result, err := env.derivatives.CloseOption(ctx, env.walletID, OptionCloseRequest{
			Ticker:         "PETRM50",
			Contracts:      dec("2"),
			Premium:        dec("1"),
			IdempotencyKey: key(),
		})
		require.NoError(t, err)
		requireDecimalEqual(t, "10000", result.ReleasedCollateral)
		requireDecimalEqual(t, "10000", result.Wallet.BlockedCollateral)
		requireDecimalEqual(t, "25600", result.Wallet.CashBalance)
		requireDecimalEqual(t, "-2", result.Position.Quantity)
		require.True(t, result.Position.CollateralBlocked.Valid)
		requireDecimalEqual(t, "10000", result.Position.CollateralBlocked.Decimal)
	})

	t.Run("zero contracts closes the full position", func(t *testing.T) {
		result, err := env.derivatives.CloseOption(ctx, env.walletID, OptionCloseRequest{
			Ticker:         "PETRM50",
			Contracts:      dec("0"),
			Premium:        dec("1"),
			IdempotencyKey: key(),
		})
		require.NoError(t, err)
		require.Nil(t, result.Position)
		require.Nil(t, env.position(t, "PETRM50"))
		requireDecimalEqual(t, "10000", result.ReleasedCollateral)
		requireDecimalEqual(t, "0", result.Wallet.BlockedCollateral)
		requireDecimalEqual(t, "25400", result.Wallet.CashBalance)
		require.EqualValues(t, 1, env.countLifecycleEvents(t, models.LifecycleEventClosed))
	})

	t.Run("long close credits the proceeds", func(t *testing.T) {
		_, err := env.derivatives.BuyOption(ctx, env.walletID, OptionTradeRequest{
			Ticker:         "PETRA60",
			Option:         callSpec("PETR4", "60"),
			Contracts:      dec("2"),
			Premium:        dec("3"),
			IdempotencyKey: key(),
		})
		require.NoError(t, err)
		requireDecimalEqual(t, "24800", env.wallet(t).CashBalance)

		result, err := env.derivatives.CloseOption(ctx, env.walletID, OptionCloseRequest{
			Ticker:         "PETRA60",
			Contracts:      dec("2"),
			Premium:        dec("4"),
			IdempotencyKey: key(),
		})
		require.NoError(t, err)
		require.Nil(t, result.Position)
		requireDecimalEqual(t, "25600", result.Wallet.CashBalance)
		requireDecimalEqual(t, "0", result.ReleasedCollateral)
	})

	t.Run("closing a stock asset is rejected", func(t *testing.T) {
		_, err := env.trading.Buy(ctx, env.walletID, TradeRequest{
			Ticker:         "PETR4",
			Quantity:       dec("1"),
			Price:          dec("10"),
			IdempotencyKey: key(),
		})
		require.NoError(t, err)

		_, err = env.derivatives.CloseOption(ctx, env.walletID, OptionCloseRequest{
			Ticker:         "PETR4",
			Contracts:      dec("1"),
			Premium:        dec("1"),
			IdempotencyKey: key(),
		})
		require.ErrorIs(t, err, ErrValidation)
	})
}
