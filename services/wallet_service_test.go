package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/Gsaudx/Advision-sub001/database"
)

func TestDeposit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	t.Run("credits the wallet", func(t *testing.T) {
		result, err := env.wallets.Deposit(ctx, env.walletID, CashRequest{
			Amount:         dec("1000"),
			IdempotencyKey: key(),
		})
		require.NoError(t, err)
		requireDecimalEqual(t, "1000", result.Wallet.CashBalance)
		requireDecimalEqual(t, "1000", result.Transaction.TotalValue)
	})

	t.Run("rejects non-positive amounts", func(t *testing.T) {
		_, err := env.wallets.Deposit(ctx, env.walletID, CashRequest{
			Amount:         dec("0"),
			IdempotencyKey: key(),
		})
		require.ErrorIs(t, err, ErrValidation)

		_, err = env.wallets.Deposit(ctx, env.walletID, CashRequest{
			Amount:         dec("-50"),
			IdempotencyKey: key(),
		})
		require.ErrorIs(t, err, ErrValidation)
	})

	t.Run("rejects a reused idempotency key", func(t *testing.T) {
		k := key()
		_, err := env.wallets.Deposit(ctx, env.walletID, CashRequest{
			Amount:         dec("100"),
			IdempotencyKey: k,
		})
		require.NoError(t, err)

		_, err = env.wallets.Deposit(ctx, env.walletID, CashRequest{
			Amount:         dec("100"),
			IdempotencyKey: k,
		})
		require.ErrorIs(t, err, ErrDuplicateOperation)

		requireDecimalEqual(t, "1100", env.wallet(t).CashBalance)
	})

	t.Run("requires an idempotency key", func(t *testing.T) {
		_, err := env.wallets.Deposit(ctx, env.walletID, CashRequest{
			Amount: dec("100"),
		})
		require.ErrorIs(t, err, ErrValidation)
	})

	t.Run("unknown wallet", func(t *testing.T) {
		_, err := env.wallets.Deposit(ctx, 99999, CashRequest{
			Amount:         dec("100"),
			IdempotencyKey: key(),
		})
		require.ErrorIs(t, err, ErrNotFound)
	})
}

func TestWithdraw(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.deposit(t, "1000")

	t.Run("debits the wallet", func(t *testing.T) {
		result, err := env.wallets.Withdraw(ctx, env.walletID, CashRequest{
			Amount:         dec("400"),
			IdempotencyKey: key(),
		})
		require.NoError(t, err)
		requireDecimalEqual(t, "600", result.Wallet.CashBalance)
	})

	t.Run("rejects amounts beyond the balance", func(t *testing.T) {
		_, err := env.wallets.Withdraw(ctx, env.walletID, CashRequest{
			Amount:         dec("600.01"),
			IdempotencyKey: key(),
		})
		require.ErrorIs(t, err, ErrInsufficientFunds)
		requireDecimalEqual(t, "600", env.wallet(t).CashBalance)
	})

	t.Run("respects blocked collateral", func(t *testing.T) {
		err := env.store.Transaction(func(tx *gorm.DB) error {
			ok, err := database.BlockCollateral(tx, env.walletID, dec("500"))
			require.True(t, ok)
			return err
		})
		require.NoError(t, err)

		_, err = env.wallets.Withdraw(ctx, env.walletID, CashRequest{
			Amount:         dec("200"),
			IdempotencyKey: key(),
		})
		require.ErrorIs(t, err, ErrInsufficientFunds)

		result, err := env.wallets.Withdraw(ctx, env.walletID, CashRequest{
			Amount:         dec("100"),
			IdempotencyKey: key(),
		})
		require.NoError(t, err)
		requireDecimalEqual(t, "500", result.Wallet.CashBalance)
		requireDecimalEqual(t, "500", result.Wallet.BlockedCollateral)
		requireDecimalEqual(t, "0", result.Wallet.Available())
	})
}
