package database

import (
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/Gsaudx/Advision-sub001/models"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	store, err := NewStorage(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func seedWallet(t *testing.T, store *Storage, cash, blocked string) uint {
	t.Helper()
	wallet := models.Wallet{
		ClientID:          1,
		Currency:          "BRL",
		CashBalance:       decimal.RequireFromString(cash),
		BlockedCollateral: decimal.RequireFromString(blocked),
	}
	require.NoError(t, store.DB().Create(&wallet).Error)
	return wallet.ID
}

func loadWallet(t *testing.T, store *Storage, id uint) models.Wallet {
	t.Helper()
	var wallet models.Wallet
	require.NoError(t, store.DB().First(&wallet, id).Error)
	return wallet
}

func TestCashPredicates(t *testing.T) {
	store := newTestStorage(t)
	walletID := seedWallet(t, store, "1000", "300")

	t.Run("debit succeeds within the balance", func(t *testing.T) {
		ok, err := DebitCash(store.DB(), walletID, decimal.RequireFromString("900"))
		require.NoError(t, err)
		require.True(t, ok)
		require.True(t, loadWallet(t, store, walletID).CashBalance.Equal(decimal.RequireFromString("100")))
	})

	t.Run("debit beyond the balance leaves the row untouched", func(t *testing.T) {
		ok, err := DebitCash(store.DB(), walletID, decimal.RequireFromString("100.01"))
		require.NoError(t, err)
		require.False(t, ok)
		require.True(t, loadWallet(t, store, walletID).CashBalance.Equal(decimal.RequireFromString("100")))
	})

	t.Run("available debit excludes blocked collateral", func(t *testing.T) {
		// 100 cash, 300 blocked: nothing is available.
		ok, err := DebitAvailableCash(store.DB(), walletID, decimal.RequireFromString("1"))
		require.NoError(t, err)
		require.False(t, ok)

		require.NoError(t, CreditCash(store.DB(), walletID, decimal.RequireFromString("400")))
		ok, err = DebitAvailableCash(store.DB(), walletID, decimal.RequireFromString("200"))
		require.NoError(t, err)
		require.True(t, ok)
		require.True(t, loadWallet(t, store, walletID).CashBalance.Equal(decimal.RequireFromString("300")))
	})

	t.Run("block requires available cash", func(t *testing.T) {
		// 300 cash, 300 blocked.
		ok, err := BlockCollateral(store.DB(), walletID, decimal.RequireFromString("1"))
		require.NoError(t, err)
		require.False(t, ok)

		require.NoError(t, ReleaseCollateral(store.DB(), walletID, decimal.RequireFromString("300")))
		ok, err = BlockCollateral(store.DB(), walletID, decimal.RequireFromString("250"))
		require.NoError(t, err)
		require.True(t, ok)
		require.True(t, loadWallet(t, store, walletID).BlockedCollateral.Equal(decimal.RequireFromString("250")))
	})

	t.Run("credit to a missing wallet reports not found", func(t *testing.T) {
		err := CreditCash(store.DB(), 99999, decimal.RequireFromString("1"))
		require.ErrorIs(t, err, gorm.ErrRecordNotFound)
	})
}

func TestPositionCAS(t *testing.T) {
	store := newTestStorage(t)
	walletID := seedWallet(t, store, "1000", "0")

	position := models.Position{
		WalletID:     walletID,
		AssetID:      1,
		Quantity:     decimal.RequireFromString("10"),
		AveragePrice: decimal.RequireFromString("5"),
	}
	require.NoError(t, store.DB().Create(&position).Error)

	t.Run("update applies against a fresh snapshot", func(t *testing.T) {
		snapshot := position
		ok, err := UpdatePositionCAS(store.DB(), &snapshot, map[string]interface{}{
			"quantity":      decimal.RequireFromString("15"),
			"average_price": decimal.RequireFromString("6"),
		})
		require.NoError(t, err)
		require.True(t, ok)
	})

	t.Run("update is rejected against a stale snapshot", func(t *testing.T) {
		stale := position // still quantity 10, average 5
		ok, err := UpdatePositionCAS(store.DB(), &stale, map[string]interface{}{
			"quantity": decimal.RequireFromString("20"),
		})
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("delete is rejected against a stale snapshot", func(t *testing.T) {
		stale := position
		ok, err := DeletePositionCAS(store.DB(), &stale)
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("delete removes the row for a fresh snapshot", func(t *testing.T) {
		var current models.Position
		require.NoError(t, store.DB().First(&current, position.ID).Error)

		ok, err := DeletePositionCAS(store.DB(), &current)
		require.NoError(t, err)
		require.True(t, ok)

		err = store.DB().First(&models.Position{}, position.ID).Error
		require.ErrorIs(t, err, gorm.ErrRecordNotFound)
	})

	t.Run("hard delete frees the unique index", func(t *testing.T) {
		recreated := models.Position{
			WalletID:     walletID,
			AssetID:      1,
			Quantity:     decimal.RequireFromString("3"),
			AveragePrice: decimal.RequireFromString("7"),
		}
		require.NoError(t, store.DB().Create(&recreated).Error)
	})
}

func TestStorageTranslatesDuplicateKeys(t *testing.T) {
	store := newTestStorage(t)
	walletID := seedWallet(t, store, "1000", "0")

	first := models.Transaction{
		WalletID:       walletID,
		IdempotencyKey: "op-1",
		Type:           models.TransactionTypeDeposit,
		TotalValue:     decimal.RequireFromString("100"),
	}
	require.NoError(t, store.DB().Create(&first).Error)

	duplicate := models.Transaction{
		WalletID:       walletID,
		IdempotencyKey: "op-1",
		Type:           models.TransactionTypeDeposit,
		TotalValue:     decimal.RequireFromString("100"),
	}
	err := store.DB().Create(&duplicate).Error
	require.ErrorIs(t, err, gorm.ErrDuplicatedKey)
}
