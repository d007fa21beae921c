package services

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/Gsaudx/Advision-sub001/database"
	"github.com/Gsaudx/Advision-sub001/interfaces"
	"github.com/Gsaudx/Advision-sub001/models"
)

// testEnv wires every engine against a throwaway SQLite ledger with one
// funded wallet.
type testEnv struct {
	store       *database.Storage
	ledger      *Ledger
	assets      *DatabaseAssetResolver
	market      *StaticMarketData
	wallets     *WalletService
	trading     *TradingEngine
	derivatives *DerivativesEngine
	lifecycle   *OptionLifecycleEngine
	strategies  *StrategyEngine

	clientID uint
	walletID uint
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store, err := database.NewStorage(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	audit := NewGormAuditRecorder()
	events := NewGormEventRecorder()
	ledger := NewLedger(store, audit, events)
	assets := NewDatabaseAssetResolver(store)
	market := NewStaticMarketData()

	env := &testEnv{
		store:       store,
		ledger:      ledger,
		assets:      assets,
		market:      market,
		wallets:     NewWalletService(store, ledger, events),
		trading:     NewTradingEngine(store, ledger, assets),
		derivatives: NewDerivativesEngine(store, ledger, assets),
		lifecycle:   NewOptionLifecycleEngine(store, ledger, market),
		strategies:  NewStrategyEngine(store, ledger, assets, market),
	}

	client := models.Client{
		AdvisorID: 10,
		UserID:    20,
		Name:      "Test Client",
		Email:     uuid.NewString() + "@example.com",
	}
	require.NoError(t, store.DB().Create(&client).Error)

	wallet := models.Wallet{ClientID: client.ID, Currency: "BRL"}
	require.NoError(t, store.DB().Create(&wallet).Error)

	env.clientID = client.ID
	env.walletID = wallet.ID
	return env
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func key() string {
	return uuid.NewString()
}

func (env *testEnv) deposit(t *testing.T, amount string) {
	t.Helper()
	_, err := env.wallets.Deposit(context.Background(), env.walletID, CashRequest{
		Amount:         dec(amount),
		IdempotencyKey: key(),
	})
	require.NoError(t, err)
}

func (env *testEnv) wallet(t *testing.T) *models.Wallet {
	t.Helper()
	wallet, err := env.ledger.FetchWallet(env.store.DB(), env.walletID)
	require.NoError(t, err)
	return wallet
}

// position returns the wallet's position for ticker, or nil when no row
// exists.
func (env *testEnv) position(t *testing.T, ticker string) *models.Position {
	t.Helper()

	asset, err := env.assets.Get(context.Background(), ticker)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	require.NoError(t, err)

	var position models.Position
	err = env.store.DB().
		Where("wallet_id = ? AND asset_id = ?", env.walletID, asset.ID).
		First(&position).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	require.NoError(t, err)
	return &position
}

func (env *testEnv) countTransactions(t *testing.T, txType models.TransactionType) int64 {
	t.Helper()
	var count int64
	require.NoError(t, env.store.DB().Model(&models.Transaction{}).
		Where("wallet_id = ? AND type = ?", env.walletID, txType).
		Count(&count).Error)
	return count
}

func (env *testEnv) countLifecycleEvents(t *testing.T, event models.LifecycleEventType) int64 {
	t.Helper()
	var count int64
	require.NoError(t, env.store.DB().Model(&models.OptionLifecycleEvent{}).
		Where("wallet_id = ? AND event = ?", env.walletID, event).
		Count(&count).Error)
	return count
}

func callSpec(underlying, strike string) interfaces.OptionSpec {
	return interfaces.OptionSpec{
		OptionType:       models.OptionTypeCall,
		StrikePrice:      dec(strike),
		ExpirationDate:   time.Date(2026, time.December, 18, 0, 0, 0, 0, time.UTC),
		UnderlyingTicker: underlying,
	}
}

func putSpec(underlying, strike string) interfaces.OptionSpec {
	return interfaces.OptionSpec{
		OptionType:       models.OptionTypePut,
		StrikePrice:      dec(strike),
		ExpirationDate:   time.Date(2026, time.December, 18, 0, 0, 0, 0, time.UTC),
		UnderlyingTicker: underlying,
	}
}

func specPtr(spec interfaces.OptionSpec) *interfaces.OptionSpec {
	return &spec
}

func requireDecimalEqual(t *testing.T, expected string, actual decimal.Decimal) {
	t.Helper()
	require.Truef(t, actual.Equal(dec(expected)),
		"expected %s, got %s", expected, actual.String())
}
