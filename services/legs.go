package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/Gsaudx/Advision-sub001/database"
	"github.com/Gsaudx/Advision-sub001/models"
)

// LegOutcome is the result of applying one buy/sell action inside a
// transaction. CashDelta is signed: credits positive, debits negative.
type LegOutcome struct {
	Transaction *models.Transaction
	Before      *models.Position
	After       *models.Position
	Closed      bool
	CashDelta   decimal.Decimal
}

// The apply* functions below are the single-leg mutation paths. The
// trading and derivatives engines call them one per transaction; the
// strategy engine chains up to four of them inside one shared
// transaction, so every mutation, audit entry and event they write
// commits or rolls back as a unit.

// applyStockBuy debits cash and merges the quantity into the wallet's
// long position at weighted-average cost.
func (l *Ledger) applyStockBuy(tx *gorm.DB, walletID uint, asset *models.Asset, qty, price decimal.Decimal, executedAt time.Time, idempotencyKey string) (*LegOutcome, error) {
	cost := qty.Mul(price)

	txn := &models.Transaction{
		WalletID:       walletID,
		IdempotencyKey: idempotencyKey,
		AssetID:        &asset.ID,
		Type:           models.TransactionTypeBuy,
		Quantity:       qty,
		Price:          price,
		TotalValue:     cost,
		ExecutedAt:     executedAt,
	}
	if err := l.InsertTransaction(tx, txn); err != nil {
		return nil, err
	}

	ok, err := database.DebitCash(tx, walletID, cost)
	if err != nil {
		return nil, fmt.Errorf("failed to debit cash: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("wallet %d cannot cover %s: %w", walletID, cost, ErrInsufficientFunds)
	}

	before, after, err := l.OpenOrIncreasePosition(tx, walletID, asset.ID, qty, price, decimal.Zero)
	if err != nil {
		return nil, err
	}

	eventType := "PositionIncreased"
	if before == nil {
		eventType = "PositionOpened"
	}
	if err := l.recordPositionChange(tx, eventType, before, after, string(models.TransactionTypeBuy)); err != nil {
		return nil, err
	}

	return &LegOutcome{
		Transaction: txn,
		Before:      before,
		After:       after,
		CashDelta:   cost.Neg(),
	}, nil
}

// applyStockSell reduces an existing long position and credits the
// proceeds. Going short on simple assets is not supported, so a missing
// or short position is a hard error.
func (l *Ledger) applyStockSell(tx *gorm.DB, walletID uint, asset *models.Asset, qty, price decimal.Decimal, executedAt time.Time, idempotencyKey string) (*LegOutcome, error) {
	proceeds := qty.Mul(price)

	txn := &models.Transaction{
		WalletID:       walletID,
		IdempotencyKey: idempotencyKey,
		AssetID:        &asset.ID,
		Type:           models.TransactionTypeSell,
		Quantity:       qty,
		Price:          price,
		TotalValue:     proceeds,
		ExecutedAt:     executedAt,
	}
	if err := l.InsertTransaction(tx, txn); err != nil {
		return nil, err
	}

	outcome, err := l.ReducePosition(tx, walletID, asset.ID, qty, 1)
	if err != nil {
		return nil, err
	}

	if err := database.CreditCash(tx, walletID, proceeds); err != nil {
		return nil, fmt.Errorf("failed to credit proceeds: %w", err)
	}

	eventType := positionEventType(outcome.Before, outcome.Closed)
	if err := l.recordPositionChange(tx, eventType, outcome.Before, outcome.After, string(models.TransactionTypeSell)); err != nil {
		return nil, err
	}

	return &LegOutcome{
		Transaction: txn,
		Before:      outcome.Before,
		After:       outcome.After,
		Closed:      outcome.Closed,
		CashDelta:   proceeds,
	}, nil
}

// applyOptionBuy opens or increases a long option position. The debit
// is premium x contract size x contracts; the positive-quantity merge
// path means a buy can never flip an existing short position.
func (l *Ledger) applyOptionBuy(tx *gorm.DB, walletID uint, asset *models.Asset, contracts, premium decimal.Decimal, executedAt time.Time, idempotencyKey string) (*LegOutcome, error) {
	cost := premium.Mul(contractSize).Mul(contracts)

	txn := &models.Transaction{
		WalletID:       walletID,
		IdempotencyKey: idempotencyKey,
		AssetID:        &asset.ID,
		Type:           models.TransactionTypeOptionBuy,
		Quantity:       contracts,
		Price:          premium,
		TotalValue:     cost,
		ExecutedAt:     executedAt,
	}
	if err := l.InsertTransaction(tx, txn); err != nil {
		return nil, err
	}

	ok, err := database.DebitCash(tx, walletID, cost)
	if err != nil {
		return nil, fmt.Errorf("failed to debit premium: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("wallet %d cannot cover premium %s: %w", walletID, cost, ErrInsufficientFunds)
	}

	before, after, err := l.OpenOrIncreasePosition(tx, walletID, asset.ID, contracts, premium, decimal.Zero)
	if err != nil {
		return nil, err
	}

	eventType := "PositionIncreased"
	if before == nil {
		eventType = "PositionOpened"
		if err := l.appendLifecycleEvent(tx, &models.OptionLifecycleEvent{
			PositionID:             after.ID,
			WalletID:               walletID,
			AssetID:                asset.ID,
			Event:                  models.LifecycleEventOpened,
			StrikePrice:            asset.OptionDetail.StrikePrice,
			UnderlyingQuantity:     contracts.Mul(contractSize),
			SettlementAmount:       decimal.Zero,
			ResultingTransactionID: &txn.ID,
			OccurredAt:             executedAt,
		}); err != nil {
			return nil, err
		}
	}
	if err := l.recordPositionChange(tx, eventType, before, after, string(models.TransactionTypeOptionBuy)); err != nil {
		return nil, err
	}

	return &LegOutcome{
		Transaction: txn,
		Before:      before,
		After:       after,
		CashDelta:   cost.Neg(),
	}, nil
}

// applyOptionSell opens or increases a short option position and
// credits the premium. A short PUT blocks strike x contract size x
// contracts of collateral, rejected up front when the available cash
// cannot cover it. A covered CALL instead requires an underlying long
// position of at least contracts x contract size shares; no collateral
// is blocked for it. Uncovered calls carry no margin requirement.
func (l *Ledger) applyOptionSell(tx *gorm.DB, walletID uint, asset *models.Asset, contracts, premium decimal.Decimal, covered bool, executedAt time.Time, idempotencyKey string) (*LegOutcome, error) {
	detail := asset.OptionDetail
	premiumReceived := premium.Mul(contractSize).Mul(contracts)

	txn := &models.Transaction{
		WalletID:       walletID,
		IdempotencyKey: idempotencyKey,
		AssetID:        &asset.ID,
		Type:           models.TransactionTypeOptionSell,
		Quantity:       contracts,
		Price:          premium,
		TotalValue:     premiumReceived,
		ExecutedAt:     executedAt,
	}
	if err := l.InsertTransaction(tx, txn); err != nil {
		return nil, err
	}

	collateral := decimal.Zero
	switch detail.OptionType {
	case models.OptionTypePut:
		collateral = detail.StrikePrice.Mul(contractSize).Mul(contracts)
		ok, err := database.BlockCollateral(tx, walletID, collateral)
		if err != nil {
			return nil, fmt.Errorf("failed to block collateral: %w", err)
		}
		if !ok {
			return nil, fmt.Errorf("wallet %d cannot reserve %s for short put: %w", walletID, collateral, ErrInsufficientCollateral)
		}
	case models.OptionTypeCall:
		if covered {
			required := contracts.Mul(contractSize)
			var underlying models.Position
			err := tx.Where("wallet_id = ? AND asset_id = ?", walletID, detail.UnderlyingAssetID).First(&underlying).Error
			if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, fmt.Errorf("failed to load underlying position: %w", err)
			}
			if err != nil || underlying.Quantity.LessThan(required) {
				return nil, fmt.Errorf("covered call requires %s underlying shares: %w", required, ErrInsufficientCollateral)
			}
		}
	}

	if err := database.CreditCash(tx, walletID, premiumReceived); err != nil {
		return nil, fmt.Errorf("failed to credit premium: %w", err)
	}

	before, after, err := l.OpenOrIncreasePosition(tx, walletID, asset.ID, contracts.Neg(), premium, collateral)
	if err != nil {
		return nil, err
	}

	eventType := "PositionIncreased"
	if before == nil {
		eventType = "PositionOpened"
		if err := l.appendLifecycleEvent(tx, &models.OptionLifecycleEvent{
			PositionID:             after.ID,
			WalletID:               walletID,
			AssetID:                asset.ID,
			Event:                  models.LifecycleEventOpened,
			StrikePrice:            detail.StrikePrice,
			UnderlyingQuantity:     contracts.Mul(contractSize),
			SettlementAmount:       decimal.Zero,
			ResultingTransactionID: &txn.ID,
			OccurredAt:             executedAt,
		}); err != nil {
			return nil, err
		}
	}
	if err := l.recordPositionChange(tx, eventType, before, after, string(models.TransactionTypeOptionSell)); err != nil {
		return nil, err
	}

	return &LegOutcome{
		Transaction: txn,
		Before:      before,
		After:       after,
		CashDelta:   premiumReceived,
	}, nil
}
