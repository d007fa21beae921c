package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/Gsaudx/Advision-sub001/database"
	"github.com/Gsaudx/Advision-sub001/interfaces"
	"github.com/Gsaudx/Advision-sub001/models"
)

// LifecycleRequest drives an exercise or assignment. Zero contracts
// settles the full position.
type LifecycleRequest struct {
	Contracts      decimal.Decimal `json:"contracts"`
	ExecutedAt     time.Time       `json:"executed_at"`
	IdempotencyKey string          `json:"idempotency_key"`
}

// ExpirationRequest drives expiration processing. A zero underlying
// price falls back to the market data provider.
type ExpirationRequest struct {
	UnderlyingPrice decimal.Decimal `json:"underlying_price"`
	ExecutedAt      time.Time       `json:"executed_at"`
	IdempotencyKey  string          `json:"idempotency_key"`
}

// LifecycleResult reports an applied lifecycle transition
type LifecycleResult struct {
	Event              *models.OptionLifecycleEvent `json:"event"`
	Transaction        *models.Transaction          `json:"transaction"`
	OptionPosition     *models.Position             `json:"option_position,omitempty"`
	UnderlyingPosition *models.Position             `json:"underlying_position,omitempty"`
	Wallet             *models.Wallet               `json:"wallet"`
	ReleasedCollateral decimal.Decimal              `json:"released_collateral"`
}

// OptionLifecycleEngine drives exercise, assignment and expiration
// transitions on option positions. CLOSED is reachable any time through
// the derivatives engine; the four terminal events here are mutually
// exclusive per position instance because each one deletes the rows it
// fully settles.
type OptionLifecycleEngine struct {
	store  *database.Storage
	ledger *Ledger
	market interfaces.MarketDataService
	logger *logrus.Logger
}

// NewOptionLifecycleEngine creates a new lifecycle engine
func NewOptionLifecycleEngine(store *database.Storage, ledger *Ledger, market interfaces.MarketDataService) *OptionLifecycleEngine {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	return &OptionLifecycleEngine{
		store:  store,
		ledger: ledger,
		market: market,
		logger: logger,
	}
}

// optionContext is the resolved state a lifecycle operation acts on
type optionContext struct {
	position   *models.Position
	asset      *models.Asset
	detail     *models.OptionDetail
	underlying *models.Asset
}

// resolveOption loads the position and verifies it references an OPTION
// asset. Lifecycle operations on non-option positions are a hard
// validation error.
func (e *OptionLifecycleEngine) resolveOption(ctx context.Context, walletID, positionID uint) (*optionContext, error) {
	db := e.store.DB().WithContext(ctx)

	var position models.Position
	err := db.First(&position, positionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("position %d: %w", positionID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load position %d: %w", positionID, err)
	}
	if position.WalletID != walletID {
		return nil, fmt.Errorf("position %d does not belong to wallet %d: %w", positionID, walletID, ErrNotFound)
	}

	var asset models.Asset
	if err := db.Preload("OptionDetail").First(&asset, position.AssetID).Error; err != nil {
		return nil, fmt.Errorf("failed to load asset %d: %w", position.AssetID, err)
	}
	if asset.Type != models.AssetTypeOption || asset.OptionDetail == nil {
		return nil, fmt.Errorf("position %d is not an option position: %w", positionID, ErrValidation)
	}

	var underlying models.Asset
	if err := db.First(&underlying, asset.OptionDetail.UnderlyingAssetID).Error; err != nil {
		return nil, fmt.Errorf("failed to load underlying asset %d: %w", asset.OptionDetail.UnderlyingAssetID, err)
	}

	return &optionContext{
		position:   &position,
		asset:      &asset,
		detail:     asset.OptionDetail,
		underlying: &underlying,
	}, nil
}

// Exercise converts a long option into its underlying: the holder pays
// strike x contract size x contracts and receives the underlying shares
// at the strike price. European options can only be exercised at
// expiry.
func (e *OptionLifecycleEngine) Exercise(ctx context.Context, walletID, positionID uint, req LifecycleRequest) (*LifecycleResult, error) {
	if req.Contracts.IsNegative() || !req.Contracts.IsInteger() {
		return nil, fmt.Errorf("contracts must be a whole non-negative number: %w", ErrValidation)
	}
	if err := e.ledger.EnsureNewOperation(walletID, req.IdempotencyKey); err != nil {
		return nil, err
	}

	oc, err := e.resolveOption(ctx, walletID, positionID)
	if err != nil {
		return nil, err
	}
	if !oc.position.Quantity.IsPositive() {
		return nil, fmt.Errorf("only long option positions can be exercised: %w", ErrValidation)
	}

	executedAt := executedAtOrNow(req.ExecutedAt)
	if oc.detail.ExerciseType == models.ExerciseStyleEuropean && executedAt.Before(oc.detail.ExpirationDate) {
		return nil, fmt.Errorf("european option cannot be exercised before expiration: %w", ErrValidation)
	}

	var result LifecycleResult
	err = e.store.Transaction(func(tx *gorm.DB) error {
		r, err := e.settleExercise(tx, walletID, oc, req.Contracts, models.LifecycleEventExercised, executedAt, req.IdempotencyKey)
		if err != nil {
			return err
		}
		result = *r
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.WithFields(logrus.Fields{
		"wallet_id":   walletID,
		"position_id": positionID,
		"ticker":      oc.asset.Ticker,
	}).Info("Option exercised")
	return &result, nil
}

// Assign settles a short option whose writer was assigned. A short PUT
// writer buys the underlying at the strike; a short CALL writer
// delivers underlying shares against the strike proceeds. The blocked
// collateral attached to the settled contracts is released.
func (e *OptionLifecycleEngine) Assign(ctx context.Context, walletID, positionID uint, req LifecycleRequest) (*LifecycleResult, error) {
	if req.Contracts.IsNegative() || !req.Contracts.IsInteger() {
		return nil, fmt.Errorf("contracts must be a whole non-negative number: %w", ErrValidation)
	}
	if err := e.ledger.EnsureNewOperation(walletID, req.IdempotencyKey); err != nil {
		return nil, err
	}

	oc, err := e.resolveOption(ctx, walletID, positionID)
	if err != nil {
		return nil, err
	}
	if !oc.position.Quantity.IsNegative() {
		return nil, fmt.Errorf("only short option positions can be assigned: %w", ErrValidation)
	}

	executedAt := executedAtOrNow(req.ExecutedAt)

	var result LifecycleResult
	err = e.store.Transaction(func(tx *gorm.DB) error {
		r, err := e.settleAssignment(tx, walletID, oc, req.Contracts, models.LifecycleEventAssigned, executedAt, req.IdempotencyKey)
		if err != nil {
			return err
		}
		result = *r
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.WithFields(logrus.Fields{
		"wallet_id":   walletID,
		"position_id": positionID,
		"ticker":      oc.asset.Ticker,
	}).Info("Option assigned")
	return &result, nil
}

// ProcessExpiration settles a position at expiry. In-the-money
// positions behave as an implicit exercise (long) or assignment
// (short); out-of-the-money positions are deleted with any remaining
// collateral released and no cash movement.
func (e *OptionLifecycleEngine) ProcessExpiration(ctx context.Context, walletID, positionID uint, req ExpirationRequest) (*LifecycleResult, error) {
	if err := e.ledger.EnsureNewOperation(walletID, req.IdempotencyKey); err != nil {
		return nil, err
	}

	oc, err := e.resolveOption(ctx, walletID, positionID)
	if err != nil {
		return nil, err
	}

	price := req.UnderlyingPrice
	if price.IsZero() {
		price, err = e.market.PriceOf(ctx, oc.underlying.Ticker)
		if err != nil {
			return nil, err
		}
	}
	if price.IsNegative() {
		return nil, fmt.Errorf("underlying price must not be negative: %w", ErrValidation)
	}

	executedAt := executedAtOrNow(req.ExecutedAt)
	itm := isInTheMoney(oc.detail.OptionType, oc.detail.StrikePrice, price)

	var result LifecycleResult
	err = e.store.Transaction(func(tx *gorm.DB) error {
		var r *LifecycleResult
		var err error
		switch {
		case !itm:
			r, err = e.settleWorthless(tx, walletID, oc, executedAt, req.IdempotencyKey)
		case oc.position.Quantity.IsPositive():
			r, err = e.settleExercise(tx, walletID, oc, decimal.Zero, models.LifecycleEventExpiredITM, executedAt, req.IdempotencyKey)
		default:
			r, err = e.settleAssignment(tx, walletID, oc, decimal.Zero, models.LifecycleEventExpiredITM, executedAt, req.IdempotencyKey)
		}
		if err != nil {
			return err
		}
		result = *r
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.WithFields(logrus.Fields{
		"wallet_id":   walletID,
		"position_id": positionID,
		"ticker":      oc.asset.Ticker,
		"itm":         itm,
		"price":       price,
	}).Info("Option expiration processed")
	return &result, nil
}

// isInTheMoney reports whether strike is favorable to the holder at the
// given underlying price. At-the-money counts as out-of-the-money.
func isInTheMoney(optionType models.OptionType, strike, price decimal.Decimal) bool {
	switch optionType {
	case models.OptionTypeCall:
		return price.GreaterThan(strike)
	case models.OptionTypePut:
		return price.LessThan(strike)
	}
	return false
}

// settleExercise applies the exercise settlement inside tx: cash debit
// at the strike, underlying shares in, option contracts out.
func (e *OptionLifecycleEngine) settleExercise(tx *gorm.DB, walletID uint, oc *optionContext, contracts decimal.Decimal, event models.LifecycleEventType, executedAt time.Time, idempotencyKey string) (*LifecycleResult, error) {
	if _, err := e.ledger.FetchWallet(tx, walletID); err != nil {
		return nil, err
	}

	if contracts.IsZero() {
		contracts = oc.position.Quantity.Abs()
	}
	shares := contracts.Mul(contractSize)
	settlement := oc.detail.StrikePrice.Mul(shares)

	txn := &models.Transaction{
		WalletID:       walletID,
		IdempotencyKey: idempotencyKey,
		AssetID:        &oc.asset.ID,
		Type:           models.TransactionTypeOptionExercise,
		Quantity:       contracts,
		Price:          oc.detail.StrikePrice,
		TotalValue:     settlement,
		ExecutedAt:     executedAt,
	}
	if event == models.LifecycleEventExpiredITM {
		txn.Type = models.TransactionTypeOptionExpiration
	}
	if err := e.ledger.InsertTransaction(tx, txn); err != nil {
		return nil, err
	}

	ok, err := database.DebitCash(tx, walletID, settlement)
	if err != nil {
		return nil, fmt.Errorf("failed to debit exercise settlement: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("wallet %d cannot cover exercise settlement of %s: %w", walletID, settlement, ErrInsufficientFunds)
	}

	ubefore, uafter, err := e.ledger.OpenOrIncreasePosition(tx, walletID, oc.underlying.ID, shares, oc.detail.StrikePrice, decimal.Zero)
	if err != nil {
		return nil, err
	}
	underlyingEvent := "PositionIncreased"
	if ubefore == nil {
		underlyingEvent = "PositionOpened"
	}
	if err := e.ledger.recordPositionChange(tx, underlyingEvent, ubefore, uafter, string(txn.Type)); err != nil {
		return nil, err
	}

	outcome, err := e.ledger.ReducePosition(tx, walletID, oc.asset.ID, contracts, 1)
	if err != nil {
		return nil, err
	}
	if err := e.ledger.recordPositionChange(tx, positionEventType(outcome.Before, outcome.Closed), outcome.Before, outcome.After, string(txn.Type)); err != nil {
		return nil, err
	}

	lifecycle := &models.OptionLifecycleEvent{
		PositionID:             oc.position.ID,
		WalletID:               walletID,
		AssetID:                oc.asset.ID,
		Event:                  event,
		UnderlyingQuantity:     shares,
		StrikePrice:            oc.detail.StrikePrice,
		SettlementAmount:       settlement,
		ResultingTransactionID: &txn.ID,
		OccurredAt:             executedAt,
	}
	if err := e.ledger.appendLifecycleEvent(tx, lifecycle); err != nil {
		return nil, err
	}

	wallet, err := e.ledger.FetchWallet(tx, walletID)
	if err != nil {
		return nil, err
	}

	return &LifecycleResult{
		Event:              lifecycle,
		Transaction:        txn,
		OptionPosition:     outcome.After,
		UnderlyingPosition: uafter,
		Wallet:             wallet,
		ReleasedCollateral: decimal.Zero,
	}, nil
}

// settleAssignment applies the assignment settlement inside tx and
// releases the proportional blocked collateral.
func (e *OptionLifecycleEngine) settleAssignment(tx *gorm.DB, walletID uint, oc *optionContext, contracts decimal.Decimal, event models.LifecycleEventType, executedAt time.Time, idempotencyKey string) (*LifecycleResult, error) {
	if _, err := e.ledger.FetchWallet(tx, walletID); err != nil {
		return nil, err
	}

	if contracts.IsZero() {
		contracts = oc.position.Quantity.Abs()
	}
	shares := contracts.Mul(contractSize)
	settlement := oc.detail.StrikePrice.Mul(shares)

	txn := &models.Transaction{
		WalletID:       walletID,
		IdempotencyKey: idempotencyKey,
		AssetID:        &oc.asset.ID,
		Type:           models.TransactionTypeOptionAssignment,
		Quantity:       contracts,
		Price:          oc.detail.StrikePrice,
		TotalValue:     settlement,
		ExecutedAt:     executedAt,
	}
	if event == models.LifecycleEventExpiredITM {
		txn.Type = models.TransactionTypeOptionExpiration
	}
	if err := e.ledger.InsertTransaction(tx, txn); err != nil {
		return nil, err
	}

	var uafter *models.Position
	switch oc.detail.OptionType {
	case models.OptionTypePut:
		// Assigned put writer buys the underlying at the strike.
		ok, err := database.DebitCash(tx, walletID, settlement)
		if err != nil {
			return nil, fmt.Errorf("failed to debit assignment settlement: %w", err)
		}
		if !ok {
			return nil, fmt.Errorf("wallet %d cannot cover assignment settlement of %s: %w", walletID, settlement, ErrInsufficientFunds)
		}
		ubefore, after, err := e.ledger.OpenOrIncreasePosition(tx, walletID, oc.underlying.ID, shares, oc.detail.StrikePrice, decimal.Zero)
		if err != nil {
			return nil, err
		}
		uafter = after
		underlyingEvent := "PositionIncreased"
		if ubefore == nil {
			underlyingEvent = "PositionOpened"
		}
		if err := e.ledger.recordPositionChange(tx, underlyingEvent, ubefore, after, string(txn.Type)); err != nil {
			return nil, err
		}
	case models.OptionTypeCall:
		// Assigned call writer delivers shares against strike proceeds.
		u, err := e.ledger.ReducePosition(tx, walletID, oc.underlying.ID, shares, 1)
		if err != nil {
			return nil, err
		}
		uafter = u.After
		if err := e.ledger.recordPositionChange(tx, positionEventType(u.Before, u.Closed), u.Before, u.After, string(txn.Type)); err != nil {
			return nil, err
		}
		if err := database.CreditCash(tx, walletID, settlement); err != nil {
			return nil, fmt.Errorf("failed to credit assignment proceeds: %w", err)
		}
	}

	outcome, err := e.ledger.ReducePosition(tx, walletID, oc.asset.ID, contracts, -1)
	if err != nil {
		return nil, err
	}
	if outcome.ReleasedCollateral.IsPositive() {
		if err := database.ReleaseCollateral(tx, walletID, outcome.ReleasedCollateral); err != nil {
			return nil, fmt.Errorf("failed to release collateral: %w", err)
		}
	}
	if err := e.ledger.recordPositionChange(tx, positionEventType(outcome.Before, outcome.Closed), outcome.Before, outcome.After, string(txn.Type)); err != nil {
		return nil, err
	}

	lifecycle := &models.OptionLifecycleEvent{
		PositionID:             oc.position.ID,
		WalletID:               walletID,
		AssetID:                oc.asset.ID,
		Event:                  event,
		UnderlyingQuantity:     shares,
		StrikePrice:            oc.detail.StrikePrice,
		SettlementAmount:       settlement,
		ResultingTransactionID: &txn.ID,
		OccurredAt:             executedAt,
	}
	if err := e.ledger.appendLifecycleEvent(tx, lifecycle); err != nil {
		return nil, err
	}

	wallet, err := e.ledger.FetchWallet(tx, walletID)
	if err != nil {
		return nil, err
	}

	return &LifecycleResult{
		Event:              lifecycle,
		Transaction:        txn,
		OptionPosition:     outcome.After,
		UnderlyingPosition: uafter,
		Wallet:             wallet,
		ReleasedCollateral: outcome.ReleasedCollateral,
	}, nil
}

// settleWorthless removes an out-of-the-money position at expiry: no
// cash moves, the row is deleted and any remaining collateral released.
func (e *OptionLifecycleEngine) settleWorthless(tx *gorm.DB, walletID uint, oc *optionContext, executedAt time.Time, idempotencyKey string) (*LifecycleResult, error) {
	if _, err := e.ledger.FetchWallet(tx, walletID); err != nil {
		return nil, err
	}

	txn := &models.Transaction{
		WalletID:       walletID,
		IdempotencyKey: idempotencyKey,
		AssetID:        &oc.asset.ID,
		Type:           models.TransactionTypeOptionExpiration,
		Quantity:       oc.position.Quantity.Abs(),
		Price:          decimal.Zero,
		TotalValue:     decimal.Zero,
		ExecutedAt:     executedAt,
	}
	if err := e.ledger.InsertTransaction(tx, txn); err != nil {
		return nil, err
	}

	outcome, err := e.ledger.ReducePosition(tx, walletID, oc.asset.ID, decimal.Zero, 0)
	if err != nil {
		return nil, err
	}
	if outcome.ReleasedCollateral.IsPositive() {
		if err := database.ReleaseCollateral(tx, walletID, outcome.ReleasedCollateral); err != nil {
			return nil, fmt.Errorf("failed to release collateral: %w", err)
		}
	}
	if err := e.ledger.recordPositionChange(tx, "PositionClosed", outcome.Before, outcome.After, string(txn.Type)); err != nil {
		return nil, err
	}

	lifecycle := &models.OptionLifecycleEvent{
		PositionID:             oc.position.ID,
		WalletID:               walletID,
		AssetID:                oc.asset.ID,
		Event:                  models.LifecycleEventExpiredOTM,
		UnderlyingQuantity:     outcome.ClosedQuantity.Mul(contractSize),
		StrikePrice:            oc.detail.StrikePrice,
		SettlementAmount:       decimal.Zero,
		ResultingTransactionID: &txn.ID,
		OccurredAt:             executedAt,
	}
	if err := e.ledger.appendLifecycleEvent(tx, lifecycle); err != nil {
		return nil, err
	}

	wallet, err := e.ledger.FetchWallet(tx, walletID)
	if err != nil {
		return nil, err
	}

	return &LifecycleResult{
		Event:              lifecycle,
		Transaction:        txn,
		Wallet:             wallet,
		ReleasedCollateral: outcome.ReleasedCollateral,
	}, nil
}
