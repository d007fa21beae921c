package services

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/Gsaudx/Advision-sub001/database"
	"github.com/Gsaudx/Advision-sub001/interfaces"
	"github.com/Gsaudx/Advision-sub001/models"
)

// OptionTradeRequest opens or increases an option position
type OptionTradeRequest struct {
	Ticker         string                `json:"ticker"`
	Option         interfaces.OptionSpec `json:"option"`
	Contracts      decimal.Decimal       `json:"contracts"`
	Premium        decimal.Decimal       `json:"premium"`
	Covered        bool                  `json:"covered"`
	ExecutedAt     time.Time             `json:"executed_at"`
	IdempotencyKey string                `json:"idempotency_key"`
}

// OptionCloseRequest closes part or all of an option position. Zero
// contracts closes the full position.
type OptionCloseRequest struct {
	Ticker         string          `json:"ticker"`
	Contracts      decimal.Decimal `json:"contracts"`
	Premium        decimal.Decimal `json:"premium"`
	ExecutedAt     time.Time       `json:"executed_at"`
	IdempotencyKey string          `json:"idempotency_key"`
}

// OptionTradeResult reports the applied option operation
type OptionTradeResult struct {
	Transaction        *models.Transaction `json:"transaction"`
	Position           *models.Position    `json:"position,omitempty"`
	Wallet             *models.Wallet      `json:"wallet"`
	ReleasedCollateral decimal.Decimal     `json:"released_collateral"`
}

// DerivativesEngine executes option buy/sell/close with premium and
// collateral accounting at the standard contract size.
type DerivativesEngine struct {
	store  *database.Storage
	ledger *Ledger
	assets interfaces.AssetResolver
	logger *logrus.Logger
}

// NewDerivativesEngine creates a new derivatives engine
func NewDerivativesEngine(store *database.Storage, ledger *Ledger, assets interfaces.AssetResolver) *DerivativesEngine {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	return &DerivativesEngine{
		store:  store,
		ledger: ledger,
		assets: assets,
		logger: logger,
	}
}

func validateContracts(contracts decimal.Decimal) error {
	if !contracts.IsPositive() {
		return fmt.Errorf("contracts must be positive: %w", ErrValidation)
	}
	if !contracts.IsInteger() {
		return fmt.Errorf("contracts must be a whole number: %w", ErrValidation)
	}
	return nil
}

// BuyOption opens or increases a long option position, debiting
// premium x contract size x contracts from cash.
func (e *DerivativesEngine) BuyOption(ctx context.Context, walletID uint, req OptionTradeRequest) (*OptionTradeResult, error) {
	if req.Ticker == "" {
		return nil, fmt.Errorf("ticker is required: %w", ErrValidation)
	}
	if err := validateContracts(req.Contracts); err != nil {
		return nil, err
	}
	if !req.Premium.IsPositive() {
		return nil, fmt.Errorf("premium must be positive: %w", ErrValidation)
	}
	if err := e.ledger.EnsureNewOperation(walletID, req.IdempotencyKey); err != nil {
		return nil, err
	}

	asset, err := e.assets.ResolveOption(ctx, req.Ticker, req.Option)
	if err != nil {
		return nil, err
	}

	var result OptionTradeResult
	err = e.store.Transaction(func(tx *gorm.DB) error {
		if _, err := e.ledger.FetchWallet(tx, walletID); err != nil {
			return err
		}

		outcome, err := e.ledger.applyOptionBuy(tx, walletID, asset, req.Contracts, req.Premium, executedAtOrNow(req.ExecutedAt), req.IdempotencyKey)
		if err != nil {
			return err
		}

		wallet, err := e.ledger.FetchWallet(tx, walletID)
		if err != nil {
			return err
		}
		result = OptionTradeResult{
			Transaction:        outcome.Transaction,
			Position:           outcome.After,
			Wallet:             wallet,
			ReleasedCollateral: decimal.Zero,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.WithFields(logrus.Fields{
		"wallet_id": walletID,
		"ticker":    req.Ticker,
		"contracts": req.Contracts,
		"premium":   req.Premium,
	}).Info("Option buy executed")
	return &result, nil
}

// SellOption opens or increases a short option position, crediting the
// premium. Short puts block strike x contract size x contracts of
// collateral; covered calls require the underlying shares instead.
func (e *DerivativesEngine) SellOption(ctx context.Context, walletID uint, req OptionTradeRequest) (*OptionTradeResult, error) {
	if req.Ticker == "" {
		return nil, fmt.Errorf("ticker is required: %w", ErrValidation)
	}
	if err := validateContracts(req.Contracts); err != nil {
		return nil, err
	}
	if !req.Premium.IsPositive() {
		return nil, fmt.Errorf("premium must be positive: %w", ErrValidation)
	}
	if err := e.ledger.EnsureNewOperation(walletID, req.IdempotencyKey); err != nil {
		return nil, err
	}

	asset, err := e.assets.ResolveOption(ctx, req.Ticker, req.Option)
	if err != nil {
		return nil, err
	}

	var result OptionTradeResult
	err = e.store.Transaction(func(tx *gorm.DB) error {
		if _, err := e.ledger.FetchWallet(tx, walletID); err != nil {
			return err
		}

		outcome, err := e.ledger.applyOptionSell(tx, walletID, asset, req.Contracts, req.Premium, req.Covered, executedAtOrNow(req.ExecutedAt), req.IdempotencyKey)
		if err != nil {
			return err
		}

		wallet, err := e.ledger.FetchWallet(tx, walletID)
		if err != nil {
			return err
		}
		result = OptionTradeResult{
			Transaction:        outcome.Transaction,
			Position:           outcome.After,
			Wallet:             wallet,
			ReleasedCollateral: decimal.Zero,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.WithFields(logrus.Fields{
		"wallet_id": walletID,
		"ticker":    req.Ticker,
		"contracts": req.Contracts,
		"premium":   req.Premium,
		"covered":   req.Covered,
	}).Info("Option sell executed")
	return &result, nil
}

// CloseOption closes part or all of an option position at the given
// premium. Short positions are bought back (cash debit) and their
// blocked collateral is released proportionally to the contracts
// closed; long positions are sold (cash credit). Closing to exactly
// zero deletes the position row.
func (e *DerivativesEngine) CloseOption(ctx context.Context, walletID uint, req OptionCloseRequest) (*OptionTradeResult, error) {
	if req.Ticker == "" {
		return nil, fmt.Errorf("ticker is required: %w", ErrValidation)
	}
	if req.Contracts.IsNegative() || !req.Contracts.IsInteger() {
		return nil, fmt.Errorf("contracts must be a whole non-negative number: %w", ErrValidation)
	}
	if !req.Premium.IsPositive() {
		return nil, fmt.Errorf("premium must be positive: %w", ErrValidation)
	}
	if err := e.ledger.EnsureNewOperation(walletID, req.IdempotencyKey); err != nil {
		return nil, err
	}

	asset, err := e.assets.Get(ctx, req.Ticker)
	if err != nil {
		return nil, err
	}
	if asset.Type != models.AssetTypeOption {
		return nil, fmt.Errorf("asset %s is not an option: %w", req.Ticker, ErrValidation)
	}

	executedAt := executedAtOrNow(req.ExecutedAt)

	var result OptionTradeResult
	err = e.store.Transaction(func(tx *gorm.DB) error {
		if _, err := e.ledger.FetchWallet(tx, walletID); err != nil {
			return err
		}

		outcome, err := e.ledger.ReducePosition(tx, walletID, asset.ID, req.Contracts, 0)
		if err != nil {
			return err
		}

		closedValue := req.Premium.Mul(contractSize).Mul(outcome.ClosedQuantity)
		short := outcome.Before.Quantity.IsNegative()

		txn := &models.Transaction{
			WalletID:       walletID,
			IdempotencyKey: req.IdempotencyKey,
			AssetID:        &asset.ID,
			Type:           models.TransactionTypeOptionClose,
			Quantity:       outcome.ClosedQuantity,
			Price:          req.Premium,
			TotalValue:     closedValue,
			ExecutedAt:     executedAt,
		}
		if err := e.ledger.InsertTransaction(tx, txn); err != nil {
			return err
		}

		if short {
			ok, err := database.DebitCash(tx, walletID, closedValue)
			if err != nil {
				return fmt.Errorf("failed to debit buy-to-close cost: %w", err)
			}
			if !ok {
				return fmt.Errorf("wallet %d cannot cover buy-to-close of %s: %w", walletID, closedValue, ErrInsufficientFunds)
			}
			if outcome.ReleasedCollateral.IsPositive() {
				if err := database.ReleaseCollateral(tx, walletID, outcome.ReleasedCollateral); err != nil {
					return fmt.Errorf("failed to release collateral: %w", err)
				}
			}
		} else {
			if err := database.CreditCash(tx, walletID, closedValue); err != nil {
				return fmt.Errorf("failed to credit sell-to-close proceeds: %w", err)
			}
		}

		eventType := positionEventType(outcome.Before, outcome.Closed)
		if err := e.ledger.recordPositionChange(tx, eventType, outcome.Before, outcome.After, string(models.TransactionTypeOptionClose)); err != nil {
			return err
		}

		if outcome.Closed {
			if err := e.ledger.appendLifecycleEvent(tx, &models.OptionLifecycleEvent{
				PositionID:             outcome.Before.ID,
				WalletID:               walletID,
				AssetID:                asset.ID,
				Event:                  models.LifecycleEventClosed,
				StrikePrice:            asset.OptionDetail.StrikePrice,
				UnderlyingQuantity:     outcome.ClosedQuantity.Mul(contractSize),
				SettlementAmount:       closedValue,
				ResultingTransactionID: &txn.ID,
				OccurredAt:             executedAt,
			}); err != nil {
				return err
			}
		}

		wallet, err := e.ledger.FetchWallet(tx, walletID)
		if err != nil {
			return err
		}
		result = OptionTradeResult{
			Transaction:        txn,
			Position:           outcome.After,
			Wallet:             wallet,
			ReleasedCollateral: outcome.ReleasedCollateral,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.WithFields(logrus.Fields{
		"wallet_id": walletID,
		"ticker":    req.Ticker,
		"contracts": req.Contracts,
		"premium":   req.Premium,
	}).Info("Option close executed")
	return &result, nil
}
