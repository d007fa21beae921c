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

// Structured strategies carry between one and four legs
const (
	minStrategyLegs = 1
	maxStrategyLegs = 4
)

// StrategyLegInput is one leg of a structured operation
type StrategyLegInput struct {
	LegType  models.LegType         `json:"leg_type"`
	Ticker   string                 `json:"ticker"`
	Quantity decimal.Decimal        `json:"quantity"`
	Price    decimal.Decimal        `json:"price"`
	Option   *interfaces.OptionSpec `json:"option,omitempty"`
	Covered  bool                   `json:"covered"`
}

// StrategyRequest executes a structured operation as a single unit
type StrategyRequest struct {
	StrategyType   string             `json:"strategy_type"`
	Legs           []StrategyLegInput `json:"legs"`
	Notes          string             `json:"notes"`
	ExecutedAt     time.Time          `json:"executed_at"`
	IdempotencyKey string             `json:"idempotency_key"`
}

// StrategyResult reports the committed structured operation
type StrategyResult struct {
	Operation *models.StructuredOperation `json:"operation"`
	Wallet    *models.Wallet              `json:"wallet"`
}

// StrategyEngine validates and atomically executes 1-4 leg structured
// operations, composing the same single-leg mutation primitives the
// trading and derivatives engines use inside one shared transaction.
type StrategyEngine struct {
	store  *database.Storage
	ledger *Ledger
	assets interfaces.AssetResolver
	market interfaces.MarketDataService
	logger *logrus.Logger
}

// NewStrategyEngine creates a new strategy engine
func NewStrategyEngine(store *database.Storage, ledger *Ledger, assets interfaces.AssetResolver, market interfaces.MarketDataService) *StrategyEngine {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	return &StrategyEngine{
		store:  store,
		ledger: ledger,
		assets: assets,
		market: market,
		logger: logger,
	}
}

func validateLeg(index int, leg StrategyLegInput) error {
	if leg.Ticker == "" {
		return fmt.Errorf("leg %d: ticker is required: %w", index+1, ErrValidation)
	}
	if !leg.Quantity.IsPositive() {
		return fmt.Errorf("leg %d: quantity must be positive: %w", index+1, ErrValidation)
	}
	if !leg.Price.IsPositive() {
		return fmt.Errorf("leg %d: price must be positive: %w", index+1, ErrValidation)
	}

	switch leg.LegType {
	case models.LegTypeBuyStock, models.LegTypeSellStock:
		return nil
	case models.LegTypeBuyCall, models.LegTypeSellCall:
		if leg.Option != nil && leg.Option.OptionType != models.OptionTypeCall {
			return fmt.Errorf("leg %d: option spec must be a CALL: %w", index+1, ErrValidation)
		}
	case models.LegTypeBuyPut, models.LegTypeSellPut:
		if leg.Option != nil && leg.Option.OptionType != models.OptionTypePut {
			return fmt.Errorf("leg %d: option spec must be a PUT: %w", index+1, ErrValidation)
		}
	default:
		return fmt.Errorf("leg %d: unsupported leg type %q: %w", index+1, leg.LegType, ErrValidation)
	}

	if !leg.Quantity.IsInteger() {
		return fmt.Errorf("leg %d: contracts must be a whole number: %w", index+1, ErrValidation)
	}
	return nil
}

func isOptionLeg(legType models.LegType) bool {
	switch legType {
	case models.LegTypeBuyCall, models.LegTypeSellCall, models.LegTypeBuyPut, models.LegTypeSellPut:
		return true
	}
	return false
}

// resolveLegAssets resolves every leg's asset before the transaction
// opens. Buys may create assets lazily; sells require them to exist.
func (e *StrategyEngine) resolveLegAssets(ctx context.Context, legs []StrategyLegInput) ([]*models.Asset, error) {
	assets := make([]*models.Asset, len(legs))
	for i, leg := range legs {
		var asset *models.Asset
		var err error

		switch leg.LegType {
		case models.LegTypeBuyStock:
			asset, err = e.assets.Resolve(ctx, leg.Ticker)
			if err == nil && asset.Type != models.AssetTypeStock {
				err = fmt.Errorf("leg %d: asset %s is not a stock: %w", i+1, leg.Ticker, ErrValidation)
			}
		case models.LegTypeSellStock:
			asset, err = e.assets.Get(ctx, leg.Ticker)
			if err == nil && asset.Type != models.AssetTypeStock {
				err = fmt.Errorf("leg %d: asset %s is not a stock: %w", i+1, leg.Ticker, ErrValidation)
			}
		default:
			if leg.Option != nil {
				asset, err = e.assets.ResolveOption(ctx, leg.Ticker, *leg.Option)
			} else {
				asset, err = e.assets.Get(ctx, leg.Ticker)
				if err == nil && asset.Type != models.AssetTypeOption {
					err = fmt.Errorf("leg %d: asset %s is not an option: %w", i+1, leg.Ticker, ErrValidation)
				}
			}
		}
		if err != nil {
			return nil, err
		}
		assets[i] = asset
	}
	return assets, nil
}

// ExecuteStrategy applies every leg inside one transaction and creates
// the StructuredOperation header plus one OperationLeg per leg. Any leg
// failure rolls back the entire operation: partially executed
// strategies are never observable.
func (e *StrategyEngine) ExecuteStrategy(ctx context.Context, walletID uint, req StrategyRequest) (*StrategyResult, error) {
	if req.StrategyType == "" {
		return nil, fmt.Errorf("strategy type is required: %w", ErrValidation)
	}
	if len(req.Legs) < minStrategyLegs || len(req.Legs) > maxStrategyLegs {
		return nil, fmt.Errorf("strategy must have between %d and %d legs, got %d: %w",
			minStrategyLegs, maxStrategyLegs, len(req.Legs), ErrValidation)
	}
	for i, leg := range req.Legs {
		if err := validateLeg(i, leg); err != nil {
			return nil, err
		}
	}
	if err := e.ensureNewStrategy(walletID, req.IdempotencyKey); err != nil {
		return nil, err
	}

	assets, err := e.resolveLegAssets(ctx, req.Legs)
	if err != nil {
		return nil, err
	}

	executedAt := executedAtOrNow(req.ExecutedAt)

	var result StrategyResult
	err = e.store.Transaction(func(tx *gorm.DB) error {
		if _, err := e.ledger.FetchWallet(tx, walletID); err != nil {
			return err
		}

		op := &models.StructuredOperation{
			WalletID:       walletID,
			IdempotencyKey: req.IdempotencyKey,
			StrategyType:   req.StrategyType,
			Status:         models.OperationStatusExecuted,
			TotalPremium:   decimal.Zero,
			NetDebitCredit: decimal.Zero,
			Notes:          req.Notes,
			ExecutedAt:     executedAt,
		}
		if err := tx.Create(op).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return fmt.Errorf("key %q already used for wallet %d: %w", req.IdempotencyKey, walletID, ErrDuplicateOperation)
			}
			return fmt.Errorf("failed to create structured operation: %w", err)
		}

		totalPremium := decimal.Zero
		netDebitCredit := decimal.Zero

		for i, leg := range req.Legs {
			legKey := fmt.Sprintf("%s:leg-%d", req.IdempotencyKey, i+1)
			outcome, err := e.applyLeg(tx, walletID, leg, assets[i], executedAt, legKey)
			if err != nil {
				return fmt.Errorf("leg %d (%s %s): %w", i+1, leg.LegType, leg.Ticker, err)
			}

			netDebitCredit = netDebitCredit.Add(outcome.CashDelta)
			if isOptionLeg(leg.LegType) {
				totalPremium = totalPremium.Add(outcome.CashDelta)
			}

			legRow := &models.OperationLeg{
				StructuredOperationID: op.ID,
				LegOrder:              i + 1,
				LegType:               leg.LegType,
				Ticker:                leg.Ticker,
				AssetID:               assets[i].ID,
				Quantity:              leg.Quantity,
				Price:                 leg.Price,
				TotalValue:            outcome.Transaction.TotalValue,
				Status:                models.OperationStatusExecuted,
				TransactionID:         outcome.Transaction.ID,
			}
			if err := tx.Create(legRow).Error; err != nil {
				return fmt.Errorf("failed to create operation leg %d: %w", i+1, err)
			}
			op.Legs = append(op.Legs, *legRow)
		}

		op.TotalPremium = totalPremium
		op.NetDebitCredit = netDebitCredit
		if err := tx.Model(&models.StructuredOperation{}).
			Where("id = ?", op.ID).
			Updates(map[string]interface{}{
				"total_premium":    totalPremium,
				"net_debit_credit": netDebitCredit,
			}).Error; err != nil {
			return fmt.Errorf("failed to finalize structured operation: %w", err)
		}

		if err := e.ledger.events.Record(tx, interfaces.Event{
			AggregateType: "StructuredOperation",
			AggregateID:   op.ID,
			EventType:     "StrategyExecuted",
			Payload:       op,
		}); err != nil {
			return fmt.Errorf("failed to record strategy event: %w", err)
		}

		wallet, err := e.ledger.FetchWallet(tx, walletID)
		if err != nil {
			return err
		}
		result = StrategyResult{Operation: op, Wallet: wallet}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.WithFields(logrus.Fields{
		"wallet_id":     walletID,
		"strategy_type": req.StrategyType,
		"legs":          len(req.Legs),
		"net":           result.Operation.NetDebitCredit,
	}).Info("Strategy executed")
	return &result, nil
}

// ensureNewStrategy is the fast-path duplicate check for strategies;
// the unique index on structured_operations is authoritative.
func (e *StrategyEngine) ensureNewStrategy(walletID uint, idempotencyKey string) error {
	if idempotencyKey == "" {
		return fmt.Errorf("idempotency key is required: %w", ErrValidation)
	}

	var count int64
	if err := e.store.DB().Model(&models.StructuredOperation{}).
		Where("wallet_id = ? AND idempotency_key = ?", walletID, idempotencyKey).
		Count(&count).Error; err != nil {
		return fmt.Errorf("failed to check strategy idempotency key: %w", err)
	}
	if count > 0 {
		return fmt.Errorf("key %q already used for wallet %d: %w", idempotencyKey, walletID, ErrDuplicateOperation)
	}
	return nil
}

// applyLeg dispatches one leg to the shared single-leg mutation path
func (e *StrategyEngine) applyLeg(tx *gorm.DB, walletID uint, leg StrategyLegInput, asset *models.Asset, executedAt time.Time, legKey string) (*LegOutcome, error) {
	switch leg.LegType {
	case models.LegTypeBuyStock:
		return e.ledger.applyStockBuy(tx, walletID, asset, leg.Quantity, leg.Price, executedAt, legKey)
	case models.LegTypeSellStock:
		return e.ledger.applyStockSell(tx, walletID, asset, leg.Quantity, leg.Price, executedAt, legKey)
	case models.LegTypeBuyCall, models.LegTypeBuyPut:
		return e.ledger.applyOptionBuy(tx, walletID, asset, leg.Quantity, leg.Price, executedAt, legKey)
	case models.LegTypeSellCall, models.LegTypeSellPut:
		return e.ledger.applyOptionSell(tx, walletID, asset, leg.Quantity, leg.Price, leg.Covered, executedAt, legKey)
	}
	return nil, fmt.Errorf("unsupported leg type %q: %w", leg.LegType, ErrValidation)
}
