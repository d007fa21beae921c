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

// TradeRequest is a buy or sell command for a simple asset
type TradeRequest struct {
	Ticker         string          `json:"ticker"`
	Quantity       decimal.Decimal `json:"quantity"`
	Price          decimal.Decimal `json:"price"`
	ExecutedAt     time.Time       `json:"executed_at"`
	IdempotencyKey string          `json:"idempotency_key"`
}

// TradeResult reports the applied trade
type TradeResult struct {
	Transaction *models.Transaction `json:"transaction"`
	Position    *models.Position    `json:"position,omitempty"`
	Wallet      *models.Wallet      `json:"wallet"`
}

// TradingEngine executes buy/sell of simple assets with
// weighted-average cost accounting.
type TradingEngine struct {
	store  *database.Storage
	ledger *Ledger
	assets interfaces.AssetResolver
	logger *logrus.Logger
}

// NewTradingEngine creates a new trading engine
func NewTradingEngine(store *database.Storage, ledger *Ledger, assets interfaces.AssetResolver) *TradingEngine {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	return &TradingEngine{
		store:  store,
		ledger: ledger,
		assets: assets,
		logger: logger,
	}
}

func (e *TradingEngine) validate(req TradeRequest) error {
	if req.Ticker == "" {
		return fmt.Errorf("ticker is required: %w", ErrValidation)
	}
	if !req.Quantity.IsPositive() {
		return fmt.Errorf("quantity must be positive: %w", ErrValidation)
	}
	if !req.Price.IsPositive() {
		return fmt.Errorf("price must be positive: %w", ErrValidation)
	}
	return nil
}

// Buy debits cash for quantity x price and opens or increases the
// wallet's position at weighted-average cost. Asset resolution happens
// before the transaction opens: it may involve a slow external lookup
// and must not hold the transaction.
func (e *TradingEngine) Buy(ctx context.Context, walletID uint, req TradeRequest) (*TradeResult, error) {
	if err := e.validate(req); err != nil {
		return nil, err
	}
	if err := e.ledger.EnsureNewOperation(walletID, req.IdempotencyKey); err != nil {
		return nil, err
	}

	asset, err := e.assets.Resolve(ctx, req.Ticker)
	if err != nil {
		return nil, err
	}
	if asset.Type != models.AssetTypeStock {
		return nil, fmt.Errorf("asset %s is not a stock: %w", req.Ticker, ErrValidation)
	}

	var result TradeResult
	err = e.store.Transaction(func(tx *gorm.DB) error {
		if _, err := e.ledger.FetchWallet(tx, walletID); err != nil {
			return err
		}

		outcome, err := e.ledger.applyStockBuy(tx, walletID, asset, req.Quantity, req.Price, executedAtOrNow(req.ExecutedAt), req.IdempotencyKey)
		if err != nil {
			return err
		}

		wallet, err := e.ledger.FetchWallet(tx, walletID)
		if err != nil {
			return err
		}
		result = TradeResult{
			Transaction: outcome.Transaction,
			Position:    outcome.After,
			Wallet:      wallet,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.WithFields(logrus.Fields{
		"wallet_id": walletID,
		"ticker":    req.Ticker,
		"quantity":  req.Quantity,
		"price":     req.Price,
	}).Info("Buy executed")
	return &result, nil
}

// Sell reduces an existing long position and credits the proceeds.
// Selling an asset with no position is a hard error: the engine does
// not support going short on simple assets.
func (e *TradingEngine) Sell(ctx context.Context, walletID uint, req TradeRequest) (*TradeResult, error) {
	if err := e.validate(req); err != nil {
		return nil, err
	}
	if err := e.ledger.EnsureNewOperation(walletID, req.IdempotencyKey); err != nil {
		return nil, err
	}

	asset, err := e.assets.Get(ctx, req.Ticker)
	if err != nil {
		return nil, err
	}
	if asset.Type != models.AssetTypeStock {
		return nil, fmt.Errorf("asset %s is not a stock: %w", req.Ticker, ErrValidation)
	}

	var result TradeResult
	err = e.store.Transaction(func(tx *gorm.DB) error {
		if _, err := e.ledger.FetchWallet(tx, walletID); err != nil {
			return err
		}

		outcome, err := e.ledger.applyStockSell(tx, walletID, asset, req.Quantity, req.Price, executedAtOrNow(req.ExecutedAt), req.IdempotencyKey)
		if err != nil {
			return err
		}

		wallet, err := e.ledger.FetchWallet(tx, walletID)
		if err != nil {
			return err
		}
		result = TradeResult{
			Transaction: outcome.Transaction,
			Position:    outcome.After,
			Wallet:      wallet,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.WithFields(logrus.Fields{
		"wallet_id": walletID,
		"ticker":    req.Ticker,
		"quantity":  req.Quantity,
		"price":     req.Price,
	}).Info("Sell executed")
	return &result, nil
}
