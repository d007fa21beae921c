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

// CashRequest is a deposit or withdrawal command
type CashRequest struct {
	Amount         decimal.Decimal `json:"amount"`
	ExecutedAt     time.Time       `json:"executed_at"`
	IdempotencyKey string          `json:"idempotency_key"`
}

// CashResult reports the applied cash movement
type CashResult struct {
	Transaction *models.Transaction `json:"transaction"`
	Wallet      *models.Wallet      `json:"wallet"`
}

// WalletService applies pure cash operations to wallets
type WalletService struct {
	store  *database.Storage
	ledger *Ledger
	events interfaces.EventRecorder
	logger *logrus.Logger
}

// NewWalletService creates a new wallet service
func NewWalletService(store *database.Storage, ledger *Ledger, events interfaces.EventRecorder) *WalletService {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	return &WalletService{
		store:  store,
		ledger: ledger,
		events: events,
		logger: logger,
	}
}

// GetWallet loads a wallet by id
func (s *WalletService) GetWallet(ctx context.Context, walletID uint) (*models.Wallet, error) {
	return s.ledger.FetchWallet(s.store.DB().WithContext(ctx), walletID)
}

// Deposit credits cash into the wallet
func (s *WalletService) Deposit(ctx context.Context, walletID uint, req CashRequest) (*CashResult, error) {
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("amount must be positive: %w", ErrValidation)
	}
	if err := s.ledger.EnsureNewOperation(walletID, req.IdempotencyKey); err != nil {
		return nil, err
	}

	var result CashResult
	err := s.store.Transaction(func(tx *gorm.DB) error {
		if _, err := s.ledger.FetchWallet(tx, walletID); err != nil {
			return err
		}

		txn := &models.Transaction{
			WalletID:       walletID,
			IdempotencyKey: req.IdempotencyKey,
			Type:           models.TransactionTypeDeposit,
			Quantity:       decimal.Zero,
			Price:          decimal.Zero,
			TotalValue:     req.Amount,
			ExecutedAt:     executedAtOrNow(req.ExecutedAt),
		}
		if err := s.ledger.InsertTransaction(tx, txn); err != nil {
			return err
		}

		if err := database.CreditCash(tx, walletID, req.Amount); err != nil {
			return fmt.Errorf("failed to credit deposit: %w", err)
		}

		if err := s.events.Record(tx, interfaces.Event{
			AggregateType: "Wallet",
			AggregateID:   walletID,
			EventType:     "CashDeposited",
			Payload:       txn,
		}); err != nil {
			return fmt.Errorf("failed to record deposit event: %w", err)
		}

		wallet, err := s.ledger.FetchWallet(tx, walletID)
		if err != nil {
			return err
		}
		result = CashResult{Transaction: txn, Wallet: wallet}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"wallet_id": walletID,
		"amount":    req.Amount,
	}).Info("Deposit applied")
	return &result, nil
}

// Withdraw debits cash from the wallet. The debit predicate requires
// the amount to be covered by cash net of blocked collateral, so a
// withdrawal can never eat into reserved margin.
func (s *WalletService) Withdraw(ctx context.Context, walletID uint, req CashRequest) (*CashResult, error) {
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("amount must be positive: %w", ErrValidation)
	}
	if err := s.ledger.EnsureNewOperation(walletID, req.IdempotencyKey); err != nil {
		return nil, err
	}

	var result CashResult
	err := s.store.Transaction(func(tx *gorm.DB) error {
		if _, err := s.ledger.FetchWallet(tx, walletID); err != nil {
			return err
		}

		txn := &models.Transaction{
			WalletID:       walletID,
			IdempotencyKey: req.IdempotencyKey,
			Type:           models.TransactionTypeWithdrawal,
			Quantity:       decimal.Zero,
			Price:          decimal.Zero,
			TotalValue:     req.Amount,
			ExecutedAt:     executedAtOrNow(req.ExecutedAt),
		}
		if err := s.ledger.InsertTransaction(tx, txn); err != nil {
			return err
		}

		ok, err := database.DebitAvailableCash(tx, walletID, req.Amount)
		if err != nil {
			return fmt.Errorf("failed to debit withdrawal: %w", err)
		}
		if !ok {
			return fmt.Errorf("wallet %d cannot cover withdrawal of %s: %w", walletID, req.Amount, ErrInsufficientFunds)
		}

		if err := s.events.Record(tx, interfaces.Event{
			AggregateType: "Wallet",
			AggregateID:   walletID,
			EventType:     "CashWithdrawn",
			Payload:       txn,
		}); err != nil {
			return fmt.Errorf("failed to record withdrawal event: %w", err)
		}

		wallet, err := s.ledger.FetchWallet(tx, walletID)
		if err != nil {
			return err
		}
		result = CashResult{Transaction: txn, Wallet: wallet}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"wallet_id": walletID,
		"amount":    req.Amount,
	}).Info("Withdrawal applied")
	return &result, nil
}

func executedAtOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
