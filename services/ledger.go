package services

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/Gsaudx/Advision-sub001/database"
	"github.com/Gsaudx/Advision-sub001/interfaces"
	"github.com/Gsaudx/Advision-sub001/models"
)

// ContractSize converts an option's per-share premium or strike into a
// per-contract cash amount.
const ContractSize = 100

// maxPositionAttempts bounds the optimistic read/conditional-write loop
// on position rows.
const maxPositionAttempts = 3

var contractSize = decimal.NewFromInt(ContractSize)

// Ledger carries the mutation primitives shared by every engine: the
// idempotency guard, the optimistic position update loop, and the
// audited transaction insert. The strategy engine reuses the same
// primitives inside its own transaction.
type Ledger struct {
	store  *database.Storage
	audit  interfaces.AuditRecorder
	events interfaces.EventRecorder
	logger *logrus.Logger
}

// NewLedger creates the shared ledger primitives
func NewLedger(store *database.Storage, audit interfaces.AuditRecorder, events interfaces.EventRecorder) *Ledger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	return &Ledger{
		store:  store,
		audit:  audit,
		events: events,
		logger: logger,
	}
}

// EnsureNewOperation is the pre-transaction fast path of the
// idempotency guard. The authoritative guard is the unique constraint
// checked by InsertTransaction: two concurrent identical requests both
// pass this check, and exactly one survives the insert.
func (l *Ledger) EnsureNewOperation(walletID uint, idempotencyKey string) error {
	if idempotencyKey == "" {
		return fmt.Errorf("idempotency key is required: %w", ErrValidation)
	}

	var count int64
	if err := l.store.DB().Model(&models.Transaction{}).
		Where("wallet_id = ? AND idempotency_key = ?", walletID, idempotencyKey).
		Count(&count).Error; err != nil {
		return fmt.Errorf("failed to check idempotency key: %w", err)
	}
	if count > 0 {
		return fmt.Errorf("key %q already used for wallet %d: %w", idempotencyKey, walletID, ErrDuplicateOperation)
	}

	return nil
}

// FetchWallet loads a wallet or reports not-found
func (l *Ledger) FetchWallet(db *gorm.DB, walletID uint) (*models.Wallet, error) {
	var wallet models.Wallet
	if err := db.First(&wallet, walletID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("wallet %d: %w", walletID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load wallet %d: %w", walletID, err)
	}
	return &wallet, nil
}

// InsertTransaction writes an immutable ledger entry. A unique-index
// violation on (wallet_id, idempotency_key) means a concurrent request
// with the same key won the race and is reported as a duplicate, which
// aborts the surrounding transaction before any side effect commits.
func (l *Ledger) InsertTransaction(tx *gorm.DB, txn *models.Transaction) error {
	if err := tx.Create(txn).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("key %q already used for wallet %d: %w", txn.IdempotencyKey, txn.WalletID, ErrDuplicateOperation)
		}
		return fmt.Errorf("failed to record transaction: %w", err)
	}

	if err := l.audit.Record(tx, interfaces.AuditEntry{
		TableRef: models.Transaction{}.TableName(),
		RecordID: txn.ID,
		Action:   "INSERT",
		After:    txn,
		Context:  string(txn.Type),
	}); err != nil {
		return fmt.Errorf("failed to audit transaction: %w", err)
	}

	return nil
}

// OpenOrIncreasePosition merges qtyDelta at price into the wallet's
// position for the asset, creating the row on first trade. The sign of
// qtyDelta is the direction: an existing position of the opposite sign
// cannot be flipped through this path. The merge uses weighted-average
// cost over absolute quantities, so the same arithmetic serves long
// stock, long option and short option accumulation.
//
// The write is a conditional update against the snapshot just read;
// losing the race re-reads and retries, bounded at maxPositionAttempts.
func (l *Ledger) OpenOrIncreasePosition(tx *gorm.DB, walletID, assetID uint, qtyDelta, price, collateralDelta decimal.Decimal) (*models.Position, *models.Position, error) {
	if qtyDelta.IsZero() {
		return nil, nil, fmt.Errorf("quantity must not be zero: %w", ErrValidation)
	}

	for attempt := 1; attempt <= maxPositionAttempts; attempt++ {
		var current models.Position
		err := tx.Where("wallet_id = ? AND asset_id = ?", walletID, assetID).First(&current).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			created := models.Position{
				WalletID:     walletID,
				AssetID:      assetID,
				Quantity:     qtyDelta,
				AveragePrice: price,
			}
			if collateralDelta.IsPositive() {
				created.CollateralBlocked = decimal.NewNullDecimal(collateralDelta)
			}
			if err := tx.Create(&created).Error; err != nil {
				if errors.Is(err, gorm.ErrDuplicatedKey) {
					// Another writer created the row between our read
					// and insert; merge into it on the next attempt.
					continue
				}
				return nil, nil, fmt.Errorf("failed to create position: %w", err)
			}
			return nil, &created, nil
		}
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load position: %w", err)
		}

		if current.Quantity.Sign() != qtyDelta.Sign() {
			return nil, nil, fmt.Errorf("position direction cannot flip on open: %w", ErrValidation)
		}

		before := current
		newQty := current.Quantity.Add(qtyDelta)
		weighted := current.Quantity.Abs().Mul(current.AveragePrice).
			Add(qtyDelta.Abs().Mul(price))
		newAvg := weighted.Div(newQty.Abs())

		newCollateral := current.CollateralBlocked
		if collateralDelta.IsPositive() {
			existing := decimal.Zero
			if current.CollateralBlocked.Valid {
				existing = current.CollateralBlocked.Decimal
			}
			newCollateral = decimal.NewNullDecimal(existing.Add(collateralDelta))
		}

		ok, err := database.UpdatePositionCAS(tx, &current, map[string]interface{}{
			"quantity":           newQty,
			"average_price":      newAvg,
			"collateral_blocked": newCollateral,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to update position: %w", err)
		}
		if !ok {
			l.logger.WithFields(logrus.Fields{
				"wallet_id": walletID,
				"asset_id":  assetID,
				"attempt":   attempt,
			}).Warn("Position changed concurrently, retrying")
			continue
		}

		after := current
		after.Quantity = newQty
		after.AveragePrice = newAvg
		after.CollateralBlocked = newCollateral
		return &before, &after, nil
	}

	return nil, nil, fmt.Errorf("position update for wallet %d asset %d exhausted %d attempts: %w",
		walletID, assetID, maxPositionAttempts, ErrConcurrentModification)
}

// ReduceOutcome reports the effect of a position reduction
type ReduceOutcome struct {
	Before             *models.Position
	After              *models.Position
	Closed             bool
	ClosedQuantity     decimal.Decimal
	ReleasedCollateral decimal.Decimal
}

// ReducePosition moves the position toward zero by closeQty contracts
// or shares. A zero closeQty closes the whole position. side constrains
// the direction of the position being reduced: +1 requires long, -1
// requires short, 0 accepts either. Blocked collateral on the row is
// released proportionally to the quantity closed; a reduction to
// exactly zero deletes the row.
func (l *Ledger) ReducePosition(tx *gorm.DB, walletID, assetID uint, closeQty decimal.Decimal, side int) (*ReduceOutcome, error) {
	if closeQty.IsNegative() {
		return nil, fmt.Errorf("close quantity must not be negative: %w", ErrValidation)
	}

	for attempt := 1; attempt <= maxPositionAttempts; attempt++ {
		var current models.Position
		err := tx.Where("wallet_id = ? AND asset_id = ?", walletID, assetID).First(&current).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("no position for asset %d in wallet %d: %w", assetID, walletID, ErrNotFound)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load position: %w", err)
		}

		if side != 0 && current.Quantity.Sign() != side {
			return nil, fmt.Errorf("position direction does not match operation: %w", ErrInsufficientQuantity)
		}

		held := current.Quantity.Abs()
		qty := closeQty
		if qty.IsZero() {
			qty = held
		}
		if qty.GreaterThan(held) {
			return nil, fmt.Errorf("requested %s but only %s held: %w", qty, held, ErrInsufficientQuantity)
		}

		before := current
		outcome := &ReduceOutcome{
			Before:             &before,
			ClosedQuantity:     qty,
			ReleasedCollateral: decimal.Zero,
		}

		newAbs := held.Sub(qty)
		blocked := decimal.Zero
		if current.CollateralBlocked.Valid {
			blocked = current.CollateralBlocked.Decimal
		}

		if newAbs.IsZero() {
			ok, err := database.DeletePositionCAS(tx, &current)
			if err != nil {
				return nil, fmt.Errorf("failed to delete position: %w", err)
			}
			if !ok {
				continue
			}
			outcome.Closed = true
			outcome.ReleasedCollateral = blocked
			return outcome, nil
		}

		newQty := decimal.NewFromInt(int64(current.Quantity.Sign())).Mul(newAbs)
		newBlocked := blocked.Mul(newAbs).Div(held)
		released := blocked.Sub(newBlocked)

		newCollateral := current.CollateralBlocked
		if current.CollateralBlocked.Valid {
			newCollateral = decimal.NewNullDecimal(newBlocked)
		}

		ok, err := database.UpdatePositionCAS(tx, &current, map[string]interface{}{
			"quantity":           newQty,
			"collateral_blocked": newCollateral,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to update position: %w", err)
		}
		if !ok {
			l.logger.WithFields(logrus.Fields{
				"wallet_id": walletID,
				"asset_id":  assetID,
				"attempt":   attempt,
			}).Warn("Position changed concurrently, retrying")
			continue
		}

		after := current
		after.Quantity = newQty
		after.CollateralBlocked = newCollateral
		outcome.After = &after
		outcome.ReleasedCollateral = released
		return outcome, nil
	}

	return nil, fmt.Errorf("position update for wallet %d asset %d exhausted %d attempts: %w",
		walletID, assetID, maxPositionAttempts, ErrConcurrentModification)
}

// recordPositionChange writes the audit snapshot and domain event for a
// position mutation.
func (l *Ledger) recordPositionChange(tx *gorm.DB, eventType string, before, after *models.Position, context string) error {
	var recordID uint
	var payload interface{}
	switch {
	case after != nil:
		recordID = after.ID
		payload = after
	case before != nil:
		recordID = before.ID
		payload = before
	}

	if err := l.audit.Record(tx, interfaces.AuditEntry{
		TableRef: models.Position{}.TableName(),
		RecordID: recordID,
		Action:   eventType,
		Before:   before,
		After:    after,
		Context:  context,
	}); err != nil {
		return fmt.Errorf("failed to audit position change: %w", err)
	}

	if err := l.events.Record(tx, interfaces.Event{
		AggregateType: "Position",
		AggregateID:   recordID,
		EventType:     eventType,
		Payload:       payload,
	}); err != nil {
		return fmt.Errorf("failed to record position event: %w", err)
	}

	return nil
}

// positionEventType names the event for an accumulation or reduction
func positionEventType(before *models.Position, closed bool) string {
	switch {
	case before == nil:
		return "PositionOpened"
	case closed:
		return "PositionClosed"
	default:
		return "PositionDecreased"
	}
}

// appendLifecycleEvent writes an append-only option lifecycle record
func (l *Ledger) appendLifecycleEvent(tx *gorm.DB, event *models.OptionLifecycleEvent) error {
	if err := tx.Create(event).Error; err != nil {
		return fmt.Errorf("failed to append lifecycle event: %w", err)
	}
	return nil
}
