package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// AssetType distinguishes simple equities from option contracts
type AssetType string

const (
	AssetTypeStock  AssetType = "STOCK"
	AssetTypeOption AssetType = "OPTION"
)

// OptionType is the contract direction of an option asset
type OptionType string

const (
	OptionTypeCall OptionType = "CALL"
	OptionTypePut  OptionType = "PUT"
)

// ExerciseStyle controls when an option may be exercised
type ExerciseStyle string

const (
	ExerciseStyleAmerican ExerciseStyle = "AMERICAN"
	ExerciseStyleEuropean ExerciseStyle = "EUROPEAN"
)

// TransactionType labels immutable ledger entries
type TransactionType string

const (
	TransactionTypeBuy              TransactionType = "BUY"
	TransactionTypeSell             TransactionType = "SELL"
	TransactionTypeDeposit          TransactionType = "DEPOSIT"
	TransactionTypeWithdrawal       TransactionType = "WITHDRAWAL"
	TransactionTypeOptionBuy        TransactionType = "OPTION_BUY"
	TransactionTypeOptionSell       TransactionType = "OPTION_SELL"
	TransactionTypeOptionClose      TransactionType = "OPTION_CLOSE"
	TransactionTypeOptionExercise   TransactionType = "OPTION_EXERCISE"
	TransactionTypeOptionAssignment TransactionType = "OPTION_ASSIGNMENT"
	TransactionTypeOptionExpiration TransactionType = "OPTION_EXPIRATION"
)

// LegType identifies the action a strategy leg performs
type LegType string

const (
	LegTypeBuyCall   LegType = "BUY_CALL"
	LegTypeSellCall  LegType = "SELL_CALL"
	LegTypeBuyPut    LegType = "BUY_PUT"
	LegTypeSellPut   LegType = "SELL_PUT"
	LegTypeBuyStock  LegType = "BUY_STOCK"
	LegTypeSellStock LegType = "SELL_STOCK"
)

// LifecycleEventType enumerates option position lifecycle transitions
type LifecycleEventType string

const (
	LifecycleEventOpened     LifecycleEventType = "OPENED"
	LifecycleEventExercised  LifecycleEventType = "EXERCISED"
	LifecycleEventAssigned   LifecycleEventType = "ASSIGNED"
	LifecycleEventExpiredITM LifecycleEventType = "EXPIRED_ITM"
	LifecycleEventExpiredOTM LifecycleEventType = "EXPIRED_OTM"
	LifecycleEventClosed     LifecycleEventType = "CLOSED"
)

// OperationStatus tracks a structured operation header and its legs
type OperationStatus string

const (
	OperationStatusExecuted OperationStatus = "EXECUTED"
	OperationStatusFailed   OperationStatus = "FAILED"
)

// Client is an advisory client; wallets belong to clients
type Client struct {
	gorm.Model
	AdvisorID uint   `gorm:"index"`
	UserID    uint   `gorm:"index"`
	Name      string
	Email     string `gorm:"uniqueIndex"`
}

// Wallet holds a client's cash balance and blocked collateral.
// cash_balance - blocked_collateral is the amount available for
// withdrawals and new collateral blocks.
type Wallet struct {
	gorm.Model
	ClientID          uint            `gorm:"index"`
	Currency          string
	CashBalance       decimal.Decimal `gorm:"type:decimal(20,8)"`
	BlockedCollateral decimal.Decimal `gorm:"type:decimal(20,8)"`
}

// Available returns the cash not reserved as collateral.
func (w *Wallet) Available() decimal.Decimal {
	return w.CashBalance.Sub(w.BlockedCollateral)
}

// Asset is an immutable tradeable instrument, created on demand by the
// asset resolver. OPTION assets own an OptionDetail row.
type Asset struct {
	gorm.Model
	Ticker       string        `gorm:"uniqueIndex"`
	Name         string
	Type         AssetType     `gorm:"index"`
	OptionDetail *OptionDetail
}

// OptionDetail describes the contract terms of an OPTION asset
type OptionDetail struct {
	gorm.Model
	AssetID           uint            `gorm:"uniqueIndex"`
	OptionType        OptionType
	ExerciseType      ExerciseStyle
	StrikePrice       decimal.Decimal `gorm:"type:decimal(20,8)"`
	ExpirationDate    time.Time
	UnderlyingAssetID uint            `gorm:"index"`
}

// Position is the signed holding of one asset in one wallet: positive
// quantity is long, negative is short. A position that reaches exactly
// zero is deleted, never persisted. CollateralBlocked mirrors the margin
// reserved on the wallet against a short option position.
type Position struct {
	gorm.Model
	WalletID          uint                `gorm:"uniqueIndex:idx_positions_wallet_asset"`
	AssetID           uint                `gorm:"uniqueIndex:idx_positions_wallet_asset"`
	Quantity          decimal.Decimal     `gorm:"type:decimal(20,8)"`
	AveragePrice      decimal.Decimal     `gorm:"type:decimal(20,8)"`
	CollateralBlocked decimal.NullDecimal `gorm:"type:decimal(20,8)"`
}

// Transaction is an immutable ledger entry. The (wallet_id,
// idempotency_key) unique index is the source of truth for whether a
// command has already been applied.
type Transaction struct {
	gorm.Model
	WalletID       uint            `gorm:"uniqueIndex:idx_transactions_wallet_idem"`
	IdempotencyKey string          `gorm:"uniqueIndex:idx_transactions_wallet_idem"`
	AssetID        *uint           `gorm:"index"`
	Type           TransactionType `gorm:"index"`
	Quantity       decimal.Decimal `gorm:"type:decimal(20,8)"`
	Price          decimal.Decimal `gorm:"type:decimal(20,8)"`
	TotalValue     decimal.Decimal `gorm:"type:decimal(20,8)"`
	ExecutedAt     time.Time
}

// StructuredOperation is the header of a multi-leg strategy, created
// atomically with all of its legs or not at all.
type StructuredOperation struct {
	gorm.Model
	WalletID       uint            `gorm:"uniqueIndex:idx_structured_ops_wallet_idem"`
	IdempotencyKey string          `gorm:"uniqueIndex:idx_structured_ops_wallet_idem"`
	StrategyType   string
	Status         OperationStatus
	TotalPremium   decimal.Decimal `gorm:"type:decimal(20,8)"`
	NetDebitCredit decimal.Decimal `gorm:"type:decimal(20,8)"`
	Notes          string
	ExecutedAt     time.Time
	Legs           []OperationLeg
}

// OperationLeg is one buy/sell action inside a structured operation,
// linked to the ledger Transaction it produced.
type OperationLeg struct {
	gorm.Model
	StructuredOperationID uint            `gorm:"index"`
	LegOrder              int
	LegType               LegType
	Ticker                string
	AssetID               uint
	Quantity              decimal.Decimal `gorm:"type:decimal(20,8)"`
	Price                 decimal.Decimal `gorm:"type:decimal(20,8)"`
	TotalValue            decimal.Decimal `gorm:"type:decimal(20,8)"`
	Status                OperationStatus
	TransactionID         uint            `gorm:"index"`
}

// OptionLifecycleEvent is an append-only record of a lifecycle
// transition on an option position.
type OptionLifecycleEvent struct {
	gorm.Model
	PositionID             uint               `gorm:"index"`
	WalletID               uint               `gorm:"index"`
	AssetID                uint
	Event                  LifecycleEventType
	UnderlyingQuantity     decimal.Decimal    `gorm:"type:decimal(20,8)"`
	StrikePrice            decimal.Decimal    `gorm:"type:decimal(20,8)"`
	SettlementAmount       decimal.Decimal    `gorm:"type:decimal(20,8)"`
	ResultingTransactionID *uint
	OccurredAt             time.Time
}

// AuditLog stores before/after snapshots for every mutation, written in
// the same transaction as the mutation itself.
type AuditLog struct {
	gorm.Model
	TableRef string `gorm:"column:table_ref;index"`
	RecordID uint
	Action   string
	Before   string
	After    string
	Context  string
}

// DomainEvent is a typed event emitted alongside a mutation. EventID
// gives consumers a stable identifier independent of the row id.
type DomainEvent struct {
	gorm.Model
	EventID       string `gorm:"uniqueIndex"`
	AggregateType string `gorm:"index"`
	AggregateID   uint   `gorm:"index"`
	EventType     string `gorm:"index"`
	Payload       string
	ActorID       uint
}

// TableName overrides for cleaner table names
func (Client) TableName() string {
	return "clients"
}

func (Wallet) TableName() string {
	return "wallets"
}

func (Asset) TableName() string {
	return "assets"
}

func (OptionDetail) TableName() string {
	return "option_details"
}

func (Position) TableName() string {
	return "positions"
}

func (Transaction) TableName() string {
	return "transactions"
}

func (StructuredOperation) TableName() string {
	return "structured_operations"
}

func (OperationLeg) TableName() string {
	return "operation_legs"
}

func (OptionLifecycleEvent) TableName() string {
	return "option_lifecycle_events"
}

func (AuditLog) TableName() string {
	return "audit_logs"
}

func (DomainEvent) TableName() string {
	return "domain_events"
}
