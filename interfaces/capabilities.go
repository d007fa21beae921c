package interfaces

import (
	"context"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/Gsaudx/Advision-sub001/models"
)

// AssetResolver resolves tickers to Asset records, creating them on
// first use. Resolution may involve a slow external lookup, so engines
// call it before opening their transaction.
type AssetResolver interface {
	Resolve(ctx context.Context, ticker string) (*models.Asset, error)
	ResolveOption(ctx context.Context, ticker string, spec OptionSpec) (*models.Asset, error)
	Get(ctx context.Context, ticker string) (*models.Asset, error)
}

// MarketDataService supplies current prices for moneyness checks at
// expiry and for strategy previews.
type MarketDataService interface {
	PriceOf(ctx context.Context, ticker string) (decimal.Decimal, error)
}

// AuditEntry is a before/after snapshot of one mutated record
type AuditEntry struct {
	TableRef string
	RecordID uint
	Action   string
	Before   interface{}
	After    interface{}
	Context  string
}

// AuditRecorder appends audit entries inside the same transaction as
// the mutation they describe.
type AuditRecorder interface {
	Record(tx *gorm.DB, entry AuditEntry) error
}

// Event is a typed domain event tied to an aggregate
type Event struct {
	AggregateType string
	AggregateID   uint
	EventType     string
	Payload       interface{}
	ActorID       uint
}

// EventRecorder appends domain events inside the same transaction as
// the mutation that produced them.
type EventRecorder interface {
	Record(tx *gorm.DB, event Event) error
}
