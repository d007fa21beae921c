package interfaces

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/Gsaudx/Advision-sub001/models"
)

// OptionSpec carries the contract terms used to lazily create an OPTION
// asset the first time its ticker is traded.
type OptionSpec struct {
	OptionType       models.OptionType
	ExerciseType     models.ExerciseStyle
	StrikePrice      decimal.Decimal
	ExpirationDate   time.Time
	UnderlyingTicker string
}
