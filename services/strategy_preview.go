package services

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/Gsaudx/Advision-sub001/models"
)

// PreviewRequest asks for a pure, non-persisting strategy evaluation
type PreviewRequest struct {
	StrategyType string             `json:"strategy_type"`
	Legs         []StrategyLegInput `json:"legs"`
}

// RiskProfile describes the payoff shape of a strategy at expiry. An
// invalid MaxLoss or MaxGain means the exposure is unbounded.
type RiskProfile struct {
	MaxLoss         decimal.NullDecimal `json:"max_loss"`
	MaxGain         decimal.NullDecimal `json:"max_gain"`
	BreakEvenPoints []decimal.Decimal   `json:"break_even_points"`
	NetPremium      decimal.Decimal     `json:"net_premium"`
	MarginRequired  decimal.Decimal     `json:"margin_required"`
	IsDebitStrategy bool                `json:"is_debit_strategy"`
}

// StrategyPreview is the result of a preview: no state is written and
// the call is safe to repeat concurrently.
type StrategyPreview struct {
	StrategyType     string          `json:"strategy_type"`
	TotalCost        decimal.Decimal `json:"total_cost"`
	RiskProfile      RiskProfile     `json:"risk_profile"`
	ValidationErrors []string        `json:"validation_errors"`
}

// previewLeg is a leg with its pricing context filled in
type previewLeg struct {
	input  StrategyLegInput
	strike decimal.Decimal
}

// PreviewStrategy computes aggregate cost and the expiry risk profile
// of a strategy without persisting anything. Unknown tickers and
// malformed legs surface as validation errors in the result rather than
// failing the call.
func (e *StrategyEngine) PreviewStrategy(ctx context.Context, req PreviewRequest) (*StrategyPreview, error) {
	preview := &StrategyPreview{
		StrategyType:     req.StrategyType,
		TotalCost:        decimal.Zero,
		ValidationErrors: []string{},
	}

	if len(req.Legs) < minStrategyLegs || len(req.Legs) > maxStrategyLegs {
		return nil, fmt.Errorf("strategy must have between %d and %d legs, got %d: %w",
			minStrategyLegs, maxStrategyLegs, len(req.Legs), ErrValidation)
	}

	legs := make([]previewLeg, 0, len(req.Legs))
	netCash := decimal.Zero
	netPremium := decimal.Zero
	margin := decimal.Zero

	for i, leg := range req.Legs {
		if err := validateLeg(i, leg); err != nil {
			preview.ValidationErrors = append(preview.ValidationErrors, err.Error())
			continue
		}

		pl := previewLeg{input: leg}
		if isOptionLeg(leg.LegType) {
			strike, err := e.previewStrike(ctx, leg)
			if err != nil {
				preview.ValidationErrors = append(preview.ValidationErrors, err.Error())
				continue
			}
			pl.strike = strike
		} else if _, err := e.assets.Get(ctx, leg.Ticker); err != nil && !errors.Is(err, ErrNotFound) {
			return nil, err
		}

		delta := legCashDelta(leg)
		netCash = netCash.Add(delta)
		if isOptionLeg(leg.LegType) {
			netPremium = netPremium.Add(delta)
			if leg.LegType == models.LegTypeSellPut {
				margin = margin.Add(pl.strike.Mul(contractSize).Mul(leg.Quantity))
			}
		}
		legs = append(legs, pl)
	}

	preview.TotalCost = netCash.Neg()
	preview.RiskProfile = RiskProfile{
		NetPremium:      netPremium,
		MarginRequired:  margin,
		IsDebitStrategy: netCash.IsNegative(),
		BreakEvenPoints: []decimal.Decimal{},
	}

	if len(preview.ValidationErrors) == 0 && len(legs) > 0 {
		profile := computePayoffProfile(legs)
		profile.NetPremium = netPremium
		profile.MarginRequired = margin
		profile.IsDebitStrategy = netCash.IsNegative()
		preview.RiskProfile = profile
	}

	return preview, nil
}

// previewStrike finds the strike for an option leg, preferring the
// supplied spec over a previously created asset.
func (e *StrategyEngine) previewStrike(ctx context.Context, leg StrategyLegInput) (decimal.Decimal, error) {
	if leg.Option != nil {
		return leg.Option.StrikePrice, nil
	}

	asset, err := e.assets.Get(ctx, leg.Ticker)
	if err != nil {
		return decimal.Zero, fmt.Errorf("unknown ticker %s", leg.Ticker)
	}
	if asset.Type != models.AssetTypeOption || asset.OptionDetail == nil {
		return decimal.Zero, fmt.Errorf("asset %s is not an option", leg.Ticker)
	}
	return asset.OptionDetail.StrikePrice, nil
}

// legCashDelta is the signed cash effect of executing a leg now:
// credits positive, debits negative.
func legCashDelta(leg StrategyLegInput) decimal.Decimal {
	switch leg.LegType {
	case models.LegTypeBuyStock:
		return leg.Quantity.Mul(leg.Price).Neg()
	case models.LegTypeSellStock:
		return leg.Quantity.Mul(leg.Price)
	case models.LegTypeBuyCall, models.LegTypeBuyPut:
		return leg.Quantity.Mul(leg.Price).Mul(contractSize).Neg()
	case models.LegTypeSellCall, models.LegTypeSellPut:
		return leg.Quantity.Mul(leg.Price).Mul(contractSize)
	}
	return decimal.Zero
}

// legPayoffAt is the profit of a leg at expiry with the underlying at
// price s, net of the premium or price paid/received.
func legPayoffAt(leg previewLeg, s decimal.Decimal) decimal.Decimal {
	in := leg.input
	switch in.LegType {
	case models.LegTypeBuyStock:
		return s.Sub(in.Price).Mul(in.Quantity)
	case models.LegTypeSellStock:
		return in.Price.Sub(s).Mul(in.Quantity)
	}

	intrinsic := decimal.Zero
	switch in.LegType {
	case models.LegTypeBuyCall, models.LegTypeSellCall:
		if s.GreaterThan(leg.strike) {
			intrinsic = s.Sub(leg.strike)
		}
	case models.LegTypeBuyPut, models.LegTypeSellPut:
		if s.LessThan(leg.strike) {
			intrinsic = leg.strike.Sub(s)
		}
	}

	perShare := intrinsic.Sub(in.Price)
	switch in.LegType {
	case models.LegTypeSellCall, models.LegTypeSellPut:
		perShare = in.Price.Sub(intrinsic)
	}
	return perShare.Mul(contractSize).Mul(in.Quantity)
}

// computePayoffProfile evaluates the piecewise-linear expiry payoff of
// the combined legs. The payoff is linear between strikes, so sampling
// at zero, every strike, and two points past the highest kink is enough
// to find extrema, detect unbounded tails, and interpolate breakevens.
func computePayoffProfile(legs []previewLeg) RiskProfile {
	kinks := []decimal.Decimal{decimal.Zero}
	maxRef := decimal.Zero
	for _, leg := range legs {
		if isOptionLeg(leg.input.LegType) {
			kinks = append(kinks, leg.strike)
			if leg.strike.GreaterThan(maxRef) {
				maxRef = leg.strike
			}
		} else if leg.input.Price.GreaterThan(maxRef) {
			maxRef = leg.input.Price
		}
	}
	if maxRef.IsZero() {
		maxRef = decimal.NewFromInt(1)
	}

	far := maxRef.Mul(decimal.NewFromInt(2))
	farther := maxRef.Mul(decimal.NewFromInt(4))
	samples := append(kinks, far, farther)
	sort.Slice(samples, func(i, j int) bool { return samples[i].LessThan(samples[j]) })

	total := func(s decimal.Decimal) decimal.Decimal {
		sum := decimal.Zero
		for _, leg := range legs {
			sum = sum.Add(legPayoffAt(leg, s))
		}
		return sum
	}

	payoffs := make([]decimal.Decimal, len(samples))
	for i, s := range samples {
		payoffs[i] = total(s)
	}

	maxGain := payoffs[0]
	maxLoss := payoffs[0]
	for _, p := range payoffs {
		if p.GreaterThan(maxGain) {
			maxGain = p
		}
		if p.LessThan(maxLoss) {
			maxLoss = p
		}
	}

	profile := RiskProfile{
		BreakEvenPoints: []decimal.Decimal{},
	}

	// Beyond the last kink the payoff is linear, so the slope between
	// the two outermost samples tells whether either tail is unbounded.
	last := len(payoffs) - 1
	tailSlope := payoffs[last].Sub(payoffs[last-1])
	switch tailSlope.Sign() {
	case 1:
		profile.MaxGain = decimal.NullDecimal{}
		profile.MaxLoss = decimal.NewNullDecimal(maxLoss)
	case -1:
		profile.MaxGain = decimal.NewNullDecimal(maxGain)
		profile.MaxLoss = decimal.NullDecimal{}
	default:
		profile.MaxGain = decimal.NewNullDecimal(maxGain)
		profile.MaxLoss = decimal.NewNullDecimal(maxLoss)
	}

	for i := 1; i < len(samples); i++ {
		p1, p2 := payoffs[i-1], payoffs[i]
		if p1.IsZero() {
			profile.BreakEvenPoints = appendUnique(profile.BreakEvenPoints, samples[i-1])
			continue
		}
		if p1.Sign()*p2.Sign() < 0 {
			span := samples[i].Sub(samples[i-1])
			be := samples[i-1].Add(span.Mul(p1.Neg()).Div(p2.Sub(p1)))
			profile.BreakEvenPoints = appendUnique(profile.BreakEvenPoints, be)
		}
	}
	if payoffs[last].IsZero() {
		profile.BreakEvenPoints = appendUnique(profile.BreakEvenPoints, samples[last])
	}

	return profile
}

func appendUnique(points []decimal.Decimal, p decimal.Decimal) []decimal.Decimal {
	for _, existing := range points {
		if existing.Equal(p) {
			return points
		}
	}
	return append(points, p)
}
