// Package risk implements the three order-sizing formulas and the
// min-notional rejection gate a Play's RiskModel drives (spec.md §4.7).
package risk

import (
	"github.com/plife507/TRADE-sub002/internal/play"
)

// SizeInputs is everything a sizing formula needs beyond the RiskModel
// itself: current account state and, for risk_based sizing, the stop
// distance the rule's SL implies.
type SizeInputs struct {
	EquityUSDT           float64
	AvailableBalanceUSDT float64
	MaxLeverage          int
	// StopDistanceFrac is the fractional distance from entry to stop,
	// e.g. 0.02 for a 2% stop. Required only for SizingRiskBased.
	StopDistanceFrac float64
}

// Result is the computed order size plus whether it cleared the
// min-notional gate.
type Result struct {
	NotionalUSDT float64
	Rejected     bool
	Reason       string
}

// Size computes the order notional for the Play's configured sizing model.
// A zero-notional result always bypasses the min-notional gate (spec.md
// §4.7: "signals whose engine-computed size equals zero bypass this gate"),
// since a zero size means no order is submitted at all, not a rejection.
func Size(model play.RiskModel, minNotionalUSDT float64, in SizeInputs) Result {
	var notional float64
	switch model.Sizing {
	case play.SizingPercentEquity:
		notional = sizePercentEquity(model, in)
	case play.SizingRiskBased:
		notional = sizeRiskBased(model, in)
	case play.SizingFixedUSDT:
		notional = model.FixedUSDT
	default:
		return Result{Rejected: true, Reason: "unknown sizing model"}
	}

	if notional == 0 {
		return Result{NotionalUSDT: 0}
	}
	if notional < minNotionalUSDT {
		return Result{NotionalUSDT: notional, Rejected: true, Reason: "below_min_notional"}
	}
	return Result{NotionalUSDT: notional}
}

func sizePercentEquity(model play.RiskModel, in SizeInputs) float64 {
	notional := in.EquityUSDT * model.PercentEquity / 100 * float64(model.Leverage)
	maxNotional := float64(in.MaxLeverage) * in.AvailableBalanceUSDT
	if notional > maxNotional {
		notional = maxNotional
	}
	return notional
}

func sizeRiskBased(model play.RiskModel, in SizeInputs) float64 {
	if in.StopDistanceFrac <= 0 {
		return 0
	}
	riskUSDT := in.EquityUSDT * model.RiskPercent / 100
	return riskUSDT / in.StopDistanceFrac * float64(model.Leverage)
}
