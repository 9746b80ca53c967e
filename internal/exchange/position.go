package exchange

import "math"

// Position is the account's single open position; one-way mode means at
// most one Position exists at a time.
type Position struct {
	Side       Side
	EntryPrice float64
	Qty        float64
	Leverage   int
	MarginUSDT float64
	SLPrice    float64
	TPPrice    float64
	HasSL      bool
	HasTP      bool
	OpenedAtMs int64

	// FundingAccruedUSDT and FeesPaidUSDT are running totals over the
	// position's life, carried across partial closes so a final close
	// still reports the full cost of holding it.
	FundingAccruedUSDT float64
	FeesPaidUSDT        float64
}

// Notional returns the position's current notional value in USDT.
func (p *Position) Notional(mark float64) float64 {
	return p.Qty * mark
}

// UnrealizedPnL returns the position's floating P&L at the given mark
// price, positive for profitable longs/shorts, negative otherwise.
func (p *Position) UnrealizedPnL(mark float64) float64 {
	diff := mark - p.EntryPrice
	if p.Side == SideShort {
		diff = -diff
	}
	return diff * p.Qty
}

// MaintenanceMargin returns the maintenance margin requirement for the
// position's current notional at mark.
func (p *Position) MaintenanceMargin(mark float64, mmr float64) float64 {
	return p.Notional(mark) * mmr
}

// BankruptcyPrice computes the price at which the position's equity hits
// exactly zero once the closing (taker) fee is absorbed into the price
// itself, so liquidation charges no separate fee (spec.md §4.6).
//
//	long:  bankruptcy = entry * (leverage-1) / (leverage * (1 - taker_bps/10000))
//	short: bankruptcy = entry * (leverage+1) / (leverage * (1 + taker_bps/10000))
func (p *Position) BankruptcyPrice(takerFeeBps float64) float64 {
	feeFrac := takerFeeBps / 10_000
	lev := float64(p.Leverage)
	switch p.Side {
	case SideLong:
		return p.EntryPrice * (lev - 1) / (lev * (1 - feeFrac))
	default:
		return p.EntryPrice * (lev + 1) / (lev * (1 + feeFrac))
	}
}

// LiquidationTriggerPrice computes the mark price at which equity falls
// below the maintenance margin floor, i.e. the price liquidation fires at
// (distinct from, and always inside, the bankruptcy price). ProcessBar scans
// the 1-minute bars contained in an exec bar against this price so
// liquidation fires on an intrabar wick even if the bar closes clear of it.
func (p *Position) LiquidationTriggerPrice(mmr float64) float64 {
	lev := float64(p.Leverage)
	switch p.Side {
	case SideLong:
		return p.EntryPrice * (1 - (1/lev - mmr))
	default:
		return p.EntryPrice * (1 + (1/lev - mmr))
	}
}

// IsLiquidated reports whether equity has fallen below the
// maintenance margin floor at the given mark price (Bybit-style:
// equity_floor = position_maintenance_margin; liq when equity < floor).
func (p *Position) IsLiquidated(mark, equity, mmr float64) bool {
	floor := p.MaintenanceMargin(mark, mmr)
	return equity < floor
}

// ROIStopPrice translates an ROI-expressed stop-loss/take-profit percentage
// of margin into an absolute price move, per spec.md §4.6's "critical" ROI
// math: entry * (pct/100) / leverage, so the ROI loss at stop is exactly
// the configured percentage regardless of leverage. pct is positive for
// both SL and TP; the direction of the move follows from side and
// isTakeProfit.
func ROIStopPrice(entry float64, pct float64, leverage int, side Side, isTakeProfit bool) float64 {
	move := entry * (pct / 100) / float64(leverage)
	dir := 1.0
	if side == SideShort {
		dir = -1.0
	}
	if !isTakeProfit {
		dir = -dir // stop-loss moves against the position, take-profit with it
	}
	return entry + dir*move
}

// EntryMarginUSDT returns the initial margin required to open a position
// of the given notional at leverage.
func EntryMarginUSDT(notionalUSDT float64, leverage int) float64 {
	if leverage <= 0 {
		return math.Inf(1)
	}
	return notionalUSDT / float64(leverage)
}
