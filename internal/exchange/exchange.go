package exchange

import (
	"github.com/plife507/TRADE-sub002/internal/barfeed"
	"github.com/plife507/TRADE-sub002/internal/coreerr"
	"github.com/plife507/TRADE-sub002/internal/play"
)

const fundingIntervalMs = 8 * 3600 * 1000

// Exchange is the simulated one-way perpetual-futures exchange a run trades
// against: one order book, at most one open Position, and a running
// Ledger, advanced one exec bar at a time by ProcessBar.
type Exchange struct {
	cfg      play.AccountConfig
	book     *OrderBook
	position *Position

	cashUSDT   float64
	orderSeq   int64
	tradeSeq   int64
}

// New builds an Exchange seeded with the Play's starting equity.
func New(cfg play.AccountConfig) *Exchange {
	return &Exchange{cfg: cfg, book: newOrderBook(), cashUSDT: cfg.StartingEquityUSDT}
}

func (ex *Exchange) nextOrderID() int64 { ex.orderSeq++; return ex.orderSeq }
func (ex *Exchange) nextTradeID() int64 { ex.tradeSeq++; return ex.tradeSeq }

// Position returns the currently open position, or nil.
func (ex *Exchange) Position() *Position { return ex.position }

// Book returns the order book, for Runner-level cancel/amend.
func (ex *Exchange) Book() *OrderBook { return ex.book }

// Equity returns cash + unrealized P&L at the given mark price.
func (ex *Exchange) Equity(mark float64) float64 {
	eq := ex.cashUSDT
	if ex.position != nil {
		eq += ex.position.UnrealizedPnL(mark)
	}
	return eq
}

func (ex *Exchange) availableBalance(mark float64) float64 {
	eq := ex.Equity(mark)
	if ex.position != nil {
		eq -= ex.position.MarginUSDT
	}
	return eq
}

func (ex *Exchange) ledgerSnapshot(mark float64) Ledger {
	l := Ledger{CashUSDT: ex.cashUSDT}
	if ex.position != nil {
		l.PositionMarginUSDT = ex.position.MarginUSDT
		l.UnrealizedPnLUSDT = ex.position.UnrealizedPnL(mark)
		l.MaintenanceMarginUSDT = ex.position.MaintenanceMargin(mark, ex.cfg.MaintenanceMarginRate)
	}
	l.EquityUSDT = ex.cashUSDT + l.UnrealizedPnLUSDT
	l.AvailableBalanceUSDT = l.EquityUSDT - l.PositionMarginUSDT
	return l
}

func (ex *Exchange) fee(notional, bps float64) float64 { return notional * bps / 10_000 }

// SubmitEntry opens or adds to a position at the current mark, market-style
// (used for immediate rule-triggered entries; stop/limit entries go through
// SubmitResting). Returns a non-empty RejectionReason instead of an error
// for every rejection spec.md §4.6/§7 class as RiskRejection — those never
// abort a run.
func (ex *Exchange) SubmitEntry(side Side, qtyUSDTNotional, mark float64, leverage int, blockID string, tsMs int64) (*Fill, RejectionReason, error) {
	if leverage > ex.cfg.MaxLeverage {
		return nil, RejectExceedsLeverage, nil
	}
	if qtyUSDTNotional < ex.cfg.MinNotionalUSDT {
		return nil, RejectBelowMinNotional, nil
	}
	if ex.position != nil && ex.position.Side != side {
		return nil, RejectWouldFlip, nil
	}

	qty := qtyUSDTNotional / mark
	feeUSDT := ex.fee(qtyUSDTNotional, ex.cfg.TakerFeeBps)
	margin := EntryMarginUSDT(qtyUSDTNotional, leverage)

	if ex.position == nil {
		ex.position = &Position{Side: side, EntryPrice: mark, Qty: qty, Leverage: leverage, MarginUSDT: margin, OpenedAtMs: tsMs}
	} else {
		// Averaging into an existing same-side position: blend entry price
		// by notional weight, sum quantity and margin.
		totalQty := ex.position.Qty + qty
		ex.position.EntryPrice = (ex.position.EntryPrice*ex.position.Qty + mark*qty) / totalQty
		ex.position.Qty = totalQty
		ex.position.MarginUSDT += margin
	}
	ex.position.FeesPaidUSDT += feeUSDT
	ex.cashUSDT -= feeUSDT

	return &Fill{TradeID: ex.nextTradeID(), Side: side, Price: mark, Qty: qty, FeeUSDT: feeUSDT, Reason: ReasonEntry, TsMs: tsMs}, "", nil
}

// SubmitExit reduces or closes the open position by percent (0,100], always
// reduce-only. Returns RejectNoPosition if there is nothing to reduce.
func (ex *Exchange) SubmitExit(percent float64, mark float64, reason FillReason, tsMs int64) (*Fill, RejectionReason, error) {
	if ex.position == nil {
		return nil, RejectNoPosition, nil
	}
	if percent <= 0 || percent > 100 {
		return nil, "", coreerr.Configuration("exit percent %v out of (0,100]", percent)
	}
	closeQty := ex.position.Qty * percent / 100
	fill, err := ex.closePosition(closeQty, mark, reason, tsMs)
	if err != nil {
		return nil, "", err
	}
	return fill, "", nil
}

func (ex *Exchange) closePosition(closeQty, mark float64, reason FillReason, tsMs int64) (*Fill, error) {
	p := ex.position
	if closeQty > p.Qty {
		closeQty = p.Qty // reduce-only clamp: never close more than the open position
	}
	notional := closeQty * mark
	feeUSDT := 0.0
	if reason != ReasonExitLiquidation {
		feeUSDT = ex.fee(notional, ex.cfg.TakerFeeBps)
	}
	p.FeesPaidUSDT += feeUSDT

	pnlPerUnit := mark - p.EntryPrice
	if p.Side == SideShort {
		pnlPerUnit = -pnlPerUnit
	}
	realizedPnL := pnlPerUnit * closeQty
	marginReleased := p.MarginUSDT * (closeQty / p.Qty)

	ex.cashUSDT += realizedPnL + marginReleased - feeUSDT

	fill := &Fill{TradeID: ex.nextTradeID(), Side: p.Side.Opposite(), Price: mark, Qty: closeQty, FeeUSDT: feeUSDT, ReduceOnly: true, Reason: reason, TsMs: tsMs}

	if closeQty >= p.Qty {
		ex.position = nil
	} else {
		p.MarginUSDT -= marginReleased
		p.Qty -= closeQty
	}
	return fill, nil
}

// ProcessBar runs the deterministic per-bar sequence: intrabar liquidation
// scan, queued-order scan, intra-bar TP/SL, funding, a final solvency check,
// ledger snapshot (spec.md §4.6). Liquidation is evaluated first and wins:
// a 1-minute wick through the liquidation price closes the position before
// any queued order or TP/SL gets a chance to fill, even if the exec bar
// itself closes clear of the trigger.
func (ex *Exchange) ProcessBar(mf *barfeed.MultiFeed, execIdx int) (*StepResult, error) {
	exec := mf.Exec()
	bar := exec.Bar(execIdx)
	mark := bar.Close
	res := &StepResult{TsCloseMs: bar.TsCloseMs, MarkPrice: mark}

	startIdx, endIdx := mf.MinuteBarsWithin(bar.TsOpenMs, bar.TsCloseMs)
	quote := mf.Quote()

	// Step 1: intrabar liquidation scan against the 1-minute low (long) or
	// high (short), using the price-distance trigger rather than waiting
	// for the bar-close mark.
	if ex.position != nil {
		trigger := ex.position.LiquidationTriggerPrice(ex.cfg.MaintenanceMarginRate)
		for mIdx := startIdx; mIdx < endIdx; mIdx++ {
			mb := quote.Bar(mIdx)
			var hit bool
			if ex.position.Side == SideLong {
				hit = mb.Low <= trigger
			} else {
				hit = mb.High >= trigger
			}
			if !hit {
				continue
			}
			fill, err := ex.liquidate(mb.TsCloseMs)
			if err != nil {
				return nil, err
			}
			res.Fills = append(res.Fills, *fill)
			res.Liquidated = true
			res.Ledger = ex.ledgerSnapshot(mark)
			return res, nil
		}
	}

	// Step 2: queued stop/limit orders, fixed submission order, first
	// triggering minute bar wins per order.
	for _, o := range ex.book.Pending() {
		for mIdx := startIdx; mIdx < endIdx; mIdx++ {
			mb := quote.Bar(mIdx)
			if triggered, fillPrice := orderTriggers(o, mb); triggered {
				fill := ex.fillRestingOrder(o, fillPrice, mb.TsCloseMs)
				res.Fills = append(res.Fills, fill)
				break
			}
		}
	}

	// Step 3: intra-bar TP/SL scan, SL wins on simultaneous trigger.
	if ex.position != nil {
		for mIdx := startIdx; mIdx < endIdx; mIdx++ {
			mb := quote.Bar(mIdx)
			slHit, tpHit := tpSlHits(ex.position, mb)
			if slHit {
				fill, err := ex.closePosition(ex.position.Qty, ex.position.SLPrice, ReasonExitSL, mb.TsCloseMs)
				if err != nil {
					return nil, err
				}
				res.Fills = append(res.Fills, *fill)
				break
			}
			if tpHit {
				fill, err := ex.closePosition(ex.position.Qty, ex.position.TPPrice, ReasonExitTP, mb.TsCloseMs)
				if err != nil {
					return nil, err
				}
				res.Fills = append(res.Fills, *fill)
				break
			}
		}
	}

	// Step 4: funding at the 8-hour boundary.
	if ex.position != nil && crossesFundingBoundary(bar.TsOpenMs, bar.TsCloseMs) {
		res.FundingCharged = true
		res.FundingPaid = ex.applyFunding(mark)
	}

	// Step 5: a funding charge can itself push equity below the
	// maintenance floor even though price never crossed the trigger; catch
	// that here against the bar-close mark before snapshotting the ledger.
	if ex.position != nil {
		equity := ex.Equity(mark)
		if ex.position.IsLiquidated(mark, equity, ex.cfg.MaintenanceMarginRate) {
			fill, err := ex.liquidate(bar.TsCloseMs)
			if err != nil {
				return nil, err
			}
			res.Fills = append(res.Fills, *fill)
			res.Liquidated = true
		}
	}

	res.Ledger = ex.ledgerSnapshot(mark)
	return res, nil
}

// liquidate closes the open position at its bankruptcy price.
func (ex *Exchange) liquidate(tsMs int64) (*Fill, error) {
	bankruptcy := ex.position.BankruptcyPrice(ex.cfg.TakerFeeBps)
	fill, err := ex.closePosition(ex.position.Qty, bankruptcy, ReasonExitLiquidation, tsMs)
	if err != nil {
		return nil, coreerr.ExchangeWrap(err, "liquidation close failed")
	}
	return fill, nil
}

// ForceClose closes any open position at mark with ReasonExitEndOfData. It
// is a no-op returning (nil, nil) when there is nothing open, so callers can
// invoke it unconditionally at the end of a run.
func (ex *Exchange) ForceClose(mark float64, tsMs int64) (*Fill, error) {
	if ex.position == nil {
		return nil, nil
	}
	return ex.closePosition(ex.position.Qty, mark, ReasonExitEndOfData, tsMs)
}

func crossesFundingBoundary(tsOpenMs, tsCloseMs int64) bool {
	return tsCloseMs/fundingIntervalMs > tsOpenMs/fundingIntervalMs
}

// applyFunding charges (or pays) funding on the position's notional at the
// account's configured rate: notional * rate, sign flipped for shorts, so a
// positive rate charges longs and pays shorts (spec.md §1's documented
// funding formula).
func (ex *Exchange) applyFunding(mark float64) float64 {
	notional := ex.position.Notional(mark)
	sign := 1.0
	if ex.position.Side == SideShort {
		sign = -1.0
	}
	pnl := -notional * ex.cfg.FundingRate * sign
	ex.cashUSDT += pnl
	ex.position.FundingAccruedUSDT += pnl
	return pnl
}

// exitReasonForRestingOrder classes a reduce-only resting order fill by its
// economic role: a stop order protects against an adverse move, a limit
// order locks in a favourable one.
func exitReasonForRestingOrder(t OrderType) FillReason {
	switch t {
	case OrderStopMarket, OrderStopLimit:
		return ReasonExitSL
	default:
		return ReasonExitTP
	}
}

func (ex *Exchange) fillRestingOrder(o *Order, fillPrice float64, tsMs int64) Fill {
	o.Status = StatusFilled

	if o.ReduceOnly {
		if ex.position == nil {
			// The position closed through some other path (TP/SL,
			// liquidation) before this resting order got its turn; nothing
			// left to reduce.
			o.Status = StatusCancelled
			return Fill{OrderID: o.ID, Side: o.Side, Price: fillPrice, ReduceOnly: true, Reason: exitReasonForRestingOrder(o.Type), TsMs: tsMs}
		}
		closeQty := o.Qty
		if closeQty > ex.position.Qty {
			closeQty = ex.position.Qty
		}
		fill, _ := ex.closePosition(closeQty, fillPrice, exitReasonForRestingOrder(o.Type), tsMs)
		return *fill
	}

	feeUSDT := ex.fee(o.Qty*fillPrice, ex.cfg.TakerFeeBps)
	margin := EntryMarginUSDT(o.Qty*fillPrice, o.Leverage)
	if ex.position == nil {
		ex.position = &Position{Side: o.Side, EntryPrice: fillPrice, Qty: o.Qty, Leverage: o.Leverage, MarginUSDT: margin, OpenedAtMs: tsMs}
	} else {
		totalQty := ex.position.Qty + o.Qty
		ex.position.EntryPrice = (ex.position.EntryPrice*ex.position.Qty + fillPrice*o.Qty) / totalQty
		ex.position.Qty = totalQty
		ex.position.MarginUSDT += margin
	}
	ex.position.FeesPaidUSDT += feeUSDT
	ex.cashUSDT -= feeUSDT
	return Fill{TradeID: ex.nextTradeID(), OrderID: o.ID, Side: o.Side, Price: fillPrice, Qty: o.Qty, FeeUSDT: feeUSDT, ReduceOnly: false, Reason: ReasonEntry, TsMs: tsMs}
}

// orderTriggers reports whether a resting order triggers within minute bar
// mb, and the price it would fill at.
func orderTriggers(o *Order, mb barfeed.Bar) (bool, float64) {
	switch o.Type {
	case OrderStopMarket, OrderStopLimit:
		if o.Side == SideLong {
			if mb.High >= o.TriggerPrice {
				if o.Type == OrderStopLimit {
					return true, o.LimitPrice
				}
				return true, mb.Open
			}
		} else {
			if mb.Low <= o.TriggerPrice {
				if o.Type == OrderStopLimit {
					return true, o.LimitPrice
				}
				return true, mb.Open
			}
		}
	case OrderLimit:
		if o.Side == SideLong && mb.Low <= o.LimitPrice {
			return true, o.LimitPrice
		}
		if o.Side == SideShort && mb.High >= o.LimitPrice {
			return true, o.LimitPrice
		}
	}
	return false, 0
}

func tpSlHits(p *Position, mb barfeed.Bar) (slHit, tpHit bool) {
	if p.Side == SideLong {
		slHit = p.HasSL && mb.Low <= p.SLPrice
		tpHit = p.HasTP && mb.High >= p.TPPrice
	} else {
		slHit = p.HasSL && mb.High >= p.SLPrice
		tpHit = p.HasTP && mb.Low <= p.TPPrice
	}
	return
}

// SubmitResting places a stop/limit order in the book for later bars'
// queued-order processing.
func (ex *Exchange) SubmitResting(side Side, typ OrderType, triggerPrice, limitPrice, qty float64, leverage int, reduceOnly bool, blockID string) *Order {
	o := &Order{ID: ex.nextOrderID(), Side: side, Type: typ, TriggerPrice: triggerPrice, LimitPrice: limitPrice, Qty: qty, Leverage: leverage, ReduceOnly: reduceOnly, Status: StatusPending, BlockID: blockID}
	ex.book.add(o)
	return o
}

// SetStopLossTakeProfit arms the open position's ROI-derived SL/TP prices.
func (ex *Exchange) SetStopLossTakeProfit(slPct, tpPct float64, hasSL, hasTP bool) {
	if ex.position == nil {
		return
	}
	if hasSL {
		ex.position.SLPrice = ROIStopPrice(ex.position.EntryPrice, slPct, ex.position.Leverage, ex.position.Side, false)
		ex.position.HasSL = true
	}
	if hasTP {
		ex.position.TPPrice = ROIStopPrice(ex.position.EntryPrice, tpPct, ex.position.Leverage, ex.position.Side, true)
		ex.position.HasTP = true
	}
}
