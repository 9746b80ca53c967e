// Package exchange implements the simulated Bybit-style one-way perpetual
// futures exchange the backtesting core trades against: order book, the
// per-bar deterministic processing sequence (mark update, liquidation,
// queued orders, intra-bar TP/SL, funding), and the fee/margin model
// (spec.md §4.6).
package exchange

// Side is a position or order direction. The exchange is one-way mode
// only: a position can be Long or Short, never both at once.
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

func (s Side) Opposite() Side {
	if s == SideLong {
		return SideShort
	}
	return SideLong
}

// OrderType distinguishes the triggering semantics of a resting order.
type OrderType string

const (
	OrderMarket     OrderType = "market"
	OrderLimit      OrderType = "limit"
	OrderStopMarket OrderType = "stop_market"
	OrderStopLimit  OrderType = "stop_limit"
)

// OrderStatus tracks a resting order's lifecycle.
type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusFilled    OrderStatus = "filled"
	StatusCancelled OrderStatus = "cancelled"
	StatusRejected  OrderStatus = "rejected"
)

// Order is a resting instruction in the order book, keyed by ID.
type Order struct {
	ID           int64
	Side         Side
	Type         OrderType
	TriggerPrice float64 // for stop orders: RISES_TO (long stop above) / FALLS_TO (short stop below)
	LimitPrice   float64 // for limit and stop_limit orders
	Qty          float64
	Leverage     int // used only when this order opens a new position
	ReduceOnly   bool
	Status       OrderStatus
	BlockID      string // originating rule block, for audit trails
}

// FillReason is the fixed vocabulary a Fill's Reason is drawn from.
type FillReason string

const (
	ReasonEntry           FillReason = "entry"
	ReasonExitTP          FillReason = "exit_tp"
	ReasonExitSL          FillReason = "exit_sl"
	ReasonExitSignal      FillReason = "exit_signal"
	ReasonExitPartial     FillReason = "exit_partial"
	ReasonExitLiquidation FillReason = "exit_liquidation"
	ReasonExitEndOfData   FillReason = "exit_end_of_data"
)

// Fill records one executed trade against the simulated book.
type Fill struct {
	TradeID    int64
	OrderID    int64
	Side       Side
	Price      float64
	Qty        float64
	FeeUSDT    float64
	ReduceOnly bool
	Reason     FillReason
	TsMs       int64
}

// Ledger is the account's running balance sheet, per spec.md's glossary.
type Ledger struct {
	CashUSDT              float64
	PositionMarginUSDT    float64
	UnrealizedPnLUSDT     float64
	EquityUSDT            float64
	AvailableBalanceUSDT  float64
	MaintenanceMarginUSDT float64
}

// StepResult is what ProcessBar returns for one exec bar: every fill that
// happened during that bar's processing plus the ledger snapshot after.
type StepResult struct {
	TsCloseMs     int64
	MarkPrice     float64
	Fills         []Fill
	Ledger        Ledger
	Liquidated    bool
	FundingPaid   float64
	FundingCharged bool
}

// RejectionReason is attached to a rejected order submission; rejections
// are recorded, never fatal (spec.md §4.6's failure semantics).
type RejectionReason string

const (
	RejectBelowMinNotional RejectionReason = "below_min_notional"
	RejectWouldFlip        RejectionReason = "would_flip_without_reduce_only"
	RejectExceedsLeverage  RejectionReason = "exceeds_max_leverage"
	RejectNoPosition       RejectionReason = "no_position_to_reduce"
)
