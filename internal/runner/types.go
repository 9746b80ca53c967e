package runner

import (
	"github.com/plife507/TRADE-sub002/internal/exchange"
	"github.com/plife507/TRADE-sub002/internal/rules"
)

// EquityPoint is one sample of the equity curve artifact, recorded once per
// processed exec bar regardless of whether any order was submitted that bar.
type EquityPoint struct {
	TsCloseMs   int64
	EquityUSDT  float64
	MarkPrice   float64
	HasPosition bool
}

// RejectedIntent records a risk/exchange rejection that never aborts a run,
// kept for the result artifact's audit trail (spec.md §7 KindRisk: "never
// fatal; recorded").
type RejectedIntent struct {
	TsCloseMs int64
	BlockID   string
	Action    string
	Reason    string
}

// BarResult is everything ProcessBar produced for one exec bar: the rule
// intents the minute sub-loop emitted, the exchange's step outcome, and any
// risk/exchange rejections along the way.
type BarResult struct {
	ExecIdx    int
	Intents    []rules.Intent
	Step       *exchange.StepResult
	Fills      []exchange.Fill // fills from rule-triggered entries/exits, not StepResult's queued/TP-SL fills
	Rejections []RejectedIntent
	Equity     EquityPoint
}

// RunResult is the full output of Run: one BarResult per processed exec bar
// (post-warmup), plus the equity curve and every fill across the run.
type RunResult struct {
	Bars          []*BarResult
	EquityCurve   []EquityPoint
	Fills         []exchange.Fill
	Rejections    []RejectedIntent
	WarmupBars    int
	FirstExecIdx  int
	LastExecIdx   int
}
