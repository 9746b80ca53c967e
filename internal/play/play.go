// Package play defines the consumed shape of a strategy specification, per
// spec.md §3. The YAML surface that produces this structure is a
// collaborator outside core scope (spec.md §1); the core only ever reads an
// already-parsed Play value, and the Play is immutable for the life of a
// run — the engine owns all derived state.
package play

// PositionPolicy constrains which sides a Play may hold and how it exits.
type PositionPolicy struct {
	Side     string // "long_only" | "short_only" | "long_short"
	ExitMode string // "sl_tp_only" | "signal" | "first_hit"
}

// AccountConfig is the account-level simulation configuration.
type AccountConfig struct {
	StartingEquityUSDT float64
	MaxLeverage         int
	MarginMode          string // "isolated" | "cross"
	TakerFeeBps         float64
	MakerFeeBps         float64
	SlippageBps         float64
	MaintenanceMarginRate float64
	MinNotionalUSDT     float64

	// FundingRate is the fractional rate (e.g. 0.0001 for 1bps) applied to
	// notional at each 8-hour funding boundary a position is held through.
	// A positive rate charges longs and pays shorts, matching Bybit's sign
	// convention for perpetual funding.
	FundingRate float64
}

// FeatureDecl is an indicator declaration at Play granularity: kind,
// parameterised key (e.g. "ema_20"), and role/timeframe it is computed on.
type FeatureDecl struct {
	Key    string
	Kind   string
	Role   string
	Params map[string]float64
	Input  string
}

// StructureDecl is a structure instance declaration at Play granularity.
type StructureDecl struct {
	Name      string
	Kind      string
	Params    map[string]float64
	DependsOn []string
}

// SizingModel names one of the three risk-sizing formulas in spec.md §4.7.
type SizingModel string

const (
	SizingPercentEquity SizingModel = "percent_equity"
	SizingRiskBased     SizingModel = "risk_based"
	SizingFixedUSDT     SizingModel = "fixed_usdt"
)

// RiskModel is the Play's stop-loss/take-profit/sizing configuration.
type RiskModel struct {
	Sizing           SizingModel
	PercentEquity    float64 // for SizingPercentEquity: pct of equity
	RiskPercent      float64 // for SizingRiskBased: pct of equity risked
	FixedUSDT        float64 // for SizingFixedUSDT
	StopLossPct      float64 // ROI-based stop loss, percent of margin
	TakeProfitPct    float64 // ROI-based take profit, percent of margin
	Leverage         int
}

// Play is the immutable strategy specification the engine consumes.
type Play struct {
	ID      string
	Version string
	Symbol  string

	Account AccountConfig

	// Timeframes maps role name ("exec","htf","mtf") to a timeframe string
	// like "1m", "1h". The exec timeframe must be present and be the
	// finest declared timeframe (spec.md §3 MultiFeed).
	Timeframes map[string]string

	Features   []FeatureDecl
	Structures []StructureDecl
	Policy     PositionPolicy
	Risk       RiskModel

	// Blocks are the compiled entry/exit rule blocks; see package rules
	// for the AST they parse into. Declared in the order they must
	// evaluate, per the determinism contract in spec.md §4.8.
	Blocks []RuleBlockSource
}

// RuleBlockSource is the parsed-but-not-yet-compiled shape of one rule
// block, produced by the (out-of-scope) DSL surface. Package rules compiles
// this into an AST.
type RuleBlockSource struct {
	ID    string
	Cases []RuleCaseSource
	Else  []IntentSource
}

// RuleCaseSource is one `when -> emit` case within a block.
type RuleCaseSource struct {
	When ExprSource
	Emit []IntentSource
}

// IntentSource is one emitted trading intent.
type IntentSource struct {
	Action   string // "entry_long" | "entry_short" | "exit_long" | "exit_short" | "exit_all" | "no_action"
	Percent  float64
	Metadata map[string]MetaValue
}

// MetaValue is either a static scalar or a dynamic feature-bound reference,
// resolved at emit time by the rules evaluator.
type MetaValue struct {
	Static      any
	FeatureRef  string // non-empty means "resolve this Snapshot path at emit time"
}

// ExprSource is the untyped expression tree the (out-of-scope) parser
// produces; package rules compiles it into the typed AST in spec.md §4.5.
// Using `any` here keeps this package decoupled from the parser's concrete
// syntax while still being a single, stable interface boundary.
type ExprSource struct {
	NodeKind string // "cond" | "all" | "any" | "not" | "holds_for" | "occurred_within" | "count_true" | "holds_for_duration" | "occurred_within_duration" | "count_true_duration" | "setup_ref"
	// Cond fields
	LHS, RHS, Tol string
	Op            string
	// Boolean composition
	Children []ExprSource
	// Window fields
	Bars       int
	DurationMs int64
	MinTrue    int
	AnchorTF   string
	Expr       *ExprSource
	// SetupRef
	RefID string
}
