// Package runner drives the per-bar trading loop: warmup, incremental
// structure updates, exchange stepping, rule evaluation, and risk sizing,
// all behind the single BarProcessor.ProcessBar method spec.md §4.8
// requires both the offline backtest loop and the live adapter to share —
// "no separate live decision path exists anywhere in the module."
package runner

import (
	"context"

	"github.com/plife507/TRADE-sub002/internal/barfeed"
	"github.com/plife507/TRADE-sub002/internal/coreerr"
	"github.com/plife507/TRADE-sub002/internal/exchange"
	"github.com/plife507/TRADE-sub002/internal/indicator"
	"github.com/plife507/TRADE-sub002/internal/play"
	"github.com/plife507/TRADE-sub002/internal/risk"
	"github.com/plife507/TRADE-sub002/internal/rules"
	"github.com/plife507/TRADE-sub002/internal/structure"
)

// BarProcessor owns a Play's entire wired data plane and exchange for one
// run and exposes the one per-bar entry point every caller — offline replay
// or the live adapter — must go through.
type BarProcessor struct {
	p    *play.Play
	mf   *barfeed.MultiFeed
	prog *rules.Program

	structs *structure.Engine
	eval    *rules.Evaluator
	ex      *exchange.Exchange

	warmupBars int
}

// New builds a BarProcessor: compiles the Play's rule blocks, computes every
// declared indicator column over its declared role's Feed, constructs the
// structure Engine over the exec Feed, and derives the overall warmup window
// as the max of indicator warmup, structure warmup, and DSL window warmup
// (spec.md §4.8).
func New(p *play.Play, mf *barfeed.MultiFeed) (*BarProcessor, error) {
	if err := prepareFeeds(mf, p); err != nil {
		return nil, err
	}

	structDecls := make([]structure.Declaration, len(p.Structures))
	for i, s := range p.Structures {
		structDecls[i] = structure.Declaration{Name: s.Name, Kind: s.Kind, Params: s.Params, DependsOn: s.DependsOn}
	}
	structs, err := structure.Build(mf.Exec(), structDecls)
	if err != nil {
		return nil, err
	}

	prog, err := rules.Compile(p)
	if err != nil {
		return nil, err
	}

	indWarmup, err := IndicatorWarmupBars(p.Features)
	if err != nil {
		return nil, err
	}
	warmup := maxInt(indWarmup, structure.WarmupBars(structDecls))
	warmup = maxInt(warmup, prog.MaxWindowBars())

	bp := &BarProcessor{
		p:          p,
		mf:         mf,
		prog:       prog,
		structs:    structs,
		eval:       rules.NewEvaluator(prog, mf, structs, p.Timeframes),
		ex:         exchange.New(p.Account),
		warmupBars: warmup,
	}
	return bp, nil
}

// prepareFeeds computes every declared indicator column on its declared
// role's Feed, grouped by role so indicator.Compute's own deterministic
// (key-sorted) ordering applies within each Feed independently.
func prepareFeeds(mf *barfeed.MultiFeed, p *play.Play) error {
	byRole := map[barfeed.Role][]indicator.Declaration{}
	for _, f := range p.Features {
		role := barfeed.Role(f.Role)
		if role == "" {
			role = barfeed.RoleExec
		}
		byRole[role] = append(byRole[role], indicator.Declaration{
			Key: f.Key, Kind: indicator.Kind(f.Kind), Params: f.Params, Input: f.Input,
		})
	}
	for role, decls := range byRole {
		feed := mf.Feed(role)
		if feed == nil {
			return coreerr.Configuration("feature declared on undeclared role %q", role)
		}
		if err := indicator.Compute(feed, decls); err != nil {
			return err
		}
	}
	return nil
}

// IndicatorWarmupBars is the max, across every declared feature, of that
// feature's registry warmup formula — the "indicator warmup" term in the
// overall warmup calculation (spec.md §4.8), exported so preflight can
// compute the same figure before a BarProcessor is ever built.
func IndicatorWarmupBars(features []play.FeatureDecl) (int, error) {
	max := 0
	for _, f := range features {
		spec, err := indicator.Lookup(indicator.Kind(f.Kind))
		if err != nil {
			return 0, err
		}
		if n := spec.Warmup(f.Params); n > max {
			max = n
		}
	}
	return max, nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Run drives the full offline backtest: it advances the structure Engine
// through the warmup window without evaluating rules or trading, then calls
// ProcessBar once per remaining exec bar in order.
func (bp *BarProcessor) Run(ctx context.Context) (*RunResult, error) {
	exec := bp.mf.Exec()
	n := exec.Len()
	if bp.warmupBars >= n {
		return nil, coreerr.Preflight("warmup window of %d bars consumes the entire %d-bar run", bp.warmupBars, n)
	}

	for i := 0; i < bp.warmupBars; i++ {
		if err := bp.structs.Update(i, exec.Bar(i)); err != nil {
			return nil, err
		}
	}

	result := &RunResult{WarmupBars: bp.warmupBars, FirstExecIdx: bp.warmupBars, LastExecIdx: n - 1}
	for i := bp.warmupBars; i < n; i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		br, err := bp.ProcessBar(ctx, i)
		if err != nil {
			return nil, err
		}
		result.Bars = append(result.Bars, br)
		result.EquityCurve = append(result.EquityCurve, br.Equity)
		result.Rejections = append(result.Rejections, br.Rejections...)
		if br.Step != nil {
			result.Fills = append(result.Fills, br.Step.Fills...)
		}
		result.Fills = append(result.Fills, br.Fills...)
	}

	if pos := bp.ex.Position(); pos != nil {
		lastBar := exec.Bar(n - 1)
		fill, err := bp.ex.ForceClose(lastBar.Close, lastBar.TsCloseMs)
		if err != nil {
			return nil, err
		}
		if fill != nil {
			result.Fills = append(result.Fills, *fill)
			result.EquityCurve = append(result.EquityCurve, bp.equityPoint(lastBar.TsCloseMs, lastBar.Close))
		}
	}
	return result, nil
}

// ProcessBar runs the six-step bar sequence for one closed exec bar: update
// incremental structures, step the exchange (liquidation, queued orders,
// intra-bar TP/SL, funding), then scan contained 1-minute bars evaluating
// rules at most once per minute, submitting at most one entry per exec bar
// (spec.md §4.8) and recording the resulting equity point. Both the offline
// Run loop and the live adapter call this exact method per exec bar.
func (bp *BarProcessor) ProcessBar(ctx context.Context, execIdx int) (*BarResult, error) {
	exec := bp.mf.Exec()
	bar := exec.Bar(execIdx)

	if err := bp.structs.Update(execIdx, bar); err != nil {
		return nil, err
	}

	step, err := bp.ex.ProcessBar(bp.mf, execIdx)
	if err != nil {
		return nil, err
	}

	br := &BarResult{ExecIdx: execIdx, Step: step}

	if step.Liquidated {
		// A liquidation this bar pre-empts the rest of the step, including
		// rule evaluation — there is no position left to act on.
		br.Equity = bp.equityPoint(bar.TsCloseMs, step.MarkPrice)
		return br, nil
	}

	startIdx, endIdx := bp.mf.MinuteBarsWithin(bar.TsOpenMs, bar.TsCloseMs)
	quote := bp.mf.Quote()

	entrySubmittedThisBar := false
	for mIdx := startIdx; mIdx < endIdx && !entrySubmittedThisBar; mIdx++ {
		mb := quote.Bar(mIdx)
		intents, err := bp.eval.Eval(execIdx, mb.Close, mb.TsCloseMs)
		if err != nil {
			return nil, err
		}
		for _, intent := range intents {
			br.Intents = append(br.Intents, intent)
			fill, rejected, err := bp.applyIntent(intent, mb.Close, mb.TsCloseMs)
			if err != nil {
				return nil, err
			}
			if rejected != nil {
				br.Rejections = append(br.Rejections, *rejected)
			}
			if fill != nil {
				br.Fills = append(br.Fills, *fill)
			}
			if fill != nil && isEntryAction(intent.Action) {
				entrySubmittedThisBar = true
				break // at most one entry per exec bar: stop scanning further minutes
			}
		}
	}

	br.Equity = bp.equityPoint(bar.TsCloseMs, step.MarkPrice)
	return br, nil
}

func (bp *BarProcessor) equityPoint(tsCloseMs int64, mark float64) EquityPoint {
	return EquityPoint{
		TsCloseMs:   tsCloseMs,
		EquityUSDT:  bp.ex.Equity(mark),
		MarkPrice:   mark,
		HasPosition: bp.ex.Position() != nil,
	}
}

func isEntryAction(action string) bool {
	return action == "entry_long" || action == "entry_short"
}

// applyIntent resolves a risk-sized order from an entry intent, or a
// reduce-only exit from an exit intent, and submits it to the exchange. A
// nil fill with a nil rejection means the intent was a legitimate no-op (a
// zero-size signal, or no_action) rather than a failure.
func (bp *BarProcessor) applyIntent(intent rules.Intent, mark float64, tsMs int64) (fill *exchange.Fill, rejected *RejectedIntent, err error) {
	switch intent.Action {
	case "entry_long", "entry_short":
		side := exchange.SideLong
		if intent.Action == "entry_short" {
			side = exchange.SideShort
		}
		if !positionSideAllowed(bp.p.Policy.Side, side) {
			return nil, &RejectedIntent{TsCloseMs: tsMs, BlockID: intent.BlockID, Action: intent.Action, Reason: "side_not_allowed"}, nil
		}

		stopFrac := 0.0
		if bp.p.Risk.StopLossPct > 0 && bp.p.Risk.Leverage > 0 {
			stopFrac = bp.p.Risk.StopLossPct / 100 / float64(bp.p.Risk.Leverage)
		}
		sizeRes := risk.Size(bp.p.Risk, bp.p.Account.MinNotionalUSDT, risk.SizeInputs{
			EquityUSDT:           bp.ex.Equity(mark),
			AvailableBalanceUSDT: bp.availableBalance(mark),
			MaxLeverage:          bp.p.Account.MaxLeverage,
			StopDistanceFrac:     stopFrac,
		})
		if sizeRes.Rejected {
			return nil, &RejectedIntent{TsCloseMs: tsMs, BlockID: intent.BlockID, Action: intent.Action, Reason: sizeRes.Reason}, nil
		}
		if sizeRes.NotionalUSDT == 0 {
			return nil, nil, nil
		}

		f, reason, err := bp.ex.SubmitEntry(side, sizeRes.NotionalUSDT, mark, bp.p.Risk.Leverage, intent.BlockID, tsMs)
		if err != nil {
			return nil, nil, err
		}
		if reason != "" {
			return nil, &RejectedIntent{TsCloseMs: tsMs, BlockID: intent.BlockID, Action: intent.Action, Reason: string(reason)}, nil
		}
		bp.ex.SetStopLossTakeProfit(bp.p.Risk.StopLossPct, bp.p.Risk.TakeProfitPct, bp.p.Risk.StopLossPct > 0, bp.p.Risk.TakeProfitPct > 0)
		return f, nil, nil

	case "exit_long", "exit_short", "exit_all":
		pct := intent.Percent
		if pct <= 0 {
			pct = 100
		}
		exitReason := exchange.ReasonExitSignal
		if pct < 100 {
			exitReason = exchange.ReasonExitPartial
		}
		f, reason, err := bp.ex.SubmitExit(pct, mark, exitReason, tsMs)
		if err != nil {
			return nil, nil, err
		}
		if reason != "" {
			return nil, &RejectedIntent{TsCloseMs: tsMs, BlockID: intent.BlockID, Action: intent.Action, Reason: string(reason)}, nil
		}
		return f, nil, nil

	case "no_action":
		return nil, nil, nil

	default:
		return nil, nil, coreerr.Evaluation("unknown intent action %q", intent.Action)
	}
}

func (bp *BarProcessor) availableBalance(mark float64) float64 {
	eq := bp.ex.Equity(mark)
	if pos := bp.ex.Position(); pos != nil {
		eq -= pos.MarginUSDT
	}
	return eq
}

func positionSideAllowed(policy string, side exchange.Side) bool {
	switch policy {
	case "long_only":
		return side == exchange.SideLong
	case "short_only":
		return side == exchange.SideShort
	default: // "long_short" or unset
		return true
	}
}
