package artifact

import (
	"encoding/json"
	"math"
	"os"
	"sort"

	"github.com/montanaflynn/stats"

	"github.com/plife507/TRADE-sub002/internal/exchange"
	"github.com/plife507/TRADE-sub002/internal/play"
	"github.com/plife507/TRADE-sub002/internal/runner"
)

const barsPerYear = 365 * 24 * 60 // 1-minute-equivalent annualization base, applied as sqrt(barsPerYear) whatever the run's exec timeframe

// Trade is one closed round trip: one or more entry fills opening a
// position, followed by one or more reduce-only fills that bring it back
// to flat. result.go reconciles these from the run's raw fill list so
// result.json's trade-level statistics and trades.parquet's rows share one
// source of truth.
type Trade struct {
	Side        string  `json:"side"`
	EntryTsMs   int64   `json:"entry_ts_ms"`
	ExitTsMs    int64   `json:"exit_ts_ms"`
	EntryPrice  float64 `json:"entry_price"`
	ExitPrice   float64 `json:"exit_price"`
	Qty         float64 `json:"qty"`
	PnLUSDT     float64 `json:"pnl_usdt"`
	FeesUSDT    float64 `json:"fees_usdt"`
	MAEUSDT     float64 `json:"mae_usdt"`
	MFEUSDT     float64 `json:"mfe_usdt"`
	HoldingBars int     `json:"holding_bars"`
	ExitReason  string  `json:"exit_reason"`
}

// ReconcileTrades groups a run's fills into closed round trips by tracking
// the running open quantity: entry (non-reduce-only) fills add to it,
// reduce-only fills subtract, and a trade finalizes once it returns to
// (approximately) flat.
func ReconcileTrades(fills []exchange.Fill, equity []runner.EquityPoint) []Trade {
	sorted := append([]exchange.Fill(nil), fills...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].TsMs < sorted[j].TsMs })

	var trades []Trade
	var open bool
	var side exchange.Side
	var entryTsMs, lastExitTsMs int64
	var entryNotional, entryFeeSum, entryQty float64
	var exitNotional, exitFeeSum, exitQty float64
	var lastExitReason string

	finalize := func() {
		if entryQty <= 0 {
			return
		}
		avgEntry := entryNotional / entryQty
		avgExit := 0.0
		if exitQty > 0 {
			avgExit = exitNotional / exitQty
		}
		gross := exitNotional - entryNotional
		if side == exchange.SideShort {
			gross = entryNotional - exitNotional
		}
		fees := entryFeeSum + exitFeeSum
		mae, mfe, bars := excursion(side, avgEntry, entryQty, entryTsMs, lastExitTsMs, equity)
		trades = append(trades, Trade{
			Side: string(side), EntryTsMs: entryTsMs, ExitTsMs: lastExitTsMs,
			EntryPrice: avgEntry, ExitPrice: avgExit, Qty: entryQty,
			PnLUSDT: gross - fees, FeesUSDT: fees,
			MAEUSDT: mae, MFEUSDT: mfe, HoldingBars: bars, ExitReason: lastExitReason,
		})
		open = false
		entryNotional, entryFeeSum, entryQty = 0, 0, 0
		exitNotional, exitFeeSum, exitQty = 0, 0, 0
	}

	for _, f := range sorted {
		if !f.ReduceOnly {
			if !open {
				open = true
				side = f.Side
				entryTsMs = f.TsMs
			}
			entryNotional += f.Price * f.Qty
			entryFeeSum += f.FeeUSDT
			entryQty += f.Qty
			continue
		}
		if !open {
			continue // a reduce against a flat position can't happen; ignore defensively
		}
		exitNotional += f.Price * f.Qty
		exitFeeSum += f.FeeUSDT
		exitQty += f.Qty
		lastExitReason = string(f.Reason)
		lastExitTsMs = f.TsMs
		if exitQty >= entryQty-1e-9 {
			finalize()
		}
	}
	return trades
}

// excursion walks the equity curve's mark prices between a trade's open and
// close timestamps, computing the worst (MAE) and best (MFE) hypothetical
// unrealized P&L at full trade size along the way.
func excursion(side exchange.Side, avgEntry, qty float64, startTsMs, endTsMs int64, equity []runner.EquityPoint) (mae, mfe float64, bars int) {
	sign := 1.0
	if side == exchange.SideShort {
		sign = -1.0
	}
	for _, p := range equity {
		if p.TsCloseMs < startTsMs || p.TsCloseMs > endTsMs {
			continue
		}
		bars++
		pnl := sign * (p.MarkPrice - avgEntry) * qty
		if pnl < mae {
			mae = pnl
		}
		if pnl > mfe {
			mfe = pnl
		}
	}
	return
}

// Result is the final metrics artifact, result.json (spec.md §4.9): ~60
// fields spanning returns, drawdowns, risk-adjusted ratios, trade
// statistics, excursion, tail-risk, leverage/margin, fees/funding,
// holding-period, and time-in-market.
type Result struct {
	StartingEquityUSDT float64 `json:"starting_equity_usdt"`
	FinalEquityUSDT    float64 `json:"final_equity_usdt"`
	TotalReturnUSDT    float64 `json:"total_return_usdt"`
	TotalReturnPct     float64 `json:"total_return_pct"`
	AvgTradeReturnUSDT float64 `json:"avg_trade_return_usdt"`
	AvgTradeReturnPct  float64 `json:"avg_trade_return_pct"`
	MedianTradeReturnUSDT float64 `json:"median_trade_return_usdt"`

	MaxDrawdownUSDT        float64 `json:"max_drawdown_usdt"`
	MaxDrawdownPct         float64 `json:"max_drawdown_pct"`
	MaxDrawdownDurationBars int    `json:"max_drawdown_duration_bars"`
	AvgDrawdownPct         float64 `json:"avg_drawdown_pct"`
	RecoveryFactor         float64 `json:"recovery_factor"`

	SharpeRatio           float64 `json:"sharpe_ratio"`
	SortinoRatio          float64 `json:"sortino_ratio"`
	SharpeRatioAnnualized float64 `json:"sharpe_ratio_annualized"`
	SortinoRatioAnnualized float64 `json:"sortino_ratio_annualized"`
	CalmarRatio           float64 `json:"calmar_ratio"`
	EquityVolatilityPct   float64 `json:"equity_volatility_pct"`

	TotalTrades     int     `json:"total_trades"`
	WinningTrades   int     `json:"winning_trades"`
	LosingTrades    int     `json:"losing_trades"`
	LongTrades      int     `json:"long_trades"`
	ShortTrades     int     `json:"short_trades"`
	WinRatePct      float64 `json:"win_rate_pct"`
	ProfitFactor    float64 `json:"profit_factor"`
	ExpectancyUSDT  float64 `json:"expectancy_usdt"`
	ExpectancyPct   float64 `json:"expectancy_pct"`
	GrossProfitUSDT float64 `json:"gross_profit_usdt"`
	GrossLossUSDT   float64 `json:"gross_loss_usdt"`
	AvgWinUSDT      float64 `json:"avg_win_usdt"`
	AvgLossUSDT     float64 `json:"avg_loss_usdt"`
	LargestWinUSDT  float64 `json:"largest_win_usdt"`
	LargestLossUSDT float64 `json:"largest_loss_usdt"`
	AvgWinLossRatio float64 `json:"avg_win_loss_ratio"`

	AvgMAEUSDT  float64 `json:"avg_mae_usdt"`
	AvgMFEUSDT  float64 `json:"avg_mfe_usdt"`
	MaxMAEUSDT  float64 `json:"max_mae_usdt"`
	MaxMFEUSDT  float64 `json:"max_mfe_usdt"`
	MAEMFERatio float64 `json:"mae_mfe_ratio"`

	VaR95Pct  float64 `json:"var_95_pct"`
	VaR99Pct  float64 `json:"var_99_pct"`
	CVaR95Pct float64 `json:"cvar_95_pct"`
	CVaR99Pct float64 `json:"cvar_99_pct"`

	ConfiguredLeverage        int     `json:"configured_leverage"`
	MaxMarginUtilizationPct   float64 `json:"max_margin_utilization_pct"`
	AvgMarginUtilizationPct   float64 `json:"avg_margin_utilization_pct"`

	TotalFeesUSDT       float64 `json:"total_fees_usdt"`
	AvgFeePerTradeUSDT  float64 `json:"avg_fee_per_trade_usdt"`
	TotalFundingPaidUSDT float64 `json:"total_funding_paid_usdt"`
	FundingEventCount   int     `json:"funding_event_count"`

	AvgHoldingBars    float64 `json:"avg_holding_bars"`
	MedianHoldingBars float64 `json:"median_holding_bars"`
	MaxHoldingBars    int     `json:"max_holding_bars"`
	MinHoldingBars    int     `json:"min_holding_bars"`

	BarsInPosition  int     `json:"bars_in_position"`
	TotalBars       int     `json:"total_bars"`
	TimeInMarketPct float64 `json:"time_in_market_pct"`

	TotalRejections  int `json:"total_rejections"`
	LiquidationCount int `json:"liquidation_count"`
}

// ComputeResult derives every field of Result from a completed run, the
// Play it ran (for configured leverage), and the reconciled trade list.
func ComputeResult(p *play.Play, res *runner.RunResult, trades []Trade) *Result {
	r := &Result{
		StartingEquityUSDT: p.Account.StartingEquityUSDT,
		ConfiguredLeverage: p.Risk.Leverage,
		TotalBars:          len(res.EquityCurve),
		TotalRejections:    len(res.Rejections),
	}

	if len(res.EquityCurve) > 0 {
		r.FinalEquityUSDT = res.EquityCurve[len(res.EquityCurve)-1].EquityUSDT
	} else {
		r.FinalEquityUSDT = r.StartingEquityUSDT
	}
	r.TotalReturnUSDT = r.FinalEquityUSDT - r.StartingEquityUSDT
	if r.StartingEquityUSDT != 0 {
		r.TotalReturnPct = r.TotalReturnUSDT / r.StartingEquityUSDT * 100
	}

	computeEquityMetrics(r, res.EquityCurve)
	computeTradeMetrics(r, trades)
	computeFeesAndFunding(r, res, trades)
	computeMarginMetrics(r, p, res.EquityCurve, trades)

	if r.MaxDrawdownUSDT > 0 {
		r.RecoveryFactor = r.TotalReturnUSDT / r.MaxDrawdownUSDT
	}
	if r.MaxDrawdownPct > 0 {
		r.CalmarRatio = r.TotalReturnPct / r.MaxDrawdownPct
	}
	return r
}

func computeEquityMetrics(r *Result, curve []runner.EquityPoint) {
	if len(curve) == 0 {
		return
	}
	returns := make([]float64, 0, len(curve))
	prevEquity := r.StartingEquityUSDT
	peak := r.StartingEquityUSDT
	maxDDUSDT, maxDDPct := 0.0, 0.0
	ddStartIdx := -1
	maxDDBars := 0
	var ddPcts []float64
	barsInPos := 0

	for i, p := range curve {
		if prevEquity != 0 {
			returns = append(returns, (p.EquityUSDT-prevEquity)/prevEquity)
		}
		prevEquity = p.EquityUSDT
		if p.HasPosition {
			barsInPos++
		}

		if p.EquityUSDT > peak {
			peak = p.EquityUSDT
			ddStartIdx = -1
		} else if peak > 0 {
			ddUSDT := peak - p.EquityUSDT
			ddPct := ddUSDT / peak * 100
			ddPcts = append(ddPcts, ddPct)
			if ddStartIdx == -1 {
				ddStartIdx = i
			}
			if ddUSDT > maxDDUSDT {
				maxDDUSDT = ddUSDT
				maxDDPct = ddPct
				maxDDBars = i - ddStartIdx + 1
			}
		}
	}

	r.MaxDrawdownUSDT = maxDDUSDT
	r.MaxDrawdownPct = maxDDPct
	r.MaxDrawdownDurationBars = maxDDBars
	r.AvgDrawdownPct = meanOf(ddPcts)
	r.BarsInPosition = barsInPos
	if len(curve) > 0 {
		r.TimeInMarketPct = float64(barsInPos) / float64(len(curve)) * 100
	}

	if len(returns) < 2 {
		return
	}
	meanRet, _ := stats.Mean(stats.Float64Data(returns))
	sd, _ := stats.StandardDeviationSample(stats.Float64Data(returns))
	r.EquityVolatilityPct = sd * 100
	if sd > 0 {
		r.SharpeRatio = meanRet / sd
		r.SharpeRatioAnnualized = r.SharpeRatio * math.Sqrt(float64(barsPerYear))
	}

	downside := make([]float64, 0, len(returns))
	for _, ret := range returns {
		if ret < 0 {
			downside = append(downside, ret)
		}
	}
	if len(downside) > 0 {
		dsd, _ := stats.StandardDeviationPopulation(stats.Float64Data(downside))
		if dsd > 0 {
			r.SortinoRatio = meanRet / dsd
			r.SortinoRatioAnnualized = r.SortinoRatio * math.Sqrt(float64(barsPerYear))
		}
	}

	sortedReturns := append([]float64(nil), returns...)
	sort.Float64s(sortedReturns)
	r.VaR95Pct = -percentileOf(sortedReturns, 5) * 100
	r.VaR99Pct = -percentileOf(sortedReturns, 1) * 100
	r.CVaR95Pct = -tailMean(sortedReturns, 5) * 100
	r.CVaR99Pct = -tailMean(sortedReturns, 1) * 100
}

func computeTradeMetrics(r *Result, trades []Trade) {
	r.TotalTrades = len(trades)
	if len(trades) == 0 {
		return
	}

	var pnls, holding, maes, mfes []float64
	var grossProfit, grossLoss float64
	for _, t := range trades {
		pnls = append(pnls, t.PnLUSDT)
		holding = append(holding, float64(t.HoldingBars))
		maes = append(maes, t.MAEUSDT)
		mfes = append(mfes, t.MFEUSDT)
		if t.Side == string(exchange.SideLong) {
			r.LongTrades++
		} else {
			r.ShortTrades++
		}
		if t.PnLUSDT > 0 {
			r.WinningTrades++
			grossProfit += t.PnLUSDT
			if t.PnLUSDT > r.LargestWinUSDT {
				r.LargestWinUSDT = t.PnLUSDT
			}
		} else if t.PnLUSDT < 0 {
			r.LosingTrades++
			grossLoss += -t.PnLUSDT
			if t.PnLUSDT < r.LargestLossUSDT {
				r.LargestLossUSDT = t.PnLUSDT
			}
		}
	}

	r.GrossProfitUSDT = grossProfit
	r.GrossLossUSDT = grossLoss
	r.WinRatePct = float64(r.WinningTrades) / float64(r.TotalTrades) * 100
	if r.WinningTrades > 0 {
		r.AvgWinUSDT = grossProfit / float64(r.WinningTrades)
	}
	if r.LosingTrades > 0 {
		r.AvgLossUSDT = -grossLoss / float64(r.LosingTrades)
	}
	if r.AvgLossUSDT != 0 {
		r.AvgWinLossRatio = r.AvgWinUSDT / -r.AvgLossUSDT
	}
	if grossLoss > 0 {
		r.ProfitFactor = grossProfit / grossLoss
	}

	r.AvgTradeReturnUSDT = meanOf(pnls)
	r.MedianTradeReturnUSDT = medianOf(pnls)
	if r.StartingEquityUSDT != 0 {
		r.AvgTradeReturnPct = r.AvgTradeReturnUSDT / r.StartingEquityUSDT * 100
	}
	r.ExpectancyUSDT = r.AvgTradeReturnUSDT
	r.ExpectancyPct = r.AvgTradeReturnPct

	r.AvgMAEUSDT = meanOf(maes)
	r.AvgMFEUSDT = meanOf(mfes)
	r.MaxMAEUSDT = minOf(maes)
	r.MaxMFEUSDT = maxOf(mfes)
	if r.MaxMAEUSDT != 0 {
		r.MAEMFERatio = r.MaxMFEUSDT / -r.MaxMAEUSDT
	}

	r.AvgHoldingBars = meanOf(holding)
	r.MedianHoldingBars = medianOf(holding)
	minH, maxH := math.MaxInt32, 0
	for _, t := range trades {
		if t.HoldingBars < minH {
			minH = t.HoldingBars
		}
		if t.HoldingBars > maxH {
			maxH = t.HoldingBars
		}
	}
	r.MinHoldingBars = minH
	r.MaxHoldingBars = maxH
}

func computeFeesAndFunding(r *Result, res *runner.RunResult, trades []Trade) {
	for _, f := range res.Fills {
		r.TotalFeesUSDT += f.FeeUSDT
	}
	if len(trades) > 0 {
		r.AvgFeePerTradeUSDT = r.TotalFeesUSDT / float64(len(trades))
	}
	for _, br := range res.Bars {
		if br.Step == nil {
			continue
		}
		if br.Step.FundingCharged {
			r.FundingEventCount++
			r.TotalFundingPaidUSDT += br.Step.FundingPaid
		}
		if br.Step.Liquidated {
			r.LiquidationCount++
		}
	}
}

func computeMarginMetrics(r *Result, p *play.Play, curve []runner.EquityPoint, trades []Trade) {
	if len(trades) == 0 || p.Risk.Leverage <= 0 {
		return
	}
	var utilSum float64
	var count int
	for _, t := range trades {
		notional := t.EntryPrice * t.Qty
		margin := notional / float64(p.Risk.Leverage)
		for _, pt := range curve {
			if pt.TsCloseMs < t.EntryTsMs || pt.TsCloseMs > t.ExitTsMs || pt.EquityUSDT <= 0 {
				continue
			}
			util := margin / pt.EquityUSDT * 100
			utilSum += util
			count++
			if util > r.MaxMarginUtilizationPct {
				r.MaxMarginUtilizationPct = util
			}
		}
	}
	if count > 0 {
		r.AvgMarginUtilizationPct = utilSum / float64(count)
	}
}

func meanOf(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	m, _ := stats.Mean(stats.Float64Data(xs))
	return m
}

func medianOf(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	m, _ := stats.Median(stats.Float64Data(xs))
	return m
}

func minOf(xs []float64) float64 {
	m := 0.0
	for _, x := range xs {
		if x < m {
			m = x
		}
	}
	return m
}

func maxOf(xs []float64) float64 {
	m := 0.0
	for _, x := range xs {
		if x > m {
			m = x
		}
	}
	return m
}

// percentileOf returns the value at the given percent (0-100) of an
// already-sorted slice via nearest-rank interpolation.
func percentileOf(sorted []float64, percent float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	v, err := stats.Percentile(stats.Float64Data(sorted), percent)
	if err != nil {
		return sorted[0]
	}
	return v
}

// tailMean averages every value at or below the given percentile — the
// conditional (expected-shortfall) tail average CVaR requires.
func tailMean(sorted []float64, percent float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	cutoff := percentileOf(sorted, percent)
	var tail []float64
	for _, v := range sorted {
		if v <= cutoff {
			tail = append(tail, v)
		}
	}
	if len(tail) == 0 {
		tail = sorted[:1]
	}
	return meanOf(tail)
}

// WriteResult encodes r as indented, deterministic JSON to path.
func WriteResult(path string, r *Result) error {
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}
