package artifact

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/plife507/TRADE-sub002/internal/barfeed"
	"github.com/plife507/TRADE-sub002/internal/exchange"
	"github.com/plife507/TRADE-sub002/internal/indicator"
	"github.com/plife507/TRADE-sub002/internal/play"
	"github.com/plife507/TRADE-sub002/internal/runner"
)

func TestReconcileTradesSingleRoundTrip(t *testing.T) {
	fills := []exchange.Fill{
		{TradeID: 1, OrderID: 1, Side: exchange.SideLong, Price: 100, Qty: 1, FeeUSDT: 0.05, ReduceOnly: false, Reason: exchange.ReasonEntry, TsMs: 1000},
		{TradeID: 2, OrderID: 2, Side: exchange.SideLong, Price: 110, Qty: 1, FeeUSDT: 0.055, ReduceOnly: true, Reason: exchange.ReasonExitSignal, TsMs: 5000},
	}
	equity := []runner.EquityPoint{
		{TsCloseMs: 1000, EquityUSDT: 10000, MarkPrice: 100, HasPosition: true},
		{TsCloseMs: 3000, EquityUSDT: 10005, MarkPrice: 105, HasPosition: true},
		{TsCloseMs: 5000, EquityUSDT: 10010, MarkPrice: 110, HasPosition: false},
	}

	trades := ReconcileTrades(fills, equity)
	require.Len(t, trades, 1)
	tr := trades[0]
	require.Equal(t, "long", tr.Side)
	require.InDelta(t, 100, tr.EntryPrice, 1e-9)
	require.InDelta(t, 110, tr.ExitPrice, 1e-9)
	require.InDelta(t, 9.895, tr.PnLUSDT, 1e-9)
	require.InDelta(t, 10, tr.MFEUSDT, 1e-9)
	require.InDelta(t, 0, tr.MAEUSDT, 1e-9)
	require.Equal(t, 3, tr.HoldingBars)
	require.Equal(t, "exit_signal", tr.ExitReason)
}

func TestReconcileTradesPartialExit(t *testing.T) {
	fills := []exchange.Fill{
		{Side: exchange.SideShort, Price: 200, Qty: 2, FeeUSDT: 0.1, ReduceOnly: false, Reason: exchange.ReasonEntry, TsMs: 0},
		{Side: exchange.SideShort, Price: 190, Qty: 1, FeeUSDT: 0.05, ReduceOnly: true, Reason: exchange.ReasonExitTP, TsMs: 1000},
		{Side: exchange.SideShort, Price: 180, Qty: 1, FeeUSDT: 0.05, ReduceOnly: true, Reason: exchange.ReasonExitSL, TsMs: 2000},
	}
	trades := ReconcileTrades(fills, nil)
	require.Len(t, trades, 1)
	tr := trades[0]
	// gross = entryNotional - exitNotional = 400 - (190+180) = 30
	require.InDelta(t, 30-0.2, tr.PnLUSDT, 1e-9)
	require.Equal(t, "exit_sl", tr.ExitReason)
	require.Equal(t, int64(2000), tr.ExitTsMs)
}

func TestComputeResultBasicTradeStats(t *testing.T) {
	p := &play.Play{
		Account: play.AccountConfig{StartingEquityUSDT: 10000},
		Risk:    play.RiskModel{Leverage: 5},
	}
	trades := []Trade{
		{Side: "long", EntryTsMs: 0, ExitTsMs: 60_000, EntryPrice: 100, ExitPrice: 110, Qty: 1, PnLUSDT: 9.5, FeesUSDT: 0.5, MAEUSDT: -2, MFEUSDT: 10, HoldingBars: 5, ExitReason: "exit_signal"},
		{Side: "short", EntryTsMs: 70_000, ExitTsMs: 130_000, EntryPrice: 200, ExitPrice: 210, Qty: 1, PnLUSDT: -10.5, FeesUSDT: 0.5, MAEUSDT: -10, MFEUSDT: 1, HoldingBars: 3, ExitReason: "exit_sl"},
	}
	res := &runner.RunResult{
		EquityCurve: []runner.EquityPoint{
			{TsCloseMs: 0, EquityUSDT: 10000, MarkPrice: 100, HasPosition: true},
			{TsCloseMs: 60_000, EquityUSDT: 10009.5, MarkPrice: 110, HasPosition: false},
			{TsCloseMs: 130_000, EquityUSDT: 9999, MarkPrice: 210, HasPosition: false},
		},
		Fills: []exchange.Fill{{FeeUSDT: 0.5}, {FeeUSDT: 0.5}, {FeeUSDT: 0.5}, {FeeUSDT: 0.5}},
	}

	result := ComputeResult(p, res, trades)
	require.Equal(t, 2, result.TotalTrades)
	require.Equal(t, 1, result.WinningTrades)
	require.Equal(t, 1, result.LosingTrades)
	require.InDelta(t, 50, result.WinRatePct, 1e-9)
	require.InDelta(t, 9.5, result.GrossProfitUSDT, 1e-9)
	require.InDelta(t, 10.5, result.GrossLossUSDT, 1e-9)
	require.InDelta(t, 9.5/10.5, result.ProfitFactor, 1e-9)
	require.InDelta(t, 2, result.TotalFeesUSDT, 1e-9)
	require.InDelta(t, 1, result.AvgFeePerTradeUSDT, 1e-9)
	require.Equal(t, 1, result.LongTrades)
	require.Equal(t, 1, result.ShortTrades)
	require.Greater(t, result.MaxDrawdownUSDT, 0.0)
}

func TestBuildManifestIsDeterministic(t *testing.T) {
	bars := []barfeed.Bar{
		{TsOpenMs: 0, TsCloseMs: 60_000, Open: 100, High: 101, Low: 99, Close: 100, Volume: 1},
		{TsOpenMs: 60_000, TsCloseMs: 120_000, Open: 100, High: 101, Low: 99, Close: 101, Volume: 1},
	}
	exec, err := barfeed.Build(barfeed.RoleExec, 60_000, bars)
	require.NoError(t, err)
	mf, err := barfeed.NewMultiFeed(map[barfeed.Role]*barfeed.Feed{barfeed.RoleExec: exec}, exec)
	require.NoError(t, err)

	p := &play.Play{
		ID: "p1", Version: "v1", Symbol: "BTCUSDT",
		Timeframes: map[string]string{"exec": "1m"},
		Features:   []play.FeatureDecl{{Key: "ema_5", Kind: "ema", Role: "exec", Params: map[string]float64{"period": 5}}},
	}
	res := &runner.RunResult{WarmupBars: 5, FirstExecIdx: 5, LastExecIdx: 1}

	outputsOf := func(kind string) []string {
		spec, err := indicator.Lookup(indicator.Kind(kind))
		require.NoError(t, err)
		return spec.Outputs
	}

	m1 := Build(p, mf, res, outputsOf)
	m2 := Build(p, mf, res, outputsOf)
	require.Equal(t, m1.RunHash, m2.RunHash)
	require.Equal(t, m1.PipelineSignature, m2.PipelineSignature)
	require.NotEmpty(t, m1.RunHash)
	require.NotEqual(t, m1.RunHash, m1.PipelineSignature)
	require.Len(t, m1.Indicators, 1)
	require.Equal(t, "ema_5", m1.Indicators[0].Key)
}
