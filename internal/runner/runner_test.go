package runner

import (
	"context"
	"testing"

	"github.com/plife507/TRADE-sub002/internal/barfeed"
	"github.com/plife507/TRADE-sub002/internal/exchange"
	"github.com/plife507/TRADE-sub002/internal/play"
	"github.com/stretchr/testify/require"
)

func buildRisingThenFallingFeed(t *testing.T) *barfeed.MultiFeed {
	t.Helper()
	closes := []float64{
		100, 101, 102, 103, 104, 105, 106, 107, 108, 109, 110,
		109, 108, 107, 106, 105, 104, 103, 102, 101,
	}
	bars := make([]barfeed.Bar, len(closes))
	for i, c := range closes {
		open := c
		bars[i] = barfeed.Bar{
			TsOpenMs:  int64(i) * 60_000,
			TsCloseMs: int64(i+1) * 60_000,
			Open:      open,
			High:      c + 0.5,
			Low:       c - 0.5,
			Close:     c,
			Volume:    1,
		}
	}
	exec, err := barfeed.Build(barfeed.RoleExec, 60_000, bars)
	require.NoError(t, err)
	mf, err := barfeed.NewMultiFeed(map[barfeed.Role]*barfeed.Feed{barfeed.RoleExec: exec}, exec)
	require.NoError(t, err)
	return mf
}

func testPlay() *play.Play {
	return &play.Play{
		ID:     "test-play",
		Symbol: "BTCUSDT",
		Account: play.AccountConfig{
			StartingEquityUSDT:    10_000,
			MaxLeverage:           20,
			TakerFeeBps:           5,
			MaintenanceMarginRate: 0.005,
			MinNotionalUSDT:       5,
		},
		Timeframes: map[string]string{"exec": "1m"},
		Features: []play.FeatureDecl{
			{Key: "ema_5", Kind: "ema", Role: "exec", Params: map[string]float64{"period": 5}},
		},
		Policy: play.PositionPolicy{Side: "long_short", ExitMode: "signal"},
		Risk: play.RiskModel{
			Sizing:    play.SizingFixedUSDT,
			FixedUSDT: 1_000,
			Leverage:  1,
		},
		Blocks: []play.RuleBlockSource{
			{
				ID: "entry",
				Cases: []play.RuleCaseSource{
					{
						When: play.ExprSource{NodeKind: "cond", LHS: "price.close", Op: "gt", RHS: "ema_5"},
						Emit: []play.IntentSource{{Action: "entry_long"}},
					},
				},
			},
			{
				ID: "exit",
				Cases: []play.RuleCaseSource{
					{
						When: play.ExprSource{NodeKind: "cond", LHS: "price.close", Op: "lt", RHS: "ema_5"},
						Emit: []play.IntentSource{{Action: "exit_all"}},
					},
				},
			},
		},
	}
}

func TestNewComputesWarmupFromIndicator(t *testing.T) {
	mf := buildRisingThenFallingFeed(t)
	bp, err := New(testPlay(), mf)
	require.NoError(t, err)
	require.Equal(t, 5, bp.warmupBars)
}

func TestRunEntersThenExitsOnCrossover(t *testing.T) {
	mf := buildRisingThenFallingFeed(t)
	bp, err := New(testPlay(), mf)
	require.NoError(t, err)

	res, err := bp.Run(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, res.EquityCurve)

	var entries, exits int
	for _, fill := range res.Fills {
		switch fill.Reason {
		case exchange.ReasonEntry:
			entries++
		case exchange.ReasonExitSignal, exchange.ReasonExitEndOfData:
			exits++
		}
	}
	require.GreaterOrEqual(t, entries, 1, "expected at least one entry fill once price crosses above ema_5")
	require.GreaterOrEqual(t, exits, 1, "expected at least one exit fill once price falls back below ema_5")
}

func TestProcessBarIsTheSharedEntryPoint(t *testing.T) {
	mf := buildRisingThenFallingFeed(t)
	bp, err := New(testPlay(), mf)
	require.NoError(t, err)

	for i := 0; i < bp.warmupBars; i++ {
		require.NoError(t, bp.structs.Update(i, mf.Exec().Bar(i)))
	}

	br, err := bp.ProcessBar(context.Background(), bp.warmupBars)
	require.NoError(t, err)
	require.Equal(t, bp.warmupBars, br.ExecIdx)
	require.NotNil(t, br.Step)
}

func TestAtMostOneEntryPerExecBar(t *testing.T) {
	mf := buildRisingThenFallingFeed(t)
	bp, err := New(testPlay(), mf)
	require.NoError(t, err)
	res, err := bp.Run(context.Background())
	require.NoError(t, err)

	for _, br := range res.Bars {
		entryCount := 0
		for _, f := range br.Fills {
			if f.Reason == exchange.ReasonEntry {
				entryCount++
			}
		}
		require.LessOrEqual(t, entryCount, 1)
	}
}
