package obsmetrics

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewRegistersOnPrivateRegistry(t *testing.T) {
	ms := New("p1", "BTCUSDT")
	require.NotNil(t, ms.Registry)

	other := New("p2", "ETHUSDT")
	require.NotSame(t, ms.Registry, other.Registry)
}

func TestObserveUpdatesGaugesAndCounters(t *testing.T) {
	ms := New("p1", "BTCUSDT")
	ms.Observe(StepResult{EquityUSDT: 1000, DrawdownPct: 0.1, EvalSeconds: 0.002})
	ms.Observe(StepResult{EquityUSDT: 990, DrawdownPct: 0.11, FillReason: "limit", EvalSeconds: 0.001})
	ms.Observe(StepResult{EquityUSDT: 980, DrawdownPct: 0.12, RejectReason: "insufficient_margin", EvalSeconds: 0.001})
	ms.Observe(StepResult{EquityUSDT: 0, DrawdownPct: 1.0, Liquidated: true, EvalSeconds: 0.003})

	families, err := ms.Registry.Gather()
	require.NoError(t, err)

	var sawFills, sawRejections, sawLiquidations, sawBars bool
	for _, fam := range families {
		switch fam.GetName() {
		case "backtest_fills_total":
			sawFills = len(fam.GetMetric()) > 0
		case "backtest_rejections_total":
			sawRejections = len(fam.GetMetric()) > 0
		case "backtest_liquidations_total":
			sawLiquidations = len(fam.GetMetric()) > 0
		case "backtest_bars_processed_total":
			sawBars = len(fam.GetMetric()) > 0
		}
	}
	require.True(t, sawFills)
	require.True(t, sawRejections)
	require.True(t, sawLiquidations)
	require.True(t, sawBars)
}
