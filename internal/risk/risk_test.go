package risk

import (
	"testing"

	"github.com/plife507/TRADE-sub002/internal/play"
	"github.com/stretchr/testify/require"
)

func TestPercentEquitySizing(t *testing.T) {
	model := play.RiskModel{Sizing: play.SizingPercentEquity, PercentEquity: 10, Leverage: 5}
	in := SizeInputs{EquityUSDT: 10_000, AvailableBalanceUSDT: 10_000, MaxLeverage: 20}
	res := Size(model, 5, in)
	require.False(t, res.Rejected)
	require.InDelta(t, 5_000, res.NotionalUSDT, 1e-9)
}

func TestPercentEquityCappedByAvailableBalance(t *testing.T) {
	model := play.RiskModel{Sizing: play.SizingPercentEquity, PercentEquity: 90, Leverage: 20}
	in := SizeInputs{EquityUSDT: 10_000, AvailableBalanceUSDT: 100, MaxLeverage: 20}
	res := Size(model, 5, in)
	require.InDelta(t, 2_000, res.NotionalUSDT, 1e-9)
}

func TestRiskBasedSizing(t *testing.T) {
	model := play.RiskModel{Sizing: play.SizingRiskBased, RiskPercent: 1, Leverage: 3}
	in := SizeInputs{EquityUSDT: 10_000, StopDistanceFrac: 0.02}
	res := Size(model, 5, in)
	require.InDelta(t, 15_000, res.NotionalUSDT, 1e-9)
}

func TestRiskBasedZeroStopDistanceYieldsZero(t *testing.T) {
	model := play.RiskModel{Sizing: play.SizingRiskBased, RiskPercent: 1, Leverage: 3}
	in := SizeInputs{EquityUSDT: 10_000, StopDistanceFrac: 0}
	res := Size(model, 5, in)
	require.False(t, res.Rejected, "zero-size signals bypass the min-notional gate")
	require.Equal(t, 0.0, res.NotionalUSDT)
}

func TestFixedUSDTSizing(t *testing.T) {
	model := play.RiskModel{Sizing: play.SizingFixedUSDT, FixedUSDT: 250}
	res := Size(model, 5, SizeInputs{})
	require.False(t, res.Rejected)
	require.Equal(t, 250.0, res.NotionalUSDT)
}

func TestBelowMinNotionalRejected(t *testing.T) {
	model := play.RiskModel{Sizing: play.SizingFixedUSDT, FixedUSDT: 2}
	res := Size(model, 5, SizeInputs{})
	require.True(t, res.Rejected)
	require.Equal(t, "below_min_notional", res.Reason)
}
