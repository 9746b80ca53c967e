package structure

import (
	"testing"

	"github.com/plife507/TRADE-sub002/internal/barfeed"
	"github.com/stretchr/testify/require"
)

func zigzagBars() []barfeed.Bar {
	// A clean up-down-up zigzag so left=right=2 fractals confirm reliably.
	highs := []float64{100, 101, 102, 110, 108, 106, 104, 112, 120, 118, 116, 114, 130}
	bars := make([]barfeed.Bar, len(highs))
	for i, h := range highs {
		bars[i] = barfeed.Bar{
			TsOpenMs: int64(i) * 60_000, TsCloseMs: int64(i+1) * 60_000,
			Open: h - 1, High: h, Low: h - 3, Close: h - 1, Volume: 1,
		}
	}
	return bars
}

func TestSwingAndTrendDependencyOrder(t *testing.T) {
	exec, err := barfeed.Build(barfeed.RoleExec, 60_000, zigzagBars())
	require.NoError(t, err)

	eng, err := Build(exec, []Declaration{
		{Name: "trend1", Kind: "trend", DependsOn: []string{"swing1"}},
		{Name: "swing1", Kind: "swing", Params: map[string]float64{"left": 2, "right": 2}},
	})
	require.NoError(t, err)

	require.Equal(t, []string{"swing1", "trend1"}, eng.Names(), "swing must be constructed and updated before trend")

	for i := 0; i < exec.Len(); i++ {
		require.NoError(t, eng.Update(i, exec.Bar(i)))
	}

	swingDet, ok := eng.Get("swing1")
	require.True(t, ok)
	v, ok := swingDet.GetField("version")
	require.True(t, ok)
	require.Greater(t, v.(uint64), uint64(0), "at least one pivot should have confirmed over a zigzag")
}

func TestUnknownStructureKindFails(t *testing.T) {
	exec, _ := barfeed.Build(barfeed.RoleExec, 60_000, zigzagBars())
	_, err := Build(exec, []Declaration{{Name: "x", Kind: "not_a_kind"}})
	require.Error(t, err)
}

func TestUnresolvedDependencyFails(t *testing.T) {
	exec, _ := barfeed.Build(barfeed.RoleExec, 60_000, zigzagBars())
	_, err := Build(exec, []Declaration{{Name: "trend1", Kind: "trend", DependsOn: []string{"missing"}}})
	require.Error(t, err)
}

func TestCyclicDependencyFails(t *testing.T) {
	exec, _ := barfeed.Build(barfeed.RoleExec, 60_000, zigzagBars())
	_, err := Build(exec, []Declaration{
		{Name: "a", Kind: "trend", DependsOn: []string{"b"}},
		{Name: "b", Kind: "trend", DependsOn: []string{"a"}},
	})
	require.Error(t, err)
}

func TestZoneRequiresATRMultParam(t *testing.T) {
	exec, _ := barfeed.Build(barfeed.RoleExec, 60_000, zigzagBars())
	_, err := Build(exec, []Declaration{
		{Name: "swing1", Kind: "swing", Params: map[string]float64{"left": 2, "right": 2}},
		{Name: "zone1", Kind: "zone", DependsOn: []string{"swing1"}},
	})
	require.Error(t, err, "zone must require an explicit atr_mult, no silent 1% fallback")
}

func TestRollingWindowMonotonicMax(t *testing.T) {
	exec, _ := barfeed.Build(barfeed.RoleExec, 60_000, zigzagBars())
	eng, err := Build(exec, []Declaration{
		{Name: "rw", Kind: "rolling_window", Params: map[string]float64{"window": 3, "mode_max": 1, "field_code": 1}},
	})
	require.NoError(t, err)
	for i := 0; i < exec.Len(); i++ {
		require.NoError(t, eng.Update(i, exec.Bar(i)))
	}
	rw, _ := eng.Get("rw")
	v, _ := rw.GetField("value")
	require.Equal(t, 130.0, v)
}
