package preflight

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/plife507/TRADE-sub002/internal/barfeed"
	"github.com/plife507/TRADE-sub002/internal/indicator"
	"github.com/plife507/TRADE-sub002/internal/play"
)

func feedOf(closes []float64) *barfeed.Feed {
	bars := make([]barfeed.Bar, len(closes))
	for i, c := range closes {
		bars[i] = barfeed.Bar{
			TsOpenMs: int64(i) * 60_000, TsCloseMs: int64(i+1) * 60_000,
			Open: c, High: c + 1, Low: c - 1, Close: c, Volume: 1,
		}
	}
	f, _ := barfeed.Build(barfeed.RoleExec, 60_000, bars)
	return f
}

func buildMultiFeed(t *testing.T, closes []float64) *barfeed.MultiFeed {
	t.Helper()
	feed := feedOf(closes)
	mf, err := barfeed.NewMultiFeed(map[barfeed.Role]*barfeed.Feed{barfeed.RoleExec: feed}, feed)
	require.NoError(t, err)
	return mf
}

func emaPlay() *play.Play {
	return &play.Play{
		ID: "p1", Version: "v1", Symbol: "BTCUSDT",
		Timeframes: map[string]string{"exec": "1m"},
		Features:   []play.FeatureDecl{{Key: "ema_3", Kind: "ema", Role: "exec", Params: map[string]float64{"period": 3}}},
	}
}

func TestCheckWarmupComposesAllThreeSources(t *testing.T) {
	p := emaPlay()
	w, err := CheckWarmup(p)
	require.NoError(t, err)
	require.Equal(t, 3, w.IndicatorBars)
	require.Equal(t, 0, w.StructureBars)
	require.Equal(t, 0, w.WindowBars)
	require.Equal(t, 3, w.TotalBars)
}

func TestCheckWarmupFailsOnUnknownIndicator(t *testing.T) {
	p := emaPlay()
	p.Features[0].Kind = "nonexistent"
	_, err := CheckWarmup(p)
	require.Error(t, err)
}

func TestCheckOneMinuteCoveragePassesWhenDense(t *testing.T) {
	closes := make([]float64, 120)
	for i := range closes {
		closes[i] = float64(i)
	}
	mf := buildMultiFeed(t, closes)
	err := CheckOneMinuteCoverage(mf, 0, 120*60_000)
	require.NoError(t, err)
}

func TestCheckOneMinuteCoverageFailsWhenSparse(t *testing.T) {
	closes := make([]float64, 50)
	for i := range closes {
		closes[i] = float64(i)
	}
	mf := buildMultiFeed(t, closes)
	err := CheckOneMinuteCoverage(mf, 0, 120*60_000)
	require.Error(t, err)
}

func TestCheckOHLCVCoveragePassesWhenFeedSpansWindow(t *testing.T) {
	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = float64(i)
	}
	mf := buildMultiFeed(t, closes)
	err := CheckOHLCVCoverage(mf, map[string]string{"exec": "1m"}, 0, 19*60_000+60_000)
	require.NoError(t, err)
}

func TestCheckOHLCVCoverageFailsWhenShort(t *testing.T) {
	closes := make([]float64, 5)
	for i := range closes {
		closes[i] = float64(i)
	}
	mf := buildMultiFeed(t, closes)
	err := CheckOHLCVCoverage(mf, map[string]string{"exec": "1m"}, 0, 100*60_000)
	require.Error(t, err)
}

func TestContractAuditPassesForMatchingDeclaration(t *testing.T) {
	closes := make([]float64, 10)
	for i := range closes {
		closes[i] = float64(i)
	}
	mf := buildMultiFeed(t, closes)
	p := emaPlay()
	require.NoError(t, indicator.Compute(mf.Exec(), []indicator.Declaration{{Key: "ema_3", Kind: indicator.KindEMA, Params: map[string]float64{"period": 3}}}))

	require.NoError(t, ContractAudit(p, mf))
}

func TestContractAuditFailsOnUndeclaredColumn(t *testing.T) {
	closes := make([]float64, 10)
	for i := range closes {
		closes[i] = float64(i)
	}
	mf := buildMultiFeed(t, closes)
	p := emaPlay()
	require.NoError(t, mf.Exec().SetColumn("stray", make([]float64, 10)))
	require.NoError(t, indicator.Compute(mf.Exec(), []indicator.Declaration{{Key: "ema_3", Kind: indicator.KindEMA, Params: map[string]float64{"period": 3}}}))

	require.Error(t, ContractAudit(p, mf))
}

func TestMathParityAuditPassesAgainstEngineColumn(t *testing.T) {
	closes := make([]float64, 10)
	for i := range closes {
		closes[i] = float64(i)
	}
	mf := buildMultiFeed(t, closes)
	p := emaPlay()
	require.NoError(t, indicator.Compute(mf.Exec(), []indicator.Declaration{{Key: "ema_3", Kind: indicator.KindEMA, Params: map[string]float64{"period": 3}}}))

	require.NoError(t, MathParityAudit(p, mf))
}

func TestMathParityAuditFailsOnTamperedColumn(t *testing.T) {
	closes := make([]float64, 10)
	for i := range closes {
		closes[i] = float64(i)
	}
	mf := buildMultiFeed(t, closes)
	p := emaPlay()
	require.NoError(t, indicator.Compute(mf.Exec(), []indicator.Declaration{{Key: "ema_3", Kind: indicator.KindEMA, Params: map[string]float64{"period": 3}}}))
	require.NoError(t, mf.Exec().SetColumn("ema_3", make([]float64, 10))) // all zeros, diverges from the real EMA

	require.Error(t, MathParityAudit(p, mf))
}

func TestSampleIndicesIsDeterministicAndBounded(t *testing.T) {
	idxs := SampleIndices(100, 5)
	require.Len(t, idxs, 5)
	for _, i := range idxs {
		require.True(t, i >= 0 && i < 100)
	}
	idxs2 := SampleIndices(100, 5)
	require.Equal(t, idxs, idxs2)
}

func TestRollupParityAuditPassesForCorrectAggregate(t *testing.T) {
	closes := []float64{10, 11, 12, 13}
	quote := feedOf(closes)
	bars := []RollupBar{
		{Open: 10, High: 13 + 1, Low: 10 - 1, Close: 13, Volume: 4, StartIdx: 0, EndIdx: 4},
	}
	require.NoError(t, RollupParityAudit(quote, bars))
}

func TestRollupParityAuditFailsOnWrongAggregate(t *testing.T) {
	closes := []float64{10, 11, 12, 13}
	quote := feedOf(closes)
	bars := []RollupBar{
		{Open: 10, High: 99, Low: 9, Close: 13, Volume: 4, StartIdx: 0, EndIdx: 4},
	}
	require.Error(t, RollupParityAudit(quote, bars))
}

func TestCheckPassesForWellFormedPlayAndData(t *testing.T) {
	closes := make([]float64, 200)
	for i := range closes {
		closes[i] = float64(i)
	}
	mf := buildMultiFeed(t, closes)
	p := emaPlay()

	report, err := Check(p, mf, 10*60_000, 190*60_000+60_000)
	require.NoError(t, err)
	require.Equal(t, 3, report.Warmup.TotalBars)
}
