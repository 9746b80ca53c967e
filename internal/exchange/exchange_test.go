package exchange

import (
	"testing"

	"github.com/plife507/TRADE-sub002/internal/barfeed"
	"github.com/plife507/TRADE-sub002/internal/play"
	"github.com/stretchr/testify/require"
)

func testAccount() play.AccountConfig {
	return play.AccountConfig{
		StartingEquityUSDT:    10_000,
		MaxLeverage:           20,
		TakerFeeBps:           5,
		MakerFeeBps:           2,
		MaintenanceMarginRate: 0.005,
		MinNotionalUSDT:       5,
	}
}

func TestROIStopPriceAtOneX(t *testing.T) {
	// Scenario A: long entry at 50000, sl_pct=2, leverage=1 -> SL at 49000.
	sl := ROIStopPrice(50_000, 2, 1, SideLong, false)
	require.InDelta(t, 49_000, sl, 1e-9)
}

func TestROIStopPriceAtThreeX(t *testing.T) {
	// Scenario B: same entry and sl_pct=2, leverage=3 -> SL ~= 49666.67.
	sl := ROIStopPrice(50_000, 2, 3, SideLong, false)
	require.InDelta(t, 49_666.666667, sl, 1e-3)
}

func TestROIStopPriceShortSymmetric(t *testing.T) {
	sl := ROIStopPrice(50_000, 2, 1, SideShort, false)
	require.InDelta(t, 51_000, sl, 1e-9)
	tp := ROIStopPrice(50_000, 2, 1, SideShort, true)
	require.InDelta(t, 49_000, tp, 1e-9)
}

func TestSLWinsOnSimultaneousTrigger(t *testing.T) {
	ex := New(testAccount())
	_, reason, err := ex.SubmitEntry(SideLong, 1_000, 50_000, 10, "block1", 0)
	require.NoError(t, err)
	require.Empty(t, reason)
	ex.SetStopLossTakeProfit(2, 2, true, true)

	bars := []barfeed.Bar{
		{TsOpenMs: 0, TsCloseMs: 60_000, Open: 50_000, High: 50_000, Low: 50_000, Close: 50_000, Volume: 1},
		// both SL (49900) and TP (50100) would trigger within this bar's range.
		{TsOpenMs: 60_000, TsCloseMs: 120_000, Open: 49_500, High: 53_000, Low: 48_000, Close: 49_500, Volume: 1},
	}
	exec, err := barfeed.Build(barfeed.RoleExec, 60_000, bars)
	require.NoError(t, err)
	mf, err := barfeed.NewMultiFeed(map[barfeed.Role]*barfeed.Feed{barfeed.RoleExec: exec}, exec)
	require.NoError(t, err)

	res, err := ex.ProcessBar(mf, 1)
	require.NoError(t, err)
	require.Len(t, res.Fills, 1)
	require.Equal(t, ReasonExitSL, res.Fills[0].Reason)
}

func TestLiquidationBeatsTP(t *testing.T) {
	// Scenario F: long at 50000, size 1000 USDT, leverage 10, mmr 0.5%.
	cfg := testAccount()
	cfg.MaintenanceMarginRate = 0.005
	ex := New(cfg)
	_, _, err := ex.SubmitEntry(SideLong, 1_000, 50_000, 10, "block1", 0)
	require.NoError(t, err)
	ex.SetStopLossTakeProfit(0, 10, false, true) // TP far above, no SL armed

	bars := []barfeed.Bar{
		{TsOpenMs: 0, TsCloseMs: 60_000, Open: 50_000, High: 50_000, Low: 50_000, Close: 50_000, Volume: 1},
		{TsOpenMs: 60_000, TsCloseMs: 120_000, Open: 50_000, High: 55_000, Low: 44_500, Close: 50_000, Volume: 1},
	}
	exec, err := barfeed.Build(barfeed.RoleExec, 60_000, bars)
	require.NoError(t, err)
	mf, err := barfeed.NewMultiFeed(map[barfeed.Role]*barfeed.Feed{barfeed.RoleExec: exec}, exec)
	require.NoError(t, err)

	res, err := ex.ProcessBar(mf, 1)
	require.NoError(t, err)
	require.True(t, res.Liquidated)
	require.Len(t, res.Fills, 1)
	require.Equal(t, ReasonExitLiquidation, res.Fills[0].Reason)
}

func TestExceedsLeverageRejected(t *testing.T) {
	ex := New(testAccount())
	_, reason, err := ex.SubmitEntry(SideLong, 1_000, 50_000, 50, "block1", 0)
	require.NoError(t, err)
	require.Equal(t, RejectExceedsLeverage, reason)
}

func TestBelowMinNotionalRejected(t *testing.T) {
	ex := New(testAccount())
	_, reason, err := ex.SubmitEntry(SideLong, 1, 50_000, 1, "block1", 0)
	require.NoError(t, err)
	require.Equal(t, RejectBelowMinNotional, reason)
}

func TestOneWayRejectsFlip(t *testing.T) {
	ex := New(testAccount())
	_, _, err := ex.SubmitEntry(SideLong, 1_000, 50_000, 1, "block1", 0)
	require.NoError(t, err)
	_, reason, err := ex.SubmitEntry(SideShort, 1_000, 50_000, 1, "block1", 0)
	require.NoError(t, err)
	require.Equal(t, RejectWouldFlip, reason)
}

func TestReduceOnlyClampsToPositionSize(t *testing.T) {
	ex := New(testAccount())
	_, _, err := ex.SubmitEntry(SideLong, 1_000, 50_000, 1, "block1", 0)
	require.NoError(t, err)
	before := ex.Position().Qty
	fill, reason, err := ex.SubmitExit(100, 50_000, ReasonExitSignal, 0)
	require.NoError(t, err)
	require.Empty(t, reason)
	require.LessOrEqual(t, fill.Qty, before)
	require.Nil(t, ex.Position())
}

func TestPartialExitRetainsEntryPrice(t *testing.T) {
	ex := New(testAccount())
	_, _, err := ex.SubmitEntry(SideLong, 1_000, 50_000, 1, "block1", 0)
	require.NoError(t, err)
	entry := ex.Position().EntryPrice
	_, _, err = ex.SubmitExit(50, 55_000, ReasonExitPartial, 0)
	require.NoError(t, err)
	require.NotNil(t, ex.Position())
	require.InDelta(t, entry, ex.Position().EntryPrice, 1e-9)
}

func TestApplyFundingAtConfiguredRate(t *testing.T) {
	cfg := testAccount()
	cfg.FundingRate = 0.0001
	ex := New(cfg)
	_, _, err := ex.SubmitEntry(SideLong, 1_000, 50_000, 1, "block1", 0)
	require.NoError(t, err)

	bars := []barfeed.Bar{
		{TsOpenMs: 0, TsCloseMs: 60_000, Open: 50_000, High: 50_000, Low: 50_000, Close: 50_000, Volume: 1},
		// 8h boundary sits at ts=28_800_000; this bar straddles it.
		{TsOpenMs: 28_740_000, TsCloseMs: 28_800_000, Open: 50_000, High: 50_000, Low: 50_000, Close: 50_000, Volume: 1},
	}
	exec, err := barfeed.Build(barfeed.RoleExec, 60_000, bars)
	require.NoError(t, err)
	mf, err := barfeed.NewMultiFeed(map[barfeed.Role]*barfeed.Feed{barfeed.RoleExec: exec}, exec)
	require.NoError(t, err)

	res, err := ex.ProcessBar(mf, 1)
	require.NoError(t, err)
	require.True(t, res.FundingCharged)
	require.InDelta(t, -0.1, res.FundingPaid, 1e-9)
	require.InDelta(t, -0.1, ex.Position().FundingAccruedUSDT, 1e-9)
}

func TestSubmitRestingStopFillsAndCloses(t *testing.T) {
	ex := New(testAccount())
	_, _, err := ex.SubmitEntry(SideLong, 1_000, 50_000, 1, "block1", 0)
	require.NoError(t, err)
	qty := ex.Position().Qty
	// A long's protective stop sells on a break below the trigger, so it
	// rests on the Short side of orderTriggers' direction convention.
	ex.SubmitResting(SideShort, OrderStopMarket, 49_000, 0, qty, 1, true, "stop1")

	bars := []barfeed.Bar{
		{TsOpenMs: 0, TsCloseMs: 60_000, Open: 50_000, High: 50_000, Low: 50_000, Close: 50_000, Volume: 1},
		{TsOpenMs: 60_000, TsCloseMs: 120_000, Open: 50_000, High: 50_500, Low: 48_500, Close: 49_800, Volume: 1},
	}
	exec, err := barfeed.Build(barfeed.RoleExec, 60_000, bars)
	require.NoError(t, err)
	mf, err := barfeed.NewMultiFeed(map[barfeed.Role]*barfeed.Feed{barfeed.RoleExec: exec}, exec)
	require.NoError(t, err)

	res, err := ex.ProcessBar(mf, 1)
	require.NoError(t, err)
	require.Len(t, res.Fills, 1)
	require.Equal(t, ReasonExitSL, res.Fills[0].Reason)
	require.True(t, res.Fills[0].ReduceOnly)
	require.Nil(t, ex.Position())
}

func TestSubmitRestingEntryAddsToExistingPosition(t *testing.T) {
	ex := New(testAccount())
	_, _, err := ex.SubmitEntry(SideLong, 1_000, 50_000, 1, "block1", 0)
	require.NoError(t, err)
	before := ex.Position().Qty
	ex.SubmitResting(SideLong, OrderLimit, 0, 49_500, 0.01, 1, false, "add1")

	bars := []barfeed.Bar{
		{TsOpenMs: 0, TsCloseMs: 60_000, Open: 50_000, High: 50_000, Low: 50_000, Close: 50_000, Volume: 1},
		{TsOpenMs: 60_000, TsCloseMs: 120_000, Open: 49_800, High: 50_000, Low: 49_000, Close: 49_900, Volume: 1},
	}
	exec, err := barfeed.Build(barfeed.RoleExec, 60_000, bars)
	require.NoError(t, err)
	mf, err := barfeed.NewMultiFeed(map[barfeed.Role]*barfeed.Feed{barfeed.RoleExec: exec}, exec)
	require.NoError(t, err)

	res, err := ex.ProcessBar(mf, 1)
	require.NoError(t, err)
	require.Len(t, res.Fills, 1)
	require.Equal(t, ReasonEntry, res.Fills[0].Reason)
	require.False(t, res.Fills[0].ReduceOnly)
	require.NotNil(t, ex.Position())
	require.InDelta(t, before+0.01, ex.Position().Qty, 1e-9)
	require.Greater(t, ex.Position().FeesPaidUSDT, 0.0)
}
