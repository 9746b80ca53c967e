package barfeed

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func makeBars(n int, tfMs int64) []Bar {
	bars := make([]Bar, n)
	for i := 0; i < n; i++ {
		open := 100.0 + float64(i)
		bars[i] = Bar{
			TsOpenMs:  int64(i) * tfMs,
			TsCloseMs: int64(i+1) * tfMs,
			Open:      open,
			High:      open + 1,
			Low:       open - 1,
			Close:     open + 0.5,
			Volume:    10,
		}
	}
	return bars
}

func TestFeedBuildAndAccess(t *testing.T) {
	f, err := Build(RoleExec, 60_000, makeBars(5, 60_000))
	require.NoError(t, err)
	require.Equal(t, 5, f.Len())

	o, h, l, c, v := f.GetOHLC(2)
	require.Equal(t, 102.0, o)
	require.Equal(t, 103.0, h)
	require.Equal(t, 101.0, l)
	require.Equal(t, 102.5, c)
	require.Equal(t, 10.0, v)
}

func TestFeedIndicatorColumnNaNBeforeWarmup(t *testing.T) {
	f, err := Build(RoleExec, 60_000, makeBars(5, 60_000))
	require.NoError(t, err)

	col := []float64{NaN, NaN, 1.5, 2.5, 3.5}
	require.NoError(t, f.SetColumn("ema_3", col))

	require.True(t, math.IsNaN(f.GetIndicator("ema_3", 0)))
	require.Equal(t, 1.5, f.GetIndicator("ema_3", 2))
	require.True(t, math.IsNaN(f.GetIndicator("unknown_key", 2)))
	require.True(t, math.IsNaN(f.GetIndicator("ema_3", 99)))
}

func TestIdxAtOrBeforeForwardFill(t *testing.T) {
	// 1h feed: closes at 3600000, 7200000, 10800000
	f, err := Build(RoleHTF, 3_600_000, makeBars(3, 3_600_000))
	require.NoError(t, err)

	require.Equal(t, 0, f.IdxAtOrBefore(3_600_000))
	require.Equal(t, 0, f.IdxAtOrBefore(5_000_000)) // between close[0] and close[1]
	require.Equal(t, 1, f.IdxAtOrBefore(7_200_000))
	require.Equal(t, -1, f.IdxAtOrBefore(100)) // before first close
	require.Equal(t, 2, f.IdxAtOrBefore(999_999_999))
}

func TestBuildRejectsBadInvariants(t *testing.T) {
	bad := makeBars(2, 60_000)
	bad[0].High = bad[0].Open - 10 // high below max(open,close)
	_, err := Build(RoleExec, 60_000, bad)
	require.Error(t, err)
}

func TestBuildRejectsNonIncreasing(t *testing.T) {
	bars := makeBars(3, 60_000)
	bars[2].TsOpenMs = bars[1].TsOpenMs
	_, err := Build(RoleExec, 60_000, bars)
	require.Error(t, err)
}
