package indicator

import (
	"math"

	"github.com/plife507/TRADE-sub002/internal/barfeed"
	"github.com/plife507/TRADE-sub002/internal/coreerr"
)

// registerATR registers ATR's Spec. Its single-series Compute always fails,
// since true-range needs high/low/prev-close together; the package-level
// Compute in registry.go calls the feed-aware ComputeATR for this kind.
func registerATR() {
	register(Spec{
		Kind:    KindATR,
		Inputs:  []string{"close"}, // placeholder input; real series pulled via ComputeATR
		Params:  []string{"period"},
		Outputs: []string{""},
		Warmup:  func(params map[string]float64) int { return int(params["period"]) + 1 },
		Compute: func(in []float64, params map[string]float64) (map[string][]float64, error) {
			return nil, coreerr.Configuration("atr requires high/low/close; use ComputeATR via indicator.Compute on a feed")
		},
	})
}

// ComputeATR is a feed-aware escape hatch for the ATR kind, which (unlike
// every other registered kind) needs three aligned series at once. The
// generic Compute dispatcher in registry.go special-cases KindATR to call
// this.
func ComputeATR(f *barfeed.Feed, period int) ([]float64, error) {
	if period <= 0 {
		return nil, coreerr.Configuration("atr: period must be > 0, got %d", period)
	}
	n := f.Len()
	tr := make([]float64, n)
	for i := 0; i < n; i++ {
		_, h, l, c, _ := f.GetOHLC(i)
		if i == 0 {
			tr[i] = h - l
			continue
		}
		_, _, _, prevClose, _ := f.GetOHLC(i - 1)
		tr[i] = math.Max(h-l, math.Max(math.Abs(h-prevClose), math.Abs(l-prevClose)))
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	if n < period {
		return out, nil
	}
	var sum float64
	for i := 0; i < period; i++ {
		sum += tr[i]
	}
	prev := sum / float64(period)
	out[period-1] = prev
	for i := period; i < n; i++ {
		prev = (prev*float64(period-1) + tr[i]) / float64(period)
		out[i] = prev
	}
	return out, nil
}
