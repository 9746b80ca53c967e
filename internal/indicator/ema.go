package indicator

import (
	"math"

	"github.com/plife507/TRADE-sub002/internal/coreerr"
)

func registerEMA() {
	register(Spec{
		Kind:    KindEMA,
		Inputs:  []string{"open", "high", "low", "close", "volume"},
		Params:  []string{"period"},
		Outputs: []string{""},
		Warmup:  func(params map[string]float64) int { return int(params["period"]) },
		Compute: func(in []float64, params map[string]float64) (map[string][]float64, error) {
			period := int(params["period"])
			if period <= 0 {
				return nil, coreerr.Configuration("ema: period must be > 0, got %v", params["period"])
			}
			return map[string][]float64{"": ema(in, period)}, nil
		},
	})
}

// ema computes an exponential moving average. Values before index
// `period-1` (fewer than `period` bars seen) are NaN, per spec.md §4.2's
// warmup policy. NaN in the input
// propagates forward once the smoother has absorbed it.
func ema(in []float64, period int) []float64 {
	out := make([]float64, len(in))
	if period <= 0 || len(in) == 0 {
		for i := range out {
			out[i] = math.NaN()
		}
		return out
	}
	alpha := 2.0 / (float64(period) + 1.0)
	var sum float64
	seeded := false
	seedCount := 0
	var prev float64
	for i, v := range in {
		if !seeded {
			out[i] = math.NaN()
			if math.IsNaN(v) {
				continue
			}
			sum += v
			seedCount++
			if seedCount == period {
				prev = sum / float64(period)
				seeded = true
				out[i] = prev
			}
			continue
		}
		if math.IsNaN(v) || math.IsNaN(prev) {
			out[i] = math.NaN()
			prev = math.NaN()
			continue
		}
		prev = alpha*v + (1-alpha)*prev
		out[i] = prev
	}
	return out
}
