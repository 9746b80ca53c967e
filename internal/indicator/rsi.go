package indicator

import (
	"math"

	"github.com/plife507/TRADE-sub002/internal/coreerr"
)

func registerRSI() {
	register(Spec{
		Kind:    KindRSI,
		Inputs:  []string{"close"},
		Params:  []string{"period"},
		Outputs: []string{""},
		Warmup:  func(params map[string]float64) int { return int(params["period"]) + 1 },
		Compute: func(in []float64, params map[string]float64) (map[string][]float64, error) {
			period := int(params["period"])
			if period <= 0 {
				return nil, coreerr.Configuration("rsi: period must be > 0, got %v", params["period"])
			}
			return map[string][]float64{"": rsi(in, period)}, nil
		},
	})
}

// rsi computes Wilder's smoothed relative strength index.
func rsi(in []float64, period int) []float64 {
	out := make([]float64, len(in))
	for i := range out {
		out[i] = math.NaN()
	}
	if len(in) < period+1 {
		return out
	}
	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		delta := in[i] - in[i-1]
		if delta > 0 {
			avgGain += delta
		} else {
			avgLoss -= delta
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)
	out[period] = rsiFromAvg(avgGain, avgLoss)

	for i := period + 1; i < len(in); i++ {
		delta := in[i] - in[i-1]
		gain, loss := 0.0, 0.0
		if delta > 0 {
			gain = delta
		} else {
			loss = -delta
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		out[i] = rsiFromAvg(avgGain, avgLoss)
	}
	return out
}

func rsiFromAvg(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		if avgGain == 0 {
			return 50
		}
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}
