package indicator

import (
	"github.com/plife507/TRADE-sub002/internal/coreerr"
)

func registerMACD() {
	register(Spec{
		Kind:    KindMACD,
		Inputs:  []string{"close"},
		Params:  []string{"fast", "slow", "signal"},
		Outputs: []string{"macd", "signal", "histogram"},
		Warmup: func(params map[string]float64) int {
			return int(params["slow"]) + int(params["signal"])
		},
		Compute: func(in []float64, params map[string]float64) (map[string][]float64, error) {
			fast, slow, sig := int(params["fast"]), int(params["slow"]), int(params["signal"])
			if fast <= 0 || slow <= 0 || sig <= 0 {
				return nil, coreerr.Configuration("macd: fast/slow/signal periods must be > 0")
			}
			if fast >= slow {
				return nil, coreerr.Configuration("macd: fast period %d must be less than slow period %d", fast, slow)
			}
			fastEMA := ema(in, fast)
			slowEMA := ema(in, slow)
			macdLine := make([]float64, len(in))
			for i := range macdLine {
				macdLine[i] = fastEMA[i] - slowEMA[i] // NaN - NaN = NaN, propagates correctly
			}
			signalLine := ema(macdLine, sig)
			hist := make([]float64, len(in))
			for i := range hist {
				hist[i] = macdLine[i] - signalLine[i]
			}
			return map[string][]float64{
				"macd":      macdLine,
				"signal":    signalLine,
				"histogram": hist,
			}, nil
		},
	})
}
