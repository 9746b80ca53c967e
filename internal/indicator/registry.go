// Package indicator computes technical indicators once at prep time,
// producing dense numeric columns aligned to their declaring timeframe. A
// registry defines, per indicator kind, the accepted parameters, whether it
// is multi-output, the output names, and a warmup formula — a pure function
// of the parameters to a number of bars after which every value is non-NaN.
// For EMA and RSI that is exactly the bar count of the first non-NaN value;
// the ATR and MACD formulas count one bar more than that.
package indicator

import (
	"fmt"
	"sort"

	"github.com/plife507/TRADE-sub002/internal/barfeed"
	"github.com/plife507/TRADE-sub002/internal/coreerr"
)

// Kind tags one registry entry (tagged-variant dispatch, per the design
// note "deep inheritance/mixins -> tagged sum types").
type Kind string

const (
	KindEMA  Kind = "ema"
	KindRSI  Kind = "rsi"
	KindATR  Kind = "atr"
	KindMACD Kind = "macd"
)

// Declaration is one Play-declared indicator: kind, parameters, and the
// input source it reads (normally "close", but registries may accept
// others for kinds that support it).
type Declaration struct {
	Key    string // canonical name, e.g. "ema_20"
	Kind   Kind
	Params map[string]float64
	Input  string // input series name; "" defaults to the kind's native input
}

// Spec is the registry entry for one indicator Kind.
type Spec struct {
	Kind        Kind
	Inputs      []string // accepted input series names; empty means "close" only
	Params      []string // accepted parameter names
	Outputs     []string // output names; single-output kinds use [""]
	Warmup      func(params map[string]float64) int
	Compute     func(input []float64, params map[string]float64) (map[string][]float64, error)
}

var registry = map[Kind]Spec{}

func register(s Spec) { registry[s.Kind] = s }

func init() {
	registerEMA()
	registerRSI()
	registerATR()
	registerMACD()
}

// Lookup returns the Spec for kind, or a ConfigurationError if unknown.
func Lookup(kind Kind) (Spec, error) {
	s, ok := registry[kind]
	if !ok {
		return Spec{}, coreerr.Configuration("unknown indicator kind %q", kind)
	}
	return s, nil
}

// validateDeclaration checks kind, parameters, and input source exist
// before any bar is processed, per spec.md §4.2 fail conditions.
func validateDeclaration(d Declaration) (Spec, error) {
	spec, err := Lookup(d.Kind)
	if err != nil {
		return Spec{}, err
	}
	input := d.Input
	if input == "" {
		input = "close"
	}
	accepted := spec.Inputs
	if len(accepted) == 0 {
		accepted = []string{"close"}
	}
	ok := false
	for _, in := range accepted {
		if in == input {
			ok = true
			break
		}
	}
	if !ok {
		return Spec{}, coreerr.Configuration("indicator %q: input %q incompatible with kind %q (accepts %v)", d.Key, input, d.Kind, accepted)
	}
	allowed := make(map[string]bool, len(spec.Params))
	for _, p := range spec.Params {
		allowed[p] = true
	}
	for p := range d.Params {
		if !allowed[p] {
			return Spec{}, coreerr.Configuration("indicator %q: unknown parameter %q for kind %q", d.Key, p, d.Kind)
		}
	}
	return spec, nil
}

// OutputName joins a declaration's canonical key with a registry output
// name, e.g. macd_12_26_9 + "signal" -> "macd_12_26_9.signal". Single-output
// kinds (output name "") resolve to the bare key.
func OutputName(key, output string) string {
	if output == "" {
		return key
	}
	return fmt.Sprintf("%s.%s", key, output)
}

// inputSeries extracts the requested OHLCV series from a feed as a dense
// slice, the shape every Compute function consumes.
func inputSeries(f *barfeed.Feed, name string) []float64 {
	n := f.Len()
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		o, h, l, c, v := f.GetOHLC(i)
		switch name {
		case "open":
			out[i] = o
		case "high":
			out[i] = h
		case "low":
			out[i] = l
		case "volume":
			out[i] = v
		default: // "close" and unrecognized fall back to close
			out[i] = c
		}
	}
	return out
}

// Compute runs every declaration against feed (at the declaration's own
// timeframe) and installs the resulting columns. Declarations are sorted by
// key before evaluation so that iteration order — and any log output — is
// deterministic regardless of map iteration order upstream.
func Compute(f *barfeed.Feed, decls []Declaration) error {
	sorted := make([]Declaration, len(decls))
	copy(sorted, decls)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Key < sorted[j].Key })

	for _, d := range sorted {
		_, err := validateDeclaration(d)
		if err != nil {
			return err
		}

		var cols map[string][]float64
		if d.Kind == KindATR {
			vals, err := ComputeATR(f, int(d.Params["period"]))
			if err != nil {
				return coreerr.Configuration("indicator %q: %v", d.Key, err)
			}
			cols = map[string][]float64{"": vals}
		} else {
			spec, _ := Lookup(d.Kind)
			input := d.Input
			if input == "" {
				input = "close"
			}
			series := inputSeries(f, input)
			cols, err = spec.Compute(series, d.Params)
			if err != nil {
				return coreerr.Configuration("indicator %q: %v", d.Key, err)
			}
		}
		for outName, vals := range cols {
			if err := f.SetColumn(OutputName(d.Key, outName), vals); err != nil {
				return err
			}
		}
	}
	return nil
}
