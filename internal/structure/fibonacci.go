package structure

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/plife507/TRADE-sub002/internal/barfeed"
	"github.com/plife507/TRADE-sub002/internal/coreerr"
)

// defaultFibLevels are the named retracement/extension ratios spec.md §3
// lists as an example; a Play may override via the `levels` param by
// passing them pre-sorted as level_0, level_1, ... (see newFibonacciDetector).
var defaultFibLevels = []float64{0.382, 0.5, 0.618, 0.786, 1.0, 1.272, 1.618}

// FibonacciDetector depends on swing; it derives named levels from the
// latest confirmed swing high/low pair, recomputed in O(1) whenever the
// swing detector's version advances.
type FibonacciDetector struct {
	name   string
	swing  *SwingDetector
	levels []float64

	values           map[string]float64
	lastSwingVersion uint64
	version          uint64
}

func newFibonacciDetector(name string, params map[string]float64, deps map[string]Detector, _ *barfeed.Feed) (Detector, error) {
	swingAny, ok := findDep(deps, "swing")
	if !ok {
		return nil, coreerr.Configuration("fibonacci %q: requires a swing dependency", name)
	}
	swing := swingAny.(*SwingDetector)

	levels := collectLevels(params)
	if len(levels) == 0 {
		levels = defaultFibLevels
	}
	return &FibonacciDetector{
		name: name, swing: swing, levels: levels,
		values: make(map[string]float64, len(levels)),
	}, nil
}

func collectLevels(params map[string]float64) []float64 {
	var keys []string
	for k := range params {
		if len(k) > 6 && k[:6] == "level_" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	levels := make([]float64, 0, len(keys))
	for _, k := range keys {
		levels = append(levels, params[k])
	}
	return levels
}

func (d *FibonacciDetector) Name() string           { return d.name }
func (d *FibonacciDetector) Kind() string           { return "fibonacci" }
func (d *FibonacciDetector) Dependencies() []string { return []string{d.swing.Name()} }
func (d *FibonacciDetector) Version() uint64        { return d.version }

func (d *FibonacciDetector) Update(idx int, bar barfeed.Bar) error {
	if d.swing.Version() == d.lastSwingVersion {
		return nil
	}
	d.lastSwingVersion = d.swing.Version()

	high, low := d.swing.highLevel, d.swing.lowLevel
	if math.IsNaN(high) || math.IsNaN(low) {
		return nil
	}
	span := high - low
	up := d.swing.lastKind == "low" // swing low confirmed most recently -> retracement measured upward
	for _, lvl := range d.levels {
		key := fibKey(lvl)
		if up {
			d.values[key] = low + span*lvl
		} else {
			d.values[key] = high - span*lvl
		}
	}
	d.version++
	return nil
}

// fibKey renders a ratio like 0.618 as "level_0_618", a stable identifier
// usable as a Snapshot path segment (dots are path separators).
func fibKey(level float64) string {
	s := strings.Replace(fmt.Sprintf("%g", level), ".", "_", 1)
	return "level_" + s
}

func (d *FibonacciDetector) GetField(name string) (any, bool) {
	v, ok := d.values[name]
	return v, ok
}
