package structure

import (
	"github.com/plife507/TRADE-sub002/internal/barfeed"
	"github.com/plife507/TRADE-sub002/internal/coreerr"
)

// TrendDetector classifies market direction from the swing detector it
// depends on: HH+HL = up, LL+LH = down, anything else = neutral (spec.md
// §4.3). Strength counts consecutive same-direction classifications;
// bars-in-trend counts bars since the direction last changed.
type TrendDetector struct {
	name  string
	swing *SwingDetector

	direction   string
	strength    int
	barsInTrend int
	lastSwingVersion uint64
	version     uint64
}

func newTrendDetector(name string, _ map[string]float64, deps map[string]Detector, _ *barfeed.Feed) (Detector, error) {
	swingAny, ok := findDep(deps, "swing")
	if !ok {
		return nil, coreerr.Configuration("trend %q: requires a swing dependency", name)
	}
	swing, ok := swingAny.(*SwingDetector)
	if !ok {
		return nil, coreerr.Configuration("trend %q: dependency is not a swing detector", name)
	}
	return &TrendDetector{name: name, swing: swing, direction: "neutral"}, nil
}

// findDep returns the first dependency of the requested kind, since a
// Play may name its swing detector anything.
func findDep(deps map[string]Detector, kind string) (Detector, bool) {
	for _, d := range deps {
		if d.Kind() == kind {
			return d, true
		}
	}
	return nil, false
}

func (d *TrendDetector) Name() string           { return d.name }
func (d *TrendDetector) Kind() string           { return "trend" }
func (d *TrendDetector) Dependencies() []string { return []string{d.swing.Name()} }
func (d *TrendDetector) Version() uint64        { return d.version }

func (d *TrendDetector) Update(idx int, bar barfeed.Bar) error {
	d.barsInTrend++

	if d.swing.Version() == d.lastSwingVersion {
		return nil // no new confirmed pivot this bar; direction cannot change
	}
	d.lastSwingVersion = d.swing.Version()

	higherHigh := !isNaN(d.swing.highLevel) && !isNaN(d.swing.prevHighLevel) && d.swing.highLevel > d.swing.prevHighLevel
	lowerHigh := !isNaN(d.swing.highLevel) && !isNaN(d.swing.prevHighLevel) && d.swing.highLevel < d.swing.prevHighLevel
	higherLow := !isNaN(d.swing.lowLevel) && !isNaN(d.swing.prevLowLevel) && d.swing.lowLevel > d.swing.prevLowLevel
	lowerLow := !isNaN(d.swing.lowLevel) && !isNaN(d.swing.prevLowLevel) && d.swing.lowLevel < d.swing.prevLowLevel

	var next string
	switch {
	case higherHigh && higherLow:
		next = "up"
	case lowerLow && lowerHigh:
		next = "down"
	default:
		next = "neutral"
	}

	if next == d.direction {
		if next != "neutral" {
			d.strength++
		}
	} else {
		d.direction = next
		d.strength = 0
		if next != "neutral" {
			d.strength = 1
		}
		d.barsInTrend = 0
	}
	d.version++
	return nil
}

func (d *TrendDetector) GetField(name string) (any, bool) {
	switch name {
	case "direction":
		return d.direction, true
	case "strength":
		return d.strength, true
	case "bars_in_trend":
		return d.barsInTrend, true
	default:
		return nil, false
	}
}

func isNaN(f float64) bool { return f != f }
