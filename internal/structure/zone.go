package structure

import (
	"math"

	"github.com/plife507/TRADE-sub002/internal/barfeed"
	"github.com/plife507/TRADE-sub002/internal/coreerr"
)

// ZoneState is the three-state zone lifecycle from spec.md §3/§4.3.
type ZoneState string

const (
	ZoneNone   ZoneState = "NONE"
	ZoneActive ZoneState = "ACTIVE"
	ZoneBroken ZoneState = "BROKEN"
)

// ZoneDetector depends on swing; every new confirmed pivot emits a fresh
// supply (from a swing high) or demand (from a swing low) zone whose width
// is `atr_mult * ATR`, with ATR read from the exec feed's atr_14 column at
// the bar that confirms the pivot. Open question 2 in spec.md §9 is
// resolved here: width has no silent fallback — `atr_mult` is a required,
// positive parameter and construction fails without it; on a bar where ATR
// is NaN or the column is absent, no zone is emitted.
type ZoneDetector struct {
	name   string
	swing  *SwingDetector
	exec   *barfeed.Feed
	atrMult float64

	state       ZoneState
	upper       float64
	lower       float64
	age         int
	touchCount  int
	instanceID  int64
	lastSwingVersion uint64
	nextInstanceID   int64
	version     uint64
}

func newZoneDetector(name string, params map[string]float64, deps map[string]Detector, exec *barfeed.Feed) (Detector, error) {
	swingAny, ok := findDep(deps, "swing")
	if !ok {
		return nil, coreerr.Configuration("zone %q: requires a swing dependency", name)
	}
	swing := swingAny.(*SwingDetector)
	atrMult, ok := params["atr_mult"]
	if !ok || atrMult <= 0 {
		return nil, coreerr.Configuration("zone %q: atr_mult is required and must be > 0 (no silent fallback)", name)
	}
	return &ZoneDetector{
		name: name, swing: swing, exec: exec, atrMult: atrMult,
		state: ZoneNone, upper: math.NaN(), lower: math.NaN(),
	}, nil
}

func (d *ZoneDetector) Name() string           { return d.name }
func (d *ZoneDetector) Kind() string           { return "zone" }
func (d *ZoneDetector) Dependencies() []string { return []string{d.swing.Name()} }
func (d *ZoneDetector) Version() uint64        { return d.version }

func (d *ZoneDetector) Update(idx int, bar barfeed.Bar) error {
	if d.state == ZoneActive {
		d.age++
		touched, broken := zoneTouchBreak(d.lower, d.upper, bar, d.swing.lastKind)
		if broken {
			d.state = ZoneBroken
			d.version++
		} else if touched {
			d.touchCount++
			d.version++
		}
	}

	if d.swing.Version() == d.lastSwingVersion {
		return nil
	}
	d.lastSwingVersion = d.swing.Version()

	atr := atrAt(d.exec, idx)
	if math.IsNaN(atr) {
		return nil // not warm yet; no zone emitted this bar
	}
	width := d.atrMult * atr

	switch d.swing.lastKind {
	case "high":
		d.lower = d.swing.highLevel - width
		d.upper = d.swing.highLevel
	case "low":
		d.lower = d.swing.lowLevel
		d.upper = d.swing.lowLevel + width
	default:
		return nil
	}
	d.state = ZoneActive
	d.age = 0
	d.touchCount = 0
	d.nextInstanceID++
	d.instanceID = d.nextInstanceID
	d.version++
	return nil
}

// zoneTouchBreak reports whether the bar touched (entered without closing
// through) or broke (closed through) the zone. kind is the pivot kind that
// created the zone: a supply zone (from a high) breaks when price closes
// above it; a demand zone (from a low) breaks when price closes below it.
func zoneTouchBreak(lower, upper float64, bar barfeed.Bar, kind string) (touched, broken bool) {
	entered := bar.High >= lower && bar.Low <= upper
	if !entered {
		return false, false
	}
	switch kind {
	case "high": // supply zone
		if bar.Close > upper {
			return false, true
		}
	case "low": // demand zone
		if bar.Close < lower {
			return false, true
		}
	}
	return true, false
}

func (d *ZoneDetector) GetField(name string) (any, bool) {
	switch name {
	case "state":
		return string(d.state), true
	case "upper":
		return d.upper, true
	case "lower":
		return d.lower, true
	case "age":
		return d.age, true
	case "touch_count":
		return d.touchCount, true
	case "instance_id":
		return d.instanceID, true
	default:
		return nil, false
	}
}
