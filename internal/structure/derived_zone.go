package structure

import (
	"fmt"
	"math"

	"github.com/plife507/TRADE-sub002/internal/barfeed"
	"github.com/plife507/TRADE-sub002/internal/coreerr"
)

type derivedSlot struct {
	state      ZoneState
	lower      float64
	upper      float64
	touchedBar bool
}

// DerivedZoneDetector depends on swing; it allocates up to K bounded slots
// of zones defined by Fibonacci levels of the latest confirmed swing, each
// slot running the same NONE->ACTIVE->BROKEN state machine as ZoneDetector,
// plus engine-friendly aggregates (spec.md §3/§4.3).
type DerivedZoneDetector struct {
	name  string
	swing *SwingDetector
	k     int
	levels []float64

	slots            []derivedSlot
	lastSwingVersion uint64
	version          uint64
}

func newDerivedZoneDetector(name string, params map[string]float64, deps map[string]Detector, _ *barfeed.Feed) (Detector, error) {
	swingAny, ok := findDep(deps, "swing")
	if !ok {
		return nil, coreerr.Configuration("derived_zone %q: requires a swing dependency", name)
	}
	swing := swingAny.(*SwingDetector)
	k := int(params["max_active"])
	if k <= 0 {
		return nil, coreerr.Configuration("derived_zone %q: max_active must be > 0", name)
	}
	levels := collectLevels(params)
	if len(levels) == 0 {
		levels = defaultFibLevels
	}
	if len(levels) > k {
		levels = levels[:k]
	}
	slots := make([]derivedSlot, k)
	for i := range slots {
		slots[i] = derivedSlot{state: ZoneNone, lower: math.NaN(), upper: math.NaN()}
	}
	return &DerivedZoneDetector{name: name, swing: swing, k: k, levels: levels, slots: slots}, nil
}

func (d *DerivedZoneDetector) Name() string           { return d.name }
func (d *DerivedZoneDetector) Kind() string           { return "derived_zone" }
func (d *DerivedZoneDetector) Dependencies() []string { return []string{d.swing.Name()} }
func (d *DerivedZoneDetector) Version() uint64        { return d.version }

func (d *DerivedZoneDetector) Update(idx int, bar barfeed.Bar) error {
	changed := false
	for i := range d.slots {
		s := &d.slots[i]
		s.touchedBar = false
		if s.state != ZoneActive {
			continue
		}
		touched, broken := zoneTouchBreak(s.lower, s.upper, bar, d.swing.lastKind)
		if broken {
			s.state = ZoneBroken
			changed = true
		} else if touched {
			s.touchedBar = true
			changed = true
		}
	}

	if d.swing.Version() != d.lastSwingVersion {
		d.lastSwingVersion = d.swing.Version()
		high, low := d.swing.highLevel, d.swing.lowLevel
		if !math.IsNaN(high) && !math.IsNaN(low) {
			span := high - low
			up := d.swing.lastKind == "low"
			for i, lvl := range d.levels {
				var center float64
				if up {
					center = low + span*lvl
				} else {
					center = high - span*lvl
				}
				width := span * 0.05 // fixed fraction of swing range per slot; not a silent ATR fallback
				d.slots[i] = derivedSlot{state: ZoneActive, lower: center - width/2, upper: center + width/2}
			}
			changed = true
		}
	}

	if changed {
		d.version++
	}
	return nil
}

func (d *DerivedZoneDetector) activeCount() int {
	n := 0
	for _, s := range d.slots {
		if s.state == ZoneActive {
			n++
		}
	}
	return n
}

func (d *DerivedZoneDetector) closestActive(mark float64) (int, bool) {
	best := -1
	bestDist := math.Inf(1)
	for i, s := range d.slots {
		if s.state != ZoneActive {
			continue
		}
		mid := (s.lower + s.upper) / 2
		dist := math.Abs(mark - mid)
		if dist < bestDist {
			bestDist = dist
			best = i
		}
	}
	return best, best >= 0
}

func (d *DerivedZoneDetector) GetField(name string) (any, bool) {
	switch name {
	case "active_count":
		return d.activeCount(), true
	case "any_active":
		return d.activeCount() > 0, true
	case "any_touched_this_bar":
		for _, s := range d.slots {
			if s.touchedBar {
				return true, true
			}
		}
		return false, true
	}
	for i, s := range d.slots {
		prefix := fmt.Sprintf("zone%d_", i)
		switch name {
		case prefix + "lower":
			return s.lower, true
		case prefix + "upper":
			return s.upper, true
		case prefix + "state":
			return string(s.state), true
		}
	}
	return nil, false
}

// ClosestActiveBounds exposes the lower/upper of the active slot nearest to
// mark, for the "closest_active_lower/upper" aggregate paths the Snapshot
// layer resolves with a live mark price argument rather than a bare field.
func (d *DerivedZoneDetector) ClosestActiveBounds(mark float64) (lower, upper float64, ok bool) {
	i, found := d.closestActive(mark)
	if !found {
		return math.NaN(), math.NaN(), false
	}
	return d.slots[i].lower, d.slots[i].upper, true
}
