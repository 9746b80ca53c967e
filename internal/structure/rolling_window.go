package structure

import (
	"math"

	"github.com/plife507/TRADE-sub002/internal/barfeed"
	"github.com/plife507/TRADE-sub002/internal/coreerr"
)

// RollingWindowDetector maintains the min or max of a field over the last N
// bars using a monotonic deque, giving O(1) amortised updates regardless of
// window length (spec.md §4.3).
type RollingWindowDetector struct {
	name   string
	exec   *barfeed.Feed
	field  string // "high", "low", "close", etc.
	n      int
	useMax bool

	deque []int // indices into the exec feed, monotonic by the tracked value
	value float64
	version uint64
}

func newRollingWindowDetector(name string, params map[string]float64, _ map[string]Detector, exec *barfeed.Feed) (Detector, error) {
	n := int(params["window"])
	if n <= 0 {
		return nil, coreerr.Configuration("rolling_window %q: window must be > 0", name)
	}
	useMax := params["mode_max"] != 0
	field := "close"
	switch int(params["field_code"]) {
	case 1:
		field = "high"
	case 2:
		field = "low"
	case 3:
		field = "open"
	}
	return &RollingWindowDetector{name: name, exec: exec, field: field, n: n, useMax: useMax, value: math.NaN()}, nil
}

func (d *RollingWindowDetector) Name() string           { return d.name }
func (d *RollingWindowDetector) Kind() string           { return "rolling_window" }
func (d *RollingWindowDetector) Dependencies() []string { return nil }
func (d *RollingWindowDetector) Version() uint64        { return d.version }

func (d *RollingWindowDetector) fieldValue(idx int) float64 {
	o, h, l, c, _ := d.exec.GetOHLC(idx)
	switch d.field {
	case "high":
		return h
	case "low":
		return l
	case "open":
		return o
	default:
		return c
	}
}

func (d *RollingWindowDetector) Update(idx int, _ barfeed.Bar) error {
	v := d.fieldValue(idx)

	better := func(a, b float64) bool {
		if d.useMax {
			return a >= b
		}
		return a <= b
	}
	for len(d.deque) > 0 && better(v, d.fieldValue(d.deque[len(d.deque)-1])) {
		d.deque = d.deque[:len(d.deque)-1]
	}
	d.deque = append(d.deque, idx)

	for len(d.deque) > 0 && d.deque[0] <= idx-d.n {
		d.deque = d.deque[1:]
	}

	newVal := d.fieldValue(d.deque[0])
	if newVal != d.value {
		d.value = newVal
		d.version++
	}
	return nil
}

func (d *RollingWindowDetector) GetField(name string) (any, bool) {
	if name == "value" {
		return d.value, true
	}
	return nil, false
}
