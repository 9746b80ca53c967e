package structure

import (
	"math"

	"github.com/plife507/TRADE-sub002/internal/barfeed"
	"github.com/plife507/TRADE-sub002/internal/coreerr"
)

// swingCandidate is one bar sitting in the confirmation ring buffer.
type swingCandidate struct {
	idx  int
	bar  barfeed.Bar
}

// SwingDetector confirms fractal pivots: a bar is a confirmed high when its
// high is the (strict, by default) extreme over `left` bars before and
// `right` bars after it; symmetric for lows. Open question 1 in spec.md §9
// is resolved here: strict comparison is the default, relaxed via the
// explicit `strict` parameter (0 = non-strict, any nonzero = strict).
type SwingDetector struct {
	name  string
	left  int
	right int
	strict bool

	useATRZigzag bool
	kATR         float64
	exec         *barfeed.Feed

	buf []swingCandidate // ring of the last left+right+1 bars

	highLevel, lowLevel       float64
	lastHighIdx, lastLowIdx   int
	prevHighLevel, prevLowLevel float64
	lastKind                  string // "high" | "low" | ""
	version                   uint64
}

func newSwingDetector(name string, params map[string]float64, _ map[string]Detector, exec *barfeed.Feed) (Detector, error) {
	left := int(params["left"])
	right := int(params["right"])
	if left <= 0 || right <= 0 {
		return nil, coreerr.Configuration("swing %q: left and right must both be > 0", name)
	}
	strict := true
	if v, ok := params["strict"]; ok && v == 0 {
		strict = false
	}
	d := &SwingDetector{
		name:       name,
		left:       left,
		right:      right,
		strict:     strict,
		exec:       exec,
		highLevel:  math.NaN(),
		lowLevel:   math.NaN(),
		prevHighLevel: math.NaN(),
		prevLowLevel:  math.NaN(),
	}
	if k, ok := params["atr_zigzag_k"]; ok && k > 0 {
		d.useATRZigzag = true
		d.kATR = k
	}
	return d, nil
}

func (d *SwingDetector) Name() string           { return d.name }
func (d *SwingDetector) Kind() string           { return "swing" }
func (d *SwingDetector) Dependencies() []string { return nil }
func (d *SwingDetector) Version() uint64        { return d.version }

func (d *SwingDetector) Update(idx int, bar barfeed.Bar) error {
	d.buf = append(d.buf, swingCandidate{idx: idx, bar: bar})
	window := d.left + d.right + 1
	if len(d.buf) > window {
		d.buf = d.buf[len(d.buf)-window:]
	}
	if len(d.buf) < window {
		return nil
	}

	mid := d.buf[d.left]
	isHigh := true
	isLow := true
	for i, c := range d.buf {
		if i == d.left {
			continue
		}
		if d.strict {
			if c.bar.High >= mid.bar.High {
				isHigh = false
			}
			if c.bar.Low <= mid.bar.Low {
				isLow = false
			}
		} else {
			if c.bar.High > mid.bar.High {
				isHigh = false
			}
			if c.bar.Low < mid.bar.Low {
				isLow = false
			}
		}
	}

	if isHigh {
		d.confirmHigh(mid)
	}
	if isLow {
		d.confirmLow(mid)
	}
	return nil
}

func (d *SwingDetector) confirmHigh(mid swingCandidate) {
	if d.useATRZigzag && d.lastKind == "high" {
		// Same-kind duplicate: replace only if strictly more extreme.
		if mid.bar.High <= d.highLevel {
			return
		}
	}
	if d.useATRZigzag && d.lastKind == "low" {
		atr := atrAt(d.exec, mid.idx)
		if !math.IsNaN(atr) && mid.bar.High-d.lowLevel < d.kATR*atr {
			return // reversal too small to count as a new pivot
		}
	}
	if d.lastKind == "high" && mid.bar.High <= d.highLevel {
		return // alternation rule: duplicate same-kind pivot only replaces if more extreme
	}
	d.prevHighLevel = d.highLevel
	d.highLevel = mid.bar.High
	d.lastHighIdx = mid.idx
	d.lastKind = "high"
	d.version++
}

func (d *SwingDetector) confirmLow(mid swingCandidate) {
	if d.useATRZigzag && d.lastKind == "low" {
		if mid.bar.Low >= d.lowLevel {
			return
		}
	}
	if d.useATRZigzag && d.lastKind == "high" {
		atr := atrAt(d.exec, mid.idx)
		if !math.IsNaN(atr) && d.highLevel-mid.bar.Low < d.kATR*atr {
			return
		}
	}
	if d.lastKind == "low" && mid.bar.Low >= d.lowLevel {
		return
	}
	d.prevLowLevel = d.lowLevel
	d.lowLevel = mid.bar.Low
	d.lastLowIdx = mid.idx
	d.lastKind = "low"
	d.version++
}

// atrAt is a best-effort ATR(14) lookup used by the optional zigzag mode
// and by ZoneDetector; if the exec feed has no atr_14 column the zigzag
// filter is simply skipped (every pivot counts) and no zone is emitted,
// never a hard failure.
func atrAt(f *barfeed.Feed, idx int) float64 {
	if f == nil {
		return math.NaN()
	}
	return f.GetIndicator("atr_14", idx)
}

func (d *SwingDetector) GetField(name string) (any, bool) {
	switch name {
	case "high_level":
		return d.highLevel, true
	case "low_level":
		return d.lowLevel, true
	case "prev_high_level":
		return d.prevHighLevel, true
	case "prev_low_level":
		return d.prevLowLevel, true
	case "last_high_idx":
		return d.lastHighIdx, true
	case "last_low_idx":
		return d.lastLowIdx, true
	case "last_kind":
		return d.lastKind, true
	case "version":
		return d.version, true
	default:
		return nil, false
	}
}
