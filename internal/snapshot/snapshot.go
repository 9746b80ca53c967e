// Package snapshot implements the read-only stable view rule evaluation
// reads through: Snapshot.Get(path) over OHLCV, indicators, structures, and
// mark price, including offset/previous-bar lookups (spec.md §4.4).
package snapshot

import (
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/plife507/TRADE-sub002/internal/barfeed"
	"github.com/plife507/TRADE-sub002/internal/coreerr"
	"github.com/plife507/TRADE-sub002/internal/structure"
)

// Path is a tokenised, offset-resolved Snapshot path, cached so repeated
// evaluation of the same DSL path string pays the split cost once per
// process rather than once per bar (spec.md §4.4: "O(1) after a small
// path-tokenisation cache").
type Path struct {
	Raw      string
	Segments []string
	Offset   int  // previous-closed-bar offset; 0 = current bar
	HasOffset bool
}

var pathCache sync.Map // string -> Path

// ParsePath tokenises a dotted path like "indicator.ema_20@1" or
// "structure.swing1.high_level" into a cached Path. A trailing "@N" is read
// as an offset of N closed exec bars. Paths carry no role prefix: a Snapshot
// resolves every path against the exec feed, and a role-anchored form such
// as "htf:indicator.ema_200@1" is not recognised.
func ParsePath(raw string) Path {
	if v, ok := pathCache.Load(raw); ok {
		return v.(Path)
	}
	body := raw
	offset := 0
	hasOffset := false
	if i := strings.LastIndex(raw, "@"); i >= 0 {
		if n, err := strconv.Atoi(raw[i+1:]); err == nil {
			offset = n
			hasOffset = true
			body = raw[:i]
		}
	}
	p := Path{Raw: raw, Segments: strings.Split(body, "."), Offset: offset, HasOffset: hasOffset}
	pathCache.Store(raw, p)
	return p
}

// Snapshot is built once per evaluation point (once per 1-minute sub-bar
// inside an exec bar) and never triggers recomputation — every value it
// can return was already computed by the Feed Store, Indicator Layer, or
// Structure Engine.
type Snapshot struct {
	mf       *barfeed.MultiFeed
	structs  *structure.Engine
	execIdx  int     // current closed exec bar index
	markPrice float64 // price.mark for this evaluation point (1m close intrabar, exec close otherwise)
	tsCloseMs int64   // timestamp this snapshot was evaluated at (<=t, no-lookahead contract)
}

// Build constructs a Snapshot anchored at execIdx with the given mark price
// and evaluation timestamp. Only bars at index <= execIdx are ever visible
// through the returned Snapshot (spec.md invariant 2, "closed-candle only").
func Build(mf *barfeed.MultiFeed, structs *structure.Engine, execIdx int, markPrice float64, tsCloseMs int64) *Snapshot {
	return &Snapshot{mf: mf, structs: structs, execIdx: execIdx, markPrice: markPrice, tsCloseMs: tsCloseMs}
}

// TsCloseMs returns the timestamp this snapshot was evaluated at, the bound
// every resolved path must respect (spec.md invariant 9, "no lookahead").
func (s *Snapshot) TsCloseMs() int64 { return s.tsCloseMs }

// Get resolves a dotted path string to a float64, or NaN if the value is
// not yet warm. A NaN read is not an error — callers (the rule evaluator)
// short-circuit on it, per spec.md §4.4.
func (s *Snapshot) Get(raw string) float64 {
	p := ParsePath(raw)
	return s.resolve(p)
}

func (s *Snapshot) resolve(p Path) float64 {
	if len(p.Segments) == 0 {
		return math.NaN()
	}
	idx := s.execIdx - p.Offset
	if idx < 0 {
		return math.NaN()
	}
	exec := s.mf.Exec()
	if exec == nil || idx >= exec.Len() {
		return math.NaN()
	}

	switch p.Segments[0] {
	case "price":
		return s.resolvePrice(p.Segments, idx)
	case "indicator":
		return s.resolveIndicator(p.Segments, idx)
	case "structure":
		return s.resolveStructure(p.Segments)
	default:
		// Bare key: try structure first, then indicator, matching spec.md's
		// "bare {indicator_or_structure_key} auto-resolved" rule. Structure
		// wins ties because structures are the richer namespace (field
		// suffixes); a bare indicator key has no sub-fields to collide on.
		if v, ok := s.bareStructure(p.Segments); ok {
			return v
		}
		return s.resolveIndicator(append([]string{"indicator"}, p.Segments...), idx)
	}
}

func (s *Snapshot) resolvePrice(segs []string, idx int) float64 {
	if len(segs) < 2 {
		return math.NaN()
	}
	exec := s.mf.Exec()
	o, h, l, c, v := exec.GetOHLC(idx)
	switch segs[1] {
	case "mark":
		if idx == s.execIdx {
			return s.markPrice
		}
		_, _, _, closeAt, _ := exec.GetOHLC(idx)
		return closeAt
	case "last", "close":
		return c
	case "open":
		return o
	case "high":
		return h
	case "low":
		return l
	case "volume":
		return v
	default:
		return math.NaN()
	}
}

func (s *Snapshot) resolveIndicator(segs []string, idx int) float64 {
	if len(segs) < 2 {
		return math.NaN()
	}
	key := strings.Join(segs[1:], ".")
	return s.mf.Exec().GetIndicator(key, idx)
}

func (s *Snapshot) resolveStructure(segs []string) float64 {
	if len(segs) < 3 {
		return math.NaN()
	}
	return s.fieldAsFloat(segs[1], strings.Join(segs[2:], "."))
}

func (s *Snapshot) bareStructure(segs []string) (float64, bool) {
	if len(segs) < 2 {
		return 0, false
	}
	det, ok := s.structs.Get(segs[0])
	if !ok {
		return 0, false
	}
	v, ok := det.GetField(strings.Join(segs[1:], "."))
	if !ok {
		return 0, false
	}
	return toFloat(v), true
}

func (s *Snapshot) fieldAsFloat(detName, field string) float64 {
	det, ok := s.structs.Get(detName)
	if !ok {
		return math.NaN()
	}
	if field == "closest_active_lower" || field == "closest_active_upper" {
		if dz, ok := det.(*structure.DerivedZoneDetector); ok {
			lower, upper, found := dz.ClosestActiveBounds(s.markPrice)
			if !found {
				return math.NaN()
			}
			if field == "closest_active_lower" {
				return lower
			}
			return upper
		}
	}
	v, ok := det.GetField(field)
	if !ok {
		return math.NaN()
	}
	return toFloat(v)
}

func toFloat(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case int:
		return float64(x)
	case uint64:
		return float64(x)
	case bool:
		if x {
			return 1
		}
		return 0
	case string:
		return math.NaN() // enum/state strings are resolved via GetString, not Get
	default:
		return math.NaN()
	}
}

// GetString resolves a structure path expected to hold an enum/string value
// (e.g. a zone's state or a trend's direction). The rules evaluator uses it
// to resolve string-valued intent metadata; the `in`/`eq` operators compare
// numbers read through Get, where a string field reads as NaN.
func (s *Snapshot) GetString(raw string) (string, bool) {
	p := ParsePath(raw)
	if len(p.Segments) < 2 || p.Segments[0] != "structure" {
		return "", false
	}
	det, ok := s.structs.Get(p.Segments[1])
	if !ok {
		return "", false
	}
	v, ok := det.GetField(strings.Join(p.Segments[2:], "."))
	if !ok {
		return "", false
	}
	str, ok := v.(string)
	return str, ok
}

// CompileCheck validates a path at compile time: a path whose first segment
// is neither a namespace (price, indicator, structure) nor a declared
// indicator or structure key is a ConfigurationError. The rest of a
// namespaced path and any "@N" offset are not checked here; a path that
// does not resolve reads as NaN at evaluation time.
func CompileCheck(raw string, knownIndicators, knownStructures map[string]bool) error {
	p := ParsePath(raw)
	if len(p.Segments) == 0 {
		return coreerr.Configuration("empty snapshot path")
	}
	switch p.Segments[0] {
	case "price", "indicator", "structure":
		return nil
	default:
		if knownIndicators[p.Segments[0]] || knownStructures[p.Segments[0]] {
			return nil
		}
		return coreerr.Configuration("unknown feature key %q", p.Segments[0])
	}
}
