package preflight

import (
	"fmt"
	"math"
	"sort"

	"github.com/plife507/TRADE-sub002/internal/barfeed"
	"github.com/plife507/TRADE-sub002/internal/coreerr"
	"github.com/plife507/TRADE-sub002/internal/indicator"
	"github.com/plife507/TRADE-sub002/internal/play"
)

// mathParityTolerance is the max absolute difference an independently
// recomputed indicator value may have from the engine's own column before
// the Math parity audit fails (spec.md §4.10).
const mathParityTolerance = 1e-8

// ContractAudit checks that every declared feature's registry output names
// are present, under their canonical OutputName, among the actually computed
// columns of its declaring role's Feed — no extras, no missing — catching a
// registry/Feed mismatch that a silent NaN read would otherwise hide.
func ContractAudit(p *play.Play, mf *barfeed.MultiFeed) error {
	byRole := map[barfeed.Role][]play.FeatureDecl{}
	for _, f := range p.Features {
		role := barfeed.Role(f.Role)
		if role == "" {
			role = barfeed.RoleExec
		}
		byRole[role] = append(byRole[role], f)
	}

	for role, feats := range byRole {
		feed := mf.Feed(role)
		if feed == nil {
			return coreerr.Preflight("contract audit: role %q has no feed", role)
		}
		want := map[string]bool{}
		for _, f := range feats {
			spec, err := indicator.Lookup(indicator.Kind(f.Kind))
			if err != nil {
				return err
			}
			for _, out := range spec.Outputs {
				want[indicator.OutputName(f.Key, out)] = true
			}
		}
		got := map[string]bool{}
		for _, name := range feed.ColumnNames() {
			got[name] = true
		}
		for name := range want {
			if !got[name] {
				return coreerr.Preflight("contract audit: role %q missing declared column %q", role, name)
			}
		}
		for name := range got {
			if !want[name] {
				return coreerr.Preflight("contract audit: role %q has undeclared computed column %q", role, name)
			}
		}
	}
	return nil
}

// independentInputSeries rebuilds the input series a feature's Compute call
// would have consumed, deliberately re-reading the Feed through the exported
// GetOHLC accessor rather than sharing any unexported helper with package
// indicator — the whole point of this audit is independence from the
// engine's own extraction code path.
func independentInputSeries(f *barfeed.Feed, name string) []float64 {
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
		default:
			out[i] = c
		}
	}
	return out
}

// MathParityAudit recomputes every declared feature against an
// independently-built input series and compares the result, bar for bar, to
// the Feed's own installed column, failing on any difference beyond
// mathParityTolerance (spec.md §4.10 Math parity audit). NaN is only
// considered a match against NaN (both unwarmed at that index).
func MathParityAudit(p *play.Play, mf *barfeed.MultiFeed) error {
	for _, f := range p.Features {
		role := barfeed.Role(f.Role)
		if role == "" {
			role = barfeed.RoleExec
		}
		feed := mf.Feed(role)
		if feed == nil {
			return coreerr.Preflight("math parity audit: role %q has no feed", role)
		}

		var recomputed map[string][]float64
		if indicator.Kind(f.Kind) == indicator.KindATR {
			vals, err := indicator.ComputeATR(feed, int(f.Params["period"]))
			if err != nil {
				return err
			}
			recomputed = map[string][]float64{"": vals}
		} else {
			spec, err := indicator.Lookup(indicator.Kind(f.Kind))
			if err != nil {
				return err
			}
			input := f.Input
			if input == "" {
				input = "close"
			}
			series := independentInputSeries(feed, input)
			recomputed, err = spec.Compute(series, f.Params)
			if err != nil {
				return err
			}
		}

		for outName, vals := range recomputed {
			colName := indicator.OutputName(f.Key, outName)
			for i, want := range vals {
				got := feed.GetIndicator(colName, i)
				if mismatch(want, got) {
					return coreerr.Preflight("math parity audit: column %q differs at index %d: recomputed %v, engine %v", colName, i, want, got)
				}
			}
		}
	}
	return nil
}

func mismatch(a, b float64) bool {
	if math.IsNaN(a) || math.IsNaN(b) {
		return math.IsNaN(a) != math.IsNaN(b)
	}
	return math.Abs(a-b) > mathParityTolerance
}

// snapshotView narrows the handful of methods the audit needs off a built
// Snapshot, so this file doesn't need to import package snapshot's full
// surface for a type it only ever calls Get/TsCloseMs on.
type snapshotView interface {
	Get(path string) float64
	TsCloseMs() int64
}

// SnapshotBuilder supplies the Snapshot-building collaborators a caller
// already holds (the structure Engine and mark price series) so
// SnapshotPlumbingAudit can build Snapshots identical to the ones a live run
// would have built, without reaching into runner's unexported state.
type SnapshotBuilder func(execIdx int) snapshotView

// SnapshotPlumbingAudit compares Snapshot.Get against direct Feed access for
// every declared indicator at a sample of deterministic exec indices,
// confirming the read-only view rule evaluation goes through resolves to
// exactly what's in the array-backed store (spec.md §4.10 Snapshot plumbing
// audit).
func SnapshotPlumbingAudit(p *play.Play, mf *barfeed.MultiFeed, build SnapshotBuilder, sampleIdxs []int) error {
	exec := mf.Exec()
	for _, idx := range sampleIdxs {
		if idx < 0 || idx >= exec.Len() {
			continue
		}
		snap := build(idx)
		for _, f := range p.Features {
			role := barfeed.Role(f.Role)
			if role == "" {
				role = barfeed.RoleExec
			}
			feed := mf.Feed(role)
			if feed == nil {
				continue
			}
			spec, err := indicator.Lookup(indicator.Kind(f.Kind))
			if err != nil {
				return err
			}
			for _, out := range spec.Outputs {
				colName := indicator.OutputName(f.Key, out)
				direct := feed.GetIndicator(colName, idx)
				viaSnapshot := snap.Get(fmt.Sprintf("indicator.%s", colName))
				if mismatch(direct, viaSnapshot) {
					return coreerr.Preflight("snapshot plumbing audit: %q at exec idx %d: direct %v, snapshot %v", colName, idx, direct, viaSnapshot)
				}
			}
		}
	}
	return nil
}

// RollupBar is one higher-timeframe bar plus the 1-minute quote indices it
// was built from, the shape RollupParityAudit needs to re-derive an
// aggregate independently of whatever pipeline produced the exec Feed.
type RollupBar struct {
	Open, High, Low, Close, Volume float64
	StartIdx, EndIdx               int // [StartIdx, EndIdx) into the 1-minute quote feed
}

// RollupParityAudit recomputes an OHLCV aggregate from its declared
// 1-minute constituents and compares it against the already-built bar,
// confirming exec-bar rollups agree with independent aggregation of their
// minute-level inputs (spec.md §4.10 Rollup parity audit).
func RollupParityAudit(quote *barfeed.Feed, bars []RollupBar) error {
	for i, rb := range bars {
		if rb.StartIdx >= rb.EndIdx || rb.EndIdx > quote.Len() {
			return coreerr.Preflight("rollup parity audit: bar %d has an empty or out-of-range constituent range [%d,%d)", i, rb.StartIdx, rb.EndIdx)
		}
		open, _, _, _, _ := quote.GetOHLC(rb.StartIdx)
		_, _, _, closeVal, _ := quote.GetOHLC(rb.EndIdx - 1)
		high := math.Inf(-1)
		low := math.Inf(1)
		var volume float64
		for j := rb.StartIdx; j < rb.EndIdx; j++ {
			_, h, l, _, v := quote.GetOHLC(j)
			if h > high {
				high = h
			}
			if l < low {
				low = l
			}
			volume += v
		}
		if mismatch(open, rb.Open) || mismatch(high, rb.High) || mismatch(low, rb.Low) || mismatch(closeVal, rb.Close) || mismatch(volume, rb.Volume) {
			return coreerr.Preflight("rollup parity audit: bar %d aggregate mismatch (recomputed o=%v h=%v l=%v c=%v v=%v, got o=%v h=%v l=%v c=%v v=%v)",
				i, open, high, low, closeVal, volume, rb.Open, rb.High, rb.Low, rb.Close, rb.Volume)
		}
	}
	return nil
}

// SampleIndices returns n deterministic, roughly-evenly-spaced indices
// across [0, length), used by SnapshotPlumbingAudit so a large run is
// spot-checked rather than exhaustively replayed.
func SampleIndices(length, n int) []int {
	if length <= 0 || n <= 0 {
		return nil
	}
	if n >= length {
		out := make([]int, length)
		for i := range out {
			out[i] = i
		}
		return out
	}
	out := make([]int, 0, n)
	step := float64(length) / float64(n)
	for i := 0; i < n; i++ {
		out = append(out, int(float64(i)*step))
	}
	sort.Ints(out)
	return out
}
