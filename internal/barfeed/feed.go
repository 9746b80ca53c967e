package barfeed

import (
	"math"
	"sort"

	"github.com/plife507/TRADE-sub002/internal/coreerr"
)

// Feed is an immutable, array-backed ordered sequence of Bars for one
// (symbol, timeframe) pair, plus zero or more indicator columns aligned 1:1
// with the bars. Index access is O(1); ts_close_ms -> index lookups are
// O(1) via a prebuilt map, with a binary-search fallback for forward-fill.
type Feed struct {
	Role       Role
	TfMs       int64
	bars       []Bar
	closeToIdx map[int64]int
	columns    map[string][]float64 // indicator key -> dense column, NaN where not yet computed
}

// NaN is the shared missing-value sentinel for indicator and structure
// columns, per spec.md §4.2.
var NaN = math.NaN()

// Build copies bars into a Feed and precomputes the close-timestamp index.
// Bars must already be sorted ascending by ts_open_ms; Build does not sort
// defensively because a silently-resorted feed would hide a data bug.
func Build(role Role, tfMs int64, bars []Bar) (*Feed, error) {
	if len(bars) == 0 {
		return nil, coreerr.Configuration("feed %s: no bars supplied", role)
	}
	idx := make(map[int64]int, len(bars))
	for i, b := range bars {
		if err := b.Validate(tfMs); err != nil {
			return nil, err
		}
		if i > 0 && bars[i-1].TsOpenMs >= b.TsOpenMs {
			return nil, coreerr.Configuration("feed %s: bars not strictly increasing at index %d", role, i)
		}
		idx[b.TsCloseMs] = i
	}
	f := &Feed{
		Role:       role,
		TfMs:       tfMs,
		bars:       bars,
		closeToIdx: idx,
		columns:    make(map[string][]float64),
	}
	return f, nil
}

// Len returns the number of bars in the feed.
func (f *Feed) Len() int { return len(f.bars) }

// Bar returns the bar at idx. Callers on the hot path are expected to have
// already range-checked idx against Len(); Bar panics on out-of-range
// access because that indicates a logic bug in the caller, not bad data.
func (f *Feed) Bar(idx int) Bar { return f.bars[idx] }

// GetOHLC returns the OHLCV tuple at idx.
func (f *Feed) GetOHLC(idx int) (open, high, low, close, volume float64) {
	b := f.bars[idx]
	return b.Open, b.High, b.Low, b.Close, b.Volume
}

// SetColumn installs a dense indicator column, aligned 1:1 with bars. Called
// once by the Indicator Layer at prep time; never mutated afterwards.
func (f *Feed) SetColumn(key string, values []float64) error {
	if len(values) != len(f.bars) {
		return coreerr.Configuration("column %q length %d does not match feed length %d", key, len(values), len(f.bars))
	}
	f.columns[key] = values
	return nil
}

// GetIndicator returns the value of column key at idx, or NaN if the column
// or the index is not present. A read past the end of a warmup window is
// exactly this NaN path, not an error.
func (f *Feed) GetIndicator(key string, idx int) float64 {
	col, ok := f.columns[key]
	if !ok || idx < 0 || idx >= len(col) {
		return NaN
	}
	return col[idx]
}

// HasColumn reports whether key has been computed for this feed.
func (f *Feed) HasColumn(key string) bool {
	_, ok := f.columns[key]
	return ok
}

// ColumnNames returns every installed indicator column key, in sorted
// order, for audits that need to diff the full set of what was computed
// against what a Play declared (spec.md §4.10 Contract audit).
func (f *Feed) ColumnNames() []string {
	names := make([]string, 0, len(f.columns))
	for k := range f.columns {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// IdxAtOrBefore returns the largest index j such that bars[j].TsCloseMs <=
// tsCloseMs, or -1 if no such bar exists. This is the forward-fill lookup a
// coarser timeframe uses from a finer one (spec.md §3 MultiFeed, invariant 3
// in spec.md §8).
func (f *Feed) IdxAtOrBefore(tsCloseMs int64) int {
	if exact, ok := f.closeToIdx[tsCloseMs]; ok {
		return exact
	}
	// Binary search over the (monotonic) close timestamps.
	n := len(f.bars)
	i := sort.Search(n, func(i int) bool { return f.bars[i].TsCloseMs > tsCloseMs })
	return i - 1
}
