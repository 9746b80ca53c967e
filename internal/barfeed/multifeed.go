package barfeed

import (
	"sort"

	"github.com/plife507/TRADE-sub002/internal/coreerr"
)

// MultiFeed maps a Role to its Feed plus the always-present dense one-minute
// quote feed (spec.md §3). The execution timeframe is the finest declared
// timeframe; coarser roles forward-fill against it.
type MultiFeed struct {
	feeds map[Role]*Feed
	quote *Feed // dense 1-minute feed, always present
}

// NewMultiFeed builds a MultiFeed from role feeds and the quote feed. The
// quote feed's timeframe must be exactly one minute.
func NewMultiFeed(feeds map[Role]*Feed, quote *Feed) (*MultiFeed, error) {
	if _, ok := feeds[RoleExec]; !ok {
		return nil, coreerr.Configuration("multifeed: missing required exec role")
	}
	if quote == nil {
		return nil, coreerr.Configuration("multifeed: missing required 1-minute quote feed")
	}
	if quote.TfMs != 60_000 {
		return nil, coreerr.Configuration("multifeed: quote feed must be 1m, got %dms", quote.TfMs)
	}
	return &MultiFeed{feeds: feeds, quote: quote}, nil
}

// Feed returns the feed for role, or nil if that role was not declared.
func (m *MultiFeed) Feed(role Role) *Feed { return m.feeds[role] }

// Exec is shorthand for Feed(RoleExec); every run has one.
func (m *MultiFeed) Exec() *Feed { return m.feeds[RoleExec] }

// Quote returns the always-present dense 1-minute feed.
func (m *MultiFeed) Quote() *Feed { return m.quote }

// ForwardFillIdx resolves the index into role's feed that corresponds to
// the exec feed's bar at execIdx, per spec.md invariant 3 ("forward-fill"):
// the highest index j in that TF with ts_close[j] <= ts_close_exec[execIdx].
// Returns -1 if role isn't warm yet at this exec index.
func (m *MultiFeed) ForwardFillIdx(role Role, execIdx int) int {
	target, ok := m.feeds[role]
	if !ok {
		return -1
	}
	execTsClose := m.Exec().Bar(execIdx).TsCloseMs
	return target.IdxAtOrBefore(execTsClose)
}

// QuoteIdxAtOrBefore resolves the 1-minute quote index for a given close
// timestamp, used for intra-bar mark price and the 1-minute sub-loop.
func (m *MultiFeed) QuoteIdxAtOrBefore(tsCloseMs int64) int {
	return m.quote.IdxAtOrBefore(tsCloseMs)
}

// MinuteBarsWithin returns the slice bounds [startIdx, endIdx) of quote bars
// whose ts_open_ms falls within [tsOpenMs, tsCloseMs) of an exec bar — the
// 1-minute bars "contained in" that exec bar, per spec.md §4.6 step 3.
func (m *MultiFeed) MinuteBarsWithin(tsOpenMs, tsCloseMs int64) (startIdx, endIdx int) {
	n := m.quote.Len()
	startIdx = sort.Search(n, func(i int) bool { return m.quote.Bar(i).TsOpenMs >= tsOpenMs })
	endIdx = sort.Search(n, func(i int) bool { return m.quote.Bar(i).TsOpenMs >= tsCloseMs })
	if endIdx < startIdx {
		endIdx = startIdx
	}
	return startIdx, endIdx
}
