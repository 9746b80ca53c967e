// Package preflight implements spec.md §4.10's pre-run validation and the
// four offline audits: verifying OHLCV/one-minute coverage and warmup
// computability before a run starts, and — against an already-prepared or
// completed run — checking that declared indicator outputs match what was
// actually computed, that engine math agrees with an independent
// recomputation, that Snapshot path resolution agrees with direct array
// access, and that exec-bar aggregates agree with their 1-minute
// constituents.
package preflight

import (
	"github.com/plife507/TRADE-sub002/internal/barfeed"
	"github.com/plife507/TRADE-sub002/internal/coreerr"
)

// minOneMinuteCoverage is the floor spec.md §4.10 names: below this, a run
// is refused rather than silently degraded.
const minOneMinuteCoverage = 0.95

// CheckOHLCVCoverage verifies that every declared role's Feed spans the
// run window minus its warmup: the Feed's first bar must open at or before
// warmupStartMs, and its last bar must close at or after windowEndMs.
func CheckOHLCVCoverage(mf *barfeed.MultiFeed, timeframes map[string]string, warmupStartMs, windowEndMs int64) error {
	for role := range timeframes {
		feed := mf.Feed(barfeed.Role(role))
		if feed == nil || feed.Len() == 0 {
			return coreerr.Preflight("role %q has no data", role)
		}
		first := feed.Bar(0)
		last := feed.Bar(feed.Len() - 1)
		if first.TsOpenMs > warmupStartMs {
			return coreerr.Preflight("role %q coverage starts at %d, needs %d (window minus warmup)", role, first.TsOpenMs, warmupStartMs)
		}
		if last.TsCloseMs < windowEndMs {
			return coreerr.Preflight("role %q coverage ends at %d, needs %d", role, last.TsCloseMs, windowEndMs)
		}
	}
	return nil
}

// CheckOneMinuteCoverage verifies the dense quote feed covers more than
// 95% of the expected one-minute bars across [windowStartMs, windowEndMs).
func CheckOneMinuteCoverage(mf *barfeed.MultiFeed, windowStartMs, windowEndMs int64) error {
	if windowEndMs <= windowStartMs {
		return coreerr.Preflight("window end %d is not after window start %d", windowEndMs, windowStartMs)
	}
	expected := (windowEndMs - windowStartMs) / 60_000
	if expected <= 0 {
		return coreerr.Preflight("window is shorter than one minute")
	}
	startIdx, endIdx := mf.MinuteBarsWithin(windowStartMs, windowEndMs)
	actual := endIdx - startIdx
	coverage := float64(actual) / float64(expected)
	if coverage <= minOneMinuteCoverage {
		return coreerr.Preflight("one-minute coverage %.4f over window [%d,%d) is at or below the required %.2f", coverage, windowStartMs, windowEndMs, minOneMinuteCoverage)
	}
	return nil
}
