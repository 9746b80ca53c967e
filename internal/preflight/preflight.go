package preflight

import (
	"github.com/plife507/TRADE-sub002/internal/barfeed"
	"github.com/plife507/TRADE-sub002/internal/coreerr"
	"github.com/plife507/TRADE-sub002/internal/play"
)

// Report is the result of a full preflight Check: the computed warmup
// figure plus nothing else on success. A non-nil error from Check means the
// run must not start (spec.md §4.10: "fails before the run starts").
type Report struct {
	Warmup Warmup
}

// Check runs preflight checks (a)-(d) against a Play and its wired
// MultiFeed: warmup computability first, with the window-operator bound
// folded into it via rules.Compile, since both coverage checks need the
// warmup figure; then OHLCV coverage and 1-minute coverage over the window
// extended back by that warmup. windowStartMs/windowEndMs bound the
// requested run window.
func Check(p *play.Play, mf *barfeed.MultiFeed, windowStartMs, windowEndMs int64) (*Report, error) {
	warmup, err := CheckWarmup(p)
	if err != nil {
		return nil, err
	}

	exec := mf.Exec()
	if exec == nil || exec.Len() == 0 {
		return nil, coreerr.Preflight("exec role has no data")
	}
	warmupBarMs := exec.TfMs * int64(warmup.TotalBars)
	warmupStartMs := windowStartMs - warmupBarMs

	if err := CheckOHLCVCoverage(mf, p.Timeframes, warmupStartMs, windowEndMs); err != nil {
		return nil, err
	}
	if err := CheckOneMinuteCoverage(mf, warmupStartMs, windowEndMs); err != nil {
		return nil, err
	}

	return &Report{Warmup: warmup}, nil
}
