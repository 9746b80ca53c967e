// Package barfeed implements the array-backed multi-timeframe data plane:
// the Bar type, the per-(symbol,timeframe) Feed, the MultiFeed role map, and
// the dense one-minute quote feed. Everything here is built once at prep
// time and is immutable and read-only for the rest of a run.
package barfeed

import (
	"fmt"

	"github.com/plife507/TRADE-sub002/internal/coreerr"
)

// Role identifies a timeframe's part in a Play, per spec.md §3 MultiFeed.
type Role string

const (
	RoleExec Role = "exec"
	RoleHTF  Role = "htf"
	RoleMTF  Role = "mtf"
)

// Bar is the canonical OHLCV candle. ts_close_ms is exclusive; ts_open_ms is
// inclusive. Invariants (checked by Validate, not re-checked per read):
// ts_close_ms - ts_open_ms == tf duration; low <= min(open,close); high >=
// max(open,close).
type Bar struct {
	TsOpenMs  int64
	TsCloseMs int64
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// Validate checks the OHLC invariants spec.md §3 requires of every Bar.
func (b Bar) Validate(tfMs int64) error {
	if b.TsCloseMs-b.TsOpenMs != tfMs {
		return coreerr.Configuration("bar at ts_open=%d has duration %dms, want %dms", b.TsOpenMs, b.TsCloseMs-b.TsOpenMs, tfMs)
	}
	minOC := b.Open
	if b.Close < minOC {
		minOC = b.Close
	}
	maxOC := b.Open
	if b.Close > maxOC {
		maxOC = b.Close
	}
	if b.Low > minOC {
		return coreerr.Configuration("bar at ts_open=%d has low %v above min(open,close) %v", b.TsOpenMs, b.Low, minOC)
	}
	if b.High < maxOC {
		return coreerr.Configuration("bar at ts_open=%d has high %v below max(open,close) %v", b.TsOpenMs, b.High, maxOC)
	}
	return nil
}

// TimeframeMs returns the duration of one bar for a declared timeframe
// string such as "1m", "5m", "1h", "4h", "1d".
func TimeframeMs(tf string) (int64, error) {
	unit := tf[len(tf)-1]
	var mult int64
	if _, err := fmt.Sscanf(tf[:len(tf)-1], "%d", &mult); err != nil || mult <= 0 {
		return 0, coreerr.Configuration("invalid timeframe %q", tf)
	}
	switch unit {
	case 'm':
		return mult * 60_000, nil
	case 'h':
		return mult * 3_600_000, nil
	case 'd':
		return mult * 86_400_000, nil
	default:
		return 0, coreerr.Configuration("invalid timeframe unit in %q", tf)
	}
}
