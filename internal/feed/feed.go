// Package feed supplies the klines a live run or a data-refresh job needs,
// behind a DataSource interface the core never depends on directly —
// only internal/live and whatever CLI populates the on-disk data directory
// call into it (SPEC_FULL.md §4.16).
package feed

import (
	"context"

	"github.com/plife507/TRADE-sub002/internal/barfeed"
)

// DataSource fetches closed klines for one symbol/timeframe/range. Every
// implementation returns only closed candles — spec.md's "closed-candle
// only" invariant holds regardless of which exchange or vendor backs it.
type DataSource interface {
	FetchKlines(ctx context.Context, symbol, timeframe string, startMs, endMs int64) ([]barfeed.Bar, error)
}
