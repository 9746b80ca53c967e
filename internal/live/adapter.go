// Package live drives BarProcessor.ProcessBar from a websocket feed instead
// of an offline replay loop. It contains no decision logic of its own:
// spec.md §4.8 requires "no separate live decision path exists anywhere in
// the module", so the only thing this package is allowed to decide is when
// the next exec bar has closed.
package live

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/plife507/TRADE-sub002/internal/runner"
)

// candleMessage is the subset of Bybit's public kline websocket payload
// this adapter needs: a list of candle updates, each carrying whether the
// candle is confirmed (closed) yet.
type candleMessage struct {
	Topic string `json:"topic"`
	Data  []struct {
		Start   int64  `json:"start"`
		Confirm bool   `json:"confirm"`
		Symbol  string `json:"symbol,omitempty"`
	} `json:"data"`
}

// Adapter owns one websocket connection and advances a single
// runner.BarProcessor one exec bar at a time as closed candles arrive. It
// assumes the BarProcessor's MultiFeed is kept current by whatever
// refreshes the underlying data directory (a periodic feed.DataSource
// fetch) — this package only recognizes "bar N has closed" and calls
// ProcessBar(ctx, N); it never constructs a Bar itself.
type Adapter struct {
	conn *websocket.Conn
	bp   *runner.BarProcessor

	mu      sync.Mutex
	nextIdx int

	// OnBar, if set, is called with the result of every ProcessBar
	// invocation — the live analogue of the offline loop recording
	// artifacts per bar.
	OnBar func(*runner.BarResult)
}

// NewAdapter wires an already-connected websocket to an already-built
// BarProcessor, starting at startIdx (typically the first exec index past
// the BarProcessor's warmup window).
func NewAdapter(conn *websocket.Conn, bp *runner.BarProcessor, startIdx int) *Adapter {
	return &Adapter{conn: conn, bp: bp, nextIdx: startIdx}
}

// Run reads from the websocket until ctx is cancelled or the connection
// closes, calling ProcessBar once per confirmed candle close. It runs on a
// single goroutine: spec.md's concurrency model keeps exactly one
// evaluation path active per run, so there is no second goroutine racing
// this one over the same BarProcessor.
func (a *Adapter) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		_, raw, err := a.conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("live: websocket read: %w", err)
		}

		var msg candleMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue // non-candle control message (subscribe ack, ping/pong)
		}

		for _, c := range msg.Data {
			if !c.Confirm {
				continue
			}
			if err := a.processNext(ctx); err != nil {
				return err
			}
		}
	}
}

func (a *Adapter) processNext(ctx context.Context) error {
	a.mu.Lock()
	idx := a.nextIdx
	a.nextIdx++
	a.mu.Unlock()

	res, err := a.bp.ProcessBar(ctx, idx)
	if err != nil {
		return fmt.Errorf("live: process bar %d: %w", idx, err)
	}
	if a.OnBar != nil {
		a.OnBar(res)
	}
	return nil
}

// Close closes the underlying websocket connection.
func (a *Adapter) Close() error {
	return a.conn.Close()
}
