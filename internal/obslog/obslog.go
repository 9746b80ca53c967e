// Package obslog provides the two loggers a run uses: a zerolog-based hot
// path logger cheap enough to call once per exec bar, and a logrus-based
// report logger for the human-facing text preflight and audits print to
// stdout. Neither is read by core decision logic — deleting every Log call
// in the module cannot change a trade hash (SPEC_FULL.md §4.12).
package obslog

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/sirupsen/logrus"
)

func init() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
}

// NewRunLogger returns a zerolog.Logger for one run's hot path, with
// run_hash and play_id bound once via With() so every subsequent Debug call
// pays no per-field formatting cost until a sink actually reads Debug level.
func NewRunLogger(w io.Writer, runHash, playID string) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	return zerolog.New(w).With().
		Timestamp().
		Str("run_hash", runHash).
		Str("play_id", playID).
		Logger()
}

// BarEvent logs one exec bar at Debug level. A run started at the default
// Info level never pays for this call beyond the level check — zerolog
// doesn't format the event until something is actually going to consume it.
func BarEvent(log zerolog.Logger, execIdx int, tsCloseMs int64, equityUSDT float64) {
	log.Debug().
		Int("exec_idx", execIdx).
		Int64("ts_close_ms", tsCloseMs).
		Float64("equity_usdt", equityUSDT).
		Msg("bar processed")
}

// NewReportLogger returns a logrus.Logger configured with a text formatter
// for rendering preflight and audit reports — coverage tables, warmup
// breakdowns, pass/fail lines — to a human at a terminal, the same role the
// teacher reserves for its human-facing status output.
func NewReportLogger(w io.Writer) *logrus.Logger {
	if w == nil {
		w = os.Stdout
	}
	l := logrus.New()
	l.SetOutput(w)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	l.SetLevel(logrus.InfoLevel)
	return l
}
