package config

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/sirupsen/logrus"

	"github.com/plife507/TRADE-sub002/internal/obslog"
	"github.com/plife507/TRADE-sub002/internal/obsmetrics"
	"github.com/plife507/TRADE-sub002/internal/store"
)

// Engine is the explicit, non-singleton run context SPEC_FULL.md §4.11
// calls for: the collaborators that exist before any Play is loaded (the
// run registry, the human-facing report logger) plus a factory for the
// per-run collaborators (hot-path logger, metrics) that need a Play's
// identity before they can be constructed.
type Engine struct {
	Config    *RunConfig
	Store     *store.RunStore
	ReportLog *logrus.Logger
}

// RunContext holds the collaborators scoped to exactly one Play run: a
// zerolog logger pre-bound to that run's hash and Play id, and a private
// metrics registry labelled the same way.
type RunContext struct {
	RunLog  zerolog.Logger
	Metrics *obsmetrics.MetricSet
}

// Bootstrap opens the run registry and constructs the one Engine a backtest
// invocation uses end to end. There is no package-level Engine variable —
// every caller (cmd/backtest, cmd/server, a test) builds and owns its own.
func Bootstrap(cfg *RunConfig) (*Engine, error) {
	st, err := store.Open(cfg.SqlitePath)
	if err != nil {
		return nil, err
	}
	return &Engine{
		Config:    cfg,
		Store:     st,
		ReportLog: obslog.NewReportLogger(os.Stdout),
	}, nil
}

// NewRun binds a loaded Play's identity to a fresh logger and metric set.
// Called once the Play is parsed and, for the logger's run_hash field, once
// the run's manifest hash is known — a caller running preflight-only checks
// before a manifest exists may pass an empty runHash.
func (e *Engine) NewRun(runHash, playID, symbol string) *RunContext {
	runLog := obslog.NewRunLogger(os.Stderr, runHash, playID)
	if e.Config != nil && e.Config.LogLevel != "" {
		if lvl, err := zerolog.ParseLevel(e.Config.LogLevel); err == nil {
			runLog = runLog.Level(lvl)
		}
	}
	return &RunContext{
		RunLog:  runLog,
		Metrics: obsmetrics.New(playID, symbol),
	}
}

// Close releases the Engine's process-lifetime resources.
func (e *Engine) Close() error {
	return e.Store.Close()
}
