// Command backtest is the offline entry point: load a Play and its
// declared data, run preflight, replay the full window through
// runner.BarProcessor, write the artifact set, and record the run in the
// registry — spec.md §6's run_backtest(play, window_start, window_end,
// data_sources) contract and exit codes.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/plife507/TRADE-sub002/internal/artifact"
	"github.com/plife507/TRADE-sub002/internal/barfeed"
	"github.com/plife507/TRADE-sub002/internal/config"
	"github.com/plife507/TRADE-sub002/internal/coreerr"
	"github.com/plife507/TRADE-sub002/internal/indicator"
	"github.com/plife507/TRADE-sub002/internal/obslog"
	"github.com/plife507/TRADE-sub002/internal/obsmetrics"
	"github.com/plife507/TRADE-sub002/internal/play"
	"github.com/plife507/TRADE-sub002/internal/preflight"
	"github.com/plife507/TRADE-sub002/internal/runner"
	"github.com/plife507/TRADE-sub002/internal/store"
)

func main() {
	os.Exit(run())
}

func run() int {
	envPath := os.Getenv("ENV_FILE")
	if envPath == "" {
		envPath = ".env"
	}
	cfg, err := config.Load(envPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return coreerr.ExitCode(err)
	}

	eng, err := config.Bootstrap(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return coreerr.ExitCode(err)
	}
	defer eng.Close()

	if err := execute(eng, cfg); err != nil {
		eng.ReportLog.Error(err)
		return coreerr.ExitCode(err)
	}
	return 0
}

func execute(eng *config.Engine, cfg *config.RunConfig) error {
	p, err := loadPlay(cfg.PlayPath)
	if err != nil {
		return err
	}

	mf, err := loadMultiFeed(cfg, p)
	if err != nil {
		return err
	}

	report, err := preflight.Check(p, mf, cfg.WindowStart, cfg.WindowEnd)
	if err != nil {
		return err
	}
	eng.ReportLog.Infof("preflight ok: warmup=%d (indicator=%d structure=%d window=%d)",
		report.Warmup.TotalBars, report.Warmup.IndicatorBars, report.Warmup.StructureBars, report.Warmup.WindowBars)

	bp, err := runner.New(p, mf)
	if err != nil {
		return err
	}

	res, err := bp.Run(context.Background())
	if err != nil {
		return err
	}

	if cfg.AuditMode {
		if err := runAudits(p, mf); err != nil {
			return err
		}
		eng.ReportLog.Info("audits passed: contract, math parity")
	}

	trades := artifact.ReconcileTrades(res.Fills, res.EquityCurve)
	result := artifact.ComputeResult(p, res, trades)

	manifest := artifact.Build(p, mf, res, outputsOf)

	runDir := filepath.Join(cfg.ArtifactsDir, manifest.RunHash)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return fmt.Errorf("backtest: create artifacts dir: %w", err)
	}

	manifestPath := filepath.Join(runDir, "manifest.json")
	resultPath := filepath.Join(runDir, "result.json")
	if err := artifact.WriteManifest(manifestPath, manifest); err != nil {
		return err
	}
	if err := artifact.WriteResult(resultPath, result); err != nil {
		return err
	}
	if err := artifact.WriteTradesParquet(filepath.Join(runDir, "trades.parquet"), trades); err != nil {
		return err
	}
	if err := artifact.WriteEquityParquet(filepath.Join(runDir, "equity.parquet"), res.EquityCurve); err != nil {
		return err
	}

	rc := eng.NewRun(manifest.RunHash, p.ID, p.Symbol)
	recordMetrics(rc.Metrics, res)
	for i, br := range res.Bars {
		obslog.BarEvent(rc.RunLog, br.ExecIdx, br.Equity.TsCloseMs, br.Equity.EquityUSDT)
		_ = i
	}

	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("backtest: marshal result for registry: %w", err)
	}

	rec := &store.RunRecord{
		RunHash:       manifest.RunHash,
		PlayID:        p.ID,
		PlayVersion:   p.Version,
		Symbol:        p.Symbol,
		WindowStartMs: manifest.WindowStartMs,
		WindowEndMs:   manifest.WindowEndMs,
		ManifestPath:  manifestPath,
		ResultJSON:    string(resultJSON),
		CreatedAt:     time.UnixMilli(manifest.WindowEndMs).UTC(),
	}
	if err := eng.Store.Upsert(rec); err != nil {
		return err
	}

	eng.ReportLog.Infof("run %s complete: %d bars, %d trades, ending equity %.2f",
		manifest.RunHash, len(res.Bars), len(trades), result.FinalEquityUSDT)
	return nil
}

func loadPlay(path string) (*play.Play, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, coreerr.Configuration("backtest: read play %s: %v", path, err)
	}
	var p play.Play
	if err := json.Unmarshal(b, &p); err != nil {
		return nil, coreerr.Configuration("backtest: parse play %s: %v", path, err)
	}
	return &p, nil
}

// loadMultiFeed reads one parquet file per declared role plus the dense
// 1-minute quote feed from cfg.DataDir, named <symbol>_<role>.parquet and
// <symbol>_1m.parquet respectively.
func loadMultiFeed(cfg *config.RunConfig, p *play.Play) (*barfeed.MultiFeed, error) {
	feeds := map[barfeed.Role]*barfeed.Feed{}
	for role, tf := range p.Timeframes {
		tfMs, err := barfeed.TimeframeMs(tf)
		if err != nil {
			return nil, err
		}
		bars, err := barfeed.LoadParquet(filepath.Join(cfg.DataDir, fmt.Sprintf("%s_%s.parquet", p.Symbol, role)))
		if err != nil {
			return nil, coreerr.Preflight("backtest: load role %q data: %v", role, err)
		}
		feed, err := barfeed.Build(barfeed.Role(role), tfMs, bars)
		if err != nil {
			return nil, err
		}
		feeds[barfeed.Role(role)] = feed
	}

	quoteBars, err := barfeed.LoadParquet(filepath.Join(cfg.DataDir, fmt.Sprintf("%s_1m.parquet", p.Symbol)))
	if err != nil {
		return nil, coreerr.Preflight("backtest: load 1m quote data: %v", err)
	}
	quote, err := barfeed.Build(barfeed.RoleExec, 60_000, quoteBars)
	if err != nil {
		return nil, err
	}
	if existing, ok := feeds[barfeed.RoleExec]; ok && existing.TfMs == 60_000 {
		quote = existing
	}

	return barfeed.NewMultiFeed(feeds, quote)
}

func outputsOf(kind string) []string {
	spec, err := indicator.Lookup(indicator.Kind(kind))
	if err != nil {
		return nil
	}
	return spec.Outputs
}

func runAudits(p *play.Play, mf *barfeed.MultiFeed) error {
	if err := preflight.ContractAudit(p, mf); err != nil {
		return err
	}
	if err := preflight.MathParityAudit(p, mf); err != nil {
		return err
	}
	return nil
}

func recordMetrics(ms *obsmetrics.MetricSet, res *runner.RunResult) {
	for _, br := range res.Bars {
		sr := obsmetrics.StepResult{
			EquityUSDT:  br.Equity.EquityUSDT,
			EvalSeconds: 0,
		}
		if len(br.Fills) > 0 {
			sr.FillReason = string(br.Fills[len(br.Fills)-1].Reason)
		}
		if len(br.Rejections) > 0 {
			sr.RejectReason = br.Rejections[len(br.Rejections)-1].Reason
		}
		if br.Step != nil {
			sr.Liquidated = br.Step.Liquidated
		}
		ms.Observe(sr)
	}
}
