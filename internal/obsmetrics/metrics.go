// Package obsmetrics exposes a private Prometheus registry and the gauge,
// counter, and histogram vectors a single backtest run populates as it
// processes exec bars (SPEC_FULL.md §4.13). The registry is never the global
// default: two runs in the same process (a parameter sweep, or the reporting
// server embedding the most recent run) must never collide on label sets.
package obsmetrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricSet is the full collection of metrics one run's Runner reports
// through, all sharing the play_id/symbol label pair so a scrape can
// disambiguate concurrent runs sharing a process.
type MetricSet struct {
	Registry *prometheus.Registry

	EquityUSDT          *prometheus.GaugeVec
	DrawdownPct         *prometheus.GaugeVec
	FillsTotal          *prometheus.CounterVec
	RejectionsTotal     *prometheus.CounterVec
	LiquidationsTotal   *prometheus.CounterVec
	BarsProcessedTotal  *prometheus.CounterVec
	EvalDurationSeconds *prometheus.HistogramVec

	playID, symbol string
}

// New builds a MetricSet on a fresh, private registry and registers the Go
// runtime and process collectors on it, following the teacher's metrics.Init
// pattern of giving every run's registry the same baseline collectors a
// default /metrics endpoint would carry.
func New(playID, symbol string) *MetricSet {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector())
	reg.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	labels := []string{"play_id", "symbol"}

	ms := &MetricSet{
		Registry: reg,
		playID:   playID,
		symbol:   symbol,

		EquityUSDT: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "backtest",
			Name:      "equity_usdt",
			Help:      "Mark-to-market account equity in USDT as of the most recently processed exec bar.",
		}, labels),
		DrawdownPct: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "backtest",
			Name:      "drawdown_pct",
			Help:      "Current drawdown from the running equity high-water mark, as a fraction.",
		}, labels),
		FillsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "backtest",
			Name:      "fills_total",
			Help:      "Count of order fills, labelled by fill reason.",
		}, append(labels, "reason")),
		RejectionsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "backtest",
			Name:      "rejections_total",
			Help:      "Count of rejected intents, labelled by rejection reason.",
		}, append(labels, "reason")),
		LiquidationsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "backtest",
			Name:      "liquidations_total",
			Help:      "Count of forced liquidations.",
		}, labels),
		BarsProcessedTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "backtest",
			Name:      "bars_processed_total",
			Help:      "Count of exec bars processed so far.",
		}, labels),
		EvalDurationSeconds: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "backtest",
			Name:      "eval_duration_seconds",
			Help:      "Wall-clock time spent evaluating one exec bar, including rule evaluation and exchange matching.",
			Buckets:   prometheus.DefBuckets,
		}, labels),
	}
	return ms
}

// StepResult is the narrow slice of a processed bar's outcome Observe needs,
// kept separate from runner's own step result type so this package doesn't
// import runner; cmd/backtest builds one from each runner.BarResult.
type StepResult struct {
	EquityUSDT   float64
	DrawdownPct  float64
	FillReason   string // empty if no fill occurred this bar
	RejectReason string // empty if nothing was rejected this bar
	Liquidated   bool
	EvalSeconds  float64
}

// Observe records one exec bar's outcome. cmd/backtest calls this once per
// processed exec bar after the run's artifacts are already written, so a
// panic or slow collector in the metrics path can never affect what gets
// written to the ledger.
func (m *MetricSet) Observe(r StepResult) {
	labels := prometheus.Labels{"play_id": m.playID, "symbol": m.symbol}
	m.EquityUSDT.With(labels).Set(r.EquityUSDT)
	m.DrawdownPct.With(labels).Set(r.DrawdownPct)
	m.BarsProcessedTotal.With(labels).Inc()
	m.EvalDurationSeconds.With(labels).Observe(r.EvalSeconds)

	if r.FillReason != "" {
		m.FillsTotal.With(prometheus.Labels{"play_id": m.playID, "symbol": m.symbol, "reason": r.FillReason}).Inc()
	}
	if r.RejectReason != "" {
		m.RejectionsTotal.With(prometheus.Labels{"play_id": m.playID, "symbol": m.symbol, "reason": r.RejectReason}).Inc()
	}
	if r.Liquidated {
		m.LiquidationsTotal.With(labels).Inc()
	}
}
