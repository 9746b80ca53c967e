// Package artifact writes the per-run output set spec.md §4.9 requires:
// manifest.json, trades.parquet, equity.parquet, and result.json. Two runs
// of the same Play over the same window must produce byte-identical
// artifacts, so every writer here sorts map-derived data before encoding
// and never touches wall-clock time or random state.
package artifact

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/plife507/TRADE-sub002/internal/barfeed"
	"github.com/plife507/TRADE-sub002/internal/play"
	"github.com/plife507/TRADE-sub002/internal/runner"
	"golang.org/x/crypto/blake2b"
)

// IndicatorManifest is one resolved indicator declaration: its canonical
// key, kind, parameters, and the registry's own output names for that kind,
// so the Contract audit (spec.md §4.10) can diff this against the Feed's
// actual computed columns without recomputing anything.
type IndicatorManifest struct {
	Key     string             `json:"key"`
	Kind    string             `json:"kind"`
	Role    string             `json:"role"`
	Params  map[string]float64 `json:"params"`
	Outputs []string           `json:"outputs"`
}

// StructureManifest is one resolved structure declaration.
type StructureManifest struct {
	Name      string             `json:"name"`
	Kind      string             `json:"kind"`
	Params    map[string]float64 `json:"params"`
	DependsOn []string           `json:"depends_on"`
}

// Manifest captures everything about a run's identity and configuration
// that the determinism audit and the run registry key off of, per spec.md
// §4.9: Play identity, window, timeframes by role, resolved indicator and
// structure declarations, and the pipeline signature.
type Manifest struct {
	PlayID     string            `json:"play_id"`
	PlayVer    string            `json:"play_version"`
	Symbol     string            `json:"symbol"`
	Timeframes map[string]string `json:"timeframes"`

	WindowStartMs int64 `json:"window_start_ms"`
	WindowEndMs   int64 `json:"window_end_ms"`
	WarmupBars    int   `json:"warmup_bars"`
	FirstExecIdx  int   `json:"first_exec_idx"`
	LastExecIdx   int   `json:"last_exec_idx"`

	Indicators []IndicatorManifest `json:"indicators"`
	Structures []StructureManifest `json:"structures"`

	// PipelineSignature is a content hash over code-path identifiers and
	// configuration only — not over any trade output — so a change to the
	// Play or the engine's code paths is distinguishable from a change in
	// the data a run produced against an unchanged pipeline.
	PipelineSignature string `json:"pipeline_signature"`

	// RunHash is the content-addressed identifier of this manifest itself
	// (blake2b-256 over its own sorted-key JSON encoding minus this field),
	// used as the run registry's primary key and the artifact directory
	// name.
	RunHash string `json:"run_hash"`
}

// Build assembles a Manifest from a Play, its wired MultiFeed, and the
// warmup/window bounds the runner computed. outputsOf resolves an
// indicator kind to its registry output names.
func Build(p *play.Play, mf *barfeed.MultiFeed, res *runner.RunResult, outputsOf func(kind string) []string) *Manifest {
	exec := mf.Exec()

	indicators := make([]IndicatorManifest, 0, len(p.Features))
	for _, f := range p.Features {
		indicators = append(indicators, IndicatorManifest{
			Key:     f.Key,
			Kind:    f.Kind,
			Role:    f.Role,
			Params:  f.Params,
			Outputs: outputsOf(f.Kind),
		})
	}
	sort.Slice(indicators, func(i, j int) bool { return indicators[i].Key < indicators[j].Key })

	structures := make([]StructureManifest, 0, len(p.Structures))
	for _, s := range p.Structures {
		structures = append(structures, StructureManifest{
			Name: s.Name, Kind: s.Kind, Params: s.Params, DependsOn: append([]string(nil), s.DependsOn...),
		})
	}
	sort.Slice(structures, func(i, j int) bool { return structures[i].Name < structures[j].Name })

	timeframes := make(map[string]string, len(p.Timeframes))
	for k, v := range p.Timeframes {
		timeframes[k] = v
	}

	m := &Manifest{
		PlayID:        p.ID,
		PlayVer:       p.Version,
		Symbol:        p.Symbol,
		Timeframes:    timeframes,
		WindowStartMs: exec.Bar(0).TsOpenMs,
		WindowEndMs:   exec.Bar(exec.Len() - 1).TsCloseMs,
		WarmupBars:    res.WarmupBars,
		FirstExecIdx:  res.FirstExecIdx,
		LastExecIdx:   res.LastExecIdx,
		Indicators:    indicators,
		Structures:    structures,
	}
	m.PipelineSignature = computePipelineSignature(m)
	m.RunHash = computeRunHash(m)
	return m
}

// computePipelineSignature hashes everything in the manifest except the
// two hash fields themselves, which is exactly "code-path identifiers and
// configuration" per spec.md §4.9 — the signature is blind to anything
// trade-output-derived because the manifest carries no trade output at all.
func computePipelineSignature(m *Manifest) string {
	cp := *m
	cp.PipelineSignature = ""
	cp.RunHash = ""
	return hashCanonical(cp)
}

// computeRunHash hashes the manifest including its pipeline signature (but
// not the run hash field, which doesn't exist yet) — the glossary's "run
// hash: content-addressed identifier ... over the sorted-key manifest".
func computeRunHash(m *Manifest) string {
	cp := *m
	cp.RunHash = ""
	return hashCanonical(cp)
}

// hashCanonical blake2b-256s a deterministic, sorted-key JSON encoding of
// v. encoding/json already sorts map keys; struct field order is fixed by
// declaration order, so two equal values always produce the same bytes.
func hashCanonical(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		// Manifest fields are all JSON-safe scalars/slices/maps; a marshal
		// failure here means a programming error, not a runtime condition.
		panic(fmt.Sprintf("artifact: manifest is not json-encodable: %v", err))
	}
	sum := blake2b.Sum256(b)
	return fmt.Sprintf("%x", sum)
}

// WriteManifest encodes m as indented, deterministic JSON (sorted map keys,
// fixed struct field order) to path.
func WriteManifest(path string, m *Manifest) error {
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}
