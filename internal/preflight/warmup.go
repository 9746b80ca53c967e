package preflight

import (
	"github.com/plife507/TRADE-sub002/internal/play"
	"github.com/plife507/TRADE-sub002/internal/rules"
	"github.com/plife507/TRADE-sub002/internal/runner"
	"github.com/plife507/TRADE-sub002/internal/structure"
)

// Warmup is the composed warmup figure preflight computes independently of
// runner.New, mirroring its own max(indicator, structure, DSL window)
// calculation (spec.md §4.8) so a Play can be checked before a single Feed
// column is computed.
type Warmup struct {
	IndicatorBars int
	StructureBars int
	WindowBars    int
	TotalBars     int
}

// CheckWarmup verifies a Play's declared features, structures, and compiled
// rule blocks together produce a finite, resolvable warmup figure, and
// returns it. A Play whose indicator kinds or parameters don't resolve
// surfaces that error here, before any data is touched.
func CheckWarmup(p *play.Play) (Warmup, error) {
	indWarmup, err := runner.IndicatorWarmupBars(p.Features)
	if err != nil {
		return Warmup{}, err
	}

	structDecls := make([]structure.Declaration, len(p.Structures))
	for i, s := range p.Structures {
		structDecls[i] = structure.Declaration{Name: s.Name, Kind: s.Kind, Params: s.Params, DependsOn: s.DependsOn}
	}
	structWarmup := structure.WarmupBars(structDecls)

	// Compile is also where check (d) — "no window operator exceeds the
	// configured max" — is already enforced (rules.maxWindowBars), so
	// invoking it here both yields the window-warmup term and performs that
	// check, rather than re-implementing the bound.
	prog, err := rules.Compile(p)
	if err != nil {
		return Warmup{}, err
	}
	windowWarmup := prog.MaxWindowBars()

	total := indWarmup
	if structWarmup > total {
		total = structWarmup
	}
	if windowWarmup > total {
		total = windowWarmup
	}
	return Warmup{IndicatorBars: indWarmup, StructureBars: structWarmup, WindowBars: windowWarmup, TotalBars: total}, nil
}
