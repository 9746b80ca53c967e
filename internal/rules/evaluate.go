package rules

import (
	"github.com/plife507/TRADE-sub002/internal/barfeed"
	"github.com/plife507/TRADE-sub002/internal/coreerr"
	"github.com/plife507/TRADE-sub002/internal/play"
	"github.com/plife507/TRADE-sub002/internal/snapshot"
	"github.com/plife507/TRADE-sub002/internal/structure"
)

// Intent is an emitted, fully-resolved trading action: a compiled
// play.IntentSource with every dynamic metadata reference resolved against
// the Snapshot it fired at.
type Intent struct {
	BlockID  string
	Action   string
	Percent  float64
	Metadata map[string]any
}

// Evaluator runs a compiled Program against a MultiFeed/structure.Engine
// pair. One Evaluator exists per Play per run; it is stateless across bars
// except for the SetupRef cache, which is rebuilt fresh every evaluation
// point (spec.md §4.6: setup_ref only sees blocks evaluated earlier in the
// same point, never a prior bar's result).
type Evaluator struct {
	prog     *Program
	mf       *barfeed.MultiFeed
	structs  *structure.Engine
	timeframes map[string]string // role name -> tf string, from play.Play.Timeframes
}

// NewEvaluator builds an Evaluator for prog against the given data plane.
func NewEvaluator(prog *Program, mf *barfeed.MultiFeed, structs *structure.Engine, timeframes map[string]string) *Evaluator {
	return &Evaluator{prog: prog, mf: mf, structs: structs, timeframes: timeframes}
}

// Eval runs every compiled block, in declared order, at the closed exec bar
// execIdx with the given live mark price and evaluation timestamp, and
// returns the intents emitted by whichever case matched first in each block
// (or the block's else-intents if none matched).
func (e *Evaluator) Eval(execIdx int, markPrice float64, tsCloseMs int64) ([]Intent, error) {
	setups := map[string]bool{}
	var out []Intent

	anchorTfMsOf := func(role string) (int64, error) {
		tf, ok := e.timeframes[role]
		if !ok {
			return 0, coreerr.Configuration("unknown anchor_tf role %q", role)
		}
		return barfeed.TimeframeMs(tf)
	}
	atOffset := func(barsAgo int) SnapshotView {
		idx := execIdx - barsAgo
		if idx < 0 {
			return nil
		}
		exec := e.mf.Exec()
		if idx >= exec.Len() {
			return nil
		}
		_, _, _, c, _ := exec.GetOHLC(idx)
		return snapshot.Build(e.mf, e.structs, idx, c, exec.Bar(idx).TsCloseMs)
	}

	base := snapshot.Build(e.mf, e.structs, execIdx, markPrice, tsCloseMs)
	ctx := &EvalContext{
		Current:      base,
		AtOffset:     atOffset,
		Setups:       setups,
		AnchorTfMsOf: anchorTfMsOf,
	}

	for _, block := range e.prog.Blocks {
		matched := false
		for _, c := range block.Cases {
			ok, err := c.When.Eval(ctx)
			if err != nil {
				return nil, coreerr.Evaluation("block %q: %v", block.ID, err)
			}
			if ok {
				matched = true
				setups[block.ID] = true
				intents, err := resolveIntents(base, block.ID, c.Emit)
				if err != nil {
					return nil, err
				}
				out = append(out, intents...)
				break
			}
		}
		if !matched {
			setups[block.ID] = false
			if len(block.Else) > 0 {
				intents, err := resolveIntents(base, block.ID, block.Else)
				if err != nil {
					return nil, err
				}
				out = append(out, intents...)
			}
		}
	}
	return out, nil
}

func resolveIntents(snap *snapshot.Snapshot, blockID string, srcs []play.IntentSource) ([]Intent, error) {
	out := make([]Intent, 0, len(srcs))
	for _, src := range srcs {
		meta := make(map[string]any, len(src.Metadata))
		for k, v := range src.Metadata {
			if v.FeatureRef != "" {
				val := snap.Get(v.FeatureRef)
				if str, ok := snap.GetString(v.FeatureRef); ok {
					meta[k] = str
				} else {
					meta[k] = val
				}
				continue
			}
			meta[k] = v.Static
		}
		out = append(out, Intent{BlockID: blockID, Action: src.Action, Percent: src.Percent, Metadata: meta})
	}
	return out, nil
}
