// Package rules implements the compiled rule evaluator: it parses a Play's
// declarative blocks into a typed AST and dispatches operators against a
// Snapshot (spec.md §4.5). The evaluator is single-threaded, pure per
// snapshot, and never mutates engine state.
package rules

import (
	"math"

	"github.com/plife507/TRADE-sub002/internal/coreerr"
)

// SnapshotView is the subset of *snapshot.Snapshot the evaluator reads
// through. Declaring it here, rather than depending on the concrete type,
// lets this package's tests exercise the AST against a bare stand-in.
type SnapshotView interface {
	Get(path string) float64
	GetString(path string) (string, bool)
}

// Op is one of the documented comparison/crossover operators.
type Op string

const (
	OpGT         Op = "gt"
	OpGTE        Op = "gte"
	OpLT         Op = "lt"
	OpLTE        Op = "lte"
	OpEQ         Op = "eq"
	OpIn         Op = "in"
	OpBetween    Op = "between"
	OpNearAbs    Op = "near_abs"
	OpNearPct    Op = "near_pct"
	OpCrossAbove Op = "cross_above"
	OpCrossBelow Op = "cross_below"
)

// EvalContext carries everything a Node needs to evaluate itself: the
// current Snapshot plus the ability to build a Snapshot anchored at an
// earlier bar, for window operators. A fresh EvalContext is built once per
// evaluation point and is immutable thereafter.
type EvalContext struct {
	Current      SnapshotView
	AtOffset     func(barsAgo int) SnapshotView // nil if bar doesn't exist
	Setups       map[string]bool                // SetupRef cache for this evaluation point
	ExecTfMs     int64
	AnchorTfMsOf func(anchorTf string) (int64, error)
}

// Node is one AST node. Eval returns the boolean result of evaluating the
// node at ctx.Current, short-circuiting per the documented boolean rules.
type Node interface {
	Eval(ctx *EvalContext) (bool, error)
}

// Cond is a leaf comparison node.
type Cond struct {
	LHS, RHS string
	Op       Op
	Tol      float64
	InSet    []float64 // populated RHS values for OpIn
}

// All evaluates every child and short-circuits false on the first false.
type All struct{ Children []Node }

// Any evaluates every child and short-circuits true on the first true.
type Any struct{ Children []Node }

// Not negates its child.
type Not struct {
	Child Node
}

// HoldsFor requires expr to be true for every anchor-TF step in the window.
type HoldsFor struct {
	Bars     int
	AnchorTF string
	Expr     Node
}

// OccurredWithin requires expr to be true at least once in the window.
type OccurredWithin struct {
	Bars     int
	AnchorTF string
	Expr     Node
}

// CountTrue requires at least MinTrue hits in the window.
type CountTrue struct {
	Bars     int
	MinTrue  int
	AnchorTF string
	Expr     Node
}

// SetupRef reuses a cached boolean from a previously evaluated block.
type SetupRef struct{ ID string }

func (n *Cond) Eval(ctx *EvalContext) (bool, error) {
	return evalCond(ctx, n)
}

func (n *All) Eval(ctx *EvalContext) (bool, error) {
	for _, c := range n.Children {
		ok, err := c.Eval(ctx)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func (n *Any) Eval(ctx *EvalContext) (bool, error) {
	for _, c := range n.Children {
		ok, err := c.Eval(ctx)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// Eval negates its child, except a NaN-tainted comparison stays false
// rather than flipping true (spec.md §8: "NotExpr(NaN comparison) is false,
// not true").
func (n *Not) Eval(ctx *EvalContext) (bool, error) {
	if c, ok := n.Child.(*Cond); ok {
		v, tainted, err := evalCondTainted(ctx, c)
		if err != nil {
			return false, err
		}
		if tainted {
			return false, nil
		}
		return !v, nil
	}
	ok, err := n.Child.Eval(ctx)
	if err != nil {
		return false, err
	}
	return !ok, nil
}

func (n *HoldsFor) Eval(ctx *EvalContext) (bool, error) {
	steps, err := windowSteps(ctx, n.Bars, n.AnchorTF)
	if err != nil {
		return false, err
	}
	for _, barsAgo := range steps {
		snap := ctx.AtOffset(barsAgo)
		if snap == nil {
			return false, nil // window not fully warm yet -> short-circuit false
		}
		sub := subContext(ctx, snap, barsAgo)
		ok, err := n.Expr.Eval(sub)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func (n *OccurredWithin) Eval(ctx *EvalContext) (bool, error) {
	steps, err := windowSteps(ctx, n.Bars, n.AnchorTF)
	if err != nil {
		return false, err
	}
	for _, barsAgo := range steps {
		snap := ctx.AtOffset(barsAgo)
		if snap == nil {
			continue
		}
		sub := subContext(ctx, snap, barsAgo)
		ok, err := n.Expr.Eval(sub)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func (n *CountTrue) Eval(ctx *EvalContext) (bool, error) {
	steps, err := windowSteps(ctx, n.Bars, n.AnchorTF)
	if err != nil {
		return false, err
	}
	count := 0
	for _, barsAgo := range steps {
		snap := ctx.AtOffset(barsAgo)
		if snap == nil {
			continue
		}
		sub := subContext(ctx, snap, barsAgo)
		ok, err := n.Expr.Eval(sub)
		if err != nil {
			return false, err
		}
		if ok {
			count++
		}
	}
	return count >= n.MinTrue, nil
}

func (n *SetupRef) Eval(ctx *EvalContext) (bool, error) {
	v, ok := ctx.Setups[n.ID]
	if !ok {
		return false, coreerr.Evaluation("setup_ref %q not yet evaluated at this evaluation point", n.ID)
	}
	return v, nil
}

// subContext builds the EvalContext an inner window expression evaluates
// against when the window has stepped barsAgo bars back from ctx's anchor.
// AtOffset is re-based so a nested "previous bar" lookup (e.g. cross_above
// inside a holds_for) still means "one bar before this window step", not
// one bar before the outermost evaluation point.
func subContext(ctx *EvalContext, snap SnapshotView, barsAgo int) *EvalContext {
	return &EvalContext{
		Current: snap,
		AtOffset: func(further int) SnapshotView {
			return ctx.AtOffset(barsAgo + further)
		},
		Setups:       ctx.Setups,
		ExecTfMs:     ctx.ExecTfMs,
		AnchorTfMsOf: ctx.AnchorTfMsOf,
	}
}

// windowSteps resolves a window to the list of bars-ago offsets to sample,
// per spec.md §4.5: no anchor_tf means bars at the LHS's native (exec) TF;
// an anchor_tf means the window length is in minutes, re-sampled at the
// 1-minute rate, which this implementation approximates by converting the
// minute-window to an equivalent count of exec bars (ceiling), since every
// exec bar is evaluated through a Snapshot that already reflects the latest
// closed 1-minute mark.
func windowSteps(ctx *EvalContext, bars int, anchorTF string) ([]int, error) {
	n := bars
	if anchorTF != "" {
		anchorMs, err := ctx.AnchorTfMsOf(anchorTF)
		if err != nil {
			return nil, err
		}
		minuteSamples := bars // bars is expressed in minutes when anchor_tf is set
		n = int(math.Ceil(float64(minuteSamples) * 60_000 / float64(anchorMs)))
		if n < 1 {
			n = 1
		}
	}
	steps := make([]int, n)
	for i := 0; i < n; i++ {
		steps[i] = i
	}
	return steps, nil
}
