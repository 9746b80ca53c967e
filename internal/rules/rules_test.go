package rules

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeSnap is a minimal SnapshotView stand-in keyed by path string, so this
// package's operator/boolean-composition tests don't need a real MultiFeed.
type fakeSnap struct {
	vals    map[string]float64
	strs    map[string]string
}

func (f fakeSnap) Get(path string) float64 {
	if v, ok := f.vals[path]; ok {
		return v
	}
	return math.NaN()
}

func (f fakeSnap) GetString(path string) (string, bool) {
	s, ok := f.strs[path]
	return s, ok
}

func ctxWith(curr, prev map[string]float64) *EvalContext {
	c := fakeSnap{vals: curr}
	var prevSnap SnapshotView
	if prev != nil {
		prevSnap = fakeSnap{vals: prev}
	}
	return &EvalContext{
		Current: c,
		AtOffset: func(barsAgo int) SnapshotView {
			if barsAgo == 0 {
				return c
			}
			if barsAgo == 1 {
				return prevSnap
			}
			return nil
		},
		Setups: map[string]bool{},
	}
}

func TestCondGT(t *testing.T) {
	ctx := ctxWith(map[string]float64{"indicator.ema_20": 105}, nil)
	n := &Cond{LHS: "indicator.ema_20", RHS: "100", Op: OpGT}
	ok, err := n.Eval(ctx)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestCondNaNIsFalseNotError(t *testing.T) {
	ctx := ctxWith(map[string]float64{}, nil)
	n := &Cond{LHS: "indicator.missing", RHS: "100", Op: OpGT}
	ok, err := n.Eval(ctx)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestNotOfNaNComparisonStaysFalse(t *testing.T) {
	ctx := ctxWith(map[string]float64{}, nil)
	inner := &Cond{LHS: "indicator.missing", RHS: "100", Op: OpGT}
	n := &Not{Child: inner}
	ok, err := n.Eval(ctx)
	require.NoError(t, err)
	require.False(t, ok, "NotExpr(NaN comparison) must be false, not true")
}

func TestNotOfTrueComparison(t *testing.T) {
	ctx := ctxWith(map[string]float64{"indicator.rsi_14": 80}, nil)
	inner := &Cond{LHS: "indicator.rsi_14", RHS: "70", Op: OpGT}
	n := &Not{Child: inner}
	ok, err := n.Eval(ctx)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCrossAboveRequiresPriorBar(t *testing.T) {
	curr := map[string]float64{"indicator.ema_9": 101, "indicator.ema_21": 100}
	prev := map[string]float64{"indicator.ema_9": 99, "indicator.ema_21": 100}
	ctx := ctxWith(curr, prev)
	n := &Cond{LHS: "indicator.ema_9", RHS: "indicator.ema_21", Op: OpCrossAbove}
	ok, err := n.Eval(ctx)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestCrossAboveFalseOnFirstBar(t *testing.T) {
	ctx := ctxWith(map[string]float64{"indicator.ema_9": 101, "indicator.ema_21": 100}, nil)
	n := &Cond{LHS: "indicator.ema_9", RHS: "indicator.ema_21", Op: OpCrossAbove}
	ok, err := n.Eval(ctx)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestAllShortCircuits(t *testing.T) {
	ctx := ctxWith(map[string]float64{"indicator.a": 1, "indicator.b": 2}, nil)
	n := &All{Children: []Node{
		&Cond{LHS: "indicator.a", RHS: "0", Op: OpGT},
		&Cond{LHS: "indicator.b", RHS: "10", Op: OpGT},
	}}
	ok, err := n.Eval(ctx)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestAnyShortCircuits(t *testing.T) {
	ctx := ctxWith(map[string]float64{"indicator.a": 1, "indicator.b": 2}, nil)
	n := &Any{Children: []Node{
		&Cond{LHS: "indicator.a", RHS: "100", Op: OpGT},
		&Cond{LHS: "indicator.b", RHS: "1", Op: OpGT},
	}}
	ok, err := n.Eval(ctx)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestHoldsForFailsOnFirstFalse(t *testing.T) {
	ctx := ctxWith(map[string]float64{"indicator.a": 1}, map[string]float64{"indicator.a": -1})
	n := &HoldsFor{Bars: 2, Expr: &Cond{LHS: "indicator.a", RHS: "0", Op: OpGT}}
	ok, err := n.Eval(ctx)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestOccurredWithinFindsHit(t *testing.T) {
	ctx := ctxWith(map[string]float64{"indicator.a": -1}, map[string]float64{"indicator.a": 5})
	n := &OccurredWithin{Bars: 2, Expr: &Cond{LHS: "indicator.a", RHS: "0", Op: OpGT}}
	ok, err := n.Eval(ctx)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestSetupRefUnresolvedErrors(t *testing.T) {
	ctx := ctxWith(map[string]float64{}, nil)
	n := &SetupRef{ID: "block_a"}
	_, err := n.Eval(ctx)
	require.Error(t, err)
}

func TestSetupRefResolved(t *testing.T) {
	ctx := ctxWith(map[string]float64{}, nil)
	ctx.Setups["block_a"] = true
	n := &SetupRef{ID: "block_a"}
	ok, err := n.Eval(ctx)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestBetweenOperator(t *testing.T) {
	ctx := ctxWith(map[string]float64{"indicator.rsi_14": 55}, nil)
	n := &Cond{LHS: "indicator.rsi_14", Op: OpBetween, InSet: []float64{30, 70}}
	ok, err := n.Eval(ctx)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestNearPctOperator(t *testing.T) {
	ctx := ctxWith(map[string]float64{"price.mark": 101}, nil)
	n := &Cond{LHS: "price.mark", RHS: "100", Op: OpNearPct, Tol: 2}
	ok, err := n.Eval(ctx)
	require.NoError(t, err)
	require.True(t, ok)
}
