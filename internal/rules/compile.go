package rules

import (
	"strconv"
	"strings"

	"github.com/plife507/TRADE-sub002/internal/coreerr"
	"github.com/plife507/TRADE-sub002/internal/play"
	"github.com/plife507/TRADE-sub002/internal/snapshot"
)

// maxWindowBars bounds every window operator, per spec.md §4.5: a window
// request beyond this is a configuration error, not a slow but legal query.
const maxWindowBars = 100_000

// Case is a compiled `when -> emit` pair.
type Case struct {
	When Node
	Emit []play.IntentSource
}

// Block is a compiled rule block: first matching case wins, else falls back
// to Else (spec.md §4.6).
type Block struct {
	ID    string
	Cases []Case
	Else  []play.IntentSource
}

// Program is every compiled block for a Play, in declaration order — the
// order blocks must be evaluated in for the determinism contract to hold.
type Program struct {
	Blocks []Block
}

// Compile turns a Play's rule blocks into a Program, validating every
// operand path (as far as snapshot.CompileCheck goes) and window size up
// front so a bad Play fails before a single bar is processed.
func Compile(p *play.Play) (*Program, error) {
	knownIndicators := map[string]bool{}
	for _, f := range p.Features {
		knownIndicators[f.Key] = true
	}
	knownStructures := map[string]bool{}
	for _, s := range p.Structures {
		knownStructures[s.Name] = true
	}

	prog := &Program{}
	for _, bsrc := range p.Blocks {
		block := Block{ID: bsrc.ID, Else: bsrc.Else}
		for _, csrc := range bsrc.Cases {
			node, err := compileExpr(&csrc.When, knownIndicators, knownStructures)
			if err != nil {
				return nil, coreerr.Configuration("block %q: %v", bsrc.ID, err)
			}
			block.Cases = append(block.Cases, Case{When: node, Emit: csrc.Emit})
		}
		prog.Blocks = append(prog.Blocks, block)
	}
	return prog, nil
}

func compileExpr(src *play.ExprSource, knownIndicators, knownStructures map[string]bool) (Node, error) {
	switch src.NodeKind {
	case "cond":
		return compileCond(src, knownIndicators, knownStructures)
	case "all":
		children, err := compileChildren(src.Children, knownIndicators, knownStructures)
		if err != nil {
			return nil, err
		}
		return &All{Children: children}, nil
	case "any":
		children, err := compileChildren(src.Children, knownIndicators, knownStructures)
		if err != nil {
			return nil, err
		}
		return &Any{Children: children}, nil
	case "not":
		if len(src.Children) != 1 {
			return nil, coreerr.Configuration("not expects exactly one child")
		}
		child, err := compileExpr(&src.Children[0], knownIndicators, knownStructures)
		if err != nil {
			return nil, err
		}
		return &Not{Child: child}, nil
	case "holds_for", "holds_for_duration":
		expr, bars, anchor, err := compileWindow(src, knownIndicators, knownStructures)
		if err != nil {
			return nil, err
		}
		return &HoldsFor{Bars: bars, AnchorTF: anchor, Expr: expr}, nil
	case "occurred_within", "occurred_within_duration":
		expr, bars, anchor, err := compileWindow(src, knownIndicators, knownStructures)
		if err != nil {
			return nil, err
		}
		return &OccurredWithin{Bars: bars, AnchorTF: anchor, Expr: expr}, nil
	case "count_true", "count_true_duration":
		expr, bars, anchor, err := compileWindow(src, knownIndicators, knownStructures)
		if err != nil {
			return nil, err
		}
		if src.MinTrue <= 0 {
			return nil, coreerr.Configuration("count_true requires min_true > 0")
		}
		return &CountTrue{Bars: bars, MinTrue: src.MinTrue, AnchorTF: anchor, Expr: expr}, nil
	case "setup_ref":
		if src.RefID == "" {
			return nil, coreerr.Configuration("setup_ref requires ref_id")
		}
		return &SetupRef{ID: src.RefID}, nil
	default:
		return nil, coreerr.Configuration("unknown expression node kind %q", src.NodeKind)
	}
}

func compileChildren(srcs []play.ExprSource, knownIndicators, knownStructures map[string]bool) ([]Node, error) {
	nodes := make([]Node, 0, len(srcs))
	for i := range srcs {
		n, err := compileExpr(&srcs[i], knownIndicators, knownStructures)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

func compileWindow(src *play.ExprSource, knownIndicators, knownStructures map[string]bool) (Node, int, string, error) {
	if src.Expr == nil {
		return nil, 0, "", coreerr.Configuration("window node %q requires an inner expr", src.NodeKind)
	}
	expr, err := compileExpr(src.Expr, knownIndicators, knownStructures)
	if err != nil {
		return nil, 0, "", err
	}
	bars := src.Bars
	isDuration := strings.HasSuffix(src.NodeKind, "_duration")
	if isDuration {
		if src.DurationMs <= 0 {
			return nil, 0, "", coreerr.Configuration("%s requires duration_ms > 0", src.NodeKind)
		}
		bars = int(src.DurationMs / 60_000)
		if src.DurationMs%60_000 != 0 {
			bars++ // ceiling to next whole minute, per spec.md duration-to-bar rule
		}
		if bars < 1 {
			bars = 1
		}
	}
	if bars <= 0 {
		return nil, 0, "", coreerr.Configuration("%s requires bars > 0", src.NodeKind)
	}
	if bars > maxWindowBars {
		return nil, 0, "", coreerr.Configuration("%s window of %d bars exceeds max %d", src.NodeKind, bars, maxWindowBars)
	}
	return expr, bars, src.AnchorTF, nil
}

func compileCond(src *play.ExprSource, knownIndicators, knownStructures map[string]bool) (Node, error) {
	op := Op(src.Op)
	if err := checkOperand(src.LHS, knownIndicators, knownStructures); err != nil {
		return nil, err
	}
	c := &Cond{LHS: src.LHS, RHS: src.RHS, Op: op}

	switch op {
	case OpGT, OpGTE, OpLT, OpLTE, OpNearAbs, OpCrossAbove, OpCrossBelow:
		if err := checkOperand(src.RHS, knownIndicators, knownStructures); err != nil {
			return nil, err
		}
	case OpNearPct:
		if err := checkOperand(src.RHS, knownIndicators, knownStructures); err != nil {
			return nil, err
		}
		tol, err := strconv.ParseFloat(src.Tol, 64)
		if err != nil || tol <= 0 {
			return nil, coreerr.Configuration("near_pct requires a positive tol, got %q", src.Tol)
		}
		c.Tol = tol
	case OpEQ:
		if isRawFloat(src.RHS) {
			return nil, coreerr.Configuration("eq on %q looks like a raw float; use near_abs/near_pct instead", src.RHS)
		}
	case OpIn, OpBetween:
		vals, err := parseFloatList(src.RHS)
		if err != nil {
			return nil, err
		}
		if op == OpBetween && len(vals) != 2 {
			return nil, coreerr.Configuration("between requires exactly two bounds, got %d", len(vals))
		}
		c.InSet = vals
	default:
		return nil, coreerr.Configuration("unknown operator %q", src.Op)
	}

	if op == OpNearAbs {
		tol, err := strconv.ParseFloat(src.Tol, 64)
		if err != nil || tol < 0 {
			return nil, coreerr.Configuration("near_abs requires a non-negative tol, got %q", src.Tol)
		}
		c.Tol = tol
	}
	return c, nil
}

func checkOperand(operand string, knownIndicators, knownStructures map[string]bool) error {
	if _, err := strconv.ParseFloat(operand, 64); err == nil {
		return nil // numeric literal, always valid
	}
	return snapshot.CompileCheck(operand, knownIndicators, knownStructures)
}

func isRawFloat(s string) bool {
	if !strings.Contains(s, ".") {
		return false
	}
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}

// MaxWindowBars returns the largest window, in exec bars, any compiled
// block in the Program requires — the "DSL window warmup" term the runner
// folds into its overall warmup calculation (spec.md §4.8).
func (p *Program) MaxWindowBars() int {
	max := 0
	for _, block := range p.Blocks {
		for _, c := range block.Cases {
			if n := maxWindowOf(c.When); n > max {
				max = n
			}
		}
	}
	return max
}

func maxWindowOf(n Node) int {
	switch v := n.(type) {
	case *HoldsFor:
		return maxOf(v.Bars, maxWindowOf(v.Expr))
	case *OccurredWithin:
		return maxOf(v.Bars, maxWindowOf(v.Expr))
	case *CountTrue:
		return maxOf(v.Bars, maxWindowOf(v.Expr))
	case *All:
		return maxOfChildren(v.Children)
	case *Any:
		return maxOfChildren(v.Children)
	case *Not:
		return maxWindowOf(v.Child)
	default:
		return 0
	}
}

func maxOfChildren(children []Node) int {
	max := 0
	for _, c := range children {
		if n := maxWindowOf(c); n > max {
			max = n
		}
	}
	return max
}

func maxOf(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func parseFloatList(s string) ([]float64, error) {
	parts := strings.Split(s, ",")
	vals := make([]float64, 0, len(parts))
	for _, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, coreerr.Configuration("invalid numeric literal %q", p)
		}
		vals = append(vals, f)
	}
	return vals, nil
}
