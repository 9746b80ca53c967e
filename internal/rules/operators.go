package rules

import (
	"math"
	"strconv"
)

// evalCond resolves LHS/RHS through the Snapshot and dispatches the operator.
// Per spec.md §8, a NaN on either side of a comparison makes the Cond false,
// never an error and never true; cross_above/cross_below additionally need
// the prior bar's values and treat a missing prior bar as false.
func evalCond(ctx *EvalContext, c *Cond) (bool, error) {
	v, _, err := evalCondTainted(ctx, c)
	return v, err
}

// evalCondTainted is evalCond plus a nanTainted flag: true whenever the
// result was forced false by a NaN operand rather than a genuine
// comparison. Not uses this to honour spec.md §8's "NotExpr(NaN comparison)
// is false, not true" rule, which a plain boolean negation would violate.
func evalCondTainted(ctx *EvalContext, c *Cond) (value bool, nanTainted bool, err error) {
	switch c.Op {
	case OpCrossAbove, OpCrossBelow:
		return evalCross(ctx, c)
	case OpIn:
		return evalIn(ctx, c)
	case OpEQ:
		return evalEQ(ctx, c)
	}

	lhs := resolveOperand(ctx.Current, c.LHS)
	if math.IsNaN(lhs) {
		return false, true, nil
	}

	switch c.Op {
	case OpGT, OpGTE, OpLT, OpLTE:
		rhs := resolveOperand(ctx.Current, c.RHS)
		if math.IsNaN(rhs) {
			return false, true, nil
		}
		switch c.Op {
		case OpGT:
			return lhs > rhs, false, nil
		case OpGTE:
			return lhs >= rhs, false, nil
		case OpLT:
			return lhs < rhs, false, nil
		case OpLTE:
			return lhs <= rhs, false, nil
		}
	case OpBetween:
		if len(c.InSet) != 2 {
			return false, false, nil
		}
		lo, hi := c.InSet[0], c.InSet[1]
		return lhs >= lo && lhs <= hi, false, nil
	case OpNearAbs:
		rhs := resolveOperand(ctx.Current, c.RHS)
		if math.IsNaN(rhs) {
			return false, true, nil
		}
		return math.Abs(lhs-rhs) <= c.Tol, false, nil
	case OpNearPct:
		rhs := resolveOperand(ctx.Current, c.RHS)
		if math.IsNaN(rhs) || rhs == 0 {
			return false, math.IsNaN(rhs), nil
		}
		return math.Abs(lhs-rhs)/math.Abs(rhs) <= c.Tol/100, false, nil
	}
	return false, false, nil
}

// evalEQ handles exact equality, which the compiler restricts to integer and
// enum/bool-coded operands (spec.md §4.5: "eq on a raw float is a
// configuration error — near_abs/near_pct exist for a reason").
func evalEQ(ctx *EvalContext, c *Cond) (bool, bool, error) {
	lhs := resolveOperand(ctx.Current, c.LHS)
	if math.IsNaN(lhs) {
		return false, true, nil
	}
	rhs := resolveOperand(ctx.Current, c.RHS)
	if math.IsNaN(rhs) {
		return false, true, nil
	}
	return lhs == rhs, false, nil
}

func evalIn(ctx *EvalContext, c *Cond) (bool, bool, error) {
	lhs := resolveOperand(ctx.Current, c.LHS)
	if math.IsNaN(lhs) {
		return false, true, nil
	}
	for _, v := range c.InSet {
		if lhs == v {
			return true, false, nil
		}
	}
	return false, false, nil
}

func evalCross(ctx *EvalContext, c *Cond) (bool, bool, error) {
	curr := ctx.Current
	prev := ctx.AtOffset(1)
	if prev == nil {
		return false, true, nil
	}
	currLHS := resolveOperand(curr, c.LHS)
	currRHS := resolveOperand(curr, c.RHS)
	prevLHS := resolveOperand(prev, c.LHS)
	prevRHS := resolveOperand(prev, c.RHS)
	if math.IsNaN(currLHS) || math.IsNaN(currRHS) || math.IsNaN(prevLHS) || math.IsNaN(prevRHS) {
		return false, true, nil
	}
	switch c.Op {
	case OpCrossAbove:
		return prevLHS <= prevRHS && currLHS > currRHS, false, nil
	case OpCrossBelow:
		return prevLHS >= prevRHS && currLHS < currRHS, false, nil
	}
	return false, false, nil
}

// resolveOperand resolves an operand string either as a snapshot path or a
// literal numeric constant.
func resolveOperand(snap SnapshotView, operand string) float64 {
	if f, err := strconv.ParseFloat(operand, 64); err == nil {
		return f
	}
	return snap.Get(operand)
}
