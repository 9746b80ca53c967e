// Package coreerr defines the error taxonomy shared across the backtesting
// core so callers can recover the kind of failure with errors.As regardless
// of which package raised it.
package coreerr

import "fmt"

// Kind classifies a core error per the propagation policy in spec.md §7.
type Kind string

const (
	// KindConfiguration covers unknown indicator/structure kinds, invalid
	// parameters, oversized windows, eq-on-float, unknown feature ids.
	// Fails fast at parse/compile time; no partial runs.
	KindConfiguration Kind = "configuration"
	// KindPreflight covers missing data coverage, infeasible warmup, and
	// sub-95% one-minute coverage. Fails before the run starts.
	KindPreflight Kind = "preflight"
	// KindEvaluation covers unresolved dynamic metadata and NaN escaping a
	// non-tolerant operator. Fails the run (fail-loud).
	KindEvaluation Kind = "evaluation"
	// KindRisk covers rejected orders: below min notional, would-flip
	// without reduce-only, exceeds max leverage. Never fatal; recorded.
	KindRisk Kind = "risk_rejection"
	// KindExchange covers impossible liquidation paths and negative equity
	// without liquidation. Fatal, with a run invariant violation report.
	KindExchange Kind = "exchange"
	// KindDeterminism covers a determinism-audit mismatch between two runs
	// of the same Play over the same window. Aborts the whole session.
	KindDeterminism Kind = "determinism"
)

// CoreError is the common shape every error kind in the core satisfies.
type CoreError interface {
	error
	Kind() Kind
	Unwrap() error
}

type coreError struct {
	kind Kind
	msg  string
	err  error
}

func (e *coreError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.kind, e.msg, e.err)
	}
	return fmt.Sprintf("%s: %s", e.kind, e.msg)
}

func (e *coreError) Kind() Kind   { return e.kind }
func (e *coreError) Unwrap() error { return e.err }

func newf(kind Kind, format string, args ...any) *coreError {
	return &coreError{kind: kind, msg: fmt.Sprintf(format, args...)}
}

func wrapf(kind Kind, err error, format string, args ...any) *coreError {
	return &coreError{kind: kind, msg: fmt.Sprintf(format, args...), err: err}
}

// Configuration builds a KindConfiguration error.
func Configuration(format string, args ...any) error { return newf(KindConfiguration, format, args...) }

// Preflight builds a KindPreflight error.
func Preflight(format string, args ...any) error { return newf(KindPreflight, format, args...) }

// Evaluation builds a KindEvaluation error.
func Evaluation(format string, args ...any) error { return newf(KindEvaluation, format, args...) }

// Risk builds a KindRisk error (never fatal; callers record it, they do not abort on it).
func Risk(format string, args ...any) error { return newf(KindRisk, format, args...) }

// Exchange builds a KindExchange error.
func Exchange(format string, args ...any) error { return newf(KindExchange, format, args...) }

// ExchangeWrap builds a KindExchange error wrapping a lower-level cause.
func ExchangeWrap(err error, format string, args ...any) error {
	return wrapf(KindExchange, err, format, args...)
}

// Determinism builds a KindDeterminism error.
func Determinism(format string, args ...any) error { return newf(KindDeterminism, format, args...) }

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var ce CoreError
	for err != nil {
		if c, ok := err.(CoreError); ok {
			ce = c
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return ce != nil && ce.Kind() == kind
}

// ExitCode maps a Kind to the process exit code documented in spec.md §6.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case Is(err, KindPreflight):
		return 2
	case Is(err, KindConfiguration):
		return 3
	case Is(err, KindDeterminism):
		return 4
	default:
		return 1
	}
}
