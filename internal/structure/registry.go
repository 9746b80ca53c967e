// Package structure implements the incremental market-structure layer:
// swing pivots, trend, zones, Fibonacci levels, rolling windows, and derived
// zones, each maintained in O(1) per bar so rule evaluation only ever reads
// current state. Detectors never iterate the feed and never write another
// detector's state — they reference each other strictly by name, through
// the Engine's dependency-sorted registry (design note: "cyclic or
// duck-typed references -> interface abstraction + arena indices").
package structure

import (
	"fmt"

	"github.com/plife507/TRADE-sub002/internal/barfeed"
	"github.com/plife507/TRADE-sub002/internal/coreerr"
)

// Detector is the interface every structure kind implements. Update is
// called once per confirmed exec bar, in dependency order; GetField exposes
// the detector's current outputs as primitives for the Snapshot layer.
type Detector interface {
	Name() string
	Kind() string
	Dependencies() []string
	Update(idx int, bar barfeed.Bar) error
	GetField(name string) (any, bool)
	Version() uint64
}

// Factory builds a Detector for a declared structure instance, resolving
// its named dependencies against detectors already constructed earlier in
// the dependency-sorted declaration list.
type Factory func(name string, params map[string]float64, deps map[string]Detector, exec *barfeed.Feed) (Detector, error)

var factories = map[string]Factory{}

func registerFactory(kind string, f Factory) { factories[kind] = f }

func init() {
	registerFactory("swing", newSwingDetector)
	registerFactory("trend", newTrendDetector)
	registerFactory("zone", newZoneDetector)
	registerFactory("fibonacci", newFibonacciDetector)
	registerFactory("rolling_window", newRollingWindowDetector)
	registerFactory("derived_zone", newDerivedZoneDetector)
}

// Declaration is one Play-declared structure instance.
type Declaration struct {
	Name      string
	Kind      string
	Params    map[string]float64
	DependsOn []string // explicit names of detectors this one reads
}

// Engine owns the full set of constructed detectors in dependency order and
// drives their per-bar Update. It never exposes a way for one detector to
// mutate another — GetField is read-only.
type Engine struct {
	order     []string
	detectors map[string]Detector
	exec      *barfeed.Feed
}

// Build constructs detectors from decls in dependency order, computed by
// topoSort, so decls may list a detector before the detectors it depends
// on. Unresolved or cyclic dependencies are a ConfigurationError raised at
// registration, never a panic mid-run.
func Build(exec *barfeed.Feed, decls []Declaration) (*Engine, error) {
	byName := make(map[string]Declaration, len(decls))
	for _, d := range decls {
		if _, dup := byName[d.Name]; dup {
			return nil, coreerr.Configuration("structure %q declared more than once", d.Name)
		}
		byName[d.Name] = d
	}

	order, err := topoSort(byName)
	if err != nil {
		return nil, err
	}

	eng := &Engine{order: order, detectors: make(map[string]Detector, len(decls)), exec: exec}
	for _, name := range order {
		d := byName[name]
		factory, ok := factories[d.Kind]
		if !ok {
			return nil, coreerr.Configuration("structure %q: unknown kind %q", d.Name, d.Kind)
		}
		deps := make(map[string]Detector, len(d.DependsOn))
		for _, depName := range d.DependsOn {
			dep, ok := eng.detectors[depName]
			if !ok {
				return nil, coreerr.Configuration("structure %q: dependency %q not constructed yet", d.Name, depName)
			}
			deps[depName] = dep
		}
		det, err := factory(d.Name, d.Params, deps, exec)
		if err != nil {
			return nil, coreerr.Configuration("structure %q: %v", d.Name, err)
		}
		eng.detectors[name] = det
	}
	return eng, nil
}

// Update advances every detector by one confirmed exec bar, in the fixed
// dependency order computed at Build time (spec.md §4.3 protocol).
func (e *Engine) Update(idx int, bar barfeed.Bar) error {
	for _, name := range e.order {
		if err := e.detectors[name].Update(idx, bar); err != nil {
			return coreerr.Configuration("structure %q update at bar %d: %v", name, idx, err)
		}
	}
	return nil
}

// Get returns a detector by name for Snapshot resolution.
func (e *Engine) Get(name string) (Detector, bool) {
	d, ok := e.detectors[name]
	return d, ok
}

// Names returns the order detectors are built and updated in: every
// detector after its dependencies, with ties broken by name rather than by
// Play declaration order. The order is the same on every run.
func (e *Engine) Names() []string { return e.order }

func topoSort(byName map[string]Declaration) ([]string, error) {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(byName))
	var order []string

	// Deterministic traversal: iterate declaration names in their original
	// map insertion order is not guaranteed in Go, so sort by name for a
	// stable error message and stable topological tie-breaks.
	names := make([]string, 0, len(byName))
	for n := range byName {
		names = append(names, n)
	}
	sortStrings(names)

	var visit func(string, []string) error
	visit = func(name string, path []string) error {
		switch color[name] {
		case black:
			return nil
		case gray:
			return coreerr.Configuration("structure dependency cycle: %v -> %s", path, name)
		}
		color[name] = gray
		d, ok := byName[name]
		if !ok {
			return coreerr.Configuration("structure %q depends on undeclared %q", path[len(path)-1], name)
		}
		deps := append([]string(nil), d.DependsOn...)
		sortStrings(deps)
		for _, dep := range deps {
			if err := visit(dep, append(path, name)); err != nil {
				return err
			}
		}
		color[name] = black
		order = append(order, name)
		return nil
	}

	for _, n := range names {
		if err := visit(n, nil); err != nil {
			return nil, err
		}
	}
	return order, nil
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

// fieldNotFound is a helper error for debugging unresolved GetField calls
// during development; the Snapshot layer treats a missing field as NaN, not
// as this error — this exists only for package-internal assertions.
func fieldNotFound(detector, field string) error {
	return fmt.Errorf("structure %q has no field %q", detector, field)
}
