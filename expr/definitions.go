// Copyright © 2023 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

package expr

// Definitions holds an ordered, compiled list of named scalar
// expressions that are evaluated before a model's matrix equations,
// in declaration order; each definition may reference the parameters,
// state variables, and any definition declared before it.
//
// A Definitions value is immutable and read-only once built, and may
// be shared across goroutines; each concurrent evaluation must call
// [Definitions.NewState] to get its own scratch evaluators, the same
// way [Program.NewEvaluator] does for a single expression.
type Definitions struct {
	scope *Scope
	names []string
	progs []*Program
}

// NewDefinitions returns an empty definitions list bound to scope.
// Every definition added extends scope with a new slot.
func NewDefinitions(scope *Scope) *Definitions {
	return &Definitions{scope: scope}
}

// Add compiles src, a scalar expression, under name, and extends the
// scope with a slot for it. It returns the slot index.
func (d *Definitions) Add(name, src string) (int, error) {
	prog, err := Compile(src, d.scope)
	if err != nil {
		return 0, err
	}
	slot := d.scope.Extend(name)
	d.names = append(d.names, name)
	d.progs = append(d.progs, prog)
	return slot, nil
}

// Len returns the number of declared definitions.
func (d *Definitions) Len() int {
	return len(d.names)
}

// Names returns the definition names in declaration order.
func (d *Definitions) Names() []string {
	n := make([]string, len(d.names))
	copy(n, d.names)
	return n
}

// Programs returns the compiled program for each definition, in
// declaration order, for callers that need static introspection (such
// as propagating which scope slots are state-dependent).
func (d *Definitions) Programs() []*Program {
	return d.progs
}

// NewState returns a private evaluator set for repeated calls to
// [DefState.Eval], scoped to a single caller (e.g. one integration or
// one likelihood evaluation).
func (d *Definitions) NewState() *DefState {
	evals := make([]*Evaluator, len(d.progs))
	for i, p := range d.progs {
		evals[i] = p.NewEvaluator()
	}
	return &DefState{evals: evals}
}

// A DefState is a per-evaluation instantiation of a [Definitions]
// list.
type DefState struct {
	evals []*Evaluator
}

// Eval evaluates every definition in declaration order and appends
// the results to env, whose length must equal the scope size as it
// stood before the first definition was added, and whose capacity
// must be at least the current scope size. It returns the extended
// slice.
func (s *DefState) Eval(env []float64) []float64 {
	for _, e := range s.evals {
		env = append(env, e.Eval(env))
	}
	return env
}
