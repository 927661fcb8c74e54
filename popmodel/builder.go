// Copyright © 2023 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

// Package popmodel compiles a population model: the birth matrix F,
// the migration matrix G, the death vector D, and any auxiliary
// dot(·) equations for non-demic state variables, all written in the
// expression language of [github.com/jmichaelegana/PhyDyn/expr].
//
// The deme sub-equations of the ODE right-hand side are derived, not
// written: dy_i/dt sums births into i, migrations in and out, and
// subtracts deaths. Auxiliary equations are evaluated directly.
package popmodel

import (
	"fmt"

	"github.com/jmichaelegana/PhyDyn/expr"
)

// A Builder accumulates a model's definitions and matrix equations.
// Definitions must all be added before the first matrix equation;
// Define fails otherwise.
type Builder struct {
	scope *expr.Scope
	defs  *expr.Definitions

	params []string
	demes  []string
	aux    []string
	tSlot  int

	locked bool

	fEqs   map[[2]int]*expr.Program
	gEqs   map[[2]int]*expr.Program
	dEqs   map[int]*expr.Program
	dotEqs map[int]*expr.Program
}

// NewBuilder starts a population model over the given parameter,
// deme and auxiliary-variable names. Deme i and aux j are addressed
// by their position in demes and aux respectively.
func NewBuilder(params, demes, aux []string) *Builder {
	names := make([]string, 0, len(params)+1+len(demes)+len(aux))
	names = append(names, params...)
	names = append(names, "t")
	names = append(names, demes...)
	names = append(names, aux...)

	scope := expr.NewScope(names...)
	tSlot, _ := scope.Lookup("t")

	return &Builder{
		scope:  scope,
		defs:   expr.NewDefinitions(scope),
		params: append([]string(nil), params...),
		demes:  append([]string(nil), demes...),
		aux:    append([]string(nil), aux...),
		tSlot:  tSlot,
		fEqs:   make(map[[2]int]*expr.Program),
		gEqs:   make(map[[2]int]*expr.Program),
		dEqs:   make(map[int]*expr.Program),
		dotEqs: make(map[int]*expr.Program),
	}
}

// Define adds a named intermediate scalar, evaluated before the
// matrix equations in declaration order. It must be called before any
// SetF, SetG, SetD or SetDot.
func (b *Builder) Define(name, src string) error {
	if b.locked {
		return &ModelError{Msg: fmt.Sprintf("definition %q declared after a matrix equation", name)}
	}
	if _, err := b.defs.Add(name, src); err != nil {
		return err
	}
	return nil
}

// SetF compiles src as the F(i,j) birth-rate entry: the rate at which
// a lineage in deme j is born to a parent in deme i.
func (b *Builder) SetF(i, j int, src string) error {
	prog, err := b.compile(i, j, src)
	if err != nil {
		return err
	}
	b.fEqs[[2]int{i, j}] = prog
	return nil
}

// SetG compiles src as the G(i,j) migration-rate entry: the rate at
// which a lineage moves from deme i to deme j.
func (b *Builder) SetG(i, j int, src string) error {
	prog, err := b.compile(i, j, src)
	if err != nil {
		return err
	}
	b.gEqs[[2]int{i, j}] = prog
	return nil
}

// SetD compiles src as the D(i) death-rate entry.
func (b *Builder) SetD(i int, src string) error {
	if i < 0 || i >= len(b.demes) {
		return &ModelError{Msg: fmt.Sprintf("D(%d): deme index out of range [0,%d)", i, len(b.demes))}
	}
	b.locked = true
	prog, err := expr.Compile(src, b.scope)
	if err != nil {
		return err
	}
	b.dEqs[i] = prog
	return nil
}

// SetDot compiles src as the dot(name) equation for the auxiliary
// variable name, which must have been declared in the aux list passed
// to NewBuilder.
func (b *Builder) SetDot(name string, src string) error {
	idx := -1
	for i, a := range b.aux {
		if a == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return &ModelError{Msg: fmt.Sprintf("dot(%s): %q is not a declared auxiliary variable", name, name)}
	}
	b.locked = true
	prog, err := expr.Compile(src, b.scope)
	if err != nil {
		return err
	}
	b.dotEqs[idx] = prog
	return nil
}

func (b *Builder) compile(i, j int, src string) (*expr.Program, error) {
	if i < 0 || i >= len(b.demes) || j < 0 || j >= len(b.demes) {
		return nil, &ModelError{Msg: fmt.Sprintf("equation indices (%d,%d) out of range [0,%d)", i, j, len(b.demes))}
	}
	b.locked = true
	return expr.Compile(src, b.scope)
}

// Build validates and freezes the model.
func (b *Builder) Build() (*Model, error) {
	if len(b.demes) == 0 {
		return nil, &ModelError{Msg: "a population model needs at least one deme"}
	}

	dynamic := make([]bool, b.scope.Len())
	dynamic[b.tSlot] = true
	demeBase := len(b.params) + 1
	for i := range b.demes {
		dynamic[demeBase+i] = true
	}
	for j := range b.aux {
		dynamic[demeBase+len(b.demes)+j] = true
	}
	defBase := demeBase + len(b.demes) + len(b.aux)
	for i, prog := range b.defs.Programs() {
		if prog.UsesAny(dynamic) {
			dynamic[defBase+i] = true
		}
	}

	constant := true
	for _, prog := range b.fEqs {
		if prog.UsesAny(dynamic) {
			constant = false
			break
		}
	}
	if constant {
		for _, prog := range b.gEqs {
			if prog.UsesAny(dynamic) {
				constant = false
				break
			}
		}
	}
	if constant {
		for _, prog := range b.dEqs {
			if prog.UsesAny(dynamic) {
				constant = false
				break
			}
		}
	}
	if constant {
		for _, prog := range b.dotEqs {
			if prog.UsesAny(dynamic) {
				constant = false
				break
			}
		}
	}

	diagF := true
	for k := range b.fEqs {
		if k[0] != k[1] {
			diagF = false
			break
		}
	}

	m := &Model{
		scope:    b.scope,
		defs:     b.defs,
		params:   b.params,
		demes:    b.demes,
		aux:      b.aux,
		tSlot:    b.tSlot,
		demeBase: demeBase,
		fEqs:     b.fEqs,
		gEqs:     b.gEqs,
		dEqs:     b.dEqs,
		dotEqs:   b.dotEqs,
		constant: constant,
		diagF:    diagF,
	}
	return m, nil
}
