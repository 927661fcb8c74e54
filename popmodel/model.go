// Copyright © 2023 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

package popmodel

import (
	"fmt"

	"github.com/jmichaelegana/PhyDyn/expr"
)

// A Model is an immutable, compiled population model: the F, G, D
// matrix equations and the auxiliary dot(·) equations, plus their
// shared definitions. It is safe for concurrent use by multiple
// [Workspace] values.
type Model struct {
	scope *expr.Scope
	defs  *expr.Definitions

	params []string
	demes  []string
	aux    []string

	tSlot    int
	demeBase int

	fEqs   map[[2]int]*expr.Program
	gEqs   map[[2]int]*expr.Program
	dEqs   map[int]*expr.Program
	dotEqs map[int]*expr.Program

	constant bool
	diagF    bool
}

// Dim returns the dimension of the ODE state vector y = [demes; aux].
func (m *Model) Dim() int {
	return len(m.demes) + len(m.aux)
}

// NumDemes returns the number of demes m.
func (m *Model) NumDemes() int {
	return len(m.demes)
}

// DemeNames returns the deme names in index order.
func (m *Model) DemeNames() []string {
	n := make([]string, len(m.demes))
	copy(n, m.demes)
	return n
}

// AuxNames returns the auxiliary variable names in index order.
func (m *Model) AuxNames() []string {
	n := make([]string, len(m.aux))
	copy(n, m.aux)
	return n
}

// NumParams returns the number of free parameters the model expects
// to be bound by a [Workspace].
func (m *Model) NumParams() int {
	return len(m.params)
}

// ParamNames returns the parameter names in the order a [Workspace]
// expects their values.
func (m *Model) ParamNames() []string {
	n := make([]string, len(m.params))
	copy(n, m.params)
	return n
}

// ParamSlot returns the binding index of a parameter name, for hosts
// that keep parameter values keyed by name and need to project them
// into the positional vector [Model.NewWorkspace] expects.
func (m *Model) ParamSlot(name string) (int, bool) {
	for i, p := range m.params {
		if p == name {
			return i, true
		}
	}
	return 0, false
}

// IsConstant reports whether every rate equation collapses to a
// constant once parameters are bound, i.e. none of them reads t or
// any deme, auxiliary, or state-dependent definition.
func (m *Model) IsConstant() bool {
	return m.constant
}

// IsDiagF reports whether F has no symbolically declared off-diagonal
// entries, i.e. F(i,j) for i != j is implicitly zero everywhere.
func (m *Model) IsDiagF() bool {
	return m.diagF
}

func (m *Model) demeSlot(i int) int {
	return m.demeBase + i
}

func (m *Model) auxSlot(j int) int {
	return m.demeBase + len(m.demes) + j
}

func (m *Model) checkState(y []float64) error {
	if len(y) != m.Dim() {
		return &ModelError{Msg: fmt.Sprintf("state vector has %d entries, want %d (%d demes + %d aux)", len(y), m.Dim(), len(m.demes), len(m.aux))}
	}
	return nil
}
