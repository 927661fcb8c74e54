// Copyright © 2023 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

package popmodel_test

import (
	"math"
	"testing"

	"github.com/jmichaelegana/PhyDyn/popmodel"
)

func TestRhsDerivedFromMatrices(t *testing.T) {
	b := popmodel.NewBuilder([]string{"beta", "gamma"}, []string{"I"}, []string{"S"})
	if err := b.SetF(0, 0, "beta * I * S"); err != nil {
		t.Fatalf("SetF: %v", err)
	}
	if err := b.SetD(0, "gamma * I"); err != nil {
		t.Fatalf("SetD: %v", err)
	}
	if err := b.SetDot("S", "-beta * I * S"); err != nil {
		t.Fatalf("SetDot: %v", err)
	}
	m, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	ws, err := m.NewWorkspace([]float64{0.01, 1})
	if err != nil {
		t.Fatalf("NewWorkspace: %v", err)
	}

	y := []float64{10, 100}
	out := make([]float64, 2)
	ws.Rhs(0, y, out)

	if math.Abs(out[0]-0) > 1e-12 {
		t.Errorf("dI/dt = %v, want 0", out[0])
	}
	if math.Abs(out[1]-(-10)) > 1e-12 {
		t.Errorf("dS/dt = %v, want -10", out[1])
	}
}

func TestMigrationInAndOut(t *testing.T) {
	b := popmodel.NewBuilder(nil, []string{"A", "B"}, nil)
	if err := b.SetG(0, 1, "0.5"); err != nil {
		t.Fatalf("SetG: %v", err)
	}
	m, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	ws, err := m.NewWorkspace(nil)
	if err != nil {
		t.Fatalf("NewWorkspace: %v", err)
	}

	out := make([]float64, 2)
	ws.Rhs(0, []float64{10, 20}, out)
	if out[0] != -0.5 {
		t.Errorf("dA/dt = %v, want -0.5", out[0])
	}
	if out[1] != 0.5 {
		t.Errorf("dB/dt = %v, want 0.5", out[1])
	}
}

func TestIsConstantAndIsDiagF(t *testing.T) {
	b := popmodel.NewBuilder([]string{"c1", "c2"}, []string{"I0", "I1"}, nil)
	if err := b.SetF(0, 0, "c1"); err != nil {
		t.Fatalf("SetF: %v", err)
	}
	if err := b.SetD(0, "c2"); err != nil {
		t.Fatalf("SetD: %v", err)
	}
	m, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !m.IsConstant() {
		t.Error("expected a constant model")
	}
	if !m.IsDiagF() {
		t.Error("expected a diagonal F")
	}

	b2 := popmodel.NewBuilder([]string{"beta"}, []string{"I0", "I1"}, nil)
	if err := b2.SetF(0, 1, "beta * I0"); err != nil {
		t.Fatalf("SetF: %v", err)
	}
	m2, err := b2.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if m2.IsConstant() {
		t.Error("expected a non-constant model")
	}
	if m2.IsDiagF() {
		t.Error("expected a non-diagonal F")
	}
}

func TestOutOfRangeIndices(t *testing.T) {
	b := popmodel.NewBuilder(nil, []string{"I0", "I1"}, nil)
	if err := b.SetF(0, 5, "1"); err == nil {
		t.Fatal("expecting a ModelError for an out-of-range deme index")
	}
	if err := b.SetDot("nope", "1"); err == nil {
		t.Fatal("expecting a ModelError for an undeclared auxiliary variable")
	}
}

func TestWorkspaceParamCountMismatch(t *testing.T) {
	b := popmodel.NewBuilder([]string{"beta", "gamma"}, []string{"I"}, nil)
	m, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if _, err := m.NewWorkspace([]float64{1}); err == nil {
		t.Fatal("expecting an error when too few parameter values are bound")
	}
}

func TestFrameAt(t *testing.T) {
	b := popmodel.NewBuilder([]string{"beta"}, []string{"I0", "I1"}, nil)
	if err := b.SetF(0, 0, "beta"); err != nil {
		t.Fatalf("SetF: %v", err)
	}
	if err := b.SetG(0, 1, "0.1"); err != nil {
		t.Fatalf("SetG: %v", err)
	}
	m, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	ws, err := m.NewWorkspace([]float64{2})
	if err != nil {
		t.Fatalf("NewWorkspace: %v", err)
	}

	F, G, Y := ws.FrameAt(0, []float64{5, 7})
	if v := F.At(0, 0); v != 2 {
		t.Errorf("F(0,0) = %v, want 2", v)
	}
	if v := F.At(0, 1); v != 0 {
		t.Errorf("F(0,1) = %v, want 0", v)
	}
	if v := G.At(0, 1); v != 0.1 {
		t.Errorf("G(0,1) = %v, want 0.1", v)
	}
	if Y[0] != 5 || Y[1] != 7 {
		t.Errorf("Y = %v, want [5 7]", Y)
	}
}
