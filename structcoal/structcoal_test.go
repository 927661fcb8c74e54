// Copyright © 2023 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

package structcoal_test

import (
	"math"
	"testing"

	"github.com/jmichaelegana/PhyDyn/coaltree"
	"github.com/jmichaelegana/PhyDyn/integrate"
	"github.com/jmichaelegana/PhyDyn/likelihood"
	"github.com/jmichaelegana/PhyDyn/params"
	"github.com/jmichaelegana/PhyDyn/popmodel"
	"github.com/jmichaelegana/PhyDyn/structcoal"
	"github.com/js-arias/timetree"
)

func newEngine(t *testing.T) (*structcoal.Engine, *params.Set, *coaltree.Intervals, *timetree.Tree) {
	t.Helper()

	b := popmodel.NewBuilder([]string{"fk"}, []string{"I"}, nil)
	if err := b.SetF(0, 0, "fk"); err != nil {
		t.Fatalf("SetF: %v", err)
	}
	if err := b.SetD(0, "fk"); err != nil {
		t.Fatalf("SetD: %v", err)
	}
	m, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	pars := params.New()
	pars.Set("fk", 1)

	tt := timetree.New("pair", 2)
	if _, err := tt.Add(0, 2, "A"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := tt.Add(0, 2, "B"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	iv, err := coaltree.New(tt, 1)
	if err != nil {
		t.Fatalf("coaltree.New: %v", err)
	}

	tips := map[int]int{1: 0, 2: 0}
	traj := structcoal.Trajectory{
		Method: integrate.ClassicRK,
		Steps:  100,
		T0:     0,
		T1:     10,
		Init:   []float64{10},
	}
	opts := likelihood.DefaultOptions()
	opts.MinP = 0

	e, err := structcoal.Init(m, pars, iv, tips, traj, opts)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	return e, pars, iv, tt
}

func TestCachedEvaluation(t *testing.T) {
	e, _, _, _ := newEngine(t)

	lp1 := e.CalculateLogP()
	if math.IsNaN(lp1) || math.IsInf(lp1, 0) {
		t.Fatalf("logP = %v, want finite", lp1)
	}

	// a single coalescence over a constant unit population of 10
	want := math.Log(2 * 1 / 100.0)
	if math.Abs(lp1-want) > 1e-8 {
		t.Errorf("logP = %v, want %v", lp1, want)
	}

	lp2 := e.CalculateLogP()
	if lp2 != lp1 {
		t.Errorf("cached logP = %v, want bit-identical %v", lp2, lp1)
	}
}

func TestParameterDirty(t *testing.T) {
	e, pars, _, _ := newEngine(t)

	lp1 := e.CalculateLogP()

	pars.Set("fk", 2)
	lp2 := e.CalculateLogP()
	if lp2 == lp1 {
		t.Error("logP unchanged after a parameter write")
	}
	want := math.Log(2 * 2 / 100.0)
	if math.Abs(lp2-want) > 1e-8 {
		t.Errorf("logP = %v, want %v", lp2, want)
	}

	// a no-op recomputation must return the cache
	if lp3 := e.CalculateLogP(); lp3 != lp2 {
		t.Errorf("cached logP = %v, want %v", lp3, lp2)
	}
}

func TestTreeDirty(t *testing.T) {
	b := popmodel.NewBuilder([]string{"fk"}, []string{"I"}, nil)
	if err := b.SetF(0, 0, "fk"); err != nil {
		t.Fatalf("SetF: %v", err)
	}
	if err := b.SetD(0, "fk"); err != nil {
		t.Fatalf("SetD: %v", err)
	}
	m, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	pars := params.New()
	pars.Set("fk", 1)

	tt := timetree.New("grow", 2)
	a, err := tt.Add(0, 2, "A")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := tt.Add(0, 2, "B"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	iv, err := coaltree.New(tt, 1)
	if err != nil {
		t.Fatalf("coaltree.New: %v", err)
	}

	tips := map[int]int{1: 0, 2: 0}
	traj := structcoal.Trajectory{
		Method: integrate.ClassicRK,
		Steps:  100,
		T0:     0,
		T1:     10,
		Init:   []float64{10},
	}
	opts := likelihood.DefaultOptions()
	opts.MinP = 0

	e, err := structcoal.Init(m, pars, iv, tips, traj, opts)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	lp1 := e.CalculateLogP()

	// graft a third tip as sister of A:
	// one more coalescence, one more event contribution
	if _, err := tt.AddSister(a, 0, 1, "C"); err != nil {
		t.Fatalf("AddSister: %v", err)
	}
	for _, n := range tt.Nodes() {
		if tt.IsTerm(n) {
			tips[n] = 0
		}
	}
	e.MarkTreeDirty()
	lp2 := e.CalculateLogP()

	want := 2 * math.Log(2*1/100.0)
	if math.Abs(lp2-want) > 1e-8 {
		t.Errorf("logP = %v, want %v", lp2, want)
	}
	if lp2 == lp1 {
		t.Error("logP unchanged after a topology change")
	}
}

func TestRestore(t *testing.T) {
	e, _, _, _ := newEngine(t)

	lp1 := e.CalculateLogP()
	e.Restore()
	lp2 := e.CalculateLogP()
	if lp2 != lp1 {
		t.Errorf("logP after Restore = %v, want %v", lp2, lp1)
	}
}

func TestRootProbs(t *testing.T) {
	e, _, _, _ := newEngine(t)

	if e.RootProbs() != nil {
		t.Error("root probs before any evaluation must be nil")
	}
	e.CalculateLogP()
	root := e.RootProbs()
	if root == nil || math.Abs(root[0]-1) > 1e-9 {
		t.Errorf("root probs = %v, want [1]", root)
	}
	if e.StateProbabilities() == nil {
		t.Error("no state probabilities after an evaluation")
	}
}

func TestInitErrors(t *testing.T) {
	b := popmodel.NewBuilder([]string{"fk"}, []string{"I"}, nil)
	if err := b.SetF(0, 0, "fk"); err != nil {
		t.Fatalf("SetF: %v", err)
	}
	m, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	tt := timetree.New("pair", 2)
	if _, err := tt.Add(0, 2, "A"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := tt.Add(0, 2, "B"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	iv, err := coaltree.New(tt, 1)
	if err != nil {
		t.Fatalf("coaltree.New: %v", err)
	}

	traj := structcoal.Trajectory{
		Method: integrate.Euler,
		Steps:  10,
		T0:     0,
		T1:     10,
		Init:   []float64{10},
	}
	opts := likelihood.DefaultOptions()

	// unbound parameter
	if _, err := structcoal.Init(m, params.New(), iv, map[int]int{1: 0, 2: 0}, traj, opts); err == nil {
		t.Error("expecting an error for an unbound parameter")
	}

	pars := params.New()
	pars.Set("fk", 1)

	// missing tip assignment
	if _, err := structcoal.Init(m, pars, iv, map[int]int{1: 0}, traj, opts); err == nil {
		t.Error("expecting an error for a missing tip assignment")
	}

	// mis-sized initial state
	bad := traj
	bad.Init = []float64{10, 20}
	if _, err := structcoal.Init(m, pars, iv, map[int]int{1: 0, 2: 0}, bad, opts); err == nil {
		t.Error("expecting an error for a mis-sized initial state")
	}
}
