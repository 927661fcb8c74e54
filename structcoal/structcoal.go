// Copyright © 2023 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

// Package structcoal ties the population model,
// the integrated trajectory,
// and the genealogy intervals
// into the host-facing likelihood engine,
// with incremental recomputation
// driven by the parameter and tree dirty bits.
package structcoal

import (
	"errors"
	"fmt"
	"math"

	"github.com/jmichaelegana/PhyDyn/ancestral"
	"github.com/jmichaelegana/PhyDyn/coaltree"
	"github.com/jmichaelegana/PhyDyn/integrate"
	"github.com/jmichaelegana/PhyDyn/likelihood"
	"github.com/jmichaelegana/PhyDyn/params"
	"github.com/jmichaelegana/PhyDyn/popmodel"
	"github.com/jmichaelegana/PhyDyn/stateprob"
)

// A Trajectory is the integration window of an analysis.
type Trajectory struct {
	Method integrate.Method
	Steps  int
	T0, T1 float64
	Init   []float64 // initial state in model order [demes; aux]
}

// An Engine is the host-facing evaluator.
// It caches the last log-likelihood
// and recomputes only when a parameter or the tree is dirty.
type Engine struct {
	model *popmodel.Model
	pars  *params.Set
	iv    *coaltree.Intervals
	tips  map[int]int
	traj  Trajectory
	opts  likelihood.Options

	series    *integrate.Series
	last      *likelihood.Engine
	cached    float64
	valid     bool
	treeDirty bool
}

// Init validates the collaborators and returns an engine.
// Every model parameter must already be bound in pars,
// and every terminal node must have a deme assignment in tips.
func Init(m *popmodel.Model, pars *params.Set, iv *coaltree.Intervals, tips map[int]int, traj Trajectory, opts likelihood.Options) (*Engine, error) {
	if _, err := pars.Values(m.ParamNames()); err != nil {
		return nil, err
	}
	if len(traj.Init) != m.Dim() {
		return nil, fmt.Errorf("structcoal: initial state has %d entries, want %d", len(traj.Init), m.Dim())
	}
	if traj.Steps < 1 {
		return nil, fmt.Errorf("structcoal: invalid step count %d", traj.Steps)
	}
	if traj.T1 <= traj.T0 {
		return nil, fmt.Errorf("structcoal: empty trajectory window [%g, %g]", traj.T0, traj.T1)
	}
	nd := m.NumDemes()
	for i := 0; i < iv.Count(); i++ {
		if iv.EventType(i) != coaltree.Sample {
			continue
		}
		n := iv.EventNode(i)
		st, ok := tips[n]
		if !ok {
			return nil, fmt.Errorf("structcoal: terminal node %d without a deme assignment", n)
		}
		if st < 0 || st >= nd {
			return nil, fmt.Errorf("structcoal: terminal node %d: deme %d out of range [0,%d)", n, st, nd)
		}
	}

	return &Engine{
		model: m,
		pars:  pars,
		iv:    iv,
		tips:  tips,
		traj:  traj,
		opts:  opts,
	}, nil
}

// CalculateLogP returns the log-likelihood,
// recomputing only if a parameter or the tree changed
// since the last call.
// Numerical failures (a diverging trajectory,
// a collapse during the walk)
// yield -Inf for this state, not an error;
// a malformed tree panics.
func (e *Engine) CalculateLogP() float64 {
	parsDirty := e.pars.IsDirty() || e.series == nil
	if e.valid && !parsDirty && !e.treeDirty {
		return e.cached
	}

	if parsDirty {
		if !e.rebuildSeries() {
			return e.cached
		}
	}
	if e.treeDirty {
		e.iv.MarkDirty()
		e.treeDirty = false
	}

	le, err := likelihood.New(e.model, e.series, e.iv, e.tips, e.opts)
	if err != nil {
		panic(err)
	}
	lp, err := le.Eval()
	if err != nil {
		panic(err)
	}
	e.last = le
	e.cached = lp
	e.valid = true
	return e.cached
}

// rebuildSeries integrates the trajectory
// under the current parameter values.
// It reports false after caching -Inf
// when the integration fails numerically.
func (e *Engine) rebuildSeries() bool {
	vals, err := e.pars.Values(e.model.ParamNames())
	if err != nil {
		panic(err)
	}
	ws, err := e.model.NewWorkspace(vals)
	if err != nil {
		panic(err)
	}
	s, err := integrate.Run(ws, e.traj.Init, e.traj.T0, e.traj.T1, e.traj.Steps, e.traj.Method)
	if err != nil {
		var ie *integrate.IntegrationError
		if errors.As(err, &ie) {
			e.series = nil
			e.cached = math.Inf(-1)
			e.valid = true
			e.pars.Clean()
			return false
		}
		panic(err)
	}
	e.series = s
	e.pars.Clean()
	return true
}

// StateProbabilities returns the lineage store
// of the last evaluation, or nil before the first.
func (e *Engine) StateProbabilities() *stateprob.Probabilities {
	if e.last == nil {
		return nil
	}
	return e.last.Probs()
}

// RootProbs returns the state probability
// of the last surviving lineage of the last evaluation,
// or nil if unavailable.
func (e *Engine) RootProbs() []float64 {
	if e.last == nil {
		return nil
	}
	return e.last.RootProbs()
}

// ReconstructAncestral runs the forward sweep
// over the last evaluation,
// returning the posterior state probability of every node.
// The engine must have been built
// with the ancestral option on
// and evaluated at least once.
func (e *Engine) ReconstructAncestral() (map[int][]float64, error) {
	if e.last == nil || e.last.Probs() == nil {
		return nil, fmt.Errorf("structcoal: no evaluation to reconstruct from")
	}
	if e.series == nil {
		return nil, fmt.Errorf("structcoal: no integrated trajectory")
	}
	return ancestral.Reconstruct(e.model, e.series, e.iv, e.last.Probs(), e.opts.MinP)
}

// MarkParametersDirty flags the parameter bindings as changed.
func (e *Engine) MarkParametersDirty() {
	e.pars.MarkDirty()
}

// MarkTreeDirty flags the tree topology or node ages as changed.
func (e *Engine) MarkTreeDirty() {
	e.treeDirty = true
}

// Restore forces a full recomputation on the next call:
// the enclosing sampler may have rolled back
// without telling us what changed.
func (e *Engine) Restore() {
	e.valid = false
	e.series = nil
	e.treeDirty = true
}
