// Copyright © 2023 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

// Package likelihood computes the log-likelihood
// of a dated bifurcating genealogy
// under a structured coalescent
// whose demography is a discretized ODE trajectory.
//
// The engine walks the tree's event intervals backward in time,
// maintaining a per-lineage probability vector over the demes,
// and accumulates the log contribution
// of every coalescent and sampling event.
package likelihood

import (
	"fmt"

	"github.com/jmichaelegana/PhyDyn/coaltree"
	"github.com/jmichaelegana/PhyDyn/integrate"
	"github.com/jmichaelegana/PhyDyn/popmodel"
	"github.com/jmichaelegana/PhyDyn/stateprob"
)

// Options control the numerical guards and optional corrections
// of a likelihood evaluation.
type Options struct {
	// FiniteSizeCorrections applies a first-order update
	// to the other extant lineages after every coalescence.
	FiniteSizeCorrections bool

	// ApproxLambda uses the aggregate bilinear approximation
	// for the total coalescence rate
	// instead of the exact pairwise sum.
	ApproxLambda bool

	// ForgiveAgtY is the tolerated fraction of sampled lineages
	// in excess of the total population size;
	// beyond it the evaluation returns -Inf.
	ForgiveAgtY float64

	// PenaltyAgtY scales the amplification applied
	// when more lineages than individuals are extant
	// but the excess is forgiven.
	PenaltyAgtY float64

	// ForgiveY clamps deme sizes at one
	// (instead of a small epsilon)
	// before dividing by them.
	ForgiveY bool

	// MinP is the floor applied to probability entries
	// before renormalisation; zero disables flooring.
	MinP float64

	// Ne is the effective population size
	// for the part of the tree older than the trajectory;
	// if zero it is derived from the total coalescence rate
	// at the frame the walk has reached when the tail begins.
	Ne float64

	// Constant short-circuits the evaluation to logP = 0,
	// keeping only the lineage bookkeeping.
	Constant bool

	// Ancestral records the state probability of every node
	// during the walk, for a later forward reconstruction.
	Ancestral bool

	// Full activates the per-interval accumulation
	// of the time-integrated coalescence rate
	// and the within-interval lineage diffusion.
	// Off by default: the standard walk
	// contributes zero between events.
	Full bool
}

// DefaultOptions returns the option defaults.
func DefaultOptions() Options {
	return Options{
		ForgiveAgtY: 1.0,
		PenaltyAgtY: 1.0,
		ForgiveY:    true,
		MinP:        0.0001,
	}
}

const yEpsilon = 1e-12

// An Engine evaluates the likelihood of one genealogy
// against one integrated trajectory.
// It owns its state store and scratch buffers;
// the model, series and intervals are read-only collaborators.
type Engine struct {
	model    *popmodel.Model
	series   *integrate.Series
	iv       *coaltree.Intervals
	tipState map[int]int
	opts     Options
	kern     kernel

	probs *stateprob.Probabilities

	// walk state
	h       float64 // cumulative height above the youngest tip
	t       float64 // forward time, t1 - h
	tsPoint int     // current frame index, decreasing as h grows

	// scratch
	yClamp []float64
	fx     []float64
	fy     []float64
	acc    []float64
}

// New returns an engine over the given collaborators.
// tipState assigns a deme index to every terminal node id.
func New(m *popmodel.Model, s *integrate.Series, iv *coaltree.Intervals, tipState map[int]int, opts Options) (*Engine, error) {
	nd := m.NumDemes()
	for i := 0; i < iv.Count(); i++ {
		if iv.EventType(i) != coaltree.Sample {
			continue
		}
		n := iv.EventNode(i)
		st, ok := tipState[n]
		if !ok {
			return nil, fmt.Errorf("likelihood: terminal node %d without a deme assignment", n)
		}
		if st < 0 || st >= nd {
			return nil, fmt.Errorf("likelihood: terminal node %d: deme %d out of range [0,%d)", n, st, nd)
		}
	}

	e := &Engine{
		model:    m,
		series:   s,
		iv:       iv,
		tipState: tipState,
		opts:     opts,
		yClamp:   make([]float64, nd),
		fx:       make([]float64, nd),
		fy:       make([]float64, nd),
		acc:      make([]float64, nd),
	}
	if opts.Constant {
		e.kern = constantKernel{}
	} else {
		e.kern = generalKernel{}
	}
	return e, nil
}

// Probs returns the state store of the last evaluation,
// or nil before the first call to [Engine.Eval].
func (e *Engine) Probs() *stateprob.Probabilities {
	return e.probs
}

// RootProbs returns the probability vector
// of the last surviving lineage of the last evaluation,
// or nil if there is none.
func (e *Engine) RootProbs() []float64 {
	if e.probs == nil {
		return nil
	}
	return e.probs.RootProbs()
}

// clampY writes a clamped copy of y into the engine scratch:
// entries are floored at one when ForgiveY is set,
// at a small epsilon otherwise.
func (e *Engine) clampY(y []float64) []float64 {
	floor := yEpsilon
	if e.opts.ForgiveY {
		floor = 1
	}
	for i, v := range y {
		if v < floor {
			v = floor
		}
		e.yClamp[i] = v
	}
	return e.yClamp
}
