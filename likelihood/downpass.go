// Copyright © 2023 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

package likelihood

import (
	"fmt"
	"log"
	"math"

	"github.com/jmichaelegana/PhyDyn/coaltree"
	"github.com/jmichaelegana/PhyDyn/stateprob"
	"gonum.org/v1/gonum/floats"
)

// A kernel is the per-event behaviour of a walk.
// The general kernel carries the structured coalescent;
// the constant kernel keeps the lineage bookkeeping
// but contributes nothing to the log-likelihood.
type kernel interface {
	onInterval(e *Engine, i int, d float64) float64
	onSample(e *Engine, node int) error
	onCoalescent(e *Engine, node int) (float64, error)
}

// Eval runs the backward walk and returns the log-likelihood.
// Numerical failure collapses the result to -Inf;
// a non-nil error reports a structural bug
// (a malformed tree or a tip without a deme assignment)
// and is not recoverable.
func (e *Engine) Eval() (float64, error) {
	nd := e.model.NumDemes()
	nTips := e.iv.NumTips()
	e.probs = stateprob.New(nd, nTips)

	e.h = 0
	e.t = e.series.T1()
	e.tsPoint = e.series.Len() - 1

	trajDur := e.series.Duration()
	count := e.iv.Count()

	var logP float64
	i := 0
	for ; i < count; i++ {
		d := e.iv.Duration(i)

		// the remaining intervals predate the trajectory
		// and are handled by the constant-size tail
		if trajDur < e.h+d {
			break
		}

		logP += e.kern.onInterval(e, i, d)

		lp, stop := e.guardAgtY(logP, nTips)
		if stop {
			return e.collapse(i), nil
		}
		logP = lp

		switch e.iv.EventType(i) {
		case coaltree.Sample:
			if err := e.kern.onSample(e, e.iv.EventNode(i)); err != nil {
				return 0, err
			}
		case coaltree.Coalescent:
			c, err := e.kern.onCoalescent(e, e.iv.EventNode(i))
			if err != nil {
				return 0, err
			}
			logP += c
		}

		if math.IsNaN(logP) || math.IsInf(logP, -1) {
			return e.collapse(i), nil
		}
	}

	if i < count {
		tc, err := e.tail(i)
		if err != nil {
			return 0, err
		}
		logP += tc
		if math.IsNaN(logP) || math.IsInf(logP, -1) {
			return e.collapse(i), nil
		}
	}
	return logP, nil
}

// guardAgtY applies the over-sampling guard:
// with more extant lineages than individuals in the population,
// either reject the sample outright
// or amplify the current log-likelihood.
func (e *Engine) guardAgtY(logP float64, nTips int) (float64, bool) {
	if e.opts.Constant {
		return logP, false
	}
	a := float64(e.probs.NumExtant())
	ySum := floats.Sum(e.series.Frame(e.tsPoint).Y)
	if ySum-a >= 0 {
		return logP, false
	}
	if a/float64(nTips) > e.opts.ForgiveAgtY {
		return logP, true
	}
	// for a negative logP the amplification worsens the likelihood;
	// for a positive one it improves it
	logP += logP * math.Abs(ySum-a) * e.opts.PenaltyAgtY
	return logP, false
}

// collapse reports a numerical failure once and returns -Inf.
func (e *Engine) collapse(interval int) float64 {
	log.Printf("likelihood: numerical collapse at interval %d (t=%g, h=%g)", interval, e.t, e.h)
	return math.Inf(-1)
}

type generalKernel struct{}

func (generalKernel) onInterval(e *Engine, i int, d float64) float64 {
	if e.opts.Full {
		return e.fullInterval(d)
	}

	// between events only the clock advances;
	// the integrated rate term is gated behind the full option
	e.h += d
	e.t -= d
	e.tsPoint = e.series.FrameIndexAtTime(e.t, e.tsPoint)
	return 0
}

func (generalKernel) onSample(e *Engine, node int) error {
	st := e.tipState[node]
	if err := e.probs.AddSample(node, st, e.opts.MinP); err != nil {
		return fmt.Errorf("likelihood: sample event: %v", err)
	}
	if e.opts.Ancestral {
		e.probs.StoreAncestral(node, nil)
	}
	return nil
}

func (generalKernel) onCoalescent(e *Engine, node int) (float64, error) {
	return e.coalesce(node, true)
}

type constantKernel struct{}

func (constantKernel) onInterval(e *Engine, i int, d float64) float64 {
	e.h += d
	e.t -= d
	e.tsPoint = e.series.FrameIndexAtTime(e.t, e.tsPoint)
	return 0
}

func (constantKernel) onSample(e *Engine, node int) error {
	st := e.tipState[node]
	if err := e.probs.AddSample(node, st, e.opts.MinP); err != nil {
		return fmt.Errorf("likelihood: sample event: %v", err)
	}
	return nil
}

// onCoalescent merges the two children into their mean vector,
// keeping the extant set well formed without touching the rates.
func (constantKernel) onCoalescent(e *Engine, node int) (float64, error) {
	u, v := e.iv.Children(node)
	pu, err := e.probs.RemoveLineage(u)
	if err != nil {
		return 0, fmt.Errorf("likelihood: coalescent event at node %d: %v", node, err)
	}
	pv, err := e.probs.RemoveLineage(v)
	if err != nil {
		return 0, fmt.Errorf("likelihood: coalescent event at node %d: %v", node, err)
	}
	for i := range pu {
		pu[i] = 0.5 * (pu[i] + pv[i])
	}
	if err := e.probs.AddLineage(node, pu); err != nil {
		return 0, err
	}
	return 0, nil
}
