// Copyright © 2023 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

package likelihood

import (
	"github.com/jmichaelegana/PhyDyn/stateprob"
	"gonum.org/v1/gonum/floats"
)

// fullInterval advances the walk across an interval of length d,
// crossing as many grid boundaries as needed.
// Over each sub-segment it accumulates the time-integrated
// negative total coalescence rate
// and applies one mean-field diffusion step
// to every extant lineage.
// This is the opt-in "full" mode;
// the default walk skips both terms.
func (e *Engine) fullInterval(d float64) float64 {
	var contrib float64
	remaining := d
	for remaining > 0 {
		fr := e.series.Frame(e.tsPoint)
		seg := e.t - fr.T
		if seg <= 0 {
			if e.tsPoint == 0 {
				seg = remaining
			} else {
				e.tsPoint--
				continue
			}
		}
		if seg > remaining {
			seg = remaining
		}

		if e.probs.NumExtant() > 1 {
			contrib -= e.totalCoalRate(e.tsPoint) * seg
		}
		if e.probs.NumExtant() > 0 {
			e.diffuse(e.tsPoint, seg)
		}

		e.t -= seg
		e.h += seg
		remaining -= seg
	}
	e.tsPoint = e.series.FrameIndexAtTime(e.t, e.tsPoint)
	return contrib
}

// diffuse applies a single Euler step of length dt
// to every extant lineage:
//
//	dp/dτ = (M − diag(λ)) p
//
// with M(i,j) = G(j,i)/Y(j),
// and λ(i) the per-deme coalescence hazard
// against every other extant lineage.
func (e *Engine) diffuse(k int, dt float64) {
	fr := e.series.Frame(k)
	y := e.clampY(fr.Y)
	nd := len(y)

	// F·(A⊘Y): the hazard against the whole pool;
	// each lineage subtracts its own term below
	aOverY := e.fx
	a := e.probs.LineageStateSum()
	for i := 0; i < nd; i++ {
		aOverY[i] = a[i] / y[i]
	}
	fPool := make([]float64, nd)
	for i := 0; i < nd; i++ {
		var acc float64
		for j := 0; j < nd; j++ {
			acc += fr.F.At(i, j) * aOverY[j]
		}
		fPool[i] = acc
	}

	pOverY := e.fy
	fSelf := make([]float64, nd)
	next := make([]float64, nd)
	for _, n := range e.probs.Extant() {
		p, _ := e.probs.Probs(n)
		for i := 0; i < nd; i++ {
			pOverY[i] = p[i] / y[i]
		}
		for i := 0; i < nd; i++ {
			var acc float64
			for j := 0; j < nd; j++ {
				acc += fr.F.At(i, j) * pOverY[j]
			}
			fSelf[i] = acc
		}

		for i := 0; i < nd; i++ {
			// migration in, out of deme i
			var mig float64
			for j := 0; j < nd; j++ {
				mig += fr.G.At(j, i) / y[j] * p[j]
				mig -= fr.G.At(i, j) / y[i] * p[i]
			}
			lam := (fPool[i] - fSelf[i]) / y[i]
			next[i] = p[i] + dt*(mig-lam*p[i])
		}

		copy(p, next)
		if e.opts.MinP > 0 {
			stateprob.FloorAndRenormalise(p, e.opts.MinP)
			continue
		}
		for i := range p {
			if p[i] < 0 {
				p[i] = 0
			}
		}
		if sum := floats.Sum(p); sum > 0 {
			floats.Scale(1/sum, p)
		}
	}
	e.probs.Invalidate()
}
