// Copyright © 2023 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

// Package ancestral reconstructs the posterior deme probability
// of every node of a genealogy,
// running the forward-in-time dual
// of the backward likelihood sweep
// over the same integration grid.
package ancestral

import (
	"fmt"
	"math"

	"github.com/jmichaelegana/PhyDyn/coaltree"
	"github.com/jmichaelegana/PhyDyn/integrate"
	"github.com/jmichaelegana/PhyDyn/popmodel"
	"github.com/jmichaelegana/PhyDyn/stateprob"
	"gonum.org/v1/gonum/floats"
)

// Reconstruct walks the intervals forward, from the root to the tips,
// propagating a forward probability vector for every live lineage,
// and combines it at each node with the backward vector
// recorded during the likelihood sweep.
// probs must come from an evaluation run with the ancestral option on.
//
// On return the ancestral store of probs holds the posterior
// of every node, which is also returned keyed by node id.
func Reconstruct(m *popmodel.Model, s *integrate.Series, iv *coaltree.Intervals, probs *stateprob.Probabilities, minP float64) (map[int][]float64, error) {
	count := iv.Count()
	nd := m.NumDemes()

	// snapshot the backward vectors before clearing the store
	back := make(map[int][]float64, count)
	for _, n := range probs.AncestralNodes() {
		v, _ := probs.Ancestral(n)
		back[n] = v
	}
	root := iv.EventNode(count - 1)
	if _, ok := back[root]; !ok {
		return nil, fmt.Errorf("ancestral: no backward vector for the root; run the likelihood with the ancestral option")
	}
	probs.ClearAncestral()

	posterior := make(map[int][]float64, count)
	active := make(map[int][]float64)
	active[root] = append([]float64(nil), back[root]...)

	w := &walker{
		s:      s,
		minP:   minP,
		nd:     nd,
		yc:     make([]float64, nd),
		tmp:    make([]float64, nd),
		pool:   make([]float64, nd),
		hazard: make([]float64, nd),
	}

	for i := count - 1; i >= 0; i-- {
		h := iv.TimeOf(i)
		t := s.T1() - h
		k := s.FrameIndexAtTime(t, s.Len()-1)

		node := iv.EventNode(i)
		switch iv.EventType(i) {
		case coaltree.Coalescent:
			fwd, ok := active[node]
			if !ok {
				return nil, fmt.Errorf("ancestral: coalescent node %d reached without a forward vector", node)
			}
			posterior[node] = combine(fwd, back[node])
			delete(active, node)

			left, right := splitChildren(fwd, s.Frame(k))
			u, v := iv.Children(node)
			active[u] = left
			active[v] = right
		case coaltree.Sample:
			fwd, ok := active[node]
			if !ok {
				return nil, fmt.Errorf("ancestral: sample node %d reached without a forward vector", node)
			}
			posterior[node] = combine(fwd, back[node])
			delete(active, node)
		}

		// propagate every live lineage forward over the interval
		// below this event
		if i > 0 {
			d := iv.Duration(i)
			if d > 0 && len(active) > 0 {
				w.propagate(active, t, d)
			}
		}
	}

	for n, p := range posterior {
		probs.StoreAncestral(n, p)
	}
	return posterior, nil
}

// combine multiplies the forward and backward vectors elementwise
// and renormalises; a vanishing product falls back
// to the forward vector alone.
func combine(fwd, back []float64) []float64 {
	out := make([]float64, len(fwd))
	if back == nil {
		copy(out, fwd)
		return out
	}
	var sum float64
	for i := range fwd {
		out[i] = fwd[i] * back[i]
		sum += out[i]
	}
	if sum <= 0 {
		copy(out, fwd)
		return out
	}
	floats.Scale(1/sum, out)
	return out
}

// splitChildren derives the two child vectors of a split:
// each child mixes the parent vector
// with the birth-weighted redistribution F·p, renormalised.
func splitChildren(parent []float64, fr integrate.Frame) ([]float64, []float64) {
	nd := len(parent)
	fp := make([]float64, nd)
	var sum float64
	for i := 0; i < nd; i++ {
		var acc float64
		for j := 0; j < nd; j++ {
			acc += fr.F.At(i, j) * parent[j]
		}
		fp[i] = acc
		sum += acc
	}
	if sum > 0 {
		floats.Scale(1/sum, fp)
	} else {
		copy(fp, parent)
	}

	left := make([]float64, nd)
	for i := 0; i < nd; i++ {
		left[i] = 0.5 * (parent[i] + fp[i])
	}
	right := append([]float64(nil), left...)
	return left, right
}

type walker struct {
	s    *integrate.Series
	minP float64
	nd   int

	yc     []float64
	tmp    []float64
	pool   []float64
	hazard []float64
}

func (w *walker) clampY(y []float64) []float64 {
	for i, v := range y {
		if v < 1 {
			v = 1
		}
		w.yc[i] = v
	}
	return w.yc
}

// propagate advances every active forward vector
// from forward time t to t+d with Euler steps on the grid,
// using the transposed migration generator
// and the mean-field coalescence hazard
// against the other live lineages.
func (w *walker) propagate(active map[int][]float64, t, d float64) {
	end := t + d
	for t < end {
		k := w.s.FrameIndexAtTime(t, w.s.Len()-1)
		dt := end - t
		if k+1 < w.s.Len() {
			if next := w.s.Frame(k + 1).T; next-t < dt && next-t > 0 {
				dt = next - t
			}
		}
		w.step(active, k, dt)
		t += dt
	}
}

func (w *walker) step(active map[int][]float64, k int, dt float64) {
	fr := w.s.Frame(k)
	y := w.clampY(fr.Y)
	nd := w.nd

	// aggregate over the live lineages for the hazard term
	for i := 0; i < nd; i++ {
		w.pool[i] = 0
	}
	for _, p := range active {
		floats.Add(w.pool, p)
	}
	for i := 0; i < nd; i++ {
		w.pool[i] /= y[i]
	}

	for _, p := range active {
		for i := 0; i < nd; i++ {
			var mig float64
			for j := 0; j < nd; j++ {
				if j == i {
					continue
				}
				mig += fr.G.At(i, j) / y[i] * (p[j] - p[i])
			}
			var acc float64
			for j := 0; j < nd; j++ {
				acc += fr.F.At(i, j) * (w.pool[j] - p[j]/y[j])
			}
			w.hazard[i] = acc / y[i]
			w.tmp[i] = p[i] + dt*(mig-w.hazard[i]*p[i])
		}
		copy(p, w.tmp)
		for i := range p {
			if p[i] < 0 || math.IsNaN(p[i]) {
				p[i] = 0
			}
		}
		if w.minP > 0 {
			stateprob.FloorAndRenormalise(p, w.minP)
			continue
		}
		if sum := floats.Sum(p); sum > 0 {
			floats.Scale(1/sum, p)
		}
	}
}
