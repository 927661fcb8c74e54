// Copyright © 2023 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

package likelihood

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// coalesce consumes the two children of node,
// inserts the parent lineage with the normalised event-rate vector,
// and returns the log of the pair coalescence rate.
// With addLog false the contribution is discarded
// (used by the beyond-trajectory tail,
// which replaces the rate with a constant-size term).
func (e *Engine) coalesce(node int, addLog bool) (float64, error) {
	u, v := e.iv.Children(node)
	pu, ok := e.probs.Probs(u)
	if !ok {
		return 0, fmt.Errorf("likelihood: coalescent at node %d: child %d not extant", node, u)
	}
	pv, ok := e.probs.Probs(v)
	if !ok {
		return 0, fmt.Errorf("likelihood: coalescent at node %d: child %d not extant", node, v)
	}

	fr := e.series.Frame(e.tsPoint)
	y := e.clampY(fr.Y)
	nd := len(y)
	a := e.acc

	if e.model.IsDiagF() {
		for i := 0; i < nd; i++ {
			a[i] = 2 * pu[i] * pv[i] * fr.F.At(i, i) / (y[i] * y[i])
		}
	} else {
		x := e.fx
		w := e.fy
		for i := 0; i < nd; i++ {
			x[i] = pu[i] / y[i]
			w[i] = pv[i] / y[i]
		}
		for i := 0; i < nd; i++ {
			var fxi, fwi float64
			for j := 0; j < nd; j++ {
				fxi += fr.F.At(i, j) * x[j]
				fwi += fr.F.At(i, j) * w[j]
			}
			a[i] = x[i]*fwi + w[i]*fxi
		}
	}

	lambda := floats.Sum(a)
	if lambda <= 0 || math.IsNaN(lambda) {
		return math.Inf(-1), nil
	}

	parent := make([]float64, nd)
	for i := range parent {
		parent[i] = a[i] / lambda
	}

	if _, err := e.probs.RemoveLineage(u); err != nil {
		return 0, err
	}
	if _, err := e.probs.RemoveLineage(v); err != nil {
		return 0, err
	}
	if err := e.probs.AddLineage(node, parent); err != nil {
		return 0, err
	}
	if e.opts.Ancestral {
		e.probs.StoreAncestral(node, parent)
	}
	if e.opts.FiniteSizeCorrections {
		e.finiteSizeCorrect(node, parent)
	}

	if !addLog {
		return 0, nil
	}
	return math.Log(lambda), nil
}

// totalCoalRate returns the aggregate coalescence rate
// over every unordered pair of extant lineages
// at the frame with index k.
func (e *Engine) totalCoalRate(k int) float64 {
	fr := e.series.Frame(k)
	y := e.clampY(fr.Y)
	nd := len(y)
	a := e.probs.LineageStateSum()

	if e.opts.ApproxLambda {
		// (A⊘Y)ᵀ F (A⊘Y)
		ay := e.fx
		for i := 0; i < nd; i++ {
			ay[i] = a[i] / y[i]
		}
		return bilinear(ay, fr.F, ay)
	}

	if e.model.IsDiagF() {
		s := e.probs.LineageSumSquares()
		var sum float64
		for i := 0; i < nd; i++ {
			sum += (a[i]*a[i] - s[i]) * fr.F.At(i, i) / (y[i] * y[i])
		}
		return sum
	}

	// exact general form:
	// the ordered sum over distinct pairs of xᵀF x'
	// is (A⊘Y)ᵀF(A⊘Y) minus the per-lineage diagonal terms
	ay := e.fx
	for i := 0; i < nd; i++ {
		ay[i] = a[i] / y[i]
	}
	sum := bilinear(ay, fr.F, ay)
	x := e.fy
	for _, n := range e.probs.Extant() {
		p, _ := e.probs.Probs(n)
		for i := 0; i < nd; i++ {
			x[i] = p[i] / y[i]
		}
		sum -= bilinear(x, fr.F, x)
	}
	return sum
}

func bilinear(x []float64, f *mat.Dense, y []float64) float64 {
	var sum float64
	for i := range x {
		var fy float64
		for j := range y {
			fy += f.At(i, j) * y[j]
		}
		sum += x[i] * fy
	}
	return sum
}

// finiteSizeCorrect applies a first-order posterior update
// to every extant lineage other than the new parent,
// approximating the removal of the coalesced pair
// from the sampling pool.
func (e *Engine) finiteSizeCorrect(parent int, pAlpha []float64) {
	nd := len(pAlpha)
	a := append([]float64(nil), e.probs.LineageStateSum()...)

	b := make([]float64, nd)
	w := make([]float64, nd)
	for _, n := range e.probs.Extant() {
		if n == parent {
			continue
		}
		p, _ := e.probs.Probs(n)

		var l float64
		for i := 0; i < nd; i++ {
			b[i] = a[i] - p[i]
			if b[i] < 1e-12 {
				b[i] = 1e-12
			}
			l += (a[i] / b[i]) * pAlpha[i]
		}
		var s float64
		for i := 0; i < nd; i++ {
			w[i] = l - pAlpha[i]/b[i]
			if w[i] < 0 {
				w[i] = 0
			}
			s += p[i] * w[i]
		}
		if s <= 0 {
			continue
		}
		for i := 0; i < nd; i++ {
			p[i] = p[i] * w[i] / s
		}
	}
	e.probs.Invalidate()
}
