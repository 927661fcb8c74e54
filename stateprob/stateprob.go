// Copyright © 2023 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

// Package stateprob stores the per-lineage deme probability vectors
// of a structured coalescent sweep.
//
// Vectors live in a single dense buffer of fixed-size slots
// recycled through a free list,
// so the per-event arithmetic stays cache friendly
// and a new lineage reuses the slot of a removed one.
package stateprob

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Probabilities is the extant-lineage store of one sweep:
// a map from tree node to a probability vector over the demes,
// with cached aggregates over all extant lineages,
// plus a sparse record of converged ancestral vectors.
//
// A Probabilities is built fresh for every likelihood evaluation
// and never shared between evaluations.
type Probabilities struct {
	m   int // number of demes
	buf []float64

	slot  map[int]int // node id -> slot
	free  []int
	nodes []int // node id per slot, -1 when free

	sum      []float64 // A_i, cached
	sumOK    bool
	sumSq    []float64 // S_i, cached
	sumSqOK  bool
	scratch  []float64
	anc      map[int][]float64
}

// New returns a store for vectors over m demes
// with room for maxLineages simultaneously extant lineages.
// The store grows if more are added.
func New(m, maxLineages int) *Probabilities {
	if maxLineages < 1 {
		maxLineages = 1
	}
	p := &Probabilities{
		m:       m,
		buf:     make([]float64, 0, m*maxLineages),
		slot:    make(map[int]int, maxLineages),
		sum:     make([]float64, m),
		sumSq:   make([]float64, m),
		scratch: make([]float64, m),
	}
	return p
}

// Dim returns the number of demes.
func (p *Probabilities) Dim() int {
	return p.m
}

// NumExtant returns the number of extant lineages.
func (p *Probabilities) NumExtant() int {
	return len(p.slot)
}

func (p *Probabilities) invalidate() {
	p.sumOK = false
	p.sumSqOK = false
}

func (p *Probabilities) newSlot(n int) int {
	var s int
	if l := len(p.free); l > 0 {
		s = p.free[l-1]
		p.free = p.free[:l-1]
	} else {
		s = len(p.nodes)
		p.buf = append(p.buf, make([]float64, p.m)...)
		p.nodes = append(p.nodes, -1)
	}
	p.slot[n] = s
	p.nodes[s] = n
	return s
}

func (p *Probabilities) vec(s int) []float64 {
	return p.buf[s*p.m : (s+1)*p.m]
}

// AddSample inserts lineage n with a one-hot vector at deme s.
// If minP is positive every entry is floored at minP
// and the vector renormalised.
func (p *Probabilities) AddSample(n, s int, minP float64) error {
	if s < 0 || s >= p.m {
		return fmt.Errorf("stateprob: node %d: deme %d out of range [0,%d)", n, s, p.m)
	}
	if _, dup := p.slot[n]; dup {
		return fmt.Errorf("stateprob: node %d already extant", n)
	}
	v := p.vec(p.newSlot(n))
	for i := range v {
		v[i] = 0
	}
	v[s] = 1
	if minP > 0 {
		floorAndRenormalise(v, minP)
	}
	p.invalidate()
	return nil
}

// AddLineage inserts lineage n with vector pv;
// the store takes ownership of pv and may mutate it in place.
func (p *Probabilities) AddLineage(n int, pv []float64) error {
	if len(pv) != p.m {
		return fmt.Errorf("stateprob: node %d: vector has %d entries, want %d", n, len(pv), p.m)
	}
	if _, dup := p.slot[n]; dup {
		return fmt.Errorf("stateprob: node %d already extant", n)
	}
	copy(p.vec(p.newSlot(n)), pv)
	p.invalidate()
	return nil
}

// RemoveLineage removes lineage n
// and returns a copy of its last-held vector.
func (p *Probabilities) RemoveLineage(n int) ([]float64, error) {
	s, ok := p.slot[n]
	if !ok {
		return nil, fmt.Errorf("stateprob: node %d not extant", n)
	}
	out := append([]float64(nil), p.vec(s)...)
	delete(p.slot, n)
	p.nodes[s] = -1
	p.free = append(p.free, s)
	p.invalidate()
	return out, nil
}

// Probs returns the live vector of lineage n.
// The slice aliases the store;
// callers that mutate it must treat the cached aggregates as stale
// and call [Probabilities.Invalidate].
func (p *Probabilities) Probs(n int) ([]float64, bool) {
	s, ok := p.slot[n]
	if !ok {
		return nil, false
	}
	return p.vec(s), true
}

// Invalidate drops the cached aggregates
// after an external in-place mutation through [Probabilities.Probs].
func (p *Probabilities) Invalidate() {
	p.invalidate()
}

// Extant returns the ids of the extant lineages, in slot order.
func (p *Probabilities) Extant() []int {
	out := make([]int, 0, len(p.slot))
	for _, n := range p.nodes {
		if n < 0 {
			continue
		}
		out = append(out, n)
	}
	return out
}

// LineageStateSum returns A, with A_i the sum of entry i
// over every extant lineage.
// The result is cached until the next mutation
// and must not be modified by the caller.
func (p *Probabilities) LineageStateSum() []float64 {
	if !p.sumOK {
		for i := range p.sum {
			p.sum[i] = 0
		}
		for s, n := range p.nodes {
			if n < 0 {
				continue
			}
			floats.Add(p.sum, p.vec(s))
		}
		p.sumOK = true
	}
	return p.sum
}

// LineageSumSquares returns S, with S_i the sum of squared entries i
// over every extant lineage.
// The result is cached until the next mutation
// and must not be modified by the caller.
func (p *Probabilities) LineageSumSquares() []float64 {
	if !p.sumSqOK {
		for i := range p.sumSq {
			p.sumSq[i] = 0
		}
		for s, n := range p.nodes {
			if n < 0 {
				continue
			}
			v := p.vec(s)
			for i, x := range v {
				p.sumSq[i] += x * x
			}
		}
		p.sumSqOK = true
	}
	return p.sumSq
}

// MulExtant left-multiplies every extant vector by the transpose of Q,
// the diffusion step p <- Qᵀp,
// and if normalise is true divides each result by its sum.
func (p *Probabilities) MulExtant(Q *mat.Dense, normalise bool) error {
	r, c := Q.Dims()
	if r != p.m || c != p.m {
		return fmt.Errorf("stateprob: diffusion matrix is %dx%d, want %dx%d", r, c, p.m, p.m)
	}
	for s, n := range p.nodes {
		if n < 0 {
			continue
		}
		v := p.vec(s)
		for j := 0; j < p.m; j++ {
			var acc float64
			for i := 0; i < p.m; i++ {
				acc += Q.At(i, j) * v[i]
			}
			p.scratch[j] = acc
		}
		copy(v, p.scratch)
		if normalise {
			if sum := floats.Sum(v); sum > 0 {
				floats.Scale(1/sum, v)
			}
		}
	}
	p.invalidate()
	return nil
}

// StoreAncestral records pv (or, when pv is nil,
// the current extant vector of n) as the ancestral probability of n.
// The stored value is a private copy.
func (p *Probabilities) StoreAncestral(n int, pv []float64) {
	if pv == nil {
		s, ok := p.slot[n]
		if !ok {
			return
		}
		pv = p.vec(s)
	}
	if p.anc == nil {
		p.anc = make(map[int][]float64)
	}
	p.anc[n] = append([]float64(nil), pv...)
}

// Ancestral returns the recorded ancestral probability of n, if any.
func (p *Probabilities) Ancestral(n int) ([]float64, bool) {
	pv, ok := p.anc[n]
	return pv, ok
}

// AncestralNodes returns the ids with a recorded ancestral vector,
// in slot-independent map order.
func (p *Probabilities) AncestralNodes() []int {
	out := make([]int, 0, len(p.anc))
	for n := range p.anc {
		out = append(out, n)
	}
	return out
}

// ClearAncestral drops every recorded ancestral vector.
func (p *Probabilities) ClearAncestral() {
	p.anc = nil
}

// RootProbs returns a copy of the probability vector
// of the single surviving lineage,
// or nil if the store does not hold exactly one lineage.
func (p *Probabilities) RootProbs() []float64 {
	if len(p.slot) != 1 {
		return nil
	}
	for _, s := range p.slot {
		return append([]float64(nil), p.vec(s)...)
	}
	return nil
}

func floorAndRenormalise(v []float64, minP float64) {
	for i, x := range v {
		if x < minP {
			v[i] = minP
		}
	}
	if sum := floats.Sum(v); sum > 0 {
		floats.Scale(1/sum, v)
	}
}

// FloorAndRenormalise floors every entry of v at minP
// and rescales the vector to sum to one.
func FloorAndRenormalise(v []float64, minP float64) {
	floorAndRenormalise(v, minP)
}
