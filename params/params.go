// Copyright © 2023 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

// Package params implements the named scalar parameter bindings
// of a population model,
// with a dirty bit that records writes
// since the last likelihood evaluation.
package params

import (
	"fmt"
	"slices"
)

// A Set is a collection of named scalar parameters.
// Any write marks the set dirty;
// the evaluation that consumes the values
// clears the bit with [Set.Clean].
type Set struct {
	vals  map[string]float64
	names []string
	dirty bool
}

// New returns an empty parameter set.
func New() *Set {
	return &Set{
		vals: make(map[string]float64),
	}
}

// Set binds name to v,
// adding the parameter if it was not yet declared,
// and marks the set dirty.
func (s *Set) Set(name string, v float64) {
	if _, ok := s.vals[name]; !ok {
		s.names = append(s.names, name)
	}
	s.vals[name] = v
	s.dirty = true
}

// Value returns the value bound to name.
func (s *Set) Value(name string) (float64, bool) {
	v, ok := s.vals[name]
	return v, ok
}

// Values projects the set into a positional vector
// following the given name order,
// the form a model workspace expects.
// It fails on the first name without a binding.
func (s *Set) Values(names []string) ([]float64, error) {
	out := make([]float64, len(names))
	for i, n := range names {
		v, ok := s.vals[n]
		if !ok {
			return nil, fmt.Errorf("params: no value bound to %q", n)
		}
		out[i] = v
	}
	return out, nil
}

// Names returns the declared parameter names in declaration order.
func (s *Set) Names() []string {
	return slices.Clone(s.names)
}

// Len returns the number of declared parameters.
func (s *Set) Len() int {
	return len(s.names)
}

// IsDirty reports whether any parameter was written
// since the last call to [Set.Clean].
func (s *Set) IsDirty() bool {
	return s.dirty
}

// MarkDirty forces the dirty bit,
// for hosts that rolled back state behind our back.
func (s *Set) MarkDirty() {
	s.dirty = true
}

// Clean clears the dirty bit.
func (s *Set) Clean() {
	s.dirty = false
}
