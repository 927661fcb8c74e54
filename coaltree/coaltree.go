// Copyright © 2023 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

// Package coaltree adapts a time calibrated phylogenetic tree
// into the ordered event-interval sequence
// that a structured coalescent sweep walks:
// every tip is a sample event,
// every internal node a coalescent event,
// sorted by height above the youngest tip.
package coaltree

import (
	"fmt"
	"slices"

	"github.com/js-arias/timetree"
)

// EventType is the kind of event that terminates an interval.
type EventType int

// Valid event types.
const (
	Sample EventType = iota
	Coalescent
)

// String returns the name of an event type.
func (e EventType) String() string {
	switch e {
	case Sample:
		return "sample"
	case Coalescent:
		return "coalescent"
	}
	return "unknown"
}

// An InvariantError reports a tree
// that cannot be walked as a bifurcating coalescent genealogy:
// an internal node without exactly two children.
type InvariantError struct {
	Node int
	Msg  string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("coaltree: node %d: %s", e.Node, e.Msg)
}

type event struct {
	node   int
	kind   EventType
	height float64 // above the youngest tip, in model time units
}

// Intervals is the memoised event-interval view of a tree:
// 2n-1 events for n tips,
// sorted by height ascending.
// Simultaneous events are ordered samples first,
// then by ascending node id;
// the order is deterministic but otherwise arbitrary.
//
// The sequence is rebuilt lazily
// after a call to [Intervals.MarkDirty].
type Intervals struct {
	t     *timetree.Tree
	scale float64 // years per model time unit

	dirty  bool
	events []event
	nTips  int
}

// New adapts t into an interval sequence.
// Node ages, in years, are converted to model time
// dividing by scale (use 1 for trees already in model units).
// It fails if any internal node does not have exactly two children.
func New(t *timetree.Tree, scale float64) (*Intervals, error) {
	if scale <= 0 {
		return nil, fmt.Errorf("coaltree: invalid scale %g", scale)
	}
	iv := &Intervals{
		t:     t,
		scale: scale,
		dirty: true,
	}
	if err := iv.rebuild(); err != nil {
		return nil, err
	}
	return iv, nil
}

// Tree returns the underlying source tree.
func (iv *Intervals) Tree() *timetree.Tree {
	return iv.t
}

// MarkDirty invalidates the memoised sequence;
// it must be called after any change
// to the source tree's topology or node ages.
func (iv *Intervals) MarkDirty() {
	iv.dirty = true
}

func (iv *Intervals) refresh() {
	if !iv.dirty {
		return
	}
	if err := iv.rebuild(); err != nil {
		// the tree was valid at construction;
		// a structural change that breaks bifurcation
		// is a caller bug.
		panic(err)
	}
}

func (iv *Intervals) rebuild() error {
	nodes := iv.t.Nodes()

	// the height axis starts at the youngest tip
	var minAge int64
	first := true
	for _, n := range nodes {
		if !iv.t.IsTerm(n) {
			continue
		}
		if a := iv.t.Age(n); first || a < minAge {
			minAge = a
			first = false
		}
	}
	if first {
		return &InvariantError{Node: iv.t.Root(), Msg: "tree without terminals"}
	}

	events := make([]event, 0, len(nodes))
	nTips := 0
	for _, n := range nodes {
		ev := event{
			node:   n,
			height: float64(iv.t.Age(n)-minAge) / iv.scale,
		}
		if iv.t.IsTerm(n) {
			ev.kind = Sample
			nTips++
		} else {
			if nc := len(iv.t.Children(n)); nc != 2 {
				return &InvariantError{Node: n, Msg: fmt.Sprintf("coalescent node with %d children", nc)}
			}
			ev.kind = Coalescent
		}
		events = append(events, ev)
	}

	slices.SortFunc(events, func(a, b event) int {
		if a.height != b.height {
			if a.height < b.height {
				return -1
			}
			return 1
		}
		if a.kind != b.kind {
			return int(a.kind) - int(b.kind)
		}
		return a.node - b.node
	})

	iv.events = events
	iv.nTips = nTips
	iv.dirty = false
	return nil
}

// Count returns the number of intervals.
func (iv *Intervals) Count() int {
	iv.refresh()
	return len(iv.events)
}

// NumTips returns the number of terminals in the source tree.
func (iv *Intervals) NumTips() int {
	iv.refresh()
	return iv.nTips
}

// Duration returns the length of interval i:
// the height gap from the previous event
// (or from the height axis origin for the first interval).
func (iv *Intervals) Duration(i int) float64 {
	iv.refresh()
	if i == 0 {
		return iv.events[0].height
	}
	return iv.events[i].height - iv.events[i-1].height
}

// EventType returns the kind of event that closes interval i.
func (iv *Intervals) EventType(i int) EventType {
	iv.refresh()
	return iv.events[i].kind
}

// EventNode returns the tree node of the event that closes interval i.
func (iv *Intervals) EventNode(i int) int {
	iv.refresh()
	return iv.events[i].node
}

// TimeOf returns the height of the event that closes interval i,
// measured above the youngest tip.
func (iv *Intervals) TimeOf(i int) float64 {
	iv.refresh()
	return iv.events[i].height
}

// TotalDuration returns the height of the last event:
// the tree height above the youngest tip.
func (iv *Intervals) TotalDuration() float64 {
	iv.refresh()
	return iv.events[len(iv.events)-1].height
}

// Children returns the two child nodes of a coalescent event node.
func (iv *Intervals) Children(node int) (int, int) {
	c := iv.t.Children(node)
	return c[0], c[1]
}
