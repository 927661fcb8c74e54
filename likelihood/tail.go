// Copyright © 2023 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

package likelihood

import (
	"math"

	"github.com/jmichaelegana/PhyDyn/coaltree"
)

// tail scores the intervals older than the integrated trajectory
// with a constant-population Kingman coalescent.
// The effective size is taken from the options,
// or derived from the total coalescence rate
// at the oldest reached frame when unset.
//
// Lineage bookkeeping still runs on the oldest frame,
// so the root vector and the ancestral record stay defined;
// only the rate contribution is replaced.
func (e *Engine) tail(first int) (float64, error) {
	count := e.iv.Count()

	// every remaining interval is scored with the full
	// interval count as its lineage number,
	// not the active count
	n := float64(count)

	ne := e.opts.Ne
	if e.opts.Constant {
		ne = 1 // unused: the constant kernel discards the contribution
	} else if ne <= 0 {
		lambda := e.totalCoalRate(e.tsPoint)
		if lambda <= 0 || math.IsNaN(lambda) {
			return math.Inf(-1), nil
		}
		ne = n * (n - 1) / 2 / lambda
	}

	var contrib float64
	for i := first; i < count; i++ {
		d := e.iv.Duration(i)
		if !e.opts.Constant {
			contrib += math.Log(1/ne) - n*(n-1)/ne*d
		}

		e.h += d
		e.t -= d
		e.tsPoint = e.series.FrameIndexAtTime(e.t, e.tsPoint)

		switch e.iv.EventType(i) {
		case coaltree.Sample:
			if err := e.kern.onSample(e, e.iv.EventNode(i)); err != nil {
				return 0, err
			}
		case coaltree.Coalescent:
			var err error
			if e.opts.Constant {
				_, err = e.kern.onCoalescent(e, e.iv.EventNode(i))
			} else {
				_, err = e.coalesce(e.iv.EventNode(i), false)
			}
			if err != nil {
				return 0, err
			}
		}
	}
	return contrib, nil
}
