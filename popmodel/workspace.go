// Copyright © 2023 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

package popmodel

import (
	"fmt"

	"github.com/jmichaelegana/PhyDyn/expr"
	"gonum.org/v1/gonum/mat"
)

// A Workspace is a per-evaluation binding of a [Model]'s parameters
// plus the scratch evaluators and environment buffer needed to
// compute the ODE right-hand side and to instantiate F/G/Y frames.
// It holds no shared state with any other Workspace, so independent
// trajectories (e.g. for different chains or parameter samples) may
// each build their own Workspace and run concurrently.
type Workspace struct {
	model   *Model
	env     []float64
	baseLen int

	defState *expr.DefState

	fEvals   map[[2]int]*expr.Evaluator
	gEvals   map[[2]int]*expr.Evaluator
	dEvals   map[int]*expr.Evaluator
	dotEvals map[int]*expr.Evaluator
}

// NewWorkspace binds params, in the order returned by
// [Model.ParamNames], to m and returns a Workspace ready to evaluate
// the model's rhs and matrix frames.
func (m *Model) NewWorkspace(params []float64) (*Workspace, error) {
	if len(params) != len(m.params) {
		return nil, &ModelError{Msg: fmt.Sprintf("got %d parameter values, want %d", len(params), len(m.params))}
	}

	baseLen := m.demeBase + m.Dim()
	ws := &Workspace{
		model:    m,
		env:      make([]float64, m.scope.Len()),
		baseLen:  baseLen,
		defState: m.defs.NewState(),
		fEvals:   newEvalMap2(m.fEqs),
		gEvals:   newEvalMap2(m.gEqs),
		dEvals:   newEvalMap1(m.dEqs),
		dotEvals: newEvalMap1(m.dotEqs),
	}
	copy(ws.env[:len(params)], params)
	return ws, nil
}

// Model returns the model this workspace binds.
func (ws *Workspace) Model() *Model {
	return ws.model
}

func newEvalMap2(progs map[[2]int]*expr.Program) map[[2]int]*expr.Evaluator {
	evals := make(map[[2]int]*expr.Evaluator, len(progs))
	for k, p := range progs {
		evals[k] = p.NewEvaluator()
	}
	return evals
}

func newEvalMap1(progs map[int]*expr.Program) map[int]*expr.Evaluator {
	evals := make(map[int]*expr.Evaluator, len(progs))
	for k, p := range progs {
		evals[k] = p.NewEvaluator()
	}
	return evals
}

// buildEnv writes t and y into the workspace's scratch environment
// and evaluates the model's definitions on top of it. The returned
// slice aliases ws.env and is only valid until the next call.
func (ws *Workspace) buildEnv(t float64, y []float64) []float64 {
	m := ws.model
	ws.env[m.tSlot] = t
	copy(ws.env[m.demeBase:m.demeBase+len(y)], y)
	return ws.defState.Eval(ws.env[:ws.baseLen])
}

// Rhs evaluates dy/dt at (t, y) into out, where y = [demes; aux]. The
// deme entries are derived from F, G and D; auxiliary entries
// evaluate their dot(·) equation directly, or are zero if undeclared.
// Rhs allocates no memory and is safe to call once per integration
// stage.
func (ws *Workspace) Rhs(t float64, y, out []float64) {
	if err := ws.model.checkState(y); err != nil {
		panic(err)
	}
	env := ws.buildEnv(t, y)
	m := ws.model
	nd := len(m.demes)

	for i := 0; i < nd; i++ {
		var d float64
		for j := 0; j < nd; j++ {
			if ev, ok := ws.fEvals[[2]int{j, i}]; ok {
				d += ev.Eval(env)
			}
			if ev, ok := ws.gEvals[[2]int{j, i}]; ok {
				d += ev.Eval(env)
			}
			if ev, ok := ws.gEvals[[2]int{i, j}]; ok {
				d -= ev.Eval(env)
			}
		}
		if ev, ok := ws.dEvals[i]; ok {
			d -= ev.Eval(env)
		}
		out[i] = d
	}
	for j := range m.aux {
		if ev, ok := ws.dotEvals[j]; ok {
			out[nd+j] = ev.Eval(env)
		} else {
			out[nd+j] = 0
		}
	}
}

// FrameAt instantiates F, G and Y at state (t, y). Unlike Rhs, this
// allocates, and is meant to be called once per accepted integration
// step rather than once per RK stage.
func (ws *Workspace) FrameAt(t float64, y []float64) (F, G *mat.Dense, Y []float64) {
	m := ws.model
	nd := len(m.demes)
	env := ws.buildEnv(t, y)

	F = mat.NewDense(nd, nd, nil)
	for k, ev := range ws.fEvals {
		F.Set(k[0], k[1], ev.Eval(env))
	}
	G = mat.NewDense(nd, nd, nil)
	for k, ev := range ws.gEvals {
		G.Set(k[0], k[1], ev.Eval(env))
	}
	Y = append([]float64(nil), y[:nd]...)
	return F, G, Y
}
