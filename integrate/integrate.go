// Copyright © 2023 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

// Package integrate implements fixed-step numerical integration
// of a population model over a time window,
// producing an immutable series of demographic frames
// that a coalescent sweep can walk in reverse.
package integrate

import (
	"fmt"
	"math"
	"strings"

	"github.com/jmichaelegana/PhyDyn/popmodel"
	"gonum.org/v1/gonum/mat"
)

// Method is a fixed-step integration scheme.
type Method int

// Valid integration methods.
const (
	Euler Method = iota
	Midpoint
	ClassicRK // classical fourth order Runge-Kutta
)

// ParseMethod returns the method named by s
// (one of "euler", "midpoint", or "classicrk").
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "euler":
		return Euler, nil
	case "midpoint":
		return Midpoint, nil
	case "classicrk", "rk4":
		return ClassicRK, nil
	}
	return 0, fmt.Errorf("integrate: unknown method %q", s)
}

// String returns the canonical name of a method.
func (m Method) String() string {
	switch m {
	case Euler:
		return "euler"
	case Midpoint:
		return "midpoint"
	case ClassicRK:
		return "classicrk"
	}
	return "unknown"
}

// An IntegrationError reports a non-finite value
// produced while solving the population ODE.
type IntegrationError struct {
	T   float64 // time of the offending step
	Msg string
}

func (e *IntegrationError) Error() string {
	return fmt.Sprintf("integrate: at t=%g: %s", e.T, e.Msg)
}

// A Frame is the demographic state at a single grid time:
// the deme sizes Y, the instantiated birth and migration matrices
// F and G, and any auxiliary variables.
type Frame struct {
	T   float64
	Y   []float64 // deme sizes, len = number of demes
	F   *mat.Dense
	G   *mat.Dense
	Aux []float64 // auxiliary variables, len = dim - demes
}

// A Series is the discretized trajectory of a population model:
// steps+1 frames at strictly increasing times
// covering [t0, t1] including both endpoints.
// A Series is immutable once built and safe for concurrent reads.
type Series struct {
	frames []Frame
	t0, t1 float64
	step   float64
}

// Run integrates the model bound by ws from t0 to t1
// in steps fixed steps of the given method,
// starting at state y0 = [demes; aux].
// Deme entries are clamped at zero after every accepted step.
// It fails with an [*IntegrationError]
// if any frame contains a NaN or infinite value.
func Run(ws *popmodel.Workspace, y0 []float64, t0, t1 float64, steps int, method Method) (*Series, error) {
	m := ws.Model()
	dim := m.Dim()
	if len(y0) != dim {
		return nil, &IntegrationError{T: t0, Msg: fmt.Sprintf("initial state has %d entries, want %d", len(y0), dim)}
	}
	if steps < 1 {
		return nil, &IntegrationError{T: t0, Msg: fmt.Sprintf("invalid step count %d", steps)}
	}
	if t1 <= t0 {
		return nil, &IntegrationError{T: t0, Msg: fmt.Sprintf("empty time window [%g, %g]", t0, t1)}
	}

	nd := m.NumDemes()
	h := (t1 - t0) / float64(steps)

	y := append([]float64(nil), y0...)
	clampDemes(y, nd)

	s := &Series{
		frames: make([]Frame, 0, steps+1),
		t0:     t0,
		t1:     t1,
		step:   h,
	}

	// scratch for the RK stages
	k1 := make([]float64, dim)
	k2 := make([]float64, dim)
	k3 := make([]float64, dim)
	k4 := make([]float64, dim)
	tmp := make([]float64, dim)

	t := t0
	if err := s.appendFrame(ws, t, y, nd); err != nil {
		return nil, err
	}
	for n := 0; n < steps; n++ {
		switch method {
		case Euler:
			ws.Rhs(t, y, k1)
			for i := range y {
				y[i] += h * k1[i]
			}
		case Midpoint:
			ws.Rhs(t, y, k1)
			for i := range y {
				tmp[i] = y[i] + 0.5*h*k1[i]
			}
			ws.Rhs(t+0.5*h, tmp, k2)
			for i := range y {
				y[i] += h * k2[i]
			}
		case ClassicRK:
			ws.Rhs(t, y, k1)
			for i := range y {
				tmp[i] = y[i] + 0.5*h*k1[i]
			}
			ws.Rhs(t+0.5*h, tmp, k2)
			for i := range y {
				tmp[i] = y[i] + 0.5*h*k2[i]
			}
			ws.Rhs(t+0.5*h, tmp, k3)
			for i := range y {
				tmp[i] = y[i] + h*k3[i]
			}
			ws.Rhs(t+h, tmp, k4)
			for i := range y {
				y[i] += h * (k1[i] + 2*k2[i] + 2*k3[i] + k4[i]) / 6
			}
		}
		clampDemes(y, nd)
		t = t0 + float64(n+1)*h
		if err := s.appendFrame(ws, t, y, nd); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func clampDemes(y []float64, nd int) {
	for i := 0; i < nd; i++ {
		if y[i] < 0 {
			y[i] = 0
		}
	}
}

func (s *Series) appendFrame(ws *popmodel.Workspace, t float64, y []float64, nd int) error {
	F, G, Y := ws.FrameAt(t, y)
	for _, v := range Y {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return &IntegrationError{T: t, Msg: "non-finite deme size"}
		}
	}
	if hasNonFinite(F) || hasNonFinite(G) {
		return &IntegrationError{T: t, Msg: "non-finite rate matrix entry"}
	}
	fr := Frame{
		T: t,
		Y: Y,
		F: F,
		G: G,
	}
	if len(y) > nd {
		fr.Aux = append([]float64(nil), y[nd:]...)
	}
	s.frames = append(s.frames, fr)
	return nil
}

func hasNonFinite(a *mat.Dense) bool {
	r, c := a.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := a.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return true
			}
		}
	}
	return false
}

// Len returns the number of frames in the series.
func (s *Series) Len() int {
	return len(s.frames)
}

// Frame returns the frame at grid index k.
// The returned value shares its slices and matrices with the series
// and must not be mutated.
func (s *Series) Frame(k int) Frame {
	return s.frames[k]
}

// T0 returns the start of the integration window.
func (s *Series) T0() float64 {
	return s.t0
}

// T1 returns the end of the integration window.
func (s *Series) T1() float64 {
	return s.t1
}

// Duration returns the length of the integrated window.
func (s *Series) Duration() float64 {
	return s.t1 - s.t0
}

// FrameIndexAtTime returns the largest grid index k
// with frame time not after t,
// scanning down from hint, the index returned by the previous call.
// A sweep that moves monotonically back in time
// therefore pays an amortised cost linear in the grid size
// over the whole walk.
// The index is clamped to [0, Len()-1].
func (s *Series) FrameIndexAtTime(t float64, hint int) int {
	k := hint
	if k > len(s.frames)-1 {
		k = len(s.frames) - 1
	}
	for k > 0 && s.frames[k].T > t {
		k--
	}
	return k
}
