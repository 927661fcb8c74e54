// Copyright © 2023 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

package integrate_test

import (
	"math"
	"testing"

	"github.com/jmichaelegana/PhyDyn/integrate"
	"github.com/jmichaelegana/PhyDyn/popmodel"
)

// decayModel builds a single deme with pure death at rate r,
// so Y(t) = Y(0)·exp(-r·t) has a closed form to test against.
func decayModel(t *testing.T) *popmodel.Workspace {
	t.Helper()

	b := popmodel.NewBuilder([]string{"r"}, []string{"I"}, nil)
	if err := b.SetD(0, "r * I"); err != nil {
		t.Fatalf("SetD: %v", err)
	}
	m, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	ws, err := m.NewWorkspace([]float64{0.5})
	if err != nil {
		t.Fatalf("NewWorkspace: %v", err)
	}
	return ws
}

func TestRunExponentialDecay(t *testing.T) {
	tests := map[string]struct {
		method integrate.Method
		tol    float64
	}{
		"euler":     {integrate.Euler, 1e-2},
		"midpoint":  {integrate.Midpoint, 1e-4},
		"classicrk": {integrate.ClassicRK, 1e-8},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			ws := decayModel(t)
			s, err := integrate.Run(ws, []float64{100}, 0, 10, 1000, test.method)
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if s.Len() != 1001 {
				t.Fatalf("got %d frames, want 1001", s.Len())
			}

			want := 100 * math.Exp(-0.5*10)
			got := s.Frame(s.Len() - 1).Y[0]
			if math.Abs(got-want) > test.tol {
				t.Errorf("Y(10) = %v, want %v (tolerance %v)", got, want, test.tol)
			}
		})
	}
}

func TestFramesAreNonNegative(t *testing.T) {
	ws := decayModel(t)
	s, err := integrate.Run(ws, []float64{1e-6}, 0, 10, 100, integrate.Euler)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for k := 0; k < s.Len(); k++ {
		if y := s.Frame(k).Y[0]; y < 0 {
			t.Errorf("frame %d: Y = %v, want non-negative", k, y)
		}
	}
}

func TestGridTimes(t *testing.T) {
	ws := decayModel(t)
	s, err := integrate.Run(ws, []float64{1}, 2, 7, 10, integrate.ClassicRK)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := s.Frame(0).T; got != 2 {
		t.Errorf("first frame at t=%v, want 2", got)
	}
	if got := s.Frame(s.Len() - 1).T; math.Abs(got-7) > 1e-12 {
		t.Errorf("last frame at t=%v, want 7", got)
	}
	for k := 1; k < s.Len(); k++ {
		if s.Frame(k).T <= s.Frame(k-1).T {
			t.Fatalf("frame times not strictly increasing at %d", k)
		}
	}
	if d := s.Duration(); math.Abs(d-5) > 1e-12 {
		t.Errorf("Duration = %v, want 5", d)
	}
}

func TestFrameIndexAtTime(t *testing.T) {
	ws := decayModel(t)
	s, err := integrate.Run(ws, []float64{1}, 0, 10, 10, integrate.Euler)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	hint := s.Len() - 1
	tests := []struct {
		t    float64
		want int
	}{
		{10, 10},
		{9.5, 9},
		{7, 7},
		{6.999, 6},
		{0.5, 0},
		{0, 0},
		{-3, 0},
	}
	for _, test := range tests {
		got := s.FrameIndexAtTime(test.t, hint)
		if got != test.want {
			t.Errorf("FrameIndexAtTime(%v, %d) = %d, want %d", test.t, hint, got, test.want)
		}
		hint = got
	}
}

func TestRunErrors(t *testing.T) {
	ws := decayModel(t)
	if _, err := integrate.Run(ws, []float64{1, 2}, 0, 1, 10, integrate.Euler); err == nil {
		t.Error("expecting an error for a mis-sized initial state")
	}
	if _, err := integrate.Run(ws, []float64{1}, 0, 1, 0, integrate.Euler); err == nil {
		t.Error("expecting an error for a zero step count")
	}
	if _, err := integrate.Run(ws, []float64{1}, 5, 5, 10, integrate.Euler); err == nil {
		t.Error("expecting an error for an empty time window")
	}
}

func TestNonFiniteDetection(t *testing.T) {
	// dI/dt = I³ blows up well before t=100 at 20 steps.
	b := popmodel.NewBuilder(nil, []string{"I"}, nil)
	if err := b.SetF(0, 0, "I * I * I"); err != nil {
		t.Fatalf("SetF: %v", err)
	}
	m, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	ws, err := m.NewWorkspace(nil)
	if err != nil {
		t.Fatalf("NewWorkspace: %v", err)
	}

	_, err = integrate.Run(ws, []float64{10}, 0, 100, 20, integrate.Euler)
	if err == nil {
		t.Fatal("expecting an IntegrationError for a diverging trajectory")
	}
	if _, ok := err.(*integrate.IntegrationError); !ok {
		t.Errorf("got error %T, want *IntegrationError", err)
	}
}

func TestParseMethod(t *testing.T) {
	tests := map[string]integrate.Method{
		"euler":     integrate.Euler,
		"midpoint":  integrate.Midpoint,
		"classicrk": integrate.ClassicRK,
		"ClassicRK": integrate.ClassicRK,
	}
	for s, want := range tests {
		got, err := integrate.ParseMethod(s)
		if err != nil {
			t.Fatalf("ParseMethod(%q): %v", s, err)
		}
		if got != want {
			t.Errorf("ParseMethod(%q) = %v, want %v", s, got, want)
		}
	}
	if _, err := integrate.ParseMethod("adams"); err == nil {
		t.Error("expecting an error for an unknown method")
	}
}
