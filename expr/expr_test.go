// Copyright © 2023 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

package expr_test

import (
	"math"
	"testing"

	"github.com/jmichaelegana/PhyDyn/expr"
)

func TestArithmetic(t *testing.T) {
	tests := map[string]float64{
		"1 + 2 * 3":     7,
		"(1 + 2) * 3":   9,
		"2 ^ 3":         8,
		"-2 ^ 2":        -4,
		"2 ^ -1":        0.5,
		"10 / 2 - 3":    2,
		"-(3 + 4)":      -7,
		"abs(-5)":       5,
		"min(3, 4)":     3,
		"max(3, 4)":     4,
		"sqrt(16)":      4,
		"pow(2, 10)":    1024,
		"mod(10, 3)":    1,
		"if(1, 2, 3)":   2,
		"if(0, 2, 3)":   3,
		"if(2>1, 5, 6)": 5,
	}

	scope := expr.NewScope()
	for src, want := range tests {
		prog, err := expr.Compile(src, scope)
		if err != nil {
			t.Fatalf("%q: unexpected compile error: %v", src, err)
		}
		got := prog.NewEvaluator().Eval(nil)
		if math.Abs(got-want) > 1e-9 {
			t.Errorf("%q = %v, want %v", src, got, want)
		}
	}
}

func TestScopeLookup(t *testing.T) {
	scope := expr.NewScope("beta", "gamma")
	prog, err := expr.Compile("beta * gamma - exp(-gamma)", scope)
	if err != nil {
		t.Fatalf("unexpected compile error: %v", err)
	}

	ev := prog.NewEvaluator()
	env := []float64{2, 3}
	got := ev.Eval(env)
	want := 2*3 - math.Exp(-3)
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestUndefinedIdent(t *testing.T) {
	scope := expr.NewScope("beta")
	_, err := expr.Compile("beta + gamma", scope)
	if err == nil {
		t.Fatal("expecting a NameError")
	}
	var nameErr *expr.NameError
	if !asNameError(err, &nameErr) {
		t.Fatalf("got error %v, want a *expr.NameError", err)
	}
	if nameErr.Ident != "gamma" {
		t.Errorf("got ident %q, want %q", nameErr.Ident, "gamma")
	}
}

func asNameError(err error, target **expr.NameError) bool {
	ne, ok := err.(*expr.NameError)
	if !ok {
		return false
	}
	*target = ne
	return true
}

func TestMalformedExpression(t *testing.T) {
	scope := expr.NewScope()
	tests := []string{
		"1 + ",
		"(1 + 2",
		"1 2",
		"exp(1, 2)",
	}
	for _, src := range tests {
		if _, err := expr.Compile(src, scope); err == nil {
			t.Errorf("%q: expecting a parse error", src)
		}
	}
}

func TestDefinitions(t *testing.T) {
	scope := expr.NewScope("i0", "i1", "n")
	defs := expr.NewDefinitions(scope)
	if _, err := defs.Add("total", "i0 + i1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := defs.Add("frac", "total / n"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	base := []float64{10, 20, 1000}
	env := make([]float64, len(base), len(base)+defs.Len())
	copy(env, base)
	env = defs.NewState().Eval(env)

	want := []float64{10, 20, 1000, 30, 0.03}
	if len(env) != len(want) {
		t.Fatalf("got %d values, want %d", len(env), len(want))
	}
	for i, w := range want {
		if math.Abs(env[i]-w) > 1e-9 {
			t.Errorf("env[%d] = %v, want %v", i, env[i], w)
		}
	}
}
