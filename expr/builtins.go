// Copyright © 2023 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

package expr

import "math"

type builtin func(args []float64) float64

type funcDef struct {
	arity int
	call  builtin
}

var functions = map[string]funcDef{
	"exp":  {1, func(a []float64) float64 { return math.Exp(a[0]) }},
	"log":  {1, func(a []float64) float64 { return math.Log(a[0]) }},
	"sqrt": {1, func(a []float64) float64 { return math.Sqrt(a[0]) }},
	"abs":  {1, func(a []float64) float64 { return math.Abs(a[0]) }},
	"pow":  {2, func(a []float64) float64 { return math.Pow(a[0], a[1]) }},
	"min":  {2, func(a []float64) float64 { return math.Min(a[0], a[1]) }},
	"max":  {2, func(a []float64) float64 { return math.Max(a[0], a[1]) }},
	"mod":  {2, func(a []float64) float64 { return math.Mod(a[0], a[1]) }},
	"if": {3, func(a []float64) float64 {
		if a[0] != 0 {
			return a[1]
		}
		return a[2]
	}},
}
