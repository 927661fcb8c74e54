// Copyright © 2023 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

// Package config reads the declarative model document
// of a structured coalescent analysis:
// the population model equations,
// the parameter bindings,
// the trajectory window,
// and the likelihood options.
//
// A document is a plain text file with '#' comments.
// It opens naming the model and its state variables,
// and continues with one block per concern,
// each closed by an "end" line:
//
//	# two-deme epidemic
//	popmodel seir2
//	demes	I0	I1
//	aux	S
//
//	definitions
//	infect = beta0 * S;
//	end
//
//	matrixeqs
//	F(I0,I0) = infect * I0;
//	G(I0,I1) = b * I0;
//	D(I0) = gamma0 * I0;
//	dot(S) = -infect * I0;
//	end
//
//	parameters
//	beta0	0.001
//	gamma0	1.0
//	b	0.01
//	end
//
//	trajectory
//	method	classicrk
//	integrationsteps	1001
//	t0	0
//	t1	20
//	initial	I0	1
//	initial	I1	0
//	initial	S	999
//	end
//
//	likelihood
//	minp	0.0001
//	ancestral	true
//	end
package config

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/jmichaelegana/PhyDyn/integrate"
	"github.com/jmichaelegana/PhyDyn/likelihood"
	"github.com/jmichaelegana/PhyDyn/params"
	"github.com/jmichaelegana/PhyDyn/popmodel"
)

// An Error reports a malformed or incomplete model document.
type Error struct {
	Line int
	Msg  string
}

func (e *Error) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("config: on line %d: %s", e.Line, e.Msg)
	}
	return fmt.Sprintf("config: %s", e.Msg)
}

// A NamedExpr is a named expression source,
// used for definitions and dot(·) equations.
type NamedExpr struct {
	Name string
	Src  string
}

// A MatrixExpr is one F or G matrix entry source.
type MatrixExpr struct {
	I, J int
	Src  string
}

// A VecExpr is one D vector entry source.
type VecExpr struct {
	I   int
	Src string
}

// A Doc is a parsed model document.
type Doc struct {
	Name  string
	Demes []string
	Aux   []string

	Defs []NamedExpr
	F    []MatrixExpr
	G    []MatrixExpr
	D    []VecExpr
	Dot  []NamedExpr

	Params *params.Set

	Method string
	Steps  int
	T0, T1 float64
	hasT1  bool
	Init   map[string]float64

	Options likelihood.Options
	NeSet   bool
}

// Read parses a model document.
// It reports syntax problems with their line number
// and runs [Doc.Validate] before returning;
// identifiers in the equations are resolved later,
// by [Doc.Model].
func Read(r io.Reader) (*Doc, error) {
	d := &Doc{
		Params:  params.New(),
		Method:  "classicrk",
		Steps:   1000,
		Init:    make(map[string]float64),
		Options: likelihood.DefaultOptions(),
	}

	sc := bufio.NewScanner(r)
	ln := 0
	block := ""
	for sc.Scan() {
		ln++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if block == "" {
			var err error
			block, err = d.topLevel(line, ln)
			if err != nil {
				return nil, err
			}
			continue
		}
		if strings.EqualFold(line, "end") {
			block = ""
			continue
		}
		var err error
		switch block {
		case "definitions":
			err = d.addDefinition(line, ln)
		case "matrixeqs":
			err = d.addMatrixEq(line, ln)
		case "parameters":
			err = d.addParameter(line, ln)
		case "trajectory":
			err = d.addTrajectory(line, ln)
		case "likelihood":
			err = d.addOption(line, ln)
		}
		if err != nil {
			return nil, err
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if block != "" {
		return nil, &Error{Line: ln, Msg: fmt.Sprintf("unterminated %q block", block)}
	}

	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Doc) topLevel(line string, ln int) (string, error) {
	fields := strings.Fields(line)
	key := strings.ToLower(fields[0])
	switch key {
	case "popmodel":
		if len(fields) != 2 {
			return "", &Error{Line: ln, Msg: "expecting a model name"}
		}
		d.Name = fields[1]
		return "", nil
	case "demes":
		if len(fields) < 2 {
			return "", &Error{Line: ln, Msg: "expecting at least one deme"}
		}
		d.Demes = fields[1:]
		return "", nil
	case "aux":
		d.Aux = fields[1:]
		return "", nil
	case "definitions", "matrixeqs", "parameters", "trajectory", "likelihood":
		return key, nil
	}
	return "", &Error{Line: ln, Msg: fmt.Sprintf("unknown declaration %q", fields[0])}
}

func (d *Doc) addDefinition(line string, ln int) error {
	name, src, err := splitAssign(line, ln)
	if err != nil {
		return err
	}
	d.Defs = append(d.Defs, NamedExpr{Name: name, Src: src})
	return nil
}

// addMatrixEq parses one of
//
//	F(i,j) = expr;
//	G(i,j) = expr;
//	D(i) = expr;
//	dot(X) = expr;
//
// with demes named as declared in the demes line.
func (d *Doc) addMatrixEq(line string, ln int) error {
	head, src, err := splitAssign(line, ln)
	if err != nil {
		return err
	}

	open := strings.IndexByte(head, '(')
	if open < 0 || !strings.HasSuffix(head, ")") {
		return &Error{Line: ln, Msg: fmt.Sprintf("malformed equation target %q", head)}
	}
	kind := strings.ToLower(strings.TrimSpace(head[:open]))
	args := strings.Split(head[open+1:len(head)-1], ",")
	for i, a := range args {
		args[i] = strings.TrimSpace(a)
	}

	switch kind {
	case "f", "g":
		if len(args) != 2 {
			return &Error{Line: ln, Msg: fmt.Sprintf("%s expects two deme indices", strings.ToUpper(kind))}
		}
		i, err := d.demeIndex(args[0], ln)
		if err != nil {
			return err
		}
		j, err := d.demeIndex(args[1], ln)
		if err != nil {
			return err
		}
		if kind == "f" {
			d.F = append(d.F, MatrixExpr{I: i, J: j, Src: src})
		} else {
			d.G = append(d.G, MatrixExpr{I: i, J: j, Src: src})
		}
	case "d":
		if len(args) != 1 {
			return &Error{Line: ln, Msg: "D expects a single deme index"}
		}
		i, err := d.demeIndex(args[0], ln)
		if err != nil {
			return err
		}
		d.D = append(d.D, VecExpr{I: i, Src: src})
	case "dot":
		if len(args) != 1 {
			return &Error{Line: ln, Msg: "dot expects a single variable"}
		}
		d.Dot = append(d.Dot, NamedExpr{Name: args[0], Src: src})
	default:
		return &Error{Line: ln, Msg: fmt.Sprintf("unknown equation kind %q", kind)}
	}
	return nil
}

func (d *Doc) demeIndex(name string, ln int) (int, error) {
	for i, dm := range d.Demes {
		if strings.EqualFold(dm, name) {
			return i, nil
		}
	}
	return 0, &Error{Line: ln, Msg: fmt.Sprintf("unknown deme %q", name)}
}

func (d *Doc) addParameter(line string, ln int) error {
	fields := strings.Fields(line)
	if len(fields) != 2 {
		return &Error{Line: ln, Msg: "expecting a name and a value"}
	}
	v, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return &Error{Line: ln, Msg: fmt.Sprintf("read %q: %v", fields[1], err)}
	}
	d.Params.Set(strings.ToLower(fields[0]), v)
	return nil
}

func (d *Doc) addTrajectory(line string, ln int) error {
	fields := strings.Fields(line)
	key := strings.ToLower(fields[0])
	switch key {
	case "method":
		if len(fields) != 2 {
			return &Error{Line: ln, Msg: "expecting a method name"}
		}
		if _, err := integrate.ParseMethod(fields[1]); err != nil {
			return &Error{Line: ln, Msg: err.Error()}
		}
		d.Method = strings.ToLower(fields[1])
	case "integrationsteps":
		if len(fields) != 2 {
			return &Error{Line: ln, Msg: "expecting a step count"}
		}
		n, err := strconv.Atoi(fields[1])
		if err != nil || n < 1 {
			return &Error{Line: ln, Msg: fmt.Sprintf("invalid step count %q", fields[1])}
		}
		d.Steps = n
	case "t0", "t1":
		if len(fields) != 2 {
			return &Error{Line: ln, Msg: "expecting a time value"}
		}
		v, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return &Error{Line: ln, Msg: fmt.Sprintf("read %q: %v", fields[1], err)}
		}
		if key == "t0" {
			d.T0 = v
		} else {
			d.T1 = v
			d.hasT1 = true
		}
	case "initial":
		if len(fields) != 3 {
			return &Error{Line: ln, Msg: "expecting a variable and a value"}
		}
		v, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			return &Error{Line: ln, Msg: fmt.Sprintf("read %q: %v", fields[2], err)}
		}
		d.Init[strings.ToLower(fields[1])] = v
	default:
		return &Error{Line: ln, Msg: fmt.Sprintf("unknown trajectory setting %q", fields[0])}
	}
	return nil
}

func (d *Doc) addOption(line string, ln int) error {
	fields := strings.Fields(line)
	if len(fields) != 2 {
		return &Error{Line: ln, Msg: "expecting an option and a value"}
	}
	key := strings.ToLower(fields[0])
	val := fields[1]

	boolOpt := func(dst *bool) error {
		v, err := strconv.ParseBool(val)
		if err != nil {
			return &Error{Line: ln, Msg: fmt.Sprintf("read %q: %v", val, err)}
		}
		*dst = v
		return nil
	}
	floatOpt := func(dst *float64) error {
		v, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return &Error{Line: ln, Msg: fmt.Sprintf("read %q: %v", val, err)}
		}
		*dst = v
		return nil
	}

	switch key {
	case "finitesizecorrections":
		return boolOpt(&d.Options.FiniteSizeCorrections)
	case "approxlambda":
		return boolOpt(&d.Options.ApproxLambda)
	case "forgiveagty":
		return floatOpt(&d.Options.ForgiveAgtY)
	case "penaltyagty":
		return floatOpt(&d.Options.PenaltyAgtY)
	case "forgivey":
		return boolOpt(&d.Options.ForgiveY)
	case "minp":
		return floatOpt(&d.Options.MinP)
	case "ne":
		if err := floatOpt(&d.Options.Ne); err != nil {
			return err
		}
		d.NeSet = true
		return nil
	case "constant":
		return boolOpt(&d.Options.Constant)
	case "ancestral":
		return boolOpt(&d.Options.Ancestral)
	case "full":
		return boolOpt(&d.Options.Full)
	case "gc":
		// a relic option with no effect here;
		// accepted and ignored
		if _, err := strconv.Atoi(val); err != nil {
			return &Error{Line: ln, Msg: fmt.Sprintf("read %q: %v", val, err)}
		}
		return nil
	}
	return &Error{Line: ln, Msg: fmt.Sprintf("unknown likelihood option %q", fields[0])}
}

func splitAssign(line string, ln int) (name, src string, err error) {
	if !strings.HasSuffix(line, ";") {
		return "", "", &Error{Line: ln, Msg: "missing terminating ';'"}
	}
	line = strings.TrimSuffix(line, ";")
	eq := strings.IndexByte(line, '=')
	if eq < 0 {
		return "", "", &Error{Line: ln, Msg: "missing '='"}
	}
	name = strings.TrimSpace(line[:eq])
	src = strings.TrimSpace(line[eq+1:])
	if name == "" || src == "" {
		return "", "", &Error{Line: ln, Msg: "empty assignment"}
	}
	return name, src, nil
}

// Validate checks the document for completeness:
// at least one deme, a t1 after t0,
// an initial value for every state variable,
// and options within their ranges.
func (d *Doc) Validate() error {
	if len(d.Demes) == 0 {
		return &Error{Msg: "no demes declared"}
	}
	if !d.hasT1 {
		return &Error{Msg: "missing t1 in the trajectory block"}
	}
	if d.T1 <= d.T0 {
		return &Error{Msg: fmt.Sprintf("empty trajectory window [%g, %g]", d.T0, d.T1)}
	}
	for _, n := range d.Demes {
		if _, ok := d.Init[strings.ToLower(n)]; !ok {
			return &Error{Msg: fmt.Sprintf("missing initial value for deme %q", n)}
		}
	}
	for _, n := range d.Aux {
		if _, ok := d.Init[strings.ToLower(n)]; !ok {
			return &Error{Msg: fmt.Sprintf("missing initial value for %q", n)}
		}
	}
	if d.Options.MinP <= 0 || d.Options.MinP > 0.1 {
		return &Error{Msg: fmt.Sprintf("minP %g outside (0, 0.1]", d.Options.MinP)}
	}
	if d.Options.ForgiveAgtY < 0 || d.Options.ForgiveAgtY > 1 {
		return &Error{Msg: fmt.Sprintf("forgiveAgtY %g outside [0, 1]", d.Options.ForgiveAgtY)}
	}
	return nil
}

// Model compiles the document's equations into a population model.
// Unresolved identifiers and malformed expressions
// surface here as compile errors.
func (d *Doc) Model() (*popmodel.Model, error) {
	b := popmodel.NewBuilder(d.Params.Names(), lower(d.Demes), lower(d.Aux))
	for _, def := range d.Defs {
		if err := b.Define(strings.ToLower(def.Name), def.Src); err != nil {
			return nil, err
		}
	}
	for _, eq := range d.F {
		if err := b.SetF(eq.I, eq.J, eq.Src); err != nil {
			return nil, err
		}
	}
	for _, eq := range d.G {
		if err := b.SetG(eq.I, eq.J, eq.Src); err != nil {
			return nil, err
		}
	}
	for _, eq := range d.D {
		if err := b.SetD(eq.I, eq.Src); err != nil {
			return nil, err
		}
	}
	for _, eq := range d.Dot {
		if err := b.SetDot(strings.ToLower(eq.Name), eq.Src); err != nil {
			return nil, err
		}
	}
	return b.Build()
}

// InitialState projects the initial-value bindings
// into the state vector order the model expects.
func (d *Doc) InitialState(m *popmodel.Model) ([]float64, error) {
	names := append(m.DemeNames(), m.AuxNames()...)
	y0 := make([]float64, len(names))
	for i, n := range names {
		v, ok := d.Init[n]
		if !ok {
			return nil, &Error{Msg: fmt.Sprintf("missing initial value for %q", n)}
		}
		y0[i] = v
	}
	return y0, nil
}

// IntegrationMethod returns the parsed trajectory method.
func (d *Doc) IntegrationMethod() integrate.Method {
	m, _ := integrate.ParseMethod(d.Method)
	return m
}

func lower(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = strings.ToLower(n)
	}
	return out
}
