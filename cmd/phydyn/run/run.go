// Copyright © 2023 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

// Package run implements a command to compute
// the structured coalescent likelihood
// of the trees of an analysis.
package run

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"strconv"

	"github.com/jmichaelegana/PhyDyn/coaltree"
	"github.com/jmichaelegana/PhyDyn/config"
	"github.com/jmichaelegana/PhyDyn/rootlog"
	"github.com/jmichaelegana/PhyDyn/structcoal"
	"github.com/js-arias/command"
	"github.com/js-arias/timetree"
)

var Command = &command.Command{
	Usage: `run --trees <tree-file> --states <state-file>
	[--scale <value>] [--rootlog <file>]
	[-o|--output <prefix>] <model-file>`,
	Short: "compute the coalescent likelihood of the trees",
	Long: `
Command run reads a model file, a collection of time calibrated trees, and the
deme assignment of the sampled terminals, and reports the log likelihood of
each tree under the structured coalescent defined by the model.

The argument of the command is the model file, a plain text document with the
population model equations, the parameter values, the trajectory window, and
the likelihood options.

The flag --trees is required and indicates a TSV file with one or more time
calibrated trees. The flag --states is required and indicates a TSV file
assigning each terminal to the deme it was sampled in.

Node ages in the tree file are in years; the flag --scale gives the number of
years per unit of model time, one by default.

Results are written to the standard output as a TSV table with the tree name
and its log likelihood. If the model file activates the ancestral option, a
file with the posterior deme probabilities of every node, prefixed with the
model file name, will be written for each tree; use the flag --output, or -o,
to set a different prefix. The flag --rootlog indicates a file to log the
root state probabilities of each evaluated tree.

If any tree fails numerically (its log likelihood is -Inf) the command exits
with status 2 after reporting every tree.
	`,
	SetFlags: setFlags,
	Run:      run,
}

var scaleFlag float64
var output string
var rootLogFile string
var treeFile string
var stateFile string

func setFlags(c *command.Command) {
	c.Flags().Float64Var(&scaleFlag, "scale", 1, "")
	c.Flags().StringVar(&output, "output", "", "")
	c.Flags().StringVar(&output, "o", "", "")
	c.Flags().StringVar(&rootLogFile, "rootlog", "", "")
	c.Flags().StringVar(&treeFile, "trees", "", "")
	c.Flags().StringVar(&stateFile, "states", "", "")
}

func run(c *command.Command, args []string) error {
	if len(args) < 1 {
		return c.UsageError("expecting model file")
	}
	if treeFile == "" {
		return c.UsageError("flag --trees undefined")
	}
	if stateFile == "" {
		return c.UsageError("flag --states undefined")
	}

	d, err := readModelFile(args[0])
	if err != nil {
		return err
	}
	m, err := d.Model()
	if err != nil {
		return fmt.Errorf("on file %q: %v", args[0], err)
	}
	y0, err := d.InitialState(m)
	if err != nil {
		return fmt.Errorf("on file %q: %v", args[0], err)
	}

	tc, err := readTreeFile(treeFile)
	if err != nil {
		return err
	}
	states, err := readStateFile(stateFile, d.Demes)
	if err != nil {
		return err
	}

	var rl *rootlog.Logger
	if rootLogFile != "" {
		f, err := os.Create(rootLogFile)
		if err != nil {
			return err
		}
		defer f.Close()
		rl, err = rootlog.New(f, d.Demes)
		if err != nil {
			return err
		}
		defer rl.Flush()
	}

	traj := structcoal.Trajectory{
		Method: d.IntegrationMethod(),
		Steps:  d.Steps,
		T0:     d.T0,
		T1:     d.T1,
		Init:   y0,
	}

	numFail := false
	fmt.Fprintf(c.Stdout(), "tree\tlogLike\n")
	for i, tn := range tc.Names() {
		t := tc.Tree(tn)
		iv, err := coaltree.New(t, scaleFlag)
		if err != nil {
			return err
		}
		tips, err := TipStates(t, states)
		if err != nil {
			return err
		}

		eng, err := structcoal.Init(m, d.Params, iv, tips, traj, d.Options)
		if err != nil {
			return err
		}
		lp := eng.CalculateLogP()
		fmt.Fprintf(c.Stdout(), "%s\t%.6f\n", tn, lp)
		if math.IsInf(lp, -1) || math.IsNaN(lp) {
			numFail = true
		}

		if rl != nil {
			if err := rl.Log(int64(i), eng.RootProbs()); err != nil {
				return err
			}
		}

		if d.Options.Ancestral && !math.IsInf(lp, -1) {
			if err := writeAncestral(eng, t, args[0]); err != nil {
				return err
			}
		}

		// the parameter set is shared between trees;
		// force a fresh trajectory for the next one
		d.Params.MarkDirty()
	}

	if numFail {
		// os.Exit skips the deferred flush of the root log
		if rl != nil {
			if err := rl.Flush(); err != nil {
				return err
			}
		}
		fmt.Fprintf(c.Stderr(), "phydyn: numerical failure on at least one tree\n")
		os.Exit(2)
	}
	return nil
}

// TipStates maps every terminal node of t to its deme index,
// matching taxon names case-insensitively.
func TipStates(t *timetree.Tree, states map[string]int) (map[int]int, error) {
	tips := make(map[int]int)
	for _, n := range t.Nodes() {
		if !t.IsTerm(n) {
			continue
		}
		tax := config.CanonTaxon(t.Taxon(n))
		st, ok := states[tax]
		if !ok {
			return nil, fmt.Errorf("taxon %q of tree %q has no deme assignment", t.Taxon(n), t.Name())
		}
		tips[n] = st
	}
	return tips, nil
}

func writeAncestral(eng *structcoal.Engine, t *timetree.Tree, modName string) (err error) {
	post, err := eng.ReconstructAncestral()
	if err != nil {
		return fmt.Errorf("on tree %q: %v", t.Name(), err)
	}

	prefix := modName
	if output != "" {
		prefix = output
	}
	name := fmt.Sprintf("%s-%s-ancestral.tab", prefix, t.Name())
	f, err := os.Create(name)
	if err != nil {
		return err
	}
	defer func() {
		e := f.Close()
		if e != nil && err == nil {
			err = e
		}
	}()

	bw := bufio.NewWriter(f)
	tsv := csv.NewWriter(bw)
	tsv.Comma = '\t'

	head := []string{"tree", "node", "age", "taxon"}
	probs := eng.StateProbabilities()
	for i := 0; i < probs.Dim(); i++ {
		head = append(head, "state"+strconv.Itoa(i))
	}
	if err := tsv.Write(head); err != nil {
		return err
	}
	for _, n := range t.Nodes() {
		p, ok := post[n]
		if !ok {
			continue
		}
		row := []string{
			t.Name(),
			strconv.Itoa(n),
			strconv.FormatInt(t.Age(n), 10),
			t.Taxon(n),
		}
		for _, v := range p {
			row = append(row, strconv.FormatFloat(v, 'f', 6, 64))
		}
		if err := tsv.Write(row); err != nil {
			return err
		}
	}
	tsv.Flush()
	if err := tsv.Error(); err != nil {
		return fmt.Errorf("while writing %q: %v", name, err)
	}
	return bw.Flush()
}

func readModelFile(name string) (*config.Doc, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	d, err := config.Read(f)
	if err != nil {
		return nil, fmt.Errorf("on file %q: %v", name, err)
	}
	return d, nil
}

func readTreeFile(name string) (*timetree.Collection, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	c, err := timetree.ReadTSV(f)
	if err != nil {
		return nil, fmt.Errorf("while reading file %q: %v", name, err)
	}
	return c, nil
}

func readStateFile(name string, demes []string) (map[string]int, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	st, err := config.ReadTipStates(f, demes)
	if err != nil {
		return nil, fmt.Errorf("on file %q: %v", name, err)
	}
	return st, nil
}
