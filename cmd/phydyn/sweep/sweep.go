// Copyright © 2023 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

// Package sweep implements a command to explore
// the likelihood surface of a single model parameter,
// scoring many values of it over the same trees.
package sweep

import (
	"fmt"
	"math/rand"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/jmichaelegana/PhyDyn/cmd/phydyn/run"
	"github.com/jmichaelegana/PhyDyn/coaltree"
	"github.com/jmichaelegana/PhyDyn/config"
	"github.com/jmichaelegana/PhyDyn/params"
	"github.com/jmichaelegana/PhyDyn/popmodel"
	"github.com/jmichaelegana/PhyDyn/structcoal"
	"github.com/js-arias/command"
	"github.com/js-arias/timetree"
	"gonum.org/v1/gonum/stat/distuv"
)

var Command = &command.Command{
	Usage: `sweep --trees <tree-file> --states <state-file>
	--param <name> [--min <float>] [--max <float>]
	[--parts <number>] [--mc <number>]
	[--distribution <distribution>] [--scale <value>]
	[--cpu <number>] <model-file>`,
	Short: "explore the likelihood surface of a parameter",
	Long: `
Command sweep reads a model file, a collection of time calibrated trees, and a
terminal deme assignment, and reports the log likelihood of each tree over a
range of values of a single model parameter, named with the required flag
--param.

The flags --min and --max define the bounds of the swept values; the default
values are 0 and 1. By default the command makes a stepwise sweep, and the
flag --parts indicates the number of segments, 100 by default. If the flag
--mc is defined, it will sample the indicated number of values uniformly at
random instead.

If the flag --distribution is defined, values will be sampled from the
indicated distribution and the bounds will be ignored. The sintaxis for a
distribution is:

	<name>=<parameter>[,<parameter>...]

Valid distributions are:

	gamma	it requires two parameters, the shape (or alpha), and the rate
		(or lambda).
	lognormal	it requires two parameters, the location (or mu), and the
		scale (or sigma).

Node ages in the tree file are in years; the flag --scale gives the number of
years per unit of model time, one by default.

Results are written to the standard output as a TSV table with the following
columns:

	- tree, for the tree used in the sample
	- <name>, for the value of the swept parameter
	- logLike, the log likelihood of the tree at that value

By default, all available CPUs will be used in the processing. Set --cpu flag
to use a different number of CPUs.
	`,
	SetFlags: setFlags,
	Run:      runCmd,
}

var minFlag float64
var maxFlag float64
var scaleFlag float64
var parts int
var mcParts int
var numCPU int
var paramName string
var distribution string
var treeFile string
var stateFile string

func setFlags(c *command.Command) {
	c.Flags().Float64Var(&minFlag, "min", 0, "")
	c.Flags().Float64Var(&maxFlag, "max", 1, "")
	c.Flags().Float64Var(&scaleFlag, "scale", 1, "")
	c.Flags().IntVar(&parts, "parts", 100, "")
	c.Flags().IntVar(&mcParts, "mc", 0, "")
	c.Flags().IntVar(&numCPU, "cpu", runtime.GOMAXPROCS(0), "")
	c.Flags().StringVar(&paramName, "param", "", "")
	c.Flags().StringVar(&distribution, "distribution", "", "")
	c.Flags().StringVar(&treeFile, "trees", "", "")
	c.Flags().StringVar(&stateFile, "states", "", "")
}

func runCmd(c *command.Command, args []string) error {
	if len(args) < 1 {
		return c.UsageError("expecting model file")
	}
	if treeFile == "" {
		return c.UsageError("flag --trees undefined")
	}
	if stateFile == "" {
		return c.UsageError("flag --states undefined")
	}
	if paramName == "" {
		return c.UsageError("flag --param undefined")
	}
	paramName = strings.ToLower(paramName)

	d, err := readModelFile(args[0])
	if err != nil {
		return err
	}
	if _, ok := d.Params.Value(paramName); !ok {
		return fmt.Errorf("parameter %q not defined in %q", paramName, args[0])
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
	sf, err := os.Open(stateFile)
	if err != nil {
		return err
	}
	states, err := config.ReadTipStates(sf, d.Demes)
	sf.Close()
	if err != nil {
		return fmt.Errorf("on file %q: %v", stateFile, err)
	}

	values, err := sweepValues()
	if err != nil {
		return err
	}

	traj := structcoal.Trajectory{
		Method: d.IntegrationMethod(),
		Steps:  d.Steps,
		T0:     d.T0,
		T1:     d.T1,
		Init:   y0,
	}

	fmt.Fprintf(c.Stdout(), "tree\t%s\tlogLike\n", paramName)
	for _, tn := range tc.Names() {
		t := tc.Tree(tn)
		iv, err := coaltree.New(t, scaleFlag)
		if err != nil {
			return err
		}
		tips, err := run.TipStates(t, states)
		if err != nil {
			return err
		}

		likes, err := scoreValues(d, m, iv, tips, traj, values)
		if err != nil {
			return err
		}
		for i, v := range values {
			fmt.Fprintf(c.Stdout(), "%s\t%.6f\t%.6f\n", tn, v, likes[i])
		}
	}
	return nil
}

// scoreValues evaluates the likelihood at every swept value,
// fanning the independent evaluations over the worker pool.
// Each job owns its parameter set and engine,
// sharing only the immutable model and the interval sequence.
func scoreValues(d *config.Doc, m *popmodel.Model, iv *coaltree.Intervals, tips map[int]int, traj structcoal.Trajectory, values []float64) ([]float64, error) {
	likes := make([]float64, len(values))
	errs := make([]error, len(values))

	jobs := make(chan int, numCPU*2)
	var wg sync.WaitGroup
	for w := 0; w < numCPU; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				likes[i], errs[i] = scoreOne(d, m, iv, tips, traj, values[i])
			}
		}()
	}
	for i := range values {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return likes, nil
}

func scoreOne(d *config.Doc, m *popmodel.Model, iv *coaltree.Intervals, tips map[int]int, traj structcoal.Trajectory, v float64) (float64, error) {
	// every job owns a private parameter set and engine
	ps := params.New()
	for _, n := range d.Params.Names() {
		pv, _ := d.Params.Value(n)
		ps.Set(n, pv)
	}
	ps.Set(paramName, v)

	eng, err := structcoal.Init(m, ps, iv, tips, traj, d.Options)
	if err != nil {
		return 0, err
	}
	return eng.CalculateLogP(), nil
}

func sweepValues() ([]float64, error) {
	if distribution != "" {
		r, err := getDistribution()
		if err != nil {
			return nil, err
		}
		n := mcParts
		if n == 0 {
			n = parts
		}
		values := make([]float64, n)
		for i := range values {
			values[i] = r.Rand()
		}
		return values, nil
	}
	if mcParts > 0 {
		size := maxFlag - minFlag
		values := make([]float64, mcParts)
		for i := range values {
			values[i] = rand.Float64()*size + minFlag
		}
		return values, nil
	}

	step := (maxFlag - minFlag) / float64(parts)
	var values []float64
	for v := minFlag + step/2; v < maxFlag; v += step {
		values = append(values, v)
	}
	return values, nil
}

type rander interface {
	Rand() float64
}

func getDistribution() (rander, error) {
	s := strings.Split(distribution, "=")
	if len(s) < 2 {
		return nil, fmt.Errorf("invalid --distribution value: %q", distribution)
	}
	name := strings.ToLower(strings.TrimSpace(s[0]))

	p := strings.Split(s[1], ",")
	switch name {
	case "gamma":
		if len(p) < 2 {
			return nil, fmt.Errorf("invalid --distribution %q: gamma distribution require two parameter values", distribution)
		}
		alpha, err := strconv.ParseFloat(p[0], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid --distribution %q: shape parameter of gamma distribution: %v", distribution, err)
		}
		beta, err := strconv.ParseFloat(p[1], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid --distribution %q: rate parameter of gamma distribution: %v", distribution, err)
		}
		return distuv.Gamma{
			Alpha: alpha,
			Beta:  beta,
			Src:   nil,
		}, nil
	case "lognormal":
		if len(p) < 2 {
			return nil, fmt.Errorf("invalid --distribution %q: lognormal distribution require two parameter values", distribution)
		}
		mu, err := strconv.ParseFloat(p[0], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid --distribution %q: location parameter of lognormal distribution: %v", distribution, err)
		}
		sigma, err := strconv.ParseFloat(p[1], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid --distribution %q: scale parameter of lognormal distribution: %v", distribution, err)
		}
		return distuv.LogNormal{
			Mu:    mu,
			Sigma: sigma,
			Src:   nil,
		}, nil
	}
	return nil, fmt.Errorf("invalid --distribution: unknown distribution %q", distribution)
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
