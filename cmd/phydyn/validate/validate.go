// Copyright © 2023 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

// Package validate implements a command to check a model file
// without running any analysis.
package validate

import (
	"fmt"
	"os"

	"github.com/jmichaelegana/PhyDyn/config"
	"github.com/js-arias/command"
)

var Command = &command.Command{
	Usage: "validate [--states <state-file>] <model-file>",
	Short: "check a model file",
	Long: `
Command validate reads a model file, compiles its population model equations,
and checks the trajectory window, the initial values, and the likelihood
options, without evaluating anything. With the flag --states it also reads a
terminal deme assignment file and checks its demes against the model.

The command prints a short summary of the model and exits with status 0 if
the file is well formed, or reports the first problem found and exits with
status 1.
	`,
	SetFlags: setFlags,
	Run:      run,
}

var stateFile string

func setFlags(c *command.Command) {
	c.Flags().StringVar(&stateFile, "states", "", "")
}

func run(c *command.Command, args []string) error {
	if len(args) < 1 {
		return c.UsageError("expecting model file")
	}

	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	d, err := config.Read(f)
	if err != nil {
		return fmt.Errorf("on file %q: %v", args[0], err)
	}
	m, err := d.Model()
	if err != nil {
		return fmt.Errorf("on file %q: %v", args[0], err)
	}
	if _, err := d.InitialState(m); err != nil {
		return fmt.Errorf("on file %q: %v", args[0], err)
	}
	if _, err := d.Params.Values(m.ParamNames()); err != nil {
		return fmt.Errorf("on file %q: %v", args[0], err)
	}

	if stateFile != "" {
		sf, err := os.Open(stateFile)
		if err != nil {
			return err
		}
		defer sf.Close()
		if _, err := config.ReadTipStates(sf, d.Demes); err != nil {
			return fmt.Errorf("on file %q: %v", stateFile, err)
		}
	}

	fmt.Fprintf(c.Stdout(), "model %q: %d demes, %d auxiliary, %d parameters\n", d.Name, m.NumDemes(), len(m.AuxNames()), m.NumParams())
	fmt.Fprintf(c.Stdout(), "trajectory: %s, %d steps over [%g, %g]\n", d.Method, d.Steps, d.T0, d.T1)
	if m.IsConstant() {
		fmt.Fprintf(c.Stdout(), "rates are constant\n")
	}
	return nil
}
