// Copyright © 2023 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

// PhyDyn is a tool for phylodynamic analysis
// with a structured coalescent over an ODE population model.
package main

import (
	"github.com/jmichaelegana/PhyDyn/cmd/phydyn/run"
	"github.com/jmichaelegana/PhyDyn/cmd/phydyn/sweep"
	"github.com/jmichaelegana/PhyDyn/cmd/phydyn/validate"
	"github.com/js-arias/command"
)

var app = &command.Command{
	Usage: "phydyn <command> [<argument>...]",
	Short: "a tool for structured coalescent phylodynamics",
}

func init() {
	app.Add(run.Command)
	app.Add(sweep.Command)
	app.Add(validate.Command)
}

func main() {
	app.Main()
}
