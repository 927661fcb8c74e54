// Copyright © 2023 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

package config_test

import (
	"strings"
	"testing"

	"github.com/jmichaelegana/PhyDyn/config"
)

const seirDoc = `# two-deme epidemic
popmodel seir2
demes	I0	I1
aux	S

definitions
infect0 = beta0 * S;
end

matrixeqs
F(I0,I0) = infect0 * I0;
F(I1,I1) = beta1 * S * I1;
G(I0,I1) = b * I0;
G(I1,I0) = b * I1;
D(I0) = gamma0 * I0;
D(I1) = gamma1 * I1;
dot(S) = -(infect0*I0 + beta1*S*I1);
end

parameters
beta0	0.001
beta1	0.0001
gamma0	1.0
gamma1	0.1111
b	0.01
end

trajectory
method	classicrk
integrationsteps	1001
t0	0
t1	20
initial	I0	1
initial	I1	0
initial	S	999
end

likelihood
finitesizecorrections	true
minp	0.0001
ne	10
ancestral	true
end
`

func TestRead(t *testing.T) {
	d, err := config.Read(strings.NewReader(seirDoc))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}

	if d.Name != "seir2" {
		t.Errorf("name = %q, want %q", d.Name, "seir2")
	}
	if len(d.Demes) != 2 || d.Demes[0] != "I0" || d.Demes[1] != "I1" {
		t.Errorf("demes = %v, want [I0 I1]", d.Demes)
	}
	if len(d.Aux) != 1 || d.Aux[0] != "S" {
		t.Errorf("aux = %v, want [S]", d.Aux)
	}
	if len(d.F) != 2 || len(d.G) != 2 || len(d.D) != 2 || len(d.Dot) != 1 {
		t.Errorf("got %d F, %d G, %d D, %d dot equations", len(d.F), len(d.G), len(d.D), len(d.Dot))
	}
	if d.Params.Len() != 5 {
		t.Errorf("got %d parameters, want 5", d.Params.Len())
	}
	if v, _ := d.Params.Value("gamma1"); v != 0.1111 {
		t.Errorf("gamma1 = %v, want 0.1111", v)
	}
	if d.Steps != 1001 || d.T0 != 0 || d.T1 != 20 {
		t.Errorf("trajectory = %d steps over [%v, %v]", d.Steps, d.T0, d.T1)
	}
	if !d.Options.FiniteSizeCorrections || !d.Options.Ancestral {
		t.Error("boolean options not set")
	}
	if !d.NeSet || d.Options.Ne != 10 {
		t.Errorf("Ne = %v (set %v), want 10", d.Options.Ne, d.NeSet)
	}
}

func TestModel(t *testing.T) {
	d, err := config.Read(strings.NewReader(seirDoc))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	m, err := d.Model()
	if err != nil {
		t.Fatalf("Model: %v", err)
	}
	if m.NumDemes() != 2 {
		t.Errorf("NumDemes = %d, want 2", m.NumDemes())
	}
	if !m.IsDiagF() {
		t.Error("F should be diagonal")
	}

	y0, err := d.InitialState(m)
	if err != nil {
		t.Fatalf("InitialState: %v", err)
	}
	want := []float64{1, 0, 999}
	for i := range want {
		if y0[i] != want[i] {
			t.Errorf("y0[%d] = %v, want %v", i, y0[i], want[i])
		}
	}
}

func TestReadErrors(t *testing.T) {
	tests := map[string]string{
		"missing t1": `popmodel x
demes	A
trajectory
t0	0
initial	A	1
end
`,
		"missing deme init": `popmodel x
demes	A	B
trajectory
t1	10
initial	A	1
end
`,
		"minP too large": `popmodel x
demes	A
trajectory
t1	10
initial	A	1
end
likelihood
minp	0.5
end
`,
		"unknown deme in equation": `popmodel x
demes	A
matrixeqs
F(A,Z) = 1;
end
trajectory
t1	10
initial	A	1
end
`,
		"missing semicolon": `popmodel x
demes	A
matrixeqs
F(A,A) = 1
end
trajectory
t1	10
initial	A	1
end
`,
		"unterminated block": `popmodel x
demes	A
parameters
c	1
`,
		"unknown option": `popmodel x
demes	A
trajectory
t1	10
initial	A	1
end
likelihood
verbose	true
end
`,
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := config.Read(strings.NewReader(doc)); err == nil {
				t.Errorf("expecting an error reading:\n%s", doc)
			}
		})
	}
}

func TestModelCompileError(t *testing.T) {
	doc := `popmodel x
demes	A
matrixeqs
F(A,A) = unknownident * A;
end
trajectory
t1	10
initial	A	1
end
`
	d, err := config.Read(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if _, err := d.Model(); err == nil {
		t.Fatal("expecting a compile error for an unresolved identifier")
	}
}

func TestReadTipStates(t *testing.T) {
	data := `# sampled demes
taxon	deme
Virus A	I0
virus_b	i1
`
	st, err := config.ReadTipStates(strings.NewReader(data), []string{"I0", "I1"})
	if err != nil {
		t.Fatalf("ReadTipStates: %v", err)
	}
	if len(st) != 2 {
		t.Fatalf("got %d assignments, want 2", len(st))
	}
	if st["virus a"] != 0 {
		t.Errorf("virus a in deme %d, want 0", st["virus a"])
	}
	if st["virus_b"] != 1 {
		t.Errorf("virus_b in deme %d, want 1", st["virus_b"])
	}

	bad := "taxon	deme\nx	nowhere\n"
	if _, err := config.ReadTipStates(strings.NewReader(bad), []string{"I0"}); err == nil {
		t.Error("expecting an error for an unknown deme")
	}
}
