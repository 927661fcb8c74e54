// Copyright © 2023 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

package rootlog_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/jmichaelegana/PhyDyn/rootlog"
)

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	l, err := rootlog.New(&buf, []string{"I0", "I1"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := l.Log(0, []float64{0.75, 0.25}); err != nil {
		t.Fatalf("Log: %v", err)
	}
	if err := l.Log(1, nil); err != nil {
		t.Fatalf("Log: %v", err)
	}
	if err := l.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3", len(lines))
	}
	want := []string{
		"sample\tI0\tI1",
		"0\t0.750000\t0.250000",
		"1\t0.000000\t0.000000",
	}
	for i, w := range want {
		if got := strings.TrimRight(lines[i], "\r"); got != w {
			t.Errorf("line %d: got %q, want %q", i, got, w)
		}
	}
}
