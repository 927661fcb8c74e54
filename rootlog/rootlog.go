// Copyright © 2023 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

// Package rootlog writes a per-sample trace
// of the root state probabilities
// as a tab-delimited table,
// one row per sample of the enclosing run.
package rootlog

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

// A Logger emits one TSV row per sample:
// the sample number followed by the probability of each deme.
type Logger struct {
	bw  *bufio.Writer
	tsv *csv.Writer
	m   int
}

// New returns a logger over w for the given deme names,
// writing the header row immediately.
func New(w io.Writer, demes []string) (*Logger, error) {
	bw := bufio.NewWriter(w)
	tsv := csv.NewWriter(bw)
	tsv.Comma = '\t'

	head := make([]string, 0, len(demes)+1)
	head = append(head, "sample")
	head = append(head, demes...)
	if err := tsv.Write(head); err != nil {
		return nil, fmt.Errorf("rootlog: while writing header: %v", err)
	}
	return &Logger{
		bw:  bw,
		tsv: tsv,
		m:   len(demes),
	}, nil
}

// Log writes the row for one sample.
// A nil probability vector
// (the engine had no single surviving lineage)
// is written as a zero for every deme.
func (l *Logger) Log(sample int64, p []float64) error {
	row := make([]string, 0, l.m+1)
	row = append(row, strconv.FormatInt(sample, 10))
	for i := 0; i < l.m; i++ {
		v := 0.0
		if i < len(p) {
			v = p[i]
		}
		row = append(row, strconv.FormatFloat(v, 'f', 6, 64))
	}
	if err := l.tsv.Write(row); err != nil {
		return fmt.Errorf("rootlog: on sample %d: %v", sample, err)
	}
	return nil
}

// Flush pushes any buffered rows to the underlying writer.
func (l *Logger) Flush() error {
	l.tsv.Flush()
	if err := l.tsv.Error(); err != nil {
		return fmt.Errorf("rootlog: while writing data: %v", err)
	}
	if err := l.bw.Flush(); err != nil {
		return fmt.Errorf("rootlog: while writing data: %v", err)
	}
	return nil
}
