// Copyright © 2023 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

package config

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// CanonTaxon returns the canonical lookup form of a taxon name:
// single spaced and lower cased.
func CanonTaxon(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

var tipHeader = []string{
	"taxon",
	"deme",
}

// ReadTipStates reads the deme assignment of the sampled taxa
// from a TSV file.
//
// The TSV must contain the following fields:
//
//   - taxon, the taxonomic name of a terminal
//   - deme, the name of the deme the terminal was sampled in
//
// Here is an example file:
//
//	# sampled demes
//	taxon	deme
//	virus_a	I0
//	virus_b	I0
//	virus_c	I1
//
// The returned map is keyed by canonical (lower cased) taxon name
// with the deme index in the given deme list.
func ReadTipStates(r io.Reader, demes []string) (map[string]int, error) {
	tsv := csv.NewReader(r)
	tsv.Comma = '\t'
	tsv.Comment = '#'

	head, err := tsv.Read()
	if err != nil {
		return nil, fmt.Errorf("config: tip states: header: %v", err)
	}
	fields := make(map[string]int, len(head))
	for i, h := range head {
		fields[strings.ToLower(h)] = i
	}
	for _, h := range tipHeader {
		if _, ok := fields[h]; !ok {
			return nil, fmt.Errorf("config: tip states: expecting field %q", h)
		}
	}

	states := make(map[string]int)
	for {
		row, err := tsv.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		ln, _ := tsv.FieldPos(0)
		if err != nil {
			return nil, fmt.Errorf("config: tip states: on row %d: %v", ln, err)
		}

		taxon := CanonTaxon(row[fields["taxon"]])
		if taxon == "" {
			continue
		}
		deme := strings.TrimSpace(row[fields["deme"]])
		idx := -1
		for i, d := range demes {
			if strings.EqualFold(d, deme) {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, fmt.Errorf("config: tip states: on row %d: unknown deme %q", ln, deme)
		}
		if _, dup := states[taxon]; dup {
			return nil, fmt.Errorf("config: tip states: on row %d: repeated taxon %q", ln, taxon)
		}
		states[taxon] = idx
	}
	return states, nil
}
