// Copyright © 2023 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

package expr

import "fmt"

// A ParseError reports a malformed expression,
// with the byte offset at which the parser gave up.
type ParseError struct {
	Position int
	Msg      string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("expr: parse error at %d: %s", e.Position, e.Msg)
}

// A NameError reports an identifier
// that could not be resolved against the compile-time scope
// (neither a parameter nor a state variable nor a prior definition).
type NameError struct {
	Ident string
}

func (e *NameError) Error() string {
	return fmt.Sprintf("expr: unresolved identifier %q", e.Ident)
}
