// Copyright © 2023 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

package popmodel

import "fmt"

// A ModelError reports a malformed population model: an equation
// indexed outside the declared deme range, a dot(·) equation for an
// undeclared auxiliary variable, a definition added after a matrix
// equation, a model without demes, or a parameter or state vector of
// the wrong size. Name collisions between parameters, demes and
// auxiliary variables are not reported.
type ModelError struct {
	Msg string
}

func (e *ModelError) Error() string {
	return fmt.Sprintf("popmodel: %s", e.Msg)
}
