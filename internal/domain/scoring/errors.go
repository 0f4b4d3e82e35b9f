package scoring

import "errors"

// ErrNotRanked is returned when scoring a result without a placement.
var ErrNotRanked = errors.New("result has no placement")
