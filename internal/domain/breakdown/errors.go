package breakdown

import "errors"

var (
	ErrConflict      = errors.New("conflicting breakdown fragments")
	ErrTotalMismatch = errors.New("breakdown total does not match components")
)
