package bonus

import "errors"

// Sentinel errors for this package.
var (
	ErrUnknownType   = errors.New("unknown bonus type")
	ErrInvalidConfig = errors.New("invalid bonus config")
)
