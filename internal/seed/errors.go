package seed

import "errors"

var (
	// ErrInvalidConfig is returned by Generate for an unusable Config.
	ErrInvalidConfig = errors.New("seed: invalid config")
	// ErrInconsistent is wrapped by every Verify finding.
	ErrInconsistent = errors.New("seed: inconsistent results")
)
