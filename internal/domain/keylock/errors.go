package keylock

import "errors"

// ErrTooManyKeys is returned when WithMaxKeys is exceeded.
var ErrTooManyKeys = errors.New("too many keys in flight")
