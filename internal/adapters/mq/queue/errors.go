package queue

import "errors"

// Sentinel kinds for queue errors.
var (
	ErrFull   = errors.New("score queue is full")
	ErrClosed = errors.New("score queue is closed")
)
