package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrGameNotFound    = errors.New("game not found")
	ErrRuleSetNotFound = errors.New("rule set version not found")
	ErrRuleSetConflict = errors.New("rule set version already published with different content")
	ErrUnknownDriver   = errors.New("unknown storage driver")
)
