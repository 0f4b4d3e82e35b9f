package rules

import "errors"

// Sentinel errors for rule-set handling.
var (
	ErrInvalidRuleSet = errors.New("invalid rule set")
	ErrNotFound       = errors.New("rule set version not found")
	ErrAlreadyExists  = errors.New("rule set version already published with different content")
)
