package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRule marks a structurally invalid rule
	ErrInvalidRule = errors.New("invalid rule")

	// ErrNilRuleBase is returned when no rule base is supplied
	ErrNilRuleBase = errors.New("rule base is nil")
)

// InvalidRuleError describes which rule broke the structural contract
type InvalidRuleError struct {
	Index  int // Position in the rule base
	RuleID string
	Reason string
}

func (e *InvalidRuleError) Error() string {
	if e.RuleID == "" {
		return fmt.Sprintf("invalid rule at index %d: %s", e.Index, e.Reason)
	}
	return fmt.Sprintf("invalid rule %s (index %d): %s", e.RuleID, e.Index, e.Reason)
}

// Is makes errors.Is(err, ErrInvalidRule) true
func (e *InvalidRuleError) Is(target error) bool {
	return target == ErrInvalidRule
}
