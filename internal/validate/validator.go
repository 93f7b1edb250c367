package validate

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/ppiankov/ricedx/internal/model"
)

// ErrInvalidRuleBase is returned by Result.Err when any error-level issue exists
var ErrInvalidRuleBase = errors.New("invalid rule base")

// Severity indicates how serious an issue is
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error" // Rule base must be rejected
)

// Issue is a single validation finding
type Issue struct {
	Severity Severity `json:"severity"`
	RuleID   string   `json:"rule_id,omitempty"`
	FactID   string   `json:"fact_id,omitempty"`
	Message  string   `json:"message"`
}

func (i Issue) String() string {
	subject := ""
	switch {
	case i.RuleID != "":
		subject = "rule " + i.RuleID + ": "
	case i.FactID != "":
		subject = "fact " + i.FactID + ": "
	}
	return fmt.Sprintf("[%s] %s%s", i.Severity, subject, i.Message)
}

// Result collects validation issues in discovery order
type Result struct {
	Issues []Issue `json:"issues"`
}

func (r *Result) add(sev Severity, ruleID, factID, format string, args ...interface{}) {
	r.Issues = append(r.Issues, Issue{
		Severity: sev,
		RuleID:   ruleID,
		FactID:   factID,
		Message:  fmt.Sprintf(format, args...),
	})
}

// Count returns the number of issues with the given severity
func (r *Result) Count(sev Severity) int {
	n := 0
	for _, i := range r.Issues {
		if i.Severity == sev {
			n++
		}
	}
	return n
}

// HasErrors reports whether the rule base must be rejected
func (r *Result) HasErrors() bool {
	return r.Count(SeverityError) > 0
}

// Err returns nil or an error wrapping ErrInvalidRuleBase listing every error-level issue
func (r *Result) Err() error {
	var msgs []string
	for _, i := range r.Issues {
		if i.Severity == SeverityError {
			msgs = append(msgs, i.String())
		}
	}
	if len(msgs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrInvalidRuleBase, strings.Join(msgs, "; "))
}

// Validator checks a rule base before it is handed to the engine
type Validator struct {
	// StrictWarnings promotes warnings to errors
	StrictWarnings bool
}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// Validate runs every structural check against rb
func (v *Validator) Validate(rb *model.RuleBase) *Result {
	result := &Result{}
	if rb == nil {
		result.add(SeverityError, "", "", "rule base is nil")
		return result
	}

	v.checkFacts(rb, result)
	v.checkRules(rb, result)
	v.checkReachability(rb, result)
	v.checkLabels(rb, result)
	checkCycles(rb, result)

	if v.StrictWarnings {
		for i := range result.Issues {
			if result.Issues[i].Severity == SeverityWarning {
				result.Issues[i].Severity = SeverityError
			}
		}
	}

	return result
}

func (v *Validator) checkFacts(rb *model.RuleBase, result *Result) {
	for _, q := range rb.Questions() {
		if strings.TrimSpace(q.Question) == "" {
			result.add(SeverityWarning, "", q.ID, "no question text")
		}
		if !inRange(q.Certainty) {
			result.add(SeverityError, "", q.ID, "cf %v outside [-1, 1]", q.Certainty)
		}
	}
}

func (v *Validator) checkRules(rb *model.RuleBase, result *Result) {
	if len(rb.Rules) == 0 {
		result.add(SeverityWarning, "", "", "rule base has no rules")
		return
	}

	seen := make(map[string]int, len(rb.Rules))
	for i, r := range rb.Rules {
		id := strings.TrimSpace(r.ID)
		if id == "" {
			result.add(SeverityError, "", "", "rule at index %d has no id", i)
		} else if prev, dup := seen[id]; dup {
			result.add(SeverityError, r.ID, "", "duplicate id (first defined at index %d)", prev)
		} else {
			seen[id] = i
		}

		if len(r.Antecedents) == 0 {
			result.add(SeverityError, r.ID, "", "no antecedents")
		}
		inRule := make(map[string]bool, len(r.Antecedents))
		for _, a := range r.Antecedents {
			if strings.TrimSpace(a) == "" {
				result.add(SeverityError, r.ID, "", "empty antecedent")
				continue
			}
			if inRule[a] {
				result.add(SeverityWarning, r.ID, "", "antecedent %s listed twice", a)
			}
			inRule[a] = true
		}

		if strings.TrimSpace(r.Consequent) == "" {
			result.add(SeverityError, r.ID, "", "no consequent")
		} else if inRule[r.Consequent] {
			result.add(SeverityWarning, r.ID, "", "concludes its own antecedent %s", r.Consequent)
		}

		if !inRange(r.Certainty) {
			result.add(SeverityError, r.ID, "", "cf %v outside [-1, 1]", r.Certainty)
		}
	}
}

// checkReachability flags antecedents that neither the user nor any rule can assert
func (v *Validator) checkReachability(rb *model.RuleBase, result *Result) {
	concluded := make(map[string]bool)
	for _, r := range rb.Rules {
		concluded[r.Consequent] = true
	}

	for _, r := range rb.Rules {
		for _, a := range r.Antecedents {
			if a == "" {
				continue
			}
			if _, isFact := rb.Facts[a]; !isFact && !concluded[a] {
				result.add(SeverityWarning, r.ID, "", "antecedent %s is never asserted; rule can never fire", a)
			}
		}
	}
}

func (v *Validator) checkLabels(rb *model.RuleBase, result *Result) {
	for _, c := range rb.Conclusions() {
		if _, ok := rb.Labels[c]; !ok {
			if _, isFact := rb.Facts[c]; !isFact {
				result.add(SeverityInfo, "", c, "conclusion has no label; id will be shown")
			}
		}
	}
}

func inRange(cf float64) bool {
	return !math.IsNaN(cf) && cf >= -1 && cf <= 1
}
