// Package engine implements certainty-factor forward chaining.
//
// Infer is a pure function of its inputs: it never mutates the initial facts
// or the rule base, performs no I/O and keeps no state between calls, so one
// rule base can serve any number of concurrent runs.
package engine

import (
	"fmt"
	"math"
	"strings"

	"github.com/ppiankov/ricedx/internal/model"
)

// Trace is the full record of one inference run
type Trace struct {
	Results []model.DiagnosisResult
	Firings []model.FiringRecord
	Passes  int                // Passes over the rule base, including the final quiet pass
	Memory  map[string]float64 // Working memory at the fixpoint
}

// Infer runs forward chaining over rb seeded with initialFacts and returns
// one ranked result per concluded fact. An empty slice means nothing could
// be concluded.
func Infer(initialFacts map[string]float64, rb *model.RuleBase) ([]model.DiagnosisResult, error) {
	trace, err := Run(initialFacts, rb)
	if err != nil {
		return nil, err
	}
	return trace.Results, nil
}

// Run is Infer with the firing trace and final working memory attached.
func Run(initialFacts map[string]float64, rb *model.RuleBase) (*Trace, error) {
	if rb == nil {
		return nil, ErrNilRuleBase
	}
	if err := checkRules(rb.Rules); err != nil {
		return nil, err
	}

	memory := make(map[string]float64, len(initialFacts)+len(rb.Rules))
	for id, cf := range initialFacts {
		memory[id] = cf
	}

	fired := make(map[string]struct{}, len(rb.Rules))
	var firings []model.FiringRecord
	passes := 0

	for changed := true; changed; {
		changed = false
		passes++

		for _, rule := range rb.Rules {
			if _, done := fired[rule.ID]; done {
				continue
			}

			values, ok := antecedentValues(memory, rule.Antecedents)
			if !ok {
				continue
			}

			parallel := 1.0
			for _, v := range values {
				parallel = math.Min(parallel, v)
			}
			sequential := parallel * rule.Certainty

			existing := memory[rule.Consequent]
			combined := Combine(existing, sequential)

			if combined != existing {
				memory[rule.Consequent] = combined
				changed = true

				firings = append(firings, model.FiringRecord{
					RuleID:           rule.ID,
					Pass:             passes,
					Antecedents:      append([]string(nil), rule.Antecedents...),
					AntecedentValues: values,
					ParallelCF:       Round(parallel),
					RuleCF:           rule.Certainty,
					SequentialCF:     Round(sequential),
					Consequent:       rule.Consequent,
					Combined:         Round(combined),
					Note:             rule.Note,
				})
			}

			// Single-shot: an evaluated rule never fires again in this run,
			// even if its antecedents strengthen later.
			fired[rule.ID] = struct{}{}
		}
	}

	return &Trace{
		Results: Aggregate(firings, rb),
		Firings: firings,
		Passes:  passes,
		Memory:  memory,
	}, nil
}

// antecedentValues returns the current certainty of every antecedent, or
// false if any of them has never been asserted.
func antecedentValues(memory map[string]float64, antecedents []string) ([]float64, bool) {
	values := make([]float64, len(antecedents))
	for i, id := range antecedents {
		v, ok := memory[id]
		if !ok {
			return nil, false
		}
		values[i] = v
	}
	return values, true
}

// checkRules enforces the structural contract the fixpoint loop relies on
func checkRules(rules []model.Rule) error {
	seen := make(map[string]int, len(rules))
	for i, r := range rules {
		invalid := func(reason string) error {
			return &InvalidRuleError{Index: i, RuleID: r.ID, Reason: reason}
		}

		if strings.TrimSpace(r.ID) == "" {
			return invalid("missing id")
		}
		if prev, dup := seen[r.ID]; dup {
			return invalid(fmt.Sprintf("duplicate id (first at index %d)", prev))
		}
		seen[r.ID] = i

		if len(r.Antecedents) == 0 {
			return invalid("no antecedents")
		}
		for _, a := range r.Antecedents {
			if strings.TrimSpace(a) == "" {
				return invalid("empty antecedent")
			}
		}
		if strings.TrimSpace(r.Consequent) == "" {
			return invalid("missing consequent")
		}
	}
	return nil
}
