package model

import "sort"

// RuleBase is the declarative knowledge the engine reasons over.
// Once loaded it is read-only and may be shared by concurrent runs.
type RuleBase struct {
	Meta   Meta               `json:"meta" yaml:"meta"`
	Facts  map[string]FactDef `json:"facts" yaml:"facts"`
	Rules  []Rule             `json:"rules" yaml:"rules"`
	Labels map[string]string  `json:"labels" yaml:"labels"`

	// FactOrder lists fact identifiers in document order
	FactOrder []string `json:"-" yaml:"-"`
}

// Meta describes the rule base
type Meta struct {
	Title       string `json:"title,omitempty" yaml:"title,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// FactDef is a user-answerable symptom question
type FactDef struct {
	Question  string  `json:"question" yaml:"question"`
	Certainty float64 `json:"cf" yaml:"cf"` // Certainty awarded for a "yes" answer
}

// DefaultRuleCertainty applies when a rule document omits cf
const DefaultRuleCertainty = 1.0

// Rule is a single conjunctive inference rule: if all Antecedents then Consequent.
type Rule struct {
	ID          string   `json:"id" yaml:"id"`
	Antecedents []string `json:"if" yaml:"if"`
	Consequent  string   `json:"then" yaml:"then"`
	Certainty   float64  `json:"cf" yaml:"cf"`
	Note        string   `json:"note,omitempty" yaml:"note,omitempty"`
}

// Label returns the display label for a conclusion, falling back to the id
func (rb *RuleBase) Label(id string) string {
	if rb != nil {
		if label, ok := rb.Labels[id]; ok && label != "" {
			return label
		}
	}
	return id
}

// Question pairs a fact identifier with its definition
type Question struct {
	ID string
	FactDef
}

// Questions returns the questionnaire in document order.
// Facts absent from FactOrder follow, sorted by id.
func (rb *RuleBase) Questions() []Question {
	if rb == nil {
		return nil
	}

	questions := make([]Question, 0, len(rb.Facts))
	seen := make(map[string]bool, len(rb.Facts))
	for _, id := range rb.FactOrder {
		def, ok := rb.Facts[id]
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		questions = append(questions, Question{ID: id, FactDef: def})
	}

	var rest []string
	for id := range rb.Facts {
		if !seen[id] {
			rest = append(rest, id)
		}
	}
	sort.Strings(rest)
	for _, id := range rest {
		questions = append(questions, Question{ID: id, FactDef: rb.Facts[id]})
	}

	return questions
}

// Conclusions returns the distinct rule consequents in rule order
func (rb *RuleBase) Conclusions() []string {
	if rb == nil {
		return nil
	}
	var out []string
	seen := make(map[string]bool)
	for _, r := range rb.Rules {
		if r.Consequent == "" || seen[r.Consequent] {
			continue
		}
		seen[r.Consequent] = true
		out = append(out, r.Consequent)
	}
	return out
}
