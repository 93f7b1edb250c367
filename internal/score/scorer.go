package score

import (
	"fmt"
	"math"
	"sort"

	"github.com/ppiankov/ricedx/internal/model"
)

// Thresholds used by the assessment
const (
	StrongCertainty = 0.7 // Top result at or above this is strong evidence
	WeakCertainty   = 0.4 // Top result below this is weak evidence
	CloseCallMargin = 0.1 // Top two results closer than this are a close call
)

// Scorer grades diagnosis reports and generates signals
type Scorer struct{}

// NewScorer creates a new scorer
func NewScorer() *Scorer {
	return &Scorer{}
}

// Calculate assesses report, produced from sheet against rb
func (s *Scorer) Calculate(report *model.Report, rb *model.RuleBase, sheet *model.AnswerSheet) *model.Assessment {
	var signals []model.Signal

	// 1. How much of the questionnaire was actually answered
	coverage, coverageSignal := s.calculateCoverage(rb, sheet)
	signals = append(signals, coverageSignal)

	// 2. Strength of the leading conclusion
	signals = append(signals, s.calculateTopCertainty(report))

	// 3. Near ties between the leading conclusions
	closeCall, closeSignal := s.detectCloseCall(report)
	if closeCall {
		signals = append(signals, closeSignal)
	}

	// 4. Opposing evidence for one conclusion
	conflict, conflictSignal := s.detectConflict(report)
	if conflict {
		signals = append(signals, conflictSignal)
	}

	return &model.Assessment{
		Confidence: s.determineConfidence(report, coverage, closeCall, conflict),
		Coverage:   coverage,
		Conflict:   conflict,
		Signals:    signals,
	}
}

// calculateCoverage returns the share of questions answered explicitly
func (s *Scorer) calculateCoverage(rb *model.RuleBase, sheet *model.AnswerSheet) (float64, model.Signal) {
	questions := rb.Questions()
	if len(questions) == 0 {
		return 0, model.Signal{
			Type:        model.SignalAnswerCoverage,
			Severity:    model.SeverityWarning,
			Description: "Rule base defines no questions",
			Data:        map[string]interface{}{"questions": 0},
		}
	}

	answered := 0
	if sheet != nil {
		for _, q := range questions {
			if _, ok := sheet.Answers[q.ID]; ok {
				answered++
			}
		}
	}

	ratio := float64(answered) / float64(len(questions))

	severity := model.SeverityInfo
	if ratio < 0.25 {
		severity = model.SeverityCritical
	} else if ratio < 0.5 {
		severity = model.SeverityWarning
	}

	return ratio, model.Signal{
		Type:        model.SignalAnswerCoverage,
		Severity:    severity,
		Description: fmt.Sprintf("Answered %d of %d questions (%.0f%%)", answered, len(questions), ratio*100),
		Data: map[string]interface{}{
			"answered":  answered,
			"questions": len(questions),
			"defaulted": len(questions) - answered,
			"ratio":     ratio,
			"formula":   "answered / questions",
		},
	}
}

func (s *Scorer) calculateTopCertainty(report *model.Report) model.Signal {
	top, ok := report.Top()
	if !ok {
		return model.Signal{
			Type:        model.SignalTopCertainty,
			Severity:    model.SeverityInfo,
			Description: "No conclusion reached",
			Data:        map[string]interface{}{"results": 0},
		}
	}

	severity := model.SeverityInfo
	if top.Certainty < WeakCertainty {
		severity = model.SeverityWarning
	}

	return model.Signal{
		Type:        model.SignalTopCertainty,
		Severity:    severity,
		Description: fmt.Sprintf("Leading conclusion %s at %.1f%%", top.Label, top.Percent()),
		Data: map[string]interface{}{
			"id":     top.ID,
			"cf":     top.Certainty,
			"strong": StrongCertainty,
			"weak":   WeakCertainty,
		},
	}
}

// detectCloseCall flags leading conclusions separated by less than CloseCallMargin
func (s *Scorer) detectCloseCall(report *model.Report) (bool, model.Signal) {
	if len(report.Results) < 2 {
		return false, model.Signal{}
	}

	first, second := report.Results[0], report.Results[1]
	margin := first.Certainty - second.Certainty
	if margin >= CloseCallMargin || first.Certainty <= 0 {
		return false, model.Signal{}
	}

	return true, model.Signal{
		Type:        model.SignalCloseCall,
		Severity:    model.SeverityWarning,
		Description: fmt.Sprintf("%s and %s are within %.1f points", first.Label, second.Label, margin*100),
		Data: map[string]interface{}{
			"first":   first.ID,
			"second":  second.ID,
			"margin":  math.Round(margin*1e6) / 1e6,
			"formula": fmt.Sprintf("cf1 - cf2 < %.2f", CloseCallMargin),
		},
	}
}

// detectConflict finds conclusions supported by some firings and opposed by others
func (s *Scorer) detectConflict(report *model.Report) (bool, model.Signal) {
	positive := make(map[string]bool)
	negative := make(map[string]bool)
	for _, f := range report.Firings {
		switch {
		case f.SequentialCF > 0:
			positive[f.Consequent] = true
		case f.SequentialCF < 0:
			negative[f.Consequent] = true
		}
	}

	var conflicted []string
	for id := range negative {
		if positive[id] {
			conflicted = append(conflicted, id)
		}
	}
	if len(conflicted) == 0 {
		return false, model.Signal{}
	}
	sort.Strings(conflicted)

	return true, model.Signal{
		Type:        model.SignalEvidenceConflict,
		Severity:    model.SeverityWarning,
		Description: fmt.Sprintf("Opposing evidence for %d conclusion(s)", len(conflicted)),
		Data: map[string]interface{}{
			"conclusions": conflicted,
		},
	}
}

// determineConfidence maps the signals onto a confidence level
func (s *Scorer) determineConfidence(report *model.Report, coverage float64, closeCall, conflict bool) string {
	top, ok := report.Top()
	if !ok {
		return "none"
	}

	if top.Certainty < WeakCertainty || coverage < 0.25 {
		return "low"
	}

	if top.Certainty >= StrongCertainty && coverage >= 0.5 && !closeCall && !conflict {
		return "high"
	}
	return "medium"
}
