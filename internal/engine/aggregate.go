package engine

import (
	"sort"

	"github.com/ppiankov/ricedx/internal/model"
)

// Aggregate reduces firing records to one result per conclusion.
//
// For each conclusion the record with the highest combined certainty wins
// (first seen on ties). Results are sorted by certainty, descending; equal
// certainties keep the order in which their conclusions first fired.
func Aggregate(firings []model.FiringRecord, rb *model.RuleBase) []model.DiagnosisResult {
	results := make([]model.DiagnosisResult, 0)
	index := make(map[string]int)

	for _, f := range firings {
		i, ok := index[f.Consequent]
		if !ok {
			index[f.Consequent] = len(results)
			results = append(results, resultFrom(f))
			continue
		}
		if f.Combined > results[i].Certainty {
			results[i] = resultFrom(f)
		}
	}

	for i := range results {
		results[i].Label = rb.Label(results[i].ID)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Certainty > results[j].Certainty
	})

	for i := range results {
		results[i].Rank = i + 1
	}

	return results
}

func resultFrom(f model.FiringRecord) model.DiagnosisResult {
	return model.DiagnosisResult{
		ID:        f.Consequent,
		Certainty: Round(f.Combined),
		Note:      f.Note,
		RuleID:    f.RuleID,
	}
}
