package engine

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/ricedx/internal/model"
)

func rule(id string, cf float64, then string, antecedents ...string) model.Rule {
	return model.Rule{ID: id, Antecedents: antecedents, Consequent: then, Certainty: cf}
}

func ruleBase(rules ...model.Rule) *model.RuleBase {
	return &model.RuleBase{Rules: rules, Labels: map[string]string{}}
}

func firingsFor(firings []model.FiringRecord, ruleID string) int {
	n := 0
	for _, f := range firings {
		if f.RuleID == ruleID {
			n++
		}
	}
	return n
}

func TestInfer_Chaining(t *testing.T) {
	rb := ruleBase(
		rule("R1", 0.6, "P1", "G1"),
		rule("R2", 0.5, "P2", "P1"),
	)

	results, err := Infer(map[string]float64{"G1": 0.8}, rb)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "P1", results[0].ID)
	assert.Equal(t, 0.48, results[0].Certainty)
	assert.Equal(t, 1, results[0].Rank)

	assert.Equal(t, "P2", results[1].ID)
	assert.Equal(t, 0.24, results[1].Certainty)
	assert.Equal(t, 2, results[1].Rank)
}

// With the dependent rule listed first, the chain needs a second pass.
func TestRun_ChainingAcrossPasses(t *testing.T) {
	rb := ruleBase(
		rule("R2", 0.5, "P2", "P1"),
		rule("R1", 0.6, "P1", "G1"),
	)

	trace, err := Run(map[string]float64{"G1": 0.8}, rb)
	require.NoError(t, err)
	require.Len(t, trace.Firings, 2)

	assert.Equal(t, "R1", trace.Firings[0].RuleID)
	assert.Equal(t, 1, trace.Firings[0].Pass)
	assert.Equal(t, "R2", trace.Firings[1].RuleID)
	assert.Equal(t, 2, trace.Firings[1].Pass)
	assert.Equal(t, 0.24, trace.Firings[1].Combined)

	// pass 3 is the quiet pass that proves the fixpoint
	assert.Equal(t, 3, trace.Passes)
}

// 0.125 * 0.0625 is exactly 0.0078125, a tie at the sixth decimal.
func TestInfer_RoundsTiesAwayFromZero(t *testing.T) {
	rb := ruleBase(rule("R1", 0.0625, "P1", "G1"))

	results, err := Infer(map[string]float64{"G1": 0.125}, rb)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 0.007813, results[0].Certainty)
}

func TestInfer_ConjunctionIsMinimum(t *testing.T) {
	rb := ruleBase(rule("R1", 1.0, "P1", "G1", "G2"))

	trace, err := Run(map[string]float64{"G1": 0.8, "G2": 0.3}, rb)
	require.NoError(t, err)
	require.Len(t, trace.Firings, 1)

	f := trace.Firings[0]
	assert.Equal(t, 0.3, f.ParallelCF)
	assert.Equal(t, 0.3, f.SequentialCF)
	assert.Equal(t, []float64{0.8, 0.3}, f.AntecedentValues)
	assert.Equal(t, []string{"G1", "G2"}, f.Antecedents)
	assert.Equal(t, 0.3, trace.Results[0].Certainty)
}

func TestInfer_SingleFiring(t *testing.T) {
	// R2 strengthens G1 after R1 has already used it
	rb := ruleBase(
		rule("R1", 0.5, "P1", "G1"),
		rule("R2", 0.9, "G1", "G2"),
	)

	trace, err := Run(map[string]float64{"G1": 0.4, "G2": 0.8}, rb)
	require.NoError(t, err)

	assert.Equal(t, 1, firingsFor(trace.Firings, "R1"))
	assert.Equal(t, 1, firingsFor(trace.Firings, "R2"))
	assert.InDelta(t, 0.2, trace.Memory["P1"], 1e-12)
	assert.InDelta(t, 0.832, trace.Memory["G1"], 1e-12)
	assert.Equal(t, 2, trace.Passes)
}

// A rule evaluated without net change is still spent for the run.
func TestInfer_FiredWithoutChangeNeverRefires(t *testing.T) {
	rb := ruleBase(
		rule("R1", 1.0, "P1", "G1"),
		rule("R2", 1.0, "G1", "G2"),
	)

	trace, err := Run(map[string]float64{"G1": 0, "G2": 0.9}, rb)
	require.NoError(t, err)

	assert.Equal(t, 0, firingsFor(trace.Firings, "R1"))
	_, concluded := trace.Memory["P1"]
	assert.False(t, concluded, "a zero contribution must not assert the consequent")

	require.Len(t, trace.Results, 1)
	assert.Equal(t, "G1", trace.Results[0].ID)
	assert.Equal(t, 0.9, trace.Results[0].Certainty)
}

func TestInfer_ZeroCertaintySatisfiesAntecedent(t *testing.T) {
	rb := ruleBase(rule("R1", 1.0, "P1", "G1", "G2"))

	results, err := Infer(map[string]float64{"G1": 0, "G2": -0.5}, rb)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, -0.5, results[0].Certainty)

	results, err = Infer(map[string]float64{"G2": -0.5}, rb)
	require.NoError(t, err)
	assert.Empty(t, results, "an absent antecedent blocks the rule")
}

func TestInfer_EmptyInput(t *testing.T) {
	rb := ruleBase(
		rule("R1", 0.6, "P1", "G1"),
		rule("R2", 0.5, "P2", "P1"),
	)

	results, err := Infer(map[string]float64{}, rb)
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)

	results, err = Infer(nil, rb)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestInfer_NoRules(t *testing.T) {
	results, err := Infer(map[string]float64{"G1": 1}, &model.RuleBase{})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestInfer_Idempotent(t *testing.T) {
	rb := ruleBase(
		rule("R1", 0.6, "P1", "G1"),
		rule("R2", 0.7, "P1", "G2"),
		rule("R3", 0.5, "P2", "P1", "G3"),
		rule("R4", -0.4, "P2", "G2"),
	)
	facts := map[string]float64{"G1": 0.8, "G2": 0.4, "G3": 0.9}

	first, err := Infer(facts, rb)
	require.NoError(t, err)
	second, err := Infer(facts, rb)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestInfer_NoDuplicateConclusions(t *testing.T) {
	rb := ruleBase(
		rule("R1", 0.6, "P1", "G1"),
		rule("R2", 0.5, "P1", "G2"),
	)

	results, err := Infer(map[string]float64{"G1": 0.8, "G2": 0.5}, rb)
	require.NoError(t, err)
	require.Len(t, results, 1)

	// 0.48 then 0.48 + 0.25 * 0.52
	assert.Equal(t, "P1", results[0].ID)
	assert.Equal(t, 0.61, results[0].Certainty)
	assert.Equal(t, "R2", results[0].RuleID)
}

// The result keeps the strongest firing, not the final working memory value.
func TestInfer_KeepsHighestFiring(t *testing.T) {
	rb := ruleBase(
		rule("R1", 0.8, "P1", "G1"),
		rule("R2", -0.5, "P1", "G2"),
	)
	rb.Rules[0].Note = "supporting"
	rb.Rules[1].Note = "refuting"

	trace, err := Run(map[string]float64{"G1": 1, "G2": 1}, rb)
	require.NoError(t, err)
	require.Len(t, trace.Firings, 2)

	assert.InDelta(t, 0.6, trace.Memory["P1"], 1e-12)
	require.Len(t, trace.Results, 1)
	assert.Equal(t, 0.8, trace.Results[0].Certainty)
	assert.Equal(t, "supporting", trace.Results[0].Note)
	assert.Equal(t, "R1", trace.Results[0].RuleID)
}

// Rule order is part of the contract: it decides how evidence is folded.
func TestRun_EvaluationOrderMatters(t *testing.T) {
	facts := map[string]float64{"G1": 1, "G2": 1, "G3": 1}
	support := rule("Rpos", 1, "P", "G1")
	refute := rule("Rneg", -1, "P", "G2")
	weak := rule("Rhalf", 0.5, "P", "G3")

	a, err := Run(facts, ruleBase(support, refute, weak))
	require.NoError(t, err)
	b, err := Run(facts, ruleBase(support, weak, refute))
	require.NoError(t, err)

	assert.Equal(t, 0.5, a.Memory["P"])
	assert.Equal(t, 0.0, b.Memory["P"])
	assert.Len(t, a.Firings, 3)
	assert.Len(t, b.Firings, 2, "1 absorbs 0.5 without change")
}

func TestInfer_CircularRulesTerminate(t *testing.T) {
	rb := ruleBase(
		rule("R1", 0.9, "B", "A"),
		rule("R2", 0.9, "A", "B"),
	)

	trace, err := Run(map[string]float64{"A": 0.5}, rb)
	require.NoError(t, err)

	assert.Len(t, trace.Firings, 2)
	assert.Equal(t, 2, trace.Passes)
	require.Len(t, trace.Results, 2)
	assert.Equal(t, "A", trace.Results[0].ID)
	assert.InDelta(t, 0.7025, trace.Results[0].Certainty, 1e-9)
	assert.Equal(t, "B", trace.Results[1].ID)
	assert.Equal(t, 0.45, trace.Results[1].Certainty)
}

func TestInfer_LabelsAndFallback(t *testing.T) {
	rb := ruleBase(
		rule("R1", 0.9, "P1", "G1"),
		rule("R2", 0.5, "P2", "G1"),
	)
	rb.Labels["P1"] = "Blast"

	results, err := Infer(map[string]float64{"G1": 1}, rb)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "Blast", results[0].Label)
	assert.Equal(t, "P2", results[1].Label)
}

func TestInfer_TiesKeepFirstSeenOrder(t *testing.T) {
	facts := map[string]float64{"G1": 1}

	results, err := Infer(facts, ruleBase(
		rule("R1", 0.5, "A", "G1"),
		rule("R2", 0.5, "B", "G1"),
	))
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, []string{"A", "B"}, []string{results[0].ID, results[1].ID})

	results, err = Infer(facts, ruleBase(
		rule("R2", 0.5, "B", "G1"),
		rule("R1", 0.5, "A", "G1"),
	))
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "A"}, []string{results[0].ID, results[1].ID})
}

func TestInfer_DoesNotMutateInputs(t *testing.T) {
	rb := ruleBase(rule("R1", 0.6, "P1", "G1"))
	facts := map[string]float64{"G1": 0.8}

	_, err := Infer(facts, rb)
	require.NoError(t, err)

	assert.Equal(t, map[string]float64{"G1": 0.8}, facts)
	assert.Equal(t, []string{"G1"}, rb.Rules[0].Antecedents)
}

func TestInfer_InvalidRules(t *testing.T) {
	tests := []struct {
		name   string
		rules  []model.Rule
		ruleID string
	}{
		{"missing consequent", []model.Rule{rule("R1", 1, "", "G1")}, "R1"},
		{"no antecedents", []model.Rule{rule("R1", 1, "P1")}, "R1"},
		{"blank antecedent", []model.Rule{rule("R1", 1, "P1", "G1", " ")}, "R1"},
		{"missing id", []model.Rule{rule("", 1, "P1", "G1")}, ""},
		{"duplicate id", []model.Rule{rule("R1", 1, "P1", "G1"), rule("R1", 1, "P2", "G1")}, "R1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Infer(map[string]float64{"G1": 1}, ruleBase(tt.rules...))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidRule))

			var ruleErr *InvalidRuleError
			require.True(t, errors.As(err, &ruleErr))
			assert.Equal(t, tt.ruleID, ruleErr.RuleID)
		})
	}
}

func TestInfer_NilRuleBase(t *testing.T) {
	_, err := Infer(map[string]float64{"G1": 1}, nil)
	assert.ErrorIs(t, err, ErrNilRuleBase)
}

func TestInfer_ConcurrentRunsShareRuleBase(t *testing.T) {
	rb := ruleBase(
		rule("R1", 0.6, "P1", "G1"),
		rule("R2", 0.5, "P2", "P1"),
	)
	want, err := Infer(map[string]float64{"G1": 0.8}, rb)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := Infer(map[string]float64{"G1": 0.8}, rb)
			if err != nil {
				errs <- err
				return
			}
			if !assert.ObjectsAreEqual(want, got) {
				errs <- errors.New("concurrent run diverged")
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
}
