package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/ricedx/internal/model"
)

func TestReadAnswerSheet_YAML(t *testing.T) {
	sheet, err := ReadAnswerSheet(filepath.Join("testdata", "plot-7.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "plot-7", sheet.Name)
	assert.Equal(t, map[string]string{"G1": "yes", "G2": "ragu", "G3": "0.35"}, sheet.Answers)
	assert.Equal(t, filepath.Join("testdata", "plot-7.yaml"), sheet.Source)
}

func TestReadAnswerSheet_JSONNameFromFile(t *testing.T) {
	sheet, err := ReadAnswerSheet(filepath.Join("testdata", "plot-8.json"))
	require.NoError(t, err)

	assert.Equal(t, "plot-8", sheet.Name)
	assert.Equal(t, "tidak", sheet.Answers["G2"])
	assert.Equal(t, "0", sheet.Answers["G3"])
}

func TestReadAnswerSheet_Errors(t *testing.T) {
	_, err := ReadAnswerSheet(filepath.Join("testdata", "absent.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("answers: [yes, no]\n"), 0o644))
	_, err = ReadAnswerSheet(path)
	assert.Error(t, err)
}

func TestReadAnswerSheet_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.yaml")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	sheet, err := ReadAnswerSheet(path)
	require.NoError(t, err)
	assert.NotNil(t, sheet.Answers)
	assert.Equal(t, "empty", sheet.Name)
}

func TestParseAnswerFlags(t *testing.T) {
	answers, err := ParseAnswerFlags([]string{"G1=yes", " G2 = 0.4 ", "G1=no"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"G1": "no", "G2": "0.4"}, answers)

	for _, bad := range []string{"G1", "=yes", "G1="} {
		_, err := ParseAnswerFlags([]string{bad})
		assert.ErrorIs(t, err, ErrInvalidAnswer, bad)
	}
}

func TestInitialFacts_AnswerMapping(t *testing.T) {
	rb := riceRuleBase()
	sheet := &model.AnswerSheet{Answers: map[string]string{"G1": "ya", "G2": "ragu", "G3": "tidak"}}

	facts, err := InitialFacts(rb, sheet, model.DefaultConfig().Diagnosis)
	require.NoError(t, err)

	assert.Equal(t, map[string]float64{"G1": 0.8, "G2": 0.3, "G3": 0}, facts)
}

func TestInitialFacts_DefaultAnswer(t *testing.T) {
	rb := riceRuleBase()
	sheet := &model.AnswerSheet{Answers: map[string]string{"G1": "yes"}}

	facts, err := InitialFacts(rb, sheet, model.DiagnosisConfig{UnsureFactor: 0.5, DefaultAnswer: "unsure"})
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"G1": 0.8, "G2": 0.3, "G3": 0.35}, facts)

	facts, err = InitialFacts(rb, sheet, model.DiagnosisConfig{UnsureFactor: 0.5, DefaultAnswer: ""})
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"G1": 0.8}, facts)

	facts, err = InitialFacts(rb, nil, model.DiagnosisConfig{UnsureFactor: 0.5, DefaultAnswer: "no"})
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"G1": 0, "G2": 0, "G3": 0}, facts)
}

func TestInitialFacts_UnsureFactor(t *testing.T) {
	rb := riceRuleBase()
	sheet := &model.AnswerSheet{Answers: map[string]string{"G1": "maybe"}}

	facts, err := InitialFacts(rb, sheet, model.DiagnosisConfig{UnsureFactor: 0.25})
	require.NoError(t, err)
	assert.Equal(t, 0.2, facts["G1"])
}

func TestInitialFacts_NumericAndUnknownFacts(t *testing.T) {
	rb := riceRuleBase()
	sheet := &model.AnswerSheet{Answers: map[string]string{"G1": "-0.4", "X9": "yes", "X8": "0.1"}}

	facts, err := InitialFacts(rb, sheet, model.DiagnosisConfig{UnsureFactor: 0.5})
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"G1": -0.4, "X9": 1, "X8": 0.1}, facts)
}

func TestInitialFacts_Invalid(t *testing.T) {
	rb := riceRuleBase()
	cfg := model.DefaultConfig().Diagnosis

	for _, raw := range []string{"1.5", "-2", "NaN", "often"} {
		_, err := InitialFacts(rb, &model.AnswerSheet{Answers: map[string]string{"G1": raw}}, cfg)
		assert.ErrorIs(t, err, ErrInvalidAnswer, raw)
	}

	_, err := InitialFacts(rb, nil, model.DiagnosisConfig{DefaultAnswer: "perhaps"})
	assert.Error(t, err)
}
