package pipeline

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/ricedx/internal/model"
)

// ErrInvalidAnswer is returned for answers that are neither a known word nor a certainty in [-1, 1]
var ErrInvalidAnswer = errors.New("invalid answer")

// ReadAnswerSheet reads a YAML or JSON answer sheet
func ReadAnswerSheet(path string) (*model.AnswerSheet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read answer sheet: %w", err)
	}

	sheet := &model.AnswerSheet{}
	if err := yaml.Unmarshal(data, sheet); err != nil {
		return nil, fmt.Errorf("decode answer sheet %s: %w", path, err)
	}
	if sheet.Answers == nil {
		sheet.Answers = make(map[string]string)
	}
	if sheet.Name == "" {
		sheet.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	sheet.Source = path

	return sheet, nil
}

// ParseAnswerFlags turns "G1=yes" pairs into an answer map
func ParseAnswerFlags(pairs []string) (map[string]string, error) {
	answers := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		id, value, ok := strings.Cut(pair, "=")
		id, value = strings.TrimSpace(id), strings.TrimSpace(value)
		if !ok || id == "" || value == "" {
			return nil, fmt.Errorf("%w: %q (want FACT=ANSWER)", ErrInvalidAnswer, pair)
		}
		answers[id] = value
	}
	return answers, nil
}

// InitialFacts converts a sheet into the engine's initial certainties.
//
// Word answers scale the fact's cf (yes = cf, unsure = cf * unsureFactor,
// no = 0); numeric answers are used as given. Questions the sheet leaves
// out take cfg.DefaultAnswer, or stay absent when it is empty. Answers for
// facts the rule base does not define are kept, words scaled against cf 1.
func InitialFacts(rb *model.RuleBase, sheet *model.AnswerSheet, cfg model.DiagnosisConfig) (map[string]float64, error) {
	var fallback *model.Answer
	if cfg.DefaultAnswer != "" {
		a, err := model.ParseAnswer(cfg.DefaultAnswer)
		if err != nil {
			return nil, fmt.Errorf("default answer: %w", err)
		}
		fallback = &a
	}

	var answers map[string]string
	if sheet != nil {
		answers = sheet.Answers
	}

	facts := make(map[string]float64, len(rb.Facts)+len(answers))
	for _, q := range rb.Questions() {
		raw, ok := answers[q.ID]
		if !ok {
			if fallback != nil {
				facts[q.ID] = fallback.Certainty(q.Certainty, cfg.UnsureFactor)
			}
			continue
		}
		cf, err := answerCertainty(raw, q.Certainty, cfg.UnsureFactor)
		if err != nil {
			return nil, fmt.Errorf("fact %s: %w", q.ID, err)
		}
		facts[q.ID] = cf
	}

	extra := make([]string, 0)
	for id := range answers {
		if _, known := rb.Facts[id]; !known {
			extra = append(extra, id)
		}
	}
	sort.Strings(extra)
	for _, id := range extra {
		cf, err := answerCertainty(answers[id], 1, cfg.UnsureFactor)
		if err != nil {
			return nil, fmt.Errorf("fact %s: %w", id, err)
		}
		facts[id] = cf
	}

	return facts, nil
}

func answerCertainty(raw string, maxCF, unsureFactor float64) (float64, error) {
	if v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64); err == nil {
		if math.IsNaN(v) || v < -1 || v > 1 {
			return 0, fmt.Errorf("%w: certainty %s outside [-1, 1]", ErrInvalidAnswer, raw)
		}
		return v, nil
	}

	a, err := model.ParseAnswer(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidAnswer, err)
	}
	return a.Certainty(maxCF, unsureFactor), nil
}
