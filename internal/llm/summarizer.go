package llm

import (
	"context"
	"fmt"

	"github.com/ppiankov/ricedx/internal/model"
)

// Summarizer adds an optional narrative to finished reports
type Summarizer struct {
	provider Provider
	config   Config
}

// NewSummarizer creates a summarizer. A disabled config yields a summarizer
// that does nothing.
func NewSummarizer(config Config) (*Summarizer, error) {
	provider, err := NewProvider(config)
	if err != nil {
		return nil, err
	}
	return &Summarizer{provider: provider, config: config}, nil
}

// IsEnabled reports whether a provider is configured
func (s *Summarizer) IsEnabled() bool {
	return s != nil && s.provider != nil
}

// ProviderName returns the configured provider, or "" when disabled
func (s *Summarizer) ProviderName() string {
	if !s.IsEnabled() {
		return ""
	}
	return s.provider.Name()
}

// GenerateSummary writes a narrative for report. It returns nil, nil when
// disabled. rb supplies the diseases the narrative must not name.
func (s *Summarizer) GenerateSummary(ctx context.Context, report model.Report, rb *model.RuleBase) (*model.LLMSummary, error) {
	if !s.IsEnabled() {
		return nil, nil
	}

	resp, err := s.provider.Summarize(ctx, SummarizeRequest{
		Report:    report,
		Excluded:  Unconcluded(report, rb),
		Model:     s.config.Model,
		MaxTokens: s.config.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("summarize: %w", err)
	}

	summary := &model.LLMSummary{
		Enabled:    true,
		Provider:   s.provider.Name(),
		Model:      resp.Model,
		Strict:     s.config.Strict,
		SummaryMD:  resp.Summary,
		TokensUsed: resp.TokensUsed,
	}
	if !report.Detected() {
		summary.Warnings = append(summary.Warnings, "No disease was concluded; the narrative only restates that")
	}
	return summary, nil
}

// Unconcluded returns the labels and identifiers of rule base conclusions
// absent from the report's results
func Unconcluded(report model.Report, rb *model.RuleBase) []string {
	concluded := make(map[string]bool, len(report.Results))
	for _, r := range report.Results {
		concluded[r.ID] = true
	}

	var out []string
	for _, id := range rb.Conclusions() {
		if concluded[id] {
			continue
		}
		out = append(out, id)
		if label := rb.Label(id); label != id {
			out = append(out, label)
		}
	}
	return out
}
