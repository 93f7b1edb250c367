package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ppiankov/ricedx/internal/model"
)

// Provider defines the interface for LLM providers
type Provider interface {
	// Name returns the provider name
	Name() string

	// Summarize writes a narrative for a finished report
	Summarize(ctx context.Context, req SummarizeRequest) (*SummarizeResponse, error)
}

// SummarizeRequest contains the input for LLM summarization
type SummarizeRequest struct {
	// Report is the finished diagnosis report
	Report model.Report

	// Excluded lists labels and identifiers of diseases the rule base knows
	// but the report did not conclude. Strict mode rejects narratives naming them.
	Excluded []string

	// Prompt is an optional custom prompt (if empty, use default)
	Prompt string

	// Model is the specific model to use (provider-specific)
	Model string

	// MaxTokens limits the response length
	MaxTokens int
}

// SummarizeResponse contains the LLM's summary output
type SummarizeResponse struct {
	Summary    string
	Model      string
	TokensUsed int
}

// Config holds LLM provider configuration
type Config struct {
	// Provider name: "openai" or "" (disabled)
	Provider string

	// Model name (provider-specific)
	Model string

	APIKey string

	// BaseURL for OpenAI-compatible endpoints
	BaseURL string

	Timeout time.Duration

	// Strict rejects narratives that name unconcluded diseases
	Strict bool

	MaxTokens int
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Provider:  "", // Disabled by default
		Timeout:   30 * time.Second,
		Strict:    true,
		MaxTokens: 600,
	}
}

// ConfigFromModel converts model.LLMConfig to llm.Config
func ConfigFromModel(c model.LLMConfig) Config {
	return Config{
		Provider:  c.Provider,
		Model:     c.Model,
		APIKey:    c.APIKey,
		BaseURL:   c.BaseURL,
		Timeout:   c.Timeout,
		Strict:    c.Strict,
		MaxTokens: c.MaxTokens,
	}
}

const maxPromptResults = 5

// BuildPrompt constructs the default prompt from a report's results and firings
func BuildPrompt(report model.Report) string {
	var b strings.Builder

	b.WriteString(`You are summarizing a ricedx diagnosis report. ricedx ranks rice diseases by
certainty factor: a strength of belief in [-1, 1] computed by forward-chaining
rules over symptom answers. A certainty factor is NOT a probability.

RULES:
1. Only discuss the concluded diseases listed under Results.
2. Do not name any other disease, pest or cause.
3. Never report a certainty higher than the one given, and never call it a probability.
4. If no disease was concluded, say so and recommend a field inspection.
5. Do not cite URLs or outside sources.

`)

	fmt.Fprintf(&b, "Report Summary:\n- Subject: %s\n", report.Subject)
	if report.Sheet != "" {
		fmt.Fprintf(&b, "- Answer sheet: %s\n", report.Sheet)
	}
	fmt.Fprintf(&b, "- Facts answered: %d\n- Rule firings: %d over %d passes\n", len(report.Facts), len(report.Firings), report.Passes)
	if a := report.Assessment; a != nil {
		fmt.Fprintf(&b, "- Confidence: %s (answer coverage %.0f%%)\n", a.Confidence, a.Coverage*100)
	}

	b.WriteString("\nResults:\n")
	if len(report.Results) == 0 {
		b.WriteString("(No disease concluded)\n")
	}
	for i, r := range report.Results {
		if i >= maxPromptResults {
			fmt.Fprintf(&b, "... and %d more with lower certainty\n", len(report.Results)-maxPromptResults)
			break
		}
		fmt.Fprintf(&b, "%d. %s (%s): certainty %.1f%%", r.Rank, r.Label, r.ID, r.Percent())
		if r.RuleID != "" {
			fmt.Fprintf(&b, " via rule %s", r.RuleID)
		}
		if r.Note != "" {
			fmt.Fprintf(&b, " (%s)", r.Note)
		}
		b.WriteString("\n")
	}

	if chain := firingsFor(report, maxPromptResults); len(chain) > 0 {
		b.WriteString("\nRule firings behind the results:\n")
		for _, f := range chain {
			fmt.Fprintf(&b, "- %s (pass %d): %s -> %s, rule cf %.2f, combined %.3f\n",
				f.RuleID, f.Pass, strings.Join(f.Antecedents, " AND "), f.Consequent, f.RuleCF, f.Combined)
		}
	}

	if a := report.Assessment; a != nil && len(a.Signals) > 0 {
		b.WriteString("\nKey Signals:\n")
		for _, s := range a.Signals {
			fmt.Fprintf(&b, "- %s (%s): %s\n", s.Type, s.Severity, s.Description)
		}
	}

	b.WriteString("\nProvide a 3-4 sentence summary for a field extension officer, describing what the answers point to and how firm that is.")

	return b.String()
}

// firingsFor returns the firings concluding one of the first n results, in firing order
func firingsFor(report model.Report, n int) []model.FiringRecord {
	wanted := make(map[string]bool)
	for i, r := range report.Results {
		if i >= n {
			break
		}
		wanted[r.ID] = true
	}

	var out []model.FiringRecord
	for _, f := range report.Firings {
		if wanted[f.Consequent] {
			out = append(out, f)
		}
	}
	return out
}
