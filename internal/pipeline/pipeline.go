package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ppiankov/ricedx/internal/engine"
	"github.com/ppiankov/ricedx/internal/llm"
	"github.com/ppiankov/ricedx/internal/model"
	"github.com/ppiankov/ricedx/internal/score"
)

// RuleSource provides the shared rule base
type RuleSource interface {
	Load(ctx context.Context, source string) (*model.RuleBase, error)
}

// Pipeline turns answer sheets into diagnosis reports
type Pipeline struct {
	rules      RuleSource
	renderer   *Renderer
	scorer     *score.Scorer
	summarizer *llm.Summarizer // nil unless a narrative provider is configured
	config     *model.Config
	logger     zerolog.Logger
	now        func() time.Time
}

// NewPipeline creates a pipeline reading its rule base from rules
func NewPipeline(cfg *model.Config, rules RuleSource, logger zerolog.Logger) *Pipeline {
	logger = logger.With().Str("component", "pipeline").Logger()

	var summarizer *llm.Summarizer
	if cfg.LLM.Provider != "" {
		s, err := llm.NewSummarizer(llm.ConfigFromModel(cfg.LLM))
		if err != nil {
			logger.Warn().Err(err).Msg("LLM narrative disabled")
		} else {
			summarizer = s
		}
	}

	return &Pipeline{
		rules:      rules,
		renderer:   NewRenderer(cfg.Output.IncludeFooter, cfg.Output.IncludeTrace),
		scorer:     score.NewScorer(),
		summarizer: summarizer,
		config:     cfg,
		logger:     logger,
		now:        time.Now,
	}
}

// RuleBase loads the configured rule base
func (p *Pipeline) RuleBase(ctx context.Context) (*model.RuleBase, error) {
	return p.rules.Load(ctx, p.config.Rules.Source)
}

// Diagnose runs one diagnosis for sheet against the configured rule base
func (p *Pipeline) Diagnose(ctx context.Context, sheet *model.AnswerSheet) (*model.Report, error) {
	// 1. Load rule base (shared, loaded once)
	rb, err := p.RuleBase(ctx)
	if err != nil {
		return nil, err
	}

	// 2. Answers to initial facts
	facts, err := InitialFacts(rb, sheet, p.config.Diagnosis)
	if err != nil {
		return nil, fmt.Errorf("answers: %w", err)
	}

	// 3. Inference
	trace, err := engine.Run(facts, rb)
	if err != nil {
		return nil, fmt.Errorf("infer: %w", err)
	}

	report := &model.Report{
		RunID:       uuid.NewString(),
		Subject:     rb.Meta.Title,
		RulesSource: p.config.Rules.Source,
		GeneratedAt: p.now().UTC(),
		Engine:      model.EngineName,
		Facts:       facts,
		Results:     trace.Results,
		Firings:     trace.Firings,
		Passes:      trace.Passes,
	}
	if report.Subject == "" {
		report.Subject = p.config.Rules.Source
	}
	if sheet != nil {
		report.Sheet = sheet.Name
	}

	// 4. Assessment (coverage, close calls, conflicting evidence)
	report.Assessment = p.scorer.Calculate(report, rb, sheet)

	event := p.logger.Debug().
		Str("run_id", report.RunID).
		Str("sheet", report.Sheet).
		Int("facts", len(facts)).
		Int("firings", len(trace.Firings)).
		Int("passes", trace.Passes)
	if top, ok := report.Top(); ok {
		event = event.Str("top", top.ID).Float64("cf", top.Certainty)
	}
	event = event.Str("confidence", report.Assessment.Confidence)
	event.Msg("diagnosis complete")

	// 5. Narrative (after results and assessment are final; never changes them)
	if p.summarizer.IsEnabled() {
		summary, err := p.summarizer.GenerateSummary(ctx, *report, rb)
		if err != nil {
			p.logger.Warn().Err(err).Str("run_id", report.RunID).Msg("LLM narrative failed")
		} else {
			report.LLM = summary
		}
	}

	return report, nil
}

// DiagnoseFile reads an answer sheet and diagnoses it
func (p *Pipeline) DiagnoseFile(ctx context.Context, sheetPath string) (*model.Report, error) {
	sheet, err := ReadAnswerSheet(sheetPath)
	if err != nil {
		return nil, err
	}
	return p.Diagnose(ctx, sheet)
}

// Outputs names the files a report is written to; empty paths are skipped
type Outputs struct {
	JSON     string
	Markdown string
	HTML     string
}

// RenderReport writes report to every requested output
func (p *Pipeline) RenderReport(report *model.Report, out Outputs) error {
	if out.JSON != "" {
		if err := p.renderer.RenderJSON(report, out.JSON); err != nil {
			return fmt.Errorf("render JSON: %w", err)
		}
		p.logger.Info().Str("path", out.JSON).Msg("wrote JSON report")
	}

	if out.Markdown != "" {
		if err := p.renderer.RenderMarkdown(report, out.Markdown); err != nil {
			return fmt.Errorf("render markdown: %w", err)
		}
		p.logger.Info().Str("path", out.Markdown).Msg("wrote Markdown report")
	}

	if out.HTML != "" {
		if err := p.renderer.RenderHTML(report, out.HTML); err != nil {
			return fmt.Errorf("render HTML: %w", err)
		}
		p.logger.Info().Str("path", out.HTML).Msg("wrote HTML report")
	}

	return nil
}

// Renderer returns the pipeline's renderer
func (p *Pipeline) Renderer() *Renderer {
	return p.renderer
}
