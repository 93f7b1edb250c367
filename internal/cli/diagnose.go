package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ppiankov/ricedx/internal/cache"
	"github.com/ppiankov/ricedx/internal/loader"
	"github.com/ppiankov/ricedx/internal/model"
	"github.com/ppiankov/ricedx/internal/pipeline"
)

var (
	answersFile string
	answerPairs []string
	interactive bool
	jsonOut     string
	mdOut       string
	htmlOut     string
	withTrace   bool
	noFooter    bool
	insecureTLS bool
	summaryTop  int
	timeout     time.Duration
	useLLM      bool
	llmProvider string
	llmModel    string
	llmBaseURL  string
)

// diagnoseCmd represents the diagnose command
var diagnoseCmd = &cobra.Command{
	Use:   "diagnose",
	Short: "Diagnose a plot from symptom answers",
	Long: `Diagnose runs the certainty-factor engine over one set of answers:
- Load the rule base (local file or http(s) URL, JSON or YAML)
- Turn answers into initial fact certainties
- Forward-chain rules until nothing changes
- Rank every concluded disease by certainty

Answers come from an answer sheet (--answers), individual --answer flags
(which override the sheet), or an interactive questionnaire (-i).
Questions left unanswered take diagnosis.default_answer from the config.

Example:
  ricedx diagnose --rules rules/rice.json --answers plot-7.yaml
  ricedx diagnose -r rules/rice.json --answer G1=yes --answer G4=unsure --trace
  ricedx diagnose -r rules/rice.json -i --md report.md
  OPENAI_API_KEY=... ricedx diagnose -r rules/rice.json -a plot-7.yaml --llm

--llm adds a model-written narrative after ranking. It never changes
results or certainties, and a failed narrative only logs a warning.`,
	Args: cobra.NoArgs,
	RunE: runDiagnose,
}

func init() {
	rootCmd.AddCommand(diagnoseCmd)

	diagnoseCmd.Flags().StringVarP(&answersFile, "answers", "a", "", "answer sheet (YAML or JSON)")
	diagnoseCmd.Flags().StringArrayVar(&answerPairs, "answer", nil, "single answer FACT=ANSWER (repeatable; yes, unsure, no or a certainty)")
	diagnoseCmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "ask every question on the terminal")
	diagnoseCmd.Flags().StringVar(&jsonOut, "json", "", "write JSON report to path")
	diagnoseCmd.Flags().StringVar(&mdOut, "md", "", "write Markdown report to path")
	diagnoseCmd.Flags().StringVar(&htmlOut, "html", "", "write HTML report to path")
	diagnoseCmd.Flags().BoolVar(&withTrace, "trace", false, "include the rule firing trace")
	diagnoseCmd.Flags().BoolVar(&noFooter, "no-footer", false, "disable footer in Markdown and HTML reports")
	diagnoseCmd.Flags().BoolVar(&insecureTLS, "insecure", false, "skip TLS certificate verification for remote rule bases")
	diagnoseCmd.Flags().IntVar(&summaryTop, "top", pipeline.DefaultSummaryTop, "number of diseases in the terminal summary (0 for all)")
	diagnoseCmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "overall timeout")
	diagnoseCmd.Flags().BoolVar(&useLLM, "llm", false, "add an LLM-written narrative (requires OPENAI_API_KEY)")
	diagnoseCmd.Flags().StringVar(&llmProvider, "llm-provider", "openai", "LLM provider: openai")
	diagnoseCmd.Flags().StringVar(&llmModel, "llm-model", "", "LLM model (default from config: gpt-4o-mini)")
	diagnoseCmd.Flags().StringVar(&llmBaseURL, "llm-base-url", "", "OpenAI-compatible API base URL")
}

func runDiagnose(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}

	p := newPipeline(cfg, logger)

	rb, err := p.RuleBase(ctx)
	if err != nil {
		return err
	}

	sheet := &model.AnswerSheet{Answers: make(map[string]string)}
	if answersFile != "" {
		sheet, err = pipeline.ReadAnswerSheet(answersFile)
		if err != nil {
			return err
		}
	}
	overrides, err := pipeline.ParseAnswerFlags(answerPairs)
	if err != nil {
		return err
	}
	for id, value := range overrides {
		sheet.Answers[id] = value
	}
	if interactive {
		if err := askQuestions(cmd.InOrStdin(), cmd.ErrOrStderr(), rb, sheet); err != nil {
			return err
		}
	}

	report, err := p.Diagnose(ctx, sheet)
	if err != nil {
		return err
	}

	if err := p.RenderReport(report, pipeline.Outputs{JSON: jsonOut, Markdown: mdOut, HTML: htmlOut}); err != nil {
		return err
	}

	renderer := p.Renderer()
	renderer.SetSummaryTop(summaryTop)
	renderer.RenderSummary(cmd.OutOrStdout(), report)

	return nil
}

// setup resolves config, applies command flags and builds the logger
func setup(cmd *cobra.Command) (*model.Config, zerolog.Logger, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, zerolog.Nop(), err
	}

	if withTrace {
		cfg.Output.IncludeTrace = true
	}
	if noFooter {
		cfg.Output.IncludeFooter = false
	}
	if insecureTLS {
		cfg.HTTP.InsecureTLS = true
	}
	if useLLM {
		cfg.LLM.Provider = llmProvider
		if llmModel != "" {
			cfg.LLM.Model = llmModel
		}
		if llmBaseURL != "" {
			cfg.LLM.BaseURL = llmBaseURL
		}
	}

	logger, err := newLogger(cfg.Logging, cmd.ErrOrStderr())
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	return cfg, logger, nil
}

func newLoader(cfg *model.Config, logger zerolog.Logger) *loader.Loader {
	return loader.New(cfg, cache.New(cfg.Cache, logger), logger)
}

func newPipeline(cfg *model.Config, logger zerolog.Logger) *pipeline.Pipeline {
	return pipeline.NewPipeline(cfg, newLoader(cfg, logger), logger)
}

// askQuestions prompts for every question the sheet has not answered yet.
// An empty reply leaves the question to the configured default answer.
func askQuestions(in io.Reader, out io.Writer, rb *model.RuleBase, sheet *model.AnswerSheet) error {
	scanner := bufio.NewScanner(in)
	for _, q := range rb.Questions() {
		if _, done := sheet.Answers[q.ID]; done {
			continue
		}
		for {
			_, _ = fmt.Fprintf(out, "%s %s [yes/unsure/no] ", q.ID, q.Question)
			if !scanner.Scan() {
				if err := scanner.Err(); err != nil {
					return fmt.Errorf("read answer: %w", err)
				}
				_, _ = fmt.Fprintln(out)
				return nil
			}
			reply := strings.TrimSpace(scanner.Text())
			if reply == "" {
				break
			}
			if _, err := model.ParseAnswer(reply); err != nil {
				_, _ = fmt.Fprintf(out, "  %v\n", err)
				continue
			}
			sheet.Answers[q.ID] = reply
			break
		}
	}
	return nil
}
