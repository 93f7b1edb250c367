package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/ricedx/internal/model"
	"github.com/ppiankov/ricedx/internal/validate"
)

var (
	strictRules    bool
	rulesJSON      bool
	sheetTemplate  bool
	templateAnswer string
)

// rulesCmd represents the rules command
var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect and validate rule bases",
}

var rulesValidateCmd = &cobra.Command{
	Use:   "validate [source]",
	Short: "Check a rule base for structural problems",
	Long: `Validate loads a rule base and reports every structural issue:
errors (missing ids, duplicate ids, certainties outside [-1, 1]) reject the
rule base; warnings and info (unreachable antecedents, missing labels,
circular chains) do not, unless --strict is given.

The source defaults to --rules or rules.source from the config.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRulesValidate,
}

var rulesQuestionsCmd = &cobra.Command{
	Use:   "questions [source]",
	Short: "Print the symptom questionnaire",
	Long: `Questions prints every user-answerable fact in rule base order.

With --template the output is an answer sheet skeleton ready to fill in
and pass to 'ricedx diagnose --answers'.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRulesQuestions,
}

func init() {
	rootCmd.AddCommand(rulesCmd)
	rulesCmd.AddCommand(rulesValidateCmd)
	rulesCmd.AddCommand(rulesQuestionsCmd)

	rulesValidateCmd.Flags().BoolVar(&strictRules, "strict", false, "treat warnings as errors")
	rulesValidateCmd.Flags().BoolVar(&rulesJSON, "json", false, "print issues as JSON")
	rulesQuestionsCmd.Flags().BoolVar(&sheetTemplate, "template", false, "print a YAML answer sheet skeleton")
	rulesQuestionsCmd.Flags().StringVar(&templateAnswer, "default", "unsure", "answer pre-filled in the template")
}

func ruleSource(cfg *model.Config, args []string) string {
	if len(args) == 1 {
		return args[0]
	}
	return cfg.Rules.Source
}

func runRulesValidate(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	source := ruleSource(cfg, args)

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.HTTP.Timeout+5*time.Second)
	defer cancel()

	rules := newLoader(cfg, logger)
	rb, result, err := rules.Check(ctx, source)
	if err != nil {
		return err
	}
	if strictRules {
		result = (&validate.Validator{StrictWarnings: true}).Validate(rb)
	}

	out := cmd.OutOrStdout()
	if rulesJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return fmt.Errorf("encode issues: %w", err)
		}
	} else {
		printValidation(out, source, rb, result)
	}

	return result.Err()
}

func printValidation(w io.Writer, source string, rb *model.RuleBase, result *validate.Result) {
	_, _ = fmt.Fprintf(w, "%s: %d facts, %d rules, %d conclusions\n",
		source, len(rb.Facts), len(rb.Rules), len(rb.Conclusions()))
	for _, issue := range result.Issues {
		_, _ = fmt.Fprintf(w, "  %s\n", issue)
	}
	_, _ = fmt.Fprintf(w, "%d errors, %d warnings, %d info\n",
		result.Count(validate.SeverityError), result.Count(validate.SeverityWarning), result.Count(validate.SeverityInfo))
}

func runRulesQuestions(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	source := ruleSource(cfg, args)

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.HTTP.Timeout+5*time.Second)
	defer cancel()

	rb, err := newLoader(cfg, logger).Load(ctx, source)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if sheetTemplate {
		if _, err := model.ParseAnswer(templateAnswer); err != nil {
			return err
		}
		return writeSheetTemplate(out, rb, templateAnswer)
	}

	for _, q := range rb.Questions() {
		_, _ = fmt.Fprintf(out, "%-6s cf=%-5s %s\n", q.ID, fmt.Sprintf("%.2g", q.Certainty), q.Question)
	}
	return nil
}

// writeSheetTemplate prints an answer sheet with every question pre-filled
// and the question text as a line comment
func writeSheetTemplate(w io.Writer, rb *model.RuleBase, answer string) error {
	answers := &yaml.Node{Kind: yaml.MappingNode}
	for _, q := range rb.Questions() {
		answers.Content = append(answers.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: q.ID, LineComment: q.Question},
			&yaml.Node{Kind: yaml.ScalarNode, Value: answer},
		)
	}
	doc := &yaml.Node{Kind: yaml.MappingNode, Content: []*yaml.Node{
		{Kind: yaml.ScalarNode, Value: "name"},
		{Kind: yaml.ScalarNode, Value: "plot"},
		{Kind: yaml.ScalarNode, Value: "answers"},
		answers,
	}}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode template: %w", err)
	}
	return enc.Close()
}
