package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/ricedx/internal/pipeline"
	"github.com/ppiankov/ricedx/internal/worker"
)

var (
	concurrency  int
	outputDir    string
	batchTimeout time.Duration
	batchHTML    bool
	// withTrace, noFooter and insecureTLS are defined in diagnose.go and shared here
)

// batchCmd represents the batch command
var batchCmd = &cobra.Command{
	Use:   "batch <file>",
	Short: "Diagnose many answer sheets in parallel",
	Long: `Batch diagnoses many answer sheets against one rule base:
- Read answer sheet paths from the input file (one per line, # comments)
- Load the rule base once and share it between workers
- Diagnose sheets in parallel with a configurable worker count
- Write a JSON and Markdown report for each sheet

Example:
  ricedx batch sheets.txt --rules rules/rice.json
  ricedx batch sheets.txt --concurrency 8 --output-dir ./reports --html`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().IntVar(&concurrency, "concurrency", 0, "number of concurrent workers (0 uses concurrency.workers from config)")
	batchCmd.Flags().StringVar(&outputDir, "output-dir", "./ricedx-reports", "output directory for reports")
	batchCmd.Flags().DurationVar(&batchTimeout, "timeout", 10*time.Minute, "total timeout for batch processing")
	batchCmd.Flags().BoolVar(&batchHTML, "html", false, "also write an HTML report per sheet")
	batchCmd.Flags().BoolVar(&withTrace, "trace", false, "include the rule firing trace")
	batchCmd.Flags().BoolVar(&noFooter, "no-footer", false, "disable footer in Markdown and HTML reports")
	batchCmd.Flags().BoolVar(&insecureTLS, "insecure", false, "skip TLS certificate verification for remote rule bases")
}

func runBatch(cmd *cobra.Command, args []string) error {
	file := args[0]
	ctx, cancel := context.WithTimeout(cmd.Context(), batchTimeout)
	defer cancel()

	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	if concurrency > 0 {
		cfg.Concurrency.Workers = concurrency
	}
	workers := cfg.Concurrency.Workers
	stderr := cmd.ErrOrStderr()

	_, _ = fmt.Fprintf(stderr, "\n")
	_, _ = fmt.Fprintf(stderr, "═══════════════════════════════════════════════════════════\n")
	_, _ = fmt.Fprintf(stderr, "  ricedx Batch Diagnosis\n")
	_, _ = fmt.Fprintf(stderr, "═══════════════════════════════════════════════════════════\n")
	_, _ = fmt.Fprintf(stderr, "\n")
	_, _ = fmt.Fprintf(stderr, "  Input file:   %s\n", file)
	_, _ = fmt.Fprintf(stderr, "  Rule base:    %s\n", cfg.Rules.Source)
	_, _ = fmt.Fprintf(stderr, "  Workers:      %d\n", workers)
	_, _ = fmt.Fprintf(stderr, "  Output dir:   %s\n", outputDir)
	_, _ = fmt.Fprintf(stderr, "  Timeout:      %v\n", batchTimeout)
	_, _ = fmt.Fprintf(stderr, "\n")

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	p := newPipeline(cfg, logger)

	// Fail fast: every sheet needs the same rule base
	if _, err := p.RuleBase(ctx); err != nil {
		return err
	}

	processor := worker.NewBatchProcessor(p, workers, logger)
	results, err := processor.ProcessFile(ctx, file)
	if err != nil {
		return fmt.Errorf("process file: %w", err)
	}

	written := make(map[string]int)
	for _, result := range results {
		if result.Error != nil {
			_, _ = fmt.Fprintf(stderr, "✗ %s: %v\n", result.Path, result.Error)
			continue
		}

		slug := uniqueSlug(written, sanitizeFilename(result.Report.Sheet))
		out := pipeline.Outputs{
			JSON:     filepath.Join(outputDir, slug+".json"),
			Markdown: filepath.Join(outputDir, slug+".md"),
		}
		if batchHTML {
			out.HTML = filepath.Join(outputDir, slug+".html")
		}
		if err := p.RenderReport(result.Report, out); err != nil {
			result.Error = err
			_, _ = fmt.Fprintf(stderr, "✗ %s: %v\n", result.Path, err)
			continue
		}

		verdict := pipeline.NoDiseaseMessage
		if top, ok := result.Report.Top(); ok {
			verdict = fmt.Sprintf("%s %s", top.Label, pipeline.FormatPercent(top.Certainty))
		}
		_, _ = fmt.Fprintf(stderr, "✓ %s: %s\n", result.Report.Sheet, verdict)
	}

	summary := worker.Summarize(results)

	_, _ = fmt.Fprintf(stderr, "\n")
	_, _ = fmt.Fprintf(stderr, "═══════════════════════════════════════════════════════════\n")
	_, _ = fmt.Fprintf(stderr, "  Batch Complete\n")
	_, _ = fmt.Fprintf(stderr, "═══════════════════════════════════════════════════════════\n")
	_, _ = fmt.Fprintf(stderr, "\n")
	_, _ = fmt.Fprintf(stderr, "  Total:     %d sheets\n", summary.Total)
	_, _ = fmt.Fprintf(stderr, "  Detected:  %d\n", summary.Detected)
	_, _ = fmt.Fprintf(stderr, "  Failures:  %d\n", summary.Failed)
	_, _ = fmt.Fprintf(stderr, "  Output:    %s\n", outputDir)
	_, _ = fmt.Fprintf(stderr, "\n")

	if summary.Failed > 0 {
		return fmt.Errorf("%d of %d sheets failed", summary.Failed, summary.Total)
	}
	return nil
}

var filenameReplacer = strings.NewReplacer(
	"/", "_",
	"\\", "_",
	":", "_",
	"*", "_",
	"?", "_",
	"\"", "_",
	"<", "_",
	">", "_",
	"|", "_",
	" ", "-",
)

// sanitizeFilename sanitizes a string for use as a filename
func sanitizeFilename(s string) string {
	s = filenameReplacer.Replace(strings.TrimSpace(s))
	s = strings.Trim(s, ".")
	if s == "" {
		s = "sheet"
	}

	// Limit length
	if len(s) > 100 {
		s = s[:100]
	}

	return s
}

// uniqueSlug appends -2, -3, ... when two sheets share a name
func uniqueSlug(seen map[string]int, slug string) string {
	seen[slug]++
	if n := seen[slug]; n > 1 {
		return fmt.Sprintf("%s-%d", slug, n)
	}
	return slug
}
