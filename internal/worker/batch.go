package worker

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ppiankov/ricedx/internal/model"
)

// Diagnoser runs one diagnosis from an answer sheet file
type Diagnoser interface {
	DiagnoseFile(ctx context.Context, sheetPath string) (*model.Report, error)
}

// DiagnoseJob diagnoses a single answer sheet
type DiagnoseJob struct {
	Path      string
	Diagnoser Diagnoser
}

// Execute runs the diagnosis
func (j *DiagnoseJob) Execute(ctx context.Context) Result {
	report, err := j.Diagnoser.DiagnoseFile(ctx, j.Path)
	return &SheetResult{Path: j.Path, Report: report, Error: err}
}

// SheetResult is the outcome for one answer sheet
type SheetResult struct {
	Path   string
	Report *model.Report
	Error  error
}

// GetError returns the diagnosis error, if any
func (r *SheetResult) GetError() error {
	return r.Error
}

// Summary counts batch outcomes
type Summary struct {
	Total    int
	Failed   int
	Detected int // Sheets with at least one conclusion
}

// Summarize tallies results
func Summarize(results []*SheetResult) Summary {
	s := Summary{Total: len(results)}
	for _, r := range results {
		switch {
		case r.Error != nil:
			s.Failed++
		case r.Report != nil && r.Report.Detected():
			s.Detected++
		}
	}
	return s
}

// BatchProcessor diagnoses many answer sheets against one shared rule base
type BatchProcessor struct {
	diagnoser   Diagnoser
	concurrency int
	logger      zerolog.Logger
}

// NewBatchProcessor creates a batch processor
func NewBatchProcessor(diagnoser Diagnoser, concurrency int, logger zerolog.Logger) *BatchProcessor {
	return &BatchProcessor{
		diagnoser:   diagnoser,
		concurrency: concurrency,
		logger:      logger,
	}
}

// ProcessSheets diagnoses every sheet; results follow the order of paths
func (b *BatchProcessor) ProcessSheets(ctx context.Context, paths []string) []*SheetResult {
	if len(paths) == 0 {
		return []*SheetResult{}
	}

	pool := NewPool(ctx, b.concurrency)
	pool.Start()

	for _, p := range paths {
		pool.Submit(&DiagnoseJob{Path: p, Diagnoser: b.diagnoser})
	}

	byPath := make(map[string]*SheetResult, len(paths))
	for _, r := range pool.Wait() {
		sr := r.(*SheetResult)
		byPath[sr.Path] = sr
	}

	out := make([]*SheetResult, len(paths))
	for i, p := range paths {
		sr, ok := byPath[p]
		if !ok {
			err := ctx.Err()
			if err == nil {
				err = fmt.Errorf("not processed")
			}
			sr = &SheetResult{Path: p, Error: err}
		}
		if sr.Error != nil {
			b.logger.Warn().Str("sheet", p).Err(sr.Error).Msg("diagnosis failed")
		} else {
			b.logger.Debug().Str("sheet", p).Int("results", len(sr.Report.Results)).Msg("diagnosis complete")
		}
		out[i] = sr
	}

	return out
}

// ProcessFile reads a sheet list and diagnoses every entry
func (b *BatchProcessor) ProcessFile(ctx context.Context, listPath string) ([]*SheetResult, error) {
	paths, err := ReadSheetPaths(listPath)
	if err != nil {
		return nil, fmt.Errorf("read sheet list: %w", err)
	}
	return b.ProcessSheets(ctx, paths), nil
}

// ReadSheetPaths reads answer sheet paths, one per line. Blank lines and
// '#' comments are skipped, duplicates dropped, and relative paths resolved
// against the list file's directory.
func ReadSheetPaths(listPath string) ([]string, error) {
	file, err := os.Open(listPath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	base := filepath.Dir(listPath)
	var paths []string
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if !filepath.IsAbs(line) {
			line = filepath.Join(base, line)
		}
		line = filepath.Clean(line)

		if !seen[line] {
			seen[line] = true
			paths = append(paths, line)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}

	return paths, nil
}
