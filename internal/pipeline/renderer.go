package pipeline

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/ppiankov/ricedx/internal/model"
)

// NoDiseaseMessage is shown when no conclusion was reached
const NoDiseaseMessage = "No disease detected"

// DefaultSummaryTop is how many results the terminal summary lists
const DefaultSummaryTop = 3

// Renderer writes reports as JSON, Markdown, HTML or a terminal summary
type Renderer struct {
	includeFooter bool
	includeTrace  bool
	top           int
}

// NewRenderer creates a renderer
func NewRenderer(includeFooter, includeTrace bool) *Renderer {
	return &Renderer{
		includeFooter: includeFooter,
		includeTrace:  includeTrace,
		top:           DefaultSummaryTop,
	}
}

// SetSummaryTop changes how many results RenderSummary lists; n <= 0 lists all
func (r *Renderer) SetSummaryTop(n int) {
	r.top = n
}

// FormatPercent renders a certainty as a percentage with one decimal
func FormatPercent(cf float64) string {
	return fmt.Sprintf("%.1f%%", cf*100)
}

// RenderJSON writes report to path as indented JSON
func (r *Renderer) RenderJSON(report *model.Report, path string) error {
	return writeFile(path, func(w io.Writer) error { return r.WriteJSON(w, report) })
}

// RenderMarkdown writes report to path as Markdown
func (r *Renderer) RenderMarkdown(report *model.Report, path string) error {
	return writeFile(path, func(w io.Writer) error { return r.WriteMarkdown(w, report) })
}

// RenderHTML writes report to path as a standalone HTML page
func (r *Renderer) RenderHTML(report *model.Report, path string) error {
	return writeFile(path, func(w io.Writer) error { return r.WriteHTML(w, report) })
}

// WriteJSON encodes report. Firings are dropped unless tracing is enabled.
func (r *Renderer) WriteJSON(w io.Writer, report *model.Report) error {
	out := *report
	if !r.includeTrace {
		out.Firings = nil
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(&out)
}

var markdownTemplate = template.Must(template.New("report.md").Funcs(template.FuncMap{
	"percent": FormatPercent,
	"cell":    markdownCell,
	"join":    strings.Join,
	"cf":      formatCF,
	"cfs":     formatCFs,
}).Parse(`# Diagnosis: {{cell .Report.Subject}}

- **Run:** ` + "`{{.Report.RunID}}`" + `
{{- if .Report.Sheet}}
- **Answer sheet:** {{cell .Report.Sheet}}
{{- end}}
- **Rules:** {{cell .Report.RulesSource}}
- **Generated:** {{.Report.GeneratedAt.Format "2006-01-02 15:04:05 MST"}}
- **Engine:** {{.Report.Engine}} ({{.Report.Passes}} passes)
{{- with .Report.Assessment}}
- **Confidence:** {{.Confidence}}
{{- end}}

## Results
{{if .Report.Results}}
| Rank | Conclusion | Certainty | Rule | Note |
|---:|---|---:|---|---|
{{- range .Report.Results}}
| {{.Rank}} | {{cell .Label}} (` + "`{{.ID}}`" + `) | {{percent .Certainty}} | {{.RuleID}} | {{cell .Note}} |
{{- end}}
{{else}}
**{{.NoDisease}}.**
{{end}}
{{with .Report.Assessment -}}
## Assessment
{{range .Signals}}
- **{{.Severity}}** ` + "`{{.Type}}`" + `: {{cell .Description}}
{{- end}}

{{end -}}
{{with .Report.LLM -}}
## Narrative ({{.Provider}}{{if .Model}}, {{.Model}}{{end}})

_Model-written summary of the results above. It does not change them._

{{.SummaryMD}}
{{- range .Warnings}}

> {{.}}
{{- end}}

{{end -}}
## Initial facts

| Fact | Certainty |
|---|---:|
{{- range $id, $cf := .Report.Facts}}
| {{$id}} | {{cf $cf}} |
{{- end}}
{{if .Trace}}
## Inference trace
{{if .Report.Firings}}
| Pass | Rule | If | Values | Parallel | Rule CF | Sequential | Then | Result |
|---:|---|---|---|---:|---:|---:|---|---:|
{{- range .Report.Firings}}
| {{.Pass}} | {{.RuleID}} | {{join .Antecedents ", "}} | {{cfs .AntecedentValues}} | {{cf .ParallelCF}} | {{cf .RuleCF}} | {{cf .SequentialCF}} | {{.Consequent}} | {{cf .Combined}} |
{{- end}}
{{else}}
No rule fired.
{{end}}
{{- end}}
{{- if .Footer}}
---

_Generated by ricedx. Certainty factors express strength of belief, not probability; confirm with a field inspection before treatment._
{{end}}`))

// WriteMarkdown renders report as Markdown
func (r *Renderer) WriteMarkdown(w io.Writer, report *model.Report) error {
	return markdownTemplate.Execute(w, struct {
		Report    *model.Report
		Trace     bool
		Footer    bool
		NoDisease string
	}{report, r.includeTrace, r.includeFooter, NoDiseaseMessage})
}

// RenderSummary prints a short human-readable result list
func (r *Renderer) RenderSummary(w io.Writer, report *model.Report) {
	title := report.Subject
	if report.Sheet != "" {
		title += " / " + report.Sheet
	}
	_, _ = fmt.Fprintf(w, "\n%s\n%s\n", title, strings.Repeat("=", len(title)))

	if !report.Detected() {
		_, _ = fmt.Fprintf(w, "%s\n", NoDiseaseMessage)
		return
	}

	shown := report.Results
	if r.top > 0 && len(shown) > r.top {
		shown = shown[:r.top]
	}
	width := 0
	for _, res := range shown {
		if len(res.Label) > width {
			width = len(res.Label)
		}
	}
	for _, res := range shown {
		_, _ = fmt.Fprintf(w, "%2d. %-*s %7s  [%s]\n", res.Rank, width, res.Label, FormatPercent(res.Certainty), res.RuleID)
		if res.Note != "" {
			_, _ = fmt.Fprintf(w, "    %s\n", res.Note)
		}
	}
	if hidden := len(report.Results) - len(shown); hidden > 0 {
		_, _ = fmt.Fprintf(w, "    (+%d more)\n", hidden)
	}

	if a := report.Assessment; a != nil {
		_, _ = fmt.Fprintf(w, "\nConfidence: %s\n", a.Confidence)
		for _, sig := range a.Signals {
			if sig.Severity != model.SeverityInfo {
				_, _ = fmt.Fprintf(w, "  ! %s\n", sig.Description)
			}
		}
	}

	if n := report.LLM; n != nil && n.SummaryMD != "" {
		_, _ = fmt.Fprintf(w, "\nNarrative (%s):\n%s\n", n.Provider, n.SummaryMD)
	}

	if r.includeTrace && len(report.Firings) > 0 {
		_, _ = fmt.Fprintf(w, "\nTrace:\n")
		for _, f := range report.Firings {
			_, _ = fmt.Fprintf(w, "  pass %d  %-6s %s -> %s  min=%s x %s = %s  => %s\n",
				f.Pass, f.RuleID, strings.Join(f.Antecedents, "+"), f.Consequent,
				formatCF(f.ParallelCF), formatCF(f.RuleCF), formatCF(f.SequentialCF), formatCF(f.Combined))
		}
	}
}

func markdownCell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.Join(strings.Fields(s), " ")
}

func formatCF(v float64) string {
	return fmt.Sprintf("%.4g", v)
}

func formatCFs(vs []float64) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = formatCF(v)
	}
	return strings.Join(parts, ", ")
}

func writeFile(path string, write func(io.Writer) error) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	if err := write(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
