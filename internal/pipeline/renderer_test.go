package pipeline

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"github.com/ppiankov/ricedx/internal/model"
)

func sampleReport() *model.Report {
	return &model.Report{
		RunID:       "6f1d2c3b-0000-4000-8000-000000000001",
		Subject:     "Rice leaf diseases",
		RulesSource: "rules/rice.json",
		Sheet:       "plot-7",
		GeneratedAt: time.Date(2026, 3, 1, 8, 30, 0, 0, time.UTC),
		Engine:      model.EngineName,
		Facts:       map[string]float64{"G2": 0.3, "G1": 0.8},
		Results: []model.DiagnosisResult{
			{Rank: 1, ID: "P1", Label: "Brown spot | leaf", Certainty: 0.48, Note: "Spot pattern", RuleID: "R1"},
			{Rank: 2, ID: "P2", Label: "Secondary infection", Certainty: 0.24, RuleID: "R2"},
		},
		Firings: []model.FiringRecord{
			{RuleID: "R1", Pass: 1, Antecedents: []string{"G1"}, AntecedentValues: []float64{0.8}, ParallelCF: 0.8, RuleCF: 0.6, SequentialCF: 0.48, Consequent: "P1", Combined: 0.48},
			{RuleID: "R2", Pass: 1, Antecedents: []string{"P1"}, AntecedentValues: []float64{0.48}, ParallelCF: 0.48, RuleCF: 0.5, SequentialCF: 0.24, Consequent: "P2", Combined: 0.24},
		},
		Passes: 2,
	}
}

func emptyReport() *model.Report {
	r := sampleReport()
	r.Results = []model.DiagnosisResult{}
	r.Firings = nil
	return r
}

func TestFormatPercent(t *testing.T) {
	assert.Equal(t, "48.0%", FormatPercent(0.48))
	assert.Equal(t, "83.2%", FormatPercent(0.832))
	assert.Equal(t, "-25.0%", FormatPercent(-0.25))
	assert.Equal(t, "100.0%", FormatPercent(1))
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewRenderer(true, false).WriteJSON(&buf, sampleReport()))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "plot-7", decoded["sheet"])
	assert.NotContains(t, decoded, "firings")

	results := decoded["results"].([]any)
	require.Len(t, results, 2)
	first := results[0].(map[string]any)
	assert.Equal(t, "P1", first["id"])
	assert.Equal(t, 0.48, first["cf"])
}

func TestWriteJSON_WithTrace(t *testing.T) {
	report := sampleReport()
	var buf bytes.Buffer
	require.NoError(t, NewRenderer(true, true).WriteJSON(&buf, report))

	assert.Contains(t, buf.String(), `"firings"`)
	assert.Contains(t, buf.String(), `"parallel_cf": 0.8`)
	assert.Len(t, report.Firings, 2, "rendering must not modify the report")
}

func TestWriteMarkdown(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewRenderer(true, false).WriteMarkdown(&buf, sampleReport()))
	md := buf.String()

	assert.True(t, strings.HasPrefix(md, "# Diagnosis: Rice leaf diseases\n"))
	assert.Contains(t, md, "- **Answer sheet:** plot-7")
	assert.Contains(t, md, "| 1 | Brown spot \\| leaf (`P1`) | 48.0% | R1 | Spot pattern |")
	assert.Contains(t, md, "| 2 | Secondary infection (`P2`) | 24.0% | R2 |  |")
	assert.Less(t, strings.Index(md, "| G1 | 0.8 |"), strings.Index(md, "| G2 | 0.3 |"))
	assert.NotContains(t, md, "Inference trace")
	assert.Contains(t, md, "Generated by ricedx")
}

func TestWriteMarkdown_TraceAndNoFooter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewRenderer(false, true).WriteMarkdown(&buf, sampleReport()))
	md := buf.String()

	assert.Contains(t, md, "## Inference trace")
	assert.Contains(t, md, "| 1 | R2 | P1 | 0.48 | 0.48 | 0.5 | 0.24 | P2 | 0.24 |")
	assert.NotContains(t, md, "Generated by ricedx")
}

func TestWriteMarkdown_NoDisease(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewRenderer(true, true).WriteMarkdown(&buf, emptyReport()))
	md := buf.String()

	assert.Contains(t, md, "**No disease detected.**")
	assert.NotContains(t, md, "| Rank |")
	assert.Contains(t, md, "No rule fired.")
}

func TestWriteHTML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewRenderer(true, true).WriteHTML(&buf, sampleReport()))
	out := buf.String()

	assert.True(t, strings.HasPrefix(out, "<!DOCTYPE html>"))
	assert.Contains(t, out, "<title>Diagnosis: Rice leaf diseases</title>")
	assert.Contains(t, out, "Brown spot | leaf (P1)")
	assert.Contains(t, out, `<span style="width:48.0%"></span>`)
	assert.Contains(t, out, "Inference trace")

	doc, err := html.Parse(strings.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 3, countElements(doc, "table"))
}

func TestWriteHTML_EscapesAndEmpty(t *testing.T) {
	report := emptyReport()
	report.Subject = "<script>alert(1)</script>"

	var buf bytes.Buffer
	require.NoError(t, NewRenderer(false, false).WriteHTML(&buf, report))
	out := buf.String()

	assert.NotContains(t, out, "<script>")
	assert.Contains(t, out, "&lt;script&gt;")
	assert.Contains(t, out, `<p class="empty">No disease detected</p>`)
	assert.NotContains(t, out, "<footer>")
}

func TestRenderSummary(t *testing.T) {
	report := sampleReport()
	report.Results = append(report.Results,
		model.DiagnosisResult{Rank: 3, ID: "P3", Label: "Blast", Certainty: 0.2, RuleID: "R3"},
		model.DiagnosisResult{Rank: 4, ID: "P4", Label: "Tungro", Certainty: 0.1, RuleID: "R4"},
	)

	var buf bytes.Buffer
	NewRenderer(true, false).RenderSummary(&buf, report)
	out := buf.String()

	assert.Contains(t, out, "Rice leaf diseases / plot-7")
	assert.Contains(t, out, " 1. Brown spot | leaf     48.0%  [R1]")
	assert.Contains(t, out, "    Spot pattern")
	assert.Contains(t, out, "(+1 more)")
	assert.NotContains(t, out, "Tungro")
	assert.NotContains(t, out, "Trace:")
}

func TestRenderSummary_AllAndTrace(t *testing.T) {
	r := NewRenderer(true, true)
	r.SetSummaryTop(0)

	var buf bytes.Buffer
	r.RenderSummary(&buf, sampleReport())
	out := buf.String()

	assert.NotContains(t, out, "more)")
	assert.Contains(t, out, "Trace:")
	assert.Contains(t, out, "pass 1  R1     G1 -> P1  min=0.8 x 0.6 = 0.48  => 0.48")
}

func TestRenderSummary_NoDisease(t *testing.T) {
	var buf bytes.Buffer
	NewRenderer(true, false).RenderSummary(&buf, emptyReport())
	assert.Contains(t, buf.String(), "No disease detected\n")
}

func countElements(n *html.Node, tag string) int {
	count := 0
	if n.Type == html.ElementNode && n.Data == tag {
		count++
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		count += countElements(c, tag)
	}
	return count
}

func assessedReport() *model.Report {
	r := sampleReport()
	r.Assessment = &model.Assessment{
		Confidence: "medium",
		Coverage:   0.4,
		Signals: []model.Signal{
			{Type: model.SignalAnswerCoverage, Severity: model.SeverityWarning, Description: "Answered 2 of 5 questions (40%)"},
			{Type: model.SignalTopCertainty, Severity: model.SeverityInfo, Description: "Leading conclusion Brown spot at 48.0%"},
		},
	}
	return r
}

func TestWriteMarkdown_Assessment(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewRenderer(true, false).WriteMarkdown(&buf, assessedReport()))
	md := buf.String()

	assert.Contains(t, md, "- **Confidence:** medium")
	assert.Contains(t, md, "## Assessment\n\n- **warning** `answer_coverage`: Answered 2 of 5 questions (40%)\n")
	assert.Contains(t, md, "Brown spot at 48.0%\n\n## Initial facts")
}

func TestWriteHTML_Assessment(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewRenderer(true, false).WriteHTML(&buf, assessedReport()))
	out := buf.String()

	assert.Contains(t, out, "<dt>Confidence</dt><dd>medium</dd>")
	assert.Contains(t, out, `<li class="warning"><strong>warning</strong> Answered 2 of 5 questions (40%)</li>`)
}

func TestRenderSummary_Assessment(t *testing.T) {
	var buf bytes.Buffer
	NewRenderer(true, false).RenderSummary(&buf, assessedReport())
	out := buf.String()

	assert.Contains(t, out, "\nConfidence: medium\n")
	assert.Contains(t, out, "  ! Answered 2 of 5 questions (40%)\n")
	assert.NotContains(t, out, "Leading conclusion")
}

func narratedReport() *model.Report {
	r := assessedReport()
	r.LLM = &model.LLMSummary{
		Enabled:   true,
		Provider:  "openai",
		Model:     "gpt-4o-mini",
		Strict:    true,
		SummaryMD: "Brown spot is the leading diagnosis.",
		Warnings:  []string{"Answered 2 of 5 questions"},
	}
	return r
}

func TestWriteMarkdown_Narrative(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewRenderer(true, false).WriteMarkdown(&buf, narratedReport()))
	md := buf.String()

	assert.Contains(t, md, "## Narrative (openai, gpt-4o-mini)\n")
	assert.Contains(t, md, "Brown spot is the leading diagnosis.\n\n> Answered 2 of 5 questions\n\n## Initial facts")
	assert.Less(t, strings.Index(md, "## Assessment"), strings.Index(md, "## Narrative"))
}

func TestWriteMarkdown_NoNarrative(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewRenderer(true, false).WriteMarkdown(&buf, assessedReport()))
	assert.NotContains(t, buf.String(), "## Narrative")
}

func TestWriteHTML_Narrative(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewRenderer(true, false).WriteHTML(&buf, narratedReport()))
	out := buf.String()

	assert.Contains(t, out, "<h2>Narrative</h2>")
	assert.Contains(t, out, `<p class="narrative">Brown spot is the leading diagnosis.</p>`)
	assert.Contains(t, out, `<p class="warning">Answered 2 of 5 questions</p>`)
}

func TestWriteJSON_Narrative(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewRenderer(true, false).WriteJSON(&buf, narratedReport()))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	llm, ok := decoded["llm"].(map[string]any)
	require.True(t, ok, "llm block missing")
	assert.Equal(t, "Brown spot is the leading diagnosis.", llm["summary_md"])
}

func TestRenderSummary_Narrative(t *testing.T) {
	var buf bytes.Buffer
	NewRenderer(true, false).RenderSummary(&buf, narratedReport())
	assert.Contains(t, buf.String(), "\nNarrative (openai):\nBrown spot is the leading diagnosis.\n")
}
