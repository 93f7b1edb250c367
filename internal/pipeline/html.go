package pipeline

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/ppiankov/ricedx/internal/model"
)

const reportCSS = `body{font-family:system-ui,sans-serif;max-width:60rem;margin:2rem auto;color:#222}
table{border-collapse:collapse;width:100%;margin:1rem 0}
th,td{border:1px solid #ccc;padding:.35rem .6rem;text-align:left}
td.num{text-align:right;font-variant-numeric:tabular-nums}
.bar{background:#e8f0e0;height:.6rem;border-radius:.3rem}
.bar>span{display:block;height:100%;background:#4a8a2a;border-radius:.3rem}
.empty{padding:1rem;background:#f4f4f4;font-weight:bold}
li.warning strong{color:#b36b00}
li.critical strong{color:#b00020}
p.narrative{background:#f4f8f0;padding:.8rem;border-left:3px solid #4a8a2a}
p.note{font-size:.85rem;color:#666}
p.warning{color:#b36b00}
footer{margin-top:2rem;font-size:.85rem;color:#666}`

// WriteHTML renders report as a standalone HTML page
func (r *Renderer) WriteHTML(w io.Writer, report *model.Report) error {
	doc := &html.Node{Type: html.DocumentNode}
	doc.AppendChild(&html.Node{Type: html.DoctypeNode, Data: "html"})

	title := "Diagnosis: " + report.Subject
	head := el(atom.Head, nil,
		el(atom.Meta, attrs("charset", "utf-8")),
		el(atom.Title, nil, text(title)),
		el(atom.Style, nil, text(reportCSS)),
	)

	body := el(atom.Body, nil,
		el(atom.H1, nil, text(title)),
		r.htmlMeta(report),
		el(atom.H2, nil, text("Results")),
		r.htmlResults(report),
	)
	if report.Assessment != nil {
		body.AppendChild(el(atom.H2, nil, text("Assessment")))
		body.AppendChild(htmlSignals(report.Assessment))
	}
	if n := report.LLM; n != nil {
		body.AppendChild(el(atom.H2, nil, text("Narrative")))
		body.AppendChild(el(atom.P, attrs("class", "narrative"), text(n.SummaryMD)))
		body.AppendChild(el(atom.P, attrs("class", "note"), text(
			"Model-written summary ("+n.Provider+" "+n.Model+") of the results above. It does not change them.")))
		for _, w := range n.Warnings {
			body.AppendChild(el(atom.P, attrs("class", "warning"), text(w)))
		}
	}
	body.AppendChild(el(atom.H2, nil, text("Initial facts")))
	body.AppendChild(htmlFacts(report))
	if r.includeTrace {
		body.AppendChild(el(atom.H2, nil, text("Inference trace")))
		body.AppendChild(htmlTrace(report))
	}
	if r.includeFooter {
		body.AppendChild(el(atom.Footer, nil, text(
			"Generated by ricedx. Certainty factors express strength of belief, not probability; confirm with a field inspection before treatment.")))
	}

	doc.AppendChild(el(atom.Html, attrs("lang", "en"), head, body))
	return html.Render(w, doc)
}

func (r *Renderer) htmlMeta(report *model.Report) *html.Node {
	list := el(atom.Dl, nil)
	add := func(k, v string) {
		if v == "" {
			return
		}
		list.AppendChild(el(atom.Dt, nil, text(k)))
		list.AppendChild(el(atom.Dd, nil, text(v)))
	}
	add("Run", report.RunID)
	add("Answer sheet", report.Sheet)
	add("Rules", report.RulesSource)
	add("Generated", report.GeneratedAt.Format("2006-01-02 15:04:05 MST"))
	add("Engine", fmt.Sprintf("%s (%d passes)", report.Engine, report.Passes))
	if report.Assessment != nil {
		add("Confidence", report.Assessment.Confidence)
	}
	return list
}

func (r *Renderer) htmlResults(report *model.Report) *html.Node {
	if !report.Detected() {
		return el(atom.P, attrs("class", "empty"), text(NoDiseaseMessage))
	}

	table := el(atom.Table, nil, headerRow("Rank", "Conclusion", "Certainty", "", "Rule", "Note"))
	for _, res := range report.Results {
		width := res.Certainty * 100
		if width < 0 {
			width = 0
		}
		bar := el(atom.Div, attrs("class", "bar"),
			el(atom.Span, attrs("style", fmt.Sprintf("width:%.1f%%", width))))

		table.AppendChild(el(atom.Tr, nil,
			numCell(fmt.Sprint(res.Rank)),
			el(atom.Td, nil, text(res.Label+" ("+res.ID+")")),
			numCell(FormatPercent(res.Certainty)),
			el(atom.Td, nil, bar),
			el(atom.Td, nil, text(res.RuleID)),
			el(atom.Td, nil, text(res.Note)),
		))
	}
	return table
}

func htmlSignals(a *model.Assessment) *html.Node {
	list := el(atom.Ul, nil)
	for _, sig := range a.Signals {
		list.AppendChild(el(atom.Li, attrs("class", string(sig.Severity)),
			el(atom.Strong, nil, text(string(sig.Severity))),
			text(" "+sig.Description),
		))
	}
	return list
}

func htmlFacts(report *model.Report) *html.Node {
	ids := make([]string, 0, len(report.Facts))
	for id := range report.Facts {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	table := el(atom.Table, nil, headerRow("Fact", "Certainty"))
	for _, id := range ids {
		table.AppendChild(el(atom.Tr, nil,
			el(atom.Td, nil, text(id)),
			numCell(formatCF(report.Facts[id])),
		))
	}
	return table
}

func htmlTrace(report *model.Report) *html.Node {
	if len(report.Firings) == 0 {
		return el(atom.P, nil, text("No rule fired."))
	}

	table := el(atom.Table, nil, headerRow("Pass", "Rule", "If", "Values", "Parallel", "Rule CF", "Sequential", "Then", "Result"))
	for _, f := range report.Firings {
		table.AppendChild(el(atom.Tr, nil,
			numCell(fmt.Sprint(f.Pass)),
			el(atom.Td, nil, text(f.RuleID)),
			el(atom.Td, nil, text(strings.Join(f.Antecedents, ", "))),
			el(atom.Td, nil, text(formatCFs(f.AntecedentValues))),
			numCell(formatCF(f.ParallelCF)),
			numCell(formatCF(f.RuleCF)),
			numCell(formatCF(f.SequentialCF)),
			el(atom.Td, nil, text(f.Consequent)),
			numCell(formatCF(f.Combined)),
		))
	}
	return table
}

func headerRow(cols ...string) *html.Node {
	row := el(atom.Tr, nil)
	for _, c := range cols {
		row.AppendChild(el(atom.Th, nil, text(c)))
	}
	return row
}

func numCell(s string) *html.Node {
	return el(atom.Td, attrs("class", "num"), text(s))
}

func el(a atom.Atom, attr []html.Attribute, children ...*html.Node) *html.Node {
	n := &html.Node{Type: html.ElementNode, DataAtom: a, Data: a.String(), Attr: attr}
	for _, c := range children {
		n.AppendChild(c)
	}
	return n
}

func text(s string) *html.Node {
	return &html.Node{Type: html.TextNode, Data: s}
}

func attrs(kv ...string) []html.Attribute {
	out := make([]html.Attribute, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, html.Attribute{Key: kv[i], Val: kv[i+1]})
	}
	return out
}
