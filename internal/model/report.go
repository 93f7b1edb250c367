package model

import "time"

// FiringRecord captures one successful rule activation
type FiringRecord struct {
	RuleID           string    `json:"rule_id"`
	Pass             int       `json:"pass"`              // 1-based pass in which the rule fired
	Antecedents      []string  `json:"antecedents"`
	AntecedentValues []float64 `json:"antecedent_values"` // Certainties at firing time
	ParallelCF       float64   `json:"parallel_cf"`       // min(antecedent certainties)
	RuleCF           float64   `json:"rule_cf"`
	SequentialCF     float64   `json:"sequential_cf"` // parallel * rule
	Consequent       string    `json:"consequent"`
	Combined         float64   `json:"cf"` // Consequent certainty after combination
	Note             string    `json:"note,omitempty"`
}

// DiagnosisResult is the best firing observed for one conclusion
type DiagnosisResult struct {
	Rank      int     `json:"rank"`
	ID        string  `json:"id"`
	Label     string  `json:"label"`
	Certainty float64 `json:"cf"`
	Note      string  `json:"note,omitempty"`
	RuleID    string  `json:"rule_id,omitempty"` // Rule whose firing produced the certainty
}

// Percent returns the certainty as a percentage
func (r DiagnosisResult) Percent() float64 {
	return r.Certainty * 100
}

// Report is the complete output of a diagnosis run
type Report struct {
	RunID       string    `json:"run_id"`
	Subject     string    `json:"subject"` // Rule base title
	RulesSource string    `json:"rules_source"`
	Sheet       string    `json:"sheet,omitempty"` // Answer sheet name
	GeneratedAt time.Time `json:"generated_at"`
	Engine      string    `json:"engine"`

	Facts   map[string]float64 `json:"facts"` // Initial certainties fed to the engine
	Results []DiagnosisResult  `json:"results"`
	Firings []FiringRecord     `json:"firings,omitempty"`
	Passes  int                `json:"passes"`

	Assessment *Assessment `json:"assessment,omitempty"`

	// Optional narrative, generated after results and assessment are final
	LLM *LLMSummary `json:"llm,omitempty"`
}

// LLMSummary is an optional model-written narrative of a report. It never
// changes results, certainties or the assessment.
type LLMSummary struct {
	Enabled    bool     `json:"enabled"`
	Provider   string   `json:"provider,omitempty"`
	Model      string   `json:"model,omitempty"`
	Strict     bool     `json:"strict"` // Narrative was checked for unconcluded diseases
	SummaryMD  string   `json:"summary_md,omitempty"`
	TokensUsed int      `json:"tokens_used,omitempty"`
	Warnings   []string `json:"warnings,omitempty"`
}

// Assessment grades how far a report can be trusted
type Assessment struct {
	Confidence string   `json:"confidence"` // "none", "low", "medium", "high"
	Coverage   float64  `json:"coverage"`   // Share of questions answered explicitly
	Conflict   bool     `json:"conflict"`   // Some conclusion received opposing evidence
	Signals    []Signal `json:"signals"`
}

// Signal is one diagnostic observation with transparent inputs
type Signal struct {
	Type        SignalType             `json:"type"`
	Severity    SignalSeverity         `json:"severity"`
	Description string                 `json:"description"`
	Data        map[string]interface{} `json:"data,omitempty"` // Inputs and formula behind the signal
}

// SignalType classifies a signal
type SignalType string

const (
	SignalAnswerCoverage   SignalType = "answer_coverage"   // Explicit answers vs defaulted questions
	SignalTopCertainty     SignalType = "top_certainty"     // Strength of the leading conclusion
	SignalCloseCall        SignalType = "close_call"        // Leading conclusions nearly tied
	SignalEvidenceConflict SignalType = "evidence_conflict" // Rules pushed a conclusion both ways
)

// SignalSeverity indicates the importance of the signal
type SignalSeverity string

const (
	SeverityInfo     SignalSeverity = "info"
	SeverityWarning  SignalSeverity = "warning"
	SeverityCritical SignalSeverity = "critical"
)

// EngineName identifies the reasoning method in reports
const EngineName = "certainty-factor"

// Detected reports whether any conclusion was reached
func (r *Report) Detected() bool {
	return len(r.Results) > 0
}

// Top returns the highest ranked result, if any
func (r *Report) Top() (DiagnosisResult, bool) {
	if len(r.Results) == 0 {
		return DiagnosisResult{}, false
	}
	return r.Results[0], true
}
