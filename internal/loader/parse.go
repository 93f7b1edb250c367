package loader

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/ricedx/internal/model"
)

// Format is a rule document encoding
type Format int

const (
	FormatJSON Format = iota
	FormatYAML
)

func (f Format) String() string {
	if f == FormatYAML {
		return "yaml"
	}
	return "json"
}

// DetectFormat picks the encoding from the source extension, then the
// content type, then the first significant byte. JSON is the default.
func DetectFormat(source, contentType string, data []byte) Format {
	switch strings.ToLower(path.Ext(strings.SplitN(source, "?", 2)[0])) {
	case ".yaml", ".yml":
		return FormatYAML
	case ".json":
		return FormatJSON
	}

	ct := strings.ToLower(contentType)
	if strings.Contains(ct, "yaml") {
		return FormatYAML
	}
	if strings.Contains(ct, "json") {
		return FormatJSON
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] != '{' {
		return FormatYAML
	}
	return FormatJSON
}

// rawFact and rawRule keep optional certainties distinguishable from zero
type rawFact struct {
	Question string   `json:"question" yaml:"question"`
	CF       *float64 `json:"cf" yaml:"cf"`
}

type rawRule struct {
	ID   string   `json:"id" yaml:"id"`
	If   []string `json:"if" yaml:"if"`
	Then string   `json:"then" yaml:"then"`
	CF   *float64 `json:"cf" yaml:"cf"`
	Note string   `json:"note" yaml:"note"`
}

// Parse decodes a rule document. A missing or malformed rules value yields
// an empty rule list and a warning rather than an error.
func Parse(data []byte, format Format) (*model.RuleBase, []string, error) {
	if format == FormatYAML {
		return parseYAML(data)
	}
	return parseJSON(data)
}

func parseJSON(data []byte) (*model.RuleBase, []string, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, nil, fmt.Errorf("decode json: %w", err)
	}
	if top == nil {
		return nil, nil, fmt.Errorf("decode json: document is null")
	}

	rb := &model.RuleBase{}
	var warnings []string

	if raw, ok := top["meta"]; ok {
		if err := json.Unmarshal(raw, &rb.Meta); err != nil {
			return nil, nil, fmt.Errorf("decode meta: %w", err)
		}
	}

	if raw, ok := top["facts"]; ok {
		facts, order, err := decodeJSONFacts(raw)
		if err != nil {
			return nil, nil, fmt.Errorf("decode facts: %w", err)
		}
		rb.Facts, rb.FactOrder = facts, order
	}

	var rules []rawRule
	raw, ok := top["rules"]
	switch {
	case !ok || string(bytes.TrimSpace(raw)) == "null":
		warnings = append(warnings, "document has no rules")
	default:
		if err := json.Unmarshal(raw, &rules); err != nil {
			warnings = append(warnings, fmt.Sprintf("ignoring malformed rules: %v", err))
			rules = nil
		}
	}
	rb.Rules = convertRules(rules)

	if raw, ok := top["labels"]; ok {
		if err := json.Unmarshal(raw, &rb.Labels); err != nil {
			return nil, nil, fmt.Errorf("decode labels: %w", err)
		}
	}

	return finish(rb), warnings, nil
}

// decodeJSONFacts walks the facts object token by token to keep document order
func decodeJSONFacts(raw json.RawMessage) (map[string]model.FactDef, []string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))

	tok, err := dec.Token()
	if err != nil {
		return nil, nil, err
	}
	if tok == nil {
		return nil, nil, nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, nil, errors.New("facts must be an object")
	}

	facts := make(map[string]model.FactDef)
	var order []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, nil, err
		}
		id := tok.(string)

		var f rawFact
		if err := dec.Decode(&f); err != nil {
			return nil, nil, fmt.Errorf("fact %s: %w", id, err)
		}
		if _, dup := facts[id]; !dup {
			order = append(order, id)
		}
		facts[id] = convertFact(f)
	}

	if _, err := dec.Token(); err != nil && !errors.Is(err, io.EOF) {
		return nil, nil, err
	}
	return facts, order, nil
}

func parseYAML(data []byte) (*model.RuleBase, []string, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, nil, fmt.Errorf("decode yaml: %w", err)
	}
	if len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return nil, nil, errors.New("decode yaml: document must be a mapping")
	}
	root := doc.Content[0]

	rb := &model.RuleBase{}
	var warnings []string
	var rules []rawRule
	sawRules := false

	for i := 0; i+1 < len(root.Content); i += 2 {
		key, value := root.Content[i].Value, root.Content[i+1]

		switch key {
		case "meta":
			if err := value.Decode(&rb.Meta); err != nil {
				return nil, nil, fmt.Errorf("decode meta: %w", err)
			}
		case "facts":
			facts, order, err := decodeYAMLFacts(value)
			if err != nil {
				return nil, nil, fmt.Errorf("decode facts: %w", err)
			}
			rb.Facts, rb.FactOrder = facts, order
		case "rules":
			sawRules = true
			if value.Kind != yaml.SequenceNode {
				if value.Tag != "!!null" {
					warnings = append(warnings, fmt.Sprintf("ignoring malformed rules: expected a list at line %d", value.Line))
				} else {
					warnings = append(warnings, "document has no rules")
				}
				continue
			}
			if err := value.Decode(&rules); err != nil {
				warnings = append(warnings, fmt.Sprintf("ignoring malformed rules: %v", err))
				rules = nil
			}
		case "labels":
			if err := value.Decode(&rb.Labels); err != nil {
				return nil, nil, fmt.Errorf("decode labels: %w", err)
			}
		}
	}

	if !sawRules {
		warnings = append(warnings, "document has no rules")
	}
	rb.Rules = convertRules(rules)

	return finish(rb), warnings, nil
}

func decodeYAMLFacts(node *yaml.Node) (map[string]model.FactDef, []string, error) {
	if node.Tag == "!!null" {
		return nil, nil, nil
	}
	if node.Kind != yaml.MappingNode {
		return nil, nil, fmt.Errorf("facts must be a mapping (line %d)", node.Line)
	}

	facts := make(map[string]model.FactDef)
	var order []string
	for i := 0; i+1 < len(node.Content); i += 2 {
		id := node.Content[i].Value

		var f rawFact
		if err := node.Content[i+1].Decode(&f); err != nil {
			return nil, nil, fmt.Errorf("fact %s: %w", id, err)
		}
		if _, dup := facts[id]; !dup {
			order = append(order, id)
		}
		facts[id] = convertFact(f)
	}
	return facts, order, nil
}

func convertFact(f rawFact) model.FactDef {
	def := model.FactDef{Question: f.Question, Certainty: 1}
	if f.CF != nil {
		def.Certainty = *f.CF
	}
	return def
}

func convertRules(raw []rawRule) []model.Rule {
	rules := make([]model.Rule, 0, len(raw))
	for _, r := range raw {
		rule := model.Rule{
			ID:          r.ID,
			Antecedents: r.If,
			Consequent:  r.Then,
			Certainty:   model.DefaultRuleCertainty,
			Note:        r.Note,
		}
		if r.CF != nil {
			rule.Certainty = *r.CF
		}
		rules = append(rules, rule)
	}
	return rules
}

func finish(rb *model.RuleBase) *model.RuleBase {
	if rb.Facts == nil {
		rb.Facts = make(map[string]model.FactDef)
	}
	if rb.Labels == nil {
		rb.Labels = make(map[string]string)
	}
	return rb
}
