package sandbox

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ehr/healthassist/internal/domain/assessment"
)

//go:embed knowledge.yaml
var defaultKnowledge []byte

// Knowledge is the scripted content the Engine works from.
type Knowledge struct {
	Welcome    string          `yaml:"welcome"`
	Clarify    QuestionDef     `yaml:"clarify"`
	Closing    string          `yaml:"closing"`
	Disclaimer string          `yaml:"disclaimer"`
	Symptoms   []SymptomDef    `yaml:"symptoms"`
	Questions  []QuestionDef   `yaml:"questions"`
	General    []QuestionDef   `yaml:"general"`
	Conditions []ConditionRule `yaml:"conditions"`
	Lifestyle  []string        `yaml:"lifestyle"`
}

type SymptomDef struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
}

// QuestionDef is one scripted question. Symptom is empty for general
// questions.
type QuestionDef struct {
	ID      string   `yaml:"id"`
	Symptom string   `yaml:"symptom"`
	Text    string   `yaml:"text"`
	Options []string `yaml:"options"`
}

// ConditionRule matches when every Requires symptom is present. Each
// matching Supports symptom adds to the base confidence.
type ConditionRule struct {
	Name            string                  `yaml:"name"`
	Requires        []string                `yaml:"requires"`
	Supports        []string                `yaml:"supports"`
	Confidence      float64                 `yaml:"confidence"`
	Urgency         assessment.UrgencyLevel `yaml:"urgency"`
	Description     string                  `yaml:"description"`
	Recommendations []string                `yaml:"recommendations"`
}

// DefaultKnowledge returns the embedded knowledge base.
func DefaultKnowledge() (*Knowledge, error) {
	return ParseKnowledge(defaultKnowledge)
}

// ParseKnowledge decodes and validates a YAML knowledge base.
func ParseKnowledge(data []byte) (*Knowledge, error) {
	var k Knowledge
	if err := yaml.Unmarshal(data, &k); err != nil {
		return nil, fmt.Errorf("parse knowledge: %w", err)
	}
	if err := k.validate(); err != nil {
		return nil, fmt.Errorf("invalid knowledge: %w", err)
	}
	return &k, nil
}

func (k *Knowledge) validate() error {
	if strings.TrimSpace(k.Welcome) == "" {
		return fmt.Errorf("welcome is required")
	}
	if k.Clarify.ID == "" || k.Clarify.Text == "" {
		return fmt.Errorf("clarify question needs an id and text")
	}
	if len(k.General) == 0 {
		return fmt.Errorf("at least one general question is required")
	}

	symptoms := make(map[string]bool, len(k.Symptoms))
	for _, s := range k.Symptoms {
		if s.Name == "" || len(s.Keywords) == 0 {
			return fmt.Errorf("symptom %q needs a name and keywords", s.Name)
		}
		if symptoms[s.Name] {
			return fmt.Errorf("duplicate symptom %q", s.Name)
		}
		symptoms[s.Name] = true
	}

	ids := map[string]bool{k.Clarify.ID: true}
	for _, q := range append(append([]QuestionDef{}, k.Questions...), k.General...) {
		if q.ID == "" || q.Text == "" {
			return fmt.Errorf("question %q needs an id and text", q.ID)
		}
		if ids[q.ID] {
			return fmt.Errorf("duplicate question id %q", q.ID)
		}
		ids[q.ID] = true
		if q.Symptom != "" && !symptoms[q.Symptom] {
			return fmt.Errorf("question %q references unknown symptom %q", q.ID, q.Symptom)
		}
	}

	for _, c := range k.Conditions {
		if c.Name == "" || len(c.Requires) == 0 {
			return fmt.Errorf("condition %q needs a name and required symptoms", c.Name)
		}
		if !c.Urgency.Valid() {
			return fmt.Errorf("condition %q has unknown urgency %q", c.Name, c.Urgency)
		}
		if c.Confidence <= 0 || c.Confidence > 100 {
			return fmt.Errorf("condition %q confidence %v out of range", c.Name, c.Confidence)
		}
		for _, s := range append(append([]string{}, c.Requires...), c.Supports...) {
			if !symptoms[s] {
				return fmt.Errorf("condition %q references unknown symptom %q", c.Name, s)
			}
		}
	}
	return nil
}
