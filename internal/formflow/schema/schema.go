// Package schema describes the registration form for renderers: labels,
// placeholders, limits and select options for each step.
package schema

import (
	"bytes"
	_ "embed"
	"fmt"
	"regexp"

	"gopkg.in/yaml.v3"

	"udyam/internal/formflow"
)

//go:embed schema.yaml
var raw []byte

type Schema struct {
	Title string `yaml:"title" json:"title"`
	Steps []Step `yaml:"steps" json:"steps"`
}

type Step struct {
	Number  int      `yaml:"number" json:"step_number"`
	Name    string   `yaml:"name" json:"step_name"`
	Fields  []Field  `yaml:"fields" json:"fields"`
	Buttons []Button `yaml:"buttons" json:"buttons"`
}

type Field struct {
	Name        formflow.Field `yaml:"name" json:"name"`
	Label       string         `yaml:"label" json:"label"`
	Type        string         `yaml:"type" json:"type"`
	Required    bool           `yaml:"required" json:"required"`
	MaxLength   int            `yaml:"max_length,omitempty" json:"maxLength,omitempty"`
	Placeholder string         `yaml:"placeholder,omitempty" json:"placeholder,omitempty"`
	Validation  *Validation    `yaml:"validation,omitempty" json:"validation,omitempty"`
	Options     []Option       `yaml:"options,omitempty" json:"options,omitempty"`
}

type Validation struct {
	Pattern      string `yaml:"pattern" json:"pattern"`
	MinLength    int    `yaml:"min_length,omitempty" json:"minLength,omitempty"`
	ErrorMessage string `yaml:"error_message" json:"errorMessage"`
}

type Option struct {
	Value string `yaml:"value" json:"value"`
	Label string `yaml:"label" json:"label"`
}

type Button struct {
	Name  string `yaml:"name" json:"name"`
	Label string `yaml:"label" json:"label"`
	Type  string `yaml:"type" json:"type"`
}

// Load parses the embedded schema and checks it against the engine's fields.
func Load() (*Schema, error) {
	return Parse(raw)
}

// Parse decodes a schema document strictly and validates it.
func Parse(data []byte) (*Schema, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var s Schema
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("decode form schema: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate requires every engine field to appear exactly once, with the
// engine's required flag and length limit, and every pattern to compile.
func (s *Schema) Validate() error {
	seen := make(map[formflow.Field]int)
	for _, step := range s.Steps {
		for _, f := range step.Fields {
			rule, ok := formflow.RuleFor(f.Name)
			if !ok {
				return fmt.Errorf("step %d: unknown field %q", step.Number, f.Name)
			}
			seen[f.Name]++
			if rule.Required && !f.Required {
				return fmt.Errorf("field %q must be required", f.Name)
			}
			if rule.MaxLength > 0 && f.MaxLength != rule.MaxLength {
				return fmt.Errorf("field %q: max_length %d, engine allows %d", f.Name, f.MaxLength, rule.MaxLength)
			}
			if f.Validation != nil {
				if _, err := regexp.Compile(f.Validation.Pattern); err != nil {
					return fmt.Errorf("field %q: %w", f.Name, err)
				}
			}
			if (f.Type == "select" || f.Type == "radio") && len(f.Options) == 0 {
				return fmt.Errorf("field %q: %s without options", f.Name, f.Type)
			}
		}
	}
	for _, name := range formflow.Fields {
		if seen[name] != 1 {
			return fmt.Errorf("field %q appears %d times", name, seen[name])
		}
	}
	return nil
}

// Step returns the step with the given number.
func (s *Schema) Step(number int) (Step, bool) {
	for _, step := range s.Steps {
		if step.Number == number {
			return step, true
		}
	}
	return Step{}, false
}

// Field looks a field up across all steps.
func (s *Schema) Field(name formflow.Field) (Field, bool) {
	for _, step := range s.Steps {
		for _, f := range step.Fields {
			if f.Name == name {
				return f, true
			}
		}
	}
	return Field{}, false
}
