package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"isoquant/domain/quant"
	"isoquant/internal/errors"
)

// Experiment is the benchmark grid: shared inputs plus the pipeline variants to compare.
type Experiment struct {
	Reference   string          `yaml:"reference" validate:"required"`
	Scale       string          `yaml:"scale" validate:"required,oneof=log2 raw ratio"`
	Threshold   float64         `yaml:"threshold" validate:"gt=0,lt=1"`
	MinAbsLogFC float64         `yaml:"min_abs_logfc" validate:"min=0"`
	Seed        int64           `yaml:"seed"`
	Truth       []string        `yaml:"truth"`
	Variants    []VariantConfig `yaml:"variants" validate:"required,min=1,dive"`
}

// VariantConfig names one pipeline. Normalize steps run on the input level
// (or on protein level when SummarizeFirst is set), PostNormalize on protein level.
type VariantConfig struct {
	Name           string       `yaml:"name" validate:"required"`
	Normalize      []StepConfig `yaml:"normalize" validate:"dive"`
	Summarize      StepConfig   `yaml:"summarize" validate:"-"`
	PostNormalize  []StepConfig `yaml:"post_normalize" validate:"dive"`
	Test           StepConfig   `yaml:"test" validate:"required"`
	SummarizeFirst bool         `yaml:"summarize_first"`
	TestLevel      string       `yaml:"test_level" validate:"omitempty,oneof=psm peptide protein"`
}

// StepConfig selects a strategy by name with free-form parameters.
type StepConfig struct {
	Name   string                 `yaml:"name" validate:"required"`
	Params map[string]interface{} `yaml:"params"`
}

// Level returns the level the engine consumes. Protein unless overridden.
func (v VariantConfig) Level() quant.Level {
	if v.TestLevel == "" {
		return quant.LevelProtein
	}
	l, err := quant.ParseLevel(v.TestLevel)
	if err != nil {
		return quant.LevelProtein
	}
	return l
}

// LoadExperiment reads and validates a YAML experiment file.
func LoadExperiment(path string) (*Experiment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read experiment %s", path)
	}
	return ParseExperiment(data)
}

// ParseExperiment decodes YAML, applies defaults and validates.
func ParseExperiment(data []byte) (*Experiment, error) {
	var exp Experiment
	if err := yaml.Unmarshal(data, &exp); err != nil {
		return nil, errors.WithCode(errors.CodeConfigInvalid, errors.Wrap(err, "parse experiment"))
	}
	exp.applyDefaults()
	if err := exp.Validate(); err != nil {
		return nil, err
	}
	return &exp, nil
}

func (e *Experiment) applyDefaults() {
	if e.Threshold == 0 {
		e.Threshold = 0.05
	}
	if e.Scale == "" {
		e.Scale = "log2"
	}
}

// Validate runs struct tags then cross-field rules.
func (e *Experiment) Validate() error {
	if err := validate.Struct(e); err != nil {
		return errors.WithCode(errors.CodeConfigInvalid, errors.Wrap(err, "experiment validation failed"))
	}
	seen := make(map[string]bool, len(e.Variants))
	for _, v := range e.Variants {
		if seen[v.Name] {
			return errors.ConfigInvalid(fmt.Sprintf("duplicate variant name %q", v.Name))
		}
		seen[v.Name] = true
		if err := v.validate(); err != nil {
			return err
		}
	}
	return nil
}

func (v VariantConfig) validate() error {
	protein := v.Level() == quant.LevelProtein
	switch {
	case protein && v.Summarize.Name == "":
		return errors.ConfigInvalid(fmt.Sprintf("variant %q: summarize step is required for protein-level tests", v.Name))
	case !protein && v.SummarizeFirst:
		return errors.ConfigInvalid(fmt.Sprintf("variant %q: summarize_first conflicts with test_level %s", v.Name, v.TestLevel))
	case !protein && len(v.PostNormalize) > 0:
		return errors.ConfigInvalid(fmt.Sprintf("variant %q: post_normalize needs protein-level tests", v.Name))
	}
	return nil
}

// String returns the param as a lower-cased string.
func (s StepConfig) String(key, def string) string {
	if v, ok := s.Params[key]; ok {
		if str, ok := v.(string); ok {
			return strings.ToLower(strings.TrimSpace(str))
		}
	}
	return def
}

// Float returns a numeric param.
func (s StepConfig) Float(key string, def float64) float64 {
	switch v := s.Params[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return def
}

// Int returns an integral param.
func (s StepConfig) Int(key string, def int) int {
	switch v := s.Params[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return def
}

// Bool returns a boolean param.
func (s StepConfig) Bool(key string, def bool) bool {
	if v, ok := s.Params[key].(bool); ok {
		return v
	}
	return def
}

// Copy returns the params for fingerprinting.
func (s StepConfig) Copy() map[string]interface{} {
	out := make(map[string]interface{}, len(s.Params))
	for k, v := range s.Params {
		out[k] = v
	}
	return out
}
