package pipeline

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// RuleFile is the on-disk form of custom validation rules and mapping
// overrides:
//
//	mappings:
//	  Stud No: student_id
//	rules:
//	  - field: first_name
//	    required: true
//	    max_length: 50
//	  - field: student_id
//	    pattern: '^S\d{4}$'
type RuleFile struct {
	Mappings map[string]string `yaml:"mappings"`
	Rules    []ValidationRule  `yaml:"rules"`
}

// LoadRules decodes a rule file. Unknown keys are rejected.
func LoadRules(r io.Reader) (*RuleFile, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var rf RuleFile
	if err := dec.Decode(&rf); err != nil {
		if err == io.EOF {
			return &rf, nil
		}
		return nil, fmt.Errorf("decode rules: %w", err)
	}
	for i, rule := range rf.Rules {
		if rule.Field == "" {
			return nil, fmt.Errorf("decode rules: rule %d has no field", i+1)
		}
		if rule.Type != "" && !rule.Type.Valid() {
			return nil, fmt.Errorf("decode rules: rule for %q has unknown type %q", rule.Field, rule.Type)
		}
	}
	return &rf, nil
}

// LoadRulesFile reads a rule file from disk.
func LoadRulesFile(path string) (*RuleFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open rules: %w", err)
	}
	defer f.Close()
	return LoadRules(f)
}

// Apply merges the file into opts. File mappings do not replace overrides
// already present in opts.
func (rf *RuleFile) Apply(opts *Options) {
	if len(rf.Mappings) > 0 {
		merged := make(map[string]string, len(rf.Mappings)+len(opts.FieldMappings))
		for k, v := range rf.Mappings {
			merged[k] = v
		}
		for k, v := range opts.FieldMappings {
			merged[k] = v
		}
		opts.FieldMappings = merged
	}
	opts.ValidationRules = append(opts.ValidationRules, rf.Rules...)
}
