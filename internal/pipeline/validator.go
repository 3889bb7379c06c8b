package pipeline

// validator.go checks mapped, type-converted rows before they are transformed.
//
// Every field is checked against one rule. The default rule comes from the
// schema (required, type, enum values); a caller rule for the same field
// replaces it. Validation returns all failures for a row so the caller can
// report them together.

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/JonMunkholm/importer/internal/infer"
	"github.com/JonMunkholm/importer/internal/schema"
)

// ValidationRule constrains one target field. Zero values disable a check.
type ValidationRule struct {
	Field      string             `yaml:"field" json:"field"`
	Required   bool               `yaml:"required" json:"required"`
	Type       infer.InferredType `yaml:"type" json:"type,omitempty"`
	MinLength  int                `yaml:"min_length" json:"minLength,omitempty"`
	MaxLength  int                `yaml:"max_length" json:"maxLength,omitempty"`
	Pattern    string             `yaml:"pattern" json:"pattern,omitempty"`
	EnumValues []string           `yaml:"enum" json:"enumValues,omitempty"`

	// Custom runs last on non-empty values; a non-nil error fails the field.
	Custom func(any) error `yaml:"-" json:"-"`
}

// ValidationError represents a single validation error for a field.
type ValidationError struct {
	Field   string // Target field name
	Value   string // The invalid value
	Message string // Human-readable error message
}

func (e ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

type compiledRule struct {
	ValidationRule
	pattern *regexp.Regexp
}

// Validator validates records against a fixed rule set.
// It is immutable after construction and safe for concurrent use.
type Validator struct {
	engine *infer.Engine
	rules  []compiledRule
}

// DefaultRules derives one rule per schema field.
func DefaultRules(s schema.Schema) []ValidationRule {
	rules := make([]ValidationRule, len(s.Fields))
	for i, f := range s.Fields {
		rules[i] = ValidationRule{
			Field:      f.Name,
			Required:   f.Required,
			Type:       f.Type,
			EnumValues: f.EnumValues,
		}
	}
	return rules
}

// NewValidator builds a validator from the schema defaults overlaid with
// custom rules. Custom rules for fields outside the schema are appended.
func NewValidator(engine *infer.Engine, s schema.Schema, custom []ValidationRule) (*Validator, error) {
	rules := DefaultRules(s)
	pos := make(map[string]int, len(rules))
	for i, r := range rules {
		pos[r.Field] = i
	}
	for _, r := range custom {
		if r.Field == "" {
			return nil, fmt.Errorf("validation rule without field")
		}
		if r.Type != "" && !r.Type.Valid() {
			return nil, fmt.Errorf("validation rule for %q: unknown type %q", r.Field, r.Type)
		}
		if i, ok := pos[r.Field]; ok {
			rules[i] = r
			continue
		}
		pos[r.Field] = len(rules)
		rules = append(rules, r)
	}

	v := &Validator{engine: engine, rules: make([]compiledRule, len(rules))}
	for i, r := range rules {
		cr := compiledRule{ValidationRule: r}
		if r.Pattern != "" {
			re, err := regexp.Compile(r.Pattern)
			if err != nil {
				return nil, fmt.Errorf("validation rule for %q: invalid pattern: %w", r.Field, err)
			}
			cr.pattern = re
		}
		v.rules[i] = cr
	}
	return v, nil
}

// Rules returns a copy of the effective rules.
func (v *Validator) Rules() []ValidationRule {
	out := make([]ValidationRule, len(v.rules))
	for i, r := range v.rules {
		out[i] = r.ValidationRule
	}
	return out
}

// Validate checks every rule against fields and returns all failures.
func (v *Validator) Validate(fields map[string]any) []ValidationError {
	var errs []ValidationError
	for _, r := range v.rules {
		if err := v.check(r, fields[r.Field]); err != nil {
			errs = append(errs, *err)
		}
	}
	return errs
}

// check returns the first failure of value against r.
func (v *Validator) check(r compiledRule, value any) *ValidationError {
	if infer.IsEmpty(value) {
		if r.Required {
			return &ValidationError{Field: r.Field, Message: "required field is empty"}
		}
		return nil
	}

	text := infer.Stringify(value)
	fail := func(format string, args ...any) *ValidationError {
		return &ValidationError{Field: r.Field, Value: text, Message: fmt.Sprintf(format, args...)}
	}

	if !v.typeMatches(r.Type, value) {
		return fail("invalid %s: %q", r.Type, text)
	}
	if len(r.EnumValues) > 0 && !containsFold(r.EnumValues, text) {
		return fail("invalid enum %q: value must be one of: %s", text, strings.Join(r.EnumValues, ", "))
	}

	n := utf8.RuneCountInString(text)
	if r.MinLength > 0 && n < r.MinLength {
		return fail("must be at least %d characters", r.MinLength)
	}
	if r.MaxLength > 0 && n > r.MaxLength {
		return fail("must be at most %d characters", r.MaxLength)
	}
	if r.pattern != nil && !r.pattern.MatchString(text) {
		return fail("does not match pattern %s", r.Pattern)
	}
	if r.Custom != nil {
		if err := r.Custom(value); err != nil {
			return fail("%s", err.Error())
		}
	}
	return nil
}

// typeMatches accepts any scalar for free-text types; enum membership is
// checked separately against the rule's values.
func (v *Validator) typeMatches(t infer.InferredType, value any) bool {
	switch t {
	case "", infer.TypeString, infer.TypeID, infer.TypeEnum:
		return true
	}
	return v.engine.Matches(t, value)
}

func containsFold(values []string, s string) bool {
	for _, v := range values {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
