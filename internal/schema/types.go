// Package schema holds the static entity schemas an import can target.
//
// A [Schema] is the source of truth for field mapping and default validation:
// it lists every target field with its type, whether it is required, its
// allowed enum values and an optional [Transform] applied before persistence.
// Schemas are immutable once registered in a [Registry].
package schema

import (
	"errors"
	"fmt"
	"strings"

	"github.com/JonMunkholm/importer/internal/infer"
)

// ErrUnknownEntity is returned for an entity type with no registered schema.
var ErrUnknownEntity = errors.New("unknown entity type")

// EntityType selects the schema an import targets.
type EntityType string

const (
	Students  EntityType = "students"
	Books     EntityType = "books"
	Equipment EntityType = "equipment"
)

// ParseEntityType resolves a user-supplied entity name. Matching is
// case-insensitive and accepts the singular form.
func ParseEntityType(s string) (EntityType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "students", "student":
		return Students, nil
	case "books", "book":
		return Books, nil
	case "equipment", "equipments":
		return Equipment, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownEntity, s)
}

// FieldDef describes one target field.
type FieldDef struct {
	Name       string             // Target field name (snake_case)
	Type       infer.InferredType // Expected type after conversion
	Required   bool               // Value must be present
	Unique     bool               // Value identifies a record within the entity
	EnumValues []string           // Allowed values for enum fields (compared case-insensitively)
	Transform  Transform          // Optional persistence transform
}

// Schema is the static definition of an importable entity.
type Schema struct {
	Entity          EntityType
	Label           string
	Fields          []FieldDef
	ExternalIDField string // Business key used to detect create vs update
}

// Field returns the definition for name.
func (s Schema) Field(name string) (FieldDef, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldDef{}, false
}

// FieldNames returns the target field names in declaration order.
func (s Schema) FieldNames() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

// RequiredFields returns the names of all required fields.
func (s Schema) RequiredFields() []string {
	var names []string
	for _, f := range s.Fields {
		if f.Required {
			names = append(names, f.Name)
		}
	}
	return names
}

// TargetFields converts the schema into the inference engine's target list.
func (s Schema) TargetFields() []infer.TargetField {
	out := make([]infer.TargetField, len(s.Fields))
	for i, f := range s.Fields {
		out[i] = infer.TargetField{Name: f.Name, Type: f.Type}
	}
	return out
}

// Validate checks the schema definition itself.
func (s Schema) Validate() error {
	var errs []string
	if s.Entity == "" {
		errs = append(errs, "entity is required")
	}
	if len(s.Fields) == 0 {
		errs = append(errs, "at least one field is required")
	}

	seen := make(map[string]bool, len(s.Fields))
	for _, f := range s.Fields {
		if f.Name == "" {
			errs = append(errs, "field name is required")
			continue
		}
		if seen[f.Name] {
			errs = append(errs, fmt.Sprintf("duplicate field %q", f.Name))
		}
		seen[f.Name] = true
		if !f.Type.Valid() {
			errs = append(errs, fmt.Sprintf("field %q has unknown type %q", f.Name, f.Type))
		}
		if f.Type == infer.TypeEnum && len(f.EnumValues) == 0 {
			errs = append(errs, fmt.Sprintf("enum field %q has no values", f.Name))
		}
	}

	if s.ExternalIDField == "" {
		errs = append(errs, "external id field is required")
	} else if !seen[s.ExternalIDField] {
		errs = append(errs, fmt.Sprintf("external id field %q is not declared", s.ExternalIDField))
	}

	if len(errs) > 0 {
		return fmt.Errorf("schema %q: %s", s.Entity, strings.Join(errs, "; "))
	}
	return nil
}

func (s Schema) clone() Schema {
	out := s
	out.Fields = make([]FieldDef, len(s.Fields))
	for i, f := range s.Fields {
		f.EnumValues = append([]string(nil), f.EnumValues...)
		out.Fields[i] = f
	}
	return out
}

// Record is a persistence-ready row tagged with its entity.
type Record struct {
	Entity EntityType     `json:"entity"`
	Fields map[string]any `json:"fields"`
}

// NewRecord creates an empty record for entity.
func NewRecord(entity EntityType) Record {
	return Record{Entity: entity, Fields: make(map[string]any)}
}

// Get returns the value stored for field, or nil.
func (r Record) Get(field string) any {
	return r.Fields[field]
}

// Clone returns a copy whose field map can be modified independently.
func (r Record) Clone() Record {
	out := Record{Entity: r.Entity, Fields: make(map[string]any, len(r.Fields))}
	for k, v := range r.Fields {
		out.Fields[k] = v
	}
	return out
}

// ExternalID returns the record's business key rendered as text,
// or "" when absent.
func (r Record) ExternalID(s Schema) string {
	return infer.Stringify(r.Fields[s.ExternalIDField])
}
