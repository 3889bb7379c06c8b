// Package infer classifies spreadsheet columns into data types and converts
// raw cell values into typed Go values.
//
// The engine never reaches for I/O. Every heuristic it applies is exposed as a
// pure function (NameHint, ScoreEnum, ParseNumber, ...) so that thresholds and
// tie-break rules can be tested in isolation.
package infer

import "time"

// InferredType is the data type assigned to a column.
type InferredType string

const (
	TypeString   InferredType = "string"
	TypeNumber   InferredType = "number"
	TypeInteger  InferredType = "integer"
	TypeDate     InferredType = "date"
	TypeDateTime InferredType = "datetime"
	TypeBoolean  InferredType = "boolean"
	TypeEnum     InferredType = "enum"
	TypeEmail    InferredType = "email"
	TypePhone    InferredType = "phone"
	TypeID       InferredType = "id"
	TypeURL      InferredType = "url"
)

// candidateOrder lists every scorable type. Ties in confidence are broken by
// position: narrower types come first, string is always last.
var candidateOrder = []InferredType{
	TypeInteger,
	TypeNumber,
	TypeBoolean,
	TypeDateTime,
	TypeDate,
	TypeEmail,
	TypeURL,
	TypePhone,
	TypeEnum,
	TypeID,
	TypeString,
}

// AllTypes returns every known InferredType.
func AllTypes() []InferredType {
	out := make([]InferredType, len(candidateOrder))
	copy(out, candidateOrder)
	return out
}

// Valid reports whether t is a known type.
func (t InferredType) Valid() bool {
	for _, c := range candidateOrder {
		if c == t {
			return true
		}
	}
	return false
}

// IsTextual reports whether values of this type are carried as strings.
func (t InferredType) IsTextual() bool {
	switch t {
	case TypeString, TypeEnum, TypeEmail, TypePhone, TypeID, TypeURL:
		return true
	}
	return false
}

// TypeInferenceResult is the classification of one column.
type TypeInferenceResult struct {
	Type         InferredType `json:"type"`
	Confidence   float64      `json:"confidence"`
	EnumValues   []string     `json:"enumValues,omitempty"`
	Format       string       `json:"format,omitempty"`
	Errors       []string     `json:"errors,omitempty"`
	SampleValues []any        `json:"sampleValues,omitempty"`
}

// ConversionResult is the outcome of converting a single value.
// A nil Value with Success=true means the input was absent.
type ConversionResult struct {
	Success       bool     `json:"success"`
	Value         any      `json:"value"`
	OriginalValue any      `json:"originalValue"`
	Errors        []string `json:"errors,omitempty"`
	Warnings      []string `json:"warnings,omitempty"`
}

// FieldMapping describes how a source column maps onto a target field.
type FieldMapping struct {
	FieldName    string              `json:"fieldName"`
	InferredType TypeInferenceResult `json:"inferredType"`
	TargetField  string              `json:"targetField,omitempty"`
	MatchKind    MatchKind           `json:"matchKind,omitempty"`
	Conversion   ConversionResult    `json:"conversion"`
	Confidence   float64             `json:"confidence"`
}

// Mapped reports whether a target field was resolved.
func (m FieldMapping) Mapped() bool {
	return m.TargetField != ""
}

// MatchKind records how a target field was chosen.
type MatchKind string

const (
	MatchNone            MatchKind = ""
	MatchOverride        MatchKind = "override"
	MatchExact           MatchKind = "exact"
	MatchCaseInsensitive MatchKind = "case_insensitive"
	MatchContains        MatchKind = "contains"
	MatchFuzzy           MatchKind = "fuzzy"
)

// Column is a named column of raw values in file order.
type Column struct {
	Name   string
	Values []any
}

// TargetField is a field of the schema a column may be mapped to.
type TargetField struct {
	Name string
	Type InferredType
}

// Options configure an Engine. Zero values select the defaults.
type Options struct {
	SampleSize        int     // values inspected per column (default 100)
	EnumThreshold     float64 // max unique/non-empty ratio for enums (default 0.1)
	MaxEnumValues     int     // max distinct values for enums (default 20)
	MinConfidence     float64 // confidence a name hint needs to override (default 0.7)
	TwoDigitYearPivot int     // years ahead of now before a 2-digit year rolls back a century (default 20)

	// Now is used for 2-digit year pivoting. Defaults to time.Now.
	Now func() time.Time
}

const (
	DefaultSampleSize        = 100
	DefaultEnumThreshold     = 0.1
	DefaultMaxEnumValues     = 20
	DefaultMinConfidence     = 0.7
	DefaultTwoDigitYearPivot = 20

	maxSampleValues = 5
	maxResultErrors = 5
)

func (o Options) withDefaults() Options {
	if o.SampleSize <= 0 {
		o.SampleSize = DefaultSampleSize
	}
	if o.EnumThreshold <= 0 {
		o.EnumThreshold = DefaultEnumThreshold
	}
	if o.MaxEnumValues <= 0 {
		o.MaxEnumValues = DefaultMaxEnumValues
	}
	if o.MinConfidence <= 0 {
		o.MinConfidence = DefaultMinConfidence
	}
	if o.TwoDigitYearPivot <= 0 {
		o.TwoDigitYearPivot = DefaultTwoDigitYearPivot
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}
