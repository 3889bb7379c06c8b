package pipeline

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/importer/internal/infer"
	"github.com/JonMunkholm/importer/internal/schema"
)

func newValidator(t *testing.T, s schema.Schema, rules ...ValidationRule) *Validator {
	t.Helper()
	v, err := NewValidator(infer.New(infer.Options{}), s, rules)
	require.NoError(t, err)
	return v
}

func TestValidator_SchemaDefaults(t *testing.T) {
	v := newValidator(t, schema.StudentSchema)

	tests := []struct {
		name       string
		fields     map[string]any
		wantFields []string
	}{
		{
			name: "valid row",
			fields: map[string]any{
				"student_id": "1001", "first_name": "Alice", "last_name": "Smith",
				"grade_level": int64(7), "grade_category": "advanced",
			},
		},
		{
			name:       "missing required",
			fields:     map[string]any{"student_id": "1002", "last_name": "Jones"},
			wantFields: []string{"first_name"},
		},
		{
			name:       "blank required",
			fields:     map[string]any{"student_id": " ", "first_name": "A", "last_name": "B"},
			wantFields: []string{"student_id"},
		},
		{
			name: "wrong type and enum",
			fields: map[string]any{
				"student_id": "1003", "first_name": "C", "last_name": "D",
				"grade_level": "seventh", "grade_category": "gifted",
			},
			wantFields: []string{"grade_level", "grade_category"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := v.Validate(tt.fields)

			var got []string
			for _, e := range errs {
				got = append(got, e.Field)
			}
			assert.ElementsMatch(t, tt.wantFields, got)
		})
	}
}

func TestValidator_CustomRules(t *testing.T) {
	v := newValidator(t, schema.StudentSchema,
		ValidationRule{Field: "student_id", Required: true, Pattern: `^S\d{4}$`},
		ValidationRule{Field: "first_name", Required: true, MinLength: 2, MaxLength: 5},
		ValidationRule{Field: "last_name", Custom: func(v any) error {
			if strings.HasPrefix(infer.Stringify(v), "X") {
				return errors.New("reserved surname")
			}
			return nil
		}},
		ValidationRule{Field: "nickname", MaxLength: 3},
	)

	errs := v.Validate(map[string]any{
		"student_id": "1001",
		"first_name": "Alexandra",
		"last_name":  "Xu",
		"nickname":   "Sasha",
	})

	byField := make(map[string]ValidationError)
	for _, e := range errs {
		byField[e.Field] = e
	}
	require.Len(t, byField, 4)
	assert.Contains(t, byField["student_id"].Message, "does not match pattern")
	assert.Contains(t, byField["first_name"].Message, "at most 5")
	assert.Equal(t, "reserved surname", byField["last_name"].Message)
	assert.Equal(t, "Sasha", byField["nickname"].Value)

	// last_name is no longer required once its default rule is replaced.
	errs = v.Validate(map[string]any{"student_id": "S1001", "first_name": "Al"})
	assert.Empty(t, errs)
}

func TestValidator_Types(t *testing.T) {
	v := newValidator(t, schema.EquipmentSchema)

	errs := v.Validate(map[string]any{
		"serial_number":   "SN-1",
		"name":            "Projector",
		"status":          "in_use",
		"purchase_date":   time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		"warranty_expiry": "not a date",
	})
	require.Len(t, errs, 1)
	assert.Equal(t, "warranty_expiry", errs[0].Field)
	assert.Contains(t, errs[0].Message, "invalid date")
}

func TestNewValidator_Errors(t *testing.T) {
	engine := infer.New(infer.Options{})

	_, err := NewValidator(engine, schema.StudentSchema, []ValidationRule{{Field: "x", Pattern: "("}})
	assert.Error(t, err)

	_, err = NewValidator(engine, schema.StudentSchema, []ValidationRule{{Pattern: "a"}})
	assert.Error(t, err)

	_, err = NewValidator(engine, schema.StudentSchema, []ValidationRule{{Field: "x", Type: "blob"}})
	assert.Error(t, err)
}

func TestValidator_RulesAreCopied(t *testing.T) {
	v := newValidator(t, schema.StudentSchema)

	rules := v.Rules()
	rules[0].Required = false

	errs := v.Validate(map[string]any{"first_name": "A", "last_name": "B"})
	require.Len(t, errs, 1)
	assert.Equal(t, "student_id", errs[0].Field)
}

func TestTransformer(t *testing.T) {
	tr := NewTransformer(schema.StudentSchema)

	rec, err := tr.Transform(map[string]any{
		"student_id":     " 1001 ",
		"grade_level":    int64(15),
		"grade_category": "advanced",
	})
	require.NoError(t, err)

	assert.Equal(t, schema.Students, rec.Entity)
	assert.Equal(t, "1001", rec.Get("student_id"))
	assert.Equal(t, int64(12), rec.Get("grade_level"))
	assert.Equal(t, "ADVANCED", rec.Get("grade_category"))
	assert.NotContains(t, rec.Fields, "first_name")
}

func TestTransformer_Panic(t *testing.T) {
	s := schema.Schema{
		Entity:          "widgets",
		ExternalIDField: "id",
		Fields: []schema.FieldDef{
			{Name: "id", Type: infer.TypeID, Transform: func(any) any { panic("boom") }},
		},
	}

	_, err := NewTransformer(s).Transform(map[string]any{"id": "1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}
