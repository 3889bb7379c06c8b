package pipeline

import (
	"fmt"

	"github.com/JonMunkholm/importer/internal/schema"
)

// Transformer applies schema-declared transforms to validated rows.
type Transformer struct {
	schema schema.Schema
}

// NewTransformer creates a transformer for s.
func NewTransformer(s schema.Schema) *Transformer {
	return &Transformer{schema: s}
}

// Transform builds a persistence-ready record from mapped fields. Only
// fields present in the input are transformed; a panicking transform is
// reported as an error for the row.
func (t *Transformer) Transform(fields map[string]any) (rec schema.Record, err error) {
	rec = schema.NewRecord(t.schema.Entity)

	var current string
	defer func() {
		if r := recover(); r != nil {
			rec = schema.Record{}
			err = fmt.Errorf("transform %s: %v", current, r)
		}
	}()

	for name, value := range fields {
		current = name
		if f, ok := t.schema.Field(name); ok && f.Transform != nil {
			value = f.Transform(value)
		}
		rec.Fields[name] = value
	}
	return rec, nil
}
