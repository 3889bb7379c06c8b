package infer

import "strings"

var matchWeights = map[MatchKind]float64{
	MatchOverride:        1,
	MatchExact:           1,
	MatchCaseInsensitive: 0.95,
	MatchContains:        0.8,
}

// CreateFieldMappings analyzes every column and, when target fields are
// supplied, resolves each column to a target field by exact name, then
// case-insensitive name, then substring containment in either direction.
// The first hit in that order wins.
//
// One representative value per column is converted to check the mapping.
func (e *Engine) CreateFieldMappings(columns []Column, target []TargetField) map[string]FieldMapping {
	out := make(map[string]FieldMapping, len(columns))
	for _, col := range columns {
		result := e.AnalyzeColumn(col.Name, col.Values, 0)

		m := FieldMapping{
			FieldName:    col.Name,
			InferredType: result,
			Confidence:   result.Confidence,
		}
		if len(target) > 0 {
			m.Confidence = 0
			if tf, kind, ok := MatchField(col.Name, target); ok {
				m.TargetField = tf.Name
				m.MatchKind = kind
				m.Confidence = MappingConfidence(result, tf, kind)
			}
		}
		m.Conversion = e.ConvertValue(firstNonEmpty(col.Values), result.Type, result.EnumValues)
		out[col.Name] = m
	}
	return out
}

// MatchField finds the target field for a column name using ordinal
// precedence: exact, case-insensitive, then containment.
func MatchField(column string, target []TargetField) (TargetField, MatchKind, bool) {
	for _, tf := range target {
		if tf.Name == column {
			return tf, MatchExact, true
		}
	}
	for _, tf := range target {
		if strings.EqualFold(tf.Name, column) {
			return tf, MatchCaseInsensitive, true
		}
	}
	lc := strings.ToLower(column)
	if lc == "" {
		return TargetField{}, MatchNone, false
	}
	for _, tf := range target {
		ln := strings.ToLower(tf.Name)
		if ln == "" {
			continue
		}
		if strings.Contains(ln, lc) || strings.Contains(lc, ln) {
			return tf, MatchContains, true
		}
	}
	return TargetField{}, MatchNone, false
}

// MappingConfidence weighs the inference confidence by how the field was
// matched and halves it when the inferred type cannot feed the target type.
func MappingConfidence(result TypeInferenceResult, tf TargetField, kind MatchKind) float64 {
	w, ok := matchWeights[kind]
	if !ok {
		w = 0.6
	}
	conf := result.Confidence * w
	if tf.Type != "" && !Compatible(result.Type, tf.Type) {
		conf *= 0.5
	}
	return clamp01(conf)
}

// Compatible reports whether values inferred as from can be stored in a field
// declared as to.
func Compatible(from, to InferredType) bool {
	if from == to || to == TypeString || to == "" {
		return true
	}
	switch to {
	case TypeNumber:
		return from == TypeInteger
	case TypeDate, TypeDateTime:
		return from == TypeDate || from == TypeDateTime
	case TypeID, TypeEnum:
		return from.IsTextual() || from == TypeInteger
	case TypeInteger:
		return from == TypeEnum
	}
	return false
}

func firstNonEmpty(values []any) any {
	for _, v := range values {
		if !IsEmpty(v) {
			return v
		}
	}
	return nil
}
