package infer

import (
	"math"
	"strings"
	"time"
)

// idBaseWeight caps the confidence an identifier column earns from its values
// alone; the remaining weight comes from a matching column-name hint. Without
// it every alphanumeric column would tie with the narrower types.
const (
	idBaseWeight = 0.7
	idHintBoost  = 0.3

	stringConfidence = 0.1
)

// Matches reports whether a single non-empty value is consistent with t.
// Enum and string accept everything.
func (e *Engine) Matches(t InferredType, v any) bool {
	switch t {
	case TypeBoolean:
		if _, ok := v.(bool); ok {
			return true
		}
		return IsBoolString(Stringify(v))
	case TypeInteger:
		n, ok := nativeNumber(v)
		if !ok {
			p, parsed := ParseNumber(Stringify(v))
			if !parsed {
				return false
			}
			n = p
		}
		return n.IsInteger()
	case TypeNumber:
		if _, ok := nativeNumber(v); ok {
			return true
		}
		_, ok := ParseNumber(Stringify(v))
		return ok
	case TypeDate:
		_, ok := e.parseTime(v)
		return ok
	case TypeDateTime:
		d, ok := e.parseTime(v)
		return ok && d.HasTime
	case TypeEmail:
		s, ok := v.(string)
		return ok && IsEmail(s)
	case TypePhone:
		return IsPhone(Stringify(v))
	case TypeURL:
		s, ok := v.(string)
		return ok && IsURL(s)
	case TypeID:
		if _, ok := v.(bool); ok {
			return false
		}
		return IsIdentifier(Stringify(v))
	case TypeEnum, TypeString:
		return true
	}
	return false
}

// ScoreRatio returns the fraction of values that match t.
func (e *Engine) ScoreRatio(t InferredType, values []any) float64 {
	if len(values) == 0 {
		return 0
	}
	matched := 0
	for _, v := range values {
		if e.Matches(t, v) {
			matched++
		}
	}
	return float64(matched) / float64(len(values))
}

// ScoreID weights the identifier ratio and adds the name-hint boost.
func ScoreID(ratio float64, hinted bool) float64 {
	if ratio <= 0 {
		return 0
	}
	conf := ratio * idBaseWeight
	if hinted {
		conf += idHintBoost
	}
	return clamp01(conf)
}

// ScoreEnum classifies values as an enumeration when the unique ratio is at
// most threshold and there are at most maxValues distinct values. Values are
// case-folded. Confidence is 1 - uniqueRatio, or 0 when not enum-shaped.
func ScoreEnum(values []any, threshold float64, maxValues int) (float64, []string) {
	if len(values) == 0 {
		return 0, nil
	}
	seen := make(map[string]struct{})
	var distinct []string
	for _, v := range values {
		key := strings.ToLower(Stringify(v))
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		distinct = append(distinct, key)
	}

	ratio := float64(len(distinct)) / float64(len(values))
	if ratio > threshold || len(distinct) > maxValues {
		return 0, nil
	}
	return clamp01(1 - ratio), distinct
}

// scoreCandidates scores every candidate type against the non-empty sample.
// The result is indexed like candidateOrder.
func (e *Engine) scoreCandidates(values []any, hint InferredType) []TypeInferenceResult {
	results := make([]TypeInferenceResult, 0, len(candidateOrder))
	for _, t := range candidateOrder {
		res := TypeInferenceResult{Type: t}
		switch t {
		case TypeString:
			res.Confidence = stringConfidence
		case TypeEnum:
			res.Confidence, res.EnumValues = ScoreEnum(values, e.opts.EnumThreshold, e.opts.MaxEnumValues)
		case TypeID:
			res.Confidence = ScoreID(e.ScoreRatio(TypeID, values), hint == TypeID)
		default:
			res.Confidence = clamp01(e.ScoreRatio(t, values))
		}
		if res.Confidence > 0 {
			res.Format = e.detectFormat(t, values)
		}
		results = append(results, res)
	}
	return results
}

// detectFormat describes the dominant representation of a typed column.
func (e *Engine) detectFormat(t InferredType, values []any) string {
	switch t {
	case TypeDate, TypeDateTime:
		for _, v := range values {
			if s, ok := v.(string); ok {
				if d, ok := ParseDate(s, e.opts.TwoDigitYearPivot, e.opts.Now()); ok {
					return d.Layout
				}
			}
		}
	case TypeNumber, TypeInteger:
		for _, v := range values {
			if s, ok := v.(string); ok {
				if n, ok := ParseNumber(s); ok && n.Format != "" {
					return n.Format
				}
			}
		}
	}
	return ""
}

// mismatches lists up to maxResultErrors values that do not fit t.
func (e *Engine) mismatches(t InferredType, values []any) []string {
	var errs []string
	for _, v := range values {
		if e.Matches(t, v) {
			continue
		}
		errs = append(errs, "value "+quote(Stringify(v))+" is not a valid "+string(t))
		if len(errs) == maxResultErrors {
			break
		}
	}
	return errs
}

func (e *Engine) parseTime(v any) (ParsedDate, bool) {
	if t, ok := v.(time.Time); ok {
		hasTime := t.Hour() != 0 || t.Minute() != 0 || t.Second() != 0 || t.Nanosecond() != 0
		return ParsedDate{Time: t, HasTime: hasTime}, true
	}
	s, ok := v.(string)
	if !ok {
		return ParsedDate{}, false
	}
	return ParseDate(s, e.opts.TwoDigitYearPivot, e.opts.Now())
}

func nativeNumber(v any) (ParsedNumber, bool) {
	switch x := v.(type) {
	case int:
		return ParsedNumber{Value: float64(x)}, true
	case int32:
		return ParsedNumber{Value: float64(x)}, true
	case int64:
		return ParsedNumber{Value: float64(x)}, true
	case float32:
		return ParsedNumber{Value: float64(x)}, true
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return ParsedNumber{}, false
		}
		return ParsedNumber{Value: x}, true
	}
	return ParsedNumber{}, false
}

func clamp01(f float64) float64 {
	switch {
	case math.IsNaN(f) || f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}

func quote(s string) string {
	return `"` + s + `"`
}
