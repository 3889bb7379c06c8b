package schema

import (
	"math"
	"strings"

	"github.com/JonMunkholm/importer/internal/infer"
)

// Transform rewrites a converted value into its persisted form.
// Transforms must accept nil and any value the inference engine produces.
type Transform func(any) any

// ToInt coerces a value to int64, falling back to def when it is absent or
// not numeric. Fractions are truncated.
func ToInt(def int64) Transform {
	return func(v any) any {
		switch x := v.(type) {
		case int64:
			return x
		case int:
			return int64(x)
		case float64:
			if math.IsNaN(x) || math.IsInf(x, 0) {
				return def
			}
			return int64(x)
		case bool:
			if x {
				return int64(1)
			}
			return int64(0)
		}
		n, ok := infer.ParseNumber(infer.Stringify(v))
		if !ok {
			return def
		}
		return int64(n.Value)
	}
}

// ToFloat coerces a value to float64, falling back to def.
func ToFloat(def float64) Transform {
	return func(v any) any {
		switch x := v.(type) {
		case float64:
			return x
		case int64:
			return float64(x)
		case int:
			return float64(x)
		}
		n, ok := infer.ParseNumber(infer.Stringify(v))
		if !ok {
			return def
		}
		return n.Value
	}
}

// ToBool coerces a value to bool, falling back to def.
func ToBool(def bool) Transform {
	return func(v any) any {
		if b, ok := v.(bool); ok {
			return b
		}
		b, ok := infer.ParseBool(infer.Stringify(v))
		if !ok {
			return def
		}
		return b
	}
}

// Clamp bounds a numeric value to [lo, hi]. Non-numeric values pass through.
func Clamp(lo, hi int64) Transform {
	return func(v any) any {
		n, ok := v.(int64)
		if !ok {
			return v
		}
		if n < lo {
			return lo
		}
		if n > hi {
			return hi
		}
		return n
	}
}

// Trim removes surrounding whitespace from strings. Nil stays nil.
func Trim(v any) any {
	return stringOp(v, strings.TrimSpace)
}

// ToUpper upper-cases trimmed strings.
func ToUpper(v any) any {
	return stringOp(v, func(s string) string { return strings.ToUpper(strings.TrimSpace(s)) })
}

// ToLower lower-cases trimmed strings.
func ToLower(v any) any {
	return stringOp(v, func(s string) string { return strings.ToLower(strings.TrimSpace(s)) })
}

// ToString renders any non-nil value as text.
func ToString(v any) any {
	if v == nil {
		return nil
	}
	return infer.Stringify(v)
}

// Chain applies transforms left to right.
func Chain(ts ...Transform) Transform {
	return func(v any) any {
		for _, t := range ts {
			if t != nil {
				v = t(v)
			}
		}
		return v
	}
}

func stringOp(v any, fn func(string) string) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	return fn(s)
}
