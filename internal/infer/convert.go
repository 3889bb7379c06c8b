package infer

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// ConvertValue converts a raw value to target.
//
// Absent input (nil or blank) always succeeds with a nil Value. Conversion
// never panics; failures are reported through Success=false and Errors.
// Values that are already of the target's Go type pass through unchanged, so
// converting twice is a no-op.
//
// Go types produced per target:
//
//	integer            int64
//	number             float64
//	boolean            bool
//	date, datetime     time.Time (date is truncated to midnight UTC)
//	everything else    string
func (e *Engine) ConvertValue(value any, target InferredType, enumValues []string) (res ConversionResult) {
	res = ConversionResult{OriginalValue: value}
	defer func() {
		if r := recover(); r != nil {
			res = ConversionResult{
				OriginalValue: value,
				Errors:        []string{fmt.Sprintf("conversion to %s failed: %v", target, r)},
			}
		}
	}()

	if IsEmpty(value) {
		res.Success = true
		return res
	}

	switch target {
	case TypeInteger:
		e.toInteger(value, &res)
	case TypeNumber:
		e.toNumber(value, &res)
	case TypeBoolean:
		toBoolean(value, &res)
	case TypeDate, TypeDateTime:
		e.toTime(value, target, &res)
	case TypeEnum:
		toEnum(value, enumValues, &res)
	case TypeEmail:
		toValidatedString(value, target, IsEmail, &res)
	case TypePhone:
		toValidatedString(value, target, IsPhone, &res)
	case TypeURL:
		toValidatedString(value, target, IsURL, &res)
	case TypeID:
		s := Stringify(value)
		if !IsIdentifier(s) {
			res.Warnings = append(res.Warnings, fmt.Sprintf("%q does not look like an identifier", s))
		}
		res.Success, res.Value = true, s
	case TypeString, "":
		res.Success, res.Value = true, Stringify(value)
	default:
		res.Errors = append(res.Errors, fmt.Sprintf("unknown target type %q", target))
	}
	return res
}

func (e *Engine) toNumber(value any, res *ConversionResult) {
	if n, ok := nativeNumber(value); ok {
		res.Success, res.Value = true, n.Value
		return
	}
	s := Stringify(value)
	n, ok := ParseNumber(s)
	if !ok {
		res.Errors = append(res.Errors, fmt.Sprintf("invalid number %q", s))
		return
	}
	res.Success, res.Value = true, n.Value
}

func (e *Engine) toInteger(value any, res *ConversionResult) {
	switch x := value.(type) {
	case int64:
		res.Success, res.Value = true, x
		return
	case int:
		res.Success, res.Value = true, int64(x)
		return
	case int32:
		res.Success, res.Value = true, int64(x)
		return
	}

	n, ok := nativeNumber(value)
	if !ok {
		s := Stringify(value)
		n, ok = ParseNumber(s)
		if !ok {
			res.Errors = append(res.Errors, fmt.Sprintf("invalid number %q", s))
			return
		}
	}
	if !n.IsInteger() {
		res.Errors = append(res.Errors, fmt.Sprintf("invalid integer %s: has a fractional part", Stringify(value)))
		return
	}
	res.Success, res.Value = true, int64(math.Trunc(n.Value))
}

func toBoolean(value any, res *ConversionResult) {
	if b, ok := value.(bool); ok {
		res.Success, res.Value = true, b
		return
	}
	s := Stringify(value)
	b, ok := ParseBool(s)
	if !ok {
		res.Errors = append(res.Errors, fmt.Sprintf("invalid boolean %q: use yes/no, true/false or 1/0", s))
		return
	}
	res.Success, res.Value = true, b
}

func (e *Engine) toTime(value any, target InferredType, res *ConversionResult) {
	var t time.Time
	switch x := value.(type) {
	case time.Time:
		t = x
	default:
		s := Stringify(value)
		d, ok := ParseDate(s, e.opts.TwoDigitYearPivot, e.opts.Now())
		if !ok {
			res.Errors = append(res.Errors, fmt.Sprintf("invalid date %q", s))
			return
		}
		t = d.Time
		if target == TypeDate && d.HasTime {
			res.Warnings = append(res.Warnings, fmt.Sprintf("time of day dropped from %q", s))
		}
	}
	if target == TypeDate {
		t = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	}
	res.Success, res.Value = true, t
}

func toEnum(value any, enumValues []string, res *ConversionResult) {
	s := Stringify(value)
	if len(enumValues) == 0 {
		res.Success, res.Value = true, s
		return
	}
	for _, ev := range enumValues {
		if ev == s {
			res.Success, res.Value = true, ev
			return
		}
	}
	for _, ev := range enumValues {
		if strings.EqualFold(ev, s) {
			res.Success, res.Value = true, ev
			return
		}
	}
	res.Success, res.Value = true, s
	res.Warnings = append(res.Warnings, fmt.Sprintf("value %q is not one of: %s", s, strings.Join(enumValues, ", ")))
}

func toValidatedString(value any, target InferredType, valid func(string) bool, res *ConversionResult) {
	s := Stringify(value)
	if !valid(s) {
		res.Errors = append(res.Errors, fmt.Sprintf("invalid %s %q", target, s))
		return
	}
	if target == TypeEmail {
		s = strings.ToLower(s)
	}
	res.Success, res.Value = true, s
}
