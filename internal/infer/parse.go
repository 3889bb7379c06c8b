package infer

// parse.go holds the low-level parsers shared by scoring and conversion.
//
// They deal with the messy reality of spreadsheet exports:
//   - Currency symbols, percent signs and thousands separators in numbers
//   - Accounting negatives written as "(123.45)"
//   - ISO-8601 timestamps next to US and EU positional dates
//   - Many spellings of yes/no

import (
	"fmt"
	"math"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	// numericRegex validates a number after symbol stripping.
	numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

	emailRegex = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phoneRegex = regexp.MustCompile(`^\+?[\d\s\-().]{7,20}$`)
	idRegex    = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	boolRegex  = regexp.MustCompile(`(?i)^(true|false|yes|no|1|0|y|n|on|off|✓|✗|t|f)$`)
)

// MaxIDLength is the longest value still considered an identifier.
const MaxIDLength = 50

var (
	isoLayouts = []dateLayout{
		{time.RFC3339Nano, true},
		{time.RFC3339, true},
		{"2006-01-02T15:04:05", true},
		{"2006-01-02T15:04", true},
		{"2006-01-02 15:04:05", true},
		{"2006-01-02 15:04", true},
		{"2006-01-02", false},
	}
	fourDigitYearLayouts = []dateLayout{
		{"1/2/2006", false},
		{"2-1-2006", false},
		{"2006/1/2", false},
		{"1/2/2006 15:04:05", true},
		{"1/2/2006 15:04", true},
	}
	twoDigitYearLayouts = []dateLayout{
		{"1/2/06", false},
	}
)

type dateLayout struct {
	layout  string
	hasTime bool
}

// ParsedDate is a successfully parsed date or timestamp.
type ParsedDate struct {
	Time    time.Time
	HasTime bool
	Layout  string
}

// ParseDate parses s with the ISO-8601 layouts first, then the positional
// layouts (MM/DD/YYYY, DD-MM-YYYY, YYYY/MM/DD, MM/DD/YY). Two-digit years
// that land more than pivot years after now are moved back one century.
func ParseDate(s string, pivot int, now time.Time) (ParsedDate, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return ParsedDate{}, false
	}

	for _, group := range [][]dateLayout{isoLayouts, fourDigitYearLayouts} {
		for _, l := range group {
			if t, err := time.Parse(l.layout, s); err == nil {
				return ParsedDate{Time: t, HasTime: l.hasTime, Layout: l.layout}, true
			}
		}
	}

	pivotYear := now.Year() + pivot
	for _, l := range twoDigitYearLayouts {
		t, err := time.Parse(l.layout, s)
		if err != nil {
			continue
		}
		if t.Year() > pivotYear {
			t = t.AddDate(-100, 0, 0)
		}
		return ParsedDate{Time: t, HasTime: l.hasTime, Layout: l.layout}, true
	}

	return ParsedDate{}, false
}

// ParsedNumber is a successfully parsed numeric string.
type ParsedNumber struct {
	Value  float64
	Format string // "currency", "percent" or ""
}

// IsInteger reports whether the value has no fractional part.
func (n ParsedNumber) IsInteger() bool {
	return n.Value == math.Trunc(n.Value) && math.Abs(n.Value) < 1<<53
}

// ParseNumber strips currency symbols, percent signs and thousands
// separators, then parses the remainder as a decimal number.
// Accounting negatives "(123.45)" are supported.
func ParseNumber(s string) (ParsedNumber, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return ParsedNumber{}, false
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	format := ""
	if strings.ContainsAny(s, "$€£") {
		format = "currency"
	} else if strings.Contains(s, "%") {
		format = "percent"
	}

	s = strings.NewReplacer(
		"$", "",
		"€", "", // Euro
		"£", "", // Pound
		"%", "",
		",", "",
	).Replace(s)
	s = strings.TrimSpace(s)

	if negative {
		s = "-" + s
	}

	if !numericRegex.MatchString(s) {
		return ParsedNumber{}, false
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
		return ParsedNumber{}, false
	}
	return ParsedNumber{Value: v, Format: format}, true
}

// ParseBool accepts true/false, yes/no, y/n, t/f, on/off, 1/0 and ✓/✗.
func ParseBool(s string) (value bool, ok bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "true", "yes", "y", "t", "on", "1", "✓":
		return true, true
	case "false", "no", "n", "f", "off", "0", "✗":
		return false, true
	}
	return false, false
}

// IsBoolString reports whether s is one of the recognised boolean spellings.
func IsBoolString(s string) bool {
	return boolRegex.MatchString(strings.TrimSpace(s))
}

// IsEmail reports whether s looks like an e-mail address.
func IsEmail(s string) bool {
	return emailRegex.MatchString(strings.TrimSpace(s))
}

// IsPhone reports whether s looks like a phone number: 7-20 characters of
// digits and separators containing at least seven digits.
func IsPhone(s string) bool {
	s = strings.TrimSpace(s)
	if !phoneRegex.MatchString(s) {
		return false
	}
	digits := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	return digits >= 7
}

// IsURL reports whether s is an absolute URL with a scheme and host.
func IsURL(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" || strings.ContainsAny(s, " \t") {
		return false
	}
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return u.Scheme != "" && u.Host != ""
}

// IsIdentifier reports whether s is a plausible business key: letters,
// digits, hyphens and underscores only, at most MaxIDLength characters and
// containing at least one digit.
func IsIdentifier(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" || len(s) > MaxIDLength || !idRegex.MatchString(s) {
		return false
	}
	return strings.ContainsAny(s, "0123456789")
}

// IsEmpty reports whether v is absent: nil or a blank string.
func IsEmpty(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	case []byte:
		return strings.TrimSpace(string(x)) == ""
	}
	return false
}

// Stringify renders a raw or converted value as text.
// Whole floats are rendered without a decimal point.
func Stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case []byte:
		return strings.TrimSpace(string(x))
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		if x.Hour() == 0 && x.Minute() == 0 && x.Second() == 0 && x.Nanosecond() == 0 {
			return x.Format("2006-01-02")
		}
		return x.Format(time.RFC3339)
	case interface{ String() string }:
		return x.String()
	}
	return strings.TrimSpace(fmt.Sprint(v))
}
