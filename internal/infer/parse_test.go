package infer

import (
	"testing"
	"time"
)

// ----------------------------------------------------------------------------
// ParseNumber Tests
// ----------------------------------------------------------------------------

func TestParseNumber(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		wantValid  bool
		wantValue  float64
		wantFormat string
	}{
		{name: "positive integer", input: "123", wantValid: true, wantValue: 123},
		{name: "negative integer", input: "-456", wantValid: true, wantValue: -456},
		{name: "decimal", input: "123.45", wantValid: true, wantValue: 123.45},
		{name: "leading decimal point", input: ".99", wantValid: true, wantValue: 0.99},
		{name: "thousands separator", input: "1,234,567.89", wantValid: true, wantValue: 1234567.89},
		{name: "dollar sign", input: "$1,234.56", wantValid: true, wantValue: 1234.56, wantFormat: "currency"},
		{name: "euro sign", input: "€99", wantValid: true, wantValue: 99, wantFormat: "currency"},
		{name: "percent", input: "45%", wantValid: true, wantValue: 45, wantFormat: "percent"},
		{name: "accounting negative", input: "($1,234.56)", wantValid: true, wantValue: -1234.56, wantFormat: "currency"},
		{name: "scientific notation", input: "1.5e3", wantValid: true, wantValue: 1500},
		{name: "surrounding whitespace", input: "  42  ", wantValid: true, wantValue: 42},
		{name: "empty", input: "", wantValid: false},
		{name: "letters", input: "abc", wantValid: false},
		{name: "mixed", input: "12abc", wantValid: false},
		{name: "only symbols", input: "$", wantValid: false},
		{name: "two decimal points", input: "1.2.3", wantValid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseNumber(tt.input)
			if ok != tt.wantValid {
				t.Fatalf("ParseNumber(%q) ok = %v, want %v", tt.input, ok, tt.wantValid)
			}
			if !ok {
				return
			}
			if got.Value != tt.wantValue {
				t.Errorf("ParseNumber(%q) = %v, want %v", tt.input, got.Value, tt.wantValue)
			}
			if got.Format != tt.wantFormat {
				t.Errorf("ParseNumber(%q) format = %q, want %q", tt.input, got.Format, tt.wantFormat)
			}
		})
	}
}

func TestParsedNumber_IsInteger(t *testing.T) {
	if !(ParsedNumber{Value: 12}).IsInteger() {
		t.Error("12 should be an integer")
	}
	if !(ParsedNumber{Value: 12.0}).IsInteger() {
		t.Error("12.0 should be an integer")
	}
	if (ParsedNumber{Value: 12.5}).IsInteger() {
		t.Error("12.5 should not be an integer")
	}
}

// ----------------------------------------------------------------------------
// ParseDate Tests
// ----------------------------------------------------------------------------

func TestParseDate(t *testing.T) {
	now := time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		input       string
		wantValid   bool
		wantDate    string // YYYY-MM-DD
		wantHasTime bool
	}{
		{name: "ISO date", input: "2024-01-15", wantValid: true, wantDate: "2024-01-15"},
		{name: "RFC3339", input: "2024-01-15T10:30:00Z", wantValid: true, wantDate: "2024-01-15", wantHasTime: true},
		{name: "ISO without zone", input: "2024-01-15T10:30:00", wantValid: true, wantDate: "2024-01-15", wantHasTime: true},
		{name: "ISO with space", input: "2024-01-15 10:30:00", wantValid: true, wantDate: "2024-01-15", wantHasTime: true},
		{name: "US slash", input: "03/15/2024", wantValid: true, wantDate: "2024-03-15"},
		{name: "US slash single digits", input: "3/5/2024", wantValid: true, wantDate: "2024-03-05"},
		{name: "EU dash", input: "15-03-2024", wantValid: true, wantDate: "2024-03-15"},
		{name: "year first slash", input: "2024/03/15", wantValid: true, wantDate: "2024-03-15"},
		{name: "two digit year recent", input: "03/15/24", wantValid: true, wantDate: "2024-03-15"},
		{name: "two digit year pivots back", input: "12/31/99", wantValid: true, wantDate: "1999-12-31"},
		{name: "invalid month", input: "13/45/2024", wantValid: false},
		{name: "plain number", input: "20240115", wantValid: false},
		{name: "text", input: "yesterday", wantValid: false},
		{name: "empty", input: "", wantValid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseDate(tt.input, DefaultTwoDigitYearPivot, now)
			if ok != tt.wantValid {
				t.Fatalf("ParseDate(%q) ok = %v, want %v", tt.input, ok, tt.wantValid)
			}
			if !ok {
				return
			}
			if d := got.Time.Format("2006-01-02"); d != tt.wantDate {
				t.Errorf("ParseDate(%q) = %s, want %s", tt.input, d, tt.wantDate)
			}
			if got.HasTime != tt.wantHasTime {
				t.Errorf("ParseDate(%q) HasTime = %v, want %v", tt.input, got.HasTime, tt.wantHasTime)
			}
		})
	}
}

// ----------------------------------------------------------------------------
// ParseBool and format predicates
// ----------------------------------------------------------------------------

func TestParseBool(t *testing.T) {
	truthy := []string{"true", "TRUE", "yes", "Y", "1", "on", "t", "✓"}
	falsy := []string{"false", "No", "n", "0", "off", "F", "✗"}

	for _, s := range truthy {
		if v, ok := ParseBool(s); !ok || !v {
			t.Errorf("ParseBool(%q) = %v, %v; want true, true", s, v, ok)
		}
		if !IsBoolString(s) {
			t.Errorf("IsBoolString(%q) = false, want true", s)
		}
	}
	for _, s := range falsy {
		if v, ok := ParseBool(s); !ok || v {
			t.Errorf("ParseBool(%q) = %v, %v; want false, true", s, v, ok)
		}
	}
	if _, ok := ParseBool("maybe"); ok {
		t.Error("ParseBool(maybe) should fail")
	}
}

func TestFormatPredicates(t *testing.T) {
	tests := []struct {
		name string
		fn   func(string) bool
		in   string
		want bool
	}{
		{"email valid", IsEmail, "jane.doe@school.edu", true},
		{"email missing domain dot", IsEmail, "jane@school", false},
		{"email with space", IsEmail, "jane doe@school.edu", false},
		{"phone international", IsPhone, "+63 912 345 6789", true},
		{"phone dashes", IsPhone, "555-123-4567", true},
		{"phone too short", IsPhone, "12-34", false},
		{"url https", IsURL, "https://example.com/books/1", true},
		{"url without scheme", IsURL, "example.com", false},
		{"id alnum", IsIdentifier, "STU-0001", true},
		{"id numeric", IsIdentifier, "1001", true},
		{"id plain word", IsIdentifier, "Alice", false},
		{"id with space", IsIdentifier, "STU 001", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.fn(tt.in); got != tt.want {
				t.Errorf("%s(%q) = %v, want %v", tt.name, tt.in, got, tt.want)
			}
		})
	}
}

func TestNameHint(t *testing.T) {
	tests := []struct {
		column string
		want   InferredType
	}{
		{"student_id", TypeID},
		{"Student ID", TypeID},
		{"accession_no", TypeID},
		{"isbn_code", TypeID},
		{"email_address", TypeEmail},
		{"guardian_phone", TypePhone},
		{"date_of_birth", TypeDate},
		{"created_at", TypeDateTime},
		{"updated_at", TypeDateTime},
		{"grade_level", TypeEnum},
		{"status", TypeEnum},
		{"is_active", TypeBoolean},
		{"unit_price", TypeNumber},
		{"first_name", ""},
		{"", ""},
	}

	for _, tt := range tests {
		if got := NameHint(tt.column); got != tt.want {
			t.Errorf("NameHint(%q) = %q, want %q", tt.column, got, tt.want)
		}
	}
}

func TestStringify(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{"  padded ", "padded"},
		{float64(1001), "1001"},
		{12.5, "12.5"},
		{int64(7), "7"},
		{true, "true"},
		{time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), "2024-01-15"},
	}
	for _, tt := range tests {
		if got := Stringify(tt.in); got != tt.want {
			t.Errorf("Stringify(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
