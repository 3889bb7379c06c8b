package pipeline

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// HeaderMapping links a source header to its normalized column name.
type HeaderMapping struct {
	Index      int    `json:"index"`
	Original   string `json:"original"`
	Normalized string `json:"normalized"`
}

// NormalizeHeader converts arbitrary header text into a snake_case column
// name: lower-case, accents removed, runs of non-alphanumeric characters
// replaced by a single underscore, leading and trailing underscores trimmed.
// It returns "" when nothing alphanumeric remains.
func NormalizeHeader(s string) string {
	s = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(s, "\ufeff")))

	t := transform.Chain(
		norm.NFD,
		runes.Remove(runes.In(unicode.Mn)),
		norm.NFC,
	)
	folded, _, err := transform.String(t, s)
	if err == nil {
		s = folded
	}

	var b strings.Builder
	prevUnderscore := false
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			prevUnderscore = false
			continue
		}
		if !prevUnderscore {
			b.WriteRune('_')
			prevUnderscore = true
		}
	}
	return strings.Trim(b.String(), "_")
}

// NormalizeHeaders normalizes a header row positionally. Empty headers become
// column_N (1-based position) and repeated names get _2, _3, ... suffixes.
// Every rename is reported as a warning.
func NormalizeHeaders(headers []string) ([]HeaderMapping, []Warning) {
	out := make([]HeaderMapping, len(headers))
	var warnings []Warning

	used := make(map[string]bool, len(headers))
	for i, h := range headers {
		name := NormalizeHeader(h)
		if name == "" {
			name = fmt.Sprintf("column_%d", i+1)
			warnings = append(warnings, Warning{
				Stage:   StageNormalize,
				Field:   name,
				Message: fmt.Sprintf("empty header in column %d named %q", i+1, name),
			})
		}

		if used[name] {
			base := name
			for n := 2; used[name]; n++ {
				name = fmt.Sprintf("%s_%d", base, n)
			}
			warnings = append(warnings, Warning{
				Stage:   StageNormalize,
				Field:   name,
				Message: fmt.Sprintf("duplicate header %q renamed to %q", strings.TrimSpace(h), name),
			})
		}
		used[name] = true

		out[i] = HeaderMapping{Index: i, Original: h, Normalized: name}
	}
	return out, warnings
}
