package pipeline

import (
	"fmt"
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/JonMunkholm/importer/internal/infer"
)

const (
	// fuzzyThreshold is the score a fuzzy match must exceed to be accepted.
	fuzzyThreshold = 30.0

	maxSuggestions = 3
)

// ColumnMapping is the resolved destination of one source column.
type ColumnMapping struct {
	Index  int             `json:"index"`
	Source string          `json:"source"`
	Column string          `json:"column"`
	Target string          `json:"target,omitempty"`
	Kind   infer.MatchKind `json:"kind,omitempty"`
	Score  float64         `json:"score,omitempty"`
}

// Mapped reports whether the column feeds a target field.
func (c ColumnMapping) Mapped() bool {
	return c.Target != ""
}

// FuzzyScore rates how similar a source column name is to a target field
// name on a 0-100 scale. Both names are lower-cased with '_' and '-'
// removed. Equal names score 100, containment either way scores 80,
// otherwise the score is the shared character count over the longer
// length, times 60.
func FuzzyScore(source, target string) float64 {
	a, b := squash(source), squash(target)
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 100
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return 80
	}

	counts := make(map[rune]int)
	for _, r := range a {
		counts[r]++
	}
	shared := 0
	for _, r := range b {
		if counts[r] > 0 {
			counts[r]--
			shared++
		}
	}

	longer := len([]rune(a))
	if n := len([]rune(b)); n > longer {
		longer = n
	}
	return float64(shared) / float64(longer) * 60
}

func squash(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer("_", "", "-", "").Replace(s)
}

// Mapper resolves normalized source columns to schema fields.
//
// Resolution order per column: caller override, then the engine's ordinal
// match (exact, case-insensitive, containment), then the best fuzzy score
// above the threshold. A target claimed by an earlier column is never
// reassigned.
type Mapper struct {
	targets   []infer.TargetField
	overrides map[string]string
}

// NewMapper creates a mapper for targets. Override keys may be original or
// normalized headers.
func NewMapper(targets []infer.TargetField, overrides map[string]string) *Mapper {
	return &Mapper{targets: targets, overrides: overrides}
}

// Resolve assigns a target to every header. mappings holds the engine's
// per-column analysis keyed by normalized name; entries are updated with the
// final target, match kind and confidence.
func (m *Mapper) Resolve(headers []HeaderMapping, mappings map[string]infer.FieldMapping) ([]ColumnMapping, []Warning) {
	out := make([]ColumnMapping, len(headers))
	claimed := make(map[string]string, len(m.targets))
	decided := make([]bool, len(headers))
	var warnings []Warning

	// Overrides claim their targets before any automatic match.
	for i, h := range headers {
		out[i] = ColumnMapping{Index: h.Index, Source: h.Original, Column: h.Normalized}

		target, ok := m.override(h)
		if !ok {
			continue
		}
		decided[i] = true
		if target == "" {
			continue
		}
		tf, exists := m.target(target)
		if !exists {
			decided[i] = false
			warnings = append(warnings, Warning{
				Stage:   StageMap,
				Field:   h.Normalized,
				Message: fmt.Sprintf("mapping override for %q names unknown field %q", h.Original, target),
			})
			continue
		}
		if prev, taken := claimed[tf.Name]; taken {
			warnings = append(warnings, Warning{
				Stage:   StageMap,
				Field:   h.Normalized,
				Message: fmt.Sprintf("column %q not mapped: field %q already mapped from %q", h.Original, tf.Name, prev),
			})
			continue
		}
		claimed[tf.Name] = h.Original
		out[i].Target, out[i].Kind, out[i].Score = tf.Name, infer.MatchOverride, 100
	}

	for i, h := range headers {
		if decided[i] {
			continue
		}

		tf, kind, ok := infer.MatchField(h.Normalized, m.targets)
		score := 100.0
		if !ok {
			tf, score, ok = m.fuzzy(h.Normalized)
			kind = infer.MatchFuzzy
		}
		if !ok {
			warnings = append(warnings, Warning{
				Stage:   StageMap,
				Field:   h.Normalized,
				Message: m.unmappedMessage(h),
			})
			continue
		}
		if prev, taken := claimed[tf.Name]; taken {
			warnings = append(warnings, Warning{
				Stage:   StageMap,
				Field:   h.Normalized,
				Message: fmt.Sprintf("column %q not mapped: field %q already mapped from %q", h.Original, tf.Name, prev),
			})
			continue
		}
		claimed[tf.Name] = h.Original
		out[i].Target, out[i].Kind, out[i].Score = tf.Name, kind, score
	}

	for _, c := range out {
		fm, ok := mappings[c.Column]
		if !ok {
			continue
		}
		fm.TargetField, fm.MatchKind, fm.Confidence = "", infer.MatchNone, 0
		if c.Mapped() {
			tf, _ := m.target(c.Target)
			fm.TargetField, fm.MatchKind = c.Target, c.Kind
			fm.Confidence = infer.MappingConfidence(fm.InferredType, tf, c.Kind)
		}
		mappings[c.Column] = fm
	}

	return out, warnings
}

func (m *Mapper) override(h HeaderMapping) (string, bool) {
	if m.overrides == nil {
		return "", false
	}
	if t, ok := m.overrides[h.Original]; ok {
		return strings.TrimSpace(t), true
	}
	if t, ok := m.overrides[strings.TrimSpace(h.Original)]; ok {
		return strings.TrimSpace(t), true
	}
	if t, ok := m.overrides[h.Normalized]; ok {
		return strings.TrimSpace(t), true
	}
	return "", false
}

func (m *Mapper) target(name string) (infer.TargetField, bool) {
	for _, tf := range m.targets {
		if tf.Name == name {
			return tf, true
		}
	}
	return infer.TargetField{}, false
}

// fuzzy returns the highest scoring target above the threshold. Ties keep
// the earlier schema field.
func (m *Mapper) fuzzy(column string) (infer.TargetField, float64, bool) {
	var best infer.TargetField
	bestScore := 0.0
	for _, tf := range m.targets {
		if s := FuzzyScore(column, tf.Name); s > bestScore {
			best, bestScore = tf, s
		}
	}
	if bestScore <= fuzzyThreshold {
		return infer.TargetField{}, bestScore, false
	}
	return best, bestScore, true
}

// Suggest lists up to three schema fields closest to column.
func (m *Mapper) Suggest(column string) []string {
	names := make([]string, len(m.targets))
	for i, tf := range m.targets {
		names[i] = tf.Name
	}

	ranks := fuzzy.RankFindNormalizedFold(squash(column), names)
	if len(ranks) == 0 {
		for i, name := range names {
			ranks = append(ranks, fuzzy.Rank{
				Source:        column,
				Target:        name,
				Distance:      fuzzy.LevenshteinDistance(squash(column), squash(name)),
				OriginalIndex: i,
			})
		}
	}
	sort.Sort(ranks)

	out := make([]string, 0, maxSuggestions)
	for _, r := range ranks {
		if len(out) == maxSuggestions {
			break
		}
		out = append(out, r.Target)
	}
	return out
}

func (m *Mapper) unmappedMessage(h HeaderMapping) string {
	msg := fmt.Sprintf("column %q does not match any field and will be ignored", h.Original)
	if s := m.Suggest(h.Normalized); len(s) > 0 {
		msg += fmt.Sprintf(" (closest: %s)", strings.Join(s, ", "))
	}
	return msg
}
