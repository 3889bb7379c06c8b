package infer

import "sort"

// Engine infers column types and converts values.
// An Engine holds only immutable options and is safe for concurrent use.
type Engine struct {
	opts Options
}

// New creates an Engine. Zero-valued options fall back to the defaults.
func New(opts Options) *Engine {
	return &Engine{opts: opts.withDefaults()}
}

// Options returns the effective options.
func (e *Engine) Options() Options {
	return e.opts
}

// AnalyzeColumn classifies a column from its first sampleSize values.
//
// Empty cells are dropped from the sample. Every candidate type is scored
// independently, the most confident wins, and a type hinted by the column name
// overrides the winner only when its own confidence reaches MinConfidence.
// A sampleSize <= 0 uses the engine default.
func (e *Engine) AnalyzeColumn(columnName string, values []any, sampleSize int) TypeInferenceResult {
	if sampleSize <= 0 {
		sampleSize = e.opts.SampleSize
	}
	sample := values
	if len(sample) > sampleSize {
		sample = sample[:sampleSize]
	}

	nonEmpty := make([]any, 0, len(sample))
	for _, v := range sample {
		if !IsEmpty(v) {
			nonEmpty = append(nonEmpty, v)
		}
	}
	if len(nonEmpty) == 0 {
		return TypeInferenceResult{Type: TypeString, Confidence: 0}
	}

	hint := NameHint(columnName)
	scored := e.scoreCandidates(nonEmpty, hint)

	ranked := make([]TypeInferenceResult, len(scored))
	copy(ranked, scored)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Confidence > ranked[j].Confidence
	})

	selected := ranked[0]
	if hint != "" && hint != selected.Type && !refines(selected.Type, hint) {
		for _, r := range scored {
			if r.Type == hint && r.Confidence >= e.opts.MinConfidence {
				selected = r
				break
			}
		}
	}

	selected.Confidence = clamp01(selected.Confidence)
	selected.Errors = e.mismatches(selected.Type, nonEmpty)
	n := len(nonEmpty)
	if n > maxSampleValues {
		n = maxSampleValues
	}
	selected.SampleValues = append([]any(nil), nonEmpty[:n]...)
	return selected
}

// refines reports whether t is a strictly narrower form of hint, in which
// case the hint is already satisfied and must not widen the result.
func refines(t, hint InferredType) bool {
	return t == TypeInteger && hint == TypeNumber
}
