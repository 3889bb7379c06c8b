// Package pipeline turns a spreadsheet export into validated,
// persistence-ready records for one entity schema.
//
// A run moves through fixed stages, each consuming the complete output of the
// previous one:
//
//	parse → normalize → infer → map → validate → transform → batch
//
// Row-level problems never stop a run. They are collected into the result's
// Errors and Warnings with the file line they came from (the header is line
// 1). Only file-level failures (missing file, unsupported format, unknown
// entity) and, when SkipInvalidRows is false, the first validation failure
// abort a run with an error.
package pipeline

import (
	"fmt"
	"time"

	"github.com/JonMunkholm/importer/internal/infer"
	"github.com/JonMunkholm/importer/internal/schema"
)

// Stage identifies a pipeline step.
type Stage string

const (
	StageIdle      Stage = "idle"
	StageParse     Stage = "parsing"
	StageNormalize Stage = "normalizing"
	StageInfer     Stage = "type_inference"
	StageMap       Stage = "mapping"
	StageValidate  Stage = "validation"
	StageTransform Stage = "transform"
	StageBatch     Stage = "batching"
	StageComplete  Stage = "complete"
	StageFailed    Stage = "failed"
)

const (
	DefaultMaxErrors = 100
	DefaultBatchSize = 100

	// lowConfidence flags inferred column types worth a second look.
	lowConfidence = 0.5

	// progressInterval is how many rows pass between progress updates.
	progressInterval = 100
)

// Options configure a single run.
type Options struct {
	// FieldMappings overrides column resolution. Keys are original or
	// normalized headers, values are target field names. An empty value
	// excludes the column.
	FieldMappings map[string]string

	// ValidationRules replace the schema default rule for the same field.
	ValidationRules []ValidationRule

	DryRun bool

	// SkipInvalidRows excludes failing rows and continues. When false the
	// first validation failure aborts the run. Nil means true.
	SkipInvalidRows *bool

	MaxErrors  int // Success requires ErrorRows <= MaxErrors (default 100)
	BatchSize  int // Rows per prepared batch (default 100)
	SampleSize int // Values inspected per column during inference (engine default)
}

// Bool returns a pointer to b, for optional boolean options.
func Bool(b bool) *bool { return &b }

func (o Options) skipInvalid() bool {
	return o.SkipInvalidRows == nil || *o.SkipInvalidRows
}

func (o Options) withDefaults() Options {
	if o.MaxErrors <= 0 {
		o.MaxErrors = DefaultMaxErrors
	}
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	return o
}

// RowError is a recoverable problem with one row, or one field of it.
type RowError struct {
	Row     int    `json:"row"`
	Field   string `json:"field,omitempty"`
	Value   string `json:"value,omitempty"`
	Message string `json:"message"`
	Stage   Stage  `json:"stage"`
}

func (e RowError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("row %d: %s: %s", e.Row, e.Field, e.Message)
	}
	return fmt.Sprintf("row %d: %s", e.Row, e.Message)
}

// Warning is an advisory finding. Row is 0 for file-level warnings.
type Warning struct {
	Row     int    `json:"row,omitempty"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
	Stage   Stage  `json:"stage"`
}

// Statistics are derived from the row counts of a run.
type Statistics struct {
	TransformationRate float64       `json:"transformationRate"`
	ErrorRate          float64       `json:"errorRate"`
	ProcessingDuration time.Duration `json:"processingDuration"`
}

// TransformationResult is the outcome of a completed run.
type TransformationResult struct {
	Entity        schema.EntityType             `json:"entity"`
	FileName      string                        `json:"fileName"`
	Success       bool                          `json:"success"`
	DryRun        bool                          `json:"dryRun"`
	TotalRows     int                           `json:"totalRows"`
	ProcessedRows int                           `json:"processedRows"`
	SuccessRows   int                           `json:"successRows"`
	ErrorRows     int                           `json:"errorRows"`
	Data          []schema.Record               `json:"data"`
	Batches       [][]schema.Record             `json:"-"`
	Errors        []RowError                    `json:"errors"`
	Warnings      []Warning                     `json:"warnings"`
	Headers       []HeaderMapping               `json:"headers"`
	Columns       []ColumnMapping               `json:"columns"`
	FieldMappings map[string]infer.FieldMapping `json:"fieldMappings"`
	Statistics    Statistics                    `json:"statistics"`
	Duration      time.Duration                 `json:"duration"`
}

// PipelineProgress is a point-in-time snapshot of the current or last run.
type PipelineProgress struct {
	Stage         Stage     `json:"stage"`
	FileName      string    `json:"fileName,omitempty"`
	TotalRows     int       `json:"totalRows"`
	ProcessedRows int       `json:"processedRows"`
	SuccessRows   int       `json:"successRows"`
	ErrorRows     int       `json:"errorRows"`
	Percent       float64   `json:"percent"`
	Errors        []string  `json:"errors,omitempty"`
	StartedAt     time.Time `json:"startedAt,omitempty"`
	UpdatedAt     time.Time `json:"updatedAt,omitempty"`
}

// Analysis is the preview produced by Analyze: parsing, header
// normalization, inference and mapping without validation.
type Analysis struct {
	Entity        schema.EntityType             `json:"entity,omitempty"`
	FileName      string                        `json:"fileName"`
	TotalRows     int                           `json:"totalRows"`
	Headers       []HeaderMapping               `json:"headers"`
	Columns       []ColumnMapping               `json:"columns,omitempty"`
	FieldMappings map[string]infer.FieldMapping `json:"fieldMappings"`
	Warnings      []Warning                     `json:"warnings"`
}
