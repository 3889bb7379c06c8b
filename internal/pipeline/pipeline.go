package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/zeebo/xxh3"

	"github.com/JonMunkholm/importer/internal/infer"
	"github.com/JonMunkholm/importer/internal/logging"
	"github.com/JonMunkholm/importer/internal/metrics"
	"github.com/JonMunkholm/importer/internal/schema"
)

// unknownEntity labels metrics for runs whose entity did not resolve.
const unknownEntity = "unknown"

// ErrValidationFailed aborts a run when invalid rows are not skipped.
var ErrValidationFailed = errors.New("validation failed")

// Pipeline runs file imports against the schemas of a registry.
//
// Runs on one Pipeline are serialized. Progress may be polled from any
// goroutine while a run is in flight.
type Pipeline struct {
	registry *schema.Registry
	engine   *infer.Engine
	metrics  *metrics.Collectors

	runMu sync.Mutex

	mu       sync.RWMutex
	progress PipelineProgress
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithEngine sets the inference engine (default: infer.New with defaults).
func WithEngine(e *infer.Engine) Option {
	return func(p *Pipeline) { p.engine = e }
}

// WithMetrics enables prometheus instrumentation.
func WithMetrics(m *metrics.Collectors) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// New creates a pipeline over registry.
func New(registry *schema.Registry, opts ...Option) *Pipeline {
	p := &Pipeline{
		registry: registry,
		progress: PipelineProgress{Stage: StageIdle},
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.engine == nil {
		p.engine = infer.New(infer.Options{})
	}
	return p
}

// Engine returns the pipeline's inference engine.
func (p *Pipeline) Engine() *infer.Engine {
	return p.engine
}

// Registry returns the schema registry.
func (p *Pipeline) Registry() *schema.Registry {
	return p.registry
}

// Progress returns a snapshot of the current or most recent run.
func (p *Pipeline) Progress() PipelineProgress {
	p.mu.RLock()
	defer p.mu.RUnlock()

	snap := p.progress
	snap.Errors = append([]string(nil), p.progress.Errors...)
	return snap
}

// ProcessFile imports the file at path into entity.
//
// Missing files, unsupported formats, unknown entities, invalid rules and
// cancellation return an error and no result. Row-level problems are
// reported in the result.
func (p *Pipeline) ProcessFile(ctx context.Context, path string, entity schema.EntityType, opts Options) (*TransformationResult, error) {
	p.runMu.Lock()
	defer p.runMu.Unlock()

	name := filepath.Base(path)
	p.begin(name)

	s, err := p.registry.Lookup(string(entity))
	if err != nil {
		return nil, p.fail(unknownEntity, err)
	}

	p.setStage(StageParse)
	table, err := ReadFile(path)
	if err != nil {
		return nil, p.fail(string(s.Entity), err)
	}
	return p.process(ctx, name, table, s, opts)
}

// ProcessTable imports an already parsed table into entity.
func (p *Pipeline) ProcessTable(ctx context.Context, name string, table *Table, entity schema.EntityType, opts Options) (*TransformationResult, error) {
	p.runMu.Lock()
	defer p.runMu.Unlock()

	p.begin(name)

	s, err := p.registry.Lookup(string(entity))
	if err != nil {
		return nil, p.fail(unknownEntity, err)
	}
	return p.process(ctx, name, table, s, opts)
}

func (p *Pipeline) process(ctx context.Context, name string, table *Table, s schema.Schema, opts Options) (*TransformationResult, error) {
	start := time.Now()
	opts = opts.withDefaults()
	entity := string(s.Entity)
	log := logging.WithFields(ctx, "entity", entity, "file", name)

	engine := p.engineFor(opts)
	validator, err := NewValidator(engine, s, opts.ValidationRules)
	if err != nil {
		return nil, p.fail(entity, err)
	}

	res := &TransformationResult{
		Entity:        s.Entity,
		FileName:      name,
		DryRun:        opts.DryRun,
		TotalRows:     len(table.Rows),
		Data:          []schema.Record{},
		Errors:        []RowError{},
		Warnings:      []Warning{},
		FieldMappings: map[string]infer.FieldMapping{},
	}
	p.update(func(pr *PipelineProgress) { pr.TotalRows = res.TotalRows })

	log.Info("pipeline started", "rows", res.TotalRows, "dry_run", opts.DryRun)

	if table.Headers == nil {
		return p.finish(res, start, opts, log), nil
	}

	// Normalize
	p.setStage(StageNormalize)
	headers, warnings := NormalizeHeaders(table.Headers)
	res.Headers = headers
	res.Warnings = append(res.Warnings, warnings...)
	res.Warnings = append(res.Warnings, duplicateRows(table.Rows)...)

	// Infer
	p.setStage(StageInfer)
	columns := make([]infer.Column, len(headers))
	for i, h := range headers {
		values := make([]any, len(table.Rows))
		for j, row := range table.Rows {
			values[j] = row.Cell(i)
		}
		columns[i] = infer.Column{Name: h.Normalized, Values: values}
	}
	res.FieldMappings = engine.CreateFieldMappings(columns, s.TargetFields())

	for _, h := range headers {
		fm := res.FieldMappings[h.Normalized]
		if it := fm.InferredType; it.Type != infer.TypeString && it.Confidence > 0 && it.Confidence < lowConfidence {
			res.Warnings = append(res.Warnings, Warning{
				Stage:   StageInfer,
				Field:   h.Normalized,
				Message: fmt.Sprintf("low confidence (%.2f) inferring column %q as %s", fm.InferredType.Confidence, h.Original, fm.InferredType.Type),
			})
		}
	}

	// Map
	p.setStage(StageMap)
	mapper := NewMapper(s.TargetFields(), opts.FieldMappings)
	cols, warnings := mapper.Resolve(headers, res.FieldMappings)
	res.Columns = cols
	res.Warnings = append(res.Warnings, warnings...)

	targeted := make(map[string]bool, len(cols))
	for _, c := range cols {
		if c.Mapped() {
			targeted[c.Target] = true
		}
	}
	for _, f := range s.RequiredFields() {
		if !targeted[f] {
			res.Warnings = append(res.Warnings, Warning{
				Stage:   StageMap,
				Field:   f,
				Message: fmt.Sprintf("required field %q has no source column", f),
			})
		}
	}

	// Columns feeding a textual field keep the cell text so values such as
	// "0306406152" are not read as numbers.
	textual := make([]bool, len(headers))
	for _, c := range cols {
		if !c.Mapped() {
			continue
		}
		if f, ok := s.Field(c.Target); ok && f.Type.IsTextual() {
			textual[c.Index] = true
		}
	}

	converted := make([][]any, len(table.Rows))
	for j, row := range table.Rows {
		if err := checkContext(ctx, j); err != nil {
			return nil, p.fail(entity, err)
		}
		cells := make([]any, len(headers))
		for i, h := range headers {
			raw := row.Cell(i)
			if textual[i] {
				if strings.TrimSpace(raw) != "" {
					cells[i] = raw
				}
				continue
			}
			it := res.FieldMappings[h.Normalized].InferredType
			cr := engine.ConvertValue(raw, it.Type, it.EnumValues)
			if !cr.Success {
				cells[i] = raw
				res.Errors = append(res.Errors, RowError{
					Row:     row.Line,
					Field:   h.Normalized,
					Value:   raw,
					Message: strings.Join(cr.Errors, "; "),
					Stage:   StageInfer,
				})
				continue
			}
			cells[i] = cr.Value
		}
		converted[j] = cells
	}

	mapped := make([]map[string]any, len(table.Rows))
	for j := range table.Rows {
		fields := make(map[string]any, len(targeted))
		for _, c := range cols {
			if c.Mapped() {
				fields[c.Target] = converted[j][c.Index]
			}
		}
		mapped[j] = fields
	}

	// Validate
	p.setStage(StageValidate)
	valid := make([]int, 0, len(table.Rows))
	for j, row := range table.Rows {
		if err := checkContext(ctx, j); err != nil {
			return nil, p.fail(entity, err)
		}

		errs := validator.Validate(mapped[j])
		res.ProcessedRows++
		if len(errs) > 0 {
			res.ErrorRows++
			for _, e := range errs {
				res.Errors = append(res.Errors, RowError{
					Row:     row.Line,
					Field:   e.Field,
					Value:   e.Value,
					Message: e.Message,
					Stage:   StageValidate,
				})
			}
			if !opts.skipInvalid() {
				return nil, p.fail(entity, fmt.Errorf("%w: row %d: %s", ErrValidationFailed, row.Line, errs[0].Error()))
			}
		} else {
			valid = append(valid, j)
		}

		if res.ProcessedRows%progressInterval == 0 {
			p.rowProgress(res)
		}
	}
	p.rowProgress(res)

	// Transform
	p.setStage(StageTransform)
	transformer := NewTransformer(s)
	records := make([]schema.Record, 0, len(valid))
	for _, j := range valid {
		rec, err := transformer.Transform(mapped[j])
		if err != nil {
			res.ErrorRows++
			res.Errors = append(res.Errors, RowError{
				Row:     table.Rows[j].Line,
				Message: err.Error(),
				Stage:   StageTransform,
			})
			continue
		}
		res.SuccessRows++
		records = append(records, rec)
	}
	p.rowProgress(res)

	// Batch
	p.setStage(StageBatch)
	if !opts.DryRun {
		res.Data = records
		res.Batches = Chunk(records, opts.BatchSize)
	}

	return p.finish(res, start, opts, log), nil
}

// Analyze previews a file: parse, normalize, infer and, when entity is
// non-empty, map. Nothing is validated.
func (p *Pipeline) Analyze(ctx context.Context, path string, entity schema.EntityType) (*Analysis, error) {
	table, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	return p.AnalyzeTable(ctx, filepath.Base(path), table, entity)
}

// AnalyzeTable previews an already parsed table.
func (p *Pipeline) AnalyzeTable(ctx context.Context, name string, table *Table, entity schema.EntityType) (*Analysis, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		s       schema.Schema
		targets []infer.TargetField
	)
	if entity != "" {
		var err error
		if s, err = p.registry.Lookup(string(entity)); err != nil {
			return nil, err
		}
		targets = s.TargetFields()
	}

	a := &Analysis{
		Entity:        s.Entity,
		FileName:      name,
		TotalRows:     len(table.Rows),
		FieldMappings: map[string]infer.FieldMapping{},
		Warnings:      []Warning{},
	}
	if table.Headers == nil {
		return a, nil
	}

	headers, warnings := NormalizeHeaders(table.Headers)
	a.Headers = headers
	a.Warnings = append(a.Warnings, warnings...)
	a.Warnings = append(a.Warnings, duplicateRows(table.Rows)...)

	columns := make([]infer.Column, len(headers))
	for i, h := range headers {
		values := make([]any, len(table.Rows))
		for j, row := range table.Rows {
			values[j] = row.Cell(i)
		}
		columns[i] = infer.Column{Name: h.Normalized, Values: values}
	}
	a.FieldMappings = p.engine.CreateFieldMappings(columns, targets)

	if len(targets) > 0 {
		cols, warnings := NewMapper(targets, nil).Resolve(headers, a.FieldMappings)
		a.Columns = cols
		a.Warnings = append(a.Warnings, warnings...)
	}
	return a, nil
}

// Chunk splits records into batches of at most size records.
func Chunk(records []schema.Record, size int) [][]schema.Record {
	if size <= 0 {
		size = DefaultBatchSize
	}
	var batches [][]schema.Record
	for start := 0; start < len(records); start += size {
		end := start + size
		if end > len(records) {
			end = len(records)
		}
		batches = append(batches, records[start:end])
	}
	return batches
}

func (p *Pipeline) engineFor(opts Options) *infer.Engine {
	if opts.SampleSize <= 0 || opts.SampleSize == p.engine.Options().SampleSize {
		return p.engine
	}
	o := p.engine.Options()
	o.SampleSize = opts.SampleSize
	return infer.New(o)
}

func (p *Pipeline) finish(res *TransformationResult, start time.Time, opts Options, log *slog.Logger) *TransformationResult {
	res.Duration = time.Since(start)
	res.Success = res.ErrorRows <= opts.MaxErrors
	res.Statistics = Statistics{ProcessingDuration: res.Duration}
	if res.TotalRows > 0 {
		res.Statistics.TransformationRate = float64(res.SuccessRows) / float64(res.TotalRows)
		res.Statistics.ErrorRate = float64(res.ErrorRows) / float64(res.TotalRows)
	}

	p.update(func(pr *PipelineProgress) {
		pr.Stage = StageComplete
		pr.ProcessedRows = res.ProcessedRows
		pr.SuccessRows = res.SuccessRows
		pr.ErrorRows = res.ErrorRows
		pr.Percent = 100
	})

	outcome := "success"
	if !res.Success {
		outcome = "too_many_errors"
	}
	p.metrics.ObservePipeline(string(res.Entity), outcome, res.SuccessRows, res.ErrorRows, res.Duration)

	log.Info("pipeline completed",
		"rows", res.TotalRows,
		"success_rows", res.SuccessRows,
		"error_rows", res.ErrorRows,
		"warnings", len(res.Warnings),
		"duration_ms", res.Duration.Milliseconds(),
	)
	return res
}

func (p *Pipeline) begin(name string) {
	now := time.Now()
	p.mu.Lock()
	p.progress = PipelineProgress{Stage: StageParse, FileName: name, StartedAt: now, UpdatedAt: now}
	p.mu.Unlock()
}

func (p *Pipeline) fail(entity string, err error) error {
	p.update(func(pr *PipelineProgress) {
		pr.Stage = StageFailed
		pr.Errors = append(pr.Errors, err.Error())
	})
	p.metrics.ObservePipeline(entity, "failed", 0, 0, 0)
	slog.Warn("pipeline failed", "entity", entity, "error", err)
	return err
}

func (p *Pipeline) setStage(stage Stage) {
	p.update(func(pr *PipelineProgress) { pr.Stage = stage })
}

func (p *Pipeline) rowProgress(res *TransformationResult) {
	p.update(func(pr *PipelineProgress) {
		pr.ProcessedRows = res.ProcessedRows
		pr.SuccessRows = res.SuccessRows
		pr.ErrorRows = res.ErrorRows
		if res.TotalRows > 0 {
			pr.Percent = float64(res.ProcessedRows) / float64(res.TotalRows) * 100
		}
	})
}

func (p *Pipeline) update(fn func(*PipelineProgress)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(&p.progress)
	p.progress.UpdatedAt = time.Now()
}

func checkContext(ctx context.Context, i int) error {
	if i%progressInterval != 0 {
		return nil
	}
	return ctx.Err()
}

// duplicateRows warns about data rows identical to an earlier row.
func duplicateRows(rows []Row) []Warning {
	var warnings []Warning
	seen := make(map[uint64]int, len(rows))
	var buf []byte
	for _, r := range rows {
		buf = buf[:0]
		for i, c := range r.Cells {
			if i > 0 {
				buf = append(buf, 0x1f)
			}
			buf = append(buf, strings.TrimSpace(c)...)
		}
		h := xxh3.Hash(buf)
		if first, ok := seen[h]; ok {
			warnings = append(warnings, Warning{
				Row:     r.Line,
				Stage:   StageNormalize,
				Message: fmt.Sprintf("row %d duplicates row %d", r.Line, first),
			})
			continue
		}
		seen[h] = r.Line
	}
	return warnings
}
