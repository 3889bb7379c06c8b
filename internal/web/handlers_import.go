package web

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/JonMunkholm/importer/internal/importer"
	"github.com/JonMunkholm/importer/internal/infer"
	"github.com/JonMunkholm/importer/internal/logging"
	"github.com/JonMunkholm/importer/internal/pipeline"
)

// EntityField describes one schema field for clients building mappings.
type EntityField struct {
	Name       string             `json:"name"`
	Type       infer.InferredType `json:"type"`
	Required   bool               `json:"required"`
	EnumValues []string           `json:"enumValues,omitempty"`
}

// EntityResponse describes an importable entity.
type EntityResponse struct {
	Entity          string        `json:"entity"`
	Label           string        `json:"label"`
	ExternalIDField string        `json:"externalIdField"`
	Fields          []EntityField `json:"fields"`
}

// ImportResponse is returned by POST /api/imports. Transaction is nil for
// dry runs and for files without valid rows.
type ImportResponse struct {
	ImportID    string                         `json:"importId"`
	Result      *pipeline.TransformationResult `json:"result"`
	Transaction *importer.ImportTransaction    `json:"transaction,omitempty"`
	Error       string                         `json:"error,omitempty"`
}

// ProgressResponse reports the pipeline state and free import slots.
type ProgressResponse struct {
	Progress pipeline.PipelineProgress `json:"progress"`
	Limiter  importer.LimiterStatus    `json:"limiter"`
}

func (s *Server) handleListEntities(w http.ResponseWriter, r *http.Request) {
	schemas := s.deps.Registry.All()
	out := make([]EntityResponse, 0, len(schemas))
	for _, sc := range schemas {
		e := EntityResponse{
			Entity:          string(sc.Entity),
			Label:           sc.Label,
			ExternalIDField: sc.ExternalIDField,
			Fields:          make([]EntityField, len(sc.Fields)),
		}
		for i, f := range sc.Fields {
			e.Fields[i] = EntityField{Name: f.Name, Type: f.Type, Required: f.Required, EnumValues: f.EnumValues}
		}
		out = append(out, e)
	}
	writeJSON(w, http.StatusOK, out)
}

// handleAnalyze previews type inference and column mapping for a file.
// The entity is optional; without it no mapping is attempted.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	req, err := s.parseImportRequest(w, r)
	if err != nil {
		respondError(w, r, err, 0)
		return
	}

	var analysis *pipeline.Analysis
	if req.Table != nil {
		analysis, err = s.deps.Pipeline.AnalyzeTable(r.Context(), req.FileName, req.Table, req.Entity)
	} else {
		analysis, err = s.deps.Pipeline.Analyze(r.Context(), req.Path, req.Entity)
	}
	if err != nil {
		respondError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}

// handleImport runs the pipeline and, unless it is a dry run, persists the
// valid records in a new transaction.
//
// Persistence problems are part of the returned transaction. The response
// is 201 when a transaction was created and 200 otherwise.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	req, err := s.parseImportRequest(w, r)
	if err != nil {
		respondError(w, r, err, 0)
		return
	}

	if err := s.deps.Limiter.Acquire(r.Context()); err != nil {
		respondError(w, r, err, 0)
		return
	}
	defer s.deps.Limiter.Release()

	ctx := r.Context()
	if s.deps.Import.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.deps.Import.Timeout)
		defer cancel()
	}
	importID := uuid.NewString()
	ctx = logging.WithImportID(ctx, importID)

	var result *pipeline.TransformationResult
	if req.Table != nil {
		result, err = s.deps.Pipeline.ProcessTable(ctx, req.FileName, req.Table, req.Entity, req.Options)
	} else {
		result, err = s.deps.Pipeline.ProcessFile(ctx, req.Path, req.Entity, req.Options)
	}
	if err != nil {
		respondError(w, r, err, 0)
		return
	}

	resp := ImportResponse{ImportID: importID, Result: result}
	if result.DryRun || len(result.Data) == 0 {
		writeJSON(w, http.StatusOK, resp)
		return
	}

	meta := map[string]any{"importId": importID, "fileName": result.FileName}
	tx, err := s.deps.Manager.Import(ctx, result, req.BatchSize, meta)
	if tx == nil {
		respondError(w, r, err, 0)
		return
	}
	resp.Transaction = tx
	if err != nil {
		resp.Error = pipeline.FormatUserError(err)
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ProgressResponse{
		Progress: s.deps.Pipeline.Progress(),
		Limiter:  s.deps.Limiter.Status(),
	})
}
