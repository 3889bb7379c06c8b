package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/JonMunkholm/importer/internal/pipeline"
	"github.com/JonMunkholm/importer/internal/schema"
)

// multipartMemory is how much of an upload is buffered in memory before
// spilling to temporary files.
const multipartMemory = 32 << 20

// importRequest is the decoded form of an analyze or import call.
//
// Clients either upload a file as multipart/form-data (field "file") or
// post JSON naming a file on the server's filesystem.
type importRequest struct {
	Entity    schema.EntityType
	Path      string
	FileName  string
	Table     *pipeline.Table
	Options   pipeline.Options
	BatchSize int // records per transaction batch
}

// importBody is the JSON form of an import request.
type importBody struct {
	Path            string            `json:"path"`
	Entity          string            `json:"entity"`
	DryRun          bool              `json:"dryRun"`
	SkipInvalidRows *bool             `json:"skipInvalidRows"`
	MaxErrors       int               `json:"maxErrors"`
	BatchSize       int               `json:"batchSize"`
	FieldMappings   map[string]string `json:"fieldMappings"`
}

func (s *Server) parseImportRequest(w http.ResponseWriter, r *http.Request) (*importRequest, error) {
	var body importBody

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		table, name, err := s.readUpload(w, r)
		if err != nil {
			return nil, err
		}
		if body, err = formBody(r); err != nil {
			return nil, err
		}
		req := s.newRequest(body)
		req.Table, req.FileName = table, name
		return req, nil
	}

	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: decode body: %v", errBadRequest, err)
	}
	if body.Path == "" {
		return nil, errNoFile
	}
	path, err := confinePath(s.deps.Import.Dir, body.Path)
	if err != nil {
		return nil, err
	}
	body.Path = path
	return s.newRequest(body), nil
}

// confinePath resolves a client supplied path inside root. Relative paths
// are taken relative to root; anything resolving outside it, symlinks
// included, is rejected. An empty root disables path imports.
func confinePath(root, path string) (string, error) {
	if root == "" {
		return "", fmt.Errorf("%w: path imports are disabled, upload the file instead", errPathNotAllowed)
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve import dir: %w", err)
	}

	target := path
	if !filepath.IsAbs(target) {
		target = filepath.Join(absRoot, target)
	}
	target = filepath.Clean(target)
	if !within(absRoot, target) {
		return "", fmt.Errorf("%w: %s", errPathNotAllowed, path)
	}

	// Compare resolved paths too when the file exists, so a link inside
	// root cannot point outside it.
	if resolved, err := filepath.EvalSymlinks(target); err == nil {
		realRoot, err := filepath.EvalSymlinks(absRoot)
		if err != nil {
			return "", fmt.Errorf("resolve import dir: %w", err)
		}
		if !within(realRoot, resolved) {
			return "", fmt.Errorf("%w: %s", errPathNotAllowed, path)
		}
		return resolved, nil
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}
	return target, nil
}

// within reports whether target is root or below it. Both must be clean.
func within(root, target string) bool {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// newRequest applies the server defaults and rule file to body.
func (s *Server) newRequest(body importBody) *importRequest {
	cfg := s.deps.Import
	opts := pipeline.Options{
		FieldMappings:   body.FieldMappings,
		DryRun:          body.DryRun,
		SkipInvalidRows: body.SkipInvalidRows,
		MaxErrors:       body.MaxErrors,
		BatchSize:       cfg.PipelineBatchSize,
		SampleSize:      cfg.SampleSize,
	}
	if opts.MaxErrors <= 0 {
		opts.MaxErrors = cfg.MaxErrors
	}
	if s.deps.Rules != nil {
		s.deps.Rules.Apply(&opts)
	}

	batchSize := body.BatchSize
	if batchSize <= 0 {
		batchSize = cfg.TransactionBatchSize
	}
	return &importRequest{
		Entity:    schema.EntityType(body.Entity),
		Path:      body.Path,
		Options:   opts,
		BatchSize: batchSize,
	}
}

// readUpload parses the multipart "file" field without writing it to disk.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (*pipeline.Table, string, error) {
	limit := s.deps.Import.MaxFileSize
	if limit <= 0 {
		limit = pipeline.MaxFileSize
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit+multipartMemory)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, "", fmt.Errorf("%w: upload exceeds %d bytes", pipeline.ErrFileTooLarge, limit)
		}
		return nil, "", fmt.Errorf("%w: %v", errBadRequest, err)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, "", errNoFile
	}
	defer file.Close()

	if header.Size > limit {
		return nil, "", fmt.Errorf("%w: %d bytes exceeds limit of %d", pipeline.ErrFileTooLarge, header.Size, limit)
	}

	table, err := pipeline.ReadNamed(header.Filename, file)
	if err != nil {
		return nil, "", err
	}
	return table, header.Filename, nil
}

// formBody reads the non-file multipart fields.
func formBody(r *http.Request) (importBody, error) {
	body := importBody{Entity: r.FormValue("entity")}

	var err error
	if v := r.FormValue("dry_run"); v != "" {
		if body.DryRun, err = strconv.ParseBool(v); err != nil {
			return body, fmt.Errorf("%w: dry_run: %v", errBadRequest, err)
		}
	}
	if v := r.FormValue("skip_invalid"); v != "" {
		skip, err := strconv.ParseBool(v)
		if err != nil {
			return body, fmt.Errorf("%w: skip_invalid: %v", errBadRequest, err)
		}
		body.SkipInvalidRows = &skip
	}
	if v := r.FormValue("max_errors"); v != "" {
		if body.MaxErrors, err = strconv.Atoi(v); err != nil {
			return body, fmt.Errorf("%w: max_errors: %v", errBadRequest, err)
		}
	}
	if v := r.FormValue("batch_size"); v != "" {
		if body.BatchSize, err = strconv.Atoi(v); err != nil {
			return body, fmt.Errorf("%w: batch_size: %v", errBadRequest, err)
		}
	}
	if v := r.FormValue("mappings"); v != "" {
		if err := json.Unmarshal([]byte(v), &body.FieldMappings); err != nil {
			return body, fmt.Errorf("%w: mappings: %v", errBadRequest, err)
		}
	}
	return body, nil
}
