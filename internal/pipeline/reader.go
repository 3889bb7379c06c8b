package pipeline

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
)

var (
	ErrFileNotFound      = errors.New("file not found")
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrFileTooLarge      = errors.New("file too large")
)

// MaxFileSize is the maximum accepted input size (100MB).
var MaxFileSize int64 = 100 * 1024 * 1024

// Row is one data row with the line number it was read from.
type Row struct {
	Line  int
	Cells []string
}

// Table is the raw content of a spreadsheet.
// Headers is nil when the file holds no rows at all.
type Table struct {
	Headers    []string
	HeaderLine int
	Rows       []Row
	Sheet      string // Worksheet name for spreadsheet input
}

// ReadFile loads a CSV or spreadsheet file, dispatching on extension.
func ReadFile(path string) (*Table, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrFileNotFound, path)
	}
	if info.Size() > MaxFileSize {
		return nil, fmt.Errorf("%w: %d bytes exceeds limit of %d", ErrFileTooLarge, info.Size(), MaxFileSize)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	return ReadNamed(filepath.Base(path), f)
}

// ReadNamed parses r choosing the format from the extension of name, for
// uploads that never touch the disk.
func ReadNamed(name string, r io.Reader) (*Table, error) {
	var read func(io.Reader) (*Table, error)
	switch ext := strings.ToLower(filepath.Ext(name)); ext {
	case ".csv", ".txt":
		read = ReadCSV
	case ".xlsx", ".xlsm":
		read = ReadSpreadsheet
	case ".xls":
		// Legacy BIFF workbooks are not zip based and excelize cannot open them.
		return nil, fmt.Errorf("%w: %q is a legacy Excel workbook, re-save it as .xlsx", ErrUnsupportedFormat, ext)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}

	t, err := read(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return t, nil
}

// ReadCSV parses comma-separated input. A UTF-8 byte order mark is removed,
// invalid UTF-8 is replaced, rows may have varying field counts and stray
// quotes are tolerated. Blank rows are skipped; line numbers are preserved.
func ReadCSV(r io.Reader) (*Table, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if int64(len(data)) > MaxFileSize {
		return nil, fmt.Errorf("%w: exceeds limit of %d bytes", ErrFileTooLarge, MaxFileSize)
	}
	data = sanitizeUTF8(stripBOM(data))

	cr := csv.NewReader(bytes.NewReader(data))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	t := &Table{}
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("invalid csv: %w", err)
		}
		line, _ := cr.FieldPos(0)
		t.add(line, record)
	}
	return t, nil
}

// ReadSpreadsheet reads the first worksheet of an Excel workbook.
func ReadSpreadsheet(r io.Reader) (*Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("invalid spreadsheet: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return &Table{}, nil
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}

	t := &Table{Sheet: sheets[0]}
	for i, record := range rows {
		t.add(i+1, record)
	}
	return t, nil
}

// add appends a record, treating the first non-blank record as the header.
func (t *Table) add(line int, record []string) {
	if isEmptyRow(record) {
		return
	}
	if t.Headers == nil {
		t.Headers = record
		t.HeaderLine = line
		return
	}
	t.Rows = append(t.Rows, Row{Line: line, Cells: record})
}

// Cell returns the value at column i, or "" for short rows.
func (r Row) Cell(i int) string {
	if i < 0 || i >= len(r.Cells) {
		return ""
	}
	return r.Cells[i]
}

func stripBOM(data []byte) []byte {
	return bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
}

func sanitizeUTF8(data []byte) []byte {
	if utf8.Valid(data) {
		return data
	}

	var buf bytes.Buffer
	buf.Grow(len(data))

	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		if r == utf8.RuneError && size == 1 {
			buf.WriteRune('\uFFFD')
			data = data[1:]
		} else {
			buf.WriteRune(r)
			data = data[size:]
		}
	}

	return buf.Bytes()
}

func isEmptyRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
