// Package writeback persists edited table data into the original
// spreadsheet file. Edits land atomically: new content is written to a
// temporary file beside the target and swapped in with a rename, so readers
// never observe a half-written workbook. Formats without a writer library
// (xls, xlsb) are rejected up front with a typed error.
package writeback

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"

	"github.com/sheetmcp/mcp-sheets/internal/parser"
)

// EditedTable is the caller-supplied replacement content for one sheet.
type EditedTable struct {
	// SheetName selects the target sheet; empty selects the first sheet.
	// Ignored for CSV, which has exactly one implicit sheet.
	SheetName string   `json:"sheet_name,omitempty"`
	Headers   []string `json:"headers"`
	Rows      [][]any  `json:"rows"`
}

// Validate checks the table's internal consistency before any file is
// touched. Every data row must match the header width exactly.
func (t *EditedTable) Validate() error {
	if len(t.Headers) == 0 {
		return &ValidationError{Message: "headers must not be empty"}
	}
	for i, row := range t.Rows {
		if len(row) != len(t.Headers) {
			return &ValidationError{
				Message: fmt.Sprintf("row %d has %d values, expected %d to match headers", i, len(row), len(t.Headers)),
			}
		}
	}
	return nil
}

// ValidationError reports malformed edit input rejected before writing.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return "invalid edit data: " + e.Message
}

// UnsupportedError reports a write attempt against a read-only format.
type UnsupportedError struct {
	Path   string
	Format string
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("format %q is read-only, cannot write changes to %s (convert the file to xlsx first)", e.Format, e.Path)
}

// Result describes a completed write.
type Result struct {
	Status         string `json:"status"`
	SheetName      string `json:"sheet_name,omitempty"`
	ChangesApplied int    `json:"changes_applied"`
	BackupPath     string `json:"backup_path,omitempty"`
}

// Engine applies edits to spreadsheet files.
type Engine struct {
	logger *logrus.Logger
}

// New constructs an engine logging through the given logger.
func New(logger *logrus.Logger) *Engine {
	if logger == nil {
		logger = logrus.New()
	}
	return &Engine{logger: logger}
}

// Apply validates the table, optionally snapshots the target, and writes
// the edited content into it atomically.
func (e *Engine) Apply(ctx context.Context, path string, table *EditedTable, createBackup bool) (*Result, error) {
	if err := table.Validate(); err != nil {
		return nil, err
	}
	format := parser.Extension(path)
	p, err := parser.ForPath(path)
	if err != nil {
		return nil, err
	}
	if !p.Capabilities().Write {
		return nil, &UnsupportedError{Path: path, Format: format}
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("target file: %w", err)
	}

	result := &Result{Status: "success", SheetName: table.SheetName}
	if createBackup {
		backupPath, err := e.backup(path)
		if err != nil {
			return nil, err
		}
		result.BackupPath = backupPath
	}

	switch format {
	case "csv":
		result.ChangesApplied, err = e.applyCSV(ctx, path, table)
	default:
		result.ChangesApplied, err = e.applyXlsx(ctx, path, table)
	}
	if err != nil {
		return nil, err
	}

	e.logger.WithFields(logrus.Fields{
		"path":    path,
		"changes": result.ChangesApplied,
		"backup":  result.BackupPath,
	}).Info("Applied sheet edits")
	return result, nil
}

// backup copies the target byte for byte. The plain .backup name is used
// when free; an existing backup is never overwritten, so collisions get a
// timestamped name instead.
func (e *Engine) backup(path string) (string, error) {
	backupPath := path + ".backup"
	if _, err := os.Stat(backupPath); err == nil {
		backupPath = fmt.Sprintf("%s.%s.backup", path, time.Now().Format("20060102-150405"))
	}
	src, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening source for backup: %w", err)
	}
	defer src.Close()

	dst, err := os.OpenFile(backupPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("creating backup: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(backupPath)
		return "", fmt.Errorf("writing backup: %w", err)
	}
	if err := dst.Close(); err != nil {
		return "", fmt.Errorf("closing backup: %w", err)
	}
	return backupPath, nil
}

// applyXlsx overwrites sheet content cell by cell, leaving styles, other
// sheets and workbook-level parts untouched. Rows beyond the new extent are
// removed.
func (e *Engine) applyXlsx(ctx context.Context, path string, table *EditedTable) (int, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return 0, fmt.Errorf("opening workbook: %w", err)
	}
	defer f.Close()

	sheetName := table.SheetName
	sheets := f.GetSheetList()
	if sheetName == "" {
		if len(sheets) == 0 {
			return 0, fmt.Errorf("workbook contains no sheets")
		}
		sheetName = sheets[0]
	} else if !containsString(sheets, sheetName) {
		return 0, fmt.Errorf("sheet %q not found (available: %v)", sheetName, sheets)
	}

	changes := 0
	setCell := func(row, col int, value any) error {
		axis, err := excelize.CoordinatesToCellName(col+1, row+1)
		if err != nil {
			return err
		}
		existing, err := f.GetCellValue(sheetName, axis)
		if err != nil {
			return err
		}
		if existing == displayString(value) {
			return nil
		}
		if err := f.SetCellValue(sheetName, axis, value); err != nil {
			return fmt.Errorf("writing cell %s: %w", axis, err)
		}
		changes++
		return nil
	}

	for c, header := range table.Headers {
		if err := setCell(0, c, header); err != nil {
			return 0, err
		}
	}
	for r, row := range table.Rows {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		for c, value := range row {
			if err := setCell(r+1, c, value); err != nil {
				return 0, err
			}
		}
	}

	// Trim rows the edit no longer covers.
	existingRows, err := f.GetRows(sheetName)
	if err != nil {
		return 0, fmt.Errorf("reading sheet extent: %w", err)
	}
	newExtent := len(table.Rows) + 1
	for row := len(existingRows); row > newExtent; row-- {
		if err := f.RemoveRow(sheetName, row); err != nil {
			return 0, fmt.Errorf("removing row %d: %w", row, err)
		}
		changes++
	}

	tempPath := tempSibling(path)
	if err := f.SaveAs(tempPath); err != nil {
		os.Remove(tempPath)
		return 0, fmt.Errorf("saving workbook: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return 0, fmt.Errorf("replacing workbook: %w", err)
	}
	return changes, nil
}

// applyCSV rewrites the whole file; CSV has no styles or extra sheets to
// preserve. Change counting compares against the previous records.
func (e *Engine) applyCSV(ctx context.Context, path string, table *EditedTable) (int, error) {
	previous, err := readCSVRecords(path)
	if err != nil {
		e.logger.WithError(err).Warn("Could not read existing CSV for change counting")
		previous = nil
	}

	records := make([][]string, 0, len(table.Rows)+1)
	records = append(records, table.Headers)
	for _, row := range table.Rows {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		fields := make([]string, len(row))
		for i, v := range row {
			fields[i] = displayString(v)
		}
		records = append(records, fields)
	}

	tempPath := tempSibling(path)
	out, err := os.OpenFile(tempPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return 0, fmt.Errorf("creating temp file: %w", err)
	}
	w := csv.NewWriter(out)
	if err := w.WriteAll(records); err != nil {
		out.Close()
		os.Remove(tempPath)
		return 0, fmt.Errorf("writing csv: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tempPath)
		return 0, fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return 0, fmt.Errorf("replacing file: %w", err)
	}
	return countRecordDiffs(previous, records), nil
}

func readCSVRecords(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	return r.ReadAll()
}

// countRecordDiffs counts cells that differ between the old and new grids,
// counting cells outside the common extent as changed.
func countRecordDiffs(old, new [][]string) int {
	diffs := 0
	rows := len(old)
	if len(new) > rows {
		rows = len(new)
	}
	for r := 0; r < rows; r++ {
		var a, b []string
		if r < len(old) {
			a = old[r]
		}
		if r < len(new) {
			b = new[r]
		}
		cols := len(a)
		if len(b) > cols {
			cols = len(b)
		}
		for c := 0; c < cols; c++ {
			var av, bv string
			if c < len(a) {
				av = a[c]
			}
			if c < len(b) {
				bv = b[c]
			}
			if av != bv {
				diffs++
			}
		}
	}
	return diffs
}

// tempSibling names a unique temp file in the target's directory, so the
// final rename stays on one filesystem.
func tempSibling(path string) string {
	return filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+"."+uuid.NewString()+".tmp")
}

func displayString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		if t {
			return "TRUE"
		}
		return "FALSE"
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

func containsString(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}
