// Package parser normalises heterogeneous spreadsheet formats (xlsx, xlsm,
// xls, xlsb, csv) into the unified table model. One parser per format; a
// read-only extension registry selects the parser at call time.
package parser

import (
	"context"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sheetmcp/mcp-sheets/internal/model"
	"github.com/sirupsen/logrus"
)

// Options controls a single parse call.
type Options struct {
	// SheetName restricts extraction to one sheet; empty parses all sheets.
	SheetName string
	// MaxRows caps the number of rows extracted per sheet; 0 means no cap.
	MaxRows int
	// Logger receives per-cell recovery warnings. Nil discards them.
	Logger *logrus.Logger
}

func (o Options) logger() *logrus.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

// rowCapped reports whether row index r (0-based) falls beyond the cap.
func (o Options) rowCapped(r int) bool {
	return o.MaxRows > 0 && r >= o.MaxRows
}

// Capabilities is the per-format capability set used for dispatch decisions
// and surfaced in tool output.
type Capabilities struct {
	// Write is true when the format has a write-back path.
	Write bool
	// Styles is true when the format carries extractable styling.
	Styles bool
}

// Parser converts one source format into the table model.
type Parser interface {
	Parse(ctx context.Context, path string, opts Options) (*model.Workbook, error)
	Capabilities() Capabilities
}

// registry maps lowercase extensions (no dot) to parser instances. It is
// populated once at package init and never mutated afterwards.
var registry = map[string]Parser{
	"csv":  &csvParser{},
	"xlsx": &xlsxParser{},
	"xlsm": &xlsxParser{macroEnabled: true},
	"xls":  &xlsParser{},
	"xlsb": &xlsbParser{},
}

// ForPath returns the parser registered for the file's extension.
func ForPath(path string) (Parser, error) {
	ext := Extension(path)
	p, ok := registry[ext]
	if !ok {
		return nil, &UnsupportedFormatError{Path: path, Extension: ext}
	}
	return p, nil
}

// Extension returns the lowercase extension of path without the dot.
func Extension(path string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
}

// IsSupported reports whether the path's extension has a registered parser.
func IsSupported(path string) bool {
	_, ok := registry[Extension(path)]
	return ok
}

// SupportedFormats returns the registered extensions, sorted.
func SupportedFormats() []string {
	formats := make([]string, 0, len(registry))
	for ext := range registry {
		formats = append(formats, ext)
	}
	sort.Strings(formats)
	return formats
}

// Parse selects the parser for path and runs it.
func Parse(ctx context.Context, path string, opts Options) (*model.Workbook, error) {
	p, err := ForPath(path)
	if err != nil {
		return nil, err
	}
	return p.Parse(ctx, path, opts)
}
