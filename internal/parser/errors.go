package parser

import "fmt"

// UnsupportedFormatError indicates the file extension matches no registered
// parser.
type UnsupportedFormatError struct {
	Path      string
	Extension string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported file format %q for %s (supported: %v)", e.Extension, e.Path, SupportedFormats())
}

// CorruptFileError indicates the underlying container could not be opened
// at all (bad zip, truncated OLE stream, unreadable file).
type CorruptFileError struct {
	Path  string
	Cause error
}

func (e *CorruptFileError) Error() string {
	return fmt.Sprintf("cannot open %s: %v", e.Path, e.Cause)
}

func (e *CorruptFileError) Unwrap() error { return e.Cause }

// ParseError is a cell- or row-level extraction failure. Parsers recover
// from it locally: the failing cell is logged and substituted with an empty
// cell so one bad cell never aborts a whole-sheet parse.
type ParseError struct {
	Sheet string
	Row   int
	Col   int
	Cause error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error in sheet %q at row %d col %d: %v", e.Sheet, e.Row, e.Col, e.Cause)
}

func (e *ParseError) Unwrap() error { return e.Cause }
