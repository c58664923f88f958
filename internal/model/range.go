package model

import (
	"fmt"
	"strings"
)

// RangeSyntaxError reports a malformed A1-notation range string.
type RangeSyntaxError struct {
	Input   string
	Message string
}

func (e *RangeSyntaxError) Error() string {
	return fmt.Sprintf("invalid range %q: %s", e.Input, e.Message)
}

// Range is a rectangular cell window in 0-based coordinates, inclusive on
// both ends: "A1:D10" covers rows 0..9 and columns 0..3.
type Range struct {
	StartRow int
	StartCol int
	EndRow   int
	EndCol   int
}

// NumRows returns the number of rows the range spans.
func (r Range) NumRows() int { return r.EndRow - r.StartRow + 1 }

// NumCols returns the number of columns the range spans.
func (r Range) NumCols() int { return r.EndCol - r.StartCol + 1 }

// ParseRange parses "A1:D10" or single-cell "B2" notation. Column letters
// use base-26 arithmetic, so double-letter columns ("AA" = 26) work.
func ParseRange(input string) (Range, error) {
	s := strings.ToUpper(strings.TrimSpace(input))
	if s == "" {
		return Range{}, &RangeSyntaxError{Input: input, Message: "empty range"}
	}

	parts := strings.Split(s, ":")
	switch len(parts) {
	case 1:
		row, col, err := parseCellRef(input, parts[0])
		if err != nil {
			return Range{}, err
		}
		return Range{StartRow: row, StartCol: col, EndRow: row, EndCol: col}, nil
	case 2:
		startRow, startCol, err := parseCellRef(input, parts[0])
		if err != nil {
			return Range{}, err
		}
		endRow, endCol, err := parseCellRef(input, parts[1])
		if err != nil {
			return Range{}, err
		}
		if startRow > endRow || startCol > endCol {
			return Range{}, &RangeSyntaxError{Input: input, Message: "start cell must not be after end cell"}
		}
		return Range{StartRow: startRow, StartCol: startCol, EndRow: endRow, EndCol: endCol}, nil
	default:
		return Range{}, &RangeSyntaxError{Input: input, Message: "expected 'A1' or 'A1:D10'"}
	}
}

// parseCellRef splits a reference like "AB12" into 0-based row and column.
func parseCellRef(input, ref string) (row, col int, err error) {
	i := 0
	for i < len(ref) && ref[i] >= 'A' && ref[i] <= 'Z' {
		i++
	}
	letters, digits := ref[:i], ref[i:]
	if letters == "" || digits == "" {
		return 0, 0, &RangeSyntaxError{Input: input, Message: fmt.Sprintf("malformed cell reference %q", ref)}
	}
	col, err = ColumnIndex(letters)
	if err != nil {
		return 0, 0, &RangeSyntaxError{Input: input, Message: err.Error()}
	}
	n := 0
	for _, r := range digits {
		if r < '0' || r > '9' {
			return 0, 0, &RangeSyntaxError{Input: input, Message: fmt.Sprintf("malformed cell reference %q", ref)}
		}
		n = n*10 + int(r-'0')
	}
	if n == 0 {
		return 0, 0, &RangeSyntaxError{Input: input, Message: "row numbers are 1-based"}
	}
	return n - 1, col, nil
}

// ColumnIndex converts spreadsheet column letters to a 0-based index
// (A=0, Z=25, AA=26).
func ColumnIndex(letters string) (int, error) {
	if letters == "" {
		return 0, fmt.Errorf("empty column letters")
	}
	n := 0
	for _, r := range strings.ToUpper(letters) {
		if r < 'A' || r > 'Z' {
			return 0, fmt.Errorf("invalid column letter %q", string(r))
		}
		n = n*26 + int(r-'A') + 1
	}
	return n - 1, nil
}

// ColumnLetters converts a 0-based column index to spreadsheet letters.
func ColumnLetters(index int) string {
	if index < 0 {
		return ""
	}
	var b []byte
	n := index + 1
	for n > 0 {
		n--
		b = append([]byte{byte('A' + n%26)}, b...)
		n /= 26
	}
	return string(b)
}
