// Package model defines the unified tabular data model used as the pivot
// format between every format parser and every consumer (HTML converter,
// write-back engine, fidelity validator). A Workbook is a read-only snapshot
// of a source file at parse time; it is never persisted between calls.
package model

import (
	"fmt"
	"time"
)

// ValueKind tags the variant type held by a Cell.
type ValueKind string

const (
	KindEmpty  ValueKind = "empty"
	KindText   ValueKind = "text"
	KindNumber ValueKind = "number"
	KindBool   ValueKind = "bool"
	KindDate   ValueKind = "date"
)

// Cell holds a single cell's value, its shared Style, and merge span counts.
// A cell with RowSpan or ColSpan greater than 1 is the anchor of a merge
// region; satellite cells inside the region carry no value of their own.
type Cell struct {
	// Value is one of: nil, string, float64, bool, time.Time.
	Value   any
	Kind    ValueKind
	Style   *Style
	RowSpan int
	ColSpan int
}

// NewCell constructs a cell with span counts of 1 and a kind inferred from
// the dynamic type of value.
func NewCell(value any, style *Style) Cell {
	return Cell{
		Value:   value,
		Kind:    KindOf(value),
		Style:   style,
		RowSpan: 1,
		ColSpan: 1,
	}
}

// KindOf infers the ValueKind for a dynamic cell value.
func KindOf(value any) ValueKind {
	switch value.(type) {
	case nil:
		return KindEmpty
	case string:
		return KindText
	case float64, float32, int, int64:
		return KindNumber
	case bool:
		return KindBool
	case time.Time:
		return KindDate
	default:
		return KindText
	}
}

// IsEmpty reports whether the cell carries no value.
func (c *Cell) IsEmpty() bool {
	return c.Value == nil || c.Kind == KindEmpty
}

// Row is an ordered sequence of cells, index-aligned to column position.
// Rows may have differing lengths within a sheet (sparse trailing columns).
type Row struct {
	Cells []Cell
}

// MergeRegion is a rectangular merged range. Coordinates are 0-based and
// inclusive on both ends.
type MergeRegion struct {
	StartRow int `json:"start_row"`
	StartCol int `json:"start_col"`
	EndRow   int `json:"end_row"`
	EndCol   int `json:"end_col"`
}

// RowSpan returns the number of rows the region covers.
func (m MergeRegion) RowSpan() int { return m.EndRow - m.StartRow + 1 }

// ColSpan returns the number of columns the region covers.
func (m MergeRegion) ColSpan() int { return m.EndCol - m.StartCol + 1 }

// Contains reports whether the 0-based coordinate lies inside the region.
func (m MergeRegion) Contains(row, col int) bool {
	return row >= m.StartRow && row <= m.EndRow && col >= m.StartCol && col <= m.EndCol
}

// Sheet is a named grid of rows plus its merge-region descriptors.
type Sheet struct {
	Name   string
	Rows   []Row
	Merges []MergeRegion
}

// ColumnCount returns the widest row length in the sheet.
func (s *Sheet) ColumnCount() int {
	max := 0
	for i := range s.Rows {
		if n := len(s.Rows[i].Cells); n > max {
			max = n
		}
	}
	return max
}

// Cell returns a pointer to the cell at the 0-based coordinate, or nil when
// the coordinate falls outside the materialised grid.
func (s *Sheet) Cell(row, col int) *Cell {
	if row < 0 || row >= len(s.Rows) {
		return nil
	}
	cells := s.Rows[row].Cells
	if col < 0 || col >= len(cells) {
		return nil
	}
	return &cells[col]
}

// ApplyMerges marks every merge region's anchor cell with the region's span
// counts and blanks the satellite cells, restoring the anchor/satellite
// invariant after raw extraction.
func (s *Sheet) ApplyMerges() {
	for _, m := range s.Merges {
		for r := m.StartRow; r <= m.EndRow; r++ {
			for c := m.StartCol; c <= m.EndCol; c++ {
				cell := s.Cell(r, c)
				if cell == nil {
					continue
				}
				if r == m.StartRow && c == m.StartCol {
					cell.RowSpan = m.RowSpan()
					cell.ColSpan = m.ColSpan()
				} else {
					cell.Value = nil
					cell.Kind = KindEmpty
					cell.RowSpan = 1
					cell.ColSpan = 1
				}
			}
		}
	}
}

// Workbook is an ordered collection of sheets produced by one parse call.
type Workbook struct {
	// Format is the lowercase source extension without the dot ("xlsx").
	Format string
	// HasMacros is true when the source carries a VBA project. Macros are
	// never interpreted; this is metadata pass-through only.
	HasMacros bool
	Sheets    []*Sheet
}

// SheetNames returns sheet names in source-declared order.
func (w *Workbook) SheetNames() []string {
	names := make([]string, len(w.Sheets))
	for i, s := range w.Sheets {
		names[i] = s.Name
	}
	return names
}

// Sheet returns the named sheet, or the first sheet when name is empty.
func (w *Workbook) Sheet(name string) (*Sheet, error) {
	if len(w.Sheets) == 0 {
		return nil, fmt.Errorf("workbook contains no sheets")
	}
	if name == "" {
		return w.Sheets[0], nil
	}
	for _, s := range w.Sheets {
		if s.Name == name {
			return s, nil
		}
	}
	return nil, fmt.Errorf("sheet %q not found (available: %v)", name, w.SheetNames())
}
