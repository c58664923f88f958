package model

// StyleTable deduplicates styles by attribute-set equality into a compact
// id-indexed table. Id 0 is always the default style, so unstyled cells can
// omit their style reference in serialised output. Spreadsheets repeat
// styles heavily, so the table is the main size-reduction mechanism in both
// the JSON payload and the generated CSS.
type StyleTable struct {
	ids    map[Style]int
	styles []Style
}

// NewStyleTable returns a table seeded with the default style at id 0.
func NewStyleTable() *StyleTable {
	t := &StyleTable{ids: make(map[Style]int)}
	t.Add(DefaultStyle())
	return t
}

// Add interns the style and returns its id, assigning a new id only on
// first occurrence of the attribute set.
func (t *StyleTable) Add(s Style) int {
	if id, ok := t.ids[s]; ok {
		return id
	}
	id := len(t.styles)
	t.ids[s] = id
	t.styles = append(t.styles, s)
	return id
}

// AddCell interns the cell's style, treating a nil style as the default.
func (t *StyleTable) AddCell(c *Cell) int {
	if c.Style == nil {
		return 0
	}
	return t.Add(*c.Style)
}

// Get returns the style for an id; out-of-range ids yield the default.
func (t *StyleTable) Get(id int) Style {
	if id < 0 || id >= len(t.styles) {
		return DefaultStyle()
	}
	return t.styles[id]
}

// Len returns the number of distinct styles interned, including id 0.
func (t *StyleTable) Len() int { return len(t.styles) }

// Styles returns the table in id order. The slice must not be mutated.
func (t *StyleTable) Styles() []Style { return t.styles }

// BuildStyleTable interns every styled cell of the sheet and returns the
// table. The distinct-id count never exceeds the populated cell count plus
// one (the seeded default).
func BuildStyleTable(sheet *Sheet) *StyleTable {
	t := NewStyleTable()
	for i := range sheet.Rows {
		for j := range sheet.Rows[i].Cells {
			t.AddCell(&sheet.Rows[i].Cells[j])
		}
	}
	return t
}
