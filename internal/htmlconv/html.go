package htmlconv

import (
	"fmt"
	"html"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/sheetmcp/mcp-sheets/internal/model"
)

// Options controls a single render call.
type Options struct {
	// SheetName selects the sheet; empty selects the first sheet.
	SheetName string
	// PageSize is the number of data rows per page. Zero or negative
	// renders every row on one page.
	PageSize int
	// PageNumber is 1-based. A page beyond the last yields an empty body,
	// not an error, so callers can probe past the end safely.
	PageNumber int
	// HeaderRows promotes the sheet's leading rows into a <thead> that is
	// repeated on every page and excluded from pagination.
	HeaderRows int
	// Compact strips indentation and newlines from the output.
	Compact bool
}

// Result carries the rendered document and its pagination coordinates.
type Result struct {
	HTML       string
	SheetName  string
	Page       int
	TotalPages int
	TotalRows  int
	// StyleCount is the number of distinct CSS classes the sheet produced.
	StyleCount int
}

// Render converts one sheet of the workbook to a standalone HTML document.
func Render(wb *model.Workbook, opts Options) (*Result, error) {
	sheet, err := wb.Sheet(opts.SheetName)
	if err != nil {
		return nil, err
	}

	headerRows := opts.HeaderRows
	if headerRows < 0 {
		headerRows = 0
	}
	if headerRows > len(sheet.Rows) {
		headerRows = len(sheet.Rows)
	}
	dataRows := len(sheet.Rows) - headerRows

	page := opts.PageNumber
	if page < 1 {
		page = 1
	}
	totalPages := 1
	start, end := 0, dataRows
	if opts.PageSize > 0 {
		totalPages = (dataRows + opts.PageSize - 1) / opts.PageSize
		if totalPages < 1 {
			totalPages = 1
		}
		start = (page - 1) * opts.PageSize
		end = start + opts.PageSize
		if start > dataRows {
			start = dataRows
		}
		if end > dataRows {
			end = dataRows
		}
	}

	classes := newClassSet()
	covered := satelliteIndex(sheet)

	// Cell markup is produced before the <style> block is assembled so the
	// class set is complete by the time the head is written.
	var head, body strings.Builder
	w := &docWriter{b: &body, compact: opts.Compact}

	w.openTag(1, "table")
	if headerRows > 0 {
		w.openTag(2, "thead")
		for r := 0; r < headerRows; r++ {
			renderRow(w, sheet, r, "th", classes, covered)
		}
		w.closeTag(2, "thead")
	}
	w.openTag(2, "tbody")
	for r := start; r < end; r++ {
		renderRow(w, sheet, headerRows+r, "td", classes, covered)
	}
	w.closeTag(2, "tbody")
	w.closeTag(1, "table")

	hw := &docWriter{b: &head, compact: opts.Compact}
	hw.line(0, "<!DOCTYPE html>")
	hw.openTag(0, "html")
	hw.openTag(1, "head")
	hw.line(2, `<meta charset="utf-8">`)
	hw.line(2, "<title>"+html.EscapeString(sheet.Name)+"</title>")
	hw.line(2, "<style>")
	hw.line(2, baseStylesheet)
	if rules := classes.stylesheet(opts.Compact); rules != "" {
		hw.line(2, rules)
	}
	hw.line(2, "</style>")
	hw.closeTag(1, "head")
	hw.openTag(1, "body")

	var tail strings.Builder
	tw := &docWriter{b: &tail, compact: opts.Compact}
	tw.closeTag(1, "body")
	tw.closeTag(0, "html")

	return &Result{
		HTML:       head.String() + body.String() + tail.String(),
		SheetName:  sheet.Name,
		Page:       page,
		TotalPages: totalPages,
		TotalRows:  dataRows,
		StyleCount: len(classes.order),
	}, nil
}

// satelliteIndex maps every non-anchor coordinate inside a merge region, so
// row rendering can skip the cells an anchor's span already covers.
func satelliteIndex(sheet *model.Sheet) map[[2]int]bool {
	covered := map[[2]int]bool{}
	for _, m := range sheet.Merges {
		for r := m.StartRow; r <= m.EndRow; r++ {
			for c := m.StartCol; c <= m.EndCol; c++ {
				if r == m.StartRow && c == m.StartCol {
					continue
				}
				covered[[2]int{r, c}] = true
			}
		}
	}
	return covered
}

func renderRow(w *docWriter, sheet *model.Sheet, r int, tag string, classes *classSet, covered map[[2]int]bool) {
	w.openTag(3, "tr")
	width := sheet.ColumnCount()
	for c := 0; c < width; c++ {
		if covered[[2]int{r, c}] {
			continue
		}
		cell := sheet.Cell(r, c)
		w.line(4, cellMarkup(cell, tag, classes))
	}
	w.closeTag(3, "tr")
}

func cellMarkup(cell *model.Cell, tag string, classes *classSet) string {
	var attrs []string
	content := ""
	if cell != nil {
		if class := classes.classFor(cell.Style); class != "" {
			attrs = append(attrs, fmt.Sprintf(`class=%q`, class))
		}
		if cell.RowSpan > 1 {
			attrs = append(attrs, fmt.Sprintf(`rowspan="%d"`, cell.RowSpan))
		}
		if cell.ColSpan > 1 {
			attrs = append(attrs, fmt.Sprintf(`colspan="%d"`, cell.ColSpan))
		}
		if cell.Style != nil && cell.Style.Comment != "" {
			attrs = append(attrs, fmt.Sprintf(`title=%q`, html.EscapeString(cell.Style.Comment)))
		}
		content = html.EscapeString(DisplayValue(cell))
		if cell.Style != nil && cell.Style.Hyperlink != "" {
			content = fmt.Sprintf(`<a href=%q>%s</a>`, html.EscapeString(cell.Style.Hyperlink), content)
		}
	}
	attr := ""
	if len(attrs) > 0 {
		attr = " " + strings.Join(attrs, " ")
	}
	return "<" + tag + attr + ">" + content + "</" + tag + ">"
}

// DisplayValue renders a cell's value as the text a spreadsheet user would
// see, applying the recognised subset of number formats.
func DisplayValue(cell *model.Cell) string {
	if cell == nil || cell.IsEmpty() {
		return ""
	}
	switch v := cell.Value.(type) {
	case string:
		return v
	case bool:
		if v {
			return "TRUE"
		}
		return "FALSE"
	case time.Time:
		if v.Hour() == 0 && v.Minute() == 0 && v.Second() == 0 {
			return v.Format("2006-01-02")
		}
		return v.Format("2006-01-02 15:04:05")
	case float64:
		numFmt := ""
		if cell.Style != nil {
			numFmt = cell.Style.NumberFormat
		}
		return formatNumber(v, numFmt)
	default:
		return fmt.Sprint(v)
	}
}

// formatNumber applies the small display subset of number format codes.
// Unrecognised codes fall back to the shortest exact representation.
func formatNumber(v float64, numFmt string) string {
	switch numFmt {
	case "0":
		return strconv.FormatFloat(math.Round(v), 'f', 0, 64)
	case "0.0":
		return strconv.FormatFloat(v, 'f', 1, 64)
	case "0.00":
		return strconv.FormatFloat(v, 'f', 2, 64)
	case "#,##0":
		return groupThousands(strconv.FormatFloat(math.Round(v), 'f', 0, 64))
	case "#,##0.00":
		return groupThousands(strconv.FormatFloat(v, 'f', 2, 64))
	case "0%":
		return strconv.FormatFloat(math.Round(v*100), 'f', 0, 64) + "%"
	case "0.00%":
		return strconv.FormatFloat(v*100, 'f', 2, 64) + "%"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// groupThousands inserts comma separators into a plain decimal string.
func groupThousands(s string) string {
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	intPart, fracPart := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart, fracPart = s[:i], s[i:]
	}
	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	out := b.String() + fracPart
	if neg {
		out = "-" + out
	}
	return out
}

// docWriter writes indented lines, or a single unbroken stream in compact
// mode.
type docWriter struct {
	b       *strings.Builder
	compact bool
}

func (w *docWriter) line(depth int, s string) {
	if !w.compact {
		w.b.WriteString(strings.Repeat("  ", depth))
	}
	w.b.WriteString(s)
	if !w.compact {
		w.b.WriteByte('\n')
	}
}

func (w *docWriter) openTag(depth int, name string) {
	w.line(depth, "<"+name+">")
}

func (w *docWriter) closeTag(depth int, name string) {
	w.line(depth, "</"+name+">")
}
