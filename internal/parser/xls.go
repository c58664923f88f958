package parser

import (
	"context"
	"strconv"
	"strings"

	"github.com/extrame/xls"
	"github.com/sheetmcp/mcp-sheets/internal/model"
)

// xlsParser reads legacy BIFF8 .xls workbooks. The format is read-only
// here and exposes formatted cell text rather than native type tags, so
// value kinds are inferred from the text and style attributes stay at the
// documented defaults. This is the declared capability limit behind the
// fidelity split between the modern and legacy formats.
type xlsParser struct{}

func (p *xlsParser) Capabilities() Capabilities {
	return Capabilities{Write: false, Styles: false}
}

func (p *xlsParser) Parse(ctx context.Context, path string, opts Options) (*model.Workbook, error) {
	book, err := xls.Open(path, "utf-8")
	if err != nil {
		return nil, &CorruptFileError{Path: path, Cause: err}
	}

	wb := &model.Workbook{Format: Extension(path)}
	for i := 0; i < book.NumSheets(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ws := book.GetSheet(i)
		if ws == nil {
			continue
		}
		if opts.SheetName != "" && ws.Name != opts.SheetName {
			continue
		}
		wb.Sheets = append(wb.Sheets, readXlsSheet(ws, opts))
	}
	if opts.SheetName != "" && len(wb.Sheets) == 0 {
		return nil, &CorruptFileError{Path: path, Cause: errSheetNotFound(opts.SheetName)}
	}
	return wb, nil
}

type errSheetNotFound string

func (e errSheetNotFound) Error() string { return "sheet " + strconv.Quote(string(e)) + " not found" }

func readXlsSheet(ws *xls.WorkSheet, opts Options) *model.Sheet {
	sheet := &model.Sheet{Name: ws.Name}
	for r := 0; r <= int(ws.MaxRow); r++ {
		if opts.rowCapped(r) {
			break
		}
		row := ws.Row(r)
		if row == nil {
			sheet.Rows = append(sheet.Rows, model.Row{})
			continue
		}
		width := row.LastCol()
		cells := make([]model.Cell, width)
		for c := 0; c < width; c++ {
			cells[c] = model.NewCell(nil, nil)
			if c >= row.FirstCol() {
				value, kind := coerceXlsValue(row.Col(c))
				cells[c].Value = value
				cells[c].Kind = kind
			}
		}
		sheet.Rows = append(sheet.Rows, model.Row{Cells: cells})
	}
	return sheet
}

// coerceXlsValue infers the variant type from the library's formatted cell
// text. Dates arrive pre-rendered by the reader using the workbook's date
// system (including the 1900 leap-year quirk), so they stay textual.
func coerceXlsValue(text string) (any, model.ValueKind) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, model.KindEmpty
	}
	switch strings.ToUpper(trimmed) {
	case "TRUE":
		return true, model.KindBool
	case "FALSE":
		return false, model.KindBool
	}
	if n, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return n, model.KindNumber
	}
	return text, model.KindText
}
