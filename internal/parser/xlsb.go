package parser

import (
	"context"
	"os"

	xlsb "github.com/TsubasaBE/go-xlsb"
	"github.com/TsubasaBE/go-xlsb/workbook"
	"github.com/TsubasaBE/go-xlsb/worksheet"
	"github.com/sheetmcp/mcp-sheets/internal/model"
)

// xlsbParser reads the Excel binary (BIFF12) format. The format is
// data-focused: values, merges, hyperlinks and date serials come through;
// visual styling beyond the number format is not extractable, so style
// attributes stay at documented defaults.
type xlsbParser struct{}

func (p *xlsbParser) Capabilities() Capabilities {
	return Capabilities{Write: false, Styles: false}
}

func (p *xlsbParser) Parse(ctx context.Context, path string, opts Options) (*model.Workbook, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &CorruptFileError{Path: path, Cause: err}
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return nil, &CorruptFileError{Path: path, Cause: err}
	}
	wb, err := workbook.OpenReader(f, info.Size())
	if err != nil {
		return nil, &CorruptFileError{Path: path, Cause: err}
	}
	defer func() { _ = wb.Close() }()

	relsBySheet, err := loadXlsbHyperlinkRels(path)
	if err != nil {
		opts.logger().WithError(err).Debug("Hyperlink relationships unavailable")
	}

	out := &model.Workbook{Format: Extension(path)}
	for i, name := range wb.Sheets() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if opts.SheetName != "" && name != opts.SheetName {
			continue
		}
		ws, err := wb.Sheet(i + 1)
		if err != nil {
			return nil, &CorruptFileError{Path: path, Cause: err}
		}
		var rels sheetRels
		if i < len(relsBySheet) {
			rels = relsBySheet[i]
		}
		sheet, err := readXlsbSheet(wb, ws, rels, opts)
		if err != nil {
			return nil, &CorruptFileError{Path: path, Cause: err}
		}
		out.Sheets = append(out.Sheets, sheet)
	}
	if opts.SheetName != "" && len(out.Sheets) == 0 {
		return nil, &CorruptFileError{Path: path, Cause: errSheetNotFound(opts.SheetName)}
	}
	return out, nil
}

func readXlsbSheet(wb *workbook.Workbook, ws *worksheet.Worksheet, rels sheetRels, opts Options) (*model.Sheet, error) {
	sheet := &model.Sheet{Name: ws.Name}

	for rowCells := range ws.Rows(false) {
		if len(rowCells) == 0 {
			continue
		}
		r := rowCells[0].R
		if opts.rowCapped(r) {
			break
		}
		// Dense mode still addresses cells by coordinate; rows can arrive
		// out of step with the grid when leading rows are blank.
		for len(sheet.Rows) <= r {
			sheet.Rows = append(sheet.Rows, model.Row{})
		}
		row := &sheet.Rows[r]
		for _, c := range rowCells {
			for len(row.Cells) <= c.C {
				row.Cells = append(row.Cells, model.NewCell(nil, nil))
			}
			value, kind := convertXlsbValue(wb, c)
			cell := model.NewCell(value, nil)
			cell.Kind = kind
			if rid, ok := ws.Hyperlinks[[2]int{c.R, c.C}]; ok {
				if url := rels.resolve(rid); url != "" {
					style := model.DefaultStyle()
					style.Hyperlink = url
					cell.Style = &style
				}
			}
			row.Cells[c.C] = cell
		}
	}
	if ws.Err != nil {
		return nil, ws.Err
	}

	for _, m := range ws.MergeCells {
		sheet.Merges = append(sheet.Merges, model.MergeRegion{
			StartRow: m.R, StartCol: m.C,
			EndRow: m.R + m.H - 1, EndCol: m.C + m.W - 1,
		})
	}
	sheet.ApplyMerges()
	return sheet, nil
}

// convertXlsbValue maps the library's typed value onto the model variant,
// converting date serials with the workbook's declared date system (the
// library compensates for the 1900 phantom leap day).
func convertXlsbValue(wb *workbook.Workbook, c worksheet.Cell) (any, model.ValueKind) {
	switch v := c.V.(type) {
	case nil:
		return nil, model.KindEmpty
	case string:
		if v == "" {
			return nil, model.KindEmpty
		}
		return v, model.KindText
	case bool:
		return v, model.KindBool
	case float64:
		if wb.Styles.IsDate(c.Style) {
			if t, err := xlsb.ConvertDateEx(v, wb.Date1904); err == nil {
				return t, model.KindDate
			}
		}
		return v, model.KindNumber
	default:
		return c.V, model.KindText
	}
}
