package parser

import (
	"archive/zip"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/sheetmcp/mcp-sheets/internal/model"
	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"
)

// xlsxParser handles the modern Excel zip formats. The same parser backs
// .xlsx and .xlsm; the macro-enabled variant additionally records (never
// executes) the presence of a VBA project.
type xlsxParser struct {
	macroEnabled bool
}

func (p *xlsxParser) Capabilities() Capabilities {
	return Capabilities{Write: true, Styles: true}
}

func (p *xlsxParser) Parse(ctx context.Context, path string, opts Options) (*model.Workbook, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, &CorruptFileError{Path: path, Cause: err}
	}
	defer func() { _ = f.Close() }()

	date1904 := false
	if props, err := f.GetWorkbookProps(); err == nil && props.Date1904 != nil {
		date1904 = *props.Date1904
	}

	wb := &model.Workbook{Format: Extension(path)}
	if p.macroEnabled {
		wb.HasMacros = hasVBAProject(path)
	}

	x := &xlsxSheetReader{
		f:        f,
		date1904: date1904,
		logger:   opts.logger(),
		styles:   make(map[int]*model.Style),
	}

	for _, name := range f.GetSheetList() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if opts.SheetName != "" && name != opts.SheetName {
			continue
		}
		sheet, err := x.readSheet(name, opts)
		if err != nil {
			return nil, err
		}
		wb.Sheets = append(wb.Sheets, sheet)
	}
	if opts.SheetName != "" && len(wb.Sheets) == 0 {
		return nil, fmt.Errorf("sheet %q not found in %s", opts.SheetName, path)
	}
	return wb, nil
}

// xlsxSheetReader carries per-workbook extraction state: the open file, the
// date system, and the style-id to shared-Style cache. Cells with the same
// source style id share one Style instance.
type xlsxSheetReader struct {
	f        *excelize.File
	date1904 bool
	logger   *logrus.Logger
	styles   map[int]*model.Style
}

func (x *xlsxSheetReader) readSheet(name string, opts Options) (*model.Sheet, error) {
	grid, err := x.f.GetRows(name)
	if err != nil {
		return nil, &CorruptFileError{Path: name, Cause: err}
	}

	comments := map[string]string{}
	if list, err := x.f.GetComments(name); err == nil {
		for _, c := range list {
			comments[c.Cell] = c.Text
		}
	}

	sheet := &model.Sheet{Name: name}
	for r := range grid {
		if opts.rowCapped(r) {
			break
		}
		row := model.Row{Cells: make([]model.Cell, len(grid[r]))}
		for c := range grid[r] {
			row.Cells[c] = x.readCell(name, r, c, comments)
		}
		sheet.Rows = append(sheet.Rows, row)
	}

	merges, err := x.f.GetMergeCells(name)
	if err == nil {
		for _, m := range merges {
			region, err := mergeRegionFromAxes(m.GetStartAxis(), m.GetEndAxis())
			if err != nil {
				x.logger.WithError(err).WithField("sheet", name).Warn("Skipping unparsable merge range")
				continue
			}
			sheet.Merges = append(sheet.Merges, region)
		}
	}
	sheet.ApplyMerges()
	return sheet, nil
}

// readCell extracts one cell's value and style. Extraction failures are
// recovered locally: the cell comes back empty and the failure is logged.
func (x *xlsxSheetReader) readCell(sheetName string, r, c int, comments map[string]string) model.Cell {
	axis, err := excelize.CoordinatesToCellName(c+1, r+1)
	if err != nil {
		return model.NewCell(nil, nil)
	}

	cell, err := x.extractCell(sheetName, axis, comments)
	if err != nil {
		perr := &ParseError{Sheet: sheetName, Row: r, Col: c, Cause: err}
		x.logger.WithError(perr).Warn("Recovered cell-level parse failure with an empty cell")
		return model.NewCell(nil, nil)
	}
	return cell
}

func (x *xlsxSheetReader) extractCell(sheetName, axis string, comments map[string]string) (model.Cell, error) {
	styleID, err := x.f.GetCellStyle(sheetName, axis)
	if err != nil {
		return model.Cell{}, err
	}
	style := x.styleFor(styleID)

	value, kind, err := x.extractValue(sheetName, axis, style)
	if err != nil {
		return model.Cell{}, err
	}

	// Hyperlinks and comments are cell-level, so a styled cell that gains
	// either gets its own Style copy rather than mutating the shared one.
	if ok, target, err := x.f.GetCellHyperLink(sheetName, axis); err == nil && ok && target != "" {
		style = withLink(style, target, "")
	}
	if text, ok := comments[axis]; ok && text != "" {
		style = withLink(style, "", text)
	}

	cell := model.NewCell(value, style)
	cell.Kind = kind
	return cell, nil
}

func (x *xlsxSheetReader) extractValue(sheetName, axis string, style *model.Style) (any, model.ValueKind, error) {
	text, err := x.f.GetCellValue(sheetName, axis)
	if err != nil {
		return nil, model.KindEmpty, err
	}
	cellType, err := x.f.GetCellType(sheetName, axis)
	if err != nil {
		return nil, model.KindEmpty, err
	}

	switch cellType {
	case excelize.CellTypeBool:
		return text == "TRUE" || text == "1", model.KindBool, nil
	case excelize.CellTypeDate:
		return x.dateValue(sheetName, axis, text)
	case excelize.CellTypeNumber, excelize.CellTypeUnset, excelize.CellTypeFormula:
		if text == "" {
			return nil, model.KindEmpty, nil
		}
		raw, rawErr := x.f.GetCellValue(sheetName, axis, excelize.Options{RawCellValue: true})
		if rawErr == nil {
			if serial, ferr := strconv.ParseFloat(raw, 64); ferr == nil {
				if style != nil && isDateFormat(style.NumberFormat) {
					return x.serialToDate(serial, text)
				}
				return serial, model.KindNumber, nil
			}
		}
		return text, model.KindText, nil
	default:
		if text == "" {
			return nil, model.KindEmpty, nil
		}
		return text, model.KindText, nil
	}
}

func (x *xlsxSheetReader) dateValue(sheetName, axis, formatted string) (any, model.ValueKind, error) {
	raw, err := x.f.GetCellValue(sheetName, axis, excelize.Options{RawCellValue: true})
	if err != nil {
		return formatted, model.KindText, nil
	}
	if serial, err := strconv.ParseFloat(raw, 64); err == nil {
		return x.serialToDate(serial, formatted)
	}
	return formatted, model.KindText, nil
}

func (x *xlsxSheetReader) serialToDate(serial float64, formatted string) (any, model.ValueKind, error) {
	t, err := excelize.ExcelDateToTime(serial, x.date1904)
	if err != nil {
		// Out-of-range serial: keep the display text.
		return formatted, model.KindText, nil
	}
	return t, model.KindDate, nil
}

// styleFor resolves an excelize style id to a shared canonical Style.
// Style id 0 is the workbook default (typically Calibri 11) and maps to no
// style at all, so unstyled cells stay unstyled in the model.
func (x *xlsxSheetReader) styleFor(styleID int) *model.Style {
	if styleID == 0 {
		return nil
	}
	if s, ok := x.styles[styleID]; ok {
		return s
	}
	style := model.DefaultStyle()
	if raw, err := x.f.GetStyle(styleID); err == nil && raw != nil {
		style = convertXlsxStyle(raw)
	}
	var ptr *model.Style
	if !style.IsDefault() {
		ptr = &style
	}
	x.styles[styleID] = ptr
	return ptr
}

// withLink returns a copy of base carrying the hyperlink target and/or
// comment text, preserving base's visual attributes.
func withLink(base *model.Style, hyperlink, comment string) *model.Style {
	s := model.DefaultStyle()
	if base != nil {
		s = *base
	}
	if hyperlink != "" {
		s.Hyperlink = hyperlink
	}
	if comment != "" {
		s.Comment = comment
	}
	return &s
}

// convertXlsxStyle maps an excelize style definition onto the canonical
// attribute set, resolving indexed and theme colours to literal hex.
func convertXlsxStyle(raw *excelize.Style) model.Style {
	s := model.DefaultStyle()

	if f := raw.Font; f != nil {
		s.Bold = f.Bold
		s.Italic = f.Italic
		s.Underline = f.Underline != "" && f.Underline != "none"
		s.FontName = f.Family
		s.FontSize = f.Size
		if c := resolveFontColor(f); c != "" {
			s.FontColor = c
		}
	}

	if bg, pattern := resolveFill(raw.Fill); bg != "" {
		s.Background = bg
		s.FillPattern = pattern
	}

	if a := raw.Alignment; a != nil {
		if a.Horizontal != "" {
			s.HAlign = a.Horizontal
		}
		if a.Vertical != "" {
			s.VAlign = a.Vertical
		}
		s.WrapText = a.WrapText
	}

	for _, b := range raw.Border {
		css := borderCSS(b.Style, b.Color)
		switch b.Type {
		case "top":
			s.BorderTop = css
		case "bottom":
			s.BorderBottom = css
		case "left":
			s.BorderLeft = css
		case "right":
			s.BorderRight = css
		}
	}

	s.NumberFormat = numberFormatString(raw)
	return s
}

func resolveFontColor(f *excelize.Font) string {
	if f.Color != "" {
		return model.NormalizeHexColor(f.Color)
	}
	if f.ColorTheme != nil {
		base := strings.TrimPrefix(themeColor(*f.ColorTheme), "#")
		return model.NormalizeHexColor(excelize.ThemeColor(base, f.ColorTint))
	}
	if f.ColorIndexed > 0 {
		return indexedColor(f.ColorIndexed)
	}
	return ""
}

// excelize fill pattern indices, in the OOXML patternType order.
var fillPatternNames = []string{
	"none", "solid", "mediumGray", "darkGray", "lightGray",
	"darkHorizontal", "darkVertical", "darkDown", "darkUp", "darkGrid",
	"darkTrellis", "lightHorizontal", "lightVertical", "lightDown",
	"lightUp", "lightGrid", "lightTrellis", "gray125", "gray0625",
}

// resolveFill returns the flat background colour and the pattern name.
// Solid fills use the first fill colour; grey patterns are approximated
// with a flat grey.
func resolveFill(fill excelize.Fill) (background, pattern string) {
	if fill.Pattern <= 0 || fill.Pattern >= len(fillPatternNames) {
		return "", ""
	}
	name := fillPatternNames[fill.Pattern]
	if name == "solid" {
		if len(fill.Color) > 0 {
			// An explicit solid fill is kept even when it is white; the
			// pattern name marks it as deliberate rather than absent.
			if c := model.NormalizeHexColor(fill.Color[0]); c != "" {
				return c, "solid"
			}
		}
		return "", ""
	}
	if grey, ok := patternFills[name]; ok {
		return grey, name
	}
	if len(fill.Color) > 0 {
		if c := model.NormalizeHexColor(fill.Color[0]); c != "" {
			return c, name
		}
	}
	return "", ""
}

// borderStyleNames indexes excelize's numeric border styles.
var borderStyleNames = []string{
	"", "thin", "medium", "dashed", "dotted", "thick", "double", "hair",
	"mediumDashed", "dashDot", "mediumDashDot", "dashDotDot",
	"mediumDashDotDot", "slantDashDot",
}

// borderCSSMap follows the original converter's OOXML-to-CSS mapping.
var borderCSSMap = map[string]string{
	"thin":             "1px solid",
	"medium":           "2px solid",
	"thick":            "3px solid",
	"double":           "3px double",
	"dotted":           "1px dotted",
	"dashed":           "1px dashed",
	"hair":             "1px solid",
	"mediumDashed":     "2px dashed",
	"dashDot":          "1px dashed",
	"mediumDashDot":    "2px dashed",
	"dashDotDot":       "1px dashed",
	"mediumDashDotDot": "2px dashed",
	"slantDashDot":     "1px dashed",
}

// borderCSS renders a border edge as "<width> <style> <colour>", or "" when
// the edge has no drawable border.
func borderCSS(styleIndex int, color string) string {
	if styleIndex <= 0 || styleIndex >= len(borderStyleNames) {
		return ""
	}
	css, ok := borderCSSMap[borderStyleNames[styleIndex]]
	if !ok {
		return ""
	}
	hex := model.NormalizeHexColor(color)
	if hex == "" {
		hex = model.DefaultFontColor
	}
	return css + " " + hex
}

// builtInDateFormats are the OOXML built-in number format ids that render
// date or time values.
var builtInDateFormats = map[int]string{
	14: "mm-dd-yy", 15: "d-mmm-yy", 16: "d-mmm", 17: "mmm-yy",
	18: "h:mm AM/PM", 19: "h:mm:ss AM/PM", 20: "h:mm", 21: "h:mm:ss",
	22: "m/d/yy h:mm", 45: "mm:ss", 46: "[h]:mm:ss", 47: "mmss.0",
}

func numberFormatString(raw *excelize.Style) string {
	if raw.CustomNumFmt != nil && *raw.CustomNumFmt != "" {
		return *raw.CustomNumFmt
	}
	if raw.NumFmt > 0 {
		if fmtStr, ok := builtInDateFormats[raw.NumFmt]; ok {
			return fmtStr
		}
		if fmtStr, ok := builtInNumberFormats[raw.NumFmt]; ok {
			return fmtStr
		}
	}
	return ""
}

// builtInNumberFormats covers the common non-date built-in ids.
var builtInNumberFormats = map[int]string{
	1: "0", 2: "0.00", 3: "#,##0", 4: "#,##0.00",
	9: "0%", 10: "0.00%", 11: "0.00E+00", 12: "# ?/?", 13: "# ??/??",
	37: "#,##0 ;(#,##0)", 38: "#,##0 ;[Red](#,##0)",
	39: "#,##0.00;(#,##0.00)", 40: "#,##0.00;[Red](#,##0.00)",
	48: "##0.0E+0", 49: "@",
}

// isDateFormat reports whether a number-format string renders dates. It
// checks for date tokens while ignoring quoted literals and colour tags.
func isDateFormat(format string) bool {
	if format == "" || format == "@" || strings.EqualFold(format, "general") {
		return false
	}
	inQuote := false
	inBracket := false
	for _, r := range format {
		switch {
		case r == '"':
			inQuote = !inQuote
		case inQuote:
		case r == '[':
			inBracket = true
		case r == ']':
			inBracket = false
		case inBracket:
		case r == 'y' || r == 'Y' || r == 'd' || r == 'D' || r == 'h' || r == 'H' || r == 's' || r == 'm' || r == 'M':
			return true
		case r == '0' || r == '#' || r == '?':
			return false
		}
	}
	return false
}

// mergeRegionFromAxes converts a pair of A1 axes into a 0-based region.
func mergeRegionFromAxes(start, end string) (model.MergeRegion, error) {
	sc, sr, err := excelize.CellNameToCoordinates(start)
	if err != nil {
		return model.MergeRegion{}, err
	}
	ec, er, err := excelize.CellNameToCoordinates(end)
	if err != nil {
		return model.MergeRegion{}, err
	}
	return model.MergeRegion{
		StartRow: sr - 1, StartCol: sc - 1,
		EndRow: er - 1, EndCol: ec - 1,
	}, nil
}

// hasVBAProject reports whether the zip container carries a VBA part.
func hasVBAProject(path string) bool {
	r, err := zip.OpenReader(path)
	if err != nil {
		return false
	}
	defer func() { _ = r.Close() }()
	for _, file := range r.File {
		if file.Name == "xl/vbaProject.bin" {
			return true
		}
	}
	return false
}
