package sheets

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sheetmcp/mcp-sheets/internal/cache"
	"github.com/sheetmcp/mcp-sheets/internal/model"
	"github.com/sheetmcp/mcp-sheets/internal/parser"
	"github.com/sheetmcp/mcp-sheets/internal/tools"
	"github.com/sirupsen/logrus"
)

// ParseSheetTool extracts structured data and styles from spreadsheet files
type ParseSheetTool struct{}

// defaults for preview and extraction caps
const (
	defaultPreviewRows = 10
	defaultMaxRows     = 5000
)

// Definition returns the tool's definition for MCP registration
func (t *ParseSheetTool) Definition() mcp.Tool {
	return mcp.NewTool(
		"parse_sheet",
		mcp.WithDescription(`Parse a spreadsheet file (xlsx, xlsm, xls, xlsb, csv) into structured JSON: cell values with types, merged regions, and a deduplicated style table (fonts, fills, borders, alignment). Use this tool when an agent needs to read or inspect spreadsheet content.

Values are typed (text, number, bool, date); styles are referenced by id into the styles array so repeated formatting is not repeated in the payload. Legacy formats (xls, xlsb) return values without styling.

Use get_tool_help tool with tool_name="parse_sheet" for detailed examples and troubleshooting.`),
		mcp.WithString("file_path",
			mcp.Required(),
			mcp.Description("Path to the spreadsheet file (xlsx, xlsm, xls, xlsb, or csv)"),
		),
		mcp.WithString("sheet_name",
			mcp.Description("Worksheet to extract. Omit to extract the first sheet; other sheet names are still listed in the response."),
		),
		mcp.WithString("range",
			mcp.Description("Cell range in A1 notation (e.g. 'A1:D10' or 'B2') restricting the extracted area"),
		),
		mcp.WithBoolean("include_styles",
			mcp.Description("Include the deduplicated style table and per-cell style references"),
			mcp.DefaultBool(true),
		),
		mcp.WithBoolean("preview_only",
			mcp.Description("Return only the first preview_rows rows plus sheet metadata"),
			mcp.DefaultBool(false),
		),
		mcp.WithNumber("preview_rows",
			mcp.Description("Row count for preview_only mode"),
			mcp.DefaultNumber(defaultPreviewRows),
		),
		mcp.WithNumber("max_rows",
			mcp.Description("Hard cap on extracted rows per sheet"),
			mcp.DefaultNumber(defaultMaxRows),
		),
		// Tool annotations
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)
}

// Execute executes the parse_sheet tool
func (t *ParseSheetTool) Execute(ctx context.Context, logger *logrus.Logger, shared *sync.Map, args map[string]any) (*mcp.CallToolResult, error) {
	filePath := argString(args, "file_path")
	fullPath, err := resolveSheetPath(filePath)
	if err != nil {
		return nil, err
	}

	sheetName := argString(args, "sheet_name")
	maxRows := argInt(args, "max_rows", defaultMaxRows)
	if maxRows < 0 {
		maxRows = 0
	}

	logger.WithFields(logrus.Fields{
		"file_path":  fullPath,
		"sheet_name": sheetName,
	}).Info("Parsing spreadsheet")

	wb, cached, err := parseWithCache(ctx, logger, shared, fullPath, maxRows)
	if err != nil {
		return nil, err
	}
	sheet, err := wb.Sheet(sheetName)
	if err != nil {
		return nil, err
	}

	var cellRange *model.Range
	if rangeStr := argString(args, "range"); rangeStr != "" {
		r, err := model.ParseRange(rangeStr)
		if err != nil {
			return nil, &ValidationError{Field: "range", Value: rangeStr, Message: err.Error()}
		}
		cellRange = &r
	}

	includeStyles := argBool(args, "include_styles", true)
	previewOnly := argBool(args, "preview_only", false)
	previewRows := argInt(args, "preview_rows", defaultPreviewRows)
	if previewRows < 1 {
		previewRows = defaultPreviewRows
	}

	payload := buildParsePayload(wb, sheet, cellRange, includeStyles, previewOnly, previewRows)
	payload["file_path"] = fullPath
	payload["cached"] = cached
	return newJSONResult(payload)
}

// parseWithCache returns a cached workbook for an unmodified file, parsing
// and caching on miss. The second return reports whether the hit came from
// the cache.
func parseWithCache(ctx context.Context, logger *logrus.Logger, shared *sync.Map, path string, maxRows int) (*model.Workbook, bool, error) {
	fingerprint, err := cache.Fingerprint(path)
	if err != nil {
		return nil, false, fmt.Errorf("file not accessible: %w", err)
	}
	key := fmt.Sprintf("%s|max=%d", fingerprint, maxRows)

	wbCache := workbookCache(shared)
	if v, ok := wbCache.Get(key); ok {
		if wb, ok := v.(*model.Workbook); ok {
			logger.WithField("file_path", path).Debug("Workbook served from parse cache")
			return wb, true, nil
		}
	}

	start := time.Now()
	wb, err := parser.Parse(ctx, path, parser.Options{MaxRows: maxRows, Logger: logger})
	if err != nil {
		return nil, false, err
	}
	logger.WithFields(logrus.Fields{
		"file_path": path,
		"sheets":    len(wb.Sheets),
		"duration":  time.Since(start).String(),
	}).Debug("Workbook parsed")

	wbCache.Set(key, wb)
	return wb, false, nil
}

// buildParsePayload serialises one sheet of the workbook. Cells are emitted
// as {v, t, s, rs, cs} objects with the zero-valued fields omitted.
func buildParsePayload(wb *model.Workbook, sheet *model.Sheet, cellRange *model.Range, includeStyles, previewOnly bool, previewRows int) map[string]any {
	caps := parser.Capabilities{}
	if p, err := parser.ForPath("f." + wb.Format); err == nil {
		caps = p.Capabilities()
	}

	payload := map[string]any{
		"format":     wb.Format,
		"has_macros": wb.HasMacros,
		"writable":   caps.Write,
		"styled":     caps.Styles,
		"sheets":     wb.SheetNames(),
		"sheet_name": sheet.Name,
	}

	startRow, startCol := 0, 0
	endRow, endCol := len(sheet.Rows)-1, sheet.ColumnCount()-1
	if cellRange != nil {
		startRow, startCol = cellRange.StartRow, cellRange.StartCol
		if cellRange.EndRow < endRow {
			endRow = cellRange.EndRow
		}
		if cellRange.EndCol < endCol {
			endCol = cellRange.EndCol
		}
	}
	totalRows := endRow - startRow + 1
	if totalRows < 0 {
		totalRows = 0
	}
	payload["row_count"] = totalRows
	payload["column_count"] = sheet.ColumnCount()

	if previewOnly && startRow+previewRows-1 < endRow {
		endRow = startRow + previewRows - 1
		payload["preview"] = true
		payload["preview_rows"] = previewRows
	}

	styles := model.NewStyleTable()
	rows := make([][]map[string]any, 0, endRow-startRow+1)
	for r := startRow; r <= endRow; r++ {
		if r < 0 || r >= len(sheet.Rows) {
			break
		}
		cells := sheet.Rows[r].Cells
		out := make([]map[string]any, 0, len(cells))
		for c := startCol; c <= endCol && c < len(cells); c++ {
			out = append(out, cellPayload(&cells[c], styles, includeStyles))
		}
		rows = append(rows, out)
	}
	payload["rows"] = rows

	merges := make([]model.MergeRegion, 0)
	for _, m := range sheet.Merges {
		if cellRange == nil || rangeOverlaps(cellRange, m) {
			merges = append(merges, m)
		}
	}
	payload["merges"] = merges

	if includeStyles {
		payload["styles"] = styles.Styles()
		payload["style_count"] = styles.Len()
	}
	return payload
}

func rangeOverlaps(r *model.Range, m model.MergeRegion) bool {
	return m.StartRow <= r.EndRow && m.EndRow >= r.StartRow &&
		m.StartCol <= r.EndCol && m.EndCol >= r.StartCol
}

func cellPayload(cell *model.Cell, styles *model.StyleTable, includeStyles bool) map[string]any {
	out := map[string]any{}
	if !cell.IsEmpty() {
		out["v"] = serialisableValue(cell.Value)
		out["t"] = string(cell.Kind)
	}
	if includeStyles {
		if id := styles.AddCell(cell); id != 0 {
			out["s"] = id
		}
	}
	if cell.RowSpan > 1 {
		out["rs"] = cell.RowSpan
	}
	if cell.ColSpan > 1 {
		out["cs"] = cell.ColSpan
	}
	return out
}

// serialisableValue maps model values to JSON-friendly types. Dates become
// ISO 8601 strings.
func serialisableValue(v any) any {
	if t, ok := v.(time.Time); ok {
		return t.Format("2006-01-02T15:04:05")
	}
	return v
}

// ProvideExtendedInfo provides detailed usage information for parse_sheet
func (t *ParseSheetTool) ProvideExtendedInfo() *tools.ExtendedHelp {
	return &tools.ExtendedHelp{
		Examples: []tools.ToolExample{
			{
				Description: "Quick look at an unfamiliar workbook",
				Arguments: map[string]any{
					"file_path":    "/data/reports/q3.xlsx",
					"preview_only": true,
				},
				ExpectedResult: "First 10 rows of the first sheet plus the full sheet list, row/column counts, and the style table. Use the sheets array to pick a sheet for a follow-up call.",
			},
			{
				Description: "Extract a specific range without styles",
				Arguments: map[string]any{
					"file_path":      "/data/reports/q3.xlsx",
					"sheet_name":     "Revenue",
					"range":          "A1:F200",
					"include_styles": false,
				},
				ExpectedResult: "Typed cell values for A1:F200 only. Omitting styles roughly halves the payload for heavily formatted sheets.",
			},
			{
				Description: "Read a legacy binary workbook",
				Arguments: map[string]any{
					"file_path": "/data/archive/ledger-2009.xls",
				},
				ExpectedResult: "Cell values with inferred types. The response reports styled=false because the legacy reader does not extract formatting.",
			},
		},
		Troubleshooting: []tools.TroubleshootingTip{
			{
				Problem:  "Response is truncated or very large",
				Solution: "Use preview_only=true first, then narrow with range or max_rows. The default max_rows cap is 5000 rows per sheet.",
			},
			{
				Problem:  "Dates come back as plain numbers",
				Solution: "The cell likely has no date number format applied in the source file, so the serial cannot be distinguished from a plain number. Check the cell's number_format in the style table.",
			},
			{
				Problem:  "Sheet not found error",
				Solution: "Sheet names are matched exactly, including spaces and case. Call the tool without sheet_name first and copy the name from the sheets array.",
			},
		},
		ParameterDetails: map[string]string{
			"range":        "A1 notation, inclusive on both ends. A single reference like 'B2' selects one cell. Applies after max_rows capping.",
			"max_rows":     "Per-sheet extraction cap applied while parsing, before range filtering. Raise it for tall sheets; results for different caps are cached separately.",
			"preview_only": "Returns metadata plus the first preview_rows rows. Cheap way to inspect structure before a full extraction.",
		},
		WhenToUse:    "Reading spreadsheet content into a structured, typed form: values, merged regions, and formatting. The style table ids match the CSS classes convert_to_html emits for the same file.",
		WhenNotToUse: "For producing something a human will look at, use convert_to_html. For modifying the file, use apply_changes.",
	}
}
