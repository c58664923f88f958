package sheets

import (
	"context"
	"fmt"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sheetmcp/mcp-sheets/internal/fidelity"
	"github.com/sheetmcp/mcp-sheets/internal/model"
	"github.com/sheetmcp/mcp-sheets/internal/parser"
	"github.com/sheetmcp/mcp-sheets/internal/tools"
	"github.com/sheetmcp/mcp-sheets/internal/writeback"
	"github.com/sirupsen/logrus"
)

// ApplyChangesTool writes edited table data back into the source file
type ApplyChangesTool struct{}

// Definition returns the tool's definition for MCP registration
func (t *ApplyChangesTool) Definition() mcp.Tool {
	return mcp.NewTool(
		"apply_changes",
		mcp.WithDescription(`Write an edited table back into the original spreadsheet file. Targets one sheet; cell styles, other sheets, and workbook-level parts are preserved for xlsx/xlsm. CSV files are rewritten in full. The write is atomic (temp file plus rename) and a backup copy is taken by default.

Legacy formats (xls, xlsb) are read-only and rejected with an explanation.

Use get_tool_help tool with tool_name="apply_changes" for detailed examples and troubleshooting.`),
		mcp.WithString("file_path",
			mcp.Required(),
			mcp.Description("Path to the spreadsheet file to modify (xlsx, xlsm, or csv)"),
		),
		mcp.WithObject("data",
			mcp.Required(),
			mcp.Description("Replacement content for the target sheet"),
			mcp.Properties(map[string]any{
				"sheet_name": map[string]any{
					"type":        "string",
					"description": "Worksheet to replace. Omit to target the first sheet. Ignored for CSV.",
				},
				"headers": map[string]any{
					"type":        "array",
					"description": "Column headings written to the first row. Example: ['Product','Region','Revenue']",
					"items": map[string]any{
						"type": "string",
					},
				},
				"rows": map[string]any{
					"type":        "array",
					"description": "2D array of data rows. Every row must match the header width. Example: [['Widget','North',15000],['Gadget','South',22000]]",
				},
			}),
		),
		mcp.WithBoolean("create_backup",
			mcp.Description("Copy the file to <name>.backup before writing"),
			mcp.DefaultBool(true),
		),
		// Tool annotations
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(true), // Replaces sheet content
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)
}

// Execute executes the apply_changes tool
func (t *ApplyChangesTool) Execute(ctx context.Context, logger *logrus.Logger, shared *sync.Map, args map[string]any) (*mcp.CallToolResult, error) {
	filePath := argString(args, "file_path")
	fullPath, err := resolveSheetPath(filePath)
	if err != nil {
		return nil, err
	}

	dataArg, ok := args["data"].(map[string]any)
	if !ok {
		return nil, &ValidationError{Field: "data", Value: args["data"], Message: "data parameter is required and must be an object"}
	}
	table, err := editedTableFromArgs(dataArg)
	if err != nil {
		return nil, err
	}
	createBackup := argBool(args, "create_backup", true)

	logger.WithFields(logrus.Fields{
		"file_path":  fullPath,
		"sheet_name": table.SheetName,
		"rows":       len(table.Rows),
	}).Info("Applying sheet changes")

	before := snapshotStyles(ctx, logger, fullPath, table.SheetName)

	// A broken fidelity config must surface before the file is touched;
	// failing afterwards would misreport a completed write.
	var validator *fidelity.Validator
	if before != nil {
		tol, err := fidelity.LoadTolerances()
		if err != nil {
			return nil, err
		}
		validator = fidelity.New(tol)
	}

	engine := writeback.New(logger)
	result, err := engine.Apply(ctx, fullPath, table, createBackup)
	if err != nil {
		return nil, err
	}

	payload := map[string]any{
		"file_path":       fullPath,
		"status":          result.Status,
		"sheet_name":      result.SheetName,
		"changes_applied": result.ChangesApplied,
		"backup_path":     result.BackupPath,
	}

	// Style preservation check: the write must not have disturbed the
	// formatting of the cells it rewrote.
	if validator != nil {
		if after := snapshotStyles(ctx, logger, fullPath, table.SheetName); after != nil {
			report := validator.ScoreSheet(before, after)
			payload["style_fidelity"] = report.Score
			if len(report.Mismatches) > 0 {
				logger.WithFields(logrus.Fields{
					"file_path":  fullPath,
					"score":      report.Score,
					"mismatches": len(report.Mismatches),
				}).Warn("Write-back altered cell styling")
			}
		}
	}

	return newJSONResult(payload)
}

// snapshotStyles parses the target sheet for fidelity comparison. Returns
// nil when the format carries no styling or the parse fails; the write
// itself is never blocked on the comparison.
func snapshotStyles(ctx context.Context, logger *logrus.Logger, path, sheetName string) *model.Sheet {
	p, err := parser.ForPath(path)
	if err != nil || !p.Capabilities().Styles {
		return nil
	}
	wb, err := p.Parse(ctx, path, parser.Options{SheetName: sheetName, Logger: logger})
	if err != nil {
		logger.WithError(err).Debug("Skipping style fidelity snapshot")
		return nil
	}
	sheet, err := wb.Sheet(sheetName)
	if err != nil {
		return nil
	}
	return sheet
}

// editedTableFromArgs converts the raw JSON argument object into a typed
// edit table, validating the shapes the schema cannot enforce.
func editedTableFromArgs(data map[string]any) (*writeback.EditedTable, error) {
	table := &writeback.EditedTable{}
	table.SheetName, _ = data["sheet_name"].(string)

	rawHeaders, ok := data["headers"].([]any)
	if !ok {
		return nil, &ValidationError{Field: "data.headers", Value: data["headers"], Message: "headers must be an array of strings"}
	}
	table.Headers = make([]string, len(rawHeaders))
	for i, h := range rawHeaders {
		s, ok := h.(string)
		if !ok {
			return nil, &ValidationError{Field: "data.headers", Value: h, Message: fmt.Sprintf("header %d is not a string", i)}
		}
		table.Headers[i] = s
	}

	rawRows, ok := data["rows"].([]any)
	if !ok {
		return nil, &ValidationError{Field: "data.rows", Value: data["rows"], Message: "rows must be a 2D array"}
	}
	table.Rows = make([][]any, len(rawRows))
	for i, r := range rawRows {
		row, ok := r.([]any)
		if !ok {
			return nil, &ValidationError{Field: "data.rows", Value: r, Message: fmt.Sprintf("row %d is not an array", i)}
		}
		table.Rows[i] = row
	}
	return table, nil
}

// ProvideExtendedInfo provides detailed usage information for apply_changes
func (t *ApplyChangesTool) ProvideExtendedInfo() *tools.ExtendedHelp {
	return &tools.ExtendedHelp{
		Examples: []tools.ToolExample{
			{
				Description: "Replace a sheet's data, keeping formatting",
				Arguments: map[string]any{
					"file_path": "/data/reports/q3.xlsx",
					"data": map[string]any{
						"sheet_name": "Revenue",
						"headers":    []any{"Product", "Region", "Revenue"},
						"rows": [][]any{
							{"Widget", "North", 15000},
							{"Gadget", "South", 22000},
						},
					},
				},
				ExpectedResult: "Rewrites the Revenue sheet's cells in place. Cell styles and the workbook's other sheets are untouched; a q3.xlsx.backup copy is created first.",
			},
			{
				Description: "Update a CSV export without a backup",
				Arguments: map[string]any{
					"file_path":     "/data/exports/prices.csv",
					"create_backup": false,
					"data": map[string]any{
						"headers": []any{"sku", "price"},
						"rows":    [][]any{{"A-100", 9.99}, {"A-101", 14.50}},
					},
				},
				ExpectedResult: "Atomically rewrites the CSV. changes_applied counts the cells that differ from the previous content.",
			},
		},
		Troubleshooting: []tools.TroubleshootingTip{
			{
				Problem:  "Error: format is read-only",
				Solution: "xls and xlsb have no write support. Open the file in a spreadsheet application and save it as xlsx, then apply the changes to that file.",
			},
			{
				Problem:  "Error: row N has X values, expected Y",
				Solution: "Every row must be exactly as wide as the headers array. Pad short rows with empty strings or nulls before calling.",
			},
			{
				Problem:  "changes_applied is lower than expected",
				Solution: "Cells whose new value matches the existing content are not rewritten and not counted. Only genuine differences count as changes.",
			},
		},
		ParameterDetails: map[string]string{
			"data.rows":     "Values may be strings, numbers, booleans, or null. Numbers are written as numeric cells, not text.",
			"create_backup": "The backup is a byte-identical copy named <file>.backup. An existing backup is never overwritten; collisions get a timestamped name.",
		},
		WhenToUse:    "Persisting edits an agent made to data obtained via parse_sheet: corrections, appended rows, recalculated columns.",
		WhenNotToUse: "For structural edits (new sheets, formulas, charts, formatting changes) this tool is too blunt; it replaces one sheet's values only.",
	}
}
