package sheets

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sheetmcp/mcp-sheets/internal/htmlconv"
	"github.com/sheetmcp/mcp-sheets/internal/tools"
	"github.com/sirupsen/logrus"
)

// ConvertToHTMLTool renders a sheet as a styled HTML document
type ConvertToHTMLTool struct{}

const defaultPageSize = 500

// Definition returns the tool's definition for MCP registration
func (t *ConvertToHTMLTool) Definition() mcp.Tool {
	return mcp.NewTool(
		"convert_to_html",
		mcp.WithDescription(`Convert a spreadsheet sheet to a standalone HTML document with the source formatting reproduced as CSS. Distinct cell styles are deduplicated into shared classes, merged cells become rowspan/colspan, and hyperlinks and comments are carried over. Use this tool to give a human (or a vision model) a faithful look at a sheet.

Large sheets are paginated; page numbers past the end return an empty table rather than an error.

Use get_tool_help tool with tool_name="convert_to_html" for detailed examples and troubleshooting.`),
		mcp.WithString("file_path",
			mcp.Required(),
			mcp.Description("Path to the spreadsheet file (xlsx, xlsm, xls, xlsb, or csv)"),
		),
		mcp.WithString("sheet_name",
			mcp.Description("Worksheet to convert. Omit to convert the first sheet."),
		),
		mcp.WithString("output_path",
			mcp.Description("Write the document to this path and return only metadata. Omit to return the HTML inline."),
		),
		mcp.WithNumber("page_size",
			mcp.Description("Data rows per page. 0 renders the whole sheet on one page."),
			mcp.DefaultNumber(defaultPageSize),
		),
		mcp.WithNumber("page_number",
			mcp.Description("1-based page to render"),
			mcp.DefaultNumber(1),
		),
		mcp.WithNumber("header_rows",
			mcp.Description("Leading rows rendered as a repeated table header on every page"),
			mcp.DefaultNumber(0),
		),
		mcp.WithBoolean("compact",
			mcp.Description("Emit minified HTML without indentation"),
			mcp.DefaultBool(false),
		),
		// Tool annotations
		mcp.WithReadOnlyHintAnnotation(false), // May write the output file
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)
}

// Execute executes the convert_to_html tool
func (t *ConvertToHTMLTool) Execute(ctx context.Context, logger *logrus.Logger, shared *sync.Map, args map[string]any) (*mcp.CallToolResult, error) {
	filePath := argString(args, "file_path")
	fullPath, err := resolveSheetPath(filePath)
	if err != nil {
		return nil, err
	}

	opts := htmlconv.Options{
		SheetName:  argString(args, "sheet_name"),
		PageSize:   argInt(args, "page_size", defaultPageSize),
		PageNumber: argInt(args, "page_number", 1),
		HeaderRows: argInt(args, "header_rows", 0),
		Compact:    argBool(args, "compact", false),
	}
	if opts.PageSize < 0 {
		return nil, &ValidationError{Field: "page_size", Value: opts.PageSize, Message: "page_size must not be negative"}
	}

	logger.WithFields(logrus.Fields{
		"file_path":  fullPath,
		"sheet_name": opts.SheetName,
		"page":       opts.PageNumber,
	}).Info("Converting sheet to HTML")

	wb, _, err := parseWithCache(ctx, logger, shared, fullPath, 0)
	if err != nil {
		return nil, err
	}
	result, err := htmlconv.Render(wb, opts)
	if err != nil {
		return nil, err
	}

	payload := map[string]any{
		"file_path":   fullPath,
		"sheet_name":  result.SheetName,
		"page":        result.Page,
		"total_pages": result.TotalPages,
		"total_rows":  result.TotalRows,
		"style_count": result.StyleCount,
	}

	if outputPath := argString(args, "output_path"); outputPath != "" {
		resolved, err := resolveSheetPath(outputPath)
		if err != nil {
			return nil, err
		}
		if err := os.WriteFile(resolved, []byte(result.HTML), 0o644); err != nil {
			return nil, fmt.Errorf("writing HTML output: %w", err)
		}
		payload["output_path"] = resolved
		payload["bytes_written"] = len(result.HTML)
	} else {
		payload["html"] = result.HTML
	}
	return newJSONResult(payload)
}

// ProvideExtendedInfo provides detailed usage information for convert_to_html
func (t *ConvertToHTMLTool) ProvideExtendedInfo() *tools.ExtendedHelp {
	return &tools.ExtendedHelp{
		Examples: []tools.ToolExample{
			{
				Description: "Render a sheet for visual inspection",
				Arguments: map[string]any{
					"file_path":   "/data/reports/q3.xlsx",
					"sheet_name":  "Revenue",
					"header_rows": 1,
				},
				ExpectedResult: "HTML document inline in the response, first 500 data rows with the header row repeated in a <thead>.",
			},
			{
				Description: "Export the whole sheet to a file",
				Arguments: map[string]any{
					"file_path":   "/data/reports/q3.xlsx",
					"output_path": "/data/reports/q3-revenue.html",
					"page_size":   0,
				},
				ExpectedResult: "Writes the complete sheet to the output path and returns only metadata (page counts, byte size) to keep the response small.",
			},
			{
				Description: "Page through a tall sheet",
				Arguments: map[string]any{
					"file_path":   "/data/exports/transactions.csv",
					"page_size":   200,
					"page_number": 3,
				},
				ExpectedResult: "Rows 401-600 as an HTML table. total_pages in the response tells you when to stop.",
			},
		},
		Troubleshooting: []tools.TroubleshootingTip{
			{
				Problem:  "Returned table body is empty",
				Solution: "The requested page is past the end of the sheet; compare page_number against total_pages in the response. An empty page is deliberate so pagination loops can probe safely.",
			},
			{
				Problem:  "Colours or borders missing from the output",
				Solution: "Legacy formats (xls, xlsb) are read without styling, so their HTML uses the default table theme. Convert the source to xlsx to preserve formatting.",
			},
		},
		ParameterDetails: map[string]string{
			"header_rows": "Counted from the top of the sheet, excluded from pagination, and repeated on every page. Set to the number of heading rows in the source.",
			"compact":     "Strips indentation and newlines. Use when embedding the HTML in another payload; the document is otherwise identical.",
		},
		WhenToUse:    "Producing a human-viewable rendition of a sheet with its formatting intact: reviews, reports, or input to a vision model.",
		WhenNotToUse: "For machine-readable extraction use parse_sheet; the HTML is for eyes, not parsers.",
	}
}
