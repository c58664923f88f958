// Package imports pulls in every tool package for the side effect of its
// init-time registration with internal/registry.
package imports

import (
	// Spreadsheet tools: parse_sheet, convert_to_html, apply_changes
	_ "github.com/sheetmcp/mcp-sheets/internal/tools/sheets"
)
