// Package sheets implements the spreadsheet MCP tools: parse_sheet,
// convert_to_html and apply_changes. All three operate on local files in
// xlsx, xlsm, xls, xlsb or csv format through the shared parser registry.
package sheets

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sheetmcp/mcp-sheets/internal/cache"
	"github.com/sheetmcp/mcp-sheets/internal/registry"
)

// Configuration
var sheetsBasePath string

// init registers the sheet tools and initialises configuration
func init() {
	registry.Register(&ParseSheetTool{})
	registry.Register(&ConvertToHTMLTool{})
	registry.Register(&ApplyChangesTool{})

	// Initialise base path from environment or default
	sheetsBasePath = os.Getenv("SHEETS_FILES_PATH")
	if sheetsBasePath == "" {
		homeDir, _ := os.UserHomeDir()
		sheetsBasePath = filepath.Join(homeDir, ".mcp-sheets", "files")
	}
}

// ValidationError represents a parameter validation failure
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s (%v): %s", e.Field, e.Value, e.Message)
}

// resolveSheetPath resolves file paths based on transport mode
func resolveSheetPath(filePath string) (string, error) {
	if filePath == "" {
		return "", &ValidationError{Field: "file_path", Value: filePath, Message: "file_path parameter is required"}
	}

	// If absolute path, use directly (stdio mode)
	if filepath.IsAbs(filePath) {
		return filePath, nil
	}

	// Relative path: resolve from base directory (HTTP mode)
	// Security: prevent directory traversal
	cleanPath := filepath.Clean(filePath)
	if strings.Contains(cleanPath, "..") {
		return "", &ValidationError{Field: "file_path", Value: filePath, Message: "directory traversal not allowed"}
	}

	return filepath.Join(sheetsBasePath, cleanPath), nil
}

// workbookCacheTTL bounds how long a parsed workbook is reused. The file
// fingerprint already invalidates on modification; the TTL just caps memory
// held for files nobody asks about again.
const workbookCacheTTL = 5 * time.Minute

// workbookCache returns the shared parse cache, creating it on first use.
func workbookCache(shared *sync.Map) *cache.Cache {
	v, _ := shared.LoadOrStore("sheets:workbooks", cache.NewCache(workbookCacheTTL))
	return v.(*cache.Cache)
}

// newJSONResult marshals a response payload into a text tool result.
func newJSONResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

// argString extracts an optional string argument.
func argString(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

// argBool extracts an optional boolean argument with a default.
func argBool(args map[string]any, key string, def bool) bool {
	if v, ok := args[key].(bool); ok {
		return v
	}
	return def
}

// argInt extracts an optional numeric argument with a default. JSON numbers
// arrive as float64.
func argInt(args map[string]any, key string, def int) int {
	if v, ok := args[key].(float64); ok {
		return int(v)
	}
	return def
}
