package sheets

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

// execute runs a tool and decodes its JSON text payload.
func execute(t *testing.T, tool interface {
	Execute(ctx context.Context, logger *logrus.Logger, cache *sync.Map, args map[string]any) (*mcp.CallToolResult, error)
}, shared *sync.Map, args map[string]any) map[string]any {
	t.Helper()
	result, err := tool.Execute(context.Background(), testLogger(), shared, args)
	require.NoError(t, err)
	require.NotEmpty(t, result.Content)

	text, ok := mcp.AsTextContent(result.Content[0])
	require.True(t, ok)

	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(text.Text), &payload))
	return payload
}

func TestToolDefinitions(t *testing.T) {
	tests := []struct {
		tool interface{ Definition() mcp.Tool }
		name string
	}{
		{&ParseSheetTool{}, "parse_sheet"},
		{&ConvertToHTMLTool{}, "convert_to_html"},
		{&ApplyChangesTool{}, "apply_changes"},
	}
	for _, tt := range tests {
		def := tt.tool.Definition()
		assert.Equal(t, tt.name, def.Name)
		assert.NotEmpty(t, def.Description)
		assert.Contains(t, def.InputSchema.Required, "file_path")
	}
}

func TestResolveSheetPath(t *testing.T) {
	// Absolute paths pass through
	resolved, err := resolveSheetPath("/tmp/book.xlsx")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/book.xlsx", resolved)

	// Relative paths land under the base directory
	resolved, err = resolveSheetPath("sub/book.xlsx")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(sheetsBasePath, "sub", "book.xlsx"), resolved)

	// Traversal is rejected
	_, err = resolveSheetPath("../../etc/passwd")
	require.Error(t, err)
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)

	_, err = resolveSheetPath("")
	require.Error(t, err)
}

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestParseSheetCSV(t *testing.T) {
	path := writeCSV(t, "name,qty\nwidget,3\n")
	shared := &sync.Map{}

	payload := execute(t, &ParseSheetTool{}, shared, map[string]any{"file_path": path})

	assert.Equal(t, "csv", payload["format"])
	assert.Equal(t, "data", payload["sheet_name"])
	assert.Equal(t, float64(2), payload["row_count"])
	assert.Equal(t, false, payload["cached"])
	assert.Equal(t, true, payload["writable"])
	assert.Equal(t, false, payload["styled"])

	rows, ok := payload["rows"].([]any)
	require.True(t, ok)
	require.Len(t, rows, 2)

	// A second call on the unchanged file is served from the cache
	payload = execute(t, &ParseSheetTool{}, shared, map[string]any{"file_path": path})
	assert.Equal(t, true, payload["cached"])
}

func TestParseSheetPreview(t *testing.T) {
	path := writeCSV(t, "h\n1\n2\n3\n4\n5\n")
	payload := execute(t, &ParseSheetTool{}, &sync.Map{}, map[string]any{
		"file_path":    path,
		"preview_only": true,
		"preview_rows": float64(2),
	})

	assert.Equal(t, true, payload["preview"])
	assert.Equal(t, float64(6), payload["row_count"])
	rows := payload["rows"].([]any)
	assert.Len(t, rows, 2)
}

func TestParseSheetRange(t *testing.T) {
	path := writeCSV(t, "a,b,c\n1,2,3\n4,5,6\n")
	payload := execute(t, &ParseSheetTool{}, &sync.Map{}, map[string]any{
		"file_path": path,
		"range":     "B2:C3",
	})

	rows := payload["rows"].([]any)
	require.Len(t, rows, 2)
	first := rows[0].([]any)
	require.Len(t, first, 2)
	cell := first[0].(map[string]any)
	assert.Equal(t, "2", cell["v"])
}

func TestParseSheetInvalidRange(t *testing.T) {
	path := writeCSV(t, "a\n1\n")
	_, err := (&ParseSheetTool{}).Execute(context.Background(), testLogger(), &sync.Map{}, map[string]any{
		"file_path": path,
		"range":     "nonsense",
	})
	require.Error(t, err)
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func writeStyledXlsx(t *testing.T) string {
	t.Helper()
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	require.NoError(t, f.SetCellValue("Sheet1", "A1", "head"))
	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	require.NoError(t, err)
	require.NoError(t, f.SetCellStyle("Sheet1", "A1", "A1", style))
	path := filepath.Join(t.TempDir(), "styled.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

func TestParseSheetStyledWorkbook(t *testing.T) {
	path := writeStyledXlsx(t)

	payload := execute(t, &ParseSheetTool{}, &sync.Map{}, map[string]any{"file_path": path})

	styles, ok := payload["styles"].([]any)
	require.True(t, ok)
	// Default style plus the bold header style
	require.Len(t, styles, 2)
	bold := styles[1].(map[string]any)
	assert.Equal(t, true, bold["bold"])

	rows := payload["rows"].([]any)
	cell := rows[0].([]any)[0].(map[string]any)
	assert.Equal(t, float64(1), cell["s"])
}

func TestConvertToHTMLInline(t *testing.T) {
	path := writeCSV(t, "h1,h2\nv1,v2\nv3,v4\n")
	payload := execute(t, &ConvertToHTMLTool{}, &sync.Map{}, map[string]any{
		"file_path":   path,
		"header_rows": float64(1),
	})

	html, ok := payload["html"].(string)
	require.True(t, ok)
	assert.Contains(t, html, "<th>h1</th>")
	assert.Contains(t, html, "<td>v4</td>")
	assert.Equal(t, float64(1), payload["total_pages"])
	assert.Equal(t, float64(2), payload["total_rows"])
}

func TestConvertToHTMLOutputFile(t *testing.T) {
	path := writeCSV(t, "a\n1\n")
	outPath := filepath.Join(t.TempDir(), "out.html")
	payload := execute(t, &ConvertToHTMLTool{}, &sync.Map{}, map[string]any{
		"file_path":   path,
		"output_path": outPath,
	})

	_, hasInline := payload["html"]
	assert.False(t, hasInline)
	assert.Equal(t, outPath, payload["output_path"])

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "<td>1</td>")
}

func TestApplyChangesCSV(t *testing.T) {
	path := writeCSV(t, "sku,price\nA-100,1.00\n")
	payload := execute(t, &ApplyChangesTool{}, &sync.Map{}, map[string]any{
		"file_path": path,
		"data": map[string]any{
			"headers": []any{"sku", "price"},
			"rows":    []any{[]any{"A-100", 9.99}},
		},
	})

	assert.Equal(t, "success", payload["status"])
	assert.Equal(t, path+".backup", payload["backup_path"])

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "9.99")
}

func TestApplyChangesValidation(t *testing.T) {
	path := writeCSV(t, "a\n")
	tool := &ApplyChangesTool{}

	// Missing data object
	_, err := tool.Execute(context.Background(), testLogger(), &sync.Map{}, map[string]any{"file_path": path})
	require.Error(t, err)

	// Ragged rows rejected before the file is touched
	_, err = tool.Execute(context.Background(), testLogger(), &sync.Map{}, map[string]any{
		"file_path": path,
		"data": map[string]any{
			"headers": []any{"a", "b"},
			"rows":    []any{[]any{"only-one"}},
		},
	})
	require.Error(t, err)

	data, readErr := os.ReadFile(path)
	require.NoError(t, readErr)
	assert.Equal(t, "a\n", string(data))
}

func TestApplyChangesReportsStyleFidelity(t *testing.T) {
	path := writeStyledXlsx(t)
	payload := execute(t, &ApplyChangesTool{}, &sync.Map{}, map[string]any{
		"file_path":     path,
		"create_backup": false,
		"data": map[string]any{
			"headers": []any{"head"},
			"rows":    []any{[]any{"v1"}},
		},
	})

	assert.Equal(t, "success", payload["status"])
	// The bold header style survives a value-only rewrite
	assert.Equal(t, float64(1), payload["style_fidelity"])
}

func TestApplyChangesBadFidelityConfigFailsBeforeWrite(t *testing.T) {
	path := writeStyledXlsx(t)
	original, err := os.ReadFile(path)
	require.NoError(t, err)

	t.Setenv("SHEETS_FIDELITY_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))

	_, err = (&ApplyChangesTool{}).Execute(context.Background(), testLogger(), &sync.Map{}, map[string]any{
		"file_path": path,
		"data": map[string]any{
			"headers": []any{"head"},
			"rows":    []any{[]any{"v1"}},
		},
	})
	require.Error(t, err)

	// The config error surfaced before anything was written
	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, original, after)
}

func TestEditedTableFromArgs(t *testing.T) {
	table, err := editedTableFromArgs(map[string]any{
		"sheet_name": "S",
		"headers":    []any{"a", "b"},
		"rows":       []any{[]any{1.0, "x"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "S", table.SheetName)
	assert.Equal(t, []string{"a", "b"}, table.Headers)
	require.Len(t, table.Rows, 1)

	_, err = editedTableFromArgs(map[string]any{"headers": "not-an-array"})
	require.Error(t, err)

	_, err = editedTableFromArgs(map[string]any{"headers": []any{1.0}})
	require.Error(t, err)
}
