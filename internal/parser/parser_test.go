package parser

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForPathUnsupportedExtension(t *testing.T) {
	for _, path := range []string{"file.ods", "file.txt", "file", "file.xlsx.zip"} {
		_, err := ForPath(path)
		require.Error(t, err, "path %q", path)
		var unsupported *UnsupportedFormatError
		assert.ErrorAs(t, err, &unsupported)
	}
}

func TestForPathSupportedFormats(t *testing.T) {
	assert.Equal(t, []string{"csv", "xls", "xlsb", "xlsm", "xlsx"}, SupportedFormats())

	for _, ext := range SupportedFormats() {
		p, err := ForPath("book." + ext)
		require.NoError(t, err)
		assert.NotNil(t, p)
	}
}

func TestIsSupported(t *testing.T) {
	assert.True(t, IsSupported("/tmp/report.XLSX"))
	assert.True(t, IsSupported("data.csv"))
	assert.False(t, IsSupported("data.json"))
}

func TestExtension(t *testing.T) {
	assert.Equal(t, "xlsx", Extension("/a/b/Report.XLSX"))
	assert.Equal(t, "csv", Extension("plain.csv"))
	assert.Equal(t, "", Extension("noext"))
}

func TestCapabilitiesPerFormat(t *testing.T) {
	tests := []struct {
		ext    string
		write  bool
		styles bool
	}{
		{"xlsx", true, true},
		{"xlsm", true, true},
		{"csv", true, false},
		{"xls", false, false},
		{"xlsb", false, false},
	}
	for _, tt := range tests {
		p, err := ForPath("f." + tt.ext)
		require.NoError(t, err)
		caps := p.Capabilities()
		assert.Equal(t, tt.write, caps.Write, "%s write", tt.ext)
		assert.Equal(t, tt.styles, caps.Styles, "%s styles", tt.ext)
	}
}

func TestParseCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.xlsx")
	require.NoError(t, os.WriteFile(path, []byte("not a zip archive"), 0o644))

	_, err := Parse(context.Background(), path, Options{})
	require.Error(t, err)
	var corrupt *CorruptFileError
	assert.ErrorAs(t, err, &corrupt)
}

func TestParseMissingFile(t *testing.T) {
	_, err := Parse(context.Background(), filepath.Join(t.TempDir(), "absent.csv"), Options{})
	require.Error(t, err)
}
