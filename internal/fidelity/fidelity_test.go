package fidelity

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sheetmcp/mcp-sheets/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func richStyle() model.Style {
	s := model.DefaultStyle()
	s.Bold = true
	s.FontName = "Arial"
	s.FontSize = 11
	s.FontColor = "#202020"
	s.Background = "#FFFF00"
	s.HAlign = "center"
	s.VAlign = "middle"
	s.BorderTop = "1px solid #000000"
	s.BorderBottom = "1px solid #000000"
	s.BorderLeft = "1px solid #000000"
	s.BorderRight = "1px solid #000000"
	s.WrapText = true
	s.NumberFormat = "#,##0.00"
	return s
}

func TestScorePerfectMatch(t *testing.T) {
	v := New(DefaultTolerances())
	score, mismatches := v.Score(richStyle(), richStyle())
	assert.Equal(t, 1.0, score)
	assert.Empty(t, mismatches)
}

func TestScoreMissingBorders(t *testing.T) {
	v := New(DefaultTolerances())
	got := richStyle()
	got.BorderTop = ""
	got.BorderBottom = ""
	got.BorderLeft = ""
	got.BorderRight = ""

	score, mismatches := v.Score(richStyle(), got)
	assert.InDelta(t, 0.85, score, 1e-9)
	assert.Len(t, mismatches, 4)
}

func TestScoreBorderStyleMismatchGetsPartialCredit(t *testing.T) {
	v := New(DefaultTolerances())
	got := richStyle()
	got.BorderTop = "2px solid #000000"

	score, mismatches := v.Score(richStyle(), got)
	// One edge at 0.7 credit: penalty 0.0375 * 0.3
	assert.InDelta(t, 1.0-0.0375*0.3, score, 1e-9)
	require.Len(t, mismatches, 1)
	assert.Equal(t, "border_top", mismatches[0].Attribute)
}

func TestScoreBackgroundDominates(t *testing.T) {
	v := New(DefaultTolerances())
	got := richStyle()
	got.Background = "#0000FF"

	score, _ := v.Score(richStyle(), got)
	assert.InDelta(t, 0.75, score, 1e-9)
}

func TestScoreFontSizeTolerance(t *testing.T) {
	v := New(DefaultTolerances())

	got := richStyle()
	got.FontSize = 11.5 // within the 0.5pt tolerance
	score, _ := v.Score(richStyle(), got)
	assert.Equal(t, 1.0, score)

	got.FontSize = 12.0
	score, mismatches := v.Score(richStyle(), got)
	assert.InDelta(t, 0.92, score, 1e-9)
	require.Len(t, mismatches, 1)
	assert.Equal(t, "font_size", mismatches[0].Attribute)
}

func TestScoreColorSimilarityTolerance(t *testing.T) {
	v := New(DefaultTolerances())

	// Near-identical font colours pass the 0.9 similarity threshold
	got := richStyle()
	got.FontColor = "#212121"
	score, _ := v.Score(richStyle(), got)
	assert.Equal(t, 1.0, score)

	// Black vs white is maximally dissimilar
	got.FontColor = "#FFFFFF"
	score, mismatches := v.Score(richStyle(), got)
	assert.InDelta(t, 0.92, score, 1e-9)
	require.Len(t, mismatches, 1)
	assert.Equal(t, "font_color", mismatches[0].Attribute)
}

func TestScoreNeverNegative(t *testing.T) {
	v := New(DefaultTolerances())
	ref := richStyle()
	got := model.Style{} // everything differs, including unset defaults
	score, _ := v.Score(ref, got)
	assert.GreaterOrEqual(t, score, 0.0)
	assert.Less(t, score, 0.5)
}

func TestScoreSheet(t *testing.T) {
	v := New(DefaultTolerances())
	bold := richStyle()
	plain := model.DefaultStyle()

	mkSheet := func(styles ...*model.Style) *model.Sheet {
		cells := make([]model.Cell, len(styles))
		for i, s := range styles {
			cells[i] = model.NewCell("x", s)
		}
		return &model.Sheet{Rows: []model.Row{{Cells: cells}}}
	}

	// Identical sheets score 1.0
	report := v.ScoreSheet(mkSheet(&bold, &plain), mkSheet(&bold, &plain))
	assert.Equal(t, 1.0, report.Score)
	assert.Equal(t, 2, report.CellsCompared)
	assert.Empty(t, report.Mismatches)

	// Nil styles compare as the default style
	report = v.ScoreSheet(mkSheet(nil), mkSheet(&plain))
	assert.Equal(t, 1.0, report.Score)

	// A lost bold attribute shows up in the mean
	lost := bold
	lost.Bold = false
	report = v.ScoreSheet(mkSheet(&bold, &plain), mkSheet(&lost, &plain))
	assert.InDelta(t, (0.95+1.0)/2, report.Score, 1e-9)
	assert.Len(t, report.Mismatches, 1)
}

func TestScoreSheetEmpty(t *testing.T) {
	v := New(DefaultTolerances())
	report := v.ScoreSheet(&model.Sheet{}, &model.Sheet{})
	assert.Equal(t, 1.0, report.Score)
	assert.Zero(t, report.CellsCompared)
}

func TestLoadTolerancesDefaults(t *testing.T) {
	t.Setenv("SHEETS_FIDELITY_CONFIG", "")
	tol, err := LoadTolerances()
	require.NoError(t, err)
	assert.Equal(t, DefaultTolerances(), tol)
}

func TestLoadTolerancesFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fidelity.yaml")
	require.NoError(t, os.WriteFile(path, []byte("font_size_tolerance: 1.5\ncolour_similarity_threshold: 0.8\n"), 0o644))
	t.Setenv("SHEETS_FIDELITY_CONFIG", path)

	tol, err := LoadTolerances()
	require.NoError(t, err)
	assert.Equal(t, 1.5, tol.FontSizeEpsilon)
	assert.Equal(t, 0.8, tol.ColorThreshold)
}

func TestLoadTolerancesMissingFile(t *testing.T) {
	t.Setenv("SHEETS_FIDELITY_CONFIG", filepath.Join(t.TempDir(), "absent.yaml"))
	_, err := LoadTolerances()
	require.Error(t, err)
}

func TestLoadTolerancesOutOfRange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fidelity.yaml")
	require.NoError(t, os.WriteFile(path, []byte("colour_similarity_threshold: 1.4\n"), 0o644))
	t.Setenv("SHEETS_FIDELITY_CONFIG", path)

	_, err := LoadTolerances()
	require.Error(t, err)
}
