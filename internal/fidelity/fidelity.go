// Package fidelity scores how faithfully a rendered or re-saved cell style
// reproduces its source style. Scoring is attribute-weighted: typography
// carries the most weight, then fill colour, then alignment and borders,
// because that ordering matches how visible each attribute's loss is.
package fidelity

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/sheetmcp/mcp-sheets/internal/model"
	"gopkg.in/yaml.v3"
)

// Attribute weights. They sum to 1.0; a perfect reproduction scores 1.0 and
// each lost attribute subtracts its weight.
const (
	weightFontName  = 0.08
	weightFontSize  = 0.08
	weightFontColor = 0.08
	weightBold      = 0.05
	weightItalic    = 0.05
	weightUnderline = 0.06

	weightBackground = 0.25

	weightHAlign = 0.08
	weightVAlign = 0.07

	weightBorderEdge = 0.0375 // x4 edges = 0.15

	weightWrapText     = 0.02
	weightNumberFormat = 0.03
)

// partial credit when both sides have a border on an edge but disagree on
// its width, line style or colour.
const borderMismatchCredit = 0.7

// Tolerances soften exact-equality comparison for continuous attributes.
type Tolerances struct {
	// FontSizeEpsilon is the maximum point-size difference still counted
	// as a match.
	FontSizeEpsilon float64 `yaml:"font_size_tolerance"`
	// ColorThreshold is the minimum RGB similarity (1.0 is identical)
	// still counted as a match.
	ColorThreshold float64 `yaml:"colour_similarity_threshold"`
}

// DefaultTolerances returns the built-in comparison tolerances.
func DefaultTolerances() Tolerances {
	return Tolerances{FontSizeEpsilon: 0.5, ColorThreshold: 0.9}
}

// configEnvVar names an optional YAML file overriding the tolerances.
const configEnvVar = "SHEETS_FIDELITY_CONFIG"

// LoadTolerances returns the defaults, overridden by the YAML file named in
// SHEETS_FIDELITY_CONFIG when set. A missing or malformed file is an error;
// silently ignoring a requested override would make scores incomparable.
func LoadTolerances() (Tolerances, error) {
	t := DefaultTolerances()
	path := os.Getenv(configEnvVar)
	if path == "" {
		return t, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return t, fmt.Errorf("reading fidelity config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &t); err != nil {
		return t, fmt.Errorf("parsing fidelity config %s: %w", path, err)
	}
	if t.FontSizeEpsilon < 0 || t.ColorThreshold < 0 || t.ColorThreshold > 1 {
		return t, fmt.Errorf("fidelity config %s: tolerances out of range", path)
	}
	return t, nil
}

// Mismatch records one attribute that lost fidelity.
type Mismatch struct {
	Attribute string  `json:"attribute"`
	Expected  string  `json:"expected"`
	Actual    string  `json:"actual"`
	Penalty   float64 `json:"penalty"`
}

// Validator compares styles under a fixed set of tolerances.
type Validator struct {
	tol Tolerances
}

// New constructs a validator with the given tolerances.
func New(tol Tolerances) *Validator {
	return &Validator{tol: tol}
}

// Score compares a reproduced style against its reference and returns the
// weighted fidelity in [0,1] plus the attribute-level mismatches.
func (v *Validator) Score(ref, got model.Style) (float64, []Mismatch) {
	score := 1.0
	var mismatches []Mismatch
	penalise := func(attr, expected, actual string, weight, credit float64) {
		penalty := weight * (1 - credit)
		score -= penalty
		mismatches = append(mismatches, Mismatch{
			Attribute: attr, Expected: expected, Actual: actual, Penalty: penalty,
		})
	}

	if !strings.EqualFold(ref.FontName, got.FontName) {
		penalise("font_name", ref.FontName, got.FontName, weightFontName, 0)
	}
	if math.Abs(ref.FontSize-got.FontSize) > v.tol.FontSizeEpsilon {
		penalise("font_size", formatSize(ref.FontSize), formatSize(got.FontSize), weightFontSize, 0)
	}
	if !v.colorsMatch(ref.FontColor, got.FontColor) {
		penalise("font_color", ref.FontColor, got.FontColor, weightFontColor, 0)
	}
	if ref.Bold != got.Bold {
		penalise("bold", formatBool(ref.Bold), formatBool(got.Bold), weightBold, 0)
	}
	if ref.Italic != got.Italic {
		penalise("italic", formatBool(ref.Italic), formatBool(got.Italic), weightItalic, 0)
	}
	if ref.Underline != got.Underline {
		penalise("underline", formatBool(ref.Underline), formatBool(got.Underline), weightUnderline, 0)
	}

	if !v.colorsMatch(ref.Background, got.Background) {
		penalise("background_color", ref.Background, got.Background, weightBackground, 0)
	}

	if ref.HAlign != got.HAlign {
		penalise("text_align", ref.HAlign, got.HAlign, weightHAlign, 0)
	}
	if ref.VAlign != got.VAlign {
		penalise("vertical_align", ref.VAlign, got.VAlign, weightVAlign, 0)
	}

	for _, edge := range []struct {
		name     string
		ref, got string
	}{
		{"border_top", ref.BorderTop, got.BorderTop},
		{"border_bottom", ref.BorderBottom, got.BorderBottom},
		{"border_left", ref.BorderLeft, got.BorderLeft},
		{"border_right", ref.BorderRight, got.BorderRight},
	} {
		switch {
		case edge.ref == edge.got:
		case edge.ref == "" || edge.got == "":
			penalise(edge.name, edge.ref, edge.got, weightBorderEdge, 0)
		default:
			penalise(edge.name, edge.ref, edge.got, weightBorderEdge, borderMismatchCredit)
		}
	}

	if ref.WrapText != got.WrapText {
		penalise("wrap_text", formatBool(ref.WrapText), formatBool(got.WrapText), weightWrapText, 0)
	}
	if ref.NumberFormat != got.NumberFormat {
		penalise("number_format", ref.NumberFormat, got.NumberFormat, weightNumberFormat, 0)
	}

	if score < 0 {
		score = 0
	}
	return score, mismatches
}

// SheetReport aggregates per-cell scores across one sheet comparison.
type SheetReport struct {
	Score         float64    `json:"score"`
	CellsCompared int        `json:"cells_compared"`
	Mismatches    []Mismatch `json:"mismatches,omitempty"`
}

// ScoreSheet compares two sheets cell by cell over their common extent and
// returns the mean cell score. Sheets with no styled comparison surface
// score a clean 1.0.
func (v *Validator) ScoreSheet(ref, got *model.Sheet) *SheetReport {
	report := &SheetReport{Score: 1.0}
	rows := len(ref.Rows)
	if len(got.Rows) < rows {
		rows = len(got.Rows)
	}
	total := 0.0
	for r := 0; r < rows; r++ {
		cols := len(ref.Rows[r].Cells)
		if n := len(got.Rows[r].Cells); n < cols {
			cols = n
		}
		for c := 0; c < cols; c++ {
			score, mismatches := v.Score(
				styleOrDefault(ref.Rows[r].Cells[c].Style),
				styleOrDefault(got.Rows[r].Cells[c].Style),
			)
			total += score
			report.CellsCompared++
			report.Mismatches = append(report.Mismatches, mismatches...)
		}
	}
	if report.CellsCompared > 0 {
		report.Score = total / float64(report.CellsCompared)
	}
	return report
}

func styleOrDefault(s *model.Style) model.Style {
	if s == nil {
		return model.DefaultStyle()
	}
	return *s
}

// colorsMatch compares two hex colours under the similarity threshold.
// Unset sides only match each other.
func (v *Validator) colorsMatch(a, b string) bool {
	if a == b {
		return true
	}
	ra, ga, ba, okA := rgb(a)
	rb, gb, bb, okB := rgb(b)
	if !okA || !okB {
		return false
	}
	return colorSimilarity(ra, ga, ba, rb, gb, bb) >= v.tol.ColorThreshold
}

// maxColorDistance is the euclidean RGB distance between black and white.
var maxColorDistance = math.Sqrt(3 * 255 * 255)

func colorSimilarity(r1, g1, b1, r2, g2, b2 int) float64 {
	dr, dg, db := float64(r1-r2), float64(g1-g2), float64(b1-b2)
	return 1 - math.Sqrt(dr*dr+dg*dg+db*db)/maxColorDistance
}

func rgb(hex string) (r, g, b int, ok bool) {
	normalised := model.NormalizeHexColor(hex)
	if normalised == "" {
		return 0, 0, 0, false
	}
	val, err := strconv.ParseUint(normalised[1:], 16, 32)
	if err != nil {
		return 0, 0, 0, false
	}
	return int(val >> 16 & 0xFF), int(val >> 8 & 0xFF), int(val & 0xFF), true
}

func formatBool(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func formatSize(s float64) string {
	return strconv.FormatFloat(s, 'g', -1, 64)
}
