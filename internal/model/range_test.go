package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRange(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Range
	}{
		{
			name:  "simple range",
			input: "A1:D10",
			want:  Range{StartRow: 0, StartCol: 0, EndRow: 9, EndCol: 3},
		},
		{
			name:  "single cell",
			input: "B2",
			want:  Range{StartRow: 1, StartCol: 1, EndRow: 1, EndCol: 1},
		},
		{
			name:  "multi letter columns",
			input: "AA1:AB5",
			want:  Range{StartRow: 0, StartCol: 26, EndRow: 4, EndCol: 27},
		},
		{
			name:  "lowercase accepted",
			input: "a1:c3",
			want:  Range{StartRow: 0, StartCol: 0, EndRow: 2, EndCol: 2},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRange(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseRangeErrors(t *testing.T) {
	invalid := []string{"", "1A", "A", "A1:B", "A0", "A1:A0", "B2:A1", "A1:B2:C3", "!!"}
	for _, input := range invalid {
		t.Run(input, func(t *testing.T) {
			_, err := ParseRange(input)
			require.Error(t, err)
			var syntaxErr *RangeSyntaxError
			assert.ErrorAs(t, err, &syntaxErr)
		})
	}
}

func TestRangeDimensions(t *testing.T) {
	r, err := ParseRange("B2:D5")
	require.NoError(t, err)
	assert.Equal(t, 4, r.NumRows())
	assert.Equal(t, 3, r.NumCols())
}

func TestColumnLetters(t *testing.T) {
	assert.Equal(t, "A", ColumnLetters(0))
	assert.Equal(t, "Z", ColumnLetters(25))
	assert.Equal(t, "AA", ColumnLetters(26))
	assert.Equal(t, "AZ", ColumnLetters(51))
	assert.Equal(t, "BA", ColumnLetters(52))

	// Round trip over a spread of columns
	for _, col := range []int{0, 1, 25, 26, 27, 51, 52, 701, 702, 16383} {
		idx, err := ColumnIndex(ColumnLetters(col))
		require.NoError(t, err)
		assert.Equal(t, col, idx)
	}
}
