package model

import (
	"fmt"
	"strings"
)

// Default visual attributes. Parsers that cannot extract an attribute leave
// it at these values, so downstream consumers never see a format-specific
// encoding.
const (
	DefaultFontColor  = "#000000"
	DefaultBackground = "#FFFFFF"
	DefaultHAlign     = "left"
	DefaultVAlign     = "top"
)

// Style is an immutable value object describing a cell's visual attributes.
// All colour fields are canonical 6-digit hex ("#RRGGBB"); the parser, not
// downstream consumers, resolves palette indices and theme references.
// Styles are compared by attribute-set equality (the struct is comparable),
// which is what the deduplication table and the HTML class map rely on.
type Style struct {
	Bold      bool    `json:"bold,omitempty"`
	Italic    bool    `json:"italic,omitempty"`
	Underline bool    `json:"underline,omitempty"`
	FontName  string  `json:"font_name,omitempty"`
	FontSize  float64 `json:"font_size,omitempty"`
	FontColor string  `json:"font_color,omitempty"`

	// Background is the resolved fill colour. FillPattern is the OOXML
	// pattern code when the fill is not solid ("" for solid/none).
	Background  string `json:"background_color,omitempty"`
	FillPattern string `json:"fill_pattern,omitempty"`

	HAlign string `json:"text_align,omitempty"`
	VAlign string `json:"vertical_align,omitempty"`

	// Borders are CSS-shaped edge descriptors, e.g. "1px solid #000000",
	// or "" when the edge has no border.
	BorderTop    string `json:"border_top,omitempty"`
	BorderBottom string `json:"border_bottom,omitempty"`
	BorderLeft   string `json:"border_left,omitempty"`
	BorderRight  string `json:"border_right,omitempty"`

	WrapText     bool   `json:"wrap_text,omitempty"`
	NumberFormat string `json:"number_format,omitempty"`

	Hyperlink string `json:"hyperlink,omitempty"`
	Comment   string `json:"comment,omitempty"`
}

// DefaultStyle returns the canonical attribute set of an unstyled cell.
func DefaultStyle() Style {
	return Style{
		FontColor:  DefaultFontColor,
		Background: DefaultBackground,
		HAlign:     DefaultHAlign,
		VAlign:     DefaultVAlign,
	}
}

// IsDefault reports whether the style equals the unstyled defaults.
func (s Style) IsDefault() bool {
	return s == DefaultStyle()
}

// Key returns the canonical attribute tuple as a single string, stable
// across processes. Used for CSS class assignment and cache keys.
func (s Style) Key() string {
	return fmt.Sprintf("%t|%t|%t|%s|%g|%s|%s|%s|%s|%s|%s|%s|%s|%s|%t|%s|%s|%s",
		s.Bold, s.Italic, s.Underline, s.FontName, s.FontSize, s.FontColor,
		s.Background, s.FillPattern, s.HAlign, s.VAlign,
		s.BorderTop, s.BorderBottom, s.BorderLeft, s.BorderRight,
		s.WrapText, s.NumberFormat, s.Hyperlink, s.Comment)
}

// NormalizeHexColor canonicalises a colour string to "#RRGGBB". It accepts
// bare RGB ("FF0000"), ARGB ("FFFF0000") and already-prefixed forms; the
// alpha channel is discarded. An unusable input returns "".
func NormalizeHexColor(raw string) string {
	v := strings.TrimPrefix(strings.TrimSpace(raw), "#")
	if len(v) < 6 {
		return ""
	}
	v = v[len(v)-6:]
	for _, r := range v {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f', r >= 'A' && r <= 'F':
		default:
			return ""
		}
	}
	return "#" + strings.ToUpper(v)
}
