package parser

import "github.com/sheetmcp/mcp-sheets/internal/model"

// indexedColors is the standard legacy palette (indexed colour 0-65). A
// workbook may override entries with a custom palette; excelize resolves
// those overrides before values reach us, so this table only backs the
// defaults.
var indexedColors = []string{
	"#000000", "#FFFFFF", "#FF0000", "#00FF00", "#0000FF", "#FFFF00", "#FF00FF", "#00FFFF",
	"#000000", "#FFFFFF", "#FF0000", "#00FF00", "#0000FF", "#FFFF00", "#FF00FF", "#00FFFF",
	"#800000", "#008000", "#000080", "#808000", "#800080", "#008080", "#C0C0C0", "#808080",
	"#9999FF", "#993366", "#FFFFCC", "#CCFFFF", "#660066", "#FF8080", "#0066CC", "#CCCCFF",
	"#000080", "#FF00FF", "#FFFF00", "#00FFFF", "#800080", "#800000", "#008080", "#0000FF",
	"#00CCFF", "#CCFFFF", "#CCFFCC", "#FFFF99", "#99CCFF", "#FF99CC", "#CC99FF", "#FFCC99",
	"#3366FF", "#33CCCC", "#99CC00", "#FFCC00", "#FF9900", "#FF6600", "#666699", "#969696",
	"#003366", "#339966", "#003300", "#333300", "#993300", "#993366", "#333399", "#333333",
	"#000000", "#FFFFFF",
}

// themeColors maps the default Office theme slots (dk1, lt1, dk2, lt2,
// accent1-6, hlink, folHlink) to concrete hex values. Used when a colour is
// expressed as a theme reference and the workbook's own theme part is not
// available to the reading library.
var themeColors = []string{
	"#000000", "#FFFFFF", "#44546A", "#E7E6E6", "#4472C4",
	"#ED7D31", "#A5A5A5", "#FFC000", "#5B9BD5", "#70AD47",
	"#0563C1", "#954F72",
}

// indexedColor resolves a legacy palette index to canonical hex.
func indexedColor(index int) string {
	if index >= 0 && index < len(indexedColors) {
		return indexedColors[index]
	}
	return model.DefaultFontColor
}

// themeColor resolves a theme slot index to canonical hex.
func themeColor(index int) string {
	if index >= 0 && index < len(themeColors) {
		return themeColors[index]
	}
	return model.DefaultFontColor
}

// patternFills maps non-solid OOXML pattern names to an approximated flat
// background colour, following the original grey-pattern approximation.
var patternFills = map[string]string{
	"lightGray":  "#F2F2F2",
	"gray125":    "#EFEFEF",
	"gray0625":   "#F7F7F7",
	"mediumGray": "#D9D9D9",
	"darkGray":   "#BFBFBF",
}
