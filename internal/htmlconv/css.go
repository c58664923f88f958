// Package htmlconv renders a parsed workbook sheet as a standalone HTML
// document. Visual styles are deduplicated into CSS classes so a sheet with
// thousands of cells but a handful of distinct styles emits a handful of
// rules, not per-cell inline style attributes.
package htmlconv

import (
	"fmt"
	"strings"

	"github.com/sheetmcp/mcp-sheets/internal/model"
)

// classSet assigns one CSS class per distinct visual style, in first-seen
// order. Hyperlinks and comments are not visual attributes and are stripped
// before interning so they never split an otherwise shared class.
type classSet struct {
	classes map[model.Style]string
	order   []model.Style
}

func newClassSet() *classSet {
	return &classSet{classes: map[model.Style]string{}}
}

// classFor returns the class name for a cell's style, or "" for unstyled
// cells, which render with the table defaults.
func (cs *classSet) classFor(style *model.Style) string {
	if style == nil {
		return ""
	}
	v := visualOnly(*style)
	if v.IsDefault() {
		return ""
	}
	if name, ok := cs.classes[v]; ok {
		return name
	}
	name := fmt.Sprintf("s%d", len(cs.order))
	cs.classes[v] = name
	cs.order = append(cs.order, v)
	return name
}

// stylesheet emits one rule per interned style, in assignment order.
func (cs *classSet) stylesheet(compact bool) string {
	var b strings.Builder
	for i, style := range cs.order {
		if i > 0 && !compact {
			b.WriteByte('\n')
		}
		b.WriteString(fmt.Sprintf(".s%d{%s}", i, cssDeclarations(style)))
	}
	return b.String()
}

// visualOnly strips the non-visual attributes that ride along on Style.
func visualOnly(s model.Style) model.Style {
	s.Hyperlink = ""
	s.Comment = ""
	return s
}

// cssDeclarations maps the non-default attributes of a style to CSS
// declarations. NumberFormat affects value rendering, not CSS, and is
// deliberately absent here.
func cssDeclarations(s model.Style) string {
	var decls []string
	if s.Bold {
		decls = append(decls, "font-weight:bold")
	}
	if s.Italic {
		decls = append(decls, "font-style:italic")
	}
	if s.Underline {
		decls = append(decls, "text-decoration:underline")
	}
	if s.FontName != "" {
		decls = append(decls, fmt.Sprintf("font-family:%q", s.FontName))
	}
	if s.FontSize > 0 {
		decls = append(decls, fmt.Sprintf("font-size:%gpt", s.FontSize))
	}
	if s.FontColor != "" && s.FontColor != model.DefaultFontColor {
		decls = append(decls, "color:"+s.FontColor)
	}
	if s.Background != "" && (s.FillPattern != "" || s.Background != model.DefaultBackground) {
		decls = append(decls, "background-color:"+s.Background)
	}
	if s.HAlign != "" && s.HAlign != model.DefaultHAlign {
		decls = append(decls, "text-align:"+s.HAlign)
	}
	if s.VAlign != "" && s.VAlign != model.DefaultVAlign {
		decls = append(decls, "vertical-align:"+s.VAlign)
	}
	if s.BorderTop != "" {
		decls = append(decls, "border-top:"+s.BorderTop)
	}
	if s.BorderBottom != "" {
		decls = append(decls, "border-bottom:"+s.BorderBottom)
	}
	if s.BorderLeft != "" {
		decls = append(decls, "border-left:"+s.BorderLeft)
	}
	if s.BorderRight != "" {
		decls = append(decls, "border-right:"+s.BorderRight)
	}
	if s.WrapText {
		decls = append(decls, "white-space:pre-wrap")
	}
	return strings.Join(decls, ";")
}

// baseStylesheet holds the table scaffolding every document shares.
const baseStylesheet = "table{border-collapse:collapse;font-family:sans-serif;font-size:11pt}" +
	"td,th{border:1px solid #D0D0D0;padding:2px 6px;text-align:left;vertical-align:top}" +
	"th{background-color:#F2F2F2;font-weight:bold}"
