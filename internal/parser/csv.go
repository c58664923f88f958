package parser

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/saintfish/chardet"
	"github.com/sheetmcp/mcp-sheets/internal/model"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// csvParser reads delimited text. CSV is a flat text grid: there is no
// style payload, no sheets beyond the implicit one, and no native type
// tags, so every populated cell is text. The text encoding is detected
// from the byte content, with UTF-8 as the inconclusive-detection default.
type csvParser struct{}

func (p *csvParser) Capabilities() Capabilities {
	return Capabilities{Write: true, Styles: false}
}

func (p *csvParser) Parse(ctx context.Context, path string, opts Options) (*model.Workbook, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &CorruptFileError{Path: path, Cause: err}
	}

	reader := csv.NewReader(transform.NewReader(bytes.NewReader(data), decoderFor(data)))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	sheet := &model.Sheet{Name: name}
	logger := opts.logger()

	for r := 0; ; r++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if opts.rowCapped(r) {
			break
		}
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			perr := &ParseError{Sheet: name, Row: r, Cause: err}
			logger.WithError(perr).Warn("Recovered malformed CSV record with an empty row")
			sheet.Rows = append(sheet.Rows, model.Row{})
			continue
		}
		cells := make([]model.Cell, len(record))
		for c, field := range record {
			if field == "" {
				cells[c] = model.NewCell(nil, nil)
			} else {
				cells[c] = model.NewCell(field, nil)
			}
		}
		sheet.Rows = append(sheet.Rows, model.Row{Cells: cells})
	}

	return &model.Workbook{
		Format: Extension(path),
		Sheets: []*model.Sheet{sheet},
	}, nil
}

// minimum detector confidence before trusting a non-UTF-8 result.
const charsetConfidenceFloor = 30

// decoderFor picks a decoding transformer for the raw bytes. BOMs always
// win; otherwise the detected charset is used when it is confidently
// non-UTF-8 and resolvable, falling back to UTF-8.
func decoderFor(data []byte) transform.Transformer {
	utf8Decoder := unicode.UTF8.NewDecoder()

	result, err := chardet.NewTextDetector().DetectBest(data)
	if err != nil || result == nil || result.Confidence < charsetConfidenceFloor {
		return unicode.BOMOverride(utf8Decoder)
	}
	if enc := lookupEncoding(result.Charset); enc != nil {
		return unicode.BOMOverride(enc.NewDecoder())
	}
	return unicode.BOMOverride(utf8Decoder)
}

// lookupEncoding resolves a chardet charset name to an encoding. Returns
// nil for UTF-8 (no transformation needed) and for unknown names.
func lookupEncoding(charset string) encoding.Encoding {
	switch strings.ToUpper(charset) {
	case "UTF-8", "US-ASCII", "":
		return nil
	case "UTF-16LE":
		return unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)
	case "UTF-16BE":
		return unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM)
	}
	name := strings.ToLower(charset)
	if enc, err := htmlindex.Get(name); err == nil {
		return enc
	}
	// chardet reports some charsets with dashes htmlindex omits (GB-18030).
	if enc, err := htmlindex.Get(strings.ReplaceAll(name, "-", "")); err == nil {
		return enc
	}
	return nil
}
