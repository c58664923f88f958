package parser

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/sheetmcp/mcp-sheets/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Record ids in the decoded two-byte form used throughout BIFF12.
const (
	recRow            = 0x0000
	recCellFloat      = 0x0005
	recCellSharedStr  = 0x0007
	recSharedStrItem  = 0x0013
	recBeginSheet     = 0x0181
	recEndSheet       = 0x0182
	recBeginBook      = 0x0183
	recEndBook        = 0x0184
	recBeginBundleShs = 0x018F
	recEndBundleShs   = 0x0190
	recBeginSheetData = 0x0191
	recEndSheetData   = 0x0192
	recDimension      = 0x0194
	recBundleSh       = 0x019C
	recBeginSST       = 0x019F
	recEndSST         = 0x01A0
	recHyperlink      = 0x03EE
)

func writeBiffRecord(buf *bytes.Buffer, id int, payload []byte) {
	if id < 0x80 {
		buf.WriteByte(byte(id))
	} else {
		buf.WriteByte(byte(id & 0xFF))
		buf.WriteByte(byte(id >> 8))
	}
	n := len(payload)
	for {
		b := n & 0x7F
		n >>= 7
		if n > 0 {
			buf.WriteByte(byte(b) | 0x80)
		} else {
			buf.WriteByte(byte(b))
			break
		}
	}
	buf.Write(payload)
}

// encodeWideString emits a 4-byte rune count followed by UTF-16LE code
// units.
func encodeWideString(s string) []byte {
	runes := []rune(s)
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(runes)))
	for _, r := range runes {
		_ = binary.Write(&buf, binary.LittleEndian, uint16(r))
	}
	return buf.Bytes()
}

func le32(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

// buildXlsbFixture assembles a one-sheet workbook with [42.0, "docs"] in
// the first row. The second cell carries a hyperlink record referencing
// rId1; withSheetRels controls whether the worksheet .rels part that
// resolves it is present.
func buildXlsbFixture(t *testing.T, withSheetRels bool) string {
	t.Helper()

	var wb bytes.Buffer
	writeBiffRecord(&wb, recBeginBook, nil)
	writeBiffRecord(&wb, recBeginBundleShs, nil)
	var sheetRec bytes.Buffer
	sheetRec.Write(le32(0)) // state flags
	sheetRec.Write(le32(1)) // sheet id
	sheetRec.Write(encodeWideString("rId1"))
	sheetRec.Write(encodeWideString("Links"))
	writeBiffRecord(&wb, recBundleSh, sheetRec.Bytes())
	writeBiffRecord(&wb, recEndBundleShs, nil)
	writeBiffRecord(&wb, recEndBook, nil)

	var sst bytes.Buffer
	header := make([]byte, 8)
	binary.LittleEndian.PutUint32(header[0:], 1)
	binary.LittleEndian.PutUint32(header[4:], 1)
	writeBiffRecord(&sst, recBeginSST, header)
	writeBiffRecord(&sst, recSharedStrItem, append([]byte{0x00}, encodeWideString("docs")...))
	writeBiffRecord(&sst, recEndSST, nil)

	var ws bytes.Buffer
	writeBiffRecord(&ws, recBeginSheet, nil)
	var dim bytes.Buffer
	dim.Write(le32(0)) // first row
	dim.Write(le32(0)) // last row
	dim.Write(le32(0)) // first col
	dim.Write(le32(1)) // last col
	writeBiffRecord(&ws, recDimension, dim.Bytes())
	writeBiffRecord(&ws, recBeginSheetData, nil)
	writeBiffRecord(&ws, recRow, le32(0))

	var numCell bytes.Buffer
	numCell.Write(le32(0)) // col
	numCell.Write(le32(0)) // style
	var f64 [8]byte
	binary.LittleEndian.PutUint64(f64[:], 0x4045000000000000) // 42.0
	numCell.Write(f64[:])
	writeBiffRecord(&ws, recCellFloat, numCell.Bytes())

	var strCell bytes.Buffer
	strCell.Write(le32(1)) // col
	strCell.Write(le32(0)) // style
	strCell.Write(le32(0)) // shared string index
	writeBiffRecord(&ws, recCellSharedStr, strCell.Bytes())

	writeBiffRecord(&ws, recEndSheetData, nil)

	var hl bytes.Buffer
	hl.Write(le32(0)) // first row
	hl.Write(le32(0)) // last row
	hl.Write(le32(1)) // first col
	hl.Write(le32(1)) // last col
	hl.Write(encodeWideString("rId1"))
	writeBiffRecord(&ws, recHyperlink, hl.Bytes())
	writeBiffRecord(&ws, recEndSheet, nil)

	var zipBuf bytes.Buffer
	zw := zip.NewWriter(&zipBuf)
	addPart := func(name string, data []byte) {
		t.Helper()
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write(data)
		require.NoError(t, err)
	}

	wbRels := `<?xml version="1.0" encoding="UTF-8"?>` +
		`<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">` +
		`<Relationship Id="rId1" Type="worksheet" Target="worksheets/sheet1.bin"/>` +
		`</Relationships>`
	addPart("xl/_rels/workbook.bin.rels", []byte(wbRels))
	addPart("xl/workbook.bin", wb.Bytes())
	addPart("xl/sharedStrings.bin", sst.Bytes())
	addPart("xl/worksheets/sheet1.bin", ws.Bytes())
	if withSheetRels {
		sheetRelsXML := `<?xml version="1.0" encoding="UTF-8"?>` +
			`<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">` +
			`<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/hyperlink" Target="https://example.com/docs" TargetMode="External"/>` +
			`</Relationships>`
		addPart("xl/worksheets/_rels/sheet1.bin.rels", []byte(sheetRelsXML))
	}
	require.NoError(t, zw.Close())

	path := filepath.Join(t.TempDir(), "links.xlsb")
	require.NoError(t, os.WriteFile(path, zipBuf.Bytes(), 0o644))
	return path
}

func TestXlsbParseValues(t *testing.T) {
	path := buildXlsbFixture(t, true)

	wb, err := Parse(context.Background(), path, Options{})
	require.NoError(t, err)
	require.Len(t, wb.Sheets, 1)

	sheet := wb.Sheets[0]
	assert.Equal(t, "Links", sheet.Name)
	num := sheet.Cell(0, 0)
	require.NotNil(t, num)
	assert.Equal(t, 42.0, num.Value)
	assert.Equal(t, model.KindNumber, num.Kind)
	assert.Nil(t, num.Style)
}

func TestXlsbHyperlinkResolvedFromRels(t *testing.T) {
	path := buildXlsbFixture(t, true)

	wb, err := Parse(context.Background(), path, Options{})
	require.NoError(t, err)

	cell := wb.Sheets[0].Cell(0, 1)
	require.NotNil(t, cell)
	assert.Equal(t, "docs", cell.Value)
	require.NotNil(t, cell.Style)
	assert.Equal(t, "https://example.com/docs", cell.Style.Hyperlink)
}

func TestXlsbHyperlinkWithoutRelsPart(t *testing.T) {
	path := buildXlsbFixture(t, false)

	wb, err := Parse(context.Background(), path, Options{})
	require.NoError(t, err)

	cell := wb.Sheets[0].Cell(0, 1)
	require.NotNil(t, cell)
	assert.Equal(t, "docs", cell.Value)
	assert.Nil(t, cell.Style)
}

func TestSheetRelIDs(t *testing.T) {
	var wb bytes.Buffer
	writeBiffRecord(&wb, recBeginBook, nil)
	for _, rid := range []string{"rId3", "rId1"} {
		var rec bytes.Buffer
		rec.Write(le32(0))
		rec.Write(le32(1))
		rec.Write(encodeWideString(rid))
		rec.Write(encodeWideString("S"))
		writeBiffRecord(&wb, recBundleSh, rec.Bytes())
	}
	writeBiffRecord(&wb, recEndBook, nil)

	ids, err := sheetRelIDs(wb.Bytes())
	require.NoError(t, err)
	assert.Equal(t, []string{"rId3", "rId1"}, ids)
}
