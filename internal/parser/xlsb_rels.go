package parser

import (
	"archive/zip"
	"encoding/binary"
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"strings"
	"unicode/utf16"
)

// The xlsb library surfaces hyperlink cells as raw relationship ids
// ("rId1", ...); the targets live in each worksheet's .rels part inside
// the zip container, which the library does not expose. The container is
// read a second time here to resolve them.

// sheetRels maps a worksheet's relationship ids to their targets.
type sheetRels map[string]string

func (r sheetRels) resolve(rid string) string {
	return r[rid]
}

// brtBundleSh declares one sheet in the workbook part, in tab order.
const brtBundleSh = 0x019C

// loadXlsbHyperlinkRels returns each sheet's relationship map, aligned
// with the workbook's sheet order. Sheets without a .rels part get a nil
// entry.
func loadXlsbHyperlinkRels(file string) ([]sheetRels, error) {
	zr, err := zip.OpenReader(file)
	if err != nil {
		return nil, err
	}
	defer func() { _ = zr.Close() }()

	wbRelsData, err := readZipPart(&zr.Reader, "xl/_rels/workbook.bin.rels")
	if err != nil {
		return nil, err
	}
	wbRels, err := parseRelationships(wbRelsData)
	if err != nil {
		return nil, err
	}
	wbData, err := readZipPart(&zr.Reader, "xl/workbook.bin")
	if err != nil {
		return nil, err
	}
	relIDs, err := sheetRelIDs(wbData)
	if err != nil {
		return nil, err
	}

	out := make([]sheetRels, len(relIDs))
	for i, rid := range relIDs {
		target := wbRels[rid]
		if target == "" {
			continue
		}
		part := path.Join("xl", strings.TrimPrefix(target, "/"))
		relsName := path.Join(path.Dir(part), "_rels", path.Base(part)+".rels")
		data, err := readZipPart(&zr.Reader, relsName)
		if err != nil {
			continue
		}
		if rels, err := parseRelationships(data); err == nil {
			out[i] = rels
		}
	}
	return out, nil
}

func readZipPart(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name == name {
			rc, err := f.Open()
			if err != nil {
				return nil, err
			}
			defer func() { _ = rc.Close() }()
			return io.ReadAll(rc)
		}
	}
	return nil, fmt.Errorf("part %s not found", name)
}

func parseRelationships(data []byte) (sheetRels, error) {
	var doc struct {
		Rels []struct {
			ID     string `xml:"Id,attr"`
			Target string `xml:"Target,attr"`
		} `xml:"Relationship"`
	}
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	out := make(sheetRels, len(doc.Rels))
	for _, rel := range doc.Rels {
		out[rel.ID] = rel.Target
	}
	return out, nil
}

// sheetRelIDs scans the workbook part for sheet records and returns each
// sheet's relationship id in declaration order. Record ids are one or two
// bytes, with bit 7 of the first byte marking the two-byte form; payload
// lengths are 7-bit varints.
func sheetRelIDs(data []byte) ([]string, error) {
	var ids []string
	pos := 0
	for pos < len(data) {
		id := int(data[pos])
		pos++
		if id&0x80 != 0 {
			if pos >= len(data) {
				return nil, fmt.Errorf("workbook part: truncated record id")
			}
			id |= int(data[pos]) << 8
			pos++
		}
		length := 0
		for shift := 0; ; shift += 7 {
			if pos >= len(data) {
				return nil, fmt.Errorf("workbook part: truncated record length")
			}
			b := data[pos]
			pos++
			length |= int(b&0x7F) << shift
			if b&0x80 == 0 {
				break
			}
		}
		if length < 0 || pos+length > len(data) {
			return nil, fmt.Errorf("workbook part: record overruns data")
		}
		if id == brtBundleSh {
			// Unparseable sheet records still occupy their slot so the
			// indexes stay aligned with the sheet order.
			rid, _ := bundleShRelID(data[pos : pos+length])
			ids = append(ids, rid)
		}
		pos += length
	}
	return ids, nil
}

// bundleShRelID extracts the relationship id from a sheet record payload:
// state flags (4) + sheet id (4) + relationship id string + name string.
func bundleShRelID(payload []byte) (string, error) {
	if len(payload) < 12 {
		return "", fmt.Errorf("sheet record too short")
	}
	return readWideString(payload[8:])
}

// readWideString decodes a 4-byte rune count followed by UTF-16LE code
// units.
func readWideString(b []byte) (string, error) {
	if len(b) < 4 {
		return "", fmt.Errorf("truncated string")
	}
	n := int(binary.LittleEndian.Uint32(b))
	if n < 0 || 4+n*2 > len(b) {
		return "", fmt.Errorf("truncated string")
	}
	units := make([]uint16, n)
	for i := range units {
		units[i] = binary.LittleEndian.Uint16(b[4+i*2:])
	}
	return string(utf16.Decode(units)), nil
}
