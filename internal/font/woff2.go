package font

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/andybalholm/brotli"
)

// encodeWOFF2 frames an SFNT binary into a WOFF2 container: header, table
// directory, then the concatenated table data brotli-compressed as a single
// stream. All tables use the null transform (glyf/loca carry transform
// version 3, everything else version 0), which keeps the framing a thin
// wrapper around the compressor.
func encodeWOFF2(sfnt []byte) ([]byte, error) {
	tables, flavor, err := parseTableDirectory(sfnt)
	if err != nil {
		return nil, err
	}

	var dir bytes.Buffer
	var raw bytes.Buffer
	totalSfntSize := uint32(12 + 16*len(tables))
	for _, t := range tables {
		flags := knownTableIndex(t.tag)
		if t.tag == "glyf" || t.tag == "loca" {
			flags |= 3 << 6 // null transform for glyf/loca
		}
		dir.WriteByte(flags)
		if flags&0x3F == 0x3F {
			dir.WriteString(t.tag)
		}
		writeUIntBase128(&dir, uint32(len(t.data)))

		raw.Write(t.data)
		totalSfntSize += pad4(uint32(len(t.data)))
	}

	var compressed bytes.Buffer
	bw := brotli.NewWriterLevel(&compressed, brotli.BestCompression)
	if _, err := bw.Write(raw.Bytes()); err != nil {
		return nil, fmt.Errorf("compress tables: %w", err)
	}
	if err := bw.Close(); err != nil {
		return nil, fmt.Errorf("finish compression: %w", err)
	}

	// Header is 48 bytes. No metadata or private block follows the
	// compressed stream, so no trailing padding is required.
	length := 48 + uint32(dir.Len()) + uint32(compressed.Len())

	var out bytes.Buffer
	out.Write(woff2Magic)
	be := func(v uint32) { _ = binary.Write(&out, binary.BigEndian, v) }
	be16 := func(v uint16) { _ = binary.Write(&out, binary.BigEndian, v) }
	be(flavor)
	be(length)
	be16(uint16(len(tables)))
	be16(0) // reserved
	be(totalSfntSize)
	be(uint32(compressed.Len()))
	be16(1) // majorVersion
	be16(0) // minorVersion
	be(0)   // metaOffset
	be(0)   // metaLength
	be(0)   // metaOrigLength
	be(0)   // privOffset
	be(0)   // privLength
	out.Write(dir.Bytes())
	out.Write(compressed.Bytes())
	return out.Bytes(), nil
}

type sfntTableEntry struct {
	tag  string
	data []byte
}

// parseTableDirectory reads the SFNT offset table and returns the tables in
// physical (offset) order plus the sfnt version for the container flavor.
func parseTableDirectory(sfnt []byte) ([]sfntTableEntry, uint32, error) {
	if len(sfnt) < 12 {
		return nil, 0, fmt.Errorf("sfnt too short: %d bytes", len(sfnt))
	}
	flavor := binary.BigEndian.Uint32(sfnt[0:4])
	numTables := int(binary.BigEndian.Uint16(sfnt[4:6]))
	if len(sfnt) < 12+16*numTables {
		return nil, 0, fmt.Errorf("sfnt table directory truncated")
	}

	tables := make([]sfntTableEntry, 0, numTables)
	for i := 0; i < numTables; i++ {
		rec := sfnt[12+16*i:]
		tag := string(rec[0:4])
		offset := binary.BigEndian.Uint32(rec[8:12])
		length := binary.BigEndian.Uint32(rec[12:16])
		if uint64(offset)+uint64(length) > uint64(len(sfnt)) {
			return nil, 0, fmt.Errorf("table %s exceeds sfnt bounds", tag)
		}
		tables = append(tables, sfntTableEntry{tag: tag, data: sfnt[offset : offset+length]})
	}
	// Directory order and data stream order must agree; both follow the
	// offset table here.
	return tables, flavor, nil
}

// knownTableTags is the WOFF2 known-tag index; tags outside it are written
// explicitly after a 0x3F flags byte.
var knownTableTags = []string{
	"cmap", "head", "hhea", "hmtx", "maxp", "name", "OS/2", "post",
	"cvt ", "fpgm", "glyf", "loca", "prep", "CFF ", "VORG", "EBDT",
	"EBLC", "gasp", "hdmx", "kern", "LTSH", "PCLT", "VDMX", "vhea",
	"vmtx", "BASE", "GDEF", "GPOS", "GSUB", "EBSC", "JSTF", "MATH",
	"CBDT", "CBLC", "COLR", "CPAL",
}

func knownTableIndex(tag string) byte {
	for i, t := range knownTableTags {
		if t == tag {
			return byte(i)
		}
	}
	return 0x3F
}

// writeUIntBase128 writes v in the WOFF2 variable-length encoding: 7 bits
// per byte, most significant first, high bit set on all but the last byte.
func writeUIntBase128(b *bytes.Buffer, v uint32) {
	var tmp [5]byte
	n := 0
	for {
		tmp[n] = byte(v & 0x7F)
		v >>= 7
		n++
		if v == 0 {
			break
		}
	}
	for i := n - 1; i >= 0; i-- {
		c := tmp[i]
		if i != 0 {
			c |= 0x80
		}
		b.WriteByte(c)
	}
}

func pad4(n uint32) uint32 {
	return (n + 3) &^ 3
}
