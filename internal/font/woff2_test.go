package font

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteUIntBase128(t *testing.T) {
	cases := []struct {
		v    uint32
		want []byte
	}{
		{0, []byte{0x00}},
		{0x7F, []byte{0x7F}},
		{0x80, []byte{0x81, 0x00}},
		{0x3FFF, []byte{0xFF, 0x7F}},
		{0x4000, []byte{0x81, 0x80, 0x00}},
	}
	for _, tc := range cases {
		var b bytes.Buffer
		writeUIntBase128(&b, tc.v)
		assert.Equal(t, tc.want, b.Bytes(), "value %#x", tc.v)
	}
}

func TestPad4(t *testing.T) {
	assert.EqualValues(t, 0, pad4(0))
	assert.EqualValues(t, 4, pad4(1))
	assert.EqualValues(t, 4, pad4(4))
	assert.EqualValues(t, 8, pad4(5))
}

// buildSFNT assembles a minimal valid offset table around the given tables.
func buildSFNT(t *testing.T, tables map[string][]byte) []byte {
	t.Helper()
	var tags []string
	for tag := range tables {
		tags = append(tags, tag)
	}

	var b bytes.Buffer
	_ = binary.Write(&b, binary.BigEndian, uint32(0x00010000))
	_ = binary.Write(&b, binary.BigEndian, uint16(len(tags)))
	_ = binary.Write(&b, binary.BigEndian, uint16(0)) // searchRange
	_ = binary.Write(&b, binary.BigEndian, uint16(0)) // entrySelector
	_ = binary.Write(&b, binary.BigEndian, uint16(0)) // rangeShift

	offset := uint32(12 + 16*len(tags))
	for _, tag := range tags {
		b.WriteString(tag)
		_ = binary.Write(&b, binary.BigEndian, uint32(0)) // checksum
		_ = binary.Write(&b, binary.BigEndian, offset)
		_ = binary.Write(&b, binary.BigEndian, uint32(len(tables[tag])))
		offset += uint32(len(tables[tag]))
	}
	for _, tag := range tags {
		b.Write(tables[tag])
	}
	return b.Bytes()
}

func TestEncodeWOFF2RoundTripsTableData(t *testing.T) {
	sfnt := buildSFNT(t, map[string][]byte{
		"head": bytes.Repeat([]byte{0xAB}, 54),
		"cmap": []byte("cmap-table-data"),
	})

	out, err := encodeWOFF2(sfnt)
	require.NoError(t, err)
	require.True(t, IsWOFF2(out))

	// Declared length matches actual size.
	assert.EqualValues(t, len(out), binary.BigEndian.Uint32(out[8:12]))
	assert.EqualValues(t, 2, binary.BigEndian.Uint16(out[12:14]))

	// The compressed stream at the tail decompresses to the concatenated
	// table data.
	compLen := binary.BigEndian.Uint32(out[20:24])
	start := uint32(len(out)) - compLen
	r := brotli.NewReader(bytes.NewReader(out[start:]))
	decompressed, err := io.ReadAll(r)
	require.NoError(t, err)

	assert.Contains(t, string(decompressed), "cmap-table-data")
	assert.Len(t, decompressed, 54+len("cmap-table-data"))
}

func TestEncodeWOFF2RejectsTruncatedInput(t *testing.T) {
	_, err := encodeWOFF2([]byte{0x00, 0x01})
	assert.Error(t, err)

	sfnt := buildSFNT(t, map[string][]byte{"head": []byte("x")})
	_, err = encodeWOFF2(sfnt[:14])
	assert.Error(t, err)
}

func TestKnownTableIndex(t *testing.T) {
	assert.EqualValues(t, 0, knownTableIndex("cmap"))
	assert.EqualValues(t, 10, knownTableIndex("glyf"))
	assert.EqualValues(t, 0x3F, knownTableIndex("ZZZZ"))
}
