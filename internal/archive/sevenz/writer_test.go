package sevenz

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteNumber(t *testing.T) {
	tests := []struct {
		name  string
		value uint64
		want  []byte
	}{
		{name: "zero", value: 0, want: []byte{0x00}},
		{name: "small", value: 0x7F, want: []byte{0x7F}},
		{name: "one extra byte", value: 0x80, want: []byte{0x80, 0x80}},
		{name: "two byte value", value: 0x3FFF, want: []byte{0xBF, 0xFF}},
		{name: "three bytes", value: 0x4000, want: []byte{0xC0, 0x00, 0x40}},
		{name: "max uint64", value: ^uint64(0), want: []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			writeNumber(&buf, tt.value)
			assert.Equal(t, tt.want, buf.Bytes())
		})
	}
}

func newTestFile(t *testing.T) *os.File {
	t.Helper()
	f, err := os.Create(filepath.Join(t.TempDir(), "test.7z"))
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f
}

func TestSignatureHeader(t *testing.T) {
	f := newTestFile(t)

	w, err := NewWriter(f)
	require.NoError(t, err)
	require.NoError(t, w.AddFile("a.txt", strings.NewReader("hello")))
	require.NoError(t, w.Close())

	data, err := os.ReadFile(f.Name())
	require.NoError(t, err)
	require.Greater(t, len(data), signatureHeaderLen)

	assert.Equal(t, signature, data[:6])
	assert.Equal(t, byte(0), data[6])
	assert.Equal(t, byte(4), data[7])

	// The start-header CRC must cover the 20 bytes that follow it.
	startCRC := binary.LittleEndian.Uint32(data[8:12])
	assert.Equal(t, crc32.ChecksumIEEE(data[12:32]), startCRC)

	// The next-header CRC must cover the metadata header itself.
	offset := binary.LittleEndian.Uint64(data[12:20])
	size := binary.LittleEndian.Uint64(data[20:28])
	headerCRC := binary.LittleEndian.Uint32(data[28:32])
	header := data[signatureHeaderLen+offset : signatureHeaderLen+offset+size]
	assert.Equal(t, crc32.ChecksumIEEE(header), headerCRC)
	assert.Equal(t, byte(idHeader), header[0])
	assert.Equal(t, byte(idEnd), header[len(header)-1])
}

func TestEmptyContainer(t *testing.T) {
	f := newTestFile(t)

	w, err := NewWriter(f)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	data, err := os.ReadFile(f.Name())
	require.NoError(t, err)

	// Signature header plus a bare kHeader/kEnd pair.
	assert.Equal(t, signatureHeaderLen+2, len(data))
	assert.Equal(t, []byte{idHeader, idEnd}, data[signatureHeaderLen:])
}

func TestHeaderDeclaresOneSubstreamPerFolder(t *testing.T) {
	f := newTestFile(t)

	w, err := NewWriter(f)
	require.NoError(t, err)
	require.NoError(t, w.AddFile("a.txt", strings.NewReader("alpha")))
	require.NoError(t, w.AddFile("b.txt", strings.NewReader("beta")))
	require.NoError(t, w.Close())

	data, err := os.ReadFile(f.Name())
	require.NoError(t, err)

	offset := binary.LittleEndian.Uint64(data[12:20])
	size := binary.LittleEndian.Uint64(data[20:28])
	header := data[signatureHeaderLen+offset : signatureHeaderLen+offset+size]

	// Without per-folder substream counts a reader maps every file onto
	// the first folder; the header must carry one count per folder.
	subStreams := []byte{idSubStreamsInfo, idNumUnpackStream, 1, 1, idEnd}
	assert.True(t, bytes.Contains(header, subStreams),
		"header must declare one substream for each of the two folders")
}

func TestEmptyFileRewindsPackStream(t *testing.T) {
	f := newTestFile(t)

	w, err := NewWriter(f)
	require.NoError(t, err)
	require.NoError(t, w.AddFile("empty.txt", strings.NewReader("")))
	require.NoError(t, w.Close())

	// An empty file contributes no packed bytes: the header starts
	// right after the signature header.
	data, err := os.ReadFile(f.Name())
	require.NoError(t, err)
	offset := binary.LittleEndian.Uint64(data[12:20])
	assert.Equal(t, uint64(0), offset)
}

func TestAddAfterClose(t *testing.T) {
	f := newTestFile(t)

	w, err := NewWriter(f)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	err = w.AddFile("late.txt", strings.NewReader("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "closed")
}
