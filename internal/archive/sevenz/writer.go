// Package sevenz implements a 7z container writer.
//
// No write-capable 7z library exists for Go, so the container is
// produced directly: each non-empty file becomes a single-coder folder
// whose stream is deflate-compressed, empty files are recorded through
// the empty-stream vector, and the metadata header is emitted following
// the 7z property grammar. Archives are readable by 7-Zip, p7zip and
// the bodgit/sevenzip reader.
package sevenz

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"unicode/utf16"

	"github.com/klauspost/compress/flate"
)

var signature = []byte{'7', 'z', 0xBC, 0xAF, 0x27, 0x1C}

// Property IDs from the 7z header grammar.
const (
	idEnd              = 0x00
	idHeader           = 0x01
	idMainStreamsInfo  = 0x04
	idFilesInfo        = 0x05
	idPackInfo         = 0x06
	idUnpackInfo       = 0x07
	idSubStreamsInfo   = 0x08
	idSize             = 0x09
	idCRC              = 0x0A
	idFolder           = 0x0B
	idCodersUnpackSize = 0x0C
	idNumUnpackStream  = 0x0D
	idEmptyStream      = 0x0E
	idEmptyFile        = 0x0F
	idName             = 0x11
)

// deflateCoderID is the 7z codec identifier for raw deflate (04 01 08).
var deflateCoderID = []byte{0x04, 0x01, 0x08}

const signatureHeaderLen = 32

type entry struct {
	name       string
	packSize   uint64
	unpackSize uint64
	crc        uint32
}

// File is the subset of file operations the writer needs. afero.File
// and *os.File both satisfy it.
type File interface {
	io.Writer
	io.Seeker
	Truncate(size int64) error
}

// Writer builds a 7z container on an open file. Entries are packed in
// the order they are added. Close finalizes the header; the caller owns
// closing the underlying file.
type Writer struct {
	f       File
	entries []entry
	packed  uint64
	closed  bool
}

// NewWriter starts a container on f, which must be positioned at the
// beginning of an empty file. Space for the signature header is
// reserved immediately; it is filled in by Close.
func NewWriter(f File) (*Writer, error) {
	if _, err := f.Write(make([]byte, signatureHeaderLen)); err != nil {
		return nil, fmt.Errorf("failed to reserve signature header: %w", err)
	}
	return &Writer{f: f}, nil
}

// AddFile compresses data into the container under name. name must be
// slash-separated.
func (w *Writer) AddFile(name string, data io.Reader) error {
	if w.closed {
		return fmt.Errorf("7z writer is closed")
	}

	start := int64(signatureHeaderLen) + int64(w.packed)

	cw := &countingWriter{w: w.f}
	fw, err := flate.NewWriter(cw, flate.DefaultCompression)
	if err != nil {
		return fmt.Errorf("failed to create deflate writer: %w", err)
	}

	crc := crc32.NewIEEE()
	n, err := io.Copy(io.MultiWriter(fw, crc), data)
	if err != nil {
		return fmt.Errorf("failed to compress entry %s: %w", name, err)
	}
	if err := fw.Close(); err != nil {
		return fmt.Errorf("failed to flush deflate stream for %s: %w", name, err)
	}

	if n == 0 {
		// Empty files carry no stream; rewind over the deflate preamble.
		if _, err := w.f.Seek(start, io.SeekStart); err != nil {
			return fmt.Errorf("failed to rewind empty entry %s: %w", name, err)
		}
		w.entries = append(w.entries, entry{name: name})
		return nil
	}

	w.packed += uint64(cw.n)
	w.entries = append(w.entries, entry{
		name:       name,
		packSize:   uint64(cw.n),
		unpackSize: uint64(n),
		crc:        crc.Sum32(),
	})
	return nil
}

// Close writes the metadata header and the signature header. The
// underlying file is left open.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	header := w.buildHeader()

	if _, err := w.f.Seek(int64(signatureHeaderLen)+int64(w.packed), io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek to header position: %w", err)
	}
	if _, err := w.f.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	end := int64(signatureHeaderLen) + int64(w.packed) + int64(len(header))
	if err := w.f.Truncate(end); err != nil {
		return fmt.Errorf("failed to truncate container: %w", err)
	}

	// StartHeader: next-header offset (relative to the end of the
	// signature header), size, and CRC of the header bytes.
	var start [20]byte
	binary.LittleEndian.PutUint64(start[0:], w.packed)
	binary.LittleEndian.PutUint64(start[8:], uint64(len(header)))
	binary.LittleEndian.PutUint32(start[16:], crc32.ChecksumIEEE(header))

	var sig bytes.Buffer
	sig.Write(signature)
	sig.WriteByte(0) // format version 0.4
	sig.WriteByte(4)
	var startCRC [4]byte
	binary.LittleEndian.PutUint32(startCRC[:], crc32.ChecksumIEEE(start[:]))
	sig.Write(startCRC[:])
	sig.Write(start[:])

	if _, err := w.f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek to signature header: %w", err)
	}
	if _, err := w.f.Write(sig.Bytes()); err != nil {
		return fmt.Errorf("failed to write signature header: %w", err)
	}
	return nil
}

// packedEntries returns the entries that carry a stream.
func (w *Writer) packedEntries() []entry {
	var out []entry
	for _, e := range w.entries {
		if e.unpackSize > 0 {
			out = append(out, e)
		}
	}
	return out
}

func (w *Writer) buildHeader() []byte {
	var buf bytes.Buffer
	buf.WriteByte(idHeader)

	packed := w.packedEntries()
	if len(packed) > 0 {
		w.writeMainStreamsInfo(&buf, packed)
	}
	if len(w.entries) > 0 {
		w.writeFilesInfo(&buf)
	}

	buf.WriteByte(idEnd)
	return buf.Bytes()
}

func (w *Writer) writeMainStreamsInfo(buf *bytes.Buffer, packed []entry) {
	buf.WriteByte(idMainStreamsInfo)

	// PackInfo: position of the packed streams and their sizes.
	buf.WriteByte(idPackInfo)
	writeNumber(buf, 0)
	writeNumber(buf, uint64(len(packed)))
	buf.WriteByte(idSize)
	for _, e := range packed {
		writeNumber(buf, e.packSize)
	}
	buf.WriteByte(idEnd)

	// UnpackInfo: one single-coder deflate folder per packed stream.
	buf.WriteByte(idUnpackInfo)
	buf.WriteByte(idFolder)
	writeNumber(buf, uint64(len(packed)))
	buf.WriteByte(0) // folders stored inline, not external
	for range packed {
		writeNumber(buf, 1) // one coder
		// Coder flags: low nibble is the codec-ID length, no attributes.
		buf.WriteByte(byte(len(deflateCoderID)))
		buf.Write(deflateCoderID)
	}
	buf.WriteByte(idCodersUnpackSize)
	for _, e := range packed {
		writeNumber(buf, e.unpackSize)
	}
	buf.WriteByte(idCRC)
	buf.WriteByte(1) // all CRCs defined
	for _, e := range packed {
		var crc [4]byte
		binary.LittleEndian.PutUint32(crc[:], e.crc)
		buf.Write(crc[:])
	}
	buf.WriteByte(idEnd)

	// SubStreamsInfo: readers use the per-folder substream counts to map
	// file indices onto folders. Each folder holds exactly one substream,
	// so its size and CRC are already carried by the folder records above
	// and the optional size/CRC sections are omitted.
	buf.WriteByte(idSubStreamsInfo)
	buf.WriteByte(idNumUnpackStream)
	for range packed {
		writeNumber(buf, 1)
	}
	buf.WriteByte(idEnd)

	buf.WriteByte(idEnd)
}

func (w *Writer) writeFilesInfo(buf *bytes.Buffer) {
	buf.WriteByte(idFilesInfo)
	writeNumber(buf, uint64(len(w.entries)))

	var emptyCount int
	for _, e := range w.entries {
		if e.unpackSize == 0 {
			emptyCount++
		}
	}

	if emptyCount > 0 {
		// Bit per file, set when the file has no stream.
		bits := make([]byte, (len(w.entries)+7)/8)
		for i, e := range w.entries {
			if e.unpackSize == 0 {
				bits[i/8] |= 0x80 >> (i % 8)
			}
		}
		buf.WriteByte(idEmptyStream)
		writeNumber(buf, uint64(len(bits)))
		buf.Write(bits)

		// Every streamless entry is an empty file, not a directory.
		fileBits := make([]byte, (emptyCount+7)/8)
		for i := 0; i < emptyCount; i++ {
			fileBits[i/8] |= 0x80 >> (i % 8)
		}
		buf.WriteByte(idEmptyFile)
		writeNumber(buf, uint64(len(fileBits)))
		buf.Write(fileBits)
	}

	var names bytes.Buffer
	names.WriteByte(0) // names stored inline, not external
	for _, e := range w.entries {
		for _, u := range utf16.Encode([]rune(e.name)) {
			var c [2]byte
			binary.LittleEndian.PutUint16(c[:], u)
			names.Write(c[:])
		}
		names.Write([]byte{0, 0})
	}
	buf.WriteByte(idName)
	writeNumber(buf, uint64(names.Len()))
	buf.Write(names.Bytes())

	buf.WriteByte(idEnd)
}

// writeNumber emits the 7z variable-length integer encoding: n high
// flag bits in the first byte select n little-endian continuation
// bytes, the remaining low bits of the first byte hold the top of the
// value.
func writeNumber(buf *bytes.Buffer, v uint64) {
	for n := uint(0); n < 8; n++ {
		if v < uint64(1)<<(7*(n+1)) {
			var flags byte
			if n > 0 {
				flags = ^byte(0) << (8 - n)
			}
			buf.WriteByte(flags | byte(v>>(8*n)))
			for i := uint(0); i < n; i++ {
				buf.WriteByte(byte(v >> (8 * i)))
			}
			return
		}
	}

	buf.WriteByte(0xFF)
	for i := uint(0); i < 8; i++ {
		buf.WriteByte(byte(v >> (8 * i)))
	}
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
