package wire

import (
	"encoding/binary"
	"math"

	"github.com/samber/oops"
)

// var_int discriminator bytes.
const (
	varIntUint16 = 0xFD
	varIntUint32 = 0xFE
	varIntUint64 = 0xFF
)

// Reader is a bounds-checked cursor over a payload.
// Every short read fails with ErrMalformedField and leaves the cursor where it was.
type Reader struct {
	buf []byte
	off int
}

// NewReader returns a Reader positioned at the start of b.
func NewReader(b []byte) *Reader {
	return &Reader{buf: b}
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.buf) - r.off
}

// Offset returns the number of bytes consumed so far.
func (r *Reader) Offset() int {
	return r.off
}

func (r *Reader) take(n int, what string) ([]byte, error) {
	if n < 0 || n > r.Remaining() {
		return nil, oops.Errorf("%w: %s needs %d bytes at offset %d, %d remain",
			ErrMalformedField, what, n, r.off, r.Remaining())
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b, nil
}

// ReadBytes returns the next n bytes.
// The returned slice aliases the underlying buffer.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	return r.take(n, "byte range")
}

// ReadRest returns a copy of every unread byte and exhausts the reader.
func (r *Reader) ReadRest() []byte {
	rest := make([]byte, r.Remaining())
	copy(rest, r.buf[r.off:])
	r.off = len(r.buf)
	return rest
}

// ReadUint8 reads one byte.
func (r *Reader) ReadUint8() (uint8, error) {
	b, err := r.take(1, "u8")
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadUint16LE reads a little-endian uint16.
func (r *Reader) ReadUint16LE() (uint16, error) {
	b, err := r.take(2, "u16le")
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

// ReadUint16BE reads a big-endian uint16, as used for ports.
func (r *Reader) ReadUint16BE() (uint16, error) {
	b, err := r.take(2, "u16be")
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

// ReadUint32LE reads a little-endian uint32.
func (r *Reader) ReadUint32LE() (uint32, error) {
	b, err := r.take(4, "u32le")
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// ReadUint32BE reads a big-endian uint32, as used for the frame magic.
func (r *Reader) ReadUint32BE() (uint32, error) {
	b, err := r.take(4, "u32be")
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

// ReadUint64LE reads a little-endian uint64.
func (r *Reader) ReadUint64LE() (uint64, error) {
	b, err := r.take(8, "u64le")
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// ReadVarInt reads a var_int. Non-canonical encodings are accepted.
func (r *Reader) ReadVarInt() (uint64, error) {
	start := r.off
	prefix, err := r.ReadUint8()
	if err != nil {
		return 0, err
	}

	var v uint64
	switch prefix {
	case varIntUint16:
		var n uint16
		n, err = r.ReadUint16LE()
		v = uint64(n)
	case varIntUint32:
		var n uint32
		n, err = r.ReadUint32LE()
		v = uint64(n)
	case varIntUint64:
		v, err = r.ReadUint64LE()
	default:
		v = uint64(prefix)
	}
	if err != nil {
		r.off = start
		return 0, err
	}
	return v, nil
}

// ReadVarString reads a var_int length followed by that many bytes.
func (r *Reader) ReadVarString() (string, error) {
	start := r.off
	n, err := r.ReadVarInt()
	if err != nil {
		return "", err
	}
	if n > uint64(r.Remaining()) {
		r.off = start
		return "", oops.Errorf("%w: var_str length %d exceeds %d remaining bytes",
			ErrMalformedField, n, r.Remaining())
	}
	b, _ := r.take(int(n), "var_str")
	return string(b), nil
}

// Writer appends wire encodings to a growing buffer.
type Writer struct {
	buf []byte
}

// NewWriter returns a Writer with room for sizeHint bytes.
func NewWriter(sizeHint int) *Writer {
	return &Writer{buf: make([]byte, 0, sizeHint)}
}

// Bytes returns the encoded bytes. The slice aliases the writer's buffer.
func (w *Writer) Bytes() []byte {
	return w.buf
}

// Len returns the number of bytes written.
func (w *Writer) Len() int {
	return len(w.buf)
}

// WriteBytes appends b unchanged.
func (w *Writer) WriteBytes(b []byte) {
	w.buf = append(w.buf, b...)
}

// WriteUint8 appends one byte.
func (w *Writer) WriteUint8(v uint8) {
	w.buf = append(w.buf, v)
}

// WriteUint16LE appends a little-endian uint16.
func (w *Writer) WriteUint16LE(v uint16) {
	w.buf = binary.LittleEndian.AppendUint16(w.buf, v)
}

// WriteUint16BE appends a big-endian uint16.
func (w *Writer) WriteUint16BE(v uint16) {
	w.buf = binary.BigEndian.AppendUint16(w.buf, v)
}

// WriteUint32LE appends a little-endian uint32.
func (w *Writer) WriteUint32LE(v uint32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

// WriteUint32BE appends a big-endian uint32.
func (w *Writer) WriteUint32BE(v uint32) {
	w.buf = binary.BigEndian.AppendUint32(w.buf, v)
}

// WriteUint64LE appends a little-endian uint64.
func (w *Writer) WriteUint64LE(v uint64) {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, v)
}

// WriteVarInt writes v in its shortest var_int form.
func (w *Writer) WriteVarInt(v uint64) {
	switch {
	case v < varIntUint16:
		w.WriteUint8(uint8(v))
	case v <= math.MaxUint16:
		w.WriteUint8(varIntUint16)
		w.WriteUint16LE(uint16(v))
	case v <= math.MaxUint32:
		w.WriteUint8(varIntUint32)
		w.WriteUint32LE(uint32(v))
	default:
		w.WriteUint8(varIntUint64)
		w.WriteUint64LE(v)
	}
}

// WriteVarString appends the var_int length of s followed by its bytes.
func (w *Writer) WriteVarString(s string) {
	w.WriteVarInt(uint64(len(s)))
	w.buf = append(w.buf, s...)
}
