package codec

import (
	"encoding/binary"
	"fmt"
)

const (
	// MaxUint24 is the largest value representable as an unsigned medium.
	MaxUint24 = 0xffffff
	// MaxString16 is the largest string length a 16-bit prefix can carry.
	MaxString16 = 0xffff
)

// Writer appends big-endian fields to a growing buffer.
type Writer struct {
	buf []byte
	err error
}

// NewWriter returns a Writer with room for size bytes.
func NewWriter(size int) *Writer {
	if size < 0 {
		size = 0
	}
	return &Writer{buf: make([]byte, 0, size)}
}

// Bytes returns the encoded bytes. The result is only meaningful when Err is nil.
func (w *Writer) Bytes() []byte {
	return w.buf
}

// Len returns the number of bytes written.
func (w *Writer) Len() int {
	return len(w.buf)
}

// Err returns the first error encountered.
func (w *Writer) Err() error {
	return w.err
}

// Fail records err unless an earlier error is already recorded.
func (w *Writer) Fail(err error) {
	if w.err == nil {
		w.err = err
	}
}

// Byte writes one byte.
func (w *Writer) Byte(b byte) {
	if w.err != nil {
		return
	}
	w.buf = append(w.buf, b)
}

// Bool writes a one-byte boolean.
func (w *Writer) Bool(v bool) {
	if v {
		w.Byte(1)
		return
	}
	w.Byte(0)
}

// Uint8 writes an unsigned byte, rejecting values outside [0, 0xff].
func (w *Writer) Uint8(v int) {
	if v < 0 || v > 0xff {
		w.Fail(fmt.Errorf("%w: %d exceeds unsigned byte range", ErrInvalidArgument, v))
		return
	}
	w.Byte(byte(v))
}

// Uint16 writes an unsigned 16-bit integer.
func (w *Writer) Uint16(v uint16) {
	if w.err != nil {
		return
	}
	w.buf = binary.BigEndian.AppendUint16(w.buf, v)
}

// Uint16Int writes an unsigned 16-bit integer from an int, rejecting values
// outside [0, 0xffff].
func (w *Writer) Uint16Int(v int) {
	if v < 0 || v > 0xffff {
		w.Fail(fmt.Errorf("%w: %d exceeds unsigned short range", ErrInvalidArgument, v))
		return
	}
	w.Uint16(uint16(v))
}

// Uint24 writes an unsigned medium, rejecting values above 0xffffff.
func (w *Writer) Uint24(v uint32) {
	if v > MaxUint24 {
		w.Fail(fmt.Errorf("%w: %d exceeds unsigned medium range", ErrInvalidArgument, v))
		return
	}
	if w.err != nil {
		return
	}
	w.buf = append(w.buf, byte(v>>16), byte(v>>8), byte(v))
}

// Uint32 writes an unsigned 32-bit integer.
func (w *Writer) Uint32(v uint32) {
	if w.err != nil {
		return
	}
	w.buf = binary.BigEndian.AppendUint32(w.buf, v)
}

// Uint64 writes an unsigned 64-bit integer.
func (w *Writer) Uint64(v uint64) {
	if w.err != nil {
		return
	}
	w.buf = binary.BigEndian.AppendUint64(w.buf, v)
}

// Int64 writes a signed 64-bit integer.
func (w *Writer) Int64(v int64) {
	w.Uint64(uint64(v))
}

// Raw writes b verbatim.
func (w *Writer) Raw(b []byte) {
	if w.err != nil {
		return
	}
	w.buf = append(w.buf, b...)
}

// Fixed writes b, which must be exactly n bytes long.
func (w *Writer) Fixed(b []byte, n int) {
	if len(b) != n {
		w.Fail(fmt.Errorf("%w: field is %d bytes, want %d", ErrInvalidArgument, len(b), n))
		return
	}
	w.Raw(b)
}

// String16 writes s as UTF-8 prefixed with its unsigned 16-bit byte length.
func (w *Writer) String16(s string) {
	if len(s) > MaxString16 {
		w.Fail(fmt.Errorf("%w: string length %d exceeds %d", ErrInvalidArgument, len(s), MaxString16))
		return
	}
	w.Uint16(uint16(len(s)))
	w.Raw([]byte(s))
}

// Magic writes the offline message magic.
func (w *Writer) Magic() {
	w.Raw(Magic[:])
}
