package codec

import (
	"encoding/binary"
	"fmt"
	"unicode/utf8"
)

// Reader decodes big-endian fields from an in-memory buffer.
type Reader struct {
	buf []byte
	off int
	err error
}

// NewReader returns a Reader positioned at the start of buf. The buffer is
// not copied; byte slices returned by Bytes are.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Err returns the first error encountered.
func (r *Reader) Err() error {
	return r.err
}

// Fail records err unless an earlier error is already recorded. Decoders use
// it to report semantic problems (bad enum values) through the same channel.
func (r *Reader) Fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

// Len returns the number of unread bytes.
func (r *Reader) Len() int {
	return len(r.buf) - r.off
}

// Offset returns the number of bytes consumed so far.
func (r *Reader) Offset() int {
	return r.off
}

// Peek returns the next unread byte without consuming it.
func (r *Reader) Peek() (byte, bool) {
	if r.err != nil || r.Len() < 1 {
		return 0, false
	}
	return r.buf[r.off], true
}

func (r *Reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.Len() < n {
		r.err = fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrShortBuffer, n, r.off, r.Len())
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

// Byte reads one byte.
func (r *Reader) Byte() byte {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

// Bool reads a one-byte boolean; any non-zero value is true.
func (r *Reader) Bool() bool {
	return r.Byte() != 0
}

// Uint16 reads an unsigned 16-bit integer.
func (r *Reader) Uint16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint16(b)
}

// Uint24 reads an unsigned 24-bit integer ("medium").
func (r *Reader) Uint24() uint32 {
	b := r.take(3)
	if b == nil {
		return 0
	}
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
}

// Uint32 reads an unsigned 32-bit integer.
func (r *Reader) Uint32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

// Uint64 reads an unsigned 64-bit integer, used for GUIDs.
func (r *Reader) Uint64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

// Int64 reads a signed 64-bit integer, used for RakNet time values.
func (r *Reader) Int64() int64 {
	return int64(r.Uint64())
}

// Bytes reads n bytes into a fresh slice. It returns nil when n is zero.
func (r *Reader) Bytes(n int) []byte {
	b := r.take(n)
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, n)
	copy(out, b)
	return out
}

// Fixed fills dst from the buffer.
func (r *Reader) Fixed(dst []byte) {
	if b := r.take(len(dst)); b != nil {
		copy(dst, b)
	}
}

// Rest reads every remaining byte, capped at max when max is positive.
func (r *Reader) Rest(max int) []byte {
	n := r.Len()
	if max > 0 && n > max {
		n = max
	}
	return r.Bytes(n)
}

// String16 reads a UTF-8 string prefixed with its unsigned 16-bit byte length.
func (r *Reader) String16() string {
	n := int(r.Uint16())
	b := r.take(n)
	if b == nil {
		return ""
	}
	if !utf8.Valid(b) {
		r.err = fmt.Errorf("%w: string is not valid utf-8", ErrInvalidArgument)
		return ""
	}
	return string(b)
}

// Magic consumes the 16-byte offline message magic. When validate is true a
// mismatch is recorded as ErrMagicMismatch; otherwise the bytes are skipped.
func (r *Reader) Magic(validate bool) {
	b := r.take(MagicSize)
	if b == nil || !validate {
		return
	}
	if [MagicSize]byte(b) != Magic {
		r.err = fmt.Errorf("%w: got %x", ErrMagicMismatch, b)
	}
}
