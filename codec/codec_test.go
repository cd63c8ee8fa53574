package codec

import (
	"bytes"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterReaderIntegers(t *testing.T) {
	w := NewWriter(32)
	w.Byte(0xab)
	w.Bool(true)
	w.Uint16(0x1234)
	w.Uint24(0x56789a)
	w.Uint32(0xdeadbeef)
	w.Uint64(0x0102030405060708)
	w.Int64(-2)
	require.NoError(t, w.Err())

	assert.Equal(t, []byte{
		0xab,
		0x01,
		0x12, 0x34,
		0x56, 0x78, 0x9a,
		0xde, 0xad, 0xbe, 0xef,
		0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08,
		0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xfe,
	}, w.Bytes())

	r := NewReader(w.Bytes())
	assert.Equal(t, byte(0xab), r.Byte())
	assert.True(t, r.Bool())
	assert.Equal(t, uint16(0x1234), r.Uint16())
	assert.Equal(t, uint32(0x56789a), r.Uint24())
	assert.Equal(t, uint32(0xdeadbeef), r.Uint32())
	assert.Equal(t, uint64(0x0102030405060708), r.Uint64())
	assert.Equal(t, int64(-2), r.Int64())
	require.NoError(t, r.Err())
	assert.Equal(t, 0, r.Len())
}

func TestWriterRejectsOutOfRange(t *testing.T) {
	tests := []struct {
		name  string
		write func(w *Writer)
	}{
		{"medium above range", func(w *Writer) { w.Uint24(MaxUint24 + 1) }},
		{"byte above range", func(w *Writer) { w.Uint8(256) }},
		{"negative byte", func(w *Writer) { w.Uint8(-1) }},
		{"short above range", func(w *Writer) { w.Uint16Int(0x10000) }},
		{"negative short", func(w *Writer) { w.Uint16Int(-1) }},
		{"fixed size mismatch", func(w *Writer) { w.Fixed([]byte{1, 2, 3}, 4) }},
		{"oversized string", func(w *Writer) { w.String16(string(make([]byte, MaxString16+1))) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewWriter(0)
			tt.write(w)
			assert.ErrorIs(t, w.Err(), ErrInvalidArgument)
			assert.Equal(t, 0, w.Len())
		})
	}
}

func TestWriterErrorIsSticky(t *testing.T) {
	w := NewWriter(8)
	w.Uint24(MaxUint24 + 1)
	w.Byte(1)
	w.Uint32(7)
	assert.ErrorIs(t, w.Err(), ErrInvalidArgument)
	assert.Empty(t, w.Bytes())
}

func TestReaderShortBuffer(t *testing.T) {
	r := NewReader([]byte{0x01, 0x02})
	assert.Equal(t, uint32(0), r.Uint24())
	assert.ErrorIs(t, r.Err(), ErrShortBuffer)

	// later reads keep the first error and return zero values
	assert.Equal(t, byte(0), r.Byte())
	assert.ErrorIs(t, r.Err(), ErrShortBuffer)
}

func TestString16(t *testing.T) {
	w := NewWriter(0)
	w.String16("héllo")
	require.NoError(t, w.Err())
	assert.Equal(t, []byte{0x00, 0x06}, w.Bytes()[:2])

	r := NewReader(w.Bytes())
	assert.Equal(t, "héllo", r.String16())
	require.NoError(t, r.Err())

	r = NewReader([]byte{0x00, 0x02, 0xff, 0xfe})
	assert.Equal(t, "", r.String16())
	assert.ErrorIs(t, r.Err(), ErrInvalidArgument)
}

func TestMagic(t *testing.T) {
	w := NewWriter(MagicSize)
	w.Magic()
	require.NoError(t, w.Err())
	assert.Equal(t, []byte{
		0x00, 0xff, 0xff, 0x00, 0xfe, 0xfe, 0xfe, 0xfe,
		0xfd, 0xfd, 0xfd, 0xfd, 0x12, 0x34, 0x56, 0x78,
	}, w.Bytes())
	assert.True(t, IsMagic(w.Bytes()))

	r := NewReader(w.Bytes())
	r.Magic(true)
	assert.NoError(t, r.Err())

	bad := bytes.Repeat([]byte{0x42}, MagicSize)
	r = NewReader(bad)
	r.Magic(true)
	assert.ErrorIs(t, r.Err(), ErrMagicMismatch)

	r = NewReader(bad)
	r.Magic(false)
	assert.NoError(t, r.Err())
	assert.Equal(t, 0, r.Len())
	assert.False(t, IsMagic(bad))
}

func TestAddressRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		addr netip.AddrPort
		size int
		wire []byte
	}{
		{
			name: "ipv4",
			addr: netip.MustParseAddrPort("192.168.1.10:19132"),
			size: AddressSizeIPv4,
			wire: []byte{4, ^byte(192), ^byte(168), ^byte(1), ^byte(10), 0x4a, 0xbc},
		},
		{
			name: "ipv6",
			addr: netip.MustParseAddrPort("[2001:db8::1]:7000"),
			size: AddressSizeIPv6,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewWriter(AddressSize(tt.addr))
			w.Address(tt.addr)
			require.NoError(t, w.Err())
			assert.Len(t, w.Bytes(), tt.size)
			if tt.wire != nil {
				assert.Equal(t, tt.wire, w.Bytes())
			}

			r := NewReader(w.Bytes())
			assert.Equal(t, tt.addr, r.Address())
			require.NoError(t, r.Err())
			assert.Equal(t, 0, r.Len())
		})
	}
}

func TestAddressInvalidVersion(t *testing.T) {
	r := NewReader([]byte{5, 0, 0, 0, 0, 0, 0})
	r.Address()
	assert.ErrorIs(t, r.Err(), ErrInvalidAddress)
}
