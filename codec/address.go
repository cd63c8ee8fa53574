package codec

import (
	"encoding/binary"
	"fmt"
	"net/netip"
)

const (
	// AddressSizeIPv4 is the encoded size of an IPv4 system address.
	AddressSizeIPv4 = 1 + 4 + 2
	// AddressSizeIPv6 is the encoded size of an IPv6 system address.
	AddressSizeIPv6 = 1 + 2 + 2 + 4 + 16 + 4

	addressVersion4 = 4
	addressVersion6 = 6

	// afInet6 is the sockaddr_in6 family value RakNet peers put on the wire.
	afInet6 = 23
)

// AddressSize returns the encoded size of addr.
func AddressSize(addr netip.AddrPort) int {
	if addr.Addr().Is4() {
		return AddressSizeIPv4
	}
	return AddressSizeIPv6
}

// Address writes a RakNet system address.
func (w *Writer) Address(addr netip.AddrPort) {
	ip := addr.Addr()
	switch {
	case ip.Is4():
		a := ip.As4()
		w.Byte(addressVersion4)
		w.Raw([]byte{^a[0], ^a[1], ^a[2], ^a[3]})
		w.Uint16(addr.Port())
	case ip.Is6():
		a := ip.As16()
		w.Byte(addressVersion6)
		w.Raw(binary.LittleEndian.AppendUint16(nil, afInet6))
		w.Uint16(addr.Port())
		w.Uint32(0)
		w.Raw(a[:])
		w.Uint32(0)
	default:
		w.Fail(fmt.Errorf("%w: address %v is not valid", ErrInvalidArgument, addr))
	}
}

// Address reads a RakNet system address.
func (r *Reader) Address() netip.AddrPort {
	switch v := r.Byte(); {
	case r.err != nil:
		return netip.AddrPort{}
	case v == addressVersion4:
		var a [4]byte
		r.Fixed(a[:])
		port := r.Uint16()
		if r.err != nil {
			return netip.AddrPort{}
		}
		return netip.AddrPortFrom(netip.AddrFrom4([4]byte{^a[0], ^a[1], ^a[2], ^a[3]}), port)
	case v == addressVersion6:
		r.take(2) // family
		port := r.Uint16()
		r.Uint32() // flow info
		var a [16]byte
		r.Fixed(a[:])
		r.Uint32() // scope id
		if r.err != nil {
			return netip.AddrPort{}
		}
		return netip.AddrPortFrom(netip.AddrFrom16(a), port)
	default:
		r.Fail(fmt.Errorf("%w: version byte %d", ErrInvalidAddress, v))
		return netip.AddrPort{}
	}
}
