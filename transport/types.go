package transport

import (
	"errors"
	"net/netip"
)

// ErrClosed is returned when sending on a closed transport.
var ErrClosed = errors.New("transport: closed")

// DatagramHandler receives every inbound datagram. data is only valid for
// the duration of the call unless the transport says otherwise.
type DatagramHandler func(data []byte, sender, receiver netip.AddrPort)

// Transport defines the interface for the datagram transports the RakNet
// core runs over. It satisfies session.Sender.
type Transport interface {
	// SendTo sends one datagram to the specified address.
	SendTo(data []byte, to netip.AddrPort) error

	// Close shuts down the transport.
	Close() error

	// LocalAddr returns the local address the transport is listening on.
	LocalAddr() netip.AddrPort

	// RegisterHandler sets the function inbound datagrams are handed to.
	RegisterHandler(handler DatagramHandler)
}
