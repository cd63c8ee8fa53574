// Package protocol defines the RakNet message catalog: the reliability
// classes, the Frame and FrameSet data layer, the built-in control messages
// and the id to decoder table that turns datagrams into typed messages.
//
// Decoding never fails. A datagram with an unknown id, a truncated body or a
// bad magic comes back as an InvalidMessage carrying the cause:
//
//	msg := protocol.Decode(datagram)
//	if inv, ok := msg.(protocol.InvalidMessage); ok {
//	    log.Trace(inv.Err)
//	}
//
// Encoding is strict. Fields outside their wire width, and InvalidMessage
// itself, are rejected with an error wrapping ErrInvalidArgument:
//
//	data, err := protocol.Encode(protocol.ConnectedPing{Time: 123456789})
//
// Applications extend the catalog with Catalog.Register for ids that are not
// built in.
package protocol
