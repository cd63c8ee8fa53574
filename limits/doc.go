// Package limits provides centralized size constants and validation functions
// for RakNet traffic. It keeps MTU negotiation, fragment reassembly and the
// invalid-message fallback agreeing on the same bounds.
//
// # Size Hierarchy
//
//   - MinMTUSize (500 bytes) and MaxMTUSize (1500 bytes): the range a negotiated
//     MTU is clamped into during the open connection exchange.
//
//   - UDPHeaderSize (28 bytes): IPv4 plus UDP header overhead, counted when the
//     server derives the MTU from the padding of an OpenConnectionRequest1.
//
//   - MaxInvalidPayload (1500 bytes): how much of an undecodable datagram is kept
//     for diagnostics.
//
//   - MaxFragmentCount and MaxSplitPackets: bounds on fragment reassembly per
//     compound and per session.
//
// # Validation Functions
//
//	if err := limits.ValidateDatagram(data); err != nil {
//	    // ErrMessageEmpty or ErrMessageTooLarge
//	}
//
//	mtu := limits.ClampMTU(requested)
//
// Errors wrap ErrMessageEmpty, ErrMessageTooLarge or ErrInvalidMTU and can be
// checked with errors.Is.
package limits
