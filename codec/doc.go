// Package codec provides the big-endian byte primitives used by the RakNet
// wire format.
//
// Reader and Writer carry a sticky error in the manner of bufio.Scanner: once
// an operation fails every later operation is a no-op and Err reports the
// first failure. Callers decode or encode a whole message and check Err once.
//
//	w := codec.NewWriter(9)
//	w.Byte(0x00)
//	w.Int64(time)
//	if err := w.Err(); err != nil {
//	    return err
//	}
//
// Writers reject values outside the declared wire width with an error
// wrapping ErrInvalidArgument. This signals a bug in the caller rather than
// malformed traffic. Readers report truncated input with ErrShortBuffer and a
// bad unconnected-message magic with ErrMagicMismatch.
//
// System addresses use the RakNet layout: a version byte followed by an
// inverted IPv4 address and big-endian port (7 bytes), or a sockaddr_in6
// image (29 bytes) for IPv6.
package codec
