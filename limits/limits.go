package limits

import (
	"errors"
	"fmt"
)

const (
	// MaxMTUSize is the largest MTU a peer may negotiate.
	MaxMTUSize = 1500

	// MinMTUSize is the smallest MTU a peer may negotiate.
	MinMTUSize = 500

	// UDPHeaderSize is the IPv4 (20) plus UDP (8) header overhead.
	UDPHeaderSize = 28

	// OpenConnectionRequest1Overhead is the id byte, the magic and the
	// protocol version that precede the MTU padding.
	OpenConnectionRequest1Overhead = 1 + 16 + 1

	// MaxInvalidPayload caps the bytes retained from an undecodable datagram.
	MaxInvalidPayload = 1500

	// MaxDatagramSize is the largest datagram the transport reads.
	MaxDatagramSize = 65535

	// MaxFragmentCount bounds the parts of a single fragmented message.
	MaxFragmentCount = 250

	// MaxSplitPackets bounds the fragmented messages buffered per session.
	MaxSplitPackets = 32
)

var (
	// ErrMessageEmpty indicates an empty datagram was provided
	ErrMessageEmpty = errors.New("empty message")

	// ErrMessageTooLarge indicates a datagram exceeds the maximum size
	ErrMessageTooLarge = errors.New("message too large")

	// ErrInvalidMTU indicates an MTU outside [MinMTUSize, MaxMTUSize]
	ErrInvalidMTU = errors.New("invalid mtu")

	// ErrTooManyFragments indicates a compound exceeding MaxFragmentCount
	ErrTooManyFragments = errors.New("too many fragments")
)

// ValidateMessageSize validates a message against the specified maximum size.
// Returns an error with context including the actual and maximum sizes.
func ValidateMessageSize(message []byte, maxSize int) error {
	if len(message) == 0 {
		return ErrMessageEmpty
	}
	if len(message) > maxSize {
		return fmt.Errorf("%w: size %d exceeds limit %d", ErrMessageTooLarge, len(message), maxSize)
	}
	return nil
}

// ValidateDatagram validates a raw datagram against MaxDatagramSize.
func ValidateDatagram(data []byte) error {
	return ValidateMessageSize(data, MaxDatagramSize)
}

// ValidateMTU reports whether mtu lies within the negotiable range.
func ValidateMTU(mtu int) error {
	if mtu < MinMTUSize || mtu > MaxMTUSize {
		return fmt.Errorf("%w: %d not in [%d, %d]", ErrInvalidMTU, mtu, MinMTUSize, MaxMTUSize)
	}
	return nil
}

// ClampMTU forces mtu into [MinMTUSize, MaxMTUSize].
func ClampMTU(mtu int) int {
	return max(MinMTUSize, min(mtu, MaxMTUSize))
}

// MTUFromPadding derives the path MTU from the padding length of an
// OpenConnectionRequest1, clamped to the negotiable range.
func MTUFromPadding(padding int) int {
	return ClampMTU(OpenConnectionRequest1Overhead + UDPHeaderSize + padding)
}

// PaddingForMTU is the inverse of MTUFromPadding for an unclamped mtu.
func PaddingForMTU(mtu int) int {
	return max(0, mtu-OpenConnectionRequest1Overhead-UDPHeaderSize)
}

// ValidateFragmentCount checks the part count announced by a fragmented frame.
func ValidateFragmentCount(count uint32) error {
	if count == 0 || count > MaxFragmentCount {
		return fmt.Errorf("%w: %d parts, limit %d", ErrTooManyFragments, count, MaxFragmentCount)
	}
	return nil
}
