package codec

import "errors"

var (
	// ErrShortBuffer indicates the input ended before a field could be read.
	ErrShortBuffer = errors.New("codec: buffer too short")
	// ErrMagicMismatch indicates the 16-byte offline message magic did not match.
	ErrMagicMismatch = errors.New("codec: magic mismatch")
	// ErrInvalidArgument indicates a value does not fit its wire representation.
	ErrInvalidArgument = errors.New("codec: invalid argument")
	// ErrInvalidAddress indicates an unknown system address version byte.
	ErrInvalidAddress = errors.New("codec: invalid address")
)
