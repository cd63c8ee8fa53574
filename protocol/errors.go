package protocol

import (
	"errors"

	"github.com/opd-ai/raknet/codec"
)

var (
	// ErrInvalidArgument indicates a message or frame that cannot be encoded.
	// It is the same sentinel the codec writers use for out-of-range values.
	ErrInvalidArgument = codec.ErrInvalidArgument
	// ErrMalformed indicates a body whose fields are structurally invalid.
	ErrMalformed = errors.New("protocol: malformed message")
	// ErrEncodeInvalid indicates an attempt to encode an InvalidMessage.
	ErrEncodeInvalid = errors.New("protocol: invalid message cannot be encoded")
)
