package protocol

import (
	"fmt"

	"github.com/opd-ai/raknet/codec"
)

// Message ids of the built-in catalog. The order matches MessageIdentifiers.h
// of the reference RakNet implementation.
const (
	IDConnectedPing byte = iota
	IDUnconnectedPing
	IDUnconnectedPingOpenConnections
	IDConnectedPong
	IDDetectLostConnections
	IDOpenConnectionRequest1
	IDOpenConnectionReply1
	IDOpenConnectionRequest2
	IDOpenConnectionReply2
	IDConnectionRequest
	IDRemoteSystemRequiresPublicKey
	IDOurSystemRequiresSecurity
	IDPublicKeyMismatch
	IDOutOfBandInternal
	IDSndReceiptAcked
	IDSndReceiptLoss

	// BuiltinMessageCount is the number of well-known ids starting at zero.
	BuiltinMessageCount = int(iota)
)

const (
	// IDFrameSetFirst is the lowest id that marks a frame set datagram.
	IDFrameSetFirst byte = 0x80
	// IDFrameSetLast is the highest id that marks a frame set datagram.
	IDFrameSetLast byte = 0x8d
	// IDFrameSet is the id used when sending frame sets.
	IDFrameSet byte = 0x84
)

// IsFrameSetID reports whether id falls in the frame set range.
func IsFrameSetID(id byte) bool {
	return id >= IDFrameSetFirst && id <= IDFrameSetLast
}

// IsBuiltinID reports whether id is served by the built-in catalog.
func IsBuiltinID(id byte) bool {
	return int(id) < BuiltinMessageCount || IsFrameSetID(id)
}

// Message is a decoded RakNet message.
//
// The built-in variants are the value types defined in this package; external
// catalogs may add their own by registering a DecodeFunc. Size and EncodeBody
// exclude the leading id byte.
type Message interface {
	ID() byte
	Size() int
	EncodeBody(w *codec.Writer)
}

// Name returns a human readable name for a message id.
func Name(id byte) string {
	if IsFrameSetID(id) {
		return fmt.Sprintf("FrameSet(0x%02x)", id)
	}
	if int(id) < BuiltinMessageCount {
		return builtinNames[id]
	}
	return fmt.Sprintf("Message(0x%02x)", id)
}

var builtinNames = [BuiltinMessageCount]string{
	IDConnectedPing:                  "ConnectedPing",
	IDUnconnectedPing:                "UnconnectedPing",
	IDUnconnectedPingOpenConnections: "UnconnectedPingOpenConnections",
	IDConnectedPong:                  "ConnectedPong",
	IDDetectLostConnections:          "DetectLostConnections",
	IDOpenConnectionRequest1:         "OpenConnectionRequest1",
	IDOpenConnectionReply1:           "OpenConnectionReply1",
	IDOpenConnectionRequest2:         "OpenConnectionRequest2",
	IDOpenConnectionReply2:           "OpenConnectionReply2",
	IDConnectionRequest:              "ConnectionRequest",
	IDRemoteSystemRequiresPublicKey:  "RemoteSystemRequiresPublicKey",
	IDOurSystemRequiresSecurity:      "OurSystemRequiresSecurity",
	IDPublicKeyMismatch:              "PublicKeyMismatch",
	IDOutOfBandInternal:              "OutOfBandInternal",
	IDSndReceiptAcked:                "SndReceiptAcked",
	IDSndReceiptLoss:                 "SndReceiptLoss",
}

// Encode returns the id byte followed by the message body.
//
// Encoding an InvalidMessage, or a message whose fields do not fit their wire
// widths, fails with an error wrapping ErrInvalidArgument.
func Encode(m Message) ([]byte, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: nil message", ErrInvalidArgument)
	}
	if inv, ok := m.(InvalidMessage); ok {
		return nil, fmt.Errorf("%w: %w (id 0x%02x)", ErrInvalidArgument, ErrEncodeInvalid, inv.MessageID)
	}
	w := codec.NewWriter(1 + m.Size())
	w.Byte(m.ID())
	m.EncodeBody(w)
	if err := w.Err(); err != nil {
		return nil, fmt.Errorf("encode %s: %w", Name(m.ID()), err)
	}
	return w.Bytes(), nil
}
