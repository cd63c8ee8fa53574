package protocol

import (
	"github.com/opd-ai/raknet/codec"
	"github.com/opd-ai/raknet/limits"
)

// InvalidMessage stands in for a datagram that could not be decoded. Payload
// holds at most limits.MaxInvalidPayload bytes following the id byte. Err is
// nil when the id is simply unknown.
//
// An InvalidMessage is never encoded; Encode rejects it.
type InvalidMessage struct {
	MessageID byte
	Payload   []byte
	Err       error
}

// ID returns the id byte of the undecodable datagram.
func (m InvalidMessage) ID() byte { return m.MessageID }

// Size returns the length of the InvalidMessage body in bytes.
func (m InvalidMessage) Size() int { return len(m.Payload) }

// EncodeBody always fails: an invalid message cannot be encoded.
func (m InvalidMessage) EncodeBody(w *codec.Writer) {
	w.Fail(ErrEncodeInvalid)
}

// newInvalid builds the fallback for data, which includes the id byte.
func newInvalid(data []byte, err error) InvalidMessage {
	m := InvalidMessage{Err: err}
	if len(data) == 0 {
		return m
	}
	m.MessageID = data[0]
	m.Payload = codec.NewReader(data[1:]).Rest(limits.MaxInvalidPayload)
	return m
}

// IsInvalid reports whether m is an InvalidMessage.
func IsInvalid(m Message) bool {
	_, ok := m.(InvalidMessage)
	return ok
}
