package protocol

import (
	"fmt"

	"github.com/opd-ai/raknet/codec"
)

// FrameSet is the connected data datagram: a 24-bit sequence number followed
// by as many frames as fit.
type FrameSet struct {
	// MessageID is the datagram id in [IDFrameSetFirst, IDFrameSetLast].
	// The zero value encodes as IDFrameSet.
	MessageID byte
	SetIndex  uint32
	Frames    []Frame
}

// ID returns the frame set datagram id, IDFrameSet when unset.
func (m FrameSet) ID() byte {
	if m.MessageID == 0 {
		return IDFrameSet
	}
	return m.MessageID
}

// Size returns the length of the FrameSet body in bytes.
func (m FrameSet) Size() int {
	size := indexSize
	for _, f := range m.Frames {
		size += f.Size()
	}
	return size
}

// EncodeBody writes the FrameSet body that follows the id byte.
func (m FrameSet) EncodeBody(w *codec.Writer) {
	if !IsFrameSetID(m.ID()) {
		w.Fail(fmt.Errorf("%w: frame set id 0x%02x", ErrInvalidArgument, m.MessageID))
		return
	}
	w.Uint24(m.SetIndex)
	for _, f := range m.Frames {
		EncodeFrame(w, f)
	}
}

// AllReliable reports whether every frame uses a reliable class.
func (m FrameSet) AllReliable() bool {
	for _, f := range m.Frames {
		if !f.Reliability.IsReliable() {
			return false
		}
	}
	return true
}

// frameSetDecoder returns the decoder bound to a frame set id. Frames are
// read while at least FrameMinimumSize bytes remain; a shorter tail is
// ignored.
func frameSetDecoder(id byte) DecodeFunc {
	return func(r *codec.Reader) (Message, error) {
		m := FrameSet{MessageID: id, SetIndex: r.Uint24()}
		for r.Err() == nil && r.Len() >= FrameMinimumSize {
			f := DecodeFrame(r)
			if r.Err() != nil {
				break
			}
			m.Frames = append(m.Frames, f)
		}
		return m, r.Err()
	}
}
