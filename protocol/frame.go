package protocol

import (
	"fmt"

	"github.com/opd-ai/raknet/codec"
)

const (
	// FrameMinimumSize is the smallest encoded frame: flags plus the body length.
	FrameMinimumSize = 3

	frameReliabilityMask  = 0b1110_0000
	frameReliabilityShift = 5
	frameFragmentedFlag   = 0b0001_0000

	indexSize      = 3
	fragmentHeader = 4 + 2 + 4
)

// Frame is one reliability-tagged chunk of payload inside a FrameSet.
//
// Index fields are only meaningful (and only encoded) when the reliability
// class or the Fragmented flag calls for them.
type Frame struct {
	Reliability         Reliability
	Fragmented          bool
	BodyLengthBits      uint16
	ReliableFrameIndex  uint32
	SequencedFrameIndex uint32
	OrderedFrameIndex   uint32
	OrderChannel        byte
	CompoundSize        uint32
	CompoundID          uint16
	CompoundIndex       uint32
	Body                []byte
}

// NewFrame returns an unfragmented frame carrying body with the bit length
// filled in. Body lengths above 8191 bytes do not fit the 16-bit length and
// are rejected when the frame is encoded.
func NewFrame(reliability Reliability, body []byte) Frame {
	return Frame{
		Reliability:    reliability,
		BodyLengthBits: uint16(len(body) * 8),
		Body:           body,
	}
}

// BodySize returns the number of body bytes implied by BodyLengthBits.
func (f Frame) BodySize() int {
	return (int(f.BodyLengthBits) + 7) / 8
}

// Size returns the exact encoded length of the frame.
func (f Frame) Size() int {
	size := 1 + 2
	if f.Reliability.IsReliable() {
		size += indexSize
	}
	if f.Reliability.IsSequenced() {
		size += indexSize
	}
	if f.Reliability.IsOrdered() {
		size += indexSize + 1
	}
	if f.Fragmented {
		size += fragmentHeader
	}
	return size + f.BodySize()
}

// DecodeFrame reads one frame. Errors are recorded on r.
func DecodeFrame(r *codec.Reader) Frame {
	var f Frame
	flags := r.Byte()
	reliability, ok := ReliabilityOf((flags & frameReliabilityMask) >> frameReliabilityShift)
	if !ok {
		r.Fail(fmt.Errorf("%w: reliability code %d", ErrMalformed, flags>>frameReliabilityShift))
		return f
	}
	f.Reliability = reliability
	f.Fragmented = flags&frameFragmentedFlag != 0
	f.BodyLengthBits = r.Uint16()
	if reliability.IsReliable() {
		f.ReliableFrameIndex = r.Uint24()
	}
	if reliability.IsSequenced() {
		f.SequencedFrameIndex = r.Uint24()
	}
	if reliability.IsOrdered() {
		f.OrderedFrameIndex = r.Uint24()
		f.OrderChannel = r.Byte()
	}
	if f.Fragmented {
		f.CompoundSize = r.Uint32()
		f.CompoundID = r.Uint16()
		f.CompoundIndex = r.Uint32()
	}
	f.Body = r.Bytes(f.BodySize())
	return f
}

// EncodeFrame writes f. Only the fields implied by the reliability class and
// the fragmented flag are written.
func EncodeFrame(w *codec.Writer, f Frame) {
	if !f.Reliability.Valid() {
		w.Fail(fmt.Errorf("%w: %v", ErrInvalidArgument, f.Reliability))
		return
	}
	if len(f.Body) != f.BodySize() {
		w.Fail(fmt.Errorf("%w: body is %d bytes but length field says %d bits",
			ErrInvalidArgument, len(f.Body), f.BodyLengthBits))
		return
	}
	flags := f.Reliability.WireCode() << frameReliabilityShift
	if f.Fragmented {
		flags |= frameFragmentedFlag
	}
	w.Byte(flags)
	w.Uint16(f.BodyLengthBits)
	if f.Reliability.IsReliable() {
		w.Uint24(f.ReliableFrameIndex)
	}
	if f.Reliability.IsSequenced() {
		w.Uint24(f.SequencedFrameIndex)
	}
	if f.Reliability.IsOrdered() {
		w.Uint24(f.OrderedFrameIndex)
		w.Byte(f.OrderChannel)
	}
	if f.Fragmented {
		w.Uint32(f.CompoundSize)
		w.Uint16(f.CompoundID)
		w.Uint32(f.CompoundIndex)
	}
	w.Raw(f.Body)
}
