package protocol

import "github.com/opd-ai/raknet/codec"

const (
	timeSize = 8
	guidSize = 8
)

// ConnectedPing is sent by a connected peer to measure round-trip time.
type ConnectedPing struct {
	Time int64
}

// ID returns the ConnectedPing message id.
func (ConnectedPing) ID() byte { return IDConnectedPing }

// Size returns the length of the ConnectedPing body in bytes.
func (ConnectedPing) Size() int { return timeSize }

// EncodeBody writes the ConnectedPing body that follows the id byte.
func (m ConnectedPing) EncodeBody(w *codec.Writer) {
	w.Int64(m.Time)
}

func decodeConnectedPing(r *codec.Reader) (Message, error) {
	m := ConnectedPing{Time: r.Int64()}
	return m, r.Err()
}

// ConnectedPong answers a ConnectedPing, echoing its time.
type ConnectedPong struct {
	PingTime int64
	PongTime int64
}

// ID returns the ConnectedPong message id.
func (ConnectedPong) ID() byte { return IDConnectedPong }

// Size returns the length of the ConnectedPong body in bytes.
func (ConnectedPong) Size() int { return 2 * timeSize }

// EncodeBody writes the ConnectedPong body that follows the id byte.
func (m ConnectedPong) EncodeBody(w *codec.Writer) {
	w.Int64(m.PingTime)
	w.Int64(m.PongTime)
}

func decodeConnectedPong(r *codec.Reader) (Message, error) {
	m := ConnectedPong{PingTime: r.Int64(), PongTime: r.Int64()}
	return m, r.Err()
}

// UnconnectedPing probes for a peer without a connection.
type UnconnectedPing struct {
	Time int64
}

// ID returns the UnconnectedPing message id.
func (UnconnectedPing) ID() byte { return IDUnconnectedPing }

// Size returns the length of the UnconnectedPing body in bytes.
func (UnconnectedPing) Size() int { return timeSize + codec.MagicSize }

// EncodeBody writes the UnconnectedPing body that follows the id byte.
func (m UnconnectedPing) EncodeBody(w *codec.Writer) {
	w.Int64(m.Time)
	w.Magic()
}

func decodeUnconnectedPing(r *codec.Reader) (Message, error) {
	m := UnconnectedPing{Time: r.Int64()}
	r.Magic(true)
	return m, r.Err()
}

// UnconnectedPingOpenConnections is an UnconnectedPing that only peers with
// free connection slots answer. The magic is carried as received.
type UnconnectedPingOpenConnections struct {
	Time  int64
	Magic [codec.MagicSize]byte
}

// ID returns the UnconnectedPingOpenConnections message id.
func (UnconnectedPingOpenConnections) ID() byte { return IDUnconnectedPingOpenConnections }

// Size returns the length of the UnconnectedPingOpenConnections body in bytes.
func (UnconnectedPingOpenConnections) Size() int { return timeSize + codec.MagicSize }

// EncodeBody writes the UnconnectedPingOpenConnections body that follows the id byte.
func (m UnconnectedPingOpenConnections) EncodeBody(w *codec.Writer) {
	w.Int64(m.Time)
	w.Raw(m.Magic[:])
}

func decodeUnconnectedPingOpenConnections(r *codec.Reader) (Message, error) {
	var m UnconnectedPingOpenConnections
	m.Time = r.Int64()
	r.Fixed(m.Magic[:])
	return m, r.Err()
}

// DetectLostConnections asks the remote peer to prove it is still alive.
type DetectLostConnections struct{}

// ID returns the DetectLostConnections message id.
func (DetectLostConnections) ID() byte { return IDDetectLostConnections }

// Size returns the length of the DetectLostConnections body in bytes.
func (DetectLostConnections) Size() int { return 0 }

// EncodeBody writes nothing; DetectLostConnections has no body.
func (DetectLostConnections) EncodeBody(*codec.Writer) {}

func decodeDetectLostConnections(*codec.Reader) (Message, error) {
	return DetectLostConnections{}, nil
}
