package dispatch

import (
	"net/netip"
	"sync"
	"testing"

	"github.com/opd-ai/raknet/codec"
	"github.com/opd-ai/raknet/protocol"
	"github.com/opd-ai/raknet/session"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	local  = netip.MustParseAddrPort("192.168.1.1:19132")
	remote = netip.MustParseAddrPort("192.168.1.10:50000")
)

const testUptime = 5000

type recordingSender struct {
	mu   sync.Mutex
	sent []protocol.TargetedMessage
}

func (r *recordingSender) SendTo(data []byte, to netip.AddrPort) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, protocol.DecodeTargeted(data, local, to))
	return nil
}

func (r *recordingSender) messages() []protocol.TargetedMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]protocol.TargetedMessage(nil), r.sent...)
}

type fixture struct {
	dispatcher *Dispatcher
	registry   *session.Registry
	sender     *recordingSender
	hook       *test.Hook
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.TraceLevel)

	f := &fixture{sender: &recordingSender{}, hook: hook}
	var err error
	f.registry, err = session.NewRegistry(session.Config{Sender: f.sender, Logger: logger})
	require.NoError(t, err)
	t.Cleanup(func() { f.registry.Close() })

	f.dispatcher = New(Config{
		Registry: f.registry,
		Uptime:   func() int64 { return testUptime },
		Logger:   logger,
	})
	return f
}

func encode(t *testing.T, m protocol.Message) []byte {
	t.Helper()
	data, err := protocol.Encode(m)
	require.NoError(t, err)
	return data
}

func frameSetOf(t *testing.T, frames ...protocol.Frame) []byte {
	t.Helper()
	return encode(t, protocol.FrameSet{SetIndex: 1, Frames: frames})
}

func TestUnhandledMessageCreatesNoSession(t *testing.T) {
	f := newFixture(t)

	tm := f.dispatcher.HandleDatagram(encode(t, protocol.UnconnectedPing{Time: 1}), remote, local)

	assert.Equal(t, protocol.IDUnconnectedPing, tm.Message.ID())
	assert.Equal(t, remote, tm.Sender)
	assert.Equal(t, local, tm.Receiver)
	assert.Equal(t, 0, f.registry.Len())
}

func TestHandleCreatesSession(t *testing.T) {
	f := newFixture(t)
	var got []*session.Session
	f.dispatcher.Handle(protocol.IDUnconnectedPing, func(tm protocol.TargetedMessage, s *session.Session) error {
		got = append(got, s)
		return nil
	})

	data := encode(t, protocol.UnconnectedPing{Time: 1})
	f.dispatcher.HandleDatagram(data, remote, local)
	f.dispatcher.HandleDatagram(data, remote, local)

	require.Len(t, got, 2)
	assert.Same(t, got[0], got[1])
	assert.Equal(t, remote, got[0].Remote())
	assert.Equal(t, local, got[0].Local())
	assert.Equal(t, 1, f.registry.Len())
}

func TestHandleExistingIgnoresUnknownPairs(t *testing.T) {
	f := newFixture(t)
	calls := 0
	f.dispatcher.HandleExisting(protocol.IDUnconnectedPing, func(protocol.TargetedMessage, *session.Session) error {
		calls++
		return nil
	})

	data := encode(t, protocol.UnconnectedPing{Time: 1})
	f.dispatcher.HandleDatagram(data, remote, local)
	assert.Equal(t, 0, calls)
	assert.Equal(t, 0, f.registry.Len())

	_, err := f.registry.GetOrCreate(remote, local)
	require.NoError(t, err)
	f.dispatcher.HandleDatagram(data, remote, local)
	assert.Equal(t, 1, calls)
}

func TestBlockedTraffic(t *testing.T) {
	f := newFixture(t)
	calls := 0
	f.dispatcher.Handle(protocol.IDUnconnectedPing, func(protocol.TargetedMessage, *session.Session) error {
		calls++
		return nil
	})
	f.dispatcher.Block(func(_ []byte, sender, _ netip.AddrPort) bool {
		return sender.Addr() == remote.Addr()
	})

	tm := f.dispatcher.HandleDatagram(encode(t, protocol.UnconnectedPing{Time: 1}), remote, local)

	inv, ok := tm.Message.(protocol.InvalidMessage)
	require.True(t, ok)
	assert.ErrorIs(t, inv.Err, ErrBlocked)
	assert.Equal(t, protocol.IDUnconnectedPing, inv.MessageID)
	assert.Equal(t, 0, calls)
	assert.Equal(t, 0, f.registry.Len())

	other := netip.MustParseAddrPort("10.0.0.2:40000")
	f.dispatcher.HandleDatagram(encode(t, protocol.UnconnectedPing{Time: 1}), other, local)
	assert.Equal(t, 1, calls)
}

func TestInvalidDatagramIsDropped(t *testing.T) {
	f := newFixture(t)
	calls := 0
	f.dispatcher.Handle(protocol.IDConnectedPing, func(protocol.TargetedMessage, *session.Session) error {
		calls++
		return nil
	})

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"truncated ping", []byte{protocol.IDConnectedPing, 0x01}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tm := f.dispatcher.HandleDatagram(tt.data, remote, local)
			assert.True(t, protocol.IsInvalid(tm.Message))
		})
	}
	assert.Equal(t, 0, calls)
	assert.Equal(t, 0, f.registry.Len())
}

func TestVetoedSessionSkipsHandler(t *testing.T) {
	f := newFixture(t)
	f.registry.OnNewSession(func(*session.Session) bool { return false })
	calls := 0
	f.dispatcher.Handle(protocol.IDUnconnectedPing, func(protocol.TargetedMessage, *session.Session) error {
		calls++
		return nil
	})

	f.dispatcher.HandleDatagram(encode(t, protocol.UnconnectedPing{Time: 1}), remote, local)

	assert.Equal(t, 0, calls)
	assert.Equal(t, 0, f.registry.Len())
}

func TestConnectedPingIsAnswered(t *testing.T) {
	f := newFixture(t)
	_, err := f.registry.GetOrCreate(remote, local)
	require.NoError(t, err)

	f.dispatcher.HandleDatagram(encode(t, protocol.ConnectedPing{Time: 1234}), remote, local)

	sent := f.sender.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, remote, sent[0].Receiver)
	assert.Equal(t, protocol.ConnectedPong{PingTime: 1234, PongTime: testUptime}, sent[0].Message)
}

func TestConnectedPongIsRecorded(t *testing.T) {
	f := newFixture(t)
	s, err := f.registry.GetOrCreate(remote, local)
	require.NoError(t, err)

	f.dispatcher.HandleDatagram(encode(t, protocol.ConnectedPong{PingTime: testUptime - 40, PongTime: 9000}), remote, local)

	sample, ok := s.Pings().Last()
	require.True(t, ok)
	assert.Equal(t, int64(40), sample.RoundTrip.Milliseconds())
}

func TestPongFromTheFutureIsIgnored(t *testing.T) {
	f := newFixture(t)
	s, err := f.registry.GetOrCreate(remote, local)
	require.NoError(t, err)

	f.dispatcher.HandleDatagram(encode(t, protocol.ConnectedPong{PingTime: testUptime + 1}), remote, local)

	assert.Equal(t, 0, s.Pings().Len())
	found := false
	for _, e := range f.hook.AllEntries() {
		if e.Message == "Handler failed" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestDetectLostConnectionsSendsPing(t *testing.T) {
	f := newFixture(t)
	_, err := f.registry.GetOrCreate(remote, local)
	require.NoError(t, err)

	f.dispatcher.HandleDatagram(encode(t, protocol.DetectLostConnections{}), remote, local)

	sent := f.sender.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, protocol.ConnectedPing{Time: testUptime}, sent[0].Message)
}

func TestFrameSetBodiesAreDelivered(t *testing.T) {
	f := newFixture(t)
	_, err := f.registry.GetOrCreate(remote, local)
	require.NoError(t, err)

	data := frameSetOf(t,
		protocol.NewFrame(protocol.Unreliable, encode(t, protocol.ConnectedPing{Time: 1})),
		protocol.NewFrame(protocol.Reliable, encode(t, protocol.ConnectedPing{Time: 2})),
	)
	tm := f.dispatcher.HandleDatagram(data, remote, local)

	assert.Equal(t, protocol.IDFrameSet, tm.Message.ID())
	sent := f.sender.messages()
	require.Len(t, sent, 2)
	assert.Equal(t, protocol.ConnectedPong{PingTime: 1, PongTime: testUptime}, sent[0].Message)
	assert.Equal(t, protocol.ConnectedPong{PingTime: 2, PongTime: testUptime}, sent[1].Message)
}

func TestFrameSetFromUnknownPairIsDropped(t *testing.T) {
	f := newFixture(t)

	data := frameSetOf(t, protocol.NewFrame(protocol.Unreliable, encode(t, protocol.ConnectedPing{Time: 1})))
	f.dispatcher.HandleDatagram(data, remote, local)

	assert.Empty(t, f.sender.messages())
	assert.Equal(t, 0, f.registry.Len())
}

func TestNestedFrameSetIsDropped(t *testing.T) {
	f := newFixture(t)
	_, err := f.registry.GetOrCreate(remote, local)
	require.NoError(t, err)

	inner := frameSetOf(t, protocol.NewFrame(protocol.Unreliable, encode(t, protocol.ConnectedPing{Time: 1})))
	f.dispatcher.HandleDatagram(frameSetOf(t, protocol.NewFrame(protocol.Unreliable, inner)), remote, local)

	assert.Empty(t, f.sender.messages())
}

func TestFragmentedBodyIsReassembled(t *testing.T) {
	f := newFixture(t)
	_, err := f.registry.GetOrCreate(remote, local)
	require.NoError(t, err)

	body := encode(t, protocol.ConnectedPing{Time: 77})
	part := func(index uint32, chunk []byte) protocol.Frame {
		fr := protocol.NewFrame(protocol.Reliable, chunk)
		fr.Fragmented = true
		fr.CompoundSize = 2
		fr.CompoundID = 9
		fr.CompoundIndex = index
		fr.ReliableFrameIndex = index
		return fr
	}

	f.dispatcher.HandleDatagram(frameSetOf(t, part(1, body[4:])), remote, local)
	assert.Empty(t, f.sender.messages())

	f.dispatcher.HandleDatagram(frameSetOf(t, part(0, body[:4])), remote, local)
	sent := f.sender.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, protocol.ConnectedPong{PingTime: 77, PongTime: testUptime}, sent[0].Message)
}

// impostor claims the id of a built-in message without being one.
type impostor struct{ id byte }

func (m impostor) ID() byte               { return m.id }
func (impostor) Size() int                { return 0 }
func (impostor) EncodeBody(*codec.Writer) {}

func TestMismatchedMessageTypeIsDropped(t *testing.T) {
	tests := []struct {
		name string
		id   byte
	}{
		{"connected ping", protocol.IDConnectedPing},
		{"connected pong", protocol.IDConnectedPong},
		{"frame set", protocol.IDFrameSet},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.registry.GetOrCreate(remote, local)
			require.NoError(t, err)

			appID := byte(0xa0 + i)
			require.True(t, f.dispatcher.catalog.Register(appID, func(*codec.Reader) (protocol.Message, error) {
				return impostor{id: tt.id}, nil
			}))

			var tm protocol.TargetedMessage
			require.NotPanics(t, func() {
				tm = f.dispatcher.HandleDatagram([]byte{appID}, remote, local)
			})
			assert.Equal(t, impostor{id: tt.id}, tm.Message)
			assert.Empty(t, f.sender.messages())

			var warned bool
			for _, e := range f.hook.AllEntries() {
				if e.Level == logrus.WarnLevel && e.Message == "Dropped message of unexpected type" {
					warned = true
				}
			}
			assert.True(t, warned)
		})
	}
}
