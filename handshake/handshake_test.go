package handshake

import (
	"context"
	"crypto/rand"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/opd-ai/raknet/protocol"
	"github.com/opd-ai/raknet/security"
	"github.com/opd-ai/raknet/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	serverAddr = netip.MustParseAddrPort("192.168.1.1:19132")
	clientAddr = netip.MustParseAddrPort("192.168.1.10:50000")
)

type datagram struct {
	data []byte
	to   netip.AddrPort
}

type outbox struct {
	mu   sync.Mutex
	sent []datagram
}

func (o *outbox) SendTo(data []byte, to netip.AddrPort) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, datagram{data: data, to: to})
	return nil
}

func (o *outbox) drain() []datagram {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := o.sent
	o.sent = nil
	return out
}

type harness struct {
	t         *testing.T
	server    *Server
	serverReg *session.Registry
	serverOut *outbox
	connector *Connector
	clientReg *session.Registry
	clientOut *outbox
	removed   []*session.Session
	handleErr []error
}

func newHarness(t *testing.T, scfg ServerConfig, ccfg ClientConfig) *harness {
	t.Helper()
	h := &harness{t: t, serverOut: &outbox{}, clientOut: &outbox{}}

	var err error
	h.serverReg, err = session.NewRegistry(session.Config{Sender: h.serverOut})
	require.NoError(t, err)
	h.clientReg, err = session.NewRegistry(session.Config{Sender: h.clientOut})
	require.NoError(t, err)
	t.Cleanup(func() {
		h.serverReg.Close()
		h.clientReg.Close()
	})
	h.serverReg.OnRemoval(func(s *session.Session) { h.removed = append(h.removed, s) })

	h.server = NewServer(scfg, h.serverReg)
	h.connector = NewConnector(ccfg, h.clientReg, nil)
	return h
}

// toServer delivers one client datagram to the server handlers.
func (h *harness) toServer(data []byte) error {
	tm := protocol.DecodeTargeted(data, clientAddr, serverAddr)
	switch tm.Message.(type) {
	case protocol.OpenConnectionRequest1:
		s, err := h.serverReg.GetOrCreate(tm.Sender, tm.Receiver)
		if err != nil {
			return err
		}
		return h.server.HandleOpenConnectionRequest1(tm, s)
	case protocol.OpenConnectionRequest2:
		if s, ok := h.serverReg.GetIfPresent(tm.Sender, tm.Receiver); ok {
			return h.server.HandleOpenConnectionRequest2(tm, s)
		}
	case protocol.ConnectionRequest:
		if s, ok := h.serverReg.GetIfPresent(tm.Sender, tm.Receiver); ok {
			return h.server.HandleConnectionRequest(tm, s)
		}
	}
	return nil
}

// toClient delivers one server datagram to the connector handlers.
func (h *harness) toClient(data []byte) error {
	tm := protocol.DecodeTargeted(data, serverAddr, clientAddr)
	s, ok := h.clientReg.GetIfPresent(tm.Sender, tm.Receiver)
	if !ok {
		return nil
	}
	switch tm.Message.(type) {
	case protocol.OpenConnectionReply1:
		return h.connector.HandleOpenConnectionReply1(tm, s)
	case protocol.OpenConnectionReply2:
		return h.connector.HandleOpenConnectionReply2(tm, s)
	case protocol.OurSystemRequiresSecurity, protocol.PublicKeyMismatch, protocol.RemoteSystemRequiresPublicKey:
		return h.connector.HandleFailure(tm, s)
	}
	return nil
}

// run shuttles datagrams until both sides fall silent.
func (h *harness) run() {
	for i := 0; i < 10; i++ {
		fromClient := h.clientOut.drain()
		for _, d := range fromClient {
			assert.Equal(h.t, serverAddr, d.to)
			if err := h.toServer(d.data); err != nil {
				h.handleErr = append(h.handleErr, err)
			}
		}
		fromServer := h.serverOut.drain()
		for _, d := range fromServer {
			assert.Equal(h.t, clientAddr, d.to)
			if err := h.toClient(d.data); err != nil {
				h.handleErr = append(h.handleErr, err)
			}
		}
		if len(fromClient) == 0 && len(fromServer) == 0 {
			return
		}
	}
}

func (h *harness) connect() *Attempt {
	a, err := h.connector.Connect(clientAddr, serverAddr)
	require.NoError(h.t, err)
	h.run()
	select {
	case <-a.Done():
	default:
		h.t.Fatal("attempt did not finish")
	}
	return a
}

func serverSession(t *testing.T, h *harness) *session.Session {
	t.Helper()
	s, ok := h.serverReg.GetIfPresent(clientAddr, serverAddr)
	require.True(t, ok)
	return s
}

func TestOpenConnectionRequest1MovesToPending(t *testing.T) {
	h := newHarness(t, ServerConfig{GUID: 42}, ClientConfig{})

	data, err := protocol.Encode(protocol.OpenConnectionRequest1{ProtocolVersion: 6, MTUPadding: make([]byte, 1354)})
	require.NoError(t, err)
	require.NoError(t, h.toServer(data))

	s := serverSession(t, h)
	assert.Equal(t, session.IsPending, s.ConnectionState())
	assert.Equal(t, session.UnverifiedSender, s.ConnectMode())
	assert.Equal(t, 1400, s.MTU())

	sent := h.serverOut.drain()
	require.Len(t, sent, 1)
	assert.Equal(t, protocol.OpenConnectionReply1{ServerGUID: 42, MTUSize: 1400}, protocol.Decode(sent[0].data))
}

func TestUnsecuredHandshake(t *testing.T) {
	h := newHarness(t, ServerConfig{GUID: 1}, ClientConfig{GUID: 2, MTU: 1400})

	a := h.connect()
	require.NoError(t, a.Err())
	assert.Empty(t, h.handleErr)

	s := serverSession(t, h)
	assert.Equal(t, session.IsConnected, s.ConnectionState())
	assert.Equal(t, session.Connected, s.ConnectMode())
	assert.Equal(t, uint64(2), s.GUID())
	assert.Equal(t, 1400, s.MTU())

	client := a.Session()
	assert.Equal(t, session.IsConnecting, client.ConnectionState())
	assert.Equal(t, uint64(1), client.GUID())
}

func TestSecuredHandshakeWithIdentity(t *testing.T) {
	keys, err := security.GenerateServerKeys(rand.Reader)
	require.NoError(t, err)
	id, err := security.GenerateIdentity(rand.Reader)
	require.NoError(t, err)

	h := newHarness(t,
		ServerConfig{GUID: 1, Keys: keys, RequireSecurity: true, RequireIdentity: true,
			IdentityPolicy: security.AllowedIdentities(id.PublicKey())},
		ClientConfig{GUID: 2, RequireSecurity: true, KeyPolicy: security.PinnedKey(keys.PublicKey()), Identity: id},
	)

	a := h.connect()
	require.NoError(t, a.Err())
	assert.True(t, a.client.Secured())

	s := serverSession(t, h)
	assert.Equal(t, session.IsConnected, s.ConnectionState())
	assert.Equal(t, session.Connected, s.ConnectMode())
}

// closedWith checks that the client side of an attempt was torn down.
func closedWith(t *testing.T, h *harness, a *Attempt, target error) {
	t.Helper()
	select {
	case <-a.Closed():
	default:
		t.Fatal("attempt still open")
	}
	assert.ErrorIs(t, a.Cause(), target)
	assert.Equal(t, 0, h.clientReg.Len())
	_, ok := h.clientReg.GetIfPresent(serverAddr, clientAddr)
	assert.False(t, ok)
	assert.Equal(t, session.IsNotConnected, a.Session().ConnectionState())
	assert.Equal(t, session.NoAction, a.Session().ConnectMode())
}

func TestTamperedProofIsRejected(t *testing.T) {
	keys, err := security.GenerateServerKeys(rand.Reader)
	require.NoError(t, err)
	h := newHarness(t, ServerConfig{GUID: 1, Keys: keys}, ClientConfig{GUID: 2})

	a, err := h.connector.Connect(clientAddr, serverAddr)
	require.NoError(t, err)
	// OCR1 -> OCReply1 -> OCR2 -> OCReply2 -> ConnectionRequest
	require.NoError(t, h.toServer(h.clientOut.drain()[0].data))
	require.NoError(t, h.toClient(h.serverOut.drain()[0].data))
	require.NoError(t, h.toServer(h.clientOut.drain()[0].data))
	require.NoError(t, h.toClient(h.serverOut.drain()[0].data))
	require.NoError(t, a.Err())

	s := serverSession(t, h)
	req := protocol.Decode(h.clientOut.drain()[0].data).(protocol.ConnectionRequest)
	require.True(t, req.DoSecurity)
	req.Proof[0] ^= 0xff
	data, err := protocol.Encode(req)
	require.NoError(t, err)

	err = h.toServer(data)
	assert.ErrorIs(t, err, ErrPublicKeyMismatch)

	sent := h.serverOut.drain()
	require.Len(t, sent, 1)
	assert.Equal(t, protocol.PublicKeyMismatch{}, protocol.Decode(sent[0].data))

	_, ok := h.serverReg.GetIfPresent(clientAddr, serverAddr)
	assert.False(t, ok)
	require.Len(t, h.removed, 1)
	assert.Same(t, s, h.removed[0])
	assert.Equal(t, session.IsNotConnected, s.ConnectionState())

	// The refusal reaches the client after its request went out.
	assert.ErrorIs(t, h.toClient(sent[0].data), ErrPublicKeyMismatch)
	closedWith(t, h, a, ErrPublicKeyMismatch)
}

func TestIdentityRequired(t *testing.T) {
	keys, err := security.GenerateServerKeys(rand.Reader)
	require.NoError(t, err)
	h := newHarness(t, ServerConfig{GUID: 1, Keys: keys, RequireIdentity: true}, ClientConfig{GUID: 2})

	a, err := h.connector.Connect(clientAddr, serverAddr)
	require.NoError(t, err)
	h.run()

	// The request went out, then the server refused it.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, a.Wait(ctx))

	assert.Equal(t, 0, h.serverReg.Len())
	require.Len(t, h.handleErr, 2)
	assert.ErrorIs(t, h.handleErr[0], ErrPublicKeyRequired)
	assert.ErrorIs(t, h.handleErr[1], ErrPublicKeyRequired)
	closedWith(t, h, a, ErrPublicKeyRequired)
}

func TestRefusalAfterConnectionRequest(t *testing.T) {
	tests := []struct {
		name   string
		notify protocol.Message
		want   error
	}{
		{"security required", protocol.OurSystemRequiresSecurity{}, ErrSecurityRequired},
		{"public key mismatch", protocol.PublicKeyMismatch{}, ErrPublicKeyMismatch},
		{"identity invalid", protocol.RemoteSystemRequiresPublicKey{ErrorType: protocol.ClientIdentityInvalid}, ErrPublicKeyRequired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, ServerConfig{GUID: 1}, ClientConfig{GUID: 2})
			a := h.connect()
			require.NoError(t, a.Err())
			assert.Empty(t, h.handleErr)

			data, err := protocol.Encode(tt.notify)
			require.NoError(t, err)
			assert.ErrorIs(t, h.toClient(data), tt.want)
			closedWith(t, h, a, tt.want)
			assert.NoError(t, a.Err())
		})
	}
}

func TestConnectedAttemptIgnoresStaleReplies(t *testing.T) {
	h := newHarness(t, ServerConfig{GUID: 1}, ClientConfig{GUID: 2})
	a := h.connect()
	require.NoError(t, a.Err())

	data, err := protocol.Encode(protocol.OpenConnectionReply2{ServerGUID: 1, MTUSize: 1400, Port: serverAddr.Port()})
	require.NoError(t, err)
	assert.ErrorIs(t, h.toClient(data), ErrUnexpectedMessage)

	select {
	case <-a.Closed():
		t.Fatal("stale reply tore the session down")
	default:
	}
	assert.Equal(t, 1, h.clientReg.Len())
	assert.Equal(t, session.IsConnecting, a.Session().ConnectionState())
}

func TestConnectedAttemptClosesWithSession(t *testing.T) {
	h := newHarness(t, ServerConfig{GUID: 1}, ClientConfig{GUID: 2})
	a := h.connect()
	require.NoError(t, a.Err())
	assert.NoError(t, a.Cause())

	require.True(t, h.clientReg.Discard(a.Session()))
	<-a.Closed()
	assert.ErrorIs(t, a.Cause(), ErrSessionClosed)
	assert.NoError(t, a.Err())
}

func TestRequiredSecurityRefusesPlainRequest2(t *testing.T) {
	keys, err := security.GenerateServerKeys(rand.Reader)
	require.NoError(t, err)
	h := newHarness(t, ServerConfig{GUID: 1, Keys: keys, RequireSecurity: true}, ClientConfig{})

	data, err := protocol.Encode(protocol.OpenConnectionRequest1{ProtocolVersion: 6})
	require.NoError(t, err)
	require.NoError(t, h.toServer(data))
	h.serverOut.drain()

	data, err = protocol.Encode(protocol.OpenConnectionRequest2{BindingAddress: serverAddr, MTUSize: 1400, GUID: 5})
	require.NoError(t, err)
	assert.ErrorIs(t, h.toServer(data), ErrSecurityRequired)

	sent := h.serverOut.drain()
	require.Len(t, sent, 1)
	assert.Equal(t, protocol.OurSystemRequiresSecurity{}, protocol.Decode(sent[0].data))
	assert.Equal(t, 0, h.serverReg.Len())
}

func TestBadCookieDroppedSilently(t *testing.T) {
	keys, err := security.GenerateServerKeys(rand.Reader)
	require.NoError(t, err)
	h := newHarness(t, ServerConfig{GUID: 1, Keys: keys}, ClientConfig{})

	data, err := protocol.Encode(protocol.OpenConnectionRequest1{ProtocolVersion: 6})
	require.NoError(t, err)
	require.NoError(t, h.toServer(data))
	reply := protocol.Decode(h.serverOut.drain()[0].data).(protocol.OpenConnectionReply1)

	data, err = protocol.Encode(protocol.OpenConnectionRequest2{
		UseSecurity:    true,
		Cookie:         reply.Cookie + 1,
		BindingAddress: serverAddr,
		MTUSize:        1400,
	})
	require.NoError(t, err)
	assert.ErrorIs(t, h.toServer(data), ErrInvalidCookie)
	assert.Empty(t, h.serverOut.drain())
	assert.Equal(t, 0, h.serverReg.Len())
}

func TestIncompatibleProtocolVersion(t *testing.T) {
	h := newHarness(t, ServerConfig{}, ClientConfig{ProtocolVersion: 7})

	a, err := h.connector.Connect(clientAddr, serverAddr)
	require.NoError(t, err)
	h.run()

	// The server drops the probe without answering.
	select {
	case <-a.Done():
		t.Fatal("attempt finished without a reply")
	default:
	}
	require.Len(t, h.handleErr, 1)
	assert.ErrorIs(t, h.handleErr[0], ErrIncompatibleProtocol)
	assert.Equal(t, 0, h.serverReg.Len())
}

func TestClientRequiresServerKey(t *testing.T) {
	h := newHarness(t, ServerConfig{GUID: 1}, ClientConfig{RequireSecurity: true})

	a := h.connect()
	assert.ErrorIs(t, a.Err(), ErrPublicKeyRequired)
	assert.Equal(t, 0, h.clientReg.Len())
}

func TestClientRejectsUntrustedKey(t *testing.T) {
	keys, err := security.GenerateServerKeys(rand.Reader)
	require.NoError(t, err)
	other, err := security.GenerateServerKeys(rand.Reader)
	require.NoError(t, err)
	h := newHarness(t, ServerConfig{GUID: 1, Keys: keys}, ClientConfig{KeyPolicy: security.PinnedKey(other.PublicKey())})

	a := h.connect()
	assert.ErrorIs(t, a.Err(), ErrPublicKeyMismatch)
	assert.ErrorIs(t, a.Err(), security.ErrUntrustedKey)
}

func TestRepeatedRequest1RestartsSession(t *testing.T) {
	h := newHarness(t, ServerConfig{GUID: 1}, ClientConfig{GUID: 2})
	require.NoError(t, h.connect().Err())
	first := serverSession(t, h)

	data, err := protocol.Encode(protocol.OpenConnectionRequest1{ProtocolVersion: 6})
	require.NoError(t, err)
	require.NoError(t, h.toServer(data))

	second := serverSession(t, h)
	assert.NotSame(t, first, second)
	assert.Equal(t, session.IsNotConnected, first.ConnectionState())
	assert.Equal(t, session.IsPending, second.ConnectionState())
}
