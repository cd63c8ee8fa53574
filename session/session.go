package session

import (
	"fmt"
	"net/netip"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/opd-ai/raknet/protocol"
)

// EndpointPair identifies a session: From is the remote peer and To the
// local socket address the traffic arrived on.
type EndpointPair struct {
	From netip.AddrPort
	To   netip.AddrPort
}

func (k EndpointPair) String() string {
	return k.From.String() + "->" + k.To.String()
}

// Sender hands an encoded datagram to the transport.
type Sender interface {
	SendTo(data []byte, to netip.AddrPort) error
}

// Session is the state kept for one endpoint pair. The key never changes;
// everything else is guarded by the session lock.
type Session struct {
	id     uuid.UUID
	key    EndpointPair
	sender Sender
	clock  Clock

	mu         sync.RWMutex
	state      ConnectionState
	mode       ConnectMode
	createdAt  time.Time
	lastActive time.Time
	guid       uint64
	mtu        int
	pings      Pings
	fragments  map[uint16]*compound
}

func newSession(key EndpointPair, sender Sender, clock Clock) *Session {
	now := clock.Now()
	return &Session{
		id:         uuid.New(),
		key:        key,
		sender:     sender,
		clock:      clock,
		state:      IsPending,
		mode:       NoAction,
		createdAt:  now,
		lastActive: now,
	}
}

// ID returns a random identifier used to tell sessions apart in logs.
func (s *Session) ID() uuid.UUID {
	return s.id
}

// Key returns the endpoint pair of the session.
func (s *Session) Key() EndpointPair {
	return s.key
}

// Remote returns the peer address.
func (s *Session) Remote() netip.AddrPort {
	return s.key.From
}

// Local returns the local socket address.
func (s *Session) Local() netip.AddrPort {
	return s.key.To
}

// Send encodes msg and hands it to the transport addressed to the peer.
func (s *Session) Send(msg protocol.Message) error {
	if s.sender == nil {
		return ErrNoSender
	}
	data, dst, _, err := protocol.EncodeTargeted(protocol.TargetedMessage{
		Sender:   s.key.To,
		Receiver: s.key.From,
		Message:  msg,
	})
	if err != nil {
		return err
	}
	s.Touch()
	if err := s.sender.SendTo(data, dst); err != nil {
		return fmt.Errorf("send %s to %s: %w", protocol.Name(msg.ID()), dst, err)
	}
	return nil
}

// ConnectionState returns the current state.
func (s *Session) ConnectionState() ConnectionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// ConnectMode returns the current mode.
func (s *Session) ConnectMode() ConnectMode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mode
}

// Transition moves the session to state and mode. A state may not move
// back to an earlier stage and IS_NOT_CONNECTED is final.
func (s *Session) Transition(state ConnectionState, mode ConnectMode) error {
	if !mode.Valid() {
		return fmt.Errorf("%w: %v", ErrInvalidTransition, mode)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.state.CanMoveTo(state) {
		return fmt.Errorf("%w: %v to %v", ErrInvalidTransition, s.state, state)
	}
	s.state = state
	s.mode = mode
	return nil
}

// markRemoved puts the session in its terminal state.
func (s *Session) markRemoved() {
	s.mu.Lock()
	s.state = IsNotConnected
	s.fragments = nil
	s.mu.Unlock()
}

// Touch resets the idle clock.
func (s *Session) Touch() {
	now := s.clock.Now()
	s.mu.Lock()
	s.lastActive = now
	s.mu.Unlock()
}

// LastActive returns when the session was last touched.
func (s *Session) LastActive() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActive
}

// CreatedAt returns when the session was created.
func (s *Session) CreatedAt() time.Time {
	return s.createdAt
}

// GUID returns the peer GUID learned during the handshake.
func (s *Session) GUID() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.guid
}

// SetGUID records the peer GUID.
func (s *Session) SetGUID(guid uint64) {
	s.mu.Lock()
	s.guid = guid
	s.mu.Unlock()
}

// MTU returns the negotiated MTU, zero before negotiation.
func (s *Session) MTU() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mtu
}

// SetMTU records the negotiated MTU.
func (s *Session) SetMTU(mtu int) {
	s.mu.Lock()
	s.mtu = mtu
	s.mu.Unlock()
}

// Pings returns a snapshot of the round-trip statistics.
func (s *Session) Pings() Pings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pings
}

// RecordPong adds a sample from a pong that arrived at now. Times are in
// milliseconds on the local RakNet clock. Pongs answering pings from the
// future are ignored.
func (s *Session) RecordPong(pong protocol.ConnectedPong, now int64) bool {
	rtt := now - pong.PingTime
	if rtt < 0 {
		return false
	}
	sample := PingSample{
		RoundTrip:         time.Duration(rtt) * time.Millisecond,
		ClockDifferential: time.Duration(pong.PongTime-(pong.PingTime+rtt/2)) * time.Millisecond,
	}
	s.mu.Lock()
	s.pings.add(sample)
	s.mu.Unlock()
	return true
}

func (s *Session) String() string {
	return fmt.Sprintf("session %s (%s)", s.id, s.key)
}
