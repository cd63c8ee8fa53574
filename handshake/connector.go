package handshake

import (
	"context"
	"fmt"
	"io"
	"net/netip"
	"sync"

	"github.com/opd-ai/raknet/protocol"
	"github.com/opd-ai/raknet/session"
	"github.com/sirupsen/logrus"
)

// Attempt is one outgoing connection. It is done once the ConnectionRequest
// has been sent or the handshake failed, and closed once its session is torn
// down, either by a refusal from the server or by removal from the registry.
type Attempt struct {
	session *session.Session
	client  *Client
	done    chan struct{}
	once    sync.Once
	err     error

	closed    chan struct{}
	closeOnce sync.Once
	cause     error
}

func newAttempt(s *session.Session, client *Client) *Attempt {
	return &Attempt{
		session: s,
		client:  client,
		done:    make(chan struct{}),
		closed:  make(chan struct{}),
	}
}

func (a *Attempt) finish(err error) {
	a.once.Do(func() {
		a.err = err
		close(a.done)
	})
}

// end finishes the attempt with err, unless it already finished, and
// records err as the reason the session went away.
func (a *Attempt) end(err error) {
	a.finish(err)
	a.closeOnce.Do(func() {
		a.cause = err
		close(a.closed)
	})
}

// requested reports whether the ConnectionRequest went out.
func (a *Attempt) requested() bool {
	select {
	case <-a.done:
		return a.err == nil
	default:
		return false
	}
}

// Session returns the session carrying the attempt.
func (a *Attempt) Session() *session.Session {
	return a.session
}

// Done is closed when the attempt finishes.
func (a *Attempt) Done() <-chan struct{} {
	return a.done
}

// Err returns the outcome once Done is closed.
func (a *Attempt) Err() error {
	select {
	case <-a.done:
		return a.err
	default:
		return nil
	}
}

// Closed is closed when the session of the attempt is torn down.
func (a *Attempt) Closed() <-chan struct{} {
	return a.closed
}

// Cause returns why the session was torn down once Closed is closed. A
// refusal sent by the server after the ConnectionRequest shows up here.
func (a *Attempt) Cause() error {
	select {
	case <-a.closed:
		return a.cause
	default:
		return nil
	}
}

// Wait blocks until the attempt finishes or ctx is done.
func (a *Attempt) Wait(ctx context.Context) error {
	select {
	case <-a.done:
		return a.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Connector runs outgoing handshakes over the sessions of a registry. An
// attempt stays tracked for the lifetime of its session so that a refusal
// arriving after the ConnectionRequest still tears the session down.
type Connector struct {
	cfg      ClientConfig
	registry *session.Registry
	logger   logrus.FieldLogger

	mu       sync.Mutex
	attempts map[*session.Session]*Attempt
}

// NewConnector returns a connector creating its sessions in registry.
func NewConnector(cfg ClientConfig, registry *session.Registry, logger logrus.FieldLogger) *Connector {
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = l
	}
	c := &Connector{
		cfg:      cfg,
		registry: registry,
		logger:   logger,
		attempts: make(map[*session.Session]*Attempt),
	}
	registry.OnRemoval(func(s *session.Session) {
		if a := c.take(s); a != nil {
			a.end(ErrSessionClosed)
		}
	})
	return c
}

func (c *Connector) take(s *session.Session) *Attempt {
	c.mu.Lock()
	defer c.mu.Unlock()
	a := c.attempts[s]
	delete(c.attempts, s)
	return a
}

func (c *Connector) lookup(s *session.Session) *Attempt {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts[s]
}

// Connect starts a handshake from local to remote.
func (c *Connector) Connect(local, remote netip.AddrPort) (*Attempt, error) {
	s, err := c.registry.GetOrCreate(remote, local)
	if err != nil {
		return nil, err
	}
	if err := s.Transition(session.IsConnecting, session.RequestedConnection); err != nil {
		return nil, err
	}

	client := NewClient(c.cfg, local, remote)
	a := newAttempt(s, client)
	c.mu.Lock()
	if old := c.attempts[s]; old != nil {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: already connected or connecting to %s", ErrUnexpectedMessage, remote)
	}
	c.attempts[s] = a
	c.mu.Unlock()

	req, err := client.Start()
	if err == nil {
		err = s.Send(req)
	}
	if err != nil {
		c.abort(s, a, err)
		return nil, err
	}
	c.logger.WithFields(logrus.Fields{
		"function": "Connect",
		"session":  s.ID().String(),
		"remote":   remote.String(),
		"mtu":      client.MTU(),
	}).Debug("Sent open connection request 1")
	return a, nil
}

func (c *Connector) abort(s *session.Session, a *Attempt, err error) {
	c.take(s)
	a.end(err)
	_ = s.Transition(session.IsDisconnected, session.NoAction)
	c.registry.Discard(s)
	c.logger.WithFields(logrus.Fields{
		"function": "abort",
		"session":  s.ID().String(),
		"remote":   s.Remote().String(),
		"error":    err.Error(),
	}).Info("Connection attempt failed")
}

// HandleOpenConnectionReply1 continues an attempt with OpenConnectionRequest2.
func (c *Connector) HandleOpenConnectionReply1(tm protocol.TargetedMessage, s *session.Session) error {
	a := c.lookup(s)
	reply, ok := tm.Message.(protocol.OpenConnectionReply1)
	if a == nil || !ok || a.requested() {
		return fmt.Errorf("%w: %s without attempt", ErrUnexpectedMessage, protocol.Name(tm.Message.ID()))
	}
	req, err := a.client.HandleReply1(reply)
	if err == nil {
		s.SetGUID(reply.ServerGUID)
		s.SetMTU(a.client.MTU())
		err = s.Send(req)
	}
	if err != nil {
		c.abort(s, a, err)
	}
	return err
}

// HandleOpenConnectionReply2 finishes an attempt with the ConnectionRequest.
func (c *Connector) HandleOpenConnectionReply2(tm protocol.TargetedMessage, s *session.Session) error {
	a := c.lookup(s)
	reply, ok := tm.Message.(protocol.OpenConnectionReply2)
	if a == nil || !ok || a.requested() {
		return fmt.Errorf("%w: %s without attempt", ErrUnexpectedMessage, protocol.Name(tm.Message.ID()))
	}
	req, err := a.client.HandleReply2(reply)
	if err == nil {
		s.SetMTU(a.client.MTU())
		err = s.Send(req)
	}
	if err != nil {
		c.abort(s, a, err)
		return err
	}
	a.finish(nil)
	c.logger.WithFields(logrus.Fields{
		"function": "HandleOpenConnectionReply2",
		"session":  s.ID().String(),
		"remote":   s.Remote().String(),
		"secured":  a.client.Secured(),
	}).Debug("Sent connection request")
	return nil
}

// HandleFailure aborts an attempt the server refused, before or after the
// ConnectionRequest was sent.
func (c *Connector) HandleFailure(tm protocol.TargetedMessage, s *session.Session) error {
	a := c.lookup(s)
	if a == nil {
		return fmt.Errorf("%w: %s without attempt", ErrUnexpectedMessage, protocol.Name(tm.Message.ID()))
	}
	err := a.client.HandleFailure(tm.Message)
	c.abort(s, a, err)
	return err
}
