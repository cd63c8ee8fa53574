package handshake

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/opd-ai/raknet/limits"
	"github.com/opd-ai/raknet/protocol"
	"github.com/opd-ai/raknet/security"
	"github.com/opd-ai/raknet/session"
	"github.com/sirupsen/logrus"
)

// DefaultProtocolVersion is the RakNet protocol version spoken when none is
// configured.
const DefaultProtocolVersion byte = 6

// ServerConfig configures the responder side of the handshake.
type ServerConfig struct {
	ProtocolVersion byte
	GUID            uint64
	// Keys enables security. Without keys every connection is unsecured.
	Keys *security.ServerKeys
	// RequireSecurity refuses clients that do not secure the connection.
	RequireSecurity bool
	// RequireIdentity refuses secured clients that send no identity.
	RequireIdentity bool
	IdentityPolicy  security.IdentityPolicy
	Random          io.Reader
	Logger          logrus.FieldLogger
}

// Server answers incoming connection attempts.
type Server struct {
	cfg      ServerConfig
	registry *session.Registry
	logger   logrus.FieldLogger

	mu      sync.Mutex
	pending map[*session.Session]*security.ServerHandshake
}

// NewServer returns a responder bound to registry.
func NewServer(cfg ServerConfig, registry *session.Registry) *Server {
	if cfg.ProtocolVersion == 0 {
		cfg.ProtocolVersion = DefaultProtocolVersion
	}
	if cfg.Random == nil {
		cfg.Random = rand.Reader
	}
	if cfg.IdentityPolicy == nil {
		cfg.IdentityPolicy = security.AcceptAnyIdentity
	}
	if cfg.Logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		cfg.Logger = l
	}
	s := &Server{
		cfg:      cfg,
		registry: registry,
		logger:   cfg.Logger,
		pending:  make(map[*session.Session]*security.ServerHandshake),
	}
	registry.OnRemoval(s.forget)
	return s
}

func (srv *Server) secured() bool {
	return srv.cfg.Keys != nil
}

func (srv *Server) forget(s *session.Session) {
	srv.mu.Lock()
	hs := srv.pending[s]
	delete(srv.pending, s)
	srv.mu.Unlock()
	if hs != nil {
		hs.Wipe()
	}
}

func (srv *Server) logFields(function string, s *session.Session) logrus.FieldLogger {
	return srv.logger.WithFields(logrus.Fields{
		"function": function,
		"session":  s.ID().String(),
		"remote":   s.Remote().String(),
	})
}

// fail notifies the peer, if notify is set, and tears the session down.
func (srv *Server) fail(s *session.Session, notify protocol.Message, cause error) error {
	logger := srv.logFields("fail", s).WithField("error", cause.Error())
	if notify != nil {
		if err := s.Send(notify); err != nil {
			logger.WithField("send_error", err.Error()).Warn("Failed to send handshake failure")
		}
	}
	_ = s.Transition(session.IsDisconnected, session.NoAction)
	srv.registry.Discard(s)
	logger.Info("Handshake failed")
	return cause
}

// HandleOpenConnectionRequest1 answers the MTU probe that starts a
// connection.
func (srv *Server) HandleOpenConnectionRequest1(tm protocol.TargetedMessage, s *session.Session) error {
	req, ok := tm.Message.(protocol.OpenConnectionRequest1)
	if !ok {
		return fmt.Errorf("%w: %T", ErrUnexpectedMessage, tm.Message)
	}

	if s.ConnectionState() != session.IsPending {
		// A fresh attempt from a known pair restarts from scratch.
		srv.registry.Discard(s)
		var err error
		if s, err = srv.registry.GetOrCreate(tm.Sender, tm.Receiver); err != nil {
			return err
		}
	}

	if req.ProtocolVersion != srv.cfg.ProtocolVersion {
		return srv.fail(s, nil, fmt.Errorf("%w: got %d, want %d",
			ErrIncompatibleProtocol, req.ProtocolVersion, srv.cfg.ProtocolVersion))
	}

	mtu := limits.MTUFromPadding(len(req.MTUPadding))
	s.SetMTU(mtu)
	if err := s.Transition(session.IsPending, session.UnverifiedSender); err != nil {
		return err
	}

	reply := protocol.OpenConnectionReply1{
		ServerGUID: srv.cfg.GUID,
		MTUSize:    uint16(mtu),
	}
	if srv.secured() {
		reply.HasSecurity = true
		reply.Cookie = srv.cfg.Keys.Cookie(tm.Sender)
		reply.PublicKey = srv.cfg.Keys.PublicKey()
	}

	srv.logFields("HandleOpenConnectionRequest1", s).WithFields(logrus.Fields{
		"mtu":      mtu,
		"security": reply.HasSecurity,
	}).Debug("Replying to open connection request 1")
	return s.Send(reply)
}

// HandleOpenConnectionRequest2 validates the cookie, answers the challenge
// and reserves the connection.
func (srv *Server) HandleOpenConnectionRequest2(tm protocol.TargetedMessage, s *session.Session) error {
	req, ok := tm.Message.(protocol.OpenConnectionRequest2)
	if !ok {
		return fmt.Errorf("%w: %T", ErrUnexpectedMessage, tm.Message)
	}
	if s.ConnectionState() != session.IsPending || s.ConnectMode() != session.UnverifiedSender {
		return fmt.Errorf("%w: open connection request 2 in %v/%v",
			ErrUnexpectedMessage, s.ConnectionState(), s.ConnectMode())
	}

	reply := protocol.OpenConnectionReply2{
		ServerGUID: srv.cfg.GUID,
		Port:       tm.Receiver.Port(),
	}

	if srv.secured() {
		if req.UseSecurity && !srv.cfg.Keys.ValidCookie(tm.Sender, req.Cookie) {
			return srv.fail(s, nil, ErrInvalidCookie)
		}
		if !req.UseSecurity || !req.ClientWroteChallenge {
			if srv.cfg.RequireSecurity {
				return srv.fail(s, protocol.OurSystemRequiresSecurity{}, ErrSecurityRequired)
			}
		} else {
			hs, answer, err := srv.cfg.Keys.Answer(srv.cfg.Random, security.Challenge(req.ClientChallenge))
			if err != nil {
				return srv.fail(s, protocol.PublicKeyMismatch{}, fmt.Errorf("%w: %w", ErrPublicKeyMismatch, err))
			}
			srv.mu.Lock()
			srv.pending[s] = hs
			srv.mu.Unlock()
			reply.DoSecurity = true
			reply.SecurityAnswer = answer
		}
	}

	mtu := limits.ClampMTU(int(req.MTUSize))
	if current := s.MTU(); current != 0 {
		mtu = min(mtu, current)
	}
	s.SetMTU(mtu)
	s.SetGUID(req.GUID)
	reply.MTUSize = uint16(mtu)

	if err := s.Transition(session.IsConnecting, session.HandlingConnectionRequest); err != nil {
		return err
	}
	srv.logFields("HandleOpenConnectionRequest2", s).WithFields(logrus.Fields{
		"guid":     req.GUID,
		"mtu":      mtu,
		"security": reply.DoSecurity,
	}).Debug("Replying to open connection request 2")
	return s.Send(reply)
}

// HandleConnectionRequest checks the proof and identity and completes the
// connection.
func (srv *Server) HandleConnectionRequest(tm protocol.TargetedMessage, s *session.Session) error {
	req, ok := tm.Message.(protocol.ConnectionRequest)
	if !ok {
		return fmt.Errorf("%w: %T", ErrUnexpectedMessage, tm.Message)
	}
	if s.ConnectionState() != session.IsConnecting || s.ConnectMode() != session.HandlingConnectionRequest {
		return fmt.Errorf("%w: connection request in %v/%v",
			ErrUnexpectedMessage, s.ConnectionState(), s.ConnectMode())
	}
	if req.ClientGUID != s.GUID() {
		return srv.fail(s, nil, fmt.Errorf("%w: %d, expected %d", ErrGUIDMismatch, req.ClientGUID, s.GUID()))
	}

	srv.mu.Lock()
	hs := srv.pending[s]
	srv.mu.Unlock()

	if hs != nil {
		if err := srv.verify(req, hs); err != nil {
			var notify protocol.Message = protocol.PublicKeyMismatch{}
			var pkErr publicKeyError
			switch {
			case errors.Is(err, ErrSecurityRequired):
				notify = protocol.OurSystemRequiresSecurity{}
			case errors.As(err, &pkErr):
				notify = protocol.RemoteSystemRequiresPublicKey{ErrorType: pkErr.kind}
			}
			return srv.fail(s, notify, err)
		}
	} else if srv.cfg.RequireSecurity {
		return srv.fail(s, protocol.OurSystemRequiresSecurity{}, ErrSecurityRequired)
	}
	srv.forget(s)

	if err := s.Transition(session.IsConnected, session.Connected); err != nil {
		return err
	}
	srv.logFields("HandleConnectionRequest", s).WithFields(logrus.Fields{
		"guid":     req.ClientGUID,
		"secured":  hs != nil,
		"identity": req.DoIdentity,
	}).Info("Connection established")
	return nil
}

// publicKeyError carries the RemoteSystemRequiresPublicKey reason.
type publicKeyError struct {
	kind protocol.PublicKeyError
	err  error
}

func (e publicKeyError) Error() string {
	return fmt.Sprintf("%v: %v: %v", ErrPublicKeyRequired, e.kind, e.err)
}

func (e publicKeyError) Unwrap() []error {
	return []error{ErrPublicKeyRequired, e.err}
}

func (srv *Server) verify(req protocol.ConnectionRequest, hs *security.ServerHandshake) error {
	if !req.DoSecurity {
		return ErrSecurityRequired
	}
	proof := security.Proof(req.Proof)
	if err := hs.VerifyProof(proof); err != nil {
		return fmt.Errorf("%w: %w", ErrPublicKeyMismatch, err)
	}
	if !req.DoIdentity {
		if srv.cfg.RequireIdentity {
			return publicKeyError{kind: protocol.ClientIdentityMissing, err: security.ErrInvalidIdentity}
		}
		return nil
	}
	key, err := security.VerifyIdentity(security.IdentityBlock(req.Identity), proof)
	if err != nil {
		return publicKeyError{kind: protocol.ClientIdentityInvalid, err: err}
	}
	if err := srv.cfg.IdentityPolicy(key); err != nil {
		return publicKeyError{kind: protocol.ClientIdentityInvalid, err: err}
	}
	return nil
}
