package raknet

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"net/netip"
	"time"

	"github.com/opd-ai/raknet/banlist"
	"github.com/opd-ai/raknet/config"
	"github.com/opd-ai/raknet/dispatch"
	"github.com/opd-ai/raknet/handshake"
	"github.com/opd-ai/raknet/protocol"
	"github.com/opd-ai/raknet/security"
	"github.com/opd-ai/raknet/session"
	"github.com/opd-ai/raknet/transport"
	"github.com/sirupsen/logrus"
)

// Peer is a RakNet endpoint on one datagram transport. It accepts incoming
// handshakes and starts outgoing ones.
type Peer struct {
	options *config.Options
	logger  logrus.FieldLogger
	guid    uint64
	start   time.Time

	transport  transport.Transport
	catalog    *protocol.Catalog
	registry   *session.Registry
	dispatcher *dispatch.Dispatcher
	server     *handshake.Server
	connector  *handshake.Connector
	bans       *banlist.Store
	keys       *security.ServerKeys

	cancel context.CancelFunc
}

// New creates a peer listening on the UDP address of options. Nil options
// select the defaults; a nil logger discards all output.
func New(options *config.Options, logger logrus.FieldLogger) (*Peer, error) {
	if options == nil {
		options = config.NewOptions()
	}
	if err := options.Validate(); err != nil {
		return nil, err
	}
	udp, err := transport.NewUDPTransport(options.ListenAddress, logger)
	if err != nil {
		return nil, err
	}
	p, err := NewWithTransport(options, udp, logger)
	if err != nil {
		udp.Close()
		return nil, err
	}
	return p, nil
}

// NewWithTransport creates a peer on an existing transport, which the peer
// closes on Close. options.ListenAddress is ignored.
func NewWithTransport(options *config.Options, tr transport.Transport, logger logrus.FieldLogger) (*Peer, error) {
	if options == nil {
		options = config.NewOptions()
	}
	if err := options.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = l
	}

	p := &Peer{
		options:   options,
		logger:    logger,
		guid:      options.GUID,
		start:     time.Now(),
		transport: tr,
	}
	if p.guid == 0 {
		var b [8]byte
		if _, err := rand.Read(b[:]); err != nil {
			return nil, fmt.Errorf("generate guid: %w", err)
		}
		p.guid = binary.BigEndian.Uint64(b[:])
	}

	if err := p.setup(); err != nil {
		p.release()
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.registry.Start(ctx)
	p.transport.RegisterHandler(func(data []byte, sender, receiver netip.AddrPort) {
		p.dispatcher.HandleDatagram(data, sender, receiver)
	})

	logger.WithFields(logrus.Fields{
		"function": "New",
		"local":    p.transport.LocalAddr().String(),
		"guid":     p.guid,
		"secured":  p.keys != nil,
	}).Info("RakNet peer started")
	return p, nil
}

func (p *Peer) setup() error {
	var err error
	o := p.options

	if o.BanList == "" {
		p.bans, err = banlist.OpenMemory(p.logger)
	} else {
		p.bans, err = banlist.Open(o.BanList, p.logger)
	}
	if err != nil {
		return err
	}

	p.registry, err = session.NewRegistry(session.Config{
		Capacity:      o.MaxSessions,
		IdleTimeout:   o.IdleTimeout,
		SweepInterval: o.SweepInterval,
		Sender:        p.transport,
		Logger:        p.logger,
	})
	if err != nil {
		return err
	}
	p.registry.OnNewSession(p.bans.Admit)

	if o.Security.Enabled {
		if p.keys, err = security.GenerateServerKeys(nil); err != nil {
			return err
		}
	}
	identities, err := o.Security.IdentityPolicy()
	if err != nil {
		return err
	}
	p.server = handshake.NewServer(handshake.ServerConfig{
		ProtocolVersion: o.ProtocolVersion,
		GUID:            p.guid,
		Keys:            p.keys,
		RequireSecurity: o.Security.RequireSecurity,
		RequireIdentity: o.Security.RequireIdentity,
		IdentityPolicy:  identities,
		Logger:          p.logger,
	}, p.registry)

	keyPolicy, err := o.Security.KeyPolicy()
	if err != nil {
		return err
	}
	identity, err := o.Security.Identity()
	if err != nil {
		return err
	}
	p.connector = handshake.NewConnector(handshake.ClientConfig{
		ProtocolVersion: o.ProtocolVersion,
		GUID:            p.guid,
		MTU:             o.MTU,
		RequireSecurity: o.Security.RequireSecurity,
		KeyPolicy:       keyPolicy,
		Identity:        identity,
		Now:             p.RakNetTime,
	}, p.registry, p.logger)

	p.catalog = protocol.NewCatalog(p.logger)
	p.dispatcher = dispatch.New(dispatch.Config{
		Catalog:  p.catalog,
		Registry: p.registry,
		Uptime:   p.RakNetTime,
		Logger:   p.logger,
	})
	p.dispatcher.Block(p.bans.Blocked)
	p.bindHandshake()
	return nil
}

func (p *Peer) bindHandshake() {
	d := p.dispatcher
	d.Handle(protocol.IDOpenConnectionRequest1, p.server.HandleOpenConnectionRequest1)
	d.HandleExisting(protocol.IDOpenConnectionRequest2, p.server.HandleOpenConnectionRequest2)
	d.HandleExisting(protocol.IDConnectionRequest, p.server.HandleConnectionRequest)

	d.HandleExisting(protocol.IDOpenConnectionReply1, p.connector.HandleOpenConnectionReply1)
	d.HandleExisting(protocol.IDOpenConnectionReply2, p.connector.HandleOpenConnectionReply2)
	for _, id := range []byte{
		protocol.IDRemoteSystemRequiresPublicKey,
		protocol.IDOurSystemRequiresSecurity,
		protocol.IDPublicKeyMismatch,
	} {
		d.HandleExisting(id, p.connector.HandleFailure)
	}
}

// RakNetTime returns the milliseconds elapsed since the peer started.
func (p *Peer) RakNetTime() int64 {
	return time.Since(p.start).Milliseconds()
}

// GUID returns the identifier this peer announces in handshakes.
func (p *Peer) GUID() uint64 {
	return p.guid
}

// LocalAddr returns the address the peer is listening on.
func (p *Peer) LocalAddr() netip.AddrPort {
	return p.transport.LocalAddr()
}

// PublicKey returns the server key offered to clients. The boolean is false
// when security is disabled.
func (p *Peer) PublicKey() (security.PublicKey, bool) {
	if p.keys == nil {
		return security.PublicKey{}, false
	}
	return p.keys.PublicKey(), true
}

// Catalog returns the message catalog, for registering application messages.
func (p *Peer) Catalog() *protocol.Catalog {
	return p.catalog
}

// Handle binds an application handler for messages arriving on established
// sessions, either as datagrams or inside frame sets.
func (p *Peer) Handle(id byte, h dispatch.Handler) {
	p.dispatcher.HandleExisting(id, h)
}

// Registry returns the session registry, for hooks and inspection.
func (p *Peer) Registry() *session.Registry {
	return p.registry
}

// Bans returns the ban list consulted for every inbound datagram.
func (p *Peer) Bans() *banlist.Store {
	return p.bans
}

// Connect runs the client handshake against remote and returns the session
// once the connection request has been sent. A refusal the server sends
// after that request disconnects the session and removes it from the
// registry.
func (p *Peer) Connect(ctx context.Context, remote netip.AddrPort) (*session.Session, error) {
	attempt, err := p.connector.Connect(p.transport.LocalAddr(), remote)
	if err != nil {
		return nil, err
	}
	if err := attempt.Wait(ctx); err != nil {
		return nil, err
	}
	return attempt.Session(), nil
}

// Close stops the peer, dropping every session, and closes its transport.
func (p *Peer) Close() error {
	if p.cancel != nil {
		p.cancel()
	}
	err := p.transport.Close()
	if rerr := p.release(); err == nil {
		err = rerr
	}
	return err
}

// release frees what setup built, leaving the transport to the caller.
func (p *Peer) release() error {
	var firstErr error
	if p.registry != nil {
		firstErr = p.registry.Close()
	}
	if p.bans != nil {
		if err := p.bans.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if p.keys != nil {
		p.keys.Wipe()
	}
	return firstErr
}
