package handshake

import (
	"crypto/rand"
	"fmt"
	"io"
	"net/netip"

	"github.com/opd-ai/raknet/limits"
	"github.com/opd-ai/raknet/protocol"
	"github.com/opd-ai/raknet/security"
)

// ClientConfig configures the initiator side of the handshake.
type ClientConfig struct {
	ProtocolVersion byte
	GUID            uint64
	// MTU is the datagram size probed with OpenConnectionRequest1.
	MTU int
	// RequireSecurity aborts when the server offers no key.
	RequireSecurity bool
	// KeyPolicy decides whether the server key is trusted. Nil trusts any key.
	KeyPolicy security.KeyPolicy
	// Identity, when set, is sent with secured connection requests.
	Identity *security.Identity
	Random   io.Reader
	// Now returns the RakNet time put in ConnectionRequest.
	Now func() int64
}

type clientStep int

const (
	stepIdle clientStep = iota
	stepSentRequest1
	stepSentRequest2
	stepSentConnectionRequest
	stepFailed
)

// Client walks one outgoing connection through the handshake. It builds
// the messages to send; delivering them is up to the caller.
type Client struct {
	cfg    ClientConfig
	local  netip.AddrPort
	remote netip.AddrPort

	step       clientStep
	serverGUID uint64
	serverKey  security.PublicKey
	mtu        int
	secure     *security.ClientHandshake
}

// NewClient prepares a handshake from local to remote.
func NewClient(cfg ClientConfig, local, remote netip.AddrPort) *Client {
	if cfg.ProtocolVersion == 0 {
		cfg.ProtocolVersion = DefaultProtocolVersion
	}
	if cfg.MTU == 0 {
		cfg.MTU = limits.MaxMTUSize
	}
	cfg.MTU = limits.ClampMTU(cfg.MTU)
	if cfg.KeyPolicy == nil {
		cfg.KeyPolicy = security.AcceptAnyKey
	}
	if cfg.Random == nil {
		cfg.Random = rand.Reader
	}
	if cfg.Now == nil {
		cfg.Now = func() int64 { return 0 }
	}
	return &Client{cfg: cfg, local: local, remote: remote, mtu: cfg.MTU}
}

// ServerGUID returns the GUID announced by the server.
func (c *Client) ServerGUID() uint64 {
	return c.serverGUID
}

// MTU returns the negotiated MTU.
func (c *Client) MTU() int {
	return c.mtu
}

// Secured reports whether the connection uses security.
func (c *Client) Secured() bool {
	return c.secure != nil
}

func (c *Client) expect(step clientStep) error {
	if c.step != step {
		return fmt.Errorf("%w: handshake at step %d, expected %d", ErrUnexpectedMessage, c.step, step)
	}
	return nil
}

func (c *Client) failed(err error) error {
	c.step = stepFailed
	if c.secure != nil {
		c.secure.Wipe()
	}
	return err
}

// Start returns the OpenConnectionRequest1 probing the configured MTU.
func (c *Client) Start() (protocol.OpenConnectionRequest1, error) {
	if err := c.expect(stepIdle); err != nil {
		return protocol.OpenConnectionRequest1{}, err
	}
	c.step = stepSentRequest1
	return protocol.OpenConnectionRequest1{
		ProtocolVersion: c.cfg.ProtocolVersion,
		MTUPadding:      make([]byte, limits.PaddingForMTU(c.cfg.MTU)),
	}, nil
}

// HandleReply1 checks the server key, if any, and returns the
// OpenConnectionRequest2 to send.
func (c *Client) HandleReply1(reply protocol.OpenConnectionReply1) (protocol.OpenConnectionRequest2, error) {
	var req protocol.OpenConnectionRequest2
	if err := c.expect(stepSentRequest1); err != nil {
		return req, err
	}
	c.serverGUID = reply.ServerGUID
	if reply.MTUSize != 0 {
		c.mtu = min(c.mtu, limits.ClampMTU(int(reply.MTUSize)))
	}

	if reply.HasSecurity {
		key := security.PublicKey(reply.PublicKey)
		if err := c.cfg.KeyPolicy(key); err != nil {
			return req, c.failed(fmt.Errorf("%w: %w", ErrPublicKeyMismatch, err))
		}
		secure, err := security.NewClientHandshake(c.cfg.Random)
		if err != nil {
			return req, c.failed(err)
		}
		c.serverKey = key
		c.secure = secure
		req.UseSecurity = true
		req.Cookie = reply.Cookie
		req.ClientWroteChallenge = true
		req.ClientChallenge = secure.Challenge()
	} else if c.cfg.RequireSecurity {
		return req, c.failed(publicKeyError{
			kind: protocol.ServerPublicKeyMissing,
			err:  ErrSecurityRequired,
		})
	}

	req.BindingAddress = c.remote
	req.MTUSize = uint16(c.mtu)
	req.GUID = c.cfg.GUID
	c.step = stepSentRequest2
	return req, nil
}

// HandleReply2 verifies the security answer and returns the final
// ConnectionRequest.
func (c *Client) HandleReply2(reply protocol.OpenConnectionReply2) (protocol.ConnectionRequest, error) {
	var req protocol.ConnectionRequest
	if err := c.expect(stepSentRequest2); err != nil {
		return req, err
	}
	if reply.ServerGUID != c.serverGUID {
		return req, c.failed(fmt.Errorf("%w: server %d, expected %d", ErrGUIDMismatch, reply.ServerGUID, c.serverGUID))
	}
	if reply.MTUSize != 0 {
		c.mtu = min(c.mtu, limits.ClampMTU(int(reply.MTUSize)))
	}

	req.ClientGUID = c.cfg.GUID
	req.Time = c.cfg.Now()
	if c.secure != nil {
		if !reply.DoSecurity {
			return req, c.failed(fmt.Errorf("%w: server dropped security", ErrSecurityRequired))
		}
		if err := c.secure.VerifyAnswer(c.serverKey, security.Answer(reply.SecurityAnswer)); err != nil {
			return req, c.failed(fmt.Errorf("%w: %w", ErrPublicKeyMismatch, err))
		}
		proof, err := c.secure.Proof()
		if err != nil {
			return req, c.failed(err)
		}
		req.DoSecurity = true
		req.Proof = proof
		if c.cfg.Identity != nil {
			identity, err := c.cfg.Identity.Sign(c.cfg.Random, proof)
			if err != nil {
				return req, c.failed(err)
			}
			req.DoIdentity = true
			req.Identity = identity
		}
		c.secure.Wipe()
	}
	c.step = stepSentConnectionRequest
	return req, nil
}

// HandleFailure turns a failure notification from the server into an error.
func (c *Client) HandleFailure(msg protocol.Message) error {
	switch m := msg.(type) {
	case protocol.OurSystemRequiresSecurity:
		return c.failed(ErrSecurityRequired)
	case protocol.PublicKeyMismatch:
		return c.failed(ErrPublicKeyMismatch)
	case protocol.RemoteSystemRequiresPublicKey:
		return c.failed(publicKeyError{kind: m.ErrorType, err: fmt.Errorf("reported by %s", c.remote)})
	}
	return fmt.Errorf("%w: %T", ErrUnexpectedMessage, msg)
}
