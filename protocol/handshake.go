package protocol

import (
	"fmt"
	"net/netip"

	"github.com/opd-ai/raknet/codec"
)

// Fixed sizes of the security fields carried by the handshake.
const (
	PublicKeySize      = 64
	CookieSize         = 4
	ChallengeSize      = 32
	SecurityAnswerSize = 128
	ProofSize          = 32
	IdentitySize       = 160
)

// OpenConnectionRequest1 starts a connection attempt. The length of the
// zero padding tells the server how large a datagram reached it.
type OpenConnectionRequest1 struct {
	ProtocolVersion byte
	MTUPadding      []byte
}

// ID returns the OpenConnectionRequest1 message id.
func (OpenConnectionRequest1) ID() byte { return IDOpenConnectionRequest1 }

// Size returns the length of the OpenConnectionRequest1 body in bytes.
func (m OpenConnectionRequest1) Size() int {
	return codec.MagicSize + 1 + len(m.MTUPadding)
}

// EncodeBody writes the OpenConnectionRequest1 body that follows the id byte.
func (m OpenConnectionRequest1) EncodeBody(w *codec.Writer) {
	w.Magic()
	w.Byte(m.ProtocolVersion)
	w.Raw(m.MTUPadding)
}

func decodeOpenConnectionRequest1(r *codec.Reader) (Message, error) {
	var m OpenConnectionRequest1
	r.Magic(true)
	m.ProtocolVersion = r.Byte()
	m.MTUPadding = r.Rest(0)
	return m, r.Err()
}

// OpenConnectionReply1 answers OpenConnectionRequest1. Cookie and PublicKey
// are only on the wire when HasSecurity is set.
type OpenConnectionReply1 struct {
	ServerGUID  uint64
	HasSecurity bool
	Cookie      uint32
	PublicKey   [PublicKeySize]byte
	MTUSize     uint16
}

// ID returns the OpenConnectionReply1 message id.
func (OpenConnectionReply1) ID() byte { return IDOpenConnectionReply1 }

// Size returns the length of the OpenConnectionReply1 body in bytes.
func (m OpenConnectionReply1) Size() int {
	size := codec.MagicSize + guidSize + 1
	if m.HasSecurity {
		size += CookieSize + PublicKeySize
	}
	return size + 2
}

// EncodeBody writes the OpenConnectionReply1 body that follows the id byte.
func (m OpenConnectionReply1) EncodeBody(w *codec.Writer) {
	w.Magic()
	w.Uint64(m.ServerGUID)
	w.Bool(m.HasSecurity)
	if m.HasSecurity {
		w.Uint32(m.Cookie)
		w.Raw(m.PublicKey[:])
	}
	w.Uint16(m.MTUSize)
}

func decodeOpenConnectionReply1(r *codec.Reader) (Message, error) {
	var m OpenConnectionReply1
	r.Magic(true)
	m.ServerGUID = r.Uint64()
	m.HasSecurity = r.Bool()
	if m.HasSecurity {
		m.Cookie = r.Uint32()
		r.Fixed(m.PublicKey[:])
	}
	m.MTUSize = r.Uint16()
	return m, r.Err()
}

// OpenConnectionRequest2 echoes the cookie and, when the client holds the
// server key, carries its challenge.
//
// The security block is not flagged on the wire; the decoder recognises an
// unsecured request by its exact length (magic, address, MTU and GUID only).
type OpenConnectionRequest2 struct {
	UseSecurity          bool
	Cookie               uint32
	ClientWroteChallenge bool
	ClientChallenge      [ChallengeSize]byte
	BindingAddress       netip.AddrPort
	MTUSize              uint16
	GUID                 uint64
}

// ID returns the OpenConnectionRequest2 message id.
func (OpenConnectionRequest2) ID() byte { return IDOpenConnectionRequest2 }

// Size returns the length of the OpenConnectionRequest2 body in bytes.
func (m OpenConnectionRequest2) Size() int {
	size := codec.MagicSize
	if m.UseSecurity {
		size += CookieSize + 1
		if m.ClientWroteChallenge {
			size += ChallengeSize
		}
	}
	return size + codec.AddressSize(m.BindingAddress) + 2 + guidSize
}

// EncodeBody writes the OpenConnectionRequest2 body that follows the id byte.
func (m OpenConnectionRequest2) EncodeBody(w *codec.Writer) {
	if m.ClientWroteChallenge && !m.UseSecurity {
		w.Fail(fmt.Errorf("%w: challenge without security", ErrInvalidArgument))
		return
	}
	w.Magic()
	if m.UseSecurity {
		w.Uint32(m.Cookie)
		w.Bool(m.ClientWroteChallenge)
		if m.ClientWroteChallenge {
			w.Raw(m.ClientChallenge[:])
		}
	}
	w.Address(m.BindingAddress)
	w.Uint16(m.MTUSize)
	w.Uint64(m.GUID)
}

// unsecuredRequest2 reports whether the remaining body is exactly an address,
// an MTU and a GUID.
func unsecuredRequest2(r *codec.Reader) bool {
	version, ok := r.Peek()
	if !ok {
		return false
	}
	tail := 2 + guidSize
	switch version {
	case 4:
		return r.Len() == codec.AddressSizeIPv4+tail
	case 6:
		return r.Len() == codec.AddressSizeIPv6+tail
	}
	return false
}

func decodeOpenConnectionRequest2(r *codec.Reader) (Message, error) {
	var m OpenConnectionRequest2
	r.Magic(true)
	if r.Err() == nil && !unsecuredRequest2(r) {
		m.UseSecurity = true
		m.Cookie = r.Uint32()
		m.ClientWroteChallenge = r.Bool()
		if m.ClientWroteChallenge {
			r.Fixed(m.ClientChallenge[:])
		}
	}
	m.BindingAddress = r.Address()
	m.MTUSize = r.Uint16()
	m.GUID = r.Uint64()
	return m, r.Err()
}

// OpenConnectionReply2 commits the server to a connection slot.
type OpenConnectionReply2 struct {
	ServerGUID     uint64
	Port           uint16
	MTUSize        uint16
	DoSecurity     bool
	SecurityAnswer [SecurityAnswerSize]byte
}

// ID returns the OpenConnectionReply2 message id.
func (OpenConnectionReply2) ID() byte { return IDOpenConnectionReply2 }

// Size returns the length of the OpenConnectionReply2 body in bytes.
func (m OpenConnectionReply2) Size() int {
	size := codec.MagicSize + guidSize + 2 + 2 + 1
	if m.DoSecurity {
		size += SecurityAnswerSize
	}
	return size
}

// EncodeBody writes the OpenConnectionReply2 body that follows the id byte.
func (m OpenConnectionReply2) EncodeBody(w *codec.Writer) {
	w.Magic()
	w.Uint64(m.ServerGUID)
	w.Uint16(m.Port)
	w.Uint16(m.MTUSize)
	w.Bool(m.DoSecurity)
	if m.DoSecurity {
		w.Raw(m.SecurityAnswer[:])
	}
}

func decodeOpenConnectionReply2(r *codec.Reader) (Message, error) {
	var m OpenConnectionReply2
	r.Magic(true)
	m.ServerGUID = r.Uint64()
	m.Port = r.Uint16()
	m.MTUSize = r.Uint16()
	m.DoSecurity = r.Bool()
	if m.DoSecurity {
		r.Fixed(m.SecurityAnswer[:])
	}
	return m, r.Err()
}

// ConnectionRequest is the final handshake step. Identity is only on the
// wire when both DoSecurity and DoIdentity are set.
type ConnectionRequest struct {
	ClientGUID uint64
	Time       int64
	DoSecurity bool
	Proof      [ProofSize]byte
	DoIdentity bool
	Identity   [IdentitySize]byte
}

// ID returns the ConnectionRequest message id.
func (ConnectionRequest) ID() byte { return IDConnectionRequest }

// Size returns the length of the ConnectionRequest body in bytes.
func (m ConnectionRequest) Size() int {
	size := guidSize + timeSize + 1
	if m.DoSecurity {
		size += ProofSize + 1
		if m.DoIdentity {
			size += IdentitySize
		}
	}
	return size
}

// EncodeBody writes the ConnectionRequest body that follows the id byte.
func (m ConnectionRequest) EncodeBody(w *codec.Writer) {
	if m.DoIdentity && !m.DoSecurity {
		w.Fail(fmt.Errorf("%w: identity without security", ErrInvalidArgument))
		return
	}
	w.Uint64(m.ClientGUID)
	w.Int64(m.Time)
	w.Bool(m.DoSecurity)
	if m.DoSecurity {
		w.Raw(m.Proof[:])
		w.Bool(m.DoIdentity)
		if m.DoIdentity {
			w.Raw(m.Identity[:])
		}
	}
}

func decodeConnectionRequest(r *codec.Reader) (Message, error) {
	var m ConnectionRequest
	m.ClientGUID = r.Uint64()
	m.Time = r.Int64()
	m.DoSecurity = r.Bool()
	if m.DoSecurity {
		r.Fixed(m.Proof[:])
		m.DoIdentity = r.Bool()
		if m.DoIdentity {
			r.Fixed(m.Identity[:])
		}
	}
	return m, r.Err()
}
