package handshake

import "errors"

var (
	// ErrIncompatibleProtocol indicates an OpenConnectionRequest1 for another protocol version.
	ErrIncompatibleProtocol = errors.New("handshake: incompatible protocol version")
	// ErrInvalidCookie indicates an OpenConnectionRequest2 echoing a cookie this server never issued.
	ErrInvalidCookie = errors.New("handshake: invalid cookie")
	// ErrSecurityRequired indicates a peer that refused to secure the connection.
	ErrSecurityRequired = errors.New("handshake: security required")
	// ErrPublicKeyMismatch indicates a proof or server key that did not match.
	ErrPublicKeyMismatch = errors.New("handshake: public key mismatch")
	// ErrPublicKeyRequired indicates missing or invalid key material.
	ErrPublicKeyRequired = errors.New("handshake: public key required")
	// ErrUnexpectedMessage indicates a handshake message out of order.
	ErrUnexpectedMessage = errors.New("handshake: unexpected message")
	// ErrGUIDMismatch indicates a ConnectionRequest from a different GUID than OpenConnectionRequest2.
	ErrGUIDMismatch = errors.New("handshake: guid mismatch")
	// ErrSessionClosed indicates the session went away before the handshake finished.
	ErrSessionClosed = errors.New("handshake: session closed")
)
