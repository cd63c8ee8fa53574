// Package handshake implements the five-step RakNet connection handshake.
//
// Server answers OpenConnectionRequest1, OpenConnectionRequest2 and
// ConnectionRequest on sessions handed to it by the dispatcher, moving each
// session from IS_PENDING through IS_CONNECTING to IS_CONNECTED. Any
// failure sends the matching notification (OurSystemRequiresSecurity,
// PublicKeyMismatch or RemoteSystemRequiresPublicKey), marks the session
// IS_DISCONNECTED and discards it from the registry.
//
// Client builds the initiator's messages step by step, and Connector runs
// Clients over registry sessions for outgoing connections.
package handshake
