// Package raknet implements a RakNet-compatible messaging peer over UDP.
//
// RakNet is the datagram protocol used by many multiplayer games. This
// package provides the facade that wires the subsystems of the module
// together: the wire codec (codec, protocol), the session registry
// (session), the inbound pipeline (dispatch), the connection handshake and
// its security layer (handshake, security), the ban list (banlist) and the
// UDP socket (transport).
//
// # Getting Started
//
// Create a Peer from options and connect to a server:
//
//	options := config.NewOptions()
//	options.ListenAddress = "0.0.0.0:0"
//
//	peer, err := raknet.New(options, logrus.StandardLogger())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer peer.Close()
//
//	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
//	defer cancel()
//	sess, err := peer.Connect(ctx, netip.MustParseAddrPort("203.0.113.7:19132"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	sess.Send(protocol.ConnectedPing{Time: peer.RakNetTime()})
//
// A peer answers incoming handshakes as soon as it is created. Sessions
// move from IS_PENDING through IS_CONNECTING to IS_CONNECTED; see the
// session package for the full state machine.
//
// # Security
//
// With Options.Security.Enabled the peer offers a 64-byte public key in
// OpenConnectionReply1 and answers client challenges. Clients may pin the
// server key and attach an Ed25519 identity:
//
//	options.Security.Enabled = true
//	options.Security.RequireSecurity = true
//	options.Security.ServerKey = hex.EncodeToString(pinned[:])
//
// # Application Messages
//
// Ids outside the built-in range can be added to the catalog and bound to
// handlers:
//
//	peer.Catalog().Register(0xa6, decodeChat)
//	peer.Handle(0xa6, func(tm protocol.TargetedMessage, s *session.Session) error {
//	    return nil
//	})
//
// # Banning
//
// Every datagram is checked against the ban list before it is decoded, and
// banned addresses never get a session:
//
//	peer.Bans().Ban(ctx, addr, "flooding", time.Hour)
package raknet
