// Package session tracks RakNet peers.
//
// A Session exists per EndpointPair (remote address, local address) and
// carries the connection state machine, the connect mode, ping statistics
// and fragment reassembly buffers. The Registry owns all sessions: it
// creates them atomically on first contact, bounds their number with an LRU
// and removes sessions that stay idle longer than the configured timeout.
//
//	reg, err := session.NewRegistry(session.Config{Sender: udp, Logger: logger})
//	reg.OnRemoval(func(s *session.Session) { ... })
//	reg.Start(ctx)
//
//	s, err := reg.GetOrCreate(remote, local)
//
// Every removed session ends in IS_NOT_CONNECTED and is reported to the
// removal hooks exactly once; traffic from the same pair afterwards creates
// a fresh session.
package session
