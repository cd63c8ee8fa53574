// Package transport carries RakNet datagrams over the network.
//
// The core only needs two things from a transport: inbound datagrams with
// their sender and receiver addresses, and a way to send an encoded datagram
// to an address. Transport captures both; UDPTransport implements it over a
// UDP socket and doubles as the session.Sender of a registry.
//
//	udp, err := transport.NewUDPTransport("0.0.0.0:19132", logger)
//	if err != nil {
//	    return err
//	}
//	udp.RegisterHandler(func(data []byte, from, to netip.AddrPort) {
//	    dispatcher.HandleDatagram(data, from, to)
//	})
package transport
