package protocol

import "net/netip"

// TargetedMessage is a message together with the endpoints it travels
// between. Inbound messages have Sender set to the remote peer and Receiver
// to the local socket; outbound messages the reverse.
type TargetedMessage struct {
	Sender   netip.AddrPort
	Receiver netip.AddrPort
	Message  Message
}

// DecodeTargeted decodes data received by receiver from sender using the
// built-in catalog.
func DecodeTargeted(data []byte, sender, receiver netip.AddrPort) TargetedMessage {
	return TargetedMessage{Sender: sender, Receiver: receiver, Message: Decode(data)}
}

// DecodeTargeted decodes data received by receiver from sender.
func (c *Catalog) DecodeTargeted(data []byte, sender, receiver netip.AddrPort) TargetedMessage {
	return TargetedMessage{Sender: sender, Receiver: receiver, Message: c.Decode(data)}
}

// EncodeTargeted encodes tm for transmission, returning the datagram, the
// destination (Receiver) and the source (Sender).
func EncodeTargeted(tm TargetedMessage) (data []byte, destination, source netip.AddrPort, err error) {
	data, err = Encode(tm.Message)
	if err != nil {
		return nil, netip.AddrPort{}, netip.AddrPort{}, err
	}
	return data, tm.Receiver, tm.Sender, nil
}
