package codec

// MagicSize is the length of the offline message magic.
const MagicSize = 16

// Magic prefixes every unconnected and handshake message so stray UDP traffic
// can be told apart from RakNet traffic.
var Magic = [MagicSize]byte{
	0x00, 0xff, 0xff, 0x00,
	0xfe, 0xfe, 0xfe, 0xfe,
	0xfd, 0xfd, 0xfd, 0xfd,
	0x12, 0x34, 0x56, 0x78,
}

// IsMagic reports whether b starts with the offline message magic.
func IsMagic(b []byte) bool {
	if len(b) < MagicSize {
		return false
	}
	return [MagicSize]byte(b[:MagicSize]) == Magic
}
