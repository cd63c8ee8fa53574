package protocol

import "fmt"

// Reliability selects the delivery guarantees of a frame. The numeric value
// is the 3-bit code carried in the frame flags.
type Reliability byte

const (
	Unreliable Reliability = iota
	UnreliableSequenced
	Reliable
	ReliableOrdered
	ReliableSequenced
	UnreliableWithAckReceipt
	UnreliableSequencedWithAckReceipt
	ReliableWithAckReceipt
	ReliableOrderedWithAckReceipt
	ReliableSequencedWithAckReceipt
)

type reliabilityInfo struct {
	name        string
	reliable    bool
	ordered     bool
	sequenced   bool
	requiresAck bool
}

var reliabilityTable = [...]reliabilityInfo{
	Unreliable:                        {"UNRELIABLE", false, false, false, false},
	UnreliableSequenced:               {"UNRELIABLE_SEQUENCED", false, false, true, false},
	Reliable:                          {"RELIABLE", true, false, false, false},
	ReliableOrdered:                   {"RELIABLE_ORDERED", true, true, false, false},
	ReliableSequenced:                 {"RELIABLE_SEQUENCED", true, false, true, false},
	UnreliableWithAckReceipt:          {"UNRELIABLE_WITH_ACK_RECEIPT", false, false, false, true},
	UnreliableSequencedWithAckReceipt: {"UNRELIABLE_SEQUENCED_WITH_ACK_RECEIPT", false, false, true, true},
	ReliableWithAckReceipt:            {"RELIABLE_WITH_ACK_RECEIPT", true, false, false, true},
	ReliableOrderedWithAckReceipt:     {"RELIABLE_ORDERED_WITH_ACK_RECEIPT", true, true, false, true},
	ReliableSequencedWithAckReceipt:   {"RELIABLE_SEQUENCED_WITH_ACK_RECEIPT", true, false, true, true},
}

// ReliabilityCount is the number of defined reliability classes.
const ReliabilityCount = len(reliabilityTable)

// ReliabilityOf maps a wire code to its reliability class.
func ReliabilityOf(code byte) (Reliability, bool) {
	if int(code) >= ReliabilityCount {
		return 0, false
	}
	return Reliability(code), true
}

// Valid reports whether r is one of the defined classes.
func (r Reliability) Valid() bool {
	return int(r) < ReliabilityCount
}

// IsReliable reports whether frames of this class carry a reliable frame index.
func (r Reliability) IsReliable() bool {
	return r.Valid() && reliabilityTable[r].reliable
}

// IsOrdered reports whether frames of this class carry an ordered index and channel.
func (r Reliability) IsOrdered() bool {
	return r.Valid() && reliabilityTable[r].ordered
}

// IsSequenced reports whether frames of this class carry a sequenced index.
func (r Reliability) IsSequenced() bool {
	return r.Valid() && reliabilityTable[r].sequenced
}

// RequiresAck reports whether the sender asked for a delivery receipt.
func (r Reliability) RequiresAck() bool {
	return r.Valid() && reliabilityTable[r].requiresAck
}

// wireCodeLimit is the number of codes the 3-bit flags field can carry.
const wireCodeLimit = 1 << 3

// WireCode returns the code written into frame flags. The two ack-receipt
// classes above 7 do not fit in three bits; they are sent as their base
// class since the receipt request never leaves the sending peer.
func (r Reliability) WireCode() byte {
	switch {
	case r == ReliableOrderedWithAckReceipt:
		return byte(ReliableOrdered)
	case r == ReliableSequencedWithAckReceipt:
		return byte(ReliableSequenced)
	case byte(r) < wireCodeLimit:
		return byte(r)
	}
	return byte(Unreliable)
}

// String returns the class name as used in logs.
func (r Reliability) String() string {
	if !r.Valid() {
		return fmt.Sprintf("Reliability(%d)", byte(r))
	}
	return reliabilityTable[r].name
}
