package session

import "fmt"

// ConnectionState is the lifecycle stage of a session.
type ConnectionState int

const (
	IsPending ConnectionState = iota
	IsConnecting
	IsConnected
	IsDisconnecting
	IsSilentlyDisconnecting
	IsDisconnected
	IsNotConnected
)

var stateNames = [...]string{
	IsPending:               "IS_PENDING",
	IsConnecting:            "IS_CONNECTING",
	IsConnected:             "IS_CONNECTED",
	IsDisconnecting:         "IS_DISCONNECTING",
	IsSilentlyDisconnecting: "IS_SILENTLY_DISCONNECTING",
	IsDisconnected:          "IS_DISCONNECTED",
	IsNotConnected:          "IS_NOT_CONNECTED",
}

// stateRank orders states for the no-going-back rule. The two disconnecting
// states share a rank so a session may switch between them.
var stateRank = [...]int{
	IsPending:               0,
	IsConnecting:            1,
	IsConnected:             2,
	IsDisconnecting:         3,
	IsSilentlyDisconnecting: 3,
	IsDisconnected:          4,
	IsNotConnected:          5,
}

// Valid reports whether s is a defined state.
func (s ConnectionState) Valid() bool {
	return s >= IsPending && s <= IsNotConnected
}

func (s ConnectionState) String() string {
	if !s.Valid() {
		return fmt.Sprintf("ConnectionState(%d)", int(s))
	}
	return stateNames[s]
}

// CanMoveTo reports whether a session in state s may enter next.
func (s ConnectionState) CanMoveTo(next ConnectionState) bool {
	return s.Valid() && next.Valid() && s != IsNotConnected && stateRank[next] >= stateRank[s]
}

// ConnectMode records what the local side intends to do with a connection.
// It is tracked independently of ConnectionState.
type ConnectMode int

const (
	NoAction ConnectMode = iota
	DisconnectASAP
	DisconnectASAPSilently
	DisconnectOnNoAck
	RequestedConnection
	HandlingConnectionRequest
	UnverifiedSender
	Connected
)

var modeNames = [...]string{
	NoAction:                  "NO_ACTION",
	DisconnectASAP:            "DISCONNECT_ASAP",
	DisconnectASAPSilently:    "DISCONNECT_ASAP_SILENTLY",
	DisconnectOnNoAck:         "DISCONNECT_ON_NO_ACK",
	RequestedConnection:       "REQUESTED_CONNECTION",
	HandlingConnectionRequest: "HANDLING_CONNECTION_REQUEST",
	UnverifiedSender:          "UNVERIFIED_SENDER",
	Connected:                 "CONNECTED",
}

// Valid reports whether m is a defined mode.
func (m ConnectMode) Valid() bool {
	return m >= NoAction && m <= Connected
}

func (m ConnectMode) String() string {
	if !m.Valid() {
		return fmt.Sprintf("ConnectMode(%d)", int(m))
	}
	return modeNames[m]
}
