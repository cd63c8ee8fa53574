package protocol

import (
	"fmt"

	"github.com/opd-ai/raknet/codec"
)

// PublicKeyError says which piece of key material the remote system missed.
type PublicKeyError byte

const (
	ServerPublicKeyMissing PublicKeyError = iota
	ClientIdentityMissing
	ClientIdentityInvalid

	publicKeyErrorCount = iota
)

// String returns the name of the error kind.
func (e PublicKeyError) String() string {
	switch e {
	case ServerPublicKeyMissing:
		return "ServerPublicKeyMissing"
	case ClientIdentityMissing:
		return "ClientIdentityMissing"
	case ClientIdentityInvalid:
		return "ClientIdentityInvalid"
	}
	return fmt.Sprintf("PublicKeyError(%d)", byte(e))
}

// RemoteSystemRequiresPublicKey aborts a handshake because key material was
// missing or invalid.
type RemoteSystemRequiresPublicKey struct {
	ErrorType PublicKeyError
}

// ID returns the RemoteSystemRequiresPublicKey message id.
func (RemoteSystemRequiresPublicKey) ID() byte { return IDRemoteSystemRequiresPublicKey }

// Size returns the length of the RemoteSystemRequiresPublicKey body in bytes.
func (RemoteSystemRequiresPublicKey) Size() int { return 1 }

// EncodeBody writes the RemoteSystemRequiresPublicKey body that follows the id byte.
func (m RemoteSystemRequiresPublicKey) EncodeBody(w *codec.Writer) {
	if m.ErrorType >= publicKeyErrorCount {
		w.Fail(fmt.Errorf("%w: %v", ErrInvalidArgument, m.ErrorType))
		return
	}
	w.Byte(byte(m.ErrorType))
}

func decodeRemoteSystemRequiresPublicKey(r *codec.Reader) (Message, error) {
	e := PublicKeyError(r.Byte())
	if r.Err() == nil && e >= publicKeyErrorCount {
		r.Fail(fmt.Errorf("%w: public key error type %d", ErrMalformed, byte(e)))
	}
	return RemoteSystemRequiresPublicKey{ErrorType: e}, r.Err()
}

// OurSystemRequiresSecurity aborts a handshake because the sender only
// accepts secured connections.
type OurSystemRequiresSecurity struct{}

// ID returns the OurSystemRequiresSecurity message id.
func (OurSystemRequiresSecurity) ID() byte { return IDOurSystemRequiresSecurity }

// Size returns the length of the OurSystemRequiresSecurity body in bytes.
func (OurSystemRequiresSecurity) Size() int { return 0 }

// EncodeBody writes nothing; OurSystemRequiresSecurity has no body.
func (OurSystemRequiresSecurity) EncodeBody(*codec.Writer) {}

func decodeOurSystemRequiresSecurity(*codec.Reader) (Message, error) {
	return OurSystemRequiresSecurity{}, nil
}

// PublicKeyMismatch aborts a handshake because the proof or the server key
// did not match.
type PublicKeyMismatch struct{}

// ID returns the PublicKeyMismatch message id.
func (PublicKeyMismatch) ID() byte { return IDPublicKeyMismatch }

// Size returns the length of the PublicKeyMismatch body in bytes.
func (PublicKeyMismatch) Size() int { return 0 }

// EncodeBody writes nothing; PublicKeyMismatch has no body.
func (PublicKeyMismatch) EncodeBody(*codec.Writer) {}

func decodePublicKeyMismatch(*codec.Reader) (Message, error) {
	return PublicKeyMismatch{}, nil
}

// OutOfBandInternal carries application data outside a connection.
type OutOfBandInternal struct {
	GUID  uint64
	Magic [codec.MagicSize]byte
	Data  []byte
}

// ID returns the OutOfBandInternal message id.
func (OutOfBandInternal) ID() byte { return IDOutOfBandInternal }

// Size returns the length of the OutOfBandInternal body in bytes.
func (m OutOfBandInternal) Size() int {
	return guidSize + codec.MagicSize + len(m.Data)
}

// EncodeBody writes the OutOfBandInternal body that follows the id byte.
func (m OutOfBandInternal) EncodeBody(w *codec.Writer) {
	w.Uint64(m.GUID)
	w.Raw(m.Magic[:])
	w.Raw(m.Data)
}

func decodeOutOfBandInternal(r *codec.Reader) (Message, error) {
	var m OutOfBandInternal
	m.GUID = r.Uint64()
	r.Fixed(m.Magic[:])
	m.Data = r.Rest(0)
	return m, r.Err()
}

// SndReceiptAcked reports that the message with Serial was acknowledged.
type SndReceiptAcked struct {
	Serial uint32
}

// ID returns the SndReceiptAcked message id.
func (SndReceiptAcked) ID() byte { return IDSndReceiptAcked }

// Size returns the length of the SndReceiptAcked body in bytes.
func (SndReceiptAcked) Size() int { return 4 }

// EncodeBody writes the SndReceiptAcked body that follows the id byte.
func (m SndReceiptAcked) EncodeBody(w *codec.Writer) {
	w.Uint32(m.Serial)
}

func decodeSndReceiptAcked(r *codec.Reader) (Message, error) {
	m := SndReceiptAcked{Serial: r.Uint32()}
	return m, r.Err()
}

// SndReceiptLoss reports that the message with Serial was lost.
type SndReceiptLoss struct {
	Serial uint32
}

// ID returns the SndReceiptLoss message id.
func (SndReceiptLoss) ID() byte { return IDSndReceiptLoss }

// Size returns the length of the SndReceiptLoss body in bytes.
func (SndReceiptLoss) Size() int { return 4 }

// EncodeBody writes the SndReceiptLoss body that follows the id byte.
func (m SndReceiptLoss) EncodeBody(w *codec.Writer) {
	w.Uint32(m.Serial)
}

func decodeSndReceiptLoss(r *codec.Reader) (Message, error) {
	m := SndReceiptLoss{Serial: r.Uint32()}
	return m, r.Err()
}
