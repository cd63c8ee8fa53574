package security

import (
	"crypto/ed25519"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"io"

	"github.com/flynn/noise"
	"github.com/opd-ai/raknet/protocol"
	"golang.org/x/crypto/hkdf"
)

const sharedInfo = "raknet handshake"

var (
	answerLabel = []byte("answer")
	proofLabel  = []byte("proof")
)

// Challenge is the client's ephemeral X25519 key sent in
// OpenConnectionRequest2.
type Challenge [protocol.ChallengeSize]byte

// Answer is the server reply to a Challenge: its ephemeral X25519 key, an
// Ed25519 signature over challenge and ephemeral key, and a tag proving
// knowledge of the shared secret.
type Answer [protocol.SecurityAnswerSize]byte

// Proof is the client's confirmation of the shared secret.
type Proof [protocol.ProofSize]byte

// deriveShared turns the two DH results into the 32-byte session secret.
func deriveShared(ephemeralDH, staticDH []byte, challenge Challenge, serverEphemeral []byte) ([]byte, error) {
	ikm := append(append([]byte(nil), ephemeralDH...), staticDH...)
	salt := append(append([]byte(nil), challenge[:]...), serverEphemeral...)
	shared := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, ikm, salt, []byte(sharedInfo)), shared); err != nil {
		return nil, fmt.Errorf("derive shared secret: %w", err)
	}
	ZeroBytes(ikm)
	return shared, nil
}

func signedPart(challenge Challenge, serverEphemeral []byte) []byte {
	return append(append([]byte(nil), challenge[:]...), serverEphemeral...)
}

// ServerHandshake is the server half of one secured handshake.
type ServerHandshake struct {
	challenge Challenge
	shared    []byte
}

// Answer answers challenge with a fresh ephemeral key.
func (k *ServerKeys) Answer(random io.Reader, challenge Challenge) (*ServerHandshake, Answer, error) {
	var answer Answer
	ephemeral, err := noise.DH25519.GenerateKeypair(random)
	if err != nil {
		return nil, answer, fmt.Errorf("generate ephemeral key: %w", err)
	}
	defer ZeroBytes(ephemeral.Private)

	ephemeralDH, err := noise.DH25519.DH(ephemeral.Private, challenge[:])
	if err != nil {
		return nil, answer, fmt.Errorf("%w: %w", ErrInvalidChallenge, err)
	}
	staticDH, err := noise.DH25519.DH(k.static.Private, challenge[:])
	if err != nil {
		return nil, answer, fmt.Errorf("%w: %w", ErrInvalidChallenge, err)
	}
	shared, err := deriveShared(ephemeralDH, staticDH, challenge, ephemeral.Public)
	if err != nil {
		return nil, answer, err
	}

	sig := ed25519.Sign(k.signing, signedPart(challenge, ephemeral.Public))
	tag := mac(shared, answerLabel, challenge[:], ephemeral.Public)

	copy(answer[:dhSize], ephemeral.Public)
	copy(answer[dhSize:dhSize+signatureSize], sig)
	copy(answer[dhSize+signatureSize:], tag[:])
	return &ServerHandshake{challenge: challenge, shared: shared}, answer, nil
}

// VerifyProof checks the proof carried by a ConnectionRequest.
func (h *ServerHandshake) VerifyProof(proof Proof) error {
	want := mac(h.shared, proofLabel, h.challenge[:])
	if subtle.ConstantTimeCompare(want[:], proof[:]) != 1 {
		return ErrInvalidProof
	}
	return nil
}

// Wipe erases the shared secret.
func (h *ServerHandshake) Wipe() {
	ZeroBytes(h.shared)
}

// ClientHandshake is the client half of one secured handshake.
type ClientHandshake struct {
	ephemeral noise.DHKey
	challenge Challenge
	shared    []byte
}

// NewClientHandshake creates the ephemeral key behind the challenge.
func NewClientHandshake(random io.Reader) (*ClientHandshake, error) {
	ephemeral, err := noise.DH25519.GenerateKeypair(random)
	if err != nil {
		return nil, fmt.Errorf("generate ephemeral key: %w", err)
	}
	c := &ClientHandshake{ephemeral: ephemeral}
	copy(c.challenge[:], ephemeral.Public)
	return c, nil
}

// Challenge returns the value to send in OpenConnectionRequest2.
func (c *ClientHandshake) Challenge() Challenge {
	return c.challenge
}

// VerifyAnswer checks the server answer against the server key and derives
// the shared secret.
func (c *ClientHandshake) VerifyAnswer(server PublicKey, answer Answer) error {
	serverEphemeral := answer[:dhSize]
	sig := answer[dhSize : dhSize+signatureSize]
	tag := answer[dhSize+signatureSize:]

	if !ed25519.Verify(ed25519.PublicKey(server.signing()), signedPart(c.challenge, serverEphemeral), sig) {
		return fmt.Errorf("%w: bad signature", ErrInvalidAnswer)
	}
	ephemeralDH, err := noise.DH25519.DH(c.ephemeral.Private, serverEphemeral)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidAnswer, err)
	}
	staticDH, err := noise.DH25519.DH(c.ephemeral.Private, server.dh())
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidAnswer, err)
	}
	shared, err := deriveShared(ephemeralDH, staticDH, c.challenge, serverEphemeral)
	if err != nil {
		return err
	}
	want := mac(shared, answerLabel, c.challenge[:], serverEphemeral)
	if subtle.ConstantTimeCompare(want[:], tag) != 1 {
		ZeroBytes(shared)
		return fmt.Errorf("%w: bad confirmation tag", ErrInvalidAnswer)
	}
	c.shared = shared
	ZeroBytes(c.ephemeral.Private)
	return nil
}

// Proof returns the value to send in ConnectionRequest. It is only valid
// after VerifyAnswer succeeded.
func (c *ClientHandshake) Proof() (Proof, error) {
	if c.shared == nil {
		return Proof{}, ErrNoSharedSecret
	}
	return Proof(mac(c.shared, proofLabel, c.challenge[:])), nil
}

// Wipe erases the ephemeral key and the shared secret.
func (c *ClientHandshake) Wipe() {
	ZeroBytes(c.ephemeral.Private)
	ZeroBytes(c.shared)
}
