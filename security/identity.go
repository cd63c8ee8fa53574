package security

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"io"

	"github.com/opd-ai/raknet/protocol"
)

const identityNonceSize = protocol.IdentitySize - ed25519.PublicKeySize - signatureSize

// IdentityBlock is the 160-byte client identity sent in ConnectionRequest:
// the client Ed25519 key, a random nonce, and a signature over nonce and
// proof.
type IdentityBlock [protocol.IdentitySize]byte

// Identity is a long-term client signing key.
type Identity struct {
	key ed25519.PrivateKey
}

// GenerateIdentity creates a new client identity from random.
func GenerateIdentity(random io.Reader) (*Identity, error) {
	if random == nil {
		random = rand.Reader
	}
	_, key, err := ed25519.GenerateKey(random)
	if err != nil {
		return nil, fmt.Errorf("generate identity: %w", err)
	}
	return &Identity{key: key}, nil
}

// NewIdentityFromSeed restores an identity from its 32-byte seed.
func NewIdentityFromSeed(seed []byte) (*Identity, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("%w: seed is %d bytes", ErrInvalidIdentity, len(seed))
	}
	return &Identity{key: ed25519.NewKeyFromSeed(seed)}, nil
}

// PublicKey returns the verification key servers see.
func (id *Identity) PublicKey() ed25519.PublicKey {
	return id.key.Public().(ed25519.PublicKey)
}

// Sign binds the identity to proof.
func (id *Identity) Sign(random io.Reader, proof Proof) (IdentityBlock, error) {
	if random == nil {
		random = rand.Reader
	}
	var block IdentityBlock
	pub := block[:ed25519.PublicKeySize]
	nonce := block[ed25519.PublicKeySize : ed25519.PublicKeySize+identityNonceSize]
	copy(pub, id.PublicKey())
	if _, err := io.ReadFull(random, nonce); err != nil {
		return block, fmt.Errorf("generate identity nonce: %w", err)
	}
	sig := ed25519.Sign(id.key, identityMessage(nonce, proof))
	copy(block[ed25519.PublicKeySize+identityNonceSize:], sig)
	return block, nil
}

// VerifyIdentity checks that block was signed over proof and returns the
// client key it carries.
func VerifyIdentity(block IdentityBlock, proof Proof) (ed25519.PublicKey, error) {
	pub := ed25519.PublicKey(append([]byte(nil), block[:ed25519.PublicKeySize]...))
	nonce := block[ed25519.PublicKeySize : ed25519.PublicKeySize+identityNonceSize]
	sig := block[ed25519.PublicKeySize+identityNonceSize:]
	if !ed25519.Verify(pub, identityMessage(nonce, proof), sig) {
		return nil, ErrInvalidIdentity
	}
	return pub, nil
}

func identityMessage(nonce []byte, proof Proof) []byte {
	return append(append([]byte(nil), nonce...), proof[:]...)
}
