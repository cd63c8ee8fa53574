package security

import (
	"crypto/ed25519"
	"crypto/subtle"
	"errors"
)

var (
	// ErrInvalidChallenge indicates a challenge that is not a usable X25519 key.
	ErrInvalidChallenge = errors.New("security: invalid challenge")
	// ErrInvalidAnswer indicates a server answer that does not verify.
	ErrInvalidAnswer = errors.New("security: invalid answer")
	// ErrInvalidProof indicates a client proof that does not match.
	ErrInvalidProof = errors.New("security: invalid proof")
	// ErrInvalidIdentity indicates a malformed or badly signed identity.
	ErrInvalidIdentity = errors.New("security: invalid identity")
	// ErrUntrustedKey indicates a key rejected by a trust policy.
	ErrUntrustedKey = errors.New("security: untrusted key")
	// ErrNoSharedSecret indicates a proof requested before the answer was verified.
	ErrNoSharedSecret = errors.New("security: no shared secret")
)

// KeyPolicy decides whether a client trusts a server key.
type KeyPolicy func(key PublicKey) error

// AcceptAnyKey trusts every server key.
func AcceptAnyKey(PublicKey) error { return nil }

// PinnedKey trusts only want.
func PinnedKey(want PublicKey) KeyPolicy {
	return func(key PublicKey) error {
		if subtle.ConstantTimeCompare(want[:], key[:]) != 1 {
			return ErrUntrustedKey
		}
		return nil
	}
}

// IdentityPolicy decides whether a server accepts a client identity.
type IdentityPolicy func(key ed25519.PublicKey) error

// AcceptAnyIdentity accepts every correctly signed identity.
func AcceptAnyIdentity(ed25519.PublicKey) error { return nil }

// AllowedIdentities accepts only the listed client keys.
func AllowedIdentities(keys ...ed25519.PublicKey) IdentityPolicy {
	return func(key ed25519.PublicKey) error {
		for _, k := range keys {
			if k.Equal(key) {
				return nil
			}
		}
		return ErrUntrustedKey
	}
}
