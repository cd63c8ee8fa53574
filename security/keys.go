package security

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"io"
	"net/netip"
	"runtime"

	"github.com/flynn/noise"
	"github.com/opd-ai/raknet/codec"
	"github.com/opd-ai/raknet/protocol"
	"golang.org/x/crypto/blake2b"
)

const (
	dhSize        = 32
	signatureSize = ed25519.SignatureSize
	cookieKeySize = 32
)

// PublicKey is the 64-byte server key announced in OpenConnectionReply1:
// the static X25519 key followed by the Ed25519 verification key.
type PublicKey [protocol.PublicKeySize]byte

func (k PublicKey) dh() []byte      { return k[:dhSize] }
func (k PublicKey) signing() []byte { return k[dhSize:] }

// ServerKeys is the long-term key material of a server that accepts secured
// connections.
type ServerKeys struct {
	static    noise.DHKey
	signing   ed25519.PrivateKey
	cookieKey [cookieKeySize]byte
}

// GenerateServerKeys creates fresh server keys from random.
func GenerateServerKeys(random io.Reader) (*ServerKeys, error) {
	if random == nil {
		random = rand.Reader
	}
	static, err := noise.DH25519.GenerateKeypair(random)
	if err != nil {
		return nil, fmt.Errorf("generate static key: %w", err)
	}
	_, signing, err := ed25519.GenerateKey(random)
	if err != nil {
		return nil, fmt.Errorf("generate signing key: %w", err)
	}
	k := &ServerKeys{static: static, signing: signing}
	if _, err := io.ReadFull(random, k.cookieKey[:]); err != nil {
		return nil, fmt.Errorf("generate cookie key: %w", err)
	}
	return k, nil
}

// PublicKey returns the key clients pin or check.
func (k *ServerKeys) PublicKey() PublicKey {
	var pub PublicKey
	copy(pub[:dhSize], k.static.Public)
	copy(pub[dhSize:], k.signing.Public().(ed25519.PublicKey))
	return pub
}

// Cookie returns the address-bound cookie sent in OpenConnectionReply1.
func (k *ServerKeys) Cookie(addr netip.AddrPort) uint32 {
	w := codec.NewWriter(codec.AddressSize(addr))
	w.Address(addr)
	sum := mac(k.cookieKey[:], w.Bytes())
	return codec.NewReader(sum[:protocol.CookieSize]).Uint32()
}

// ValidCookie reports whether cookie was issued to addr.
func (k *ServerKeys) ValidCookie(addr netip.AddrPort, cookie uint32) bool {
	return subtle.ConstantTimeEq(int32(k.Cookie(addr)), int32(cookie)) == 1
}

// Wipe erases the private key material.
func (k *ServerKeys) Wipe() {
	ZeroBytes(k.static.Private)
	ZeroBytes(k.signing)
	ZeroBytes(k.cookieKey[:])
}

// mac is keyed BLAKE2b-256 over the concatenated parts.
func mac(key []byte, parts ...[]byte) [32]byte {
	h, err := blake2b.New256(key)
	if err != nil {
		// Keys are at most 32 bytes here; blake2b accepts up to 64.
		panic(err)
	}
	for _, p := range parts {
		h.Write(p)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// ZeroBytes erases the contents of a byte slice containing sensitive data.
func ZeroBytes(data []byte) {
	for i := range data {
		data[i] = 0
	}
	runtime.KeepAlive(data)
}
