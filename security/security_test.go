package security

import (
	"crypto/rand"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func handshake(t *testing.T) (*ServerKeys, *ClientHandshake, *ServerHandshake, Answer) {
	t.Helper()
	keys, err := GenerateServerKeys(rand.Reader)
	require.NoError(t, err)
	client, err := NewClientHandshake(rand.Reader)
	require.NoError(t, err)
	server, answer, err := keys.Answer(rand.Reader, client.Challenge())
	require.NoError(t, err)
	return keys, client, server, answer
}

func TestHandshakeAgreesOnProof(t *testing.T) {
	keys, client, server, answer := handshake(t)

	_, err := client.Proof()
	assert.ErrorIs(t, err, ErrNoSharedSecret)

	require.NoError(t, client.VerifyAnswer(keys.PublicKey(), answer))
	proof, err := client.Proof()
	require.NoError(t, err)
	assert.NoError(t, server.VerifyProof(proof))

	proof[0] ^= 0x01
	assert.ErrorIs(t, server.VerifyProof(proof), ErrInvalidProof)
}

func TestVerifyAnswerRejectsTampering(t *testing.T) {
	tests := []struct {
		name   string
		offset int
	}{
		{"ephemeral key", 0},
		{"signature", dhSize + 1},
		{"confirmation tag", dhSize + signatureSize + 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			keys, client, _, answer := handshake(t)
			answer[tt.offset] ^= 0x80
			assert.ErrorIs(t, client.VerifyAnswer(keys.PublicKey(), answer), ErrInvalidAnswer)
		})
	}
}

func TestVerifyAnswerRejectsOtherServer(t *testing.T) {
	_, client, _, answer := handshake(t)
	other, err := GenerateServerKeys(rand.Reader)
	require.NoError(t, err)

	assert.ErrorIs(t, client.VerifyAnswer(other.PublicKey(), answer), ErrInvalidAnswer)
}

func TestCookieBoundToAddress(t *testing.T) {
	keys, err := GenerateServerKeys(rand.Reader)
	require.NoError(t, err)

	a := netip.MustParseAddrPort("192.168.1.10:50000")
	b := netip.MustParseAddrPort("192.168.1.10:50001")

	assert.Equal(t, keys.Cookie(a), keys.Cookie(a))
	assert.True(t, keys.ValidCookie(a, keys.Cookie(a)))
	assert.False(t, keys.ValidCookie(b, keys.Cookie(a)))
}

func TestIdentityBindsProof(t *testing.T) {
	id, err := GenerateIdentity(rand.Reader)
	require.NoError(t, err)

	var proof Proof
	proof[3] = 7
	block, err := id.Sign(rand.Reader, proof)
	require.NoError(t, err)

	pub, err := VerifyIdentity(block, proof)
	require.NoError(t, err)
	assert.True(t, pub.Equal(id.PublicKey()))

	proof[3] = 8
	_, err = VerifyIdentity(block, proof)
	assert.ErrorIs(t, err, ErrInvalidIdentity)

	_, err = VerifyIdentity(IdentityBlock{}, proof)
	assert.ErrorIs(t, err, ErrInvalidIdentity)
}

func TestIdentityFromSeed(t *testing.T) {
	seed := make([]byte, 32)
	seed[0] = 1
	a, err := NewIdentityFromSeed(seed)
	require.NoError(t, err)
	b, err := NewIdentityFromSeed(seed)
	require.NoError(t, err)
	assert.True(t, a.PublicKey().Equal(b.PublicKey()))

	_, err = NewIdentityFromSeed(seed[:31])
	assert.ErrorIs(t, err, ErrInvalidIdentity)
}

func TestPolicies(t *testing.T) {
	keys, err := GenerateServerKeys(rand.Reader)
	require.NoError(t, err)
	other, err := GenerateServerKeys(rand.Reader)
	require.NoError(t, err)

	pinned := PinnedKey(keys.PublicKey())
	assert.NoError(t, pinned(keys.PublicKey()))
	assert.ErrorIs(t, pinned(other.PublicKey()), ErrUntrustedKey)
	assert.NoError(t, AcceptAnyKey(other.PublicKey()))

	id, err := GenerateIdentity(rand.Reader)
	require.NoError(t, err)
	stranger, err := GenerateIdentity(rand.Reader)
	require.NoError(t, err)
	allowed := AllowedIdentities(id.PublicKey())
	assert.NoError(t, allowed(id.PublicKey()))
	assert.ErrorIs(t, allowed(stranger.PublicKey()), ErrUntrustedKey)
}
