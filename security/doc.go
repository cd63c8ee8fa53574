// Package security produces and checks the key material carried by the
// secured RakNet handshake.
//
// The server announces a 64-byte PublicKey (X25519 static key and Ed25519
// verification key) together with an address-bound cookie. The client sends
// its ephemeral X25519 key as the Challenge; the server replies with an
// Answer holding its own ephemeral key, a signature and a confirmation tag.
// Both sides derive the same shared secret with HKDF over the two
// Diffie-Hellman results, and the client proves it with a Proof. An optional
// IdentityBlock binds a long-term client Ed25519 key to that proof.
//
//	keys, _ := security.GenerateServerKeys(rand.Reader)
//	client, _ := security.NewClientHandshake(rand.Reader)
//	server, answer, _ := keys.Answer(rand.Reader, client.Challenge())
//	_ = client.VerifyAnswer(keys.PublicKey(), answer)
//	proof, _ := client.Proof()
//	err := server.VerifyProof(proof)
package security
