// Package crypto secures meshchat payloads.
//
// Each pair of peers agrees a random symmetric key with a three-message
// exchange. The initiator sends an X25519 public key, the responder answers
// with a fresh key sealed to it (nacl/box anonymous sealed boxes), and the
// initiator acknowledges:
//
//	a, b := crypto.NewKeyExchange(), crypto.NewKeyExchange()
//	pub, _ := a.Initiate()
//	sealed, _ := b.HandlePublicKey(pub, false)
//	_ = a.HandleSealedKey(sealed)
//	_ = b.HandleKeyReceived()
//
// Payloads are encrypted with nacl/secretbox under the agreed key. Traffic
// that every node must read, and traffic to peers without an agreed key,
// uses GroupKey, a fallback derived from a shared group secret. The fallback
// only keeps casual listeners out; it authenticates nobody.
package crypto
