package vcrypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
)

// Sizes of Ed25519 key and signature material, named here so callers never
// hardcode magic numbers from the stdlib package directly.
const (
	PublicKeySize  = ed25519.PublicKeySize
	PrivateKeySize = ed25519.PrivateKeySize
	SignatureSize  = ed25519.SignatureSize
)

// ErrInvalidSignature is returned by Verify when the signature does not
// match the message under the given public key.
var ErrInvalidSignature = errors.New("vcrypto: invalid signature")

// GenerateKey creates a new Ed25519 key pair.
func GenerateKey() (ed25519.PublicKey, ed25519.PrivateKey, error) {
	return ed25519.GenerateKey(rand.Reader)
}

// Sign signs message with sk, returning a 64-byte Ed25519 signature.
func Sign(sk ed25519.PrivateKey, message []byte) []byte {
	return ed25519.Sign(sk, message)
}

// Verify reports whether sig is a valid Ed25519 signature over message
// under pk.
func Verify(pk ed25519.PublicKey, message, sig []byte) bool {
	if len(pk) != PublicKeySize || len(sig) != SignatureSize {
		return false
	}
	return ed25519.Verify(pk, message, sig)
}

// VerifyStrict is Verify but returns ErrInvalidSignature instead of a bool,
// for call sites that want to propagate a typed error.
func VerifyStrict(pk ed25519.PublicKey, message, sig []byte) error {
	if !Verify(pk, message, sig) {
		return ErrInvalidSignature
	}
	return nil
}
