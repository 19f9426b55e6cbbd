package vcrypto

import (
	"crypto/ed25519"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"
	"errors"
)

// ECVRF implements a simplified, hash-commitment-plus-Ed25519-signature
// construction in place of a full RFC-9381 curve-point Schnorr VRF: the
// output is a deterministic SHA-512-derived
// commitment, and the proof binds that commitment to (sk, input) via a
// deterministic Ed25519 signature plus a truncated input-hash check that
// lets Verify reject a mismatched input without touching the secret key.
//
// Domain-separation prefixes are bit-exact and must never change.
const (
	domainEvaluate    = "ECVRF-Edwards25519-SHA512-TAI"
	domainSign        = "ECVRF-sign"
	domainProofToHash = "ECVRF-proof-to-hash"
)

// ProofSize is the fixed size of an ECVRF proof: a 64-byte Ed25519
// signature plus a 16-byte truncated input-hash binding.
const ProofSize = ed25519.SignatureSize + 16

// ErrMalformedProof is returned when a proof is not ProofSize bytes.
var ErrMalformedProof = errors.New("vcrypto: malformed ECVRF proof")

// Evaluate deterministically computes the VRF output and proof for input
// under the Ed25519 private key sk. Two calls with the same (sk, input)
// always return identical results.
func Evaluate(sk ed25519.PrivateKey, input []byte) (output [HashSize]byte, proof []byte) {
	seedPreimage := append([]byte(domainEvaluate), sk...)
	seedPreimage = append(seedPreimage, input...)
	seed := sha512.Sum512(seedPreimage)
	copy(output[:], seed[:HashSize])

	signMsg := append([]byte(domainSign), output[:]...)
	signMsg = append(signMsg, input...)
	sig := ed25519.Sign(sk, signMsg)

	inputHash := sha256.Sum256(input)

	proof = make([]byte, 0, ProofSize)
	proof = append(proof, sig...)
	proof = append(proof, inputHash[:16]...)
	return output, proof
}

// VerifyProof reports whether proof is a well-formed ECVRF proof for input
// and output under the public key pk. It rejects proofs whose embedded
// input hash does not match input, and proofs whose signature does not
// verify.
func VerifyProof(pk ed25519.PublicKey, input []byte, output [HashSize]byte, proof []byte) bool {
	if len(proof) != ProofSize {
		return false
	}
	sig := proof[:ed25519.SignatureSize]
	embeddedInputHash := proof[ed25519.SignatureSize:]

	wantInputHash := sha256.Sum256(input)
	if !equal(embeddedInputHash, wantInputHash[:16]) {
		return false
	}

	signMsg := append([]byte(domainSign), output[:]...)
	signMsg = append(signMsg, input...)
	return ed25519.Verify(pk, signMsg, sig)
}

// ProofToHash deterministically reduces a proof alone (without input or
// key material) to a 32-byte output. The result is a digest of the proof
// and differs from the output Evaluate returned alongside it.
func ProofToHash(proof []byte) ([HashSize]byte, error) {
	if len(proof) != ProofSize {
		return [HashSize]byte{}, ErrMalformedProof
	}
	preimage := append([]byte(domainProofToHash), proof...)
	return sha256.Sum256(preimage), nil
}

// LotteryValue decodes the bounded uniform u64 lottery ticket exposed by an
// ECVRF output: the little-endian decode of its first 8 bytes.
func LotteryValue(output [HashSize]byte) uint64 {
	return binary.LittleEndian.Uint64(output[:8])
}

func equal(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
