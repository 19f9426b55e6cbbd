// Package vcrypto provides the cryptographic primitives shared by every
// consensus component: Ed25519 signing, SHA-256/SHA-512/BLAKE3 hashing, and
// a simplified ECVRF construction for verifiable leader selection.
package vcrypto

import (
	"crypto/sha256"
	"crypto/sha512"

	"lukechampine.com/blake3"
)

// HashSize is the size in bytes of every hash produced by this package.
const HashSize = 32

// Hash256 returns the SHA-256 digest of data.
func Hash256(data ...[]byte) [HashSize]byte {
	h := sha256.New()
	for _, d := range data {
		h.Write(d)
	}
	var out [HashSize]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Hash512 returns the SHA-512 digest of data.
func Hash512(data ...[]byte) [64]byte {
	h := sha512.New()
	for _, d := range data {
		h.Write(d)
	}
	var out [64]byte
	copy(out[:], h.Sum(nil))
	return out
}

// HashBlake3 returns the 32-byte BLAKE3 digest of data. Used for merkle
// trees and the attestation root.
func HashBlake3(data ...[]byte) [HashSize]byte {
	h := blake3.New(HashSize, nil)
	for _, d := range data {
		h.Write(d)
	}
	var out [HashSize]byte
	copy(out[:], h.Sum(nil))
	return out
}

// MerkleRoot computes a binary merkle root over leaves using BLAKE3,
// duplicating the last leaf on an odd-sized level. Returns the zero hash
// for an empty leaf set.
func MerkleRoot(leaves [][]byte) [HashSize]byte {
	if len(leaves) == 0 {
		return [HashSize]byte{}
	}

	level := make([][HashSize]byte, len(leaves))
	for i, l := range leaves {
		level[i] = HashBlake3(l)
	}

	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		next := make([][HashSize]byte, len(level)/2)
		for i := range next {
			next[i] = HashBlake3(level[2*i][:], level[2*i+1][:])
		}
		level = next
	}
	return level[0]
}
