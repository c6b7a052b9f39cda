package testutil

import (
	"crypto/sha256"
	"encoding/hex"
	"math/rand/v2"
)

// SHA256Hex returns the SHA-256 checksum of data as a lowercase hex string.
func SHA256Hex(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Content returns n deterministic pseudo-random bytes derived from seed.
func Content(seed uint64, n int) []byte {
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = byte(r.Uint32())
	}
	return buf
}
