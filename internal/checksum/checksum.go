// Package checksum computes content digests used for caching and build records.
package checksum

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// Digest is a 32-byte BLAKE3 hash.
type Digest [32]byte

// Of returns the BLAKE3 digest of data.
func Of(data []byte) Digest {
	return blake3.Sum256(data)
}

// Sum returns the hex-encoded BLAKE3 digest of data.
func Sum(data []byte) string {
	d := Of(data)
	return hex.EncodeToString(d[:])
}
