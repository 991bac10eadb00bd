package cache

import (
	"encoding/binary"
	"encoding/hex"

	"lukechampine.com/blake3"
)

// Hash derives an identifier from an ordered list of inputs.
// Each part is length-prefixed, so ("ab", "c") and ("a", "bc") differ.
//
// Used for module IDs, download IDs and step hashes.
func Hash(parts ...string) string {
	h := blake3.New(32, nil)

	var size [8]byte
	for _, part := range parts {
		binary.LittleEndian.PutUint64(size[:], uint64(len(part)))
		h.Write(size[:])
		h.Write([]byte(part))
	}

	return hex.EncodeToString(h.Sum(nil))
}
