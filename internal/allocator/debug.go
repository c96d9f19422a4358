package allocator

// Canary computation shared by freeBlock and memHeader. The default is
// the XOR/shift scheme EmbeddedFreeBlock and MemHeader both use; the
// hardened variant swaps it for a blake2b digest, trading a few dozen
// cycles per mutation for resistance against an adjacent stray write
// that happens to reproduce the XOR checksum by accident.

import (
	"encoding/binary"

	"golang.org/x/crypto/blake2b"
)

func computeCanary(a, b uintptr, strength CanaryStrength) uintptr {
	if strength != CanaryBlake2b {
		sum := a
		sum <<= canaryShift
		sum ^= b
		sum ^= canarySeed

		return sum
	}

	var buf [16]byte

	binary.LittleEndian.PutUint64(buf[0:8], uint64(a))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(b))

	digest := blake2b.Sum256(buf[:])

	return uintptr(binary.LittleEndian.Uint64(digest[:8]))
}
