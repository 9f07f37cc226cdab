package decoder

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash/crc32"
)

// Algorithm names a supported integrity_check digest function. The
// algorithm is a session-level agreement between sender and receiver, not
// a wire field (spec.md §6 lists integrity_check as an opaque hex digest;
// §9's open question recommends standardising on SHA-256).
type Algorithm string

const (
	AlgorithmSHA256 Algorithm = "sha256"
	AlgorithmCRC32  Algorithm = "crc32"
)

// Digest computes the hex digest of payload under the named algorithm.
func Digest(alg Algorithm, payload []byte) (string, error) {
	switch alg {
	case AlgorithmSHA256, "":
		sum := sha256.Sum256(payload)
		return hex.EncodeToString(sum[:]), nil
	case AlgorithmCRC32:
		sum := crc32.ChecksumIEEE(payload)
		return fmt.Sprintf("%08x", sum), nil
	default:
		return "", fmt.Errorf("decoder: unknown integrity algorithm %q", alg)
	}
}
