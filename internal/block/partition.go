// Package block splits a payload into fixed-size source blocks and
// reassembles a recovered payload back from them.
//
// Grounded on the partitioning shape of google-gofountain's util.go
// (partition/partitionBytes), adapted to a single explicit block size
// instead of a long/short two-tier partition: Tightbeam pads the final
// block with zeros rather than splitting into unequal block lengths.
package block

import "fmt"

// InvalidBlockSizeError is returned when a partition is requested with a
// non-positive block size.
type InvalidBlockSizeError struct {
	BlockSize int
}

func (e *InvalidBlockSizeError) Error() string {
	return fmt.Sprintf("block: invalid block_size %d: must be > 0", e.BlockSize)
}

// Partitioned holds the outcome of splitting a payload into source blocks.
type Partitioned struct {
	// BlockSize is the fixed length of every element of Blocks.
	BlockSize int
	// OrigLen is the length in bytes of the original, unpadded payload.
	OrigLen int
	// Blocks are the k source blocks, index 0..K-1. The final block is
	// zero-padded if OrigLen is not a multiple of BlockSize.
	Blocks [][]byte
}

// K returns the number of source blocks.
func (p Partitioned) K() int {
	return len(p.Blocks)
}

// Split partitions payload into ceil(len(payload)/blockSize) fixed-size
// blocks, zero-padding the last block. An empty payload yields zero blocks.
func Split(payload []byte, blockSize int) (Partitioned, error) {
	if blockSize <= 0 {
		return Partitioned{}, &InvalidBlockSizeError{BlockSize: blockSize}
	}

	origLen := len(payload)
	k := (origLen + blockSize - 1) / blockSize

	blocks := make([][]byte, k)
	for i := 0; i < k; i++ {
		buf := make([]byte, blockSize)
		start := i * blockSize
		end := start + blockSize
		if end > origLen {
			end = origLen
		}
		if start < end {
			copy(buf, payload[start:end])
		}
		blocks[i] = buf
	}

	return Partitioned{BlockSize: blockSize, OrigLen: origLen, Blocks: blocks}, nil
}

// Join concatenates solved blocks in index order and truncates the result
// to origLen, stripping the padding added by Split.
func Join(blocks [][]byte, origLen int) []byte {
	out := make([]byte, 0, origLen)
	for _, b := range blocks {
		if len(out) >= origLen {
			break
		}
		out = append(out, b...)
	}
	if len(out) > origLen {
		out = out[:origLen]
	}
	return out
}

// XOR writes dst ^= src, both of length blockSize. dst and src must have
// equal length; callers in this module always pass same-sized blocks.
func XOR(dst, src []byte) {
	n := len(dst)
	if len(src) < n {
		n = len(src)
	}
	for i := 0; i < n; i++ {
		dst[i] ^= src[i]
	}
}
