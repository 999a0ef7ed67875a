// Package afpacket implements an AF_PACKET (TPACKET_V3) capturer. Frames
// are copied out of the ring, so rules may rewrite them; the kernel's copy
// is unaffected, which makes this a source for auditing a rule set against
// live traffic.
package afpacket

import "fmt"

const (
	tpacketAlignment = 16 // TPACKET_ALIGNMENT
	tpacketHdrLen    = 52 // TPACKET3_HDRLEN, rounded up
	maxBlockSize     = 4 * 1024 * 1024
)

// ringSize derives frame size, block size and block count for a ring of
// about bufferMB megabytes. frameSize is aligned to TPACKET_ALIGNMENT,
// blockSize is a multiple of both pageSize and frameSize.
func ringSize(bufferMB, snapLen, pageSize int) (frameSize, blockSize, numBlocks int, err error) {
	if bufferMB <= 0 {
		return 0, 0, 0, fmt.Errorf("buffer_mb must be positive, got %d", bufferMB)
	}
	if snapLen <= 0 {
		return 0, 0, 0, fmt.Errorf("snap_len must be positive, got %d", snapLen)
	}
	if pageSize <= 0 || pageSize%tpacketAlignment != 0 {
		return 0, 0, 0, fmt.Errorf("page size must be a positive multiple of %d, got %d", tpacketAlignment, pageSize)
	}

	frameSize = alignUp(tpacketHdrLen+snapLen, tpacketAlignment)

	blockSize = lcm(pageSize, frameSize)
	if blockSize > maxBlockSize {
		// fall back to whole frames per block, rounded to pages
		blockSize = alignUp(frameSize, pageSize)
		for blockSize*2 <= maxBlockSize {
			blockSize *= 2
		}
	}

	numBlocks = bufferMB * 1024 * 1024 / blockSize
	if numBlocks < 1 {
		numBlocks = 1
	}
	return frameSize, blockSize, numBlocks, nil
}

func alignUp(n, align int) int {
	return (n + align - 1) / align * align
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func lcm(a, b int) int {
	if a == 0 || b == 0 {
		return 0
	}
	return a / gcd(a, b) * b
}
