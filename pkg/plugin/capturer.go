package plugin

import (
	"context"

	"firestige.xyz/dsmark/internal/core"
)

// Capturer feeds raw frames into the pipeline. Capture blocks until ctx is
// cancelled or the source is exhausted; a finite source returns nil at EOF.
type Capturer interface {
	Plugin
	Capture(ctx context.Context, output chan<- core.RawPacket) error
	Stats() CaptureStats
}

// CaptureStats represents capture statistics.
type CaptureStats struct {
	PacketsReceived  uint64
	PacketsDropped   uint64
	PacketsIfDropped uint64
}
