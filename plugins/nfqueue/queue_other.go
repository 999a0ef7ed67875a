//go:build !linux

package nfqueue

import (
	"context"
	"fmt"

	"firestige.xyz/dsmark/internal/core"
	"firestige.xyz/dsmark/pkg/plugin"
)

var errUnsupported = fmt.Errorf("nfqueue is only supported on Linux")

// Queue is a stub for non-Linux systems. Init validates the configuration;
// every other operation fails.
type Queue struct {
	config Config
}

// NewQueue creates a stub queue.
func NewQueue() plugin.Capturer {
	return &Queue{}
}

func (q *Queue) Name() string { return pluginName }

func (q *Queue) Init(cfg map[string]any) error {
	c, err := parseConfig(cfg)
	if err != nil {
		return err
	}
	q.config = c
	return nil
}

func (q *Queue) Start(ctx context.Context) error { return errUnsupported }

func (q *Queue) Stop(ctx context.Context) error { return nil }

func (q *Queue) Capture(ctx context.Context, output chan<- core.RawPacket) error {
	return errUnsupported
}

func (q *Queue) Emit(ctx context.Context, res core.Result) error { return errUnsupported }

func (q *Queue) Stats() plugin.CaptureStats { return plugin.CaptureStats{} }
