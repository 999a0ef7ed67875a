//go:build !linux

package afpacket

import (
	"context"
	"fmt"

	"firestige.xyz/dsmark/internal/core"
	"firestige.xyz/dsmark/pkg/plugin"
)

// Capturer is a stub for non-Linux systems.
type Capturer struct {
	config Config
}

// NewAFPacketCapturer creates a stub capturer.
func NewAFPacketCapturer() plugin.Capturer {
	return &Capturer{}
}

func (c *Capturer) Name() string { return pluginName }

func (c *Capturer) Init(cfg map[string]any) error {
	conf, err := parseConfig(cfg)
	if err != nil {
		return err
	}
	c.config = conf
	return nil
}

func (c *Capturer) Start(ctx context.Context) error { return nil }

func (c *Capturer) Stop(ctx context.Context) error { return nil }

func (c *Capturer) Capture(ctx context.Context, output chan<- core.RawPacket) error {
	return fmt.Errorf("afpacket is only supported on Linux")
}

func (c *Capturer) Stats() plugin.CaptureStats { return plugin.CaptureStats{} }
