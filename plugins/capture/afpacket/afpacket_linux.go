//go:build linux

package afpacket

import (
	"context"
	"fmt"
	"net"
	"os"
	"sync/atomic"
	"time"

	"github.com/google/gopacket/afpacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	"golang.org/x/net/bpf"

	"firestige.xyz/dsmark/internal/core"
	"firestige.xyz/dsmark/internal/log"
	"firestige.xyz/dsmark/pkg/plugin"
)

// Capturer implements plugin.Capturer using AF_PACKET_V3.
type Capturer struct {
	config Config

	packetsReceived  atomic.Uint64
	packetsDropped   atomic.Uint64
	packetsIfDropped atomic.Uint64
}

// NewAFPacketCapturer creates a new AF_PACKET capturer instance.
func NewAFPacketCapturer() plugin.Capturer {
	return &Capturer{}
}

// Name returns the plugin name.
func (c *Capturer) Name() string { return pluginName }

// Init initializes the capturer with configuration.
func (c *Capturer) Init(cfg map[string]any) error {
	conf, err := parseConfig(cfg)
	if err != nil {
		return err
	}
	c.config = conf

	log.GetLogger().WithFields(map[string]interface{}{
		"interface":   c.config.Interface,
		"bpf_filter":  c.config.BPFFilter,
		"snap_len":    c.config.SnapLen,
		"fanout_type": c.config.FanoutType,
	}).Debug("afpacket initialized")
	return nil
}

// Start is a no-op; the socket is opened by Capture.
func (c *Capturer) Start(ctx context.Context) error { return nil }

// Stop is a no-op. The TPacket handle is owned by Capture, which closes it
// once ctx is cancelled; closing it here would race the read loop.
func (c *Capturer) Stop(ctx context.Context) error { return nil }

// Capture reads frames until ctx is cancelled. A full output channel drops
// the frame rather than stalling the ring.
func (c *Capturer) Capture(ctx context.Context, output chan<- core.RawPacket) error {
	frameSize, blockSize, numBlocks, err := ringSize(c.config.BufferMB, c.config.SnapLen, os.Getpagesize())
	if err != nil {
		return fmt.Errorf("afpacket: %w", err)
	}

	handle, err := afpacket.NewTPacket(
		afpacket.OptInterface(c.config.Interface),
		afpacket.OptFrameSize(frameSize),
		afpacket.OptBlockSize(blockSize),
		afpacket.OptNumBlocks(numBlocks),
		afpacket.OptPollTimeout(100*time.Millisecond),
		afpacket.OptTPacketVersion(afpacket.TPacketVersion3),
	)
	if err != nil {
		return fmt.Errorf("failed to create TPacket handle: %w", err)
	}
	defer handle.Close()

	if c.config.FanoutType != "" {
		if err := handle.SetFanout(afpacket.FanoutHash, uint16(c.config.FanoutID)); err != nil {
			return fmt.Errorf("failed to set fanout: %w", err)
		}
	}
	if c.config.BPFFilter != "" {
		if err := c.applyBPFFilter(handle); err != nil {
			return fmt.Errorf("failed to apply BPF filter: %w", err)
		}
	}
	if err := handle.InitSocketStats(); err != nil {
		log.GetLogger().WithError(err).Warn("failed to init socket stats")
	}

	ifIndex := 0
	if iface, err := net.InterfaceByName(c.config.Interface); err == nil {
		ifIndex = iface.Index
	}

	log.GetLogger().WithField("interface", c.config.Interface).Info("afpacket capture started")

	for {
		select {
		case <-ctx.Done():
			log.GetLogger().WithField("interface", c.config.Interface).Info("afpacket capture stopped")
			return ctx.Err()
		default:
		}

		// ReadPacketData copies out of the ring, so the frame outlives the
		// next read and rules may write to it.
		data, ci, err := handle.ReadPacketData()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// poll timeout, EINTR
			continue
		}
		c.packetsReceived.Add(1)

		if _, stats, err := handle.SocketStats(); err == nil {
			c.packetsIfDropped.Store(uint64(stats.Drops()))
		}

		raw := core.RawPacket{
			Data:           data,
			Timestamp:      ci.Timestamp,
			CaptureLen:     uint32(ci.CaptureLength),
			OrigLen:        uint32(ci.Length),
			InterfaceIndex: ifIndex,
			LinkType:       uint32(layers.LinkTypeEthernet),
		}

		select {
		case output <- raw:
		case <-ctx.Done():
			return ctx.Err()
		default:
			c.packetsDropped.Add(1)
		}
	}
}

// applyBPFFilter compiles the filter with libpcap and attaches it.
func (c *Capturer) applyBPFFilter(handle *afpacket.TPacket) error {
	insns, err := pcap.CompileBPFFilter(layers.LinkTypeEthernet, c.config.SnapLen, c.config.BPFFilter)
	if err != nil {
		return fmt.Errorf("failed to compile BPF filter %q: %w", c.config.BPFFilter, err)
	}

	raw := make([]bpf.RawInstruction, len(insns))
	for i, insn := range insns {
		raw[i] = bpf.RawInstruction{Op: insn.Code, Jt: insn.Jt, Jf: insn.Jf, K: insn.K}
	}
	return handle.SetBPF(raw)
}

// Stats returns capture statistics.
func (c *Capturer) Stats() plugin.CaptureStats {
	return plugin.CaptureStats{
		PacketsReceived:  c.packetsReceived.Load(),
		PacketsDropped:   c.packetsDropped.Load(),
		PacketsIfDropped: c.packetsIfDropped.Load(),
	}
}
