// Package pcapfile implements an offline capturer reading pcap or pcapng
// files and an emitter writing evaluated frames to a pcap file.
package pcapfile

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"firestige.xyz/dsmark/internal/core"
	"firestige.xyz/dsmark/internal/log"
	"firestige.xyz/dsmark/pkg/plugin"
)

const pluginName = "pcap"

var pcapngMagic = []byte{0x0A, 0x0D, 0x0D, 0x0A}

// ReaderConfig represents reader-specific configuration.
type ReaderConfig struct {
	Path string `mapstructure:"path"` // required
}

type packetReader interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
	LinkType() layers.LinkType
}

// Reader replays a capture file into the pipeline. Capture returns nil at
// end of file.
type Reader struct {
	config ReaderConfig

	packetsReceived atomic.Uint64
}

// NewReader creates a new pcap file reader.
func NewReader() plugin.Capturer {
	return &Reader{}
}

// Name returns the plugin name.
func (r *Reader) Name() string { return pluginName }

// Init initializes the reader with configuration.
func (r *Reader) Init(cfg map[string]any) error {
	if err := plugin.DecodeConfig(cfg, &r.config); err != nil {
		return fmt.Errorf("pcap: %w", err)
	}
	if r.config.Path == "" {
		return fmt.Errorf("pcap: %w: path is required", core.ErrConfigInvalid)
	}
	return nil
}

// Start is a no-op, the file is opened by Capture.
func (r *Reader) Start(ctx context.Context) error { return nil }

// Stop is a no-op, Capture returns on cancellation.
func (r *Reader) Stop(ctx context.Context) error { return nil }

// Capture reads every frame of the file and blocks on a full output channel
// rather than dropping.
func (r *Reader) Capture(ctx context.Context, output chan<- core.RawPacket) error {
	f, err := os.Open(r.config.Path)
	if err != nil {
		return fmt.Errorf("failed to open pcap file %s: %w", r.config.Path, err)
	}
	defer f.Close()

	src, err := openPacketReader(bufio.NewReader(f))
	if err != nil {
		return fmt.Errorf("failed to read pcap header of %s: %w", r.config.Path, err)
	}
	linkType := src.LinkType()

	log.GetLogger().WithFields(map[string]interface{}{
		"path":      r.config.Path,
		"link_type": linkType.String(),
	}).Info("pcap replay started")

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		data, ci, err := src.ReadPacketData()
		if errors.Is(err, io.EOF) {
			log.GetLogger().WithField("packets", r.packetsReceived.Load()).Info("pcap replay finished")
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read packet: %w", err)
		}
		r.packetsReceived.Add(1)

		raw := core.RawPacket{
			Data:           data,
			Timestamp:      ci.Timestamp,
			CaptureLen:     uint32(ci.CaptureLength),
			OrigLen:        uint32(ci.Length),
			InterfaceIndex: ci.InterfaceIndex,
			LinkType:       uint32(linkType),
		}

		select {
		case output <- raw:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Stats returns capture statistics. Offline replay never drops.
func (r *Reader) Stats() plugin.CaptureStats {
	return plugin.CaptureStats{PacketsReceived: r.packetsReceived.Load()}
}

// openPacketReader picks the pcapng or classic pcap reader by magic number.
func openPacketReader(br *bufio.Reader) (packetReader, error) {
	magic, err := br.Peek(len(pcapngMagic))
	if err != nil {
		return nil, err
	}
	if bytes.Equal(magic, pcapngMagic) {
		return pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
	}
	return pcapgo.NewReader(br)
}
