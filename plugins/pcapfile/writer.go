package pcapfile

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"firestige.xyz/dsmark/internal/core"
	"firestige.xyz/dsmark/internal/log"
	"firestige.xyz/dsmark/pkg/plugin"
)

const defaultSnapLen = 65535

// WriterConfig represents writer-specific configuration.
type WriterConfig struct {
	Path    string `mapstructure:"path"`    // required
	SnapLen uint32 `mapstructure:"snaplen"` // optional, default 65535
}

// Writer stores every frame that was not dropped. The file header takes its
// link type from the first frame; frames of another link type are rejected.
// Frames are written in Emit order, so concurrent callers interleave them;
// the daemon runs a single pipeline worker in front of this sink.
type Writer struct {
	config WriterConfig

	mu       sync.Mutex
	f        *os.File
	bw       *bufio.Writer
	w        *pcapgo.Writer
	linkType layers.LinkType
	header   bool

	written atomic.Uint64
	skipped atomic.Uint64
}

// NewWriter creates a new pcap file writer.
func NewWriter() plugin.Emitter {
	return &Writer{}
}

// Name returns the plugin name.
func (w *Writer) Name() string { return pluginName }

// Init initializes the writer with configuration.
func (w *Writer) Init(cfg map[string]any) error {
	w.config = WriterConfig{SnapLen: defaultSnapLen}
	if err := plugin.DecodeConfig(cfg, &w.config); err != nil {
		return fmt.Errorf("pcap: %w", err)
	}
	if w.config.Path == "" {
		return fmt.Errorf("pcap: %w: path is required", core.ErrConfigInvalid)
	}
	if w.config.SnapLen == 0 {
		w.config.SnapLen = defaultSnapLen
	}
	return nil
}

// Start creates the output file.
func (w *Writer) Start(ctx context.Context) error {
	f, err := os.Create(w.config.Path)
	if err != nil {
		return fmt.Errorf("failed to create pcap file %s: %w", w.config.Path, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.f = f
	w.bw = bufio.NewWriter(f)
	w.w = pcapgo.NewWriter(w.bw)
	return nil
}

// Emit writes res.Data unless the verdict is Drop.
func (w *Writer) Emit(ctx context.Context, res core.Result) error {
	if res.Verdict == core.VerdictDrop {
		w.skipped.Add(1)
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.w == nil {
		return fmt.Errorf("pcap: writer not started")
	}

	lt := layers.LinkType(res.Raw.LinkType)
	if !w.header {
		if err := w.w.WriteFileHeader(w.config.SnapLen, lt); err != nil {
			return fmt.Errorf("pcap: write file header: %w", err)
		}
		w.linkType = lt
		w.header = true
	} else if lt != w.linkType {
		return fmt.Errorf("pcap: link type %s does not match file link type %s", lt, w.linkType)
	}

	data := res.Data
	if uint32(len(data)) > w.config.SnapLen {
		data = data[:w.config.SnapLen]
	}
	length := int(res.Raw.OrigLen)
	if length < len(res.Data) {
		length = len(res.Data)
	}
	ci := gopacket.CaptureInfo{
		Timestamp:      res.Raw.Timestamp,
		CaptureLength:  len(data),
		Length:         length,
		InterfaceIndex: res.Raw.InterfaceIndex,
	}
	if err := w.w.WritePacket(ci, data); err != nil {
		return fmt.Errorf("pcap: write packet: %w", err)
	}
	w.written.Add(1)
	return nil
}

// Stop flushes and closes the file. A file that received no frames still
// gets an Ethernet file header so it stays readable.
func (w *Writer) Stop(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return nil
	}

	var firstErr error
	if !w.header {
		firstErr = w.w.WriteFileHeader(w.config.SnapLen, layers.LinkTypeEthernet)
	}
	if err := w.bw.Flush(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := w.f.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	w.f, w.bw, w.w = nil, nil, nil

	log.GetLogger().WithFields(map[string]interface{}{
		"path":    w.config.Path,
		"written": w.written.Load(),
		"dropped": w.skipped.Load(),
	}).Info("pcap writer closed")
	return firstErr
}

// Written returns the number of frames written.
func (w *Writer) Written() uint64 { return w.written.Load() }
