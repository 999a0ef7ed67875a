// Package console implements emitters for runs that have no inline sink.
// The console emitter prints one line per packet for debugging; the
// discard emitter only counts.
package console

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"firestige.xyz/dsmark/internal/core"
	"firestige.xyz/dsmark/internal/core/dsfield"
	"firestige.xyz/dsmark/internal/log"
	"firestige.xyz/dsmark/internal/xt"
	"firestige.xyz/dsmark/pkg/plugin"
)

// Config represents console emitter configuration.
type Config struct {
	Format       string `mapstructure:"format"`        // "json" or "text", default "text"
	OnlyModified bool   `mapstructure:"only_modified"` // print rewritten or dropped packets only
}

// ConsoleEmitter writes packets to stdout in human-readable format.
type ConsoleEmitter struct {
	name   string
	config Config
	quiet  bool

	mu  sync.Mutex
	out io.Writer

	emittedCount atomic.Uint64
}

// NewConsoleEmitter creates a new console emitter.
func NewConsoleEmitter() plugin.Emitter {
	return &ConsoleEmitter{
		name:   "console",
		config: Config{Format: "text"},
		out:    os.Stdout,
	}
}

// NewDiscardEmitter creates an emitter that prints nothing.
func NewDiscardEmitter() plugin.Emitter {
	return &ConsoleEmitter{
		name:   "discard",
		config: Config{Format: "text"},
		quiet:  true,
		out:    io.Discard,
	}
}

// Name returns the plugin name.
func (e *ConsoleEmitter) Name() string {
	return e.name
}

// Init initializes the emitter with configuration.
func (e *ConsoleEmitter) Init(cfg map[string]any) error {
	if err := plugin.DecodeConfig(cfg, &e.config); err != nil {
		return fmt.Errorf("%s: %w", e.name, err)
	}
	if e.config.Format == "" {
		e.config.Format = "text"
	}
	if e.config.Format != "json" && e.config.Format != "text" {
		return fmt.Errorf("invalid format %q, must be json or text", e.config.Format)
	}
	return nil
}

// Start starts the emitter.
func (e *ConsoleEmitter) Start(ctx context.Context) error {
	log.GetLogger().WithField("format", e.config.Format).Debugf("%s emitter started", e.name)
	return nil
}

// Stop stops the emitter.
func (e *ConsoleEmitter) Stop(ctx context.Context) error {
	log.GetLogger().WithField("total_emitted", e.emittedCount.Load()).Infof("%s emitter stopped", e.name)
	return nil
}

// Emit outputs a packet.
func (e *ConsoleEmitter) Emit(ctx context.Context, res core.Result) error {
	e.emittedCount.Add(1)
	if e.quiet {
		return nil
	}
	if e.config.OnlyModified && !res.Modified && res.Verdict != core.VerdictDrop {
		return nil
	}

	var line []byte
	if e.config.Format == "json" {
		data, err := json.Marshal(toRecord(res))
		if err != nil {
			return fmt.Errorf("json marshal failed: %w", err)
		}
		line = append(data, '\n')
	} else {
		line = []byte(formatText(res))
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	_, err := e.out.Write(line)
	return err
}

// Emitted returns the number of packets seen.
func (e *ConsoleEmitter) Emitted() uint64 { return e.emittedCount.Load() }

type record struct {
	Timestamp string `json:"timestamp"`
	Length    int    `json:"len"`
	IPVersion uint8  `json:"ip_version,omitempty"`
	SrcIP     string `json:"src_ip,omitempty"`
	DstIP     string `json:"dst_ip,omitempty"`
	Protocol  uint8  `json:"protocol,omitempty"`
	DSCPIn    *uint8 `json:"dscp_in,omitempty"`
	DSCPOut   *uint8 `json:"dscp_out,omitempty"`
	ECN       *uint8 `json:"ecn,omitempty"`
	Modified  bool   `json:"modified"`
	Verdict   string `json:"verdict"`
}

func toRecord(res core.Result) record {
	r := record{
		Timestamp: res.Raw.Timestamp.Format("2006-01-02T15:04:05.000Z07:00"),
		Length:    len(res.Data),
		Modified:  res.Modified,
		Verdict:   res.Verdict.String(),
	}
	if res.IP.Version == 0 {
		return r
	}
	in, out, ecn := dsfield.DSCP(res.OrigDS), dsfield.DSCP(res.IP.DSField), dsfield.ECN(res.IP.DSField)
	r.IPVersion = res.IP.Version
	r.SrcIP = res.IP.SrcIP.String()
	r.DstIP = res.IP.DstIP.String()
	r.Protocol = res.IP.Protocol
	r.DSCPIn, r.DSCPOut, r.ECN = &in, &out, &ecn
	return r
}

func formatText(res core.Result) string {
	ts := res.Raw.Timestamp.Format("15:04:05.000")
	if res.IP.Version == 0 {
		return fmt.Sprintf("[%s] non-ip len=%d verdict=%s\n", ts, len(res.Data), res.Verdict)
	}

	dscp := dscpName(dsfield.DSCP(res.OrigDS))
	if res.Modified {
		dscp += ">" + dscpName(dsfield.DSCP(res.IP.DSField))
	}
	return fmt.Sprintf("[%s] %s > %s proto=%d dscp=%s ecn=%d verdict=%s\n",
		ts, res.IP.SrcIP, res.IP.DstIP, res.IP.Protocol,
		dscp, dsfield.ECN(res.IP.DSField), res.Verdict)
}

func dscpName(v uint8) string {
	if name := xt.DSCPClassName(v); name != "" {
		return name
	}
	return fmt.Sprintf("0x%02x", v)
}
