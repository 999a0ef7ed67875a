//go:build linux

package nfqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/florianl/go-nfqueue/v2"
	"github.com/google/gopacket/layers"
	"golang.org/x/sys/unix"

	"firestige.xyz/dsmark/internal/core"
	"firestige.xyz/dsmark/internal/log"
	"firestige.xyz/dsmark/pkg/plugin"
)

// Queue is both the capturer and the emitter of an inline pipeline: Capture
// reads queued packets and Emit returns their verdicts. Packets are marked
// Shared, so a rewrite copies the payload before changing it.
type Queue struct {
	config Config

	nf *nfqueue.Nfqueue

	// hookMu keeps the netlink callback from sending on the output channel
	// after Capture returned.
	hookMu sync.RWMutex
	closed bool

	packetsReceived atomic.Uint64
	packetsDropped  atomic.Uint64
	accepted        atomic.Uint64
	rewritten       atomic.Uint64
	dropped         atomic.Uint64
	verdictErrors   atomic.Uint64
}

var (
	_ plugin.Capturer = (*Queue)(nil)
	_ plugin.Emitter  = (*Queue)(nil)
)

// NewQueue creates a new nfqueue plugin instance.
func NewQueue() plugin.Capturer {
	return &Queue{}
}

// Name returns the plugin name.
func (q *Queue) Name() string { return pluginName }

// Init initializes the queue with configuration.
func (q *Queue) Init(cfg map[string]any) error {
	c, err := parseConfig(cfg)
	if err != nil {
		return err
	}
	q.config = c
	log.GetLogger().WithFields(map[string]interface{}{
		"queue_num": c.QueueNum,
		"fail_open": *c.FailOpen,
	}).Debug("nfqueue initialized")
	return nil
}

// Start binds the queue. It is idempotent, since the same instance is
// started once as capturer and once as emitter.
func (q *Queue) Start(ctx context.Context) error {
	if q.nf != nil {
		return nil
	}

	var flags uint32
	if *q.config.FailOpen {
		flags |= nfqueue.NfQaCfgFlagFailOpen
	}
	nf, err := nfqueue.Open(&nfqueue.Config{
		NfQueue:      q.config.QueueNum,
		MaxPacketLen: q.config.MaxPacketLen,
		MaxQueueLen:  q.config.MaxQueueLen,
		Copymode:     nfqueue.NfQnlCopyPacket,
		Flags:        flags,
		WriteTimeout: q.config.WriteTimeout,
	})
	if err != nil {
		if errors.Is(err, unix.EPERM) {
			return fmt.Errorf("nfqueue: open queue %d: %w (CAP_NET_ADMIN required)", q.config.QueueNum, err)
		}
		return fmt.Errorf("nfqueue: open queue %d: %w", q.config.QueueNum, err)
	}
	q.nf = nf
	return nil
}

// Stop releases the queue. Packets still queued in the kernel are
// accepted when fail_open is set.
func (q *Queue) Stop(ctx context.Context) error {
	if q.nf == nil {
		return nil
	}
	err := q.nf.Close()
	q.nf = nil

	log.GetLogger().WithFields(map[string]interface{}{
		"queue_num": q.config.QueueNum,
		"received":  q.packetsReceived.Load(),
		"accepted":  q.accepted.Load(),
		"rewritten": q.rewritten.Load(),
		"dropped":   q.dropped.Load(),
	}).Info("nfqueue closed")
	return err
}

// Capture registers the netlink callback and blocks until ctx is done. A
// packet that finds the pipeline full is accepted unchanged right away.
func (q *Queue) Capture(ctx context.Context, output chan<- core.RawPacket) error {
	if q.nf == nil {
		return fmt.Errorf("nfqueue: capture before start")
	}
	nf := q.nf

	hook := func(a nfqueue.Attribute) int {
		if a.PacketID == nil {
			return 0
		}
		id := *a.PacketID
		if a.Payload == nil {
			q.setVerdict(id, nfqueue.NfAccept)
			return 0
		}

		raw := core.RawPacket{
			Data:       *a.Payload,
			Timestamp:  time.Now(),
			CaptureLen: uint32(len(*a.Payload)),
			OrigLen:    uint32(len(*a.Payload)),
			LinkType:   uint32(layers.LinkTypeRaw),
			PacketID:   id,
			Shared:     true,
		}
		if a.Timestamp != nil {
			raw.Timestamp = *a.Timestamp
		}
		if a.CapLen != nil {
			raw.OrigLen = *a.CapLen
		}
		if a.InDev != nil {
			raw.InterfaceIndex = int(*a.InDev)
		}

		q.hookMu.RLock()
		defer q.hookMu.RUnlock()
		if q.closed {
			q.setVerdict(id, nfqueue.NfAccept)
			return 0
		}
		select {
		case output <- raw:
			q.packetsReceived.Add(1)
		default:
			q.packetsDropped.Add(1)
			q.setVerdict(id, nfqueue.NfAccept)
		}
		return 0
	}

	errFn := func(err error) int {
		if ctx.Err() != nil {
			return 1
		}
		log.GetLogger().WithError(err).Warn("nfqueue receive error")
		return 0
	}

	q.hookMu.Lock()
	q.closed = false
	q.hookMu.Unlock()

	if err := nf.RegisterWithErrorFunc(ctx, hook, errFn); err != nil {
		return fmt.Errorf("nfqueue: register: %w", err)
	}
	log.GetLogger().WithField("queue_num", q.config.QueueNum).Info("nfqueue capture started")

	<-ctx.Done()

	q.hookMu.Lock()
	q.closed = true
	q.hookMu.Unlock()
	return ctx.Err()
}

// Emit returns the verdict for a packet taken from the queue.
func (q *Queue) Emit(ctx context.Context, res core.Result) error {
	nf := q.nf
	if nf == nil {
		return fmt.Errorf("nfqueue: emit before start")
	}

	verdict, payload := verdictFor(res)
	var err error
	if payload != nil {
		err = nf.SetVerdictModPacket(res.Raw.PacketID, verdict, payload)
	} else {
		err = nf.SetVerdict(res.Raw.PacketID, verdict)
	}
	if err != nil {
		q.verdictErrors.Add(1)
		return fmt.Errorf("nfqueue: verdict for packet %d: %w", res.Raw.PacketID, err)
	}

	switch {
	case verdict == nfqueue.NfDrop:
		q.dropped.Add(1)
	case payload != nil:
		q.rewritten.Add(1)
	default:
		q.accepted.Add(1)
	}
	return nil
}

// Stats returns capture statistics.
func (q *Queue) Stats() plugin.CaptureStats {
	return plugin.CaptureStats{
		PacketsReceived: q.packetsReceived.Load(),
		PacketsDropped:  q.packetsDropped.Load(),
	}
}

func (q *Queue) setVerdict(id uint32, verdict int) {
	if err := q.nf.SetVerdict(id, verdict); err != nil {
		q.verdictErrors.Add(1)
	}
}

// verdictFor maps a pipeline result to a netfilter verdict. A payload is
// returned only when the packet must be reinjected modified.
func verdictFor(res core.Result) (int, []byte) {
	if res.Verdict == core.VerdictDrop {
		return nfqueue.NfDrop, nil
	}
	if res.Modified {
		return nfqueue.NfAccept, res.Data
	}
	return nfqueue.NfAccept, nil
}
