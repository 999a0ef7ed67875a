// Package pipeline implements the packet processing pipeline engine.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"firestige.xyz/dsmark/internal/core"
	"firestige.xyz/dsmark/internal/core/decoder"
	"firestige.xyz/dsmark/internal/core/dsfield"
	"firestige.xyz/dsmark/internal/log"
	"firestige.xyz/dsmark/internal/metrics"
	"firestige.xyz/dsmark/internal/ruleset"
	"firestige.xyz/dsmark/pkg/plugin"
)

const defaultBufferSize = 1024

// Pipeline moves frames from a capturer through the rule table to an
// emitter. One goroutine captures; Workers goroutines evaluate. Each frame
// is owned by a single worker from decode to emit.
type Pipeline struct {
	capturer plugin.Capturer
	emitter  plugin.Emitter
	decoder  decoder.Decoder
	table    atomic.Pointer[ruleset.Table]
	workers  int
	metrics  *Metrics

	// Runtime state
	ctx     context.Context
	cancel  context.CancelFunc
	emitCtx context.Context // outlives cancel so queued frames still get a verdict
	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool
	stopped bool
	done    chan struct{}
	err     error

	// Channel for backpressure control
	rawPacketChan chan core.RawPacket
}

// Config contains pipeline configuration.
type Config struct {
	Capturer   plugin.Capturer
	Emitter    plugin.Emitter
	Decoder    decoder.Decoder // defaults to decoder.NewStandardDecoder()
	Table      *ruleset.Table
	Workers    int // defaults to 1
	BufferSize int // raw packet channel buffer size
}

// New creates a new pipeline.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Capturer == nil {
		return nil, fmt.Errorf("%w: pipeline requires a capturer", core.ErrConfigInvalid)
	}
	if cfg.Emitter == nil {
		return nil, fmt.Errorf("%w: pipeline requires an emitter", core.ErrConfigInvalid)
	}
	if cfg.Table == nil {
		return nil, fmt.Errorf("%w: pipeline requires a rule table", core.ErrConfigInvalid)
	}
	if cfg.Decoder == nil {
		cfg.Decoder = decoder.NewStandardDecoder()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}

	ctx, cancel := context.WithCancel(context.Background())

	p := &Pipeline{
		capturer:      cfg.Capturer,
		emitter:       cfg.Emitter,
		decoder:       cfg.Decoder,
		workers:       cfg.Workers,
		metrics:       NewMetrics(),
		ctx:           ctx,
		cancel:        cancel,
		emitCtx:       context.WithoutCancel(ctx),
		done:          make(chan struct{}),
		rawPacketChan: make(chan core.RawPacket, cfg.BufferSize),
	}
	p.table.Store(cfg.Table)
	return p, nil
}

// Table returns the rule table frames are currently evaluated against.
func (p *Pipeline) Table() *ruleset.Table {
	return p.table.Load()
}

// SetTable replaces the rule table. Frames already being evaluated finish
// against the old table; later frames see the new one.
func (p *Pipeline) SetTable(t *ruleset.Table) error {
	if t == nil {
		return fmt.Errorf("%w: pipeline requires a rule table", core.ErrConfigInvalid)
	}
	old := p.table.Swap(t)
	log.GetLogger().WithFields(map[string]interface{}{
		"old_rules": len(old.Rules()),
		"rules":     len(t.Rules()),
	}).Info("rule table replaced")
	return nil
}

// Start launches the capture goroutine and the workers. A pipeline runs
// once; starting it again returns core.ErrPipelineStopped.
func (p *Pipeline) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.stopped {
		return core.ErrPipelineStopped
	}
	p.started = true

	table := p.table.Load()
	log.GetLogger().WithFields(map[string]interface{}{
		"table":   table.Name(),
		"rules":   len(table.Rules()),
		"workers": p.workers,
	}).Info("pipeline starting")

	var workers sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		workers.Add(1)
		go func() {
			defer workers.Done()
			p.processLoop()
		}()
	}

	p.wg.Add(1)
	go p.captureLoop()

	go func() {
		p.wg.Wait()
		workers.Wait()
		close(p.done)
	}()
	return nil
}

// Wait blocks until the capturer is exhausted and every captured frame has
// been emitted, or until Stop. It returns the capture error, if any.
func (p *Pipeline) Wait() error {
	<-p.done
	return p.err
}

// Done is closed when the pipeline has finished.
func (p *Pipeline) Done() <-chan struct{} {
	return p.done
}

// Stop stops the capturer and waits for the workers to emit every frame
// already queued, so each one still reaches the emitter.
func (p *Pipeline) Stop() error {
	p.mu.Lock()
	started := p.started
	if !started && !p.stopped {
		close(p.done)
	}
	p.stopped = true
	p.mu.Unlock()

	log.GetLogger().Info("pipeline stopping")
	p.cancel()
	if started {
		<-p.done
	}

	s := p.Stats()
	log.GetLogger().WithFields(map[string]interface{}{
		"received":  s.Received,
		"skipped":   s.Skipped,
		"rewritten": s.Rewritten,
		"dropped":   s.Dropped,
		"emitted":   s.Emitted,
	}).Info("pipeline stopped")
	return nil
}

// captureLoop reads packets from capturer and sends to processing channel.
func (p *Pipeline) captureLoop() {
	defer p.wg.Done()
	defer close(p.rawPacketChan)

	before := p.capturer.Stats()
	err := p.capturer.Capture(p.ctx, p.rawPacketChan)
	if err != nil && p.ctx.Err() == nil && !errors.Is(err, context.Canceled) {
		// Context not cancelled, this is a real error
		log.GetLogger().WithError(err).Error("capture failed")
		p.err = fmt.Errorf("capture: %w", err)
	}

	after := p.capturer.Stats()
	if lost := after.PacketsDropped + after.PacketsIfDropped - before.PacketsDropped - before.PacketsIfDropped; lost > 0 {
		metrics.CaptureDropsTotal.Add(float64(lost))
	}
}

// processLoop drains the channel until captureLoop closes it. Cancellation
// only stops capture; frames already queued are still processed.
func (p *Pipeline) processLoop() {
	for raw := range p.rawPacketChan {
		p.processPacket(raw)
	}
}

// processPacket runs one frame through decode, evaluation and emit. Frames
// without an IP header bypass the rule table with a Continue verdict.
func (p *Pipeline) processPacket(raw core.RawPacket) {
	start := time.Now()
	p.metrics.Received.Add(1)
	metrics.PipelinePacketsTotal.WithLabelValues(metrics.StageReceived).Inc()

	res := core.Result{Raw: raw, Data: raw.Data, Verdict: core.VerdictContinue}

	decoded, err := p.decoder.Decode(raw)
	if err != nil {
		p.metrics.Skipped.Add(1)
		metrics.PipelinePacketsTotal.WithLabelValues(metrics.StageSkipped).Inc()
		if lg := log.GetLogger(); lg.IsTraceEnabled() {
			lg.WithError(err).Trace("frame skipped")
		}
	} else {
		p.metrics.Decoded.Add(1)
		metrics.PipelinePacketsTotal.WithLabelValues(metrics.StageDecoded).Inc()

		buf := core.NewPacketBuffer(raw.Data, decoded.IP, raw.Shared)
		res.Verdict = p.table.Load().Evaluate(buf)
		res.IP = decoded.IP
		res.OrigDS = decoded.IP.DSField
		res.IP.DSField = dsfield.Read(buf)
		res.Data = buf.Finalize()
		res.Modified = buf.Modified()
		if res.Modified {
			p.metrics.Rewritten.Add(1)
			metrics.PipelinePacketsTotal.WithLabelValues(metrics.StageRewritten).Inc()
		}
		if res.Verdict == core.VerdictDrop {
			p.metrics.Dropped.Add(1)
		}
	}
	metrics.PipelineLatencySeconds.WithLabelValues("evaluate").Observe(time.Since(start).Seconds())
	metrics.VerdictsTotal.WithLabelValues(res.Verdict.String()).Inc()

	if err := p.emitter.Emit(p.emitCtx, res); err != nil {
		p.metrics.EmitErrors.Add(1)
		metrics.PipelinePacketsTotal.WithLabelValues(metrics.StageEmitError).Inc()
		log.GetLogger().WithError(err).WithField("emitter", p.emitter.Name()).Warn("emit failed")
		return
	}
	p.metrics.Emitted.Add(1)
	metrics.PipelinePacketsTotal.WithLabelValues(metrics.StageEmitted).Inc()
	metrics.PipelineLatencySeconds.WithLabelValues("total").Observe(time.Since(start).Seconds())
}

// Stats returns pipeline statistics.
func (p *Pipeline) Stats() Stats {
	return p.metrics.Snapshot()
}
