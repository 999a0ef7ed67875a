// Package pipeline implements pipeline construction.
package pipeline

import (
	"firestige.xyz/dsmark/internal/core/decoder"
	"firestige.xyz/dsmark/internal/ruleset"
	"firestige.xyz/dsmark/pkg/plugin"
)

// Builder provides a fluent interface for building pipelines.
// This is an alternative to using Config directly.
type Builder struct {
	config Config
}

// NewBuilder creates a new pipeline builder.
func NewBuilder() *Builder {
	return &Builder{
		config: Config{
			Workers:    1,
			BufferSize: defaultBufferSize,
		},
	}
}

// WithCapturer sets the packet capturer.
func (b *Builder) WithCapturer(c plugin.Capturer) *Builder {
	b.config.Capturer = c
	return b
}

// WithEmitter sets the emitter that receives every verdict.
func (b *Builder) WithEmitter(e plugin.Emitter) *Builder {
	b.config.Emitter = e
	return b
}

// WithDecoder sets the packet decoder.
func (b *Builder) WithDecoder(d decoder.Decoder) *Builder {
	b.config.Decoder = d
	return b
}

// WithTable sets the installed rule table.
func (b *Builder) WithTable(t *ruleset.Table) *Builder {
	b.config.Table = t
	return b
}

// WithWorkers sets the number of evaluation workers.
func (b *Builder) WithWorkers(n int) *Builder {
	b.config.Workers = n
	return b
}

// WithBufferSize sets the raw packet channel buffer size.
func (b *Builder) WithBufferSize(size int) *Builder {
	b.config.BufferSize = size
	return b
}

// Build creates the pipeline.
func (b *Builder) Build() (*Pipeline, error) {
	return New(b.config)
}
