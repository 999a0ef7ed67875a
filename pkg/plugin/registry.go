package plugin

import (
	"fmt"
	"sort"
	"sync"

	"firestige.xyz/dsmark/internal/core"
)

// CapturerFactory creates a fresh, uninitialized capturer.
type CapturerFactory func() Capturer

// EmitterFactory creates a fresh, uninitialized emitter.
type EmitterFactory func() Emitter

// factoryRegistry maps plugin names to factories of one plugin kind.
type factoryRegistry[F any] struct {
	kind      string
	mu        sync.RWMutex
	factories map[string]F
}

func newFactoryRegistry[F any](kind string) *factoryRegistry[F] {
	return &factoryRegistry[F]{kind: kind, factories: make(map[string]F)}
}

// register panics on programming errors; registration happens in init().
func (r *factoryRegistry[F]) register(name string, f F, isNil bool) {
	if name == "" {
		panic(fmt.Sprintf("plugin: %s registered with empty name", r.kind))
	}
	if isNil {
		panic(fmt.Sprintf("plugin: %s '%s' registered with nil factory", r.kind, name))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[name]; exists {
		panic(fmt.Sprintf("plugin: %s '%s' already registered", r.kind, name))
	}
	r.factories[name] = f
}

func (r *factoryRegistry[F]) get(name string) (F, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[name]
	if !ok {
		var zero F
		return zero, fmt.Errorf("%s '%s': %w", r.kind, name, core.ErrPluginNotFound)
	}
	return f, nil
}

func (r *factoryRegistry[F]) list() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Reset removes every registration. Tests only.
func (r *factoryRegistry[F]) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories = make(map[string]F)
}

var (
	capturerReg = newFactoryRegistry[CapturerFactory]("capturer")
	emitterReg  = newFactoryRegistry[EmitterFactory]("emitter")
)

// RegisterCapturer registers a capturer factory under name. It panics on an
// empty name, a nil factory or a duplicate name.
func RegisterCapturer(name string, f CapturerFactory) {
	capturerReg.register(name, f, f == nil)
}

// GetCapturerFactory returns the capturer factory registered under name.
func GetCapturerFactory(name string) (CapturerFactory, error) {
	return capturerReg.get(name)
}

// ListCapturers returns the registered capturer names, sorted.
func ListCapturers() []string { return capturerReg.list() }

// RegisterEmitter registers an emitter factory under name. It panics on an
// empty name, a nil factory or a duplicate name.
func RegisterEmitter(name string, f EmitterFactory) {
	emitterReg.register(name, f, f == nil)
}

// GetEmitterFactory returns the emitter factory registered under name.
func GetEmitterFactory(name string) (EmitterFactory, error) {
	return emitterReg.get(name)
}

// ListEmitters returns the registered emitter names, sorted.
func ListEmitters() []string { return emitterReg.list() }

// NewCapturer creates and initializes the capturer registered under name.
func NewCapturer(name string, cfg map[string]any) (Capturer, error) {
	f, err := GetCapturerFactory(name)
	if err != nil {
		return nil, err
	}
	c := f()
	if err := c.Init(cfg); err != nil {
		return nil, fmt.Errorf("capturer '%s' init: %w", name, err)
	}
	return c, nil
}

// NewEmitter creates and initializes the emitter registered under name.
func NewEmitter(name string, cfg map[string]any) (Emitter, error) {
	f, err := GetEmitterFactory(name)
	if err != nil {
		return nil, err
	}
	e := f()
	if err := e.Init(cfg); err != nil {
		return nil, fmt.Errorf("emitter '%s' init: %w", name, err)
	}
	return e, nil
}
