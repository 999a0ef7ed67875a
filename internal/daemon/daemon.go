// Package daemon runs the marking pipeline as a long-lived process.
package daemon

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"firestige.xyz/dsmark/internal/config"
	"firestige.xyz/dsmark/internal/log"
	"firestige.xyz/dsmark/internal/metrics"
	"firestige.xyz/dsmark/internal/pipeline"
	"firestige.xyz/dsmark/internal/ruleset"
	"firestige.xyz/dsmark/internal/xt"
	"firestige.xyz/dsmark/pkg/plugin"
)

const stopTimeout = 5 * time.Second

// Daemon wires the configured source, rule table and sink into a pipeline
// and owns their lifecycle.
type Daemon struct {
	// Configuration
	config     *config.GlobalConfig
	configPath string
	pidFile    string
	registry   *xt.Registry

	// Core components
	capturer        plugin.Capturer
	emitter         plugin.Emitter
	pipeline        *pipeline.Pipeline
	metricsServer   *metrics.Server // nil if metrics disabled
	unregisterRules func()

	// Lifecycle management
	ctx          context.Context
	cancel       context.CancelFunc
	shutdownChan chan struct{}
	sigChan      chan os.Signal
	stopOnce     sync.Once
	mu           sync.Mutex // serializes Reload
}

// New loads the configuration at configPath. Nothing is started yet.
func New(configPath, pidFile string) (*Daemon, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	d := &Daemon{
		config:       cfg,
		configPath:   configPath,
		pidFile:      pidFile,
		registry:     xt.DefaultRegistry(),
		shutdownChan: make(chan struct{}, 1),
	}
	d.ctx, d.cancel = context.WithCancel(context.Background())
	return d, nil
}

// Start initializes logging, installs the rule table, opens the source and
// sink and starts the pipeline.
func (d *Daemon) Start() error {
	// 1. Initialize logging system
	if err := log.Init(d.config.Log); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	log.GetLogger().WithFields(map[string]interface{}{
		"config": d.configPath,
		"source": d.config.Source.Type,
		"sink":   d.config.Sink.Type,
	}).Info("starting dsmark daemon")

	// 2. Write PID file
	if err := d.writePIDFile(); err != nil {
		return err
	}

	// 3. Start metrics server
	if err := d.startMetrics(); err != nil {
		return err
	}

	// 4. Install rule table
	table, err := ruleset.Install(d.config.Table, d.registry)
	if err != nil {
		return fmt.Errorf("failed to install rules: %w", err)
	}
	if err := d.registerRules(table); err != nil {
		return err
	}

	// 5. Create and start plugins
	if err := d.startPlugins(); err != nil {
		return err
	}

	// 6. Start pipeline
	p, err := pipeline.NewBuilder().
		WithCapturer(d.capturer).
		WithEmitter(d.emitter).
		WithTable(table).
		WithWorkers(d.workers()).
		WithBufferSize(d.config.Pipeline.BufferSize).
		Build()
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}
	if err := p.Start(); err != nil {
		return fmt.Errorf("failed to start pipeline: %w", err)
	}
	d.pipeline = p

	log.GetLogger().Info("daemon started successfully")
	return nil
}

// workers returns the pipeline worker count. A pcap sink gets a single
// worker so the output file keeps the input order.
func (d *Daemon) workers() int {
	n := d.config.Pipeline.Workers
	if n > 1 && d.config.Sink.Type == "pcap" {
		log.GetLogger().WithField("workers", n).Info("pcap sink keeps frame order, using one pipeline worker")
		return 1
	}
	return n
}

func (d *Daemon) startPlugins() error {
	capturer, err := plugin.NewCapturer(d.config.Source.Type, d.config.Source.Config)
	if err != nil {
		return err
	}
	d.capturer = capturer

	// The nfqueue source hands verdicts back on the queue it read from.
	if em, ok := capturer.(plugin.Emitter); ok && d.config.Sink.Type == d.config.Source.Type {
		d.emitter = em
	} else {
		em, err := plugin.NewEmitter(d.config.Sink.Type, d.config.Sink.Config)
		if err != nil {
			return err
		}
		d.emitter = em
	}

	if err := d.emitter.Start(d.ctx); err != nil {
		return fmt.Errorf("failed to start sink %s: %w", d.emitter.Name(), err)
	}
	if err := d.capturer.Start(d.ctx); err != nil {
		return fmt.Errorf("failed to start source %s: %w", d.capturer.Name(), err)
	}
	return nil
}

// Stop performs graceful shutdown of all daemon components. It is safe to
// call more than once.
func (d *Daemon) Stop() {
	d.stopOnce.Do(d.stop)
}

func (d *Daemon) stop() {
	logger := log.GetLogger()
	logger.Info("initiating graceful shutdown")

	// 1. Stop pipeline (no more frames pulled from the source)
	if d.pipeline != nil {
		if err := d.pipeline.Stop(); err != nil {
			logger.WithError(err).Error("error stopping pipeline")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()

	// 2. Stop source, then sink so buffered output is flushed
	if d.capturer != nil {
		if err := d.capturer.Stop(ctx); err != nil {
			logger.WithError(err).Error("error stopping source")
		}
	}
	if d.emitter != nil && plugin.Plugin(d.emitter) != plugin.Plugin(d.capturer) {
		if err := d.emitter.Stop(ctx); err != nil {
			logger.WithError(err).Error("error stopping sink")
		}
	}

	// 3. Stop metrics server
	if d.unregisterRules != nil {
		d.unregisterRules()
	}
	if d.metricsServer != nil {
		if err := d.metricsServer.Stop(ctx); err != nil {
			logger.WithError(err).Error("error stopping metrics server")
		}
	}

	// 4. Cancel context to signal all goroutines
	d.cancel()

	// 5. Unregister signal handler to prevent goroutine leak
	if d.sigChan != nil {
		signal.Stop(d.sigChan)
	}

	// 6. Remove PID file
	if err := d.removePIDFile(); err != nil {
		logger.WithError(err).Error("error removing PID file")
	}

	logger.Info("daemon stopped gracefully")
}

// Run blocks until shutdown is triggered and returns the capture error, if
// any. Shutdown can be triggered by:
//  1. OS signals (SIGTERM, SIGINT)
//  2. TriggerShutdown
//  3. the source running dry, as a pcap file does
//
// SIGHUP reloads the configuration.
func (d *Daemon) Run() error {
	if d.pipeline == nil {
		return fmt.Errorf("daemon not started")
	}

	d.sigChan = make(chan os.Signal, 1)
	signal.Notify(d.sigChan, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)

	log.GetLogger().Info("daemon running, waiting for signals")

	for {
		select {
		case sig := <-d.sigChan:
			switch sig {
			case syscall.SIGTERM, syscall.SIGINT:
				log.GetLogger().WithField("signal", sig.String()).Info("received shutdown signal")
				d.Stop()
				return nil

			case syscall.SIGHUP:
				log.GetLogger().Info("received reload signal")
				if err := d.Reload(); err != nil {
					log.GetLogger().WithError(err).Error("failed to reload config")
				}
			}

		case <-d.shutdownChan:
			log.GetLogger().Info("shutdown triggered")
			d.Stop()
			return nil

		case <-d.pipeline.Done():
			err := d.pipeline.Wait()
			if err == nil {
				log.GetLogger().Info("source exhausted")
			}
			d.Stop()
			return err
		}
	}
}

// TriggerShutdown makes Run stop the daemon and return.
func (d *Daemon) TriggerShutdown() {
	select {
	case d.shutdownChan <- struct{}{}:
	default:
	}
}

// Reload re-reads the configuration file.
// Hot-reloadable: log settings, the rule table.
// Cold (requires restart): source, sink, pipeline sizing, metrics listener.
// A rule table that fails to install leaves the running one in place.
func (d *Daemon) Reload() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	log.GetLogger().WithField("path", d.configPath).Info("reloading configuration")

	newConfig, err := config.Load(d.configPath)
	if err != nil {
		return fmt.Errorf("failed to load new config: %w", err)
	}
	table, err := ruleset.Install(newConfig.Table, d.registry)
	if err != nil {
		return fmt.Errorf("failed to install rules: %w", err)
	}

	if err := log.Init(newConfig.Log); err != nil {
		log.GetLogger().WithError(err).Error("failed to reinitialize logging")
	}

	if err := d.pipeline.SetTable(table); err != nil {
		return err
	}
	if err := d.registerRules(table); err != nil {
		log.GetLogger().WithError(err).Warn("rule metrics not re-registered")
	}

	requiresRestart := []string{}
	if newConfig.Source.Type != d.config.Source.Type {
		requiresRestart = append(requiresRestart, "source")
	}
	if newConfig.Sink.Type != d.config.Sink.Type {
		requiresRestart = append(requiresRestart, "sink")
	}
	if newConfig.Pipeline != d.config.Pipeline {
		requiresRestart = append(requiresRestart, "pipeline")
	}
	if newConfig.Metrics != d.config.Metrics {
		requiresRestart = append(requiresRestart, "metrics")
	}

	// Cold settings keep their running values.
	newConfig.Source, newConfig.Sink = d.config.Source, d.config.Sink
	newConfig.Pipeline, newConfig.Metrics = d.config.Pipeline, d.config.Metrics
	d.config = newConfig

	log.GetLogger().WithFields(map[string]interface{}{
		"rules":            len(table.Rules()),
		"requires_restart": requiresRestart,
	}).Info("configuration reloaded")
	return nil
}

// Stats returns the pipeline counters.
func (d *Daemon) Stats() pipeline.Stats {
	if d.pipeline == nil {
		return pipeline.Stats{}
	}
	return d.pipeline.Stats()
}

// Table returns the rule table in use.
func (d *Daemon) Table() *ruleset.Table {
	if d.pipeline == nil {
		return nil
	}
	return d.pipeline.Table()
}

// registerRules exports table's counters, replacing the previous table's.
func (d *Daemon) registerRules(table *ruleset.Table) error {
	if !d.config.Metrics.Enabled {
		return nil
	}
	if d.unregisterRules != nil {
		d.unregisterRules()
		d.unregisterRules = nil
	}
	unregister, err := metrics.RegisterRules(table)
	if err != nil {
		return fmt.Errorf("failed to register rule metrics: %w", err)
	}
	d.unregisterRules = unregister
	return nil
}

// startMetrics starts the metrics HTTP server if enabled.
func (d *Daemon) startMetrics() error {
	if !d.config.Metrics.Enabled {
		log.GetLogger().Info("metrics server disabled")
		return nil
	}

	d.metricsServer = metrics.NewServer(d.config.Metrics.Listen, d.config.Metrics.Path)
	if err := d.metricsServer.Start(d.ctx); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}
	return nil
}

// writePIDFile writes the current process ID to the PID file.
func (d *Daemon) writePIDFile() error {
	if d.pidFile == "" {
		return nil
	}

	pid := os.Getpid()
	data := []byte(strconv.Itoa(pid) + "\n")

	if err := os.WriteFile(d.pidFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write PID file %s: %w", d.pidFile, err)
	}
	return nil
}

// removePIDFile removes the PID file.
func (d *Daemon) removePIDFile() error {
	if d.pidFile == "" {
		return nil
	}

	if err := os.Remove(d.pidFile); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove PID file %s: %w", d.pidFile, err)
	}
	return nil
}
