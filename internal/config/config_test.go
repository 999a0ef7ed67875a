package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	return path
}

func TestLoadValidConfig(t *testing.T) {
	configPath := writeConfig(t, t.TempDir(), `
dsmark:
  log:
    level: "debug"
    format: "json"
  metrics:
    enabled: true
    listen: "127.0.0.1:9100"
    path: "/metrics"
  pipeline:
    workers: 2
    buffer_size: 128
  source:
    type: pcap
    config:
      path: /tmp/in.pcap
  sink:
    type: pcap
    config:
      path: /tmp/out.pcap
  table:
    rules:
      - name: voice
        family: inet
        matches:
          - name: dscp
            params:
              dscp: 46
        target:
          name: DSCP
          params:
            class: AF41
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("Expected log level debug, got %s", cfg.Log.Level)
	}
	if cfg.Log.Format != "json" {
		t.Errorf("Expected log format json, got %s", cfg.Log.Format)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Listen != "127.0.0.1:9100" {
		t.Errorf("Unexpected metrics config %+v", cfg.Metrics)
	}
	if cfg.Pipeline.Workers != 2 || cfg.Pipeline.BufferSize != 128 {
		t.Errorf("Unexpected pipeline config %+v", cfg.Pipeline)
	}
	if cfg.Source.Config["path"] != "/tmp/in.pcap" {
		t.Errorf("Expected source path /tmp/in.pcap, got %v", cfg.Source.Config["path"])
	}
	if cfg.Sink.Type != "pcap" {
		t.Errorf("Expected sink type pcap, got %s", cfg.Sink.Type)
	}
	if cfg.Table.Name != DefaultTable {
		t.Errorf("Expected table %s, got %s", DefaultTable, cfg.Table.Name)
	}
	if len(cfg.Table.Rules) != 1 {
		t.Fatalf("Expected 1 rule, got %d", len(cfg.Table.Rules))
	}
	rule := cfg.Table.Rules[0]
	if rule.Name != "voice" || rule.Family != "inet" {
		t.Errorf("Unexpected rule %+v", rule)
	}
	if len(rule.Matches) != 1 || rule.Matches[0].Name != "dscp" {
		t.Errorf("Unexpected matches %+v", rule.Matches)
	}
	if rule.Target == nil || rule.Target.Name != "DSCP" || rule.Target.Params["class"] != "AF41" {
		t.Errorf("Unexpected target %+v", rule.Target)
	}
}

func TestLoadDefaults(t *testing.T) {
	configPath := writeConfig(t, t.TempDir(), `
dsmark:
  source:
    config:
      path: /tmp/in.pcap
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Log.Level != "info" {
		t.Errorf("Expected default log level info, got %s", cfg.Log.Level)
	}
	if cfg.Log.Format != "text" {
		t.Errorf("Expected default log format text, got %s", cfg.Log.Format)
	}
	if cfg.Metrics.Enabled {
		t.Error("Expected metrics disabled by default")
	}
	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("Expected default metrics path /metrics, got %s", cfg.Metrics.Path)
	}
	if cfg.Pipeline.Workers != runtime.GOMAXPROCS(0) {
		t.Errorf("Expected workers to default to GOMAXPROCS, got %d", cfg.Pipeline.Workers)
	}
	if cfg.Pipeline.BufferSize != 4096 {
		t.Errorf("Expected default buffer size 4096, got %d", cfg.Pipeline.BufferSize)
	}
	if cfg.Source.Type != "pcap" || cfg.Sink.Type != "discard" {
		t.Errorf("Expected pcap -> discard, got %s -> %s", cfg.Source.Type, cfg.Sink.Type)
	}
	if cfg.Log.Outputs.File.Rotation.MaxSizeMB != 100 {
		t.Errorf("Expected default rotation 100MB, got %d", cfg.Log.Outputs.File.Rotation.MaxSizeMB)
	}
}

func TestLoadNFQueueSinkDefault(t *testing.T) {
	configPath := writeConfig(t, t.TempDir(), `
dsmark:
  source:
    type: nfqueue
    config:
      queue_num: 3
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Sink.Type != "nfqueue" {
		t.Errorf("Expected nfqueue sink, got %s", cfg.Sink.Type)
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"log level", "dsmark:\n  log:\n    level: loud\n"},
		{"log format", "dsmark:\n  log:\n    format: xml\n"},
		{"source type", "dsmark:\n  source:\n    type: pfring\n"},
		{"sink type", "dsmark:\n  sink:\n    type: kafka\n"},
		{"nfqueue sink without nfqueue source", "dsmark:\n  sink:\n    type: nfqueue\n"},
		{"nfqueue source with pcap sink", "dsmark:\n  source:\n    type: nfqueue\n  sink:\n    type: pcap\n"},
		{"negative workers", "dsmark:\n  pipeline:\n    workers: -1\n"},
		{"metrics path", "dsmark:\n  metrics:\n    enabled: true\n    path: metrics\n"},
		{"bad family", "dsmark:\n  table:\n    rules:\n      - family: arp\n"},
		{"file log without path", "dsmark:\n  log:\n    outputs:\n      file:\n        enabled: true\n        path: \"\"\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := writeConfig(t, t.TempDir(), tt.content)
			if _, err := Load(configPath); err == nil {
				t.Errorf("Expected error for %s, got nil", tt.name)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yml")); err == nil {
		t.Error("Expected error for missing config file, got nil")
	}
}

func TestLoadEnvOverride(t *testing.T) {
	configPath := writeConfig(t, t.TempDir(), `
dsmark:
  log:
    level: "info"
`)

	t.Setenv("DSMARK_LOG_LEVEL", "debug")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Expected log level debug from env var, got %s", cfg.Log.Level)
	}
}

func TestLoadRulesFile(t *testing.T) {
	dir := t.TempDir()
	rules := `
name: mangle
rules:
  - name: bulk
    family: ipv4
    matches:
      - name: tos
        params: {value: 0x08}
    target:
      name: DSCP
      params: {class: CS1}
`
	if err := os.WriteFile(filepath.Join(dir, "rules.yaml"), []byte(rules), 0644); err != nil {
		t.Fatalf("Failed to write rules: %v", err)
	}
	configPath := writeConfig(t, dir, `
dsmark:
  rules_file: rules.yaml
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.RulesFile != filepath.Join(dir, "rules.yaml") {
		t.Errorf("Expected rules file resolved next to config, got %s", cfg.RulesFile)
	}
	if len(cfg.Table.Rules) != 1 || cfg.Table.Rules[0].Name != "bulk" {
		t.Errorf("Unexpected rules %+v", cfg.Table.Rules)
	}
}

func TestLoadRulesFileAndInlineTable(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "rules.yaml"), []byte("rules: []\n"), 0644); err != nil {
		t.Fatalf("Failed to write rules: %v", err)
	}
	configPath := writeConfig(t, dir, `
dsmark:
  rules_file: rules.yaml
  table:
    rules:
      - name: x
`)

	if _, err := Load(configPath); err == nil {
		t.Error("Expected error for rules_file with inline table, got nil")
	}
}
