package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"firestige.xyz/dsmark/internal/config"
)

func TestNewLevels(t *testing.T) {
	tests := []struct {
		level string
		trace bool
		debug bool
		info  bool
	}{
		{"trace", true, true, true},
		{"debug", false, true, true},
		{"INFO", false, false, true},
		{"warn", false, false, false},
		{"error", false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			l, err := New(config.LogConfig{Level: tt.level, Format: "text"}, &bytes.Buffer{})
			if err != nil {
				t.Fatalf("New(%q) returned error: %v", tt.level, err)
			}
			if l.IsTraceEnabled() != tt.trace || l.IsDebugEnabled() != tt.debug || l.IsInfoEnabled() != tt.info {
				t.Errorf("level %q: trace=%v debug=%v info=%v", tt.level,
					l.IsTraceEnabled(), l.IsDebugEnabled(), l.IsInfoEnabled())
			}
		})
	}
}

func TestNewInvalidLevel(t *testing.T) {
	_, err := New(config.LogConfig{Level: "loud", Format: "json"}, &bytes.Buffer{})
	if err == nil {
		t.Fatal("Expected error for invalid log level, got nil")
	}
	if !strings.Contains(err.Error(), "invalid log level") {
		t.Errorf("Expected error about invalid log level, got: %v", err)
	}
}

func TestNewInvalidFormat(t *testing.T) {
	_, err := New(config.LogConfig{Level: "info", Format: "xml"}, &bytes.Buffer{})
	if err == nil {
		t.Fatal("Expected error for invalid log format, got nil")
	}
	if !strings.Contains(err.Error(), "unsupported log format") {
		t.Errorf("Expected error about unsupported format, got: %v", err)
	}

	if _, err := New(config.LogConfig{Level: "info", Format: "pattern"}, &bytes.Buffer{}); err == nil {
		t.Error("Expected error for pattern format without pattern, got nil")
	}
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(config.LogConfig{Level: "info", Format: "json"}, &buf)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	l.WithField("rule", "voice").WithFields(map[string]interface{}{"dscp": 46}).Info("rule installed")
	l.Debug("filtered")

	var line map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("Expected one JSON line, got %q: %v", buf.String(), err)
	}
	if line["msg"] != "rule installed" {
		t.Errorf("Expected msg field, got %v", line["msg"])
	}
	if line["rule"] != "voice" || line["dscp"] != float64(46) {
		t.Errorf("Expected fields rule=voice dscp=46, got %v", line)
	}
	if line["level"] != "info" {
		t.Errorf("Expected level info, got %v", line["level"])
	}
}

func TestTextFormat(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(config.LogConfig{Level: "info", Format: "text"}, &buf)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	l.WithError(errors.New("boom")).Warn("emit failed")

	output := buf.String()
	if !strings.Contains(output, `msg="emit failed"`) {
		t.Errorf("Text output should contain message, got %q", output)
	}
	if !strings.Contains(output, "error=boom") {
		t.Errorf("Text output should contain error=boom, got %q", output)
	}
}

func TestPatternFormat(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(config.LogConfig{
		Level:      "debug",
		Format:     "pattern",
		Pattern:    "[%level] %field %msg%n",
		TimeFormat: time.RFC3339,
	}, &buf)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	l.WithFields(map[string]interface{}{"b": 2, "a": "x"}).Debug("hello")

	want := "[debug] a=x,b=2 hello\n"
	if buf.String() != want {
		t.Errorf("pattern output = %q, want %q", buf.String(), want)
	}
}

func TestFormatterPlaceholders(t *testing.T) {
	f := &formatter{pattern: "%time|%level|%field|%msg%n", time: "2006-01-02"}
	entry := &logrus.Entry{
		Time:    time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC),
		Level:   logrus.WarnLevel,
		Message: "m",
		Data:    logrus.Fields{},
	}

	out, err := f.Format(entry)
	if err != nil {
		t.Fatalf("Format failed: %v", err)
	}
	if string(out) != "2024-05-06|warning||m\n" {
		t.Errorf("unexpected output %q", out)
	}
}

func TestFileOutput(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "dsmark.log")

	var stdout bytes.Buffer
	l, err := New(config.LogConfig{
		Level:  "info",
		Format: "json",
		Outputs: config.LogOutputsConfig{
			File: config.FileOutputConfig{
				Enabled: true,
				Path:    logPath,
				Rotation: config.RotationConfig{
					MaxSizeMB:  10,
					MaxBackups: 3,
					MaxAgeDays: 7,
				},
			},
		},
	}, &stdout)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	l.Info("to both")

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("Log file was not created at %s: %v", logPath, err)
	}
	if !strings.Contains(string(data), "to both") || !strings.Contains(stdout.String(), "to both") {
		t.Errorf("Expected message in file and stdout, got file=%q stdout=%q", data, stdout.String())
	}
}

func TestFileOutputMissingPath(t *testing.T) {
	_, err := New(config.LogConfig{
		Level:   "info",
		Format:  "json",
		Outputs: config.LogOutputsConfig{File: config.FileOutputConfig{Enabled: true}},
	}, &bytes.Buffer{})
	if err == nil {
		t.Fatal("Expected error for missing file path, got nil")
	}
	if !strings.Contains(err.Error(), "path") {
		t.Errorf("Expected error about missing path, got: %v", err)
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestMultiWriterKeepsWriting(t *testing.T) {
	var buf bytes.Buffer
	w := NewMultiWriter().Add(failingWriter{}).Add(&buf)

	n, err := w.Write([]byte("line"))
	if err == nil {
		t.Error("Expected error from failing writer")
	}
	if n != 4 || buf.String() != "line" {
		t.Errorf("Expected later writers to receive data, n=%d buf=%q", n, buf.String())
	}
}

func TestInitReplacesGlobal(t *testing.T) {
	before := GetLogger()
	if before == nil {
		t.Fatal("Expected a default logger before Init")
	}

	if err := Init(config.LogConfig{Level: "warn", Format: "json"}); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if GetLogger().IsInfoEnabled() {
		t.Error("Expected info disabled after Init at warn")
	}

	if err := Init(config.LogConfig{Level: "nope", Format: "json"}); err == nil {
		t.Error("Expected Init error for invalid level")
	}
	if GetLogger().IsInfoEnabled() {
		t.Error("Failed Init must keep the previous logger")
	}
}
