package console

import (
	"bytes"
	"context"
	"encoding/json"
	"net/netip"
	"strings"
	"testing"
	"time"

	"firestige.xyz/dsmark/internal/core"
)

func newTestEmitter(t *testing.T, cfg map[string]any) (*ConsoleEmitter, *bytes.Buffer) {
	t.Helper()
	e := NewConsoleEmitter().(*ConsoleEmitter)
	if err := e.Init(cfg); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	buf := &bytes.Buffer{}
	e.out = buf
	return e, buf
}

func rewritten() core.Result {
	return core.Result{
		Raw:  core.RawPacket{Timestamp: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)},
		Data: make([]byte, 34),
		IP: core.IPHeader{
			Version:  4,
			SrcIP:    netip.MustParseAddr("10.0.0.1"),
			DstIP:    netip.MustParseAddr("10.0.0.2"),
			Protocol: 17,
			DSField:  0x89, // AF41, ECT(1)
		},
		OrigDS:   0xb9, // EF, ECT(1)
		Modified: true,
	}
}

func TestConsoleEmitter_Init(t *testing.T) {
	tests := []struct {
		name    string
		config  map[string]any
		wantErr bool
		wantFmt string
	}{
		{name: "nil config defaults to text", config: nil, wantFmt: "text"},
		{name: "json format", config: map[string]any{"format": "json"}, wantFmt: "json"},
		{name: "invalid format", config: map[string]any{"format": "xml"}, wantErr: true},
		{name: "unknown key", config: map[string]any{"fmt": "json"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewConsoleEmitter().(*ConsoleEmitter)
			err := e.Init(tt.config)
			if (err != nil) != tt.wantErr {
				t.Errorf("Init() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && e.config.Format != tt.wantFmt {
				t.Errorf("Init() format = %v, want %v", e.config.Format, tt.wantFmt)
			}
		})
	}
}

func TestConsoleEmitter_Text(t *testing.T) {
	e, buf := newTestEmitter(t, nil)

	if err := e.Emit(context.Background(), rewritten()); err != nil {
		t.Fatalf("Emit failed: %v", err)
	}
	want := "[12:00:00.000] 10.0.0.1 > 10.0.0.2 proto=17 dscp=EF>AF41 ecn=1 verdict=continue\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}

	buf.Reset()
	nonIP := core.Result{Data: make([]byte, 42), Verdict: core.VerdictContinue}
	if err := e.Emit(context.Background(), nonIP); err != nil {
		t.Fatalf("Emit failed: %v", err)
	}
	if !strings.Contains(buf.String(), "non-ip len=42 verdict=continue") {
		t.Errorf("unexpected non-ip line %q", buf.String())
	}
}

func TestConsoleEmitter_JSON(t *testing.T) {
	e, buf := newTestEmitter(t, map[string]any{"format": "json"})

	if err := e.Emit(context.Background(), rewritten()); err != nil {
		t.Fatalf("Emit failed: %v", err)
	}

	var got map[string]any
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("invalid json %q: %v", buf.String(), err)
	}
	if got["dscp_in"] != float64(46) || got["dscp_out"] != float64(34) {
		t.Errorf("unexpected dscp fields: %v", got)
	}
	if got["verdict"] != "continue" || got["modified"] != true {
		t.Errorf("unexpected verdict fields: %v", got)
	}
}

func TestConsoleEmitter_OnlyModified(t *testing.T) {
	e, buf := newTestEmitter(t, map[string]any{"only_modified": true})

	untouched := rewritten()
	untouched.Modified = false
	untouched.IP.DSField = untouched.OrigDS
	_ = e.Emit(context.Background(), untouched)
	if buf.Len() != 0 {
		t.Errorf("unmodified packet printed: %q", buf.String())
	}

	dropped := untouched
	dropped.Verdict = core.VerdictDrop
	_ = e.Emit(context.Background(), dropped)
	if !strings.Contains(buf.String(), "dscp=EF ecn=1 verdict=drop") {
		t.Errorf("dropped packet not printed: %q", buf.String())
	}
	if e.Emitted() != 2 {
		t.Errorf("expected 2 emitted, got %d", e.Emitted())
	}
}

func TestDiscardEmitter(t *testing.T) {
	e := NewDiscardEmitter().(*ConsoleEmitter)
	if e.Name() != "discard" {
		t.Errorf("expected name discard, got %s", e.Name())
	}
	if err := e.Init(nil); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := e.Emit(context.Background(), rewritten()); err != nil {
			t.Fatalf("Emit failed: %v", err)
		}
	}
	if e.Emitted() != 3 {
		t.Errorf("expected 3 emitted, got %d", e.Emitted())
	}
}
