package afpacket

import (
	"fmt"

	"firestige.xyz/dsmark/pkg/plugin"
)

const pluginName = "afpacket"

// Default configuration values
const (
	defaultSnapLen    = 65535
	defaultBufferMB   = 64
	defaultFanoutID   = 42
	defaultFanoutType = "hash"
)

// Config represents afpacket-specific configuration.
type Config struct {
	Interface   string `mapstructure:"interface"`   // required
	BPFFilter   string `mapstructure:"bpf_filter"`  // optional
	SnapLen     int    `mapstructure:"snap_len"`    // optional, default 65535
	BufferMB    int    `mapstructure:"buffer_mb"`   // optional, default 64
	FanoutID    int    `mapstructure:"fanout_id"`   // optional, default 42
	FanoutType  string `mapstructure:"fanout_type"` // optional: hash or "" (none), default hash
	Promiscuous bool   `mapstructure:"promiscuous"` // optional, default false
}

func parseConfig(cfg map[string]any) (Config, error) {
	c := Config{
		SnapLen:    defaultSnapLen,
		BufferMB:   defaultBufferMB,
		FanoutID:   defaultFanoutID,
		FanoutType: defaultFanoutType,
	}
	if err := plugin.DecodeConfig(cfg, &c); err != nil {
		return c, fmt.Errorf("afpacket: %w", err)
	}
	if c.Interface == "" {
		return c, fmt.Errorf("afpacket: interface is required")
	}
	if c.FanoutType != "" && c.FanoutType != "hash" {
		return c, fmt.Errorf("afpacket: unknown fanout_type %q (only 'hash' is supported)", c.FanoutType)
	}
	if c.FanoutID < 0 || c.FanoutID > 0xFFFF {
		return c, fmt.Errorf("afpacket: fanout_id %d out of range", c.FanoutID)
	}
	return c, nil
}
