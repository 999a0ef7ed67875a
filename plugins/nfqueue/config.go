// Package nfqueue implements an inline capturer and verdict emitter on a
// netfilter queue. Rules such as
//
//	nft add rule inet mangle prerouting queue num 0 bypass
//
// hand packets to dsmark; every packet gets exactly one verdict back.
package nfqueue

import (
	"fmt"
	"time"

	"firestige.xyz/dsmark/pkg/plugin"
)

const pluginName = "nfqueue"

// Default configuration values
const (
	defaultMaxPacketLen = 0xFFFF
	defaultMaxQueueLen  = 1024
	defaultWriteTimeout = 15 * time.Millisecond
)

// Config represents nfqueue-specific configuration.
type Config struct {
	QueueNum     uint16        `mapstructure:"queue_num"`      // optional, default 0
	MaxPacketLen uint32        `mapstructure:"max_packet_len"` // optional, default 65535
	MaxQueueLen  uint32        `mapstructure:"max_queue_len"`  // optional, default 1024
	FailOpen     *bool         `mapstructure:"fail_open"`      // optional, default true
	WriteTimeout time.Duration `mapstructure:"write_timeout"`  // optional, default 15ms
}

func parseConfig(cfg map[string]any) (Config, error) {
	c := Config{
		MaxPacketLen: defaultMaxPacketLen,
		MaxQueueLen:  defaultMaxQueueLen,
		WriteTimeout: defaultWriteTimeout,
	}
	if err := plugin.DecodeConfig(cfg, &c); err != nil {
		return c, fmt.Errorf("nfqueue: %w", err)
	}
	if c.FailOpen == nil {
		failOpen := true
		c.FailOpen = &failOpen
	}
	if c.MaxPacketLen == 0 {
		c.MaxPacketLen = defaultMaxPacketLen
	}
	if c.MaxQueueLen == 0 {
		c.MaxQueueLen = defaultMaxQueueLen
	}
	return c, nil
}
