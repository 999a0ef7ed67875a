// Package plugins registers all built-in plugins.
package plugins

import (
	"firestige.xyz/dsmark/pkg/plugin"
	"firestige.xyz/dsmark/plugins/capture/afpacket"
	"firestige.xyz/dsmark/plugins/emitter/console"
	"firestige.xyz/dsmark/plugins/nfqueue"
	"firestige.xyz/dsmark/plugins/pcapfile"
)

func init() {
	// Register capture plugins
	plugin.RegisterCapturer("afpacket", afpacket.NewAFPacketCapturer)
	plugin.RegisterCapturer("nfqueue", nfqueue.NewQueue)
	plugin.RegisterCapturer("pcap", pcapfile.NewReader)

	// Register emitter plugins. The nfqueue capturer is its own emitter.
	plugin.RegisterEmitter("console", console.NewConsoleEmitter)
	plugin.RegisterEmitter("discard", console.NewDiscardEmitter)
	plugin.RegisterEmitter("pcap", pcapfile.NewWriter)
}
