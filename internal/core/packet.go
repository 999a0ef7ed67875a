// Package core defines core data structures with zero external dependencies.
package core

import "time"

// RawPacket is a frame handed over by a capturer.
type RawPacket struct {
	Data           []byte    // Raw frame data
	Timestamp      time.Time // Capture timestamp
	CaptureLen     uint32    // Actual captured length
	OrigLen        uint32    // Original frame length
	InterfaceIndex int       // Network interface index
	LinkType       uint32    // pcap LINKTYPE_* of Data
	PacketID       uint32    // Capturer-specific id used to return a verdict (nfqueue)
	Shared         bool      // Data is borrowed, the first write must copy it
}

// DecodedPacket is the result of locating the outermost IP header.
type DecodedPacket struct {
	Timestamp  time.Time
	Ethernet   EthernetHeader
	IP         IPHeader
	CaptureLen uint32
	OrigLen    uint32
}

// Result is what the pipeline hands to an emitter for each packet.
type Result struct {
	Raw      RawPacket
	Data     []byte   // Frame bytes after evaluation, may differ from Raw.Data
	IP       IPHeader // Zero Version when the frame carried no IP header
	OrigDS   uint8    // DS field before evaluation; IP.DSField holds the final value
	Modified bool     // The IP header was rewritten
	Verdict  Verdict
}
