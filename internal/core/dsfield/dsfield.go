// Package dsfield reads and writes the Differentiated Services field of the
// outermost IP header.
//
// IPv4 carries the DS field in header byte 1 (the old TOS byte). IPv6 carries
// it as the Traffic Class, which straddles the low nibble of byte 0 and the
// high nibble of byte 1. The upper six bits are the DSCP, the lower two the
// ECN codepoint.
package dsfield

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"

	"firestige.xyz/dsmark/internal/core"
)

const (
	ECNMask   uint8 = 0x03
	DSCPMask  uint8 = ^ECNMask // 0xFC
	DSCPShift       = 2
	DSCPMax   uint8 = 0x3f
	FullMask  uint8 = 0xff

	// IPv6 traffic class sits 4 bits into the first 16-bit word.
	tcShift    = 4
	tcWordKeep = 0xf00f
)

// Packet is the view of a packet the codec needs. Network must start at the
// IP header and hold at least its fixed part; the decoder guarantees that.
type Packet interface {
	Version() uint8
	Network() []byte
	MakeWritable(n int) ([]byte, error)
}

// Read returns the full DS byte.
func Read(pkt Packet) uint8 {
	hdr := pkt.Network()
	if pkt.Version() == 6 {
		return uint8(binary.BigEndian.Uint16(hdr[0:2]) >> tcShift)
	}
	return hdr[1]
}

// DSCP extracts the DSCP from a DS byte.
func DSCP(ds uint8) uint8 { return ds >> DSCPShift }

// ECN extracts the ECN codepoint from a DS byte.
func ECN(ds uint8) uint8 { return ds & ECNMask }

// HeaderLen returns the length of the IP header as carried by the packet:
// IHL*4 for IPv4, the fixed 40 bytes for IPv6.
func HeaderLen(pkt Packet) int {
	switch pkt.Version() {
	case 4:
		if n := int(pkt.Network()[0]&0x0f) * 4; n >= ipv4.HeaderLen {
			return n
		}
		return ipv4.HeaderLen
	case 6:
		return ipv6.HeaderLen
	default:
		return 0
	}
}

// Write replaces the DS bits selected by mask with bits:
//
//	ds = (ds &^ mask) | bits
//
// It first obtains write access to the whole IP header. Bits outside the DS
// field, including the IPv6 version nibble and flow label, are kept.
func Write(pkt Packet, mask, bits uint8) error {
	version := pkt.Version()
	if version != 4 && version != 6 {
		return fmt.Errorf("%w: ip version %d", core.ErrUnsupportedProto, version)
	}

	hdr, err := pkt.MakeWritable(HeaderLen(pkt))
	if err != nil {
		return err
	}

	if version == 4 {
		hdr[1] = hdr[1]&^mask | bits
		return nil
	}

	w := binary.BigEndian.Uint16(hdr[0:2])
	tc := uint8(w>>tcShift)&^mask | bits
	binary.BigEndian.PutUint16(hdr[0:2], w&tcWordKeep|uint16(tc)<<tcShift)
	return nil
}

// SetDSCP writes dscp into the upper six bits and keeps ECN.
func SetDSCP(pkt Packet, dscp uint8) error {
	return Write(pkt, DSCPMask, dscp<<DSCPShift)
}
