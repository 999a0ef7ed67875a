// Package decoder locates the outermost IP header inside a captured frame.
package decoder

import (
	"fmt"

	"github.com/google/gopacket/layers"

	"firestige.xyz/dsmark/internal/core"
)

// Decoder decodes raw packets into structured format.
type Decoder interface {
	Decode(raw core.RawPacket) (core.DecodedPacket, error)
}

// StandardDecoder walks the link layer named by RawPacket.LinkType and
// decodes the IP header behind it. It keeps no state and is safe for
// concurrent use.
type StandardDecoder struct{}

// NewStandardDecoder creates a decoder.
func NewStandardDecoder() *StandardDecoder {
	return &StandardDecoder{}
}

// Decode returns core.ErrUnsupportedProto for frames that carry no IP
// packet (ARP, LLDP, unknown link types) and core.ErrPacketTooShort for
// truncated headers.
func (d *StandardDecoder) Decode(raw core.RawPacket) (core.DecodedPacket, error) {
	decoded := core.DecodedPacket{
		Timestamp:  raw.Timestamp,
		CaptureLen: raw.CaptureLen,
		OrigLen:    raw.OrigLen,
	}

	offset, err := d.linkOffset(raw, &decoded.Ethernet)
	if err != nil {
		return decoded, err
	}

	ip, err := decodeIP(raw.Data[offset:])
	if err != nil {
		return decoded, err
	}
	ip.Offset = offset
	decoded.IP = ip
	return decoded, nil
}

// linkOffset returns where the IP header starts.
func (d *StandardDecoder) linkOffset(raw core.RawPacket, eth *core.EthernetHeader) (int, error) {
	switch lt := layers.LinkType(raw.LinkType); lt {
	case layers.LinkTypeEthernet:
		hdr, offset, err := decodeEthernet(raw.Data)
		if err != nil {
			return 0, err
		}
		*eth = hdr
		if !isIPEtherType(hdr.EtherType) {
			return 0, fmt.Errorf("%w: ethertype 0x%04x", core.ErrUnsupportedProto, hdr.EtherType)
		}
		return offset, nil
	case layers.LinkTypeRaw, layers.LinkTypeIPv4, layers.LinkTypeIPv6:
		return 0, nil
	case layers.LinkTypeLinuxSLL:
		return decodeLinuxSLL(raw.Data)
	case layers.LinkTypeNull, layers.LinkTypeLoop:
		return decodeLoopback(raw.Data)
	default:
		return 0, fmt.Errorf("%w: link type %s", core.ErrUnsupportedProto, lt)
	}
}
