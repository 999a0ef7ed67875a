package decoder

import (
	"encoding/binary"
	"net/netip"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"

	"firestige.xyz/dsmark/internal/core"
)

const (
	ipv4HeaderMinLen = ipv4.HeaderLen
	ipv6HeaderLen    = ipv6.HeaderLen
)

// decodeIP decodes an IPv4 or IPv6 header at the start of data.
func decodeIP(data []byte) (core.IPHeader, error) {
	if len(data) < 1 {
		return core.IPHeader{}, core.ErrPacketTooShort
	}

	switch data[0] >> 4 {
	case 4:
		return decodeIPv4(data)
	case 6:
		return decodeIPv6(data)
	default:
		return core.IPHeader{}, core.ErrUnsupportedProto
	}
}

func decodeIPv4(data []byte) (core.IPHeader, error) {
	if len(data) < ipv4HeaderMinLen {
		return core.IPHeader{}, core.ErrPacketTooShort
	}

	// IHL counts 32-bit words
	headerLen := int(data[0]&0x0F) * 4
	if headerLen < ipv4HeaderMinLen || len(data) < headerLen {
		return core.IPHeader{}, core.ErrPacketTooShort
	}

	src, _ := netip.AddrFromSlice(data[12:16])
	dst, _ := netip.AddrFromSlice(data[16:20])
	return core.IPHeader{
		Version:   4,
		HeaderLen: headerLen,
		DSField:   data[1],
		TotalLen:  binary.BigEndian.Uint16(data[2:4]),
		TTL:       data[8],
		Protocol:  data[9],
		SrcIP:     src,
		DstIP:     dst,
	}, nil
}

// decodeIPv6 decodes the fixed header only. Extension headers do not move
// the traffic class, so they are not walked.
func decodeIPv6(data []byte) (core.IPHeader, error) {
	if len(data) < ipv6HeaderLen {
		return core.IPHeader{}, core.ErrPacketTooShort
	}

	src, _ := netip.AddrFromSlice(data[8:24])
	dst, _ := netip.AddrFromSlice(data[24:40])
	return core.IPHeader{
		Version:   6,
		HeaderLen: ipv6HeaderLen,
		DSField:   uint8(binary.BigEndian.Uint16(data[0:2]) >> 4),
		TotalLen:  ipv6HeaderLen + binary.BigEndian.Uint16(data[4:6]),
		Protocol:  data[6],
		TTL:       data[7],
		SrcIP:     src,
		DstIP:     dst,
	}, nil
}
