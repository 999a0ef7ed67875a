package decoder

import (
	"encoding/binary"
	"fmt"

	"github.com/google/gopacket/layers"

	"firestige.xyz/dsmark/internal/core"
)

const (
	ethernetHeaderLen = 14
	vlanHeaderLen     = 4
	sllHeaderLen      = 16
	loopbackHeaderLen = 4
)

func isIPEtherType(t uint16) bool {
	return t == uint16(layers.EthernetTypeIPv4) || t == uint16(layers.EthernetTypeIPv6)
}

// decodeEthernet decodes the Ethernet header including any 802.1Q or QinQ
// tags and returns the offset of the payload.
func decodeEthernet(data []byte) (core.EthernetHeader, int, error) {
	if len(data) < ethernetHeaderLen {
		return core.EthernetHeader{}, 0, core.ErrPacketTooShort
	}

	eth := core.EthernetHeader{}
	copy(eth.DstMAC[:], data[0:6])
	copy(eth.SrcMAC[:], data[6:12])

	etherType := layers.EthernetType(binary.BigEndian.Uint16(data[12:14]))
	offset := ethernetHeaderLen

	for etherType == layers.EthernetTypeDot1Q || etherType == layers.EthernetTypeQinQ {
		if len(data) < offset+vlanHeaderLen {
			return eth, 0, core.ErrPacketTooShort
		}
		tci := binary.BigEndian.Uint16(data[offset : offset+2])
		eth.VLANs = append(eth.VLANs, tci&0x0FFF)
		etherType = layers.EthernetType(binary.BigEndian.Uint16(data[offset+2 : offset+4]))
		offset += vlanHeaderLen
	}

	eth.EtherType = uint16(etherType)
	return eth, offset, nil
}

// decodeLinuxSLL skips a Linux "cooked" capture header. The protocol field
// is the EtherType of the payload.
func decodeLinuxSLL(data []byte) (int, error) {
	if len(data) < sllHeaderLen {
		return 0, core.ErrPacketTooShort
	}
	proto := binary.BigEndian.Uint16(data[14:16])
	if !isIPEtherType(proto) {
		return 0, fmt.Errorf("%w: sll protocol 0x%04x", core.ErrUnsupportedProto, proto)
	}
	return sllHeaderLen, nil
}

// decodeLoopback skips the BSD loopback family word. Its byte order depends
// on the capturing host, so the IP version nibble decides instead.
func decodeLoopback(data []byte) (int, error) {
	if len(data) < loopbackHeaderLen+1 {
		return 0, core.ErrPacketTooShort
	}
	return loopbackHeaderLen, nil
}
