package decoder

import (
	"errors"
	"net/netip"
	"testing"
	"time"

	"github.com/google/gopacket/layers"

	"firestige.xyz/dsmark/internal/core"
)

// ipv4Header returns a 20-byte IPv4 header carrying tos.
func ipv4Header(tos uint8) []byte {
	return []byte{
		0x45, tos, 0x00, 0x1C, // Version 4, IHL 5, TOS, Total Length 28
		0x12, 0x34, 0x00, 0x00, // Identification, Flags, Fragment Offset
		0x40, 0x11, 0x00, 0x00, // TTL 64, UDP, Checksum
		192, 168, 1, 1,
		192, 168, 1, 2,
	}
}

func ipv6Header(tc uint8) []byte {
	hdr := make([]byte, 40)
	hdr[0] = 0x60 | tc>>4
	hdr[1] = tc << 4
	hdr[5] = 8  // Payload Length
	hdr[6] = 17 // UDP
	hdr[7] = 64
	copy(hdr[8:24], netip.MustParseAddr("2001:db8::1").AsSlice())
	copy(hdr[24:40], netip.MustParseAddr("2001:db8::2").AsSlice())
	return hdr
}

func ethernetFrame(etherType uint16, payload []byte) []byte {
	frame := []byte{
		0x00, 0x11, 0x22, 0x33, 0x44, 0x55,
		0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF,
		byte(etherType >> 8), byte(etherType),
	}
	return append(frame, payload...)
}

func TestStandardDecoderEthernet(t *testing.T) {
	d := NewStandardDecoder()
	now := time.Now()

	raw := core.RawPacket{
		Data:       ethernetFrame(0x0800, ipv4Header(0xb8)),
		Timestamp:  now,
		CaptureLen: 34,
		OrigLen:    34,
		LinkType:   uint32(layers.LinkTypeEthernet),
	}

	decoded, err := d.Decode(raw)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if decoded.Ethernet.EtherType != 0x0800 {
		t.Errorf("Expected EtherType 0x0800, got 0x%04x", decoded.Ethernet.EtherType)
	}
	if decoded.IP.Offset != 14 {
		t.Errorf("Expected IP offset 14, got %d", decoded.IP.Offset)
	}
	if decoded.IP.HeaderLen != 20 {
		t.Errorf("Expected header length 20, got %d", decoded.IP.HeaderLen)
	}
	if decoded.IP.DSField != 0xb8 {
		t.Errorf("Expected DS field 0xb8, got 0x%02x", decoded.IP.DSField)
	}
	if decoded.IP.SrcIP != netip.MustParseAddr("192.168.1.1") {
		t.Errorf("Unexpected SrcIP %v", decoded.IP.SrcIP)
	}
	if !decoded.Timestamp.Equal(now) || decoded.CaptureLen != 34 {
		t.Errorf("Capture metadata not carried over: %+v", decoded)
	}
}

func TestStandardDecoderVLANOffset(t *testing.T) {
	d := NewStandardDecoder()
	frame := ethernetFrame(0x8100, append([]byte{0x00, 0x0A, 0x86, 0xDD}, ipv6Header(0x28)...))

	decoded, err := d.Decode(core.RawPacket{Data: frame, LinkType: uint32(layers.LinkTypeEthernet)})
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if decoded.IP.Offset != 18 {
		t.Errorf("Expected IP offset 18, got %d", decoded.IP.Offset)
	}
	if decoded.IP.Version != 6 || decoded.IP.DSField != 0x28 {
		t.Errorf("Expected IPv6 with traffic class 0x28, got v%d 0x%02x", decoded.IP.Version, decoded.IP.DSField)
	}
}

func TestStandardDecoderRawIP(t *testing.T) {
	d := NewStandardDecoder()

	for _, lt := range []layers.LinkType{layers.LinkTypeRaw, layers.LinkTypeIPv4, layers.LinkTypeIPv6} {
		data := ipv4Header(0x04)
		if lt == layers.LinkTypeIPv6 {
			data = ipv6Header(0x04)
		}
		decoded, err := d.Decode(core.RawPacket{Data: data, LinkType: uint32(lt)})
		if err != nil {
			t.Fatalf("%s: Decode failed: %v", lt, err)
		}
		if decoded.IP.Offset != 0 {
			t.Errorf("%s: Expected IP offset 0, got %d", lt, decoded.IP.Offset)
		}
		if decoded.IP.DSField != 0x04 {
			t.Errorf("%s: Expected DS field 0x04, got 0x%02x", lt, decoded.IP.DSField)
		}
	}
}

func TestStandardDecoderLinuxSLL(t *testing.T) {
	d := NewStandardDecoder()
	sll := make([]byte, 16)
	sll[14], sll[15] = 0x08, 0x00

	decoded, err := d.Decode(core.RawPacket{
		Data:     append(sll, ipv4Header(0x10)...),
		LinkType: uint32(layers.LinkTypeLinuxSLL),
	})
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if decoded.IP.Offset != 16 {
		t.Errorf("Expected IP offset 16, got %d", decoded.IP.Offset)
	}

	sll[14], sll[15] = 0x08, 0x06 // ARP
	_, err = d.Decode(core.RawPacket{Data: append(sll, make([]byte, 28)...), LinkType: uint32(layers.LinkTypeLinuxSLL)})
	if !errors.Is(err, core.ErrUnsupportedProto) {
		t.Errorf("Expected ErrUnsupportedProto, got %v", err)
	}
}

func TestStandardDecoderLoopback(t *testing.T) {
	d := NewStandardDecoder()
	data := append([]byte{0x02, 0x00, 0x00, 0x00}, ipv4Header(0x00)...)

	decoded, err := d.Decode(core.RawPacket{Data: data, LinkType: uint32(layers.LinkTypeNull)})
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if decoded.IP.Offset != 4 || decoded.IP.Version != 4 {
		t.Errorf("Expected IPv4 at offset 4, got v%d at %d", decoded.IP.Version, decoded.IP.Offset)
	}
}

func TestStandardDecoderNonIP(t *testing.T) {
	d := NewStandardDecoder()

	arp := ethernetFrame(0x0806, make([]byte, 28))
	_, err := d.Decode(core.RawPacket{Data: arp, LinkType: uint32(layers.LinkTypeEthernet)})
	if !errors.Is(err, core.ErrUnsupportedProto) {
		t.Errorf("Expected ErrUnsupportedProto for ARP, got %v", err)
	}

	_, err = d.Decode(core.RawPacket{Data: ipv4Header(0), LinkType: 147})
	if !errors.Is(err, core.ErrUnsupportedProto) {
		t.Errorf("Expected ErrUnsupportedProto for unknown link type, got %v", err)
	}
}

func TestStandardDecoderTruncated(t *testing.T) {
	d := NewStandardDecoder()

	frame := ethernetFrame(0x0800, ipv4Header(0)[:12])
	_, err := d.Decode(core.RawPacket{Data: frame, LinkType: uint32(layers.LinkTypeEthernet)})
	if !errors.Is(err, core.ErrPacketTooShort) {
		t.Errorf("Expected ErrPacketTooShort, got %v", err)
	}
}

func BenchmarkStandardDecoder(b *testing.B) {
	d := NewStandardDecoder()
	raw := core.RawPacket{
		Data:     ethernetFrame(0x0800, ipv4Header(0xb8)),
		LinkType: uint32(layers.LinkTypeEthernet),
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := d.Decode(raw); err != nil {
			b.Fatal(err)
		}
	}
}
