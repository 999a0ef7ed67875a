// Package core defines core types with zero external dependencies.
package core

import (
	"fmt"
	"net/netip"
	"strings"
)

// EthernetHeader represents L2 Ethernet frame header.
type EthernetHeader struct {
	SrcMAC    [6]byte
	DstMAC    [6]byte
	EtherType uint16   // 0x0800=IPv4, 0x86DD=IPv6, 0x8100=VLAN
	VLANs     []uint16 // 0~2 VLAN IDs (QinQ scenarios have 2)
}

// IPHeader represents the outermost L3 IP header (IPv4/IPv6).
type IPHeader struct {
	Version   uint8
	HeaderLen int   // IPv4: IHL*4, IPv6: 40
	Offset    int   // Offset of the IP header within the captured frame
	DSField   uint8 // TOS byte (IPv4) or Traffic Class (IPv6)
	SrcIP     netip.Addr
	DstIP     netip.Addr
	Protocol  uint8 // IPv4 protocol or IPv6 next header
	TTL       uint8 // TTL or hop limit
	TotalLen  uint16
}

// Family is the address family a rule or extension is registered for.
type Family uint8

const (
	FamilyUnspec Family = iota
	FamilyIPv4
	FamilyIPv6
	FamilyINet // both IPv4 and IPv6
)

var familyNames = map[Family]string{
	FamilyUnspec: "unspec",
	FamilyIPv4:   "ipv4",
	FamilyIPv6:   "ipv6",
	FamilyINet:   "inet",
}

// String returns the family name.
func (f Family) String() string {
	if name, ok := familyNames[f]; ok {
		return name
	}
	return fmt.Sprintf("family(%d)", uint8(f))
}

// Accepts reports whether a packet of the given IP version belongs to f.
func (f Family) Accepts(version uint8) bool {
	switch f {
	case FamilyIPv4:
		return version == 4
	case FamilyIPv6:
		return version == 6
	case FamilyINet:
		return version == 4 || version == 6
	default:
		return false
	}
}

// ParseFamily parses "ipv4", "ipv6" or "inet". "ip" and "ip6" are accepted
// as nft-style spellings.
func ParseFamily(s string) (Family, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ipv4", "ip", "ip4":
		return FamilyIPv4, nil
	case "ipv6", "ip6":
		return FamilyIPv6, nil
	case "inet", "":
		return FamilyINet, nil
	default:
		return FamilyUnspec, fmt.Errorf("%w: %q", ErrUnsupportedFamily, s)
	}
}

// Verdict is the outcome of a target on a packet.
type Verdict uint8

const (
	// VerdictContinue lets the packet proceed to the next rule.
	VerdictContinue Verdict = iota
	// VerdictDrop discards the packet.
	VerdictDrop
)

// String returns the verdict name.
func (v Verdict) String() string {
	switch v {
	case VerdictContinue:
		return "continue"
	case VerdictDrop:
		return "drop"
	default:
		return fmt.Sprintf("verdict(%d)", uint8(v))
	}
}
