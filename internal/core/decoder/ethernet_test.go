package decoder

import "testing"

func TestDecodeEthernetBasic(t *testing.T) {
	data := []byte{
		0x00, 0x11, 0x22, 0x33, 0x44, 0x55, // Dst MAC
		0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF, // Src MAC
		0x08, 0x00, // EtherType: IPv4
		0x45, 0x00, // Payload
	}

	eth, offset, err := decodeEthernet(data)
	if err != nil {
		t.Fatalf("decodeEthernet failed: %v", err)
	}

	if eth.DstMAC != [6]byte{0x00, 0x11, 0x22, 0x33, 0x44, 0x55} {
		t.Errorf("Unexpected DstMAC %v", eth.DstMAC)
	}
	if eth.SrcMAC != [6]byte{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF} {
		t.Errorf("Unexpected SrcMAC %v", eth.SrcMAC)
	}
	if eth.EtherType != 0x0800 {
		t.Errorf("Expected EtherType 0x0800, got 0x%04x", eth.EtherType)
	}
	if len(eth.VLANs) != 0 {
		t.Errorf("Expected no VLAN tags, got %d", len(eth.VLANs))
	}
	if offset != 14 {
		t.Errorf("Expected offset 14, got %d", offset)
	}
}

func TestDecodeEthernetQinQ(t *testing.T) {
	data := []byte{
		0x00, 0x11, 0x22, 0x33, 0x44, 0x55, // Dst MAC
		0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF, // Src MAC
		0x88, 0xA8, // EtherType: QinQ
		0x00, 0x14, // Outer VLAN: ID 20
		0x81, 0x00, // EtherType: VLAN
		0x00, 0x0A, // Inner VLAN: ID 10
		0x86, 0xDD, // Inner EtherType: IPv6
		0x60, 0x00, // Payload
	}

	eth, offset, err := decodeEthernet(data)
	if err != nil {
		t.Fatalf("decodeEthernet failed: %v", err)
	}

	if eth.EtherType != 0x86DD {
		t.Errorf("Expected EtherType 0x86DD, got 0x%04x", eth.EtherType)
	}
	if len(eth.VLANs) != 2 {
		t.Fatalf("Expected 2 VLAN tags, got %d", len(eth.VLANs))
	}
	if eth.VLANs[0] != 20 || eth.VLANs[1] != 10 {
		t.Errorf("Expected VLANs [20 10], got %v", eth.VLANs)
	}
	if offset != 22 {
		t.Errorf("Expected offset 22, got %d", offset)
	}
}

func TestDecodeEthernetTooShort(t *testing.T) {
	if _, _, err := decodeEthernet([]byte{0x00, 0x11, 0x22}); err == nil {
		t.Error("Expected error for too short frame, got nil")
	}

	// VLAN tag announced but cut off
	data := []byte{
		0x00, 0x11, 0x22, 0x33, 0x44, 0x55,
		0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF,
		0x81, 0x00,
		0x00,
	}
	if _, _, err := decodeEthernet(data); err == nil {
		t.Error("Expected error for truncated VLAN tag, got nil")
	}
}
