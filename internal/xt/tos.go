package xt

import (
	"fmt"

	"firestige.xyz/dsmark/internal/core"
	"firestige.xyz/dsmark/internal/core/dsfield"
)

// TOSMatchInfo matches packets where (ds & Mask) == Value.
type TOSMatchInfo struct {
	Value  uint8
	Mask   uint8
	Invert bool
}

// Check accepts every mask/value pair.
func (m *TOSMatchInfo) Check() error { return nil }

// Match reports whether the masked DS byte equals Value, negated by Invert.
// A Value with bits outside Mask never matches.
func (m *TOSMatchInfo) Match(pkt dsfield.Packet) bool {
	return (dsfield.Read(pkt)&m.Mask == m.Value) != m.Invert
}

func (m *TOSMatchInfo) String() string {
	op := ""
	if m.Invert {
		op = "!= "
	}
	return fmt.Sprintf("tos %s0x%02x/0x%02x", op, m.Value, m.Mask)
}

// TOSTargetInfo rewrites the DS byte to (ds &^ Mask) ^ Value.
//
// The XOR lets one rule express set, and, or and xor; see SetTOS, AndTOS,
// OrTOS and XorTOS.
type TOSTargetInfo struct {
	Value uint8
	Mask  uint8
}

// Check accepts every mask/value pair.
func (t *TOSTargetInfo) Check() error { return nil }

// Target writes the new DS byte when it differs from the current one. A
// packet whose header cannot be made writable is dropped.
func (t *TOSTargetInfo) Target(pkt dsfield.Packet) core.Verdict {
	orig := dsfield.Read(pkt)
	nv := orig&^t.Mask ^ t.Value
	if nv == orig {
		return core.VerdictContinue
	}
	if err := dsfield.Write(pkt, dsfield.FullMask, nv); err != nil {
		return core.VerdictDrop
	}
	return core.VerdictContinue
}

func (t *TOSTargetInfo) String() string {
	return fmt.Sprintf("TOS set 0x%02x/0x%02x", t.Value, t.Mask)
}

// SetTOS zeroes the bits in mask, then XORs value in.
func SetTOS(value, mask uint8) *TOSTargetInfo {
	return &TOSTargetInfo{Value: value, Mask: mask}
}

// AndTOS keeps only the bits set in bits.
func AndTOS(bits uint8) *TOSTargetInfo {
	return &TOSTargetInfo{Value: 0, Mask: ^bits}
}

// OrTOS sets the bits in bits.
func OrTOS(bits uint8) *TOSTargetInfo {
	return &TOSTargetInfo{Value: bits, Mask: bits}
}

// XorTOS flips the bits in bits.
func XorTOS(bits uint8) *TOSTargetInfo {
	return &TOSTargetInfo{Value: bits, Mask: 0}
}
