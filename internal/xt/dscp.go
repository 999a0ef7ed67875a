package xt

import (
	"fmt"

	"firestige.xyz/dsmark/internal/core"
	"firestige.xyz/dsmark/internal/core/dsfield"
)

// DSCPMatchInfo matches packets whose DSCP equals DSCP.
type DSCPMatchInfo struct {
	DSCP   uint8
	Invert bool
}

// Check rejects a DSCP above 63.
func (m *DSCPMatchInfo) Check() error {
	return checkDSCP(m.DSCP)
}

// Match reports whether the packet DSCP equals m.DSCP, negated by Invert.
func (m *DSCPMatchInfo) Match(pkt dsfield.Packet) bool {
	return (dsfield.DSCP(dsfield.Read(pkt)) == m.DSCP) != m.Invert
}

func (m *DSCPMatchInfo) String() string {
	if m.Invert {
		return fmt.Sprintf("dscp != 0x%02x", m.DSCP)
	}
	return fmt.Sprintf("dscp 0x%02x", m.DSCP)
}

// DSCPTargetInfo sets the DSCP to a fixed value and keeps ECN.
type DSCPTargetInfo struct {
	DSCP uint8
}

// Check rejects a DSCP above 63.
func (t *DSCPTargetInfo) Check() error {
	return checkDSCP(t.DSCP)
}

// Target rewrites the DSCP unless it already has the wanted value. A packet
// whose header cannot be made writable is dropped.
func (t *DSCPTargetInfo) Target(pkt dsfield.Packet) core.Verdict {
	if dsfield.DSCP(dsfield.Read(pkt)) == t.DSCP {
		return core.VerdictContinue
	}
	if err := dsfield.SetDSCP(pkt, t.DSCP); err != nil {
		return core.VerdictDrop
	}
	return core.VerdictContinue
}

func (t *DSCPTargetInfo) String() string {
	return fmt.Sprintf("DSCP set 0x%02x", t.DSCP)
}

func checkDSCP(v uint8) error {
	if v > dsfield.DSCPMax {
		return fmt.Errorf("%w: dscp %d exceeds %d", core.ErrOutOfRange, v, dsfield.DSCPMax)
	}
	return nil
}
