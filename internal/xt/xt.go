// Package xt implements the dscp and tos match extensions and the DSCP and
// TOS target extensions.
//
// Extension parameters are built and checked once when a rule is installed
// and are read-only afterwards, so a single value may be shared by any number
// of workers. Match and Target never allocate and never block.
package xt

import (
	"firestige.xyz/dsmark/internal/core"
	"firestige.xyz/dsmark/internal/core/dsfield"
)

// Match is a per-packet predicate.
type Match interface {
	// Check validates the parameters at rule install time.
	Check() error
	Match(pkt dsfield.Packet) bool
}

// Target may rewrite the packet and decides whether it continues.
type Target interface {
	// Check validates the parameters at rule install time.
	Check() error
	Target(pkt dsfield.Packet) core.Verdict
}
