// Package nft offloads an installed rule table to the kernel as nftables
// rules, either through netlink or as an nft script.
package nft

import (
	"fmt"

	"firestige.xyz/dsmark/internal/core"
)

// Default table and hook names
const (
	DefaultTable = "dsmark"
	DefaultHook  = "prerouting"
)

var hooks = []string{"prerouting", "input", "forward", "output", "postrouting"}

// Options names the inet table and base chain the rules are placed in.
// The chain runs at mangle priority and is named after its hook unless
// Chain is set.
type Options struct {
	Table string
	Chain string
	Hook  string
}

func (o Options) withDefaults() (Options, error) {
	if o.Table == "" {
		o.Table = DefaultTable
	}
	if o.Hook == "" {
		o.Hook = DefaultHook
	}
	if !validHook(o.Hook) {
		return o, fmt.Errorf("%w: unknown hook %q (want one of %v)", core.ErrConfigInvalid, o.Hook, hooks)
	}
	if o.Chain == "" {
		o.Chain = o.Hook
	}
	return o, nil
}

func validHook(h string) bool {
	for _, name := range hooks {
		if name == h {
			return true
		}
	}
	return false
}

// families expands a rule family into the IP versions it covers.
func families(f core.Family) []uint8 {
	switch f {
	case core.FamilyIPv4:
		return []uint8{4}
	case core.FamilyIPv6:
		return []uint8{6}
	default:
		return []uint8{4, 6}
	}
}
