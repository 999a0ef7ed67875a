package nft

import (
	"fmt"
	"strings"

	"firestige.xyz/dsmark/internal/core"
	"firestige.xyz/dsmark/internal/core/dsfield"
	"firestige.xyz/dsmark/internal/ruleset"
	"firestige.xyz/dsmark/internal/xt"
)

// Script renders table as an nft script that replaces the dsmark table:
//
//	nft -f script.nft
//
// TOS targets that keep some bits (mask other than 0xff) need a
// read-modify-write the nft language cannot express; use Apply for those.
func Script(table *ruleset.Table, opts Options) (string, error) {
	opts, err := opts.withDefaults()
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "table inet %s\n", opts.Table)
	fmt.Fprintf(&b, "delete table inet %s\n", opts.Table)
	fmt.Fprintf(&b, "table inet %s {\n", opts.Table)
	fmt.Fprintf(&b, "\tchain %s {\n", opts.Chain)
	fmt.Fprintf(&b, "\t\ttype filter hook %s priority mangle; policy accept;\n", opts.Hook)

	for _, r := range table.Rules() {
		for _, v := range families(r.Family) {
			line, err := scriptRule(r, v)
			if err != nil {
				return "", fmt.Errorf("rule %q: %w", r.Name, err)
			}
			fmt.Fprintf(&b, "\t\t%s\n", line)
		}
	}

	b.WriteString("\t}\n}\n")
	return b.String(), nil
}

func scriptRule(r *ruleset.Rule, version uint8) (string, error) {
	proto, nfproto, tosField := "ip", "ipv4", "@nh,8,8"
	if version == 6 {
		proto, nfproto, tosField = "ip6", "ipv6", "@nh,4,8"
	}

	// @nh expressions carry no protocol dependency in an inet table.
	parts := []string{"meta nfproto " + nfproto}
	for _, m := range r.Matches {
		switch m := m.(type) {
		case *xt.DSCPMatchInfo:
			parts = append(parts, fmt.Sprintf("%s dscp %s0x%02x", proto, neq(m.Invert), m.DSCP))
		case *xt.TOSMatchInfo:
			parts = append(parts, fmt.Sprintf("%s & 0x%02x %s0x%02x", tosField, m.Mask, eqOp(m.Invert), m.Value))
		default:
			return "", fmt.Errorf("%w: match %T has no nft form", core.ErrNotFound, m)
		}
	}

	parts = append(parts, "counter")

	switch t := r.Target.(type) {
	case nil:
	case *xt.DSCPTargetInfo:
		parts = append(parts, fmt.Sprintf("%s dscp set 0x%02x", proto, t.DSCP))
	case *xt.TOSTargetInfo:
		if t.Mask != dsfield.FullMask {
			return "", fmt.Errorf("%w: tos target with mask 0x%02x has no nft script form", core.ErrNotFound, t.Mask)
		}
		parts = append(parts, fmt.Sprintf("%s set 0x%02x", tosField, t.Value))
	default:
		return "", fmt.Errorf("%w: target %T has no nft form", core.ErrNotFound, r.Target)
	}

	parts = append(parts, fmt.Sprintf("comment %q", r.Name))
	return strings.Join(parts, " "), nil
}

func neq(invert bool) string {
	if invert {
		return "!= "
	}
	return ""
}

func eqOp(invert bool) string {
	if invert {
		return "!= "
	}
	return "== "
}
