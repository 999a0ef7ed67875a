//go:build linux

package nft

import (
	"encoding/binary"
	"fmt"

	"github.com/google/nftables"
	"github.com/google/nftables/expr"
	"golang.org/x/sys/unix"

	"firestige.xyz/dsmark/internal/core"
	"firestige.xyz/dsmark/internal/core/dsfield"
	"firestige.xyz/dsmark/internal/ruleset"
	"firestige.xyz/dsmark/internal/xt"
)

// Conn is the subset of *nftables.Conn that Apply and Remove use.
type Conn interface {
	AddTable(t *nftables.Table) *nftables.Table
	DelTable(t *nftables.Table)
	FlushTable(t *nftables.Table)
	AddChain(c *nftables.Chain) *nftables.Chain
	AddRule(r *nftables.Rule) *nftables.Rule
	Flush() error
}

var _ Conn = (*nftables.Conn)(nil)

var hookNums = map[string]*nftables.ChainHook{
	"prerouting":  nftables.ChainHookPrerouting,
	"input":       nftables.ChainHookInput,
	"forward":     nftables.ChainHookForward,
	"output":      nftables.ChainHookOutput,
	"postrouting": nftables.ChainHookPostrouting,
}

// Apply replaces the inet table named in opts with one base chain holding
// table's rules, in a single netlink batch.
func Apply(conn Conn, table *ruleset.Table, opts Options) error {
	opts, err := opts.withDefaults()
	if err != nil {
		return err
	}

	t := conn.AddTable(&nftables.Table{Family: nftables.TableFamilyINet, Name: opts.Table})
	conn.FlushTable(t)

	policy := nftables.ChainPolicyAccept
	c := conn.AddChain(&nftables.Chain{
		Name:     opts.Chain,
		Table:    t,
		Type:     nftables.ChainTypeFilter,
		Hooknum:  hookNums[opts.Hook],
		Priority: nftables.ChainPriorityMangle,
		Policy:   &policy,
	})

	rules, err := Rules(table)
	if err != nil {
		return err
	}
	for _, r := range rules {
		r.Table, r.Chain = t, c
		conn.AddRule(r)
	}

	if err := conn.Flush(); err != nil {
		return fmt.Errorf("nft: apply table %s: %w", opts.Table, err)
	}
	return nil
}

// Remove deletes the inet table named in opts.
func Remove(conn Conn, opts Options) error {
	opts, err := opts.withDefaults()
	if err != nil {
		return err
	}
	conn.DelTable(&nftables.Table{Family: nftables.TableFamilyINet, Name: opts.Table})
	if err := conn.Flush(); err != nil {
		return fmt.Errorf("nft: remove table %s: %w", opts.Table, err)
	}
	return nil
}

// Rules converts every rule of table into one nftables rule per IP
// version. Table and Chain of the returned rules are left unset. The rule
// name is carried in UserData.
func Rules(table *ruleset.Table) ([]*nftables.Rule, error) {
	var out []*nftables.Rule
	for _, r := range table.Rules() {
		for _, v := range families(r.Family) {
			exprs, err := ruleExprs(r, v)
			if err != nil {
				return nil, fmt.Errorf("rule %q: %w", r.Name, err)
			}
			out = append(out, &nftables.Rule{Exprs: exprs, UserData: []byte(r.Name)})
		}
	}
	return out, nil
}

func ruleExprs(r *ruleset.Rule, version uint8) ([]expr.Any, error) {
	exprs := familyGate(version)

	for _, m := range r.Matches {
		switch m := m.(type) {
		case *xt.DSCPMatchInfo:
			exprs = append(exprs, dsCompare(version, dsfield.DSCPMask, m.DSCP<<dsfield.DSCPShift, m.Invert)...)
		case *xt.TOSMatchInfo:
			exprs = append(exprs, dsCompare(version, m.Mask, m.Value, m.Invert)...)
		default:
			return nil, fmt.Errorf("%w: match %T has no nft form", core.ErrNotFound, m)
		}
	}

	exprs = append(exprs, &expr.Counter{})

	switch t := r.Target.(type) {
	case nil:
	case *xt.DSCPTargetInfo:
		exprs = append(exprs, dsRewrite(version, dsfield.DSCPMask, t.DSCP<<dsfield.DSCPShift)...)
	case *xt.TOSTargetInfo:
		exprs = append(exprs, dsRewrite(version, t.Mask, t.Value)...)
	default:
		return nil, fmt.Errorf("%w: target %T has no nft form", core.ErrNotFound, r.Target)
	}
	return exprs, nil
}

// familyGate restricts an inet-table rule to one IP version.
func familyGate(version uint8) []expr.Any {
	proto := byte(unix.NFPROTO_IPV4)
	if version == 6 {
		proto = unix.NFPROTO_IPV6
	}
	return []expr.Any{
		&expr.Meta{Key: expr.MetaKeyNFPROTO, Register: 1},
		&expr.Cmp{Op: expr.CmpOpEq, Register: 1, Data: []byte{proto}},
	}
}

// dsWord describes where the DS byte sits in the network header: byte 1
// for IPv4, bits 4..11 of the first 16-bit word for IPv6.
func dsWord(version uint8) (offset, length uint32, shift uint) {
	if version == 6 {
		return 0, 2, 4
	}
	return 1, 1, 0
}

// dsBytes places a DS-byte-aligned value at its header position.
func dsBytes(version uint8, v uint16) []byte {
	_, length, shift := dsWord(version)
	if length == 1 {
		return []byte{byte(v)}
	}
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, v<<shift)
	return b
}

func loadDS(version uint8) *expr.Payload {
	offset, length, _ := dsWord(version)
	return &expr.Payload{
		OperationType: expr.PayloadLoad,
		DestRegister:  1,
		Base:          expr.PayloadBaseNetworkHeader,
		Offset:        offset,
		Len:           length,
	}
}

// dsCompare matches (ds & mask) == value, or != when invert is set.
func dsCompare(version uint8, mask, value uint8, invert bool) []expr.Any {
	_, length, _ := dsWord(version)
	op := expr.CmpOpEq
	if invert {
		op = expr.CmpOpNeq
	}
	return []expr.Any{
		loadDS(version),
		&expr.Bitwise{
			SourceRegister: 1,
			DestRegister:   1,
			Len:            length,
			Mask:           dsBytes(version, uint16(mask)),
			Xor:            make([]byte, length),
		},
		&expr.Cmp{Op: op, Register: 1, Data: dsBytes(version, uint16(value))},
	}
}

// dsRewrite computes (ds &^ mask) ^ value in the kernel and writes it
// back. The IPv4 header checksum at offset 10 is updated incrementally.
func dsRewrite(version uint8, mask, value uint8) []expr.Any {
	offset, length, shift := dsWord(version)

	keep := dsBytes(version, uint16(^mask))
	if version == 6 {
		// bits outside the traffic class are kept as well
		binary.BigEndian.PutUint16(keep, 0xF00F|uint16(^mask)<<shift)
	}

	write := &expr.Payload{
		OperationType:  expr.PayloadWrite,
		SourceRegister: 1,
		Base:           expr.PayloadBaseNetworkHeader,
		Offset:         offset,
		Len:            length,
	}
	if version == 4 {
		write.CsumType = expr.CsumTypeInet
		write.CsumOffset = 10
	}

	return []expr.Any{
		loadDS(version),
		&expr.Bitwise{
			SourceRegister: 1,
			DestRegister:   1,
			Len:            length,
			Mask:           keep,
			Xor:            dsBytes(version, uint16(value)),
		},
		write,
	}
}
