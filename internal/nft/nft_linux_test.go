//go:build linux

package nft

import (
	"errors"
	"testing"

	"github.com/google/nftables"
	"github.com/google/nftables/expr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"firestige.xyz/dsmark/internal/core"
	"firestige.xyz/dsmark/internal/ruleset"
	"firestige.xyz/dsmark/internal/xt"
)

type fakeConn struct {
	calls    []string
	tables   []*nftables.Table
	chains   []*nftables.Chain
	rules    []*nftables.Rule
	flushErr error
}

func (c *fakeConn) AddTable(t *nftables.Table) *nftables.Table {
	c.calls = append(c.calls, "AddTable")
	c.tables = append(c.tables, t)
	return t
}

func (c *fakeConn) DelTable(t *nftables.Table) {
	c.calls = append(c.calls, "DelTable")
	c.tables = append(c.tables, t)
}

func (c *fakeConn) FlushTable(*nftables.Table) {
	c.calls = append(c.calls, "FlushTable")
}

func (c *fakeConn) AddChain(ch *nftables.Chain) *nftables.Chain {
	c.calls = append(c.calls, "AddChain")
	c.chains = append(c.chains, ch)
	return ch
}

func (c *fakeConn) AddRule(r *nftables.Rule) *nftables.Rule {
	c.calls = append(c.calls, "AddRule")
	c.rules = append(c.rules, r)
	return r
}

func (c *fakeConn) Flush() error {
	c.calls = append(c.calls, "Flush")
	return c.flushErr
}

func TestApply(t *testing.T) {
	conn := &fakeConn{}
	require.NoError(t, Apply(conn, testTable(), Options{}))

	assert.Equal(t, []string{"AddTable", "FlushTable", "AddChain", "AddRule", "AddRule", "AddRule", "AddRule", "Flush"}, conn.calls)

	require.Len(t, conn.tables, 1)
	assert.Equal(t, nftables.TableFamilyINet, conn.tables[0].Family)
	assert.Equal(t, DefaultTable, conn.tables[0].Name)

	require.Len(t, conn.chains, 1)
	ch := conn.chains[0]
	assert.Equal(t, "prerouting", ch.Name)
	assert.Equal(t, nftables.ChainTypeFilter, ch.Type)
	assert.Equal(t, nftables.ChainHookPrerouting, ch.Hooknum)
	assert.Equal(t, nftables.ChainPriorityMangle, ch.Priority)
	require.NotNil(t, ch.Policy)
	assert.Equal(t, nftables.ChainPolicyAccept, *ch.Policy)

	for _, r := range conn.rules {
		assert.Same(t, conn.tables[0], r.Table)
		assert.Same(t, ch, r.Chain)
	}
	assert.Equal(t, []byte("ef-to-af41"), conn.rules[0].UserData)
	assert.Equal(t, []byte("not-cs1"), conn.rules[1].UserData)
	assert.Equal(t, []byte("not-cs1"), conn.rules[2].UserData)
	assert.Equal(t, []byte("v6-set-tos"), conn.rules[3].UserData)
}

func TestApply_Errors(t *testing.T) {
	conn := &fakeConn{}
	err := Apply(conn, testTable(), Options{Hook: "ingress"})
	assert.True(t, errors.Is(err, core.ErrConfigInvalid))
	assert.Empty(t, conn.calls)

	conn = &fakeConn{flushErr: unix.EPERM}
	err = Apply(conn, testTable(), Options{})
	assert.True(t, errors.Is(err, unix.EPERM))
}

func TestRemove(t *testing.T) {
	conn := &fakeConn{}
	require.NoError(t, Remove(conn, Options{Table: "qos"}))
	assert.Equal(t, []string{"DelTable", "Flush"}, conn.calls)
	assert.Equal(t, "qos", conn.tables[0].Name)
	assert.Equal(t, nftables.TableFamilyINet, conn.tables[0].Family)
}

func TestRules_DSCPMatchAndTarget(t *testing.T) {
	table := ruleset.NewTable("mangle", &ruleset.Rule{
		Name:    "ef",
		Family:  core.FamilyIPv4,
		Matches: []xt.Match{&xt.DSCPMatchInfo{DSCP: 0x2e}},
		Target:  &xt.DSCPTargetInfo{DSCP: 0x22},
	})
	rules, err := Rules(table)
	require.NoError(t, err)
	require.Len(t, rules, 1)

	want := []expr.Any{
		&expr.Meta{Key: expr.MetaKeyNFPROTO, Register: 1},
		&expr.Cmp{Op: expr.CmpOpEq, Register: 1, Data: []byte{unix.NFPROTO_IPV4}},
		&expr.Payload{OperationType: expr.PayloadLoad, DestRegister: 1, Base: expr.PayloadBaseNetworkHeader, Offset: 1, Len: 1},
		&expr.Bitwise{SourceRegister: 1, DestRegister: 1, Len: 1, Mask: []byte{0xfc}, Xor: []byte{0}},
		&expr.Cmp{Op: expr.CmpOpEq, Register: 1, Data: []byte{0xb8}},
		&expr.Counter{},
		&expr.Payload{OperationType: expr.PayloadLoad, DestRegister: 1, Base: expr.PayloadBaseNetworkHeader, Offset: 1, Len: 1},
		&expr.Bitwise{SourceRegister: 1, DestRegister: 1, Len: 1, Mask: []byte{0x03}, Xor: []byte{0x88}},
		&expr.Payload{
			OperationType:  expr.PayloadWrite,
			SourceRegister: 1,
			Base:           expr.PayloadBaseNetworkHeader,
			Offset:         1,
			Len:            1,
			CsumType:       expr.CsumTypeInet,
			CsumOffset:     10,
		},
	}
	assert.Equal(t, want, rules[0].Exprs)
}

func TestRules_IPv6(t *testing.T) {
	table := ruleset.NewTable("mangle", &ruleset.Rule{
		Name:    "tos",
		Family:  core.FamilyIPv6,
		Matches: []xt.Match{&xt.TOSMatchInfo{Value: 0x10, Mask: 0x1c, Invert: true}},
		Target:  xt.OrTOS(0x04),
	})
	rules, err := Rules(table)
	require.NoError(t, err)
	require.Len(t, rules, 1)

	want := []expr.Any{
		&expr.Meta{Key: expr.MetaKeyNFPROTO, Register: 1},
		&expr.Cmp{Op: expr.CmpOpEq, Register: 1, Data: []byte{unix.NFPROTO_IPV6}},
		&expr.Payload{OperationType: expr.PayloadLoad, DestRegister: 1, Base: expr.PayloadBaseNetworkHeader, Offset: 0, Len: 2},
		&expr.Bitwise{SourceRegister: 1, DestRegister: 1, Len: 2, Mask: []byte{0x01, 0xc0}, Xor: []byte{0, 0}},
		&expr.Cmp{Op: expr.CmpOpNeq, Register: 1, Data: []byte{0x01, 0x00}},
		&expr.Counter{},
		&expr.Payload{OperationType: expr.PayloadLoad, DestRegister: 1, Base: expr.PayloadBaseNetworkHeader, Offset: 0, Len: 2},
		// 0xf00f | 0xfb<<4
		&expr.Bitwise{SourceRegister: 1, DestRegister: 1, Len: 2, Mask: []byte{0xff, 0xbf}, Xor: []byte{0x00, 0x40}},
		&expr.Payload{OperationType: expr.PayloadWrite, SourceRegister: 1, Base: expr.PayloadBaseNetworkHeader, Offset: 0, Len: 2},
	}
	assert.Equal(t, want, rules[0].Exprs)
}

func TestRules_INetExpandsToBothFamilies(t *testing.T) {
	table := ruleset.NewTable("mangle", &ruleset.Rule{Name: "count"})
	rules, err := Rules(table)
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, []byte{unix.NFPROTO_IPV4}, rules[0].Exprs[1].(*expr.Cmp).Data)
	assert.Equal(t, []byte{unix.NFPROTO_IPV6}, rules[1].Exprs[1].(*expr.Cmp).Data)
	assert.Len(t, rules[0].Exprs, 3)
}
