//go:build linux

package cmd

import (
	"github.com/google/nftables"

	"firestige.xyz/dsmark/internal/nft"
	"firestige.xyz/dsmark/internal/ruleset"
)

func applyTable(table *ruleset.Table, opts nft.Options) error {
	conn, err := nftables.New()
	if err != nil {
		return err
	}
	defer conn.CloseLasting()
	return nft.Apply(conn, table, opts)
}

func removeTable(opts nft.Options) error {
	conn, err := nftables.New()
	if err != nil {
		return err
	}
	defer conn.CloseLasting()
	return nft.Remove(conn, opts)
}
