//go:build !linux

package cmd

import (
	"errors"

	"firestige.xyz/dsmark/internal/nft"
	"firestige.xyz/dsmark/internal/ruleset"
)

var errNoNetlink = errors.New("nftables netlink is only available on linux; print the script instead")

func applyTable(*ruleset.Table, nft.Options) error { return errNoNetlink }

func removeTable(nft.Options) error { return errNoNetlink }
