package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"firestige.xyz/dsmark/internal/nft"
)

var nftCmd = &cobra.Command{
	Use:   "nft",
	Short: "Offload a rule file to nftables",
	Long: `Translate a rule file into an nftables inet table whose base chain runs at
mangle priority, so the kernel marks packets without a user-space pipeline.

By default the nft script is printed; feed it to "nft -f -". With --apply
the table is replaced through netlink in one batch (Linux, CAP_NET_ADMIN).
With --delete the table is removed.

Examples:
  dsmark nft -f rules.yaml | nft -f -
  dsmark nft -f rules.yaml --apply --hook postrouting
  dsmark nft --delete`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runNft(os.Stdout); err != nil {
			exitWithError("nft", err)
		}
	},
}

var (
	nftRulesFile string
	nftApply     bool
	nftDelete    bool
	nftOpts      nft.Options
)

func init() {
	nftCmd.Flags().StringVarP(&nftRulesFile, "file", "f", "", "rule file to translate")
	nftCmd.Flags().BoolVar(&nftApply, "apply", false, "install the rules through netlink")
	nftCmd.Flags().BoolVar(&nftDelete, "delete", false, "remove the table through netlink")
	nftCmd.Flags().StringVar(&nftOpts.Table, "table", nft.DefaultTable, "nftables inet table name")
	nftCmd.Flags().StringVar(&nftOpts.Chain, "chain", "", "base chain name (default: the hook name)")
	nftCmd.Flags().StringVar(&nftOpts.Hook, "hook", nft.DefaultHook, "netfilter hook of the base chain")
	nftCmd.MarkFlagsMutuallyExclusive("apply", "delete")
}

func runNft(w io.Writer) error {
	if nftDelete {
		if err := removeTable(nftOpts); err != nil {
			return err
		}
		fmt.Fprintf(w, "Table inet %s deleted\n", nftOpts.Table)
		return nil
	}

	if nftRulesFile == "" {
		return fmt.Errorf("--file is required")
	}
	table, err := loadTable(nftRulesFile)
	if err != nil {
		return err
	}

	if nftApply {
		if err := applyTable(table, nftOpts); err != nil {
			return err
		}
		fmt.Fprintf(w, "Table inet %s applied, %d rule(s)\n", nftOpts.Table, len(table.Rules()))
		return nil
	}

	script, err := nft.Script(table, nftOpts)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, script)
	return err
}
