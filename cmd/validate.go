package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"firestige.xyz/dsmark/internal/config"
	"firestige.xyz/dsmark/internal/ruleset"
	"firestige.xyz/dsmark/internal/xt"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a rule file",
	Long: `Validate a rule file (JSON or YAML) and install it against the built-in
extensions without touching any packet.

Every match and target is built and checked, so a DSCP value above 63 or
a DSCP target outside the mangle table is reported here.
File format is auto-detected from extension (.json, .yaml, .yml).

Examples:
  dsmark validate -f rules.yaml
  dsmark validate -f rules.json`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runValidate(validateRulesFile, os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "INVALID: %v\n", err)
			os.Exit(1)
		}
	},
}

var validateRulesFile string

func init() {
	validateCmd.Flags().StringVarP(&validateRulesFile, "file", "f", "",
		"rule file to validate (required)")
	validateCmd.MarkFlagRequired("file")
}

func runValidate(path string, w io.Writer) error {
	table, err := loadTable(path)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "VALID: table %q, %d rule(s)\n", table.Name(), len(table.Rules()))
	for _, r := range table.Rules() {
		fmt.Fprintf(w, "  %-20s %-5s", r.Name, r.Family)
		for _, m := range r.Matches {
			fmt.Fprintf(w, " %v", m)
		}
		if r.Target != nil {
			fmt.Fprintf(w, " -> %v", r.Target)
		}
		fmt.Fprintln(w)
	}
	return nil
}

// loadTable parses and installs a rule file.
func loadTable(path string) (*ruleset.Table, error) {
	rs, err := config.LoadRuleSet(path)
	if err != nil {
		return nil, err
	}
	return ruleset.Install(*rs, xt.DefaultRegistry())
}
