package cmd

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"firestige.xyz/dsmark/internal/xt"
	"firestige.xyz/dsmark/pkg/plugin"
)

var extensionsCmd = &cobra.Command{
	Use:   "extensions",
	Short: "List match and target extensions, DSCP classes and plugins",
	Run: func(cmd *cobra.Command, args []string) {
		printExtensions(xt.DefaultRegistry(), os.Stdout)
	},
}

func printExtensions(reg *xt.Registry, out io.Writer) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "KIND\tNAME\tREV\tFAMILY\tTABLE")
	for _, m := range reg.Matches() {
		fmt.Fprintf(w, "match\t%s\t%d\t%s\t-\n", m.Name, m.Revision, m.Family)
	}
	for _, t := range reg.Targets() {
		table := t.Table
		if table == "" {
			table = "-"
		}
		fmt.Fprintf(w, "target\t%s\t%d\t%s\t%s\n", t.Name, t.Revision, t.Family, table)
	}
	w.Flush()

	aliases := reg.Aliases()
	names := make([]string, 0, len(aliases))
	for a := range aliases {
		names = append(names, a)
	}
	sort.Strings(names)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Aliases:")
	for _, a := range names {
		fmt.Fprintf(out, "  %s -> %s\n", a, aliases[a])
	}

	fmt.Fprintln(out)
	fmt.Fprintf(out, "DSCP classes: %s\n", strings.Join(xt.DSCPClasses(), " "))
	fmt.Fprintf(out, "Sources: %s\n", strings.Join(plugin.ListCapturers(), " "))
	fmt.Fprintf(out, "Sinks: %s\n", strings.Join(plugin.ListEmitters(), " "))
}
