package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"firestige.xyz/dsmark/internal/daemon"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the marking pipeline in foreground",
	Long: `Run the dsmark pipeline in foreground.

The daemon will:
  1. Load configuration and the rule table
  2. Initialize logging and metrics
  3. Open the configured source and sink
  4. Evaluate every frame against the rule table
  5. Handle signals for graceful shutdown (SIGTERM, SIGINT) and rule reload (SIGHUP)

With a pcap source the daemon exits once the file has been replayed.

Examples:
  dsmark run -c /etc/dsmark/config.yml
  dsmark run -c replay.yml -p ''`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runDaemon(); err != nil {
			exitWithError("daemon failed", err)
		}
	},
}

func runDaemon() error {
	d, err := daemon.New(configFile, pidFile)
	if err != nil {
		return fmt.Errorf("failed to create daemon: %w", err)
	}

	if err := d.Start(); err != nil {
		d.Stop()
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	// Run main loop (blocks until shutdown)
	err = d.Run()

	s := d.Stats()
	fmt.Fprintf(os.Stderr, "received=%d skipped=%d rewritten=%d dropped=%d emitted=%d emit_errors=%d\n",
		s.Received, s.Skipped, s.Rewritten, s.Dropped, s.Emitted, s.EmitErrors)
	return err
}
