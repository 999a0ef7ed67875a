package cmd

import (
	"fmt"
	"io"
	"os"
	"syscall"

	"github.com/spf13/cobra"

	"firestige.xyz/dsmark/internal/daemon"
)

// Signaler delivers a signal to a running daemon.
type Signaler interface {
	Signal(sig syscall.Signal) error
}

// pidFileSignaler finds the daemon through its PID file.
type pidFileSignaler string

func (p pidFileSignaler) Signal(sig syscall.Signal) error {
	return daemon.Signal(string(p), sig)
}

// stopCmd represents the stop command
var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the dsmark daemon",
	Long: `Stop the dsmark daemon gracefully.

This command sends SIGTERM to the process recorded in the PID file. The
daemon stops the pipeline, flushes its sink and exits.`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runSignal(pidFileSignaler(pidFile), syscall.SIGTERM, os.Stdout); err != nil {
			exitWithError("stop failed", err)
		}
	},
}

// reloadCmd represents the reload command
var reloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Reload the daemon configuration",
	Long: `Reload the configuration of a running dsmark daemon.

This command sends SIGHUP to the process recorded in the PID file. The rule
table and log settings are replaced without restarting; source, sink and
pipeline changes need a restart. A rule table that fails to install leaves
the running one in place.`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runSignal(pidFileSignaler(pidFile), syscall.SIGHUP, os.Stdout); err != nil {
			exitWithError("reload failed", err)
		}
	},
}

func runSignal(s Signaler, sig syscall.Signal, w io.Writer) error {
	if err := s.Signal(sig); err != nil {
		return err
	}
	switch sig {
	case syscall.SIGHUP:
		fmt.Fprintln(w, "Reload signal sent")
	case syscall.SIGTERM:
		fmt.Fprintln(w, "Stop signal sent")
	default:
		fmt.Fprintf(w, "Signal %s sent\n", sig)
	}
	return nil
}
