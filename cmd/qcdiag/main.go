// Qcdiag talks to the diagnostic port of Qualcomm based modems.
//
// It reads and writes NV items, edits the IMEI, browses and copies files
// on the EFS2 filesystem, exports the factory image and sends raw diag
// commands. The diag port is reached over USB, a serial device, or a
// qcdiag-relay websocket on another machine.
//
// Usage:
//
//	qcdiag [command] [flags]
//
// See 'qcdiag --help' for available commands.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/muurk/qcdiag/internal/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "qcdiag",
	Short: "Qualcomm diag port utility",
	Long: `A utility for the diagnostic (DIAG) port of Qualcomm based modems.

Reads and writes NV items, backs them up and restores them, writes the
IMEI, works with files on the EFS2 filesystem and exports the factory
image. The diag port is found over USB by default; use --port for a
serial device or --relay for a qcdiag-relay on another machine.`,
	Version: version.Version,
	Example: `  # Show the version reply of the attached modem
  qcdiag info

  # Read the IMEI item over a serial port
  qcdiag --port /dev/ttyUSB0 nv read 550

  # Back up every NV item through a relay
  qcdiag --relay ws://lab-pi.local:8765/diag nv backup nv.json`,
}

func init() {
	// Disable automatic completion command generation
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version.Banner("qcdiag"))
	},
}
