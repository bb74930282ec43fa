package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/muurk/qcdiag/internal/diag"
	"github.com/muurk/qcdiag/internal/ui"
)

func init() {
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(rawCmd)
	rootCmd.AddCommand(spCmd)
	rootCmd.AddCommand(spcCmd)
	rootCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(saharaCmd)
	rootCmd.AddCommand(crashCmd)
}

// infoCmd implements the 'info' command
var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show the device version reply",
	Long: `Send the version request and print the reply as a hex and ASCII dump.

The reply carries the build date, time and firmware revision strings.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, "Device Info", "qcdiag info", nil, func(ctx context.Context, s *session, p *ui.Printer) error {
			resp, err := s.client.Info(ctx)
			if err != nil {
				return err
			}
			p.PrintHexDump("Version reply", resp)
			return nil
		})
	},
}

// rawCmd implements the 'cmd' command
var rawCmd = &cobra.Command{
	Use:   "cmd <hex>",
	Short: "Send a raw diag command",
	Long: `Send a hex encoded diag request as is and dump the reply.

The request is framed by the transport; do not include the CRC or the
0x7E terminator. A reply whose first byte does not echo the request is
decoded through the diag status table.`,
	Example: `  # Version request
  qcdiag cmd 00

  # Read NV item 550 by hand
  qcdiag cmd "26 26 02"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := strings.Join(args, "")
		params := []ui.Param{ui.P("Request", req)}
		return withSession(cmd, "Raw Command", "qcdiag cmd", params, func(ctx context.Context, s *session, p *ui.Printer) error {
			reply, err := s.client.SendRaw(ctx, req)
			if err != nil {
				return err
			}
			if reply.Status != "" {
				p.PrintWarning("Command not accepted", ui.P("Status", reply.Status))
			}
			p.PrintHexDump("Reply", reply.Response)
			return nil
		})
	},
}

// spCmd implements the 'sp' command
var spCmd = &cobra.Command{
	Use:   "sp [hex]",
	Short: "Send the security password",
	Long: `Send the 8 byte security password. Defaults to ` + diag.DefaultSP + `.

Some items stay locked until the password has been accepted.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runUnlock(cmd, args, "Security Password", "qcdiag sp", diag.DefaultSP, 8,
			func(ctx context.Context, s *session, code []byte) (bool, error) {
				return s.client.SendSP(ctx, code)
			})
	},
}

// spcCmd implements the 'spc' command
var spcCmd = &cobra.Command{
	Use:   "spc [hex]",
	Short: "Send the service programming code",
	Long:  `Send the 6 digit service programming code. Defaults to ` + diag.DefaultSPC + ` ("000000").`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runUnlock(cmd, args, "Service Programming Code", "qcdiag spc", diag.DefaultSPC, 6,
			func(ctx context.Context, s *session, code []byte) (bool, error) {
				return s.client.SendSPC(ctx, code)
			})
	},
}

func runUnlock(cmd *cobra.Command, args []string, title, command, def string, size int,
	send func(context.Context, *session, []byte) (bool, error)) error {
	code := def
	if len(args) == 1 {
		code = args[0]
	}
	raw, err := hex.DecodeString(code)
	if err != nil || len(raw) != size {
		cmd.SilenceUsage = true
		return fmt.Errorf("invalid code %q: want %d hex encoded bytes", code, size)
	}

	return withSession(cmd, title, command, []ui.Param{ui.P("Code", strings.ToUpper(code))}, func(ctx context.Context, s *session, p *ui.Printer) error {
		ok, err := send(ctx, s, raw)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%s rejected by the device", strings.ToLower(title))
		}
		p.PrintSuccess("Code accepted")
		return nil
	})
}

// downloadCmd implements the 'download' command
var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Switch the device to download mode",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runModeSwitch(cmd, "Download Mode", "qcdiag download", (*diag.Client).EnterDownloadMode)
	},
}

// saharaCmd implements the 'sahara' command
var saharaCmd = &cobra.Command{
	Use:   "sahara",
	Short: "Switch the device to Sahara (emergency download) mode",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runModeSwitch(cmd, "Sahara Mode", "qcdiag sahara", (*diag.Client).EnterSaharaMode)
	},
}

// crashCmd implements the 'crash' command
var crashCmd = &cobra.Command{
	Use:   "crash",
	Short: "Force a modem crash",
	Long: `Ask the modem firmware to crash. Depending on its configuration the
device reboots or enters its crash dump mode.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		if err := confirm(func() bool { return ui.CrashConfirmation(cmd.InOrStdin(), cmd.OutOrStdout()) }); err != nil {
			return err
		}
		return runModeSwitch(cmd, "Forced Crash", "qcdiag crash", (*diag.Client).EnforceCrash)
	},
}

func runModeSwitch(cmd *cobra.Command, title, command string, fn func(*diag.Client, context.Context) error) error {
	return withSession(cmd, title, command, nil, func(ctx context.Context, s *session, p *ui.Printer) error {
		if err := fn(s.client, ctx); err != nil {
			return err
		}
		p.PrintSuccess(title+" requested", ui.P("Note", "the diag port disconnects while the device switches"))
		return nil
	})
}

// withSession prints the command header, connects, runs fn and prints a
// failure box when it fails.
func withSession(cmd *cobra.Command, title, command string, params []ui.Param,
	fn func(ctx context.Context, s *session, p *ui.Printer) error) error {
	// Suppress usage on execution errors (we're past argument parsing)
	cmd.SilenceUsage = true

	p := ui.NewPrinter(cmd.OutOrStdout())
	cfg, err := loadConfig(cmd)
	if err != nil {
		p.PrintError("Invalid configuration", err)
		return err
	}
	p.PrintHeader(title, command, withTransport(cfg, params...)...)

	s, err := connect(cmd, cfg)
	if err != nil {
		p.PrintError("Connection failed", err)
		return err
	}
	defer s.Close()

	if err := fn(cmd.Context(), s, p); err != nil {
		p.PrintError(title+" failed", err)
		return err
	}
	return nil
}
