package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/muurk/qcdiag/internal/config"
	"github.com/muurk/qcdiag/internal/discovery"
	"github.com/muurk/qcdiag/internal/logging"
	"github.com/muurk/qcdiag/internal/ui"
)

var (
	scanWait    time.Duration
	forceConfig bool
)

func init() {
	discoverCmd.Flags().DurationVar(&scanWait, "wait", discovery.DefaultScanTimeout, "How long to listen for relays")
	configInitCmd.Flags().BoolVar(&forceConfig, "force", false, "Overwrite an existing config file")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(configCmd)
}

// discoverCmd implements the 'discover' command
var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Find qcdiag relays on the local network",
	Long: `Browse mDNS for qcdiag-relay instances and print the --relay URL of each.

Requires multicast on the local network (UDP port 5353).`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		// discovery works without logging
		_ = logging.InitializeFromEnv()

		p := ui.NewPrinter(cmd.OutOrStdout())
		p.PrintHeader("Relay Discovery", "qcdiag discover",
			ui.P("Service", discovery.ServiceType),
			ui.P("Wait", scanWait.String()))

		scanner := discovery.NewScanner()
		scanner.Timeout = scanWait
		relays, err := scanner.Scan(cmd.Context())
		if err != nil {
			p.PrintError("Discovery failed", err)
			return err
		}
		if len(relays) == 0 {
			p.PrintWarning("No relays found",
				ui.P("Check", "the relay runs with --advertise"),
				ui.P("Network", "both machines on the same segment, UDP 5353 open"))
			return nil
		}

		rows := make([][]string, 0, len(relays))
		for _, r := range relays {
			rows = append(rows, []string{
				r.Instance,
				r.URL(),
				r.GetMetadata(discovery.TxtDevice),
				r.GetMetadata(discovery.TxtVersion),
			})
		}
		p.PrintTable([]string{"Name", "Relay URL", "Device", "Version"}, rows)
		p.Printf("Use: qcdiag --relay %s info\n", relays[0].URL())
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

// configInitCmd implements the 'config init' command
var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file with the current settings",
	Long: `Write the effective settings (defaults, environment and flags) to the
config file so they apply to later runs.`,
	Example: `  # Always use the serial port
  qcdiag --port /dev/ttyUSB0 config init`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		p := ui.NewPrinter(cmd.OutOrStdout())

		target := cfgFile
		if target == "" {
			var err error
			if target, err = config.GetConfigPath(); err != nil {
				return err
			}
		}
		if _, err := os.Stat(target); err == nil && !forceConfig {
			return fmt.Errorf("%s already exists, use --force to overwrite", target)
		}

		// A missing file is fine here; Load falls back to defaults.
		cfg, err := loadConfig(cmd)
		if err != nil {
			p.PrintError("Invalid configuration", err)
			return err
		}
		written, err := config.Save(cfg, target)
		if err != nil {
			p.PrintError("Saving configuration failed", err)
			return err
		}
		p.PrintSuccess("Configuration saved",
			ui.P("File", written),
			ui.P("Transport", cfg.Transport.Kind))
		return nil
	},
}

// configShowCmd implements the 'config show' command
var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}
