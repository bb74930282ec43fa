// Qcdiag-relay serves a locally attached diag port over a websocket.
//
// It opens the diag port the same way qcdiag does (USB, serial) and lets
// one qcdiag client at a time drive it with --relay. Request/response
// pairs can be captured to JSONL for later analysis, and the relay can
// announce itself over mDNS so 'qcdiag discover' finds it.
//
// Usage:
//
//	qcdiag-relay serve [flags]
//
// See 'qcdiag-relay serve --help' for available options.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/muurk/qcdiag/internal/config"
	"github.com/muurk/qcdiag/internal/discovery"
	"github.com/muurk/qcdiag/internal/logging"
	"github.com/muurk/qcdiag/internal/relay"
	"github.com/muurk/qcdiag/internal/transport"
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
	Use:   "qcdiag-relay",
	Short: "Qualcomm diag port websocket relay",
	Long: `Serve a diag port attached to this machine to qcdiag clients elsewhere.

The relay forwards each websocket message to the device as one diag
request and sends back the reply. The device answers one request at a
time, so only one client is connected at once.`,
	Version: version.Version,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version.Banner("qcdiag-relay"))
	},
}

// Serve command and flags
var (
	cfgFile      string
	usbInterface int
	usbIDs       []string
	addr         string
	wsPath       string
	certPath     string
	keyPath      string
	captureDir   string
	advertise    bool
	instanceName string
)

var settings = config.NewViper()

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the relay",
	Long: `Open the diag port and serve it on a websocket endpoint.

Besides the websocket endpoint the relay serves /metrics (Prometheus) and
/healthz. With --cert and --key the listener uses TLS and clients connect
with wss://.`,
	Example: `  # Serve the first USB diag port on :8765
  qcdiag-relay serve

  # Serve a serial port, capture traffic and announce over mDNS
  qcdiag-relay serve --port /dev/ttyUSB0 --capture-dir ./captures --advertise

  # TLS with custom certificates
  qcdiag-relay serve --cert cert.pem --key key.pem`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	flags := serveCmd.Flags()
	flags.StringVar(&cfgFile, "config", "", "Config file (default: $XDG_CONFIG_HOME/qcdiag/config.yaml)")
	flags.String("transport", "usb", "Transport to the device: usb or serial")
	flags.String("port", "", "Serial device (implies --transport serial)")
	flags.Int("baud", transport.DefaultBaudRate, "Serial baud rate")
	flags.IntVar(&usbInterface, "usb-interface", transport.AnyInterface, "USB interface number of the diag port")
	flags.StringSliceVar(&usbIDs, "usb-id", nil, "Diag device as vid:pid[:interface] in hex, repeatable (replaces usb.devices)")
	flags.Duration("timeout", transport.DefaultResponseTimeout, "Wait for each device reply")
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	flags.StringVar(&addr, "addr", ":8765", "Listen address")
	flags.StringVar(&wsPath, "path", discovery.DefaultPath, "Websocket endpoint path")
	flags.StringVar(&certPath, "cert", "", "Path to TLS certificate file")
	flags.StringVar(&keyPath, "key", "", "Path to TLS private key file")
	flags.StringVar(&captureDir, "capture-dir", "", "Directory to write JSONL traffic captures (disabled if not specified)")
	flags.BoolVar(&advertise, "advertise", false, "Announce the relay over mDNS")
	flags.StringVar(&instanceName, "name", "", "mDNS instance name (default: hostname)")

	// the relay logs by default, unlike the CLI
	settings.SetDefault("log.level", "info")
	for key, name := range map[string]string{
		"transport.kind":    "transport",
		"serial.port":       "port",
		"serial.baud":       "baud",
		"timeouts.response": "timeout",
		"log.level":         "log-level",
	} {
		if err := settings.BindPFlag(key, flags.Lookup(name)); err != nil {
			panic(fmt.Sprintf("bind flag %s: %v", name, err))
		}
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	if (certPath == "") != (keyPath == "") {
		return fmt.Errorf("both --cert and --key must be provided together, or neither")
	}
	if captureDir != "" {
		info, err := os.Stat(captureDir)
		if err != nil {
			return fmt.Errorf("cannot access capture directory: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("capture path is not a directory: %s", captureDir)
		}
	}
	cmd.SilenceUsage = true

	if flags.Changed("port") && !flags.Changed("transport") {
		settings.Set("transport.kind", string(transport.KindSerial))
	}
	cfg, err := config.Load(settings, cfgFile)
	if err != nil {
		return err
	}
	if transport.Kind(cfg.Transport.Kind) == transport.KindRelay {
		return fmt.Errorf("a relay cannot serve another relay; use --transport usb or serial")
	}
	if flags.Changed("usb-id") {
		if err := cfg.SetUSBDevices(usbIDs); err != nil {
			return err
		}
	}
	if flags.Changed("usb-interface") {
		n := usbInterface
		cfg.USB.Interface = &n
	}

	if err := logging.Initialize(cfg.Log.Level); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer logging.Sync()

	ctx := cmd.Context()
	ch, err := transport.Open(ctx, cfg.TransportOptions())
	if err != nil {
		return fmt.Errorf("failed to open diag port: %w", err)
	}
	defer ch.Close()

	device := cfg.Serial.Port
	if device == "" {
		device = cfg.Transport.Kind
	}
	logging.Info("Diag port open", zap.String("transport", cfg.Transport.Kind), zap.String("device", device))

	rc := relay.Config{
		Addr:       addr,
		Path:       wsPath,
		CertPath:   certPath,
		KeyPath:    keyPath,
		CaptureDir: captureDir,
	}
	if advertise {
		name := instanceName
		if name == "" {
			if name, err = os.Hostname(); err != nil {
				return fmt.Errorf("failed to get hostname for --name: %w", err)
			}
		}
		rc.Advertise = &discovery.Advertisement{Instance: name, Device: device}
	}

	srv, err := relay.New(rc, ch)
	if err != nil {
		return fmt.Errorf("failed to create relay: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s serving %s on %s%s\n", version.Banner("qcdiag-relay"), device, addr, wsPath)
	return srv.Run(ctx)
}
