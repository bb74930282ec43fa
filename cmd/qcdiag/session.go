package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/muurk/qcdiag/internal/config"
	"github.com/muurk/qcdiag/internal/diag"
	"github.com/muurk/qcdiag/internal/efs"
	"github.com/muurk/qcdiag/internal/logging"
	"github.com/muurk/qcdiag/internal/nv"
	"github.com/muurk/qcdiag/internal/nvcatalog"
	"github.com/muurk/qcdiag/internal/transport"
	"github.com/muurk/qcdiag/internal/ui"
)

// Global flags
var (
	cfgFile      string
	usbInterface int
	usbIDs       []string
	assumeYes    bool
)

// settings collects file, environment and flag values. Flags are bound in
// init so that a changed flag wins over everything else.
var settings = config.NewViper()

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "Config file (default: $XDG_CONFIG_HOME/qcdiag/config.yaml)")
	flags.String("transport", "usb", "Transport: usb, serial or relay")
	flags.String("port", "", "Serial device, e.g. /dev/ttyUSB0 (implies --transport serial)")
	flags.Int("baud", transport.DefaultBaudRate, "Serial baud rate")
	flags.String("relay", "", "Relay URL, e.g. ws://lab-pi.local:8765/diag (implies --transport relay)")
	flags.IntVar(&usbInterface, "usb-interface", transport.AnyInterface, "USB interface number of the diag port")
	flags.StringSliceVar(&usbIDs, "usb-id", nil, "Diag device as vid:pid[:interface] in hex, repeatable (replaces usb.devices)")
	flags.Duration("timeout", transport.DefaultResponseTimeout, "Wait for each device reply")
	flags.String("nv-catalog", "", "NV item names from an nvitems.xml or YAML file")
	flags.String("log-level", "", "Log level: debug, info, warn, error (default: silent)")
	flags.BoolVarP(&assumeYes, "yes", "y", false, "Skip confirmation prompts")

	for key, name := range map[string]string{
		"transport.kind":    "transport",
		"serial.port":       "port",
		"serial.baud":       "baud",
		"relay.address":     "relay",
		"timeouts.response": "timeout",
		"nv.catalog":        "nv-catalog",
		"log.level":         "log-level",
	} {
		if err := settings.BindPFlag(key, flags.Lookup(name)); err != nil {
			panic(fmt.Sprintf("bind flag %s: %v", name, err))
		}
	}
}

// loadConfig resolves the configuration for cmd. A --port or --relay flag
// selects its transport unless --transport was given as well.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	flags := cmd.Flags()
	if !flags.Changed("transport") {
		switch {
		case flags.Changed("relay"):
			settings.Set("transport.kind", string(transport.KindRelay))
		case flags.Changed("port"):
			settings.Set("transport.kind", string(transport.KindSerial))
		}
	}

	cfg, err := config.Load(settings, cfgFile)
	if err != nil {
		return nil, err
	}
	if flags.Changed("usb-id") {
		if err := cfg.SetUSBDevices(usbIDs); err != nil {
			return nil, err
		}
	}
	if flags.Changed("usb-interface") {
		n := usbInterface
		cfg.USB.Interface = &n
	}
	return cfg, nil
}

// session is an open diag connection.
type session struct {
	cfg    *config.Config
	client *diag.Client
}

// connect sets up logging and opens the transport described by cfg.
func connect(cmd *cobra.Command, cfg *config.Config) (*session, error) {
	if err := logging.Initialize(cfg.Log.Level); err != nil {
		return nil, err
	}

	ch, err := transport.Open(cmd.Context(), cfg.TransportOptions())
	if err != nil {
		return nil, err
	}
	logging.Info("Diag port open",
		zap.String("transport", cfg.Transport.Kind),
		zap.Duration("timeout", cfg.Timeouts.Response))
	return &session{cfg: cfg, client: diag.NewClient(ch, logging.GetLogger())}, nil
}

func (s *session) Close() {
	if err := s.client.Close(); err != nil {
		logging.Warn("Close failed", zap.Error(err))
	}
	logging.Sync()
}

// nvStore returns a store using the configured item catalog.
func (s *session) nvStore() (*nv.Store, error) {
	var (
		catalog *nvcatalog.Catalog
		err     error
	)
	if s.cfg.NV.Catalog != "" {
		catalog, err = nvcatalog.Load(s.cfg.NV.Catalog)
	} else {
		catalog, err = nvcatalog.Default()
	}
	if err != nil {
		return nil, err
	}
	return nv.NewStore(s.client, catalog), nil
}

func (s *session) efsBridge() *efs.Bridge {
	return efs.NewBridge(s.client)
}

// transportParams describes the connection for command headers.
func transportParams(cfg *config.Config) []ui.Param {
	switch transport.Kind(cfg.Transport.Kind) {
	case transport.KindSerial:
		port := cfg.Serial.Port
		if port == "" {
			port = "auto"
		}
		return []ui.Param{ui.P("Transport", "serial"), ui.P("Port", fmt.Sprintf("%s @ %d", port, cfg.Serial.Baud))}
	case transport.KindRelay:
		return []ui.Param{ui.P("Transport", "relay"), ui.P("Relay", cfg.Relay.Address)}
	default:
		p := []ui.Param{ui.P("Transport", "usb")}
		if cfg.USB.Interface != nil {
			p = append(p, ui.P("Interface", strconv.Itoa(*cfg.USB.Interface)))
		}
		return p
	}
}

// withTransport prepends the connection description to params.
func withTransport(cfg *config.Config, params ...ui.Param) []ui.Param {
	return append(transportParams(cfg), params...)
}

// parseUint16 accepts decimal or 0x prefixed hex.
func parseUint16(name, s string) (uint16, error) {
	digits, base := strings.TrimSpace(s), 10
	if h, ok := strings.CutPrefix(strings.ToLower(digits), "0x"); ok {
		digits, base = h, 16
	}
	n, err := strconv.ParseUint(digits, base, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: must be 0..65535 or 0x0..0xFFFF", name, s)
	}
	return uint16(n), nil
}

// confirm asks on the command's stdin unless --yes was given.
func confirm(ask func() bool) error {
	if assumeYes {
		return nil
	}
	if !ask() {
		return fmt.Errorf("cancelled by user")
	}
	return nil
}
