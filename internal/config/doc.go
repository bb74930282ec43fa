// Package config loads and saves the qcdiag configuration file.
//
// The file lives in the platform configuration directory:
//   - Linux: $XDG_CONFIG_HOME/qcdiag/config.yaml or $HOME/.config/qcdiag/config.yaml
//   - macOS: $HOME/.config/qcdiag/config.yaml
//   - Windows: %LOCALAPPDATA%\qcdiag\config.yaml
//
// A missing file is not an error; the built-in defaults apply. Any key can
// be set from the environment with the QCDIAG_ prefix:
//
//	QCDIAG_TRANSPORT_KIND=serial QCDIAG_SERIAL_PORT=/dev/ttyUSB0 qcdiag info
//
// # Usage Example
//
//	v := config.NewViper()
//	_ = v.BindPFlag("serial.port", cmd.Flags().Lookup("port"))
//	cfg, err := config.Load(v, "")
//	if err != nil {
//	    return err
//	}
//	ch, err := transport.Open(ctx, cfg.TransportOptions())
package config
