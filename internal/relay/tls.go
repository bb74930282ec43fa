package relay

import (
	"crypto/tls"
	"fmt"

	"github.com/muurk/qcdiag/internal/logging"
	"go.uber.org/zap"
)

// NewTLSConfig loads a certificate for serving wss://.
func NewTLSConfig(certPath, keyPath string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load TLS certificate: %w", err)
	}

	logging.Info("TLS configuration created from files",
		zap.String("cert", certPath),
		zap.String("key", keyPath),
	)

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}
