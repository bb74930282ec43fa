package logging

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/muurk/qcdiag/internal/protocol"
)

// Environment variables read when no explicit value is given.
// An unset level means silent; the format is "console" (default) or "json".
const (
	LogLevelEnvVar  = "QCDIAG_LOG_LEVEL"
	LogFormatEnvVar = "QCDIAG_LOG_FORMAT"
)

// maxDumpBytes caps hex and ascii dumps in log fields.
const maxDumpBytes = 256

var logger *zap.Logger

// Initialize installs the global logger at level, falling back to
// QCDIAG_LOG_LEVEL. With neither set the logger discards everything.
// An unrecognized level logs at info.
func Initialize(level string) error {
	if level == "" {
		level = os.Getenv(LogLevelEnvVar)
	}
	if level == "" {
		logger = zap.NewNop()
		return nil
	}

	lvl, err := ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}

	l, err := build(lvl, os.Getenv(LogFormatEnvVar))
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger = l
	return nil
}

func build(lvl zapcore.Level, format string) (*zap.Logger, error) {
	var cfg zap.Config
	if strings.EqualFold(format, "json") {
		cfg = zap.NewProductionConfig()
		cfg.Sampling = nil
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.Development = false
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.DisableStacktrace = true
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
	return cfg.Build()
}

// ParseLevel maps a level name to a zap level. Case is ignored and
// "warning" is accepted for warn.
func ParseLevel(level string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel, nil
	case "info":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	}
	return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", level)
}

// InitializeFromEnv initializes the logger from QCDIAG_LOG_LEVEL.
func InitializeFromEnv() error {
	return Initialize("")
}

// SetLogger replaces the global logger. Tests use it with zaptest/observer.
func SetLogger(l *zap.Logger) {
	logger = l
}

// GetLogger returns the global logger, a no-op logger until Initialize runs.
func GetLogger() *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return logger
}

func Info(msg string, fields ...zap.Field)  { GetLogger().Info(msg, fields...) }
func Debug(msg string, fields ...zap.Field) { GetLogger().Debug(msg, fields...) }
func Warn(msg string, fields ...zap.Field)  { GetLogger().Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { GetLogger().Error(msg, fields...) }

// Fatal logs and exits the process.
func Fatal(msg string, fields ...zap.Field) { GetLogger().Fatal(msg, fields...) }

// LogConnection records a relay client connecting, being refused or leaving.
func LogConnection(remoteAddr, event string) {
	Info("Connection event", zap.String("remote_addr", remoteAddr), zap.String("event", event))
}

// LogSession records a relay session lifecycle event.
func LogSession(sessionID, event string, fields ...zap.Field) {
	base := []zap.Field{zap.String("session_id", sessionID), zap.String("event", event)}
	Info("Session event", append(base, fields...)...)
}

// LogRequest traces an outgoing diag request on l. It does nothing unless
// l has debug enabled.
func LogRequest(l *zap.Logger, req []byte) {
	if ce := l.Check(zapcore.DebugLevel, "diag request"); ce != nil {
		ce.Write(frameFields(req)...)
	}
}

// LogResponse traces a diag response on l.
func LogResponse(l *zap.Logger, resp []byte) {
	if ce := l.Check(zapcore.DebugLevel, "diag response"); ce != nil {
		ce.Write(frameFields(resp)...)
	}
}

func frameFields(data []byte) []zap.Field {
	fields := make([]zap.Field, 0, 4)
	fields = append(fields, zap.Int("length", len(data)))
	if len(data) == 0 {
		return fields
	}
	fields = append(fields, zap.Stringer("opcode", protocol.DiagCommand(data[0])))
	if len(data) >= 4 && protocol.DiagCommand(data[0]) == protocol.CmdSubsystem {
		fields = append(fields, zap.String("subsys", fmt.Sprintf("0x%02X/0x%02X", data[1], data[2])))
	}
	return append(fields, zap.String("hex", hexDump(data)))
}

// LogRawBytes logs data on l as hex and printable ASCII at debug level.
func LogRawBytes(l *zap.Logger, label string, data []byte) {
	if ce := l.Check(zapcore.DebugLevel, label); ce != nil {
		ce.Write(
			zap.Int("length", len(data)),
			zap.String("hex", hexDump(data)),
			zap.String("ascii", asciiDump(data)))
	}
}

func hexDump(data []byte) string {
	if len(data) > maxDumpBytes {
		return hex.EncodeToString(data[:maxDumpBytes]) + "..."
	}
	return hex.EncodeToString(data)
}

func asciiDump(data []byte) string {
	if len(data) > maxDumpBytes {
		data = data[:maxDumpBytes]
	}
	var b strings.Builder
	b.Grow(len(data))
	for _, c := range data {
		if c < 0x20 || c > 0x7E {
			c = '.'
		}
		b.WriteByte(c)
	}
	return b.String()
}

// Sync flushes buffered entries. Errors from syncing a terminal are ignored.
func Sync() {
	if logger != nil {
		_ = logger.Sync()
	}
}
