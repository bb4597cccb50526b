package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/nerrad567/gray-logic-node/internal/infrastructure/config"
)

// Logger wraps slog.Logger with node-specific defaults.
//
// Every record carries the node identity so fleet-wide log aggregation
// can attribute lines without parsing topics out of message text.
type Logger struct {
	*slog.Logger
}

// New builds a Logger from config.
//
// Parameters:
//   - cfg: Logging section of config.yaml (level, format, output)
//   - nodeID: Node identity attached to every record
//   - version: Firmware version attached to every record
//
// Returns:
//   - *Logger: Configured logger ready for use
//
// Output "none" discards everything; a headless node on battery has no
// one reading stdout, and serial writes cost power on some boards.
func New(cfg config.LoggingConfig, nodeID, version string) *Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var handler slog.Handler
	out := destination(cfg.Output)
	if strings.ToLower(cfg.Format) == "text" {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}

	handler = handler.WithAttrs([]slog.Attr{
		slog.String("service", "graynode"),
		slog.String("node_id", nodeID),
		slog.String("version", version),
	})

	return &Logger{Logger: slog.New(handler)}
}

// With returns a new Logger with additional default attributes.
//
// Example:
//
//	mqttLogger := logger.With("component", "mqtt")
//	mqttLogger.Info("connected") // Includes component=mqtt
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Default creates a logger for use before configuration is loaded.
// JSON to stdout at info level, with placeholder identity.
func Default() *Logger {
	return New(config.LoggingConfig{
		Level:  "info",
		Format: "json",
		Output: "stdout",
	}, "unconfigured", "dev")
}

func destination(output string) io.Writer {
	switch strings.ToLower(output) {
	case "stderr":
		return os.Stderr
	case "none":
		return io.Discard
	default:
		return os.Stdout
	}
}

// parseLevel converts a string log level to slog.Level.
// Unrecognised values fall back to info.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
