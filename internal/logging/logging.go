package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config tunes structured logging: a rotating JSON file always, stderr
// mirroring optionally (off for MCP mode, where stdout/stderr belong to
// the protocol).
type Config struct {
	// Level is the minimum level: debug, info, warn, error.
	Level string
	// FilePath receives the JSON log; empty disables file logging.
	FilePath string
	// MaxSizeMB triggers rotation (default 10).
	MaxSizeMB int
	// MaxFiles bounds how many rotated files survive (default 5).
	MaxFiles int
	// WriteToStderr mirrors entries to stderr for interactive runs.
	WriteToStderr bool
}

// DefaultConfig logs info and above to the default log path, mirrored
// to stderr.
func DefaultConfig() Config {
	return Config{
		Level:         "info",
		FilePath:      DefaultLogPath(),
		MaxSizeMB:     10,
		MaxFiles:      5,
		WriteToStderr: true,
	}
}

// DebugConfig is DefaultConfig at debug level.
func DebugConfig() Config {
	cfg := DefaultConfig()
	cfg.Level = "debug"
	return cfg
}

// Setup builds a JSON slog.Logger over a rotating file writer. The
// returned cleanup flushes and closes the file; call it on the way out.
func Setup(cfg Config) (*slog.Logger, func(), error) {
	if err := EnsureLogDir(); err != nil {
		return nil, nil, err
	}

	writer, err := NewRotatingWriter(cfg.FilePath, cfg.MaxSizeMB, cfg.MaxFiles)
	if err != nil {
		return nil, nil, err
	}

	var output io.Writer = writer
	if cfg.WriteToStderr {
		output = io.MultiWriter(writer, os.Stderr)
	}

	handler := slog.NewJSONHandler(output, &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
	})

	cleanup := func() {
		_ = writer.Sync()
		_ = writer.Close()
	}
	return slog.New(handler), cleanup, nil
}

// SetupDefault installs a debug-level logger as the process default and
// returns its cleanup.
func SetupDefault() (func(), error) {
	logger, cleanup, err := Setup(DebugConfig())
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return cleanup, nil
}

// parseLevel maps a level name to slog.Level, defaulting unknown names
// to info.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LevelFromString is parseLevel for callers outside the package (the
// log viewer's level filter).
func LevelFromString(level string) slog.Level {
	return parseLevel(level)
}
