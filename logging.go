package devicemap

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

var logLevels = map[string]slog.Level{
	"DEBUG": slog.LevelDebug,
	"INFO":  slog.LevelInfo,
	"WARN":  slog.LevelWarn,
	"ERROR": slog.LevelError,
}

// ParseLogLevel converts a level name like "info" into a slog.Level.
func ParseLogLevel(s string) (slog.Level, error) {
	v, ok := logLevels[strings.ToUpper(s)]
	if !ok {
		return 0, fmt.Errorf("unknown log level %q", s)
	}
	return v, nil
}

// LevelFlag is a flag.Value holding a log level.
type LevelFlag struct {
	Value slog.Level
}

func (l *LevelFlag) String() string {
	return l.Value.String()
}

func (l *LevelFlag) Set(value string) error {
	v, err := ParseLogLevel(value)
	if err != nil {
		return err
	}
	l.Value = v
	return nil
}

// NewLogger creates a text logger writing to path, or to stderr when path is empty.
// Log files are rotated. The returned closer must be closed on exit.
func NewLogger(path string, level slog.Level) (*slog.Logger, io.Closer) {
	var w io.WriteCloser = nopCloser{os.Stderr}
	if path != "" {
		w = &lumberjack.Logger{
			Filename:   path,
			MaxSize:    50, // megabytes
			MaxBackups: 3,
		}
	}
	h := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(h), w
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }
