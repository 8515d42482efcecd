package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-isatty"

	"marketintel/internal/config"
)

// LogFileName is the daemon log written under the configured log directory.
const LogFileName = "marketintel.log"

// Options describes a standalone logger, as used by CLI commands that run
// stages in-process.
type Options struct {
	Level       string
	Format      string
	OutputPaths []string // "stdout", "stderr" or file paths; stdout when empty
	Color       bool
}

// New builds a logger writing to every output in opts.OutputPaths.
func New(opts Options) (*slog.Logger, error) {
	level := parseLevel(opts.Level)
	w, err := openOutputs(opts.OutputPaths)
	if err != nil {
		return nil, err
	}
	handler, err := newHandler(opts.Format, w, level, level <= slog.LevelDebug, opts.Color)
	if err != nil {
		return nil, err
	}
	return slog.New(handler), nil
}

// NewFromConfig creates the daemon logger: a console handler on stdout and,
// when a log directory is configured, a second handler appending to fileName
// (LogFileName when empty) in the configured format.
func NewFromConfig(cfg *config.Config, fileName string) (*slog.Logger, error) {
	if cfg == nil {
		return New(Options{Level: "info", Format: "console"})
	}
	level := parseLevel(cfg.Logging.Level)
	debug := level <= slog.LevelDebug

	console := newPrettyHandler(os.Stdout, level, debug, isTerminal(os.Stdout))
	dir := strings.TrimSpace(cfg.Paths.LogDir)
	if dir == "" {
		return slog.New(console), nil
	}
	if fileName == "" {
		fileName = LogFileName
	}
	file, err := openOutputs([]string{filepath.Join(dir, fileName)})
	if err != nil {
		return nil, err
	}
	persisted, err := newHandler(cfg.Logging.Format, file, level, debug, false)
	if err != nil {
		return nil, err
	}
	return slog.New(combineHandlers(console, persisted)), nil
}

// ForStage returns logger tagged with the stage and, when the config carries
// a stage override, filtered to that minimum level.
func ForStage(logger *slog.Logger, cfg *config.Config, stage string) *slog.Logger {
	logger = NewComponentLogger(logger, stage+"-worker").With(String(FieldStage, stage))
	if cfg != nil {
		if override, ok := cfg.Logging.StageOverrides[strings.ToLower(stage)]; ok {
			return withFloor(logger, parseLevel(override))
		}
	}
	return logger
}

func newHandler(format string, w io.Writer, level slog.Leveler, addSource, color bool) (slog.Handler, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "console":
		return newPrettyHandler(w, level, addSource, color), nil
	case "json":
		return newJSONHandler(w, level, addSource), nil
	}
	return nil, fmt.Errorf("log format: unsupported value %q", format)
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func parseLevel(level string) slog.Level {
	var parsed slog.Level
	if err := parsed.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return slog.LevelInfo
	}
	return parsed
}

// openOutputs opens each distinct output; files are created with their
// directory and appended to.
func openOutputs(paths []string) (io.Writer, error) {
	seen := make(map[string]bool)
	var writers []io.Writer
	for _, path := range paths {
		path = strings.TrimSpace(path)
		if path == "" || seen[path] {
			continue
		}
		seen[path] = true
		switch path {
		case "stdout":
			writers = append(writers, os.Stdout)
		case "stderr":
			writers = append(writers, os.Stderr)
		default:
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return nil, fmt.Errorf("create log directory: %w", err)
			}
			f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o664)
			if err != nil {
				return nil, fmt.Errorf("open log file %s: %w", path, err)
			}
			writers = append(writers, f)
		}
	}
	switch len(writers) {
	case 0:
		return os.Stdout, nil
	case 1:
		return writers[0], nil
	}
	return io.MultiWriter(writers...), nil
}
