// Package logging configures component loggers for weave. Every logger
// writes to a rotating file; a console sink on stderr can be enabled for
// plain CLI runs and is suppressed while the progress view owns the
// terminal.
//
//	if err := logging.Init(logging.DefaultConfig()); err != nil {
//	    return err
//	}
//	defer logging.Close()
//
//	log := logging.Get("upload")
//	log.Info("chunk posted", "id", id, "offset", offset)
package logging

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/adrg/xdg"
	"github.com/charmbracelet/log"
)

// Level is a log severity.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var levelNames = map[Level]string{
	LevelDebug: "debug",
	LevelInfo:  "info",
	LevelWarn:  "warn",
	LevelError: "error",
}

func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return "unknown"
}

func (l Level) charm() log.Level {
	switch l {
	case LevelDebug:
		return log.DebugLevel
	case LevelWarn:
		return log.WarnLevel
	case LevelError:
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

// ErrInvalidLevel is returned for an unknown level name.
var ErrInvalidLevel = errors.New("invalid log level")

// ParseLevel parses a level name. "warning" is accepted for warn.
func ParseLevel(s string) (Level, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if name == "warning" {
		name = "warn"
	}
	for level, n := range levelNames {
		if n == name {
			return level, nil
		}
	}
	return LevelInfo, fmt.Errorf("%w: %s", ErrInvalidLevel, s)
}

// Config configures Init.
type Config struct {
	// Level is the default level for every component.
	Level string

	// Path is the log file. Empty means DefaultLogPath().
	Path string

	Rotation RotationConfig

	// Components overrides the level per component name.
	Components map[string]string

	// ConsoleLevel mirrors records at or above this level to stderr.
	// Empty disables the console sink.
	ConsoleLevel string

	// Interactive suppresses the console sink and keeps the most recent
	// records in memory for the progress view.
	Interactive bool
}

// Entry is one record kept for the progress view.
type Entry struct {
	Time      time.Time
	Level     Level
	Component string
	Message   string
}

// Logger is a component logger.
type Logger struct {
	component string
	file      *log.Logger
	console   *log.Logger
}

func (l *Logger) Debug(msg string, keyvals ...interface{}) { l.emit(LevelDebug, msg, keyvals) }
func (l *Logger) Info(msg string, keyvals ...interface{})  { l.emit(LevelInfo, msg, keyvals) }
func (l *Logger) Warn(msg string, keyvals ...interface{})  { l.emit(LevelWarn, msg, keyvals) }
func (l *Logger) Error(msg string, keyvals ...interface{}) { l.emit(LevelError, msg, keyvals) }

// With returns a logger that adds keyvals to every record.
func (l *Logger) With(keyvals ...interface{}) *Logger {
	out := &Logger{component: l.component, file: l.file.With(keyvals...)}
	if l.console != nil {
		out.console = l.console.With(keyvals...)
	}
	return out
}

func (l *Logger) emit(level Level, msg string, keyvals []interface{}) {
	write(l.file, level, msg, keyvals)
	if l.console != nil {
		write(l.console, level, msg, keyvals)
	}

	if recent := Recent(); recent != nil && level >= LevelInfo {
		recent.Add(Entry{Time: time.Now(), Level: level, Component: l.component, Message: msg})
	}
}

func write(logger *log.Logger, level Level, msg string, keyvals []interface{}) {
	switch level {
	case LevelDebug:
		logger.Debug(msg, keyvals...)
	case LevelInfo:
		logger.Info(msg, keyvals...)
	case LevelWarn:
		logger.Warn(msg, keyvals...)
	case LevelError:
		logger.Error(msg, keyvals...)
	}
}

type registry struct {
	mu         sync.RWMutex
	ready      bool
	writer     *RotatingWriter
	level      Level
	components map[string]Level
	console    *Level
	recent     *RingBuffer
	loggers    map[string]*Logger
}

var global = &registry{
	components: make(map[string]Level),
	loggers:    make(map[string]*Logger),
}

// Init opens the log file and applies cfg to every logger, including ones
// handed out before the call. Until Init runs, loggers discard output.
func Init(cfg Config) error {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("parsing log level: %w", err)
	}

	components := make(map[string]Level, len(cfg.Components))
	for name, value := range cfg.Components {
		l, err := ParseLevel(value)
		if err != nil {
			return fmt.Errorf("parsing level for component %s: %w", name, err)
		}
		components[name] = l
	}

	var console *Level
	if cfg.ConsoleLevel != "" && !cfg.Interactive {
		l, err := ParseLevel(cfg.ConsoleLevel)
		if err != nil {
			return fmt.Errorf("parsing console level: %w", err)
		}
		console = &l
	}

	path := cfg.Path
	if path == "" {
		path = DefaultLogPath()
	}
	writer, err := NewRotatingWriter(path, cfg.Rotation)
	if err != nil {
		return fmt.Errorf("creating log writer: %w", err)
	}

	global.mu.Lock()
	defer global.mu.Unlock()

	if global.writer != nil {
		_ = global.writer.Close()
	}
	global.writer = writer
	global.level = level
	global.components = components
	global.console = console
	global.recent = nil
	if cfg.Interactive {
		global.recent = NewRingBuffer(DefaultRecentSize)
	}
	global.ready = true

	for name, logger := range global.loggers {
		*logger = *global.build(name)
	}
	return nil
}

// Get returns the logger for component, creating it on first use.
func Get(component string) *Logger {
	global.mu.RLock()
	logger, ok := global.loggers[component]
	global.mu.RUnlock()
	if ok {
		return logger
	}

	global.mu.Lock()
	defer global.mu.Unlock()
	if logger, ok := global.loggers[component]; ok {
		return logger
	}
	logger = global.build(component)
	global.loggers[component] = logger
	return logger
}

// build must be called with r.mu held.
func (r *registry) build(component string) *Logger {
	level := r.level
	if override, ok := r.components[component]; ok {
		level = override
	}

	if !r.ready {
		return &Logger{
			component: component,
			file:      log.NewWithOptions(io.Discard, log.Options{Level: level.charm(), Prefix: component}),
		}
	}

	logger := &Logger{
		component: component,
		file: log.NewWithOptions(r.writer, log.Options{
			Level:           level.charm(),
			ReportTimestamp: true,
			TimeFormat:      time.RFC3339,
			Prefix:          component,
		}),
	}
	if r.console != nil {
		logger.console = log.NewWithOptions(os.Stderr, log.Options{
			Level:           r.console.charm(),
			ReportTimestamp: true,
			TimeFormat:      time.TimeOnly,
			Prefix:          component,
		})
	}
	return logger
}

// Close flushes the log file. Loggers keep working but discard output.
func Close() error {
	global.mu.Lock()
	defer global.mu.Unlock()

	if !global.ready {
		return nil
	}
	global.ready = false
	global.recent = nil

	var err error
	if global.writer != nil {
		err = global.writer.Close()
		global.writer = nil
	}
	for name, logger := range global.loggers {
		*logger = *global.build(name)
	}
	if err != nil {
		return fmt.Errorf("closing log writer: %w", err)
	}
	return nil
}

// Recent returns the in-memory record buffer, or nil when Init was not
// called in interactive mode.
func Recent() *RingBuffer {
	global.mu.RLock()
	defer global.mu.RUnlock()
	return global.recent
}

// DefaultLogPath is $XDG_STATE_HOME/weave/weave.log.
func DefaultLogPath() string {
	return filepath.Join(xdg.StateHome, "weave", "weave.log")
}

// DefaultConfig returns the configuration used when none is supplied.
func DefaultConfig() Config {
	return Config{
		Level:    "info",
		Path:     DefaultLogPath(),
		Rotation: DefaultRotationConfig(),
	}
}
