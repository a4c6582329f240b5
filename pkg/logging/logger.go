package logging

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger provides structured logging for htmlrender components.
// Logs are written to a session-specific file in ~/.htmlrender/logs/ and,
// when console output is enabled, mirrored to stderr.
type Logger struct {
	sessionID string
	component string
	file      *os.File
	sugar     *zap.SugaredLogger
	level     zap.AtomicLevel
	logPath   string
	closeOnce sync.Once
}

// Options controls where loggers write and at which level.
type Options struct {
	// Dir overrides the log directory (default ~/.htmlrender/logs).
	Dir string

	// Level is one of debug, info, warn, error.
	Level string

	// Console mirrors log entries to stderr.
	Console bool
}

var (
	// Global session ID for the current execution
	sessionID     string
	sessionIDOnce sync.Once

	// logDir is the directory where log files are stored
	logDir string

	// initOnce ensures directory initialization happens once
	initOnce sync.Once

	// initErr stores any error from directory initialization
	initErr error

	optsMu  sync.RWMutex
	options = Options{Level: "info"}
)

// Configure sets the options used by loggers created afterwards.
// It must be called before the first NewLogger call to change the directory.
func Configure(opts Options) {
	optsMu.Lock()
	defer optsMu.Unlock()
	if opts.Level == "" {
		opts.Level = "info"
	}
	options = opts
}

func currentOptions() Options {
	optsMu.RLock()
	defer optsMu.RUnlock()
	return options
}

// getSessionID returns or creates the session ID for this execution
func getSessionID() string {
	sessionIDOnce.Do(func() {
		sessionID = uuid.New().String()
	})
	return sessionID
}

// initLogDirectory ensures the log directory exists
func initLogDirectory() error {
	initOnce.Do(func() {
		dir := currentOptions().Dir
		if dir == "" && logDir != "" {
			dir = logDir
		}
		if dir == "" {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				initErr = fmt.Errorf("failed to get home directory: %w", err)
				return
			}
			dir = filepath.Join(homeDir, ".htmlrender", "logs")
		}

		if err := os.MkdirAll(dir, 0750); err != nil {
			initErr = fmt.Errorf("failed to create log directory: %w", err)
			return
		}
		logDir = dir
	})
	return initErr
}

// NewLogger creates a new logger for a specific component.
// The logger writes to <log dir>/<session-id>-htmlrender.log.
//
// If the log directory cannot be created or the log file cannot be opened,
// it returns a fallback logger that writes to stderr along with the error.
func NewLogger(component string) (*Logger, error) {
	opts := currentOptions()
	level, err := parseLevel(opts.Level)
	if err != nil {
		return newFallbackLogger(component, err), err
	}

	if err := initLogDirectory(); err != nil {
		return newFallbackLogger(component, err), err
	}

	sessID := getSessionID()
	logPath := filepath.Join(logDir, fmt.Sprintf("%s-htmlrender.log", sessID))

	// Append mode: every component of a session shares the same file
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		err = fmt.Errorf("failed to open log file: %w", err)
		return newFallbackLogger(component, err), err
	}

	sinks := []zapcore.WriteSyncer{zapcore.AddSync(file)}
	if opts.Console {
		sinks = append(sinks, zapcore.Lock(os.Stderr))
	}

	atom := zap.NewAtomicLevelAt(level)
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig()), zapcore.NewMultiWriteSyncer(sinks...), atom)

	return &Logger{
		sessionID: sessID,
		component: component,
		file:      file,
		sugar:     zap.New(core).Named(component).Sugar(),
		level:     atom,
		logPath:   logPath,
	}, nil
}

// NewWriterLogger creates a logger that writes to w. Used by tests and by
// callers that own their output stream.
func NewWriterLogger(component string, w io.Writer, level string) *Logger {
	lvl, err := parseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	atom := zap.NewAtomicLevelAt(lvl)
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig()), zapcore.AddSync(w), atom)

	return &Logger{
		sessionID: getSessionID(),
		component: component,
		sugar:     zap.New(core).Named(component).Sugar(),
		level:     atom,
	}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{
		sessionID: getSessionID(),
		sugar:     zap.NewNop().Sugar(),
		level:     zap.NewAtomicLevelAt(zapcore.FatalLevel),
	}
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l *Logger) *Logger {
	if l == nil {
		return Nop()
	}
	return l
}

// newFallbackLogger creates a logger that writes to stderr when file logging fails
func newFallbackLogger(component string, err error) *Logger {
	l := NewWriterLogger(component, zapcore.Lock(os.Stderr), currentOptions().Level)
	l.Warnf("Failed to initialize file logging: %v", err)
	l.Warnf("Falling back to stderr logging")
	return l
}

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:          "T",
		LevelKey:         "L",
		NameKey:          "N",
		MessageKey:       "M",
		LineEnding:       zapcore.DefaultLineEnding,
		EncodeLevel:      zapcore.CapitalLevelEncoder,
		EncodeTime:       zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05.000"),
		EncodeDuration:   zapcore.StringDurationEncoder,
		EncodeName:       bracketNameEncoder,
		ConsoleSeparator: " ",
	}
}

func bracketNameEncoder(name string, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString("[" + name + "]")
}

// parseLevel converts string level to zapcore.Level.
func parseLevel(level string) (zapcore.Level, error) {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
		return zapcore.InfoLevel, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return l, nil
}

// ValidLevel reports whether level is an accepted log level name.
func ValidLevel(level string) bool {
	_, err := parseLevel(level)
	return err == nil
}

// Debugf logs a debug-level message
func (l *Logger) Debugf(format string, v ...interface{}) {
	l.sugar.Debugf(format, v...)
}

// Infof logs an info-level message
func (l *Logger) Infof(format string, v ...interface{}) {
	l.sugar.Infof(format, v...)
}

// Warnf logs a warning-level message
func (l *Logger) Warnf(format string, v ...interface{}) {
	l.sugar.Warnf(format, v...)
}

// Errorf logs an error-level message
func (l *Logger) Errorf(format string, v ...interface{}) {
	l.sugar.Errorf(format, v...)
}

// Named returns a child logger for a sub-component sharing the same sinks.
func (l *Logger) Named(name string) *Logger {
	return &Logger{
		sessionID: l.sessionID,
		component: l.component + "." + name,
		sugar:     l.sugar.Named(name),
		level:     l.level,
		logPath:   l.logPath,
	}
}

// SetLevel changes the minimum level at runtime.
func (l *Logger) SetLevel(level string) error {
	lvl, err := parseLevel(level)
	if err != nil {
		return err
	}
	l.level.SetLevel(lvl)
	return nil
}

// Writer returns an io.Writer that logs each written line at info level.
func (l *Logger) Writer() io.Writer {
	return &lineWriter{log: l.Infof}
}

// Component returns the component name
func (l *Logger) Component() string {
	return l.component
}

// SessionID returns the current session ID
func (l *Logger) SessionID() string {
	return l.sessionID
}

// LogPath returns the path to the log file
func (l *Logger) LogPath() string {
	return l.logPath
}

// Close flushes and closes the log file. Safe to call multiple times.
func (l *Logger) Close() error {
	var err error
	l.closeOnce.Do(func() {
		_ = l.sugar.Sync()
		if l.file != nil {
			err = l.file.Close()
		}
	})
	return err
}

// GetSessionID returns the current global session ID
func GetSessionID() string {
	return getSessionID()
}

// GetLogDirectory returns the directory where logs are stored
func GetLogDirectory() (string, error) {
	if err := initLogDirectory(); err != nil {
		return "", err
	}
	return logDir, nil
}

// lineWriter adapts a printf-style log func to io.Writer, one entry per line.
type lineWriter struct {
	mu  sync.Mutex
	buf bytes.Buffer
	log func(format string, v ...interface{})
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf.Write(p)
	for {
		line, err := w.buf.ReadString('\n')
		if err != nil {
			// keep the partial line for the next write
			w.buf.Reset()
			w.buf.WriteString(line)
			break
		}
		if text := strings.TrimRight(line, "\r\n"); text != "" {
			w.log("%s", text)
		}
	}
	return len(p), nil
}
