package logs

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log levels, higher is more severe.
const (
	LevelTrace   = iota // 0 (most detailed)
	LevelDebug          // 1
	LevelVerbose        // 2
	LevelInfo           // 3
	LevelWarning        // 4
	LevelError          // 5
)

var (
	mu       sync.RWMutex
	logLevel = LevelInfo
	// node prefix in the form ROLE@address, set once the role is known
	nodePrefix = "MINION@0x00000"
	sugar      *zap.SugaredLogger
)

func init() {
	sugar = newSugar(zapcore.Lock(os.Stdout))
}

func newSugar(out zapcore.WriteSyncer) *zap.SugaredLogger {
	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006/01/02 15:04:05.000000")
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), out, zapcore.DebugLevel)
	return zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)).Sugar()
}

// newJSON writes JSON lines at every zap level; the package level gate is
// the only filter.
func newJSON(out zapcore.WriteSyncer) *zap.Logger {
	core := zapcore.NewCore(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), out, zapcore.DebugLevel)
	return zap.New(core, zap.AddCaller())
}

// UseJSON switches the backend to JSON lines on stdout.
func UseJSON() {
	Use(newJSON(zapcore.Lock(os.Stdout)))
}

// Use swaps the zap backend, mostly for tests and for the CLI's --log-json flag.
func Use(l *zap.Logger) {
	mu.Lock()
	sugar = l.WithOptions(zap.AddCallerSkip(1)).Sugar()
	mu.Unlock()
}

// SetLevel sets the global log level.
func SetLevel(level int) {
	mu.Lock()
	logLevel = level
	mu.Unlock()
}

// ParseLevel maps a level name to its constant.
func ParseLevel(name string) (int, error) {
	switch strings.ToLower(name) {
	case "trace":
		return LevelTrace, nil
	case "debug":
		return LevelDebug, nil
	case "verbose":
		return LevelVerbose, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarning, nil
	case "error":
		return LevelError, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", name)
}

// SetPrefix sets the ROLE@address prefix carried by every line.
func SetPrefix(role, address string) {
	if len(address) > 8 {
		address = address[:8]
	}
	mu.Lock()
	nodePrefix = strings.ToUpper(role) + "@" + address
	mu.Unlock()
}

// Sync flushes the backend.
func Sync() {
	mu.RLock()
	s := sugar
	mu.RUnlock()
	_ = s.Sync()
}

func enabled(level int) (*zap.SugaredLogger, string, bool) {
	mu.RLock()
	defer mu.RUnlock()
	return sugar, nodePrefix, logLevel <= level
}

// Package-level logging methods

func Trace(format string, v ...interface{}) {
	if s, p, ok := enabled(LevelTrace); ok {
		s.Debugf(p+" [TRACE] "+format, v...)
	}
}

func Debug(format string, v ...interface{}) {
	if s, p, ok := enabled(LevelDebug); ok {
		s.Debugf(p+" "+format, v...)
	}
}

func Verbose(format string, v ...interface{}) {
	if s, p, ok := enabled(LevelVerbose); ok {
		s.Debugf(p+" [VERBOSE] "+format, v...)
	}
}

func Info(format string, v ...interface{}) {
	if s, p, ok := enabled(LevelInfo); ok {
		s.Infof(p+" "+format, v...)
	}
}

func Warn(format string, v ...interface{}) {
	if s, p, ok := enabled(LevelWarning); ok {
		s.Warnf(p+" "+format, v...)
	}
}

func Error(format string, v ...interface{}) {
	if s, p, ok := enabled(LevelError); ok {
		s.Errorf(p+" "+format, v...)
	}
}

// Status writes one decision record: action (VALIDATE, AUTHORITY, ...), state
// (SUCCESS, FAIL, POST, RESEND, ERROR) and an optional reason, followed by
// key/value context. FAIL is logged as a warning, ERROR as an error.
func Status(action, state, reason string, kv ...interface{}) {
	level := LevelInfo
	switch state {
	case "FAIL":
		level = LevelWarning
	case "ERROR":
		level = LevelError
	}
	s, p, ok := enabled(level)
	if !ok {
		return
	}
	msg := p + " " + action + ": " + state
	if reason != "" {
		msg += " (" + reason + ")"
	}
	switch level {
	case LevelWarning:
		s.Warnw(msg, kv...)
	case LevelError:
		s.Errorw(msg, kv...)
	default:
		s.Infow(msg, kv...)
	}
}

// Short truncates a hex string for readability: 0x1234abcd...
func Short(s string) string {
	if len(s) <= 10 {
		return s
	}
	return s[:10] + "..."
}
