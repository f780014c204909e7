// Package util provides low-level helpers shared by all other packages.
package util

import (
	"fmt"
	"io"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel controls output verbosity.
type LogLevel int

const (
	LogQuiet   LogLevel = 0
	LogNormal  LogLevel = 1
	LogVerbose LogLevel = 2
	LogDebug   LogLevel = 3
)

// zap has no level between Debug and Info, so verbose output rides on
// DebugLevel and debug output one step below it.
const (
	zapVerbose = zapcore.DebugLevel
	zapDebug   = zapcore.DebugLevel - 1
)

// Logger writes levelled messages to stderr through a zap core, either
// as "[INF] message" console lines or as JSON objects.
type Logger struct {
	level      LogLevel
	output     io.Writer
	timestamps bool // if true, prepend "15:04:05.000" timestamps
	json       bool

	mu sync.Mutex
	zl *zap.Logger
}

// NewLogger returns a Logger that prints messages at or below the given
// verbosity (0 = quiet, 1 = normal, 2 = verbose, 3 = debug).
func NewLogger(verbosity int) *Logger {
	l := &Logger{
		level:      LogLevel(verbosity),
		output:     os.Stderr,
		timestamps: verbosity >= 3, // auto-enable timestamps in debug mode
	}
	l.rebuild()
	return l
}

// SetTimestamps enables or disables timestamp prefixes.
func (l *Logger) SetTimestamps(on bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.timestamps = on
	l.rebuild()
}

// SetOutput overrides the output writer (default: os.Stderr).
func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.output = w
	l.rebuild()
}

// SetJSON switches between console lines and one JSON object per entry.
func (l *Logger) SetJSON(on bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.json = on
	l.rebuild()
}

// Level returns the current log level.
func (l *Logger) Level() LogLevel { return l.level }

// Info prints when verbosity ≥ 1.  Tagged INF.
func (l *Logger) Info(format string, args ...interface{}) {
	if l.level >= LogNormal {
		l.write(zapcore.InfoLevel, format, args...)
	}
}

// Warn prints when verbosity ≥ 1.  Tagged WRN.
func (l *Logger) Warn(format string, args ...interface{}) {
	if l.level >= LogNormal {
		l.write(zapcore.WarnLevel, format, args...)
	}
}

// Verbose prints when verbosity ≥ 2.  Tagged VRB.
func (l *Logger) Verbose(format string, args ...interface{}) {
	if l.level >= LogVerbose {
		l.write(zapVerbose, format, args...)
	}
}

// Debug prints when verbosity ≥ 3.  Tagged DBG.
func (l *Logger) Debug(format string, args ...interface{}) {
	if l.level >= LogDebug {
		l.write(zapDebug, format, args...)
	}
}

// Error always prints regardless of verbosity.  Tagged ERR.
func (l *Logger) Error(format string, args ...interface{}) {
	l.write(zapcore.ErrorLevel, format, args...)
}

func (l *Logger) write(lvl zapcore.Level, format string, args ...interface{}) {
	l.mu.Lock()
	zl := l.zl
	l.mu.Unlock()

	if ce := zl.Check(lvl, fmt.Sprintf(format, args...)); ce != nil {
		ce.Write()
	}
}

// rebuild swaps in a zap core for the current settings.  Callers hold
// l.mu (or own l exclusively).
func (l *Logger) rebuild() {
	encCfg := zapcore.EncoderConfig{
		MessageKey:       "msg",
		LevelKey:         "level",
		EncodeLevel:      encodeTag,
		EncodeDuration:   zapcore.StringDurationEncoder,
		ConsoleSeparator: " ",
	}
	if l.timestamps || l.json {
		encCfg.TimeKey = "ts"
		encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
	}

	var enc zapcore.Encoder
	if l.json {
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg.EncodeLevel = encodeBracketTag
		enc = zapcore.NewConsoleEncoder(encCfg)
	}

	// Filtering happens in the level methods; the core accepts everything.
	all := zap.LevelEnablerFunc(func(zapcore.Level) bool { return true })
	core := zapcore.NewCore(enc, zapcore.Lock(zapcore.AddSync(l.output)), all)
	l.zl = zap.New(core)
}

func levelTag(lvl zapcore.Level) string {
	switch {
	case lvl <= zapDebug:
		return "DBG"
	case lvl == zapVerbose:
		return "VRB"
	case lvl == zapcore.InfoLevel:
		return "INF"
	case lvl == zapcore.WarnLevel:
		return "WRN"
	default:
		return "ERR"
	}
}

func encodeTag(lvl zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(levelTag(lvl))
}

func encodeBracketTag(lvl zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString("[" + levelTag(lvl) + "]")
}
