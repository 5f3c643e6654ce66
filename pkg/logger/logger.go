package logger

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level represents the severity level of log messages
type Level int

const (
	TraceLevel Level = iota
	DebugLevel
	InfoLevel
	WarnLevel
	ErrorLevel
)

// zap has no trace level; one step below debug is used instead.
const zapTraceLevel = zapcore.DebugLevel - 1

// String returns the string representation of the level
func (l Level) String() string {
	switch l {
	case TraceLevel:
		return "TRACE"
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l Level) zapLevel() zapcore.Level {
	switch l {
	case TraceLevel:
		return zapTraceLevel
	case DebugLevel:
		return zapcore.DebugLevel
	case InfoLevel:
		return zapcore.InfoLevel
	case WarnLevel:
		return zapcore.WarnLevel
	default:
		return zapcore.ErrorLevel
	}
}

func levelFromZap(l zapcore.Level) Level {
	switch {
	case l <= zapTraceLevel:
		return TraceLevel
	case l == zapcore.DebugLevel:
		return DebugLevel
	case l == zapcore.InfoLevel:
		return InfoLevel
	case l == zapcore.WarnLevel:
		return WarnLevel
	default:
		return ErrorLevel
	}
}

// Config holds the logger configuration
type Config struct {
	Level     Level
	UseColor  bool
	JSON      bool
	Component string
}

// Logger wraps a zap core configured from Config.
type Logger struct {
	config Config
	out    zapcore.WriteSyncer
	zl     *zap.Logger
}

var defaultLogger *Logger

// Initialize sets up the default logger writing to stderr
func Initialize(config Config) error {
	l, err := New(config, os.Stderr)
	if err != nil {
		return err
	}
	defaultLogger = l
	return nil
}

// New builds a logger writing to w.
func New(config Config, w io.Writer) (*Logger, error) {
	if w == nil {
		return nil, fmt.Errorf("logger output writer is nil")
	}
	l := &Logger{config: config, out: zapcore.AddSync(w)}
	l.build()
	return l, nil
}

func (l *Logger) build() {
	encCfg := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "component",
		CallerKey:      "caller",
		MessageKey:     "message",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeTime:     zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05"),
		EncodeLevel:    levelEncoder(l.config.UseColor && !l.config.JSON, !l.config.JSON),
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
		EncodeName:     zapcore.FullNameEncoder,
	}

	var enc zapcore.Encoder
	if l.config.JSON {
		encCfg.EncodeTime = zapcore.RFC3339TimeEncoder
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		enc = zapcore.NewConsoleEncoder(encCfg)
	}

	var opts []zap.Option
	// Caller info only for debug and trace runs
	if l.config.Level <= DebugLevel {
		opts = append(opts, zap.AddCaller(), zap.AddCallerSkip(2))
	}

	zl := zap.New(zapcore.NewCore(enc, l.out, l.config.Level.zapLevel()), opts...)
	if l.config.Component != "" {
		zl = zl.Named(l.config.Component)
	}
	l.zl = zl
}

func levelEncoder(useColor, bracketed bool) zapcore.LevelEncoder {
	return func(zl zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
		name := levelFromZap(zl).String()
		if useColor {
			switch name {
			case "TRACE":
				name = "\033[37mTRACE\033[0m" // White
			case "DEBUG":
				name = "\033[36mDEBUG\033[0m" // Cyan
			case "INFO":
				name = "\033[32mINFO\033[0m" // Green
			case "WARN":
				name = "\033[33mWARN\033[0m" // Yellow
			case "ERROR":
				name = "\033[31mERROR\033[0m" // Red
			}
		}
		if bracketed {
			name = "[" + name + "]"
		}
		enc.AppendString(name)
	}
}

// Log writes a log message
func (l *Logger) Log(level Level, message string, fields ...Field) {
	if level < l.config.Level {
		return
	}
	ce := l.zl.Check(level.zapLevel(), message)
	if ce == nil {
		return
	}
	zf := make([]zap.Field, 0, len(fields))
	for _, f := range fields {
		zf = append(zf, zap.Any(f.Key, f.Value))
	}
	ce.Write(zf...)
}

// Sync flushes buffered output.
func (l *Logger) Sync() error {
	return l.zl.Sync()
}

// Field represents a structured field in a log entry
type Field struct {
	Key   string
	Value interface{}
}

// String creates a string field
func String(key, value string) Field {
	return Field{Key: key, Value: value}
}

// Int creates an int field
func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

// Bool creates a bool field
func Bool(key string, value bool) Field {
	return Field{Key: key, Value: value}
}

// Any creates a field holding an arbitrary value
func Any(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}

// Err creates an error field
func Err(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: "<nil>"}
	}
	return Field{Key: "error", Value: err.Error()}
}

// Convenience functions for default logger
func Trace(message string, fields ...Field) {
	if defaultLogger != nil {
		defaultLogger.Log(TraceLevel, message, fields...)
	}
}

func Debug(message string, fields ...Field) {
	if defaultLogger != nil {
		defaultLogger.Log(DebugLevel, message, fields...)
	}
}

func Info(message string, fields ...Field) {
	if defaultLogger != nil {
		defaultLogger.Log(InfoLevel, message, fields...)
	} else {
		// Fallback to stderr if logger not initialized
		_, _ = fmt.Fprintf(os.Stderr, "[INFO] contentaudit: %s\n", message)
	}
}

func Warn(message string, fields ...Field) {
	if defaultLogger != nil {
		defaultLogger.Log(WarnLevel, message, fields...)
	}
}

func Error(message string, fields ...Field) {
	if defaultLogger != nil {
		defaultLogger.Log(ErrorLevel, message, fields...)
	}
}

// SetOutput redirects the default logger to w
func SetOutput(w io.Writer) {
	if defaultLogger != nil && w != nil {
		defaultLogger.out = zapcore.AddSync(w)
		defaultLogger.build()
	}
}

// Flush syncs the default logger; errors from terminals that reject fsync are ignored.
func Flush() {
	if defaultLogger != nil {
		_ = defaultLogger.Sync()
	}
}
