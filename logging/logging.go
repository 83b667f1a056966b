// Package logging contains the structured logger used by the trajectory optimizer and its tools.
package logging

import (
	"context"
	"io"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

// DefaultTimeFormatStr is the time layout of console logs.
const DefaultTimeFormatStr = "2006-01-02T15:04:05.000Z0700"

// Logger is the logging interface passed to the optimizer. Every method that takes
// `keysAndValues` expects alternating string keys and values.
type Logger interface {
	Debugw(msg string, keysAndValues ...interface{})
	// CDebugw logs at debug level when the logger is at debug level or when ctx was returned by
	// EnableDebugMode.
	CDebugw(ctx context.Context, msg string, keysAndValues ...interface{})
	Infow(msg string, keysAndValues ...interface{})
	Warnw(msg string, keysAndValues ...interface{})

	// Sublogger returns a logger named `parent.subname` writing to the same outputs. Its level
	// starts at the parent's and is changed independently.
	Sublogger(subname string) Logger
	SetLevel(level Level)
	Sync() error
}

// NewLogger returns a logger that writes Info+ lines to out in UTC. A line is tab separated:
// time, level, logger name, caller, message and the fields as a json object.
func NewLogger(name string, out io.Writer) Logger {
	return newImpl(name, INFO, zapcore.NewCore(consoleEncoder(), zapcore.AddSync(out), zapcore.DebugLevel))
}

// NewTestLogger returns a logger that writes Debug+ logs to the test's log.
func NewTestLogger(tb testing.TB) Logger {
	logger, _ := NewObservedTestLogger(tb)
	return logger
}

// NewObservedTestLogger is like NewTestLogger but also saves logs to an in memory observer.
func NewObservedTestLogger(tb testing.TB) (Logger, *observer.ObservedLogs) {
	observerCore, observedLogs := observer.New(zap.LevelEnablerFunc(zapcore.DebugLevel.Enabled))
	testCore := zaptest.NewLogger(tb, zaptest.Level(zapcore.DebugLevel)).Core()
	return newImpl("", DEBUG, zapcore.NewTee(testCore, observerCore)), observedLogs
}

func consoleEncoder() zapcore.Encoder {
	return zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
		TimeKey:       "ts",
		LevelKey:      "level",
		NameKey:       "logger",
		CallerKey:     "caller",
		FunctionKey:   zapcore.OmitKey,
		MessageKey:    "msg",
		StacktraceKey: zapcore.OmitKey,
		LineEnding:    zapcore.DefaultLineEnding,
		EncodeLevel:   zapcore.CapitalLevelEncoder,
		EncodeTime: func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
			enc.AppendString(t.UTC().Format(DefaultTimeFormatStr))
		},
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	})
}

type debugLogKeyType int

const debugLogKeyID = debugLogKeyType(iota)

// EnableDebugMode returns a new context that makes `CDebugw` log regardless of the logger level.
func EnableDebugMode(ctx context.Context) context.Context {
	return context.WithValue(ctx, debugLogKeyID, true)
}

// IsDebugMode returns whether the input context has debug logging enabled.
func IsDebugMode(ctx context.Context) bool {
	enabled, _ := ctx.Value(debugLogKeyID).(bool)
	return enabled
}
