package logging

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// impl filters by its own level before handing entries to zap. Its core accepts every level so
// that `CDebugw` can get past the filter.
type impl struct {
	sugar *zap.SugaredLogger
	level zap.AtomicLevel
}

func newImpl(name string, level Level, core zapcore.Core) *impl {
	// Skip the impl method so the caller is the line that logged.
	sugar := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)).Sugar()
	if name != "" {
		sugar = sugar.Named(name)
	}
	return &impl{sugar: sugar, level: zap.NewAtomicLevelAt(level.AsZap())}
}

func (imp *impl) Debugw(msg string, keysAndValues ...interface{}) {
	if imp.level.Enabled(zapcore.DebugLevel) {
		imp.sugar.Debugw(msg, keysAndValues...)
	}
}

func (imp *impl) CDebugw(ctx context.Context, msg string, keysAndValues ...interface{}) {
	if imp.level.Enabled(zapcore.DebugLevel) || IsDebugMode(ctx) {
		imp.sugar.Debugw(msg, keysAndValues...)
	}
}

func (imp *impl) Infow(msg string, keysAndValues ...interface{}) {
	if imp.level.Enabled(zapcore.InfoLevel) {
		imp.sugar.Infow(msg, keysAndValues...)
	}
}

func (imp *impl) Warnw(msg string, keysAndValues ...interface{}) {
	if imp.level.Enabled(zapcore.WarnLevel) {
		imp.sugar.Warnw(msg, keysAndValues...)
	}
}

func (imp *impl) Sublogger(subname string) Logger {
	return &impl{
		sugar: imp.sugar.Named(subname),
		level: zap.NewAtomicLevelAt(imp.level.Level()),
	}
}

func (imp *impl) SetLevel(level Level) {
	imp.level.SetLevel(level.AsZap())
}

func (imp *impl) Sync() error {
	return imp.sugar.Sync()
}
