// Package logger hides zap behind a small interface that is handed to every
// component explicitly; nothing logs through a global.
package logger

import (
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Logger interface {
	Debug(msg string, fields ...zap.Field)
	Info(msg string, fields ...zap.Field)
	Warn(msg string, fields ...zap.Field)
	Error(msg string, fields ...zap.Field)
	Fatal(msg string, fields ...zap.Field)

	Debugf(template string, args ...interface{})
	Infof(template string, args ...interface{})
	Warnf(template string, args ...interface{})
	Errorf(template string, args ...interface{})
	Fatalf(template string, args ...interface{})

	// With returns a child logger that adds fields to every entry.
	With(fields ...zap.Field) Logger

	Sync() error
}

// zapLogger serves the structured methods from the embedded *zap.Logger and
// the printf style ones from its sugared twin.
type zapLogger struct {
	*zap.Logger
	sugar *zap.SugaredLogger
}

// New builds a console (pretty) or JSON logger at the given level.
// Unknown levels keep the zap preset default.
func New(level string, pretty bool) Logger {
	cfg := zap.NewProductionConfig()
	if pretty {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	if lvl, ok := parseLevel(level); ok {
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}

	base, err := cfg.Build(zap.AddStacktrace(zapcore.FatalLevel))
	if err != nil {
		panic(err)
	}
	return FromZap(base)
}

// FromZap wraps an existing zap logger, e.g. one built on zaptest/observer.
func FromZap(base *zap.Logger) Logger {
	return zapLogger{Logger: base, sugar: base.Sugar()}
}

// parseLevel accepts zap level names in any case.
func parseLevel(lvl string) (zapcore.Level, bool) {
	l, err := zapcore.ParseLevel(lvl)
	return l, err == nil && lvl != ""
}

func (l zapLogger) Debugf(t string, args ...interface{}) { l.sugar.Debugf(t, args...) }
func (l zapLogger) Infof(t string, args ...interface{})  { l.sugar.Infof(t, args...) }
func (l zapLogger) Warnf(t string, args ...interface{})  { l.sugar.Warnf(t, args...) }
func (l zapLogger) Errorf(t string, args ...interface{}) { l.sugar.Errorf(t, args...) }
func (l zapLogger) Fatalf(t string, args ...interface{}) { l.sugar.Fatalf(t, args...) }

func (l zapLogger) With(fields ...zap.Field) Logger { return FromZap(l.Logger.With(fields...)) }

// Field constructors re-exported from zap so other packages never import it.
func String(key, val string) zap.Field                 { return zap.String(key, val) }
func Int(key string, val int) zap.Field                { return zap.Int(key, val) }
func Int64(key string, val int64) zap.Field            { return zap.Int64(key, val) }
func Bool(key string, val bool) zap.Field              { return zap.Bool(key, val) }
func Duration(key string, val time.Duration) zap.Field { return zap.Duration(key, val) }
func Error(err error) zap.Field                        { return zap.Error(err) }
