// Package log provides the leveled, structured logging facade used
// throughout kdb. It substitutes a real published logger (go.uber.org/zap)
// for the teacher's in-repo vendored glog facade, keeping the same
// Infof/Warningf/Errorf call shape.
package log

import (
	"go.uber.org/zap"
)

// Logger wraps a *zap.SugaredLogger scoped to one module name, mirroring the
// teacher's per-subsystem (smodule) logging convention.
type Logger struct {
	s      *zap.SugaredLogger
	module string
}

var base *zap.Logger

func init() {
	l, err := zap.NewProduction()
	if err != nil {
		l = zap.NewNop()
	}
	base = l
}

// SetBase installs a custom *zap.Logger as the base for every Logger created
// afterward via New; intended for tests (zaptest.NewLogger) and for
// production callers wanting a specific encoder/sink configuration.
func SetBase(l *zap.Logger) { base = l }

// New returns a Logger scoped to module (e.g. "session", "mount", "backend").
func New(module string) *Logger {
	return &Logger{s: base.Sugar().With("module", module), module: module}
}

func (l *Logger) Infof(format string, args ...interface{})    { l.s.Infof(format, args...) }
func (l *Logger) Warningf(format string, args ...interface{}) { l.s.Warnf(format, args...) }
func (l *Logger) Errorf(format string, args ...interface{})   { l.s.Errorf(format, args...) }
func (l *Logger) Debugf(format string, args ...interface{})   { l.s.Debugf(format, args...) }

// With returns a derived Logger with additional structured key-value pairs
// attached to every subsequent call.
func (l *Logger) With(kv ...interface{}) *Logger {
	return &Logger{s: l.s.With(kv...), module: l.module}
}

// Sync flushes any buffered log entries; callers should defer it once at
// process/handle teardown.
func (l *Logger) Sync() error { return l.s.Sync() }
