// Package logger defines the logging contract used by the core packages so they
// stay independent of any logging library.
package logger

// Fields carries structured key/value pairs.
type Fields = map[string]any

// Logger exposes leveled logging. The *w variants attach structured fields.
type Logger interface {
	Debugf(format string, args ...any)
	Debugw(msg string, fields Fields)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Warnw(msg string, fields Fields)
	Errorf(format string, args ...any)
}

// Nop discards everything.
type Nop struct{}

func (Nop) Debugf(string, ...any) {}
func (Nop) Debugw(string, Fields) {}
func (Nop) Infof(string, ...any)  {}
func (Nop) Warnf(string, ...any)  {}
func (Nop) Warnw(string, Fields)  {}
func (Nop) Errorf(string, ...any) {}

// OrNop returns l, or Nop when l is nil.
func OrNop(l Logger) Logger {
	if l == nil {
		return Nop{}
	}
	return l
}
