// Package logging is the structured-logging façade shared by the core
// subsystems. It wraps github.com/joeycumines/logiface with the
// github.com/joeycumines/stumpy zero-allocation JSON backend, mirroring how
// the teacher packages (eventloop, catrate) configure a single package-level
// logger and hand out child loggers carrying static fields.
package logging

import (
	"io"
	"os"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

type (
	// Logger is the concrete event type used throughout the kernel core.
	Logger = logiface.Logger[*stumpy.Event]

	// Builder is returned by the level methods (Crit, Warning, Debug, ...).
	Builder = logiface.Builder[*stumpy.Event]
)

// New constructs a root Logger writing newline-delimited JSON to w at the
// given minimum level. A nil w defaults to os.Stderr, matching stumpy's own
// default.
func New(w io.Writer, level logiface.Level) *Logger {
	if w == nil {
		w = os.Stderr
	}
	return stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(w)),
		stumpy.L.WithLevel(level),
	).Logger()
}

// Disabled returns a logger that drops everything; used by package tests
// that don't want diagnostic noise.
func Disabled() *Logger {
	return New(io.Discard, logiface.LevelDisabled)
}

// Sub returns a child logger which always has the given static fields
// attached, following the teacher's pattern (spec.md calls for per-CPU,
// per-node, and per-endpoint identifiers to accompany every log line).
func Sub(l *Logger, fields map[string]any) *Logger {
	ctx := l.Clone()
	if ctx == nil {
		// logger is disabled / can't write; nothing to attach fields to.
		return l
	}
	for k, v := range fields {
		ctx = ctx.Field(k, v)
	}
	return ctx.Logger()
}

// Fatal logs a Crit-level diagnostic describing a detected kernel bug (a
// violated invariant: double-free, corrupt bitmap/buddy metadata, an
// impossible task-state transition) and then panics. It never returns.
//
// This is the core's only path from "detected corruption" to the fatal
// halt spec.md §7 describes; callers supply the structured fields that
// make up the diagnostic dump.
func Fatal(l *Logger, msg string, fields map[string]any) {
	b := l.Crit()
	for k, v := range fields {
		b = b.Field(k, v)
	}
	b.Log(msg)
	panic(msg)
}
