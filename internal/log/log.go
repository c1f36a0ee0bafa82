// Package log provides the leveled logging used throughout inflight.
package log

import (
	"log"
	"sync/atomic"
)

var verbose atomic.Bool

// EnableVerbose enables the printing of verbose logs.
func EnableVerbose() {
	verbose.Store(true)
}

// VerboseEnabled reports whether verbose logs are being printed.
func VerboseEnabled() bool {
	return verbose.Load()
}

// Printf prints to the standard logger provided by the log package regardless
// of whether verbose logging is enabled.
func Printf(fmt string, v ...any) {
	log.Printf(fmt, v...)
}

// Verbosef prints to the standard logger provided by the log package if verbose
// logging is enabled. Otherwise, it does nothing.
func Verbosef(fmt string, v ...any) {
	if verbose.Load() {
		log.Printf(fmt, v...)
	}
}

// Logger prefixes every line it prints with a bracketed component name, like
// "[pool] run finished".
type Logger struct {
	prefix string
}

// Component returns a Logger for the named component.
func Component(name string) Logger {
	return Logger{prefix: "[" + name + "] "}
}

// Printf is like the package-level [Printf], with the component prefix.
func (l Logger) Printf(fmt string, v ...any) {
	Printf(l.prefix+fmt, v...)
}

// Verbosef is like the package-level [Verbosef], with the component prefix.
func (l Logger) Verbosef(fmt string, v ...any) {
	Verbosef(l.prefix+fmt, v...)
}
