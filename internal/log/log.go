// Package log configures the process-wide structured logger.
package log

import (
	"os"

	"github.com/charmbracelet/log"
)

// Logger is charmbracelet/log's logger type, re-exported so callers don't
// need to import charmbracelet/log directly just to name the type.
type Logger = log.Logger

// New builds a logger writing to stderr at the given verbosity.
// verbose enables debug-level output; otherwise info and above is printed.
func New(verbose bool) *log.Logger {
	l := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: false,
		Prefix:          "oro",
	})
	if verbose {
		l.SetLevel(log.DebugLevel)
	} else {
		l.SetLevel(log.InfoLevel)
	}
	return l
}

// Discard returns a logger that drops everything; used by tests.
func Discard() *log.Logger {
	l := log.New(os.Stderr)
	l.SetLevel(log.FatalLevel + 1)
	return l
}
