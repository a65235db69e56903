// Package logging configures the leveled loggers shared by the session,
// the trainer and the HTTP server.
package logging

import (
	"io"
	"strings"

	"github.com/labstack/gommon/log"
)

// Leveled is the part of a logger SetLevel needs. Both *log.Logger and
// echo.Logger satisfy it.
type Leveled interface {
	SetLevel(v log.Lvl)
	Warnf(format string, args ...interface{})
}

// New returns a logger with the given prefix and level name.
func New(prefix, level string) *log.Logger {
	l := log.New(prefix)
	l.SetHeader("${time_rfc3339} ${level} ${prefix}")
	SetLevel(l, level)
	return l
}

// Discard returns a logger that writes nowhere. Tests use it.
func Discard() *log.Logger {
	l := log.New("-")
	l.SetOutput(io.Discard)
	l.SetLevel(log.OFF)
	return l
}

// SetLevel applies a level name: debug, info, warn, error or off.
// Empty and unknown names fall back to warn.
func SetLevel(l Leveled, level string) {
	switch strings.ToLower(level) {
	case "debug":
		l.SetLevel(log.DEBUG)
	case "info":
		l.SetLevel(log.INFO)
	case "warn", "":
		l.SetLevel(log.WARN)
	case "error":
		l.SetLevel(log.ERROR)
	case "off":
		l.SetLevel(log.OFF)
	default:
		l.SetLevel(log.WARN)
		l.Warnf("unknown loglevel: %s . fall-backed to warn", level)
	}
}

// ValidLevel reports whether level is a name SetLevel understands.
func ValidLevel(level string) bool {
	switch strings.ToLower(level) {
	case "debug", "info", "warn", "", "error", "off":
		return true
	}
	return false
}
