// Package log is a thin level-prefixed wrapper around a shared hclog logger.
package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"

	"github.com/hashicorp/go-hclog"
)

var std atomic.Pointer[hclog.Logger]

func init() {
	level := hclog.Info
	switch strings.ToUpper(os.Getenv("MNISTRUN_LOG")) {
	case "DEBUG", "1":
		level = hclog.Debug
	}
	setLogger(os.Stderr, level)
}

func setLogger(w io.Writer, level hclog.Level) {
	l := hclog.New(&hclog.LoggerOptions{
		Name:       "mnistrun",
		Level:      level,
		Output:     w,
		TimeFormat: "2006/01/02 15:04:05",
	})
	std.Store(&l)
}

// SetDebug enables or disables debug messages.
func SetDebug(d bool) {
	if d {
		Logger().SetLevel(hclog.Debug)
	} else {
		Logger().SetLevel(hclog.Info)
	}
}

// IsDebug reports whether debug messages are printed.
func IsDebug() bool {
	return Logger().IsDebug()
}

// SetOutput sets the output destination for the standard logger, keeping the current level.
func SetOutput(w io.Writer) {
	level := hclog.Info
	if IsDebug() {
		level = hclog.Debug
	}
	setLogger(w, level)
}

// Logger returns the underlying hclog logger, for use with key/value pairs.
func Logger() hclog.Logger {
	return *std.Load()
}

// Printf logs at info level, arguments are handled in the manner of fmt.Printf.
func Printf(format string, v ...interface{}) {
	Logger().Info(fmt.Sprintf(format, v...))
}

// Println logs at info level, arguments are handled in the manner of fmt.Println.
func Println(v ...interface{}) {
	Logger().Info(strings.TrimSuffix(fmt.Sprintln(v...), "\n"))
}

// Warnf logs at warn level.
func Warnf(format string, v ...interface{}) {
	Logger().Warn(fmt.Sprintf(format, v...))
}

// Debugf logs only if debug is enabled.
func Debugf(format string, v ...interface{}) {
	if Logger().IsDebug() {
		Logger().Debug(fmt.Sprintf(format, v...))
	}
}

// Debugln logs only if debug is enabled.
func Debugln(v ...interface{}) {
	if Logger().IsDebug() {
		Logger().Debug(strings.TrimSuffix(fmt.Sprintln(v...), "\n"))
	}
}
