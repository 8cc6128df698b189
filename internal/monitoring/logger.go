package monitoring

import "log"

// Logf is the package-level diagnostic logger. It defaults to log.Printf but
// may be replaced by SetLogger. Tests or production code can redirect or
// mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// debug gates per-frame and per-poll noise (malformed radar lines, match
// scores, dropped events). Off unless -debug or tests turn it on.
var debug bool

// SetDebug enables or disables debug-level logging.
func SetDebug(on bool) { debug = on }

// Debugf logs through Logf only when debug logging is enabled.
func Debugf(format string, v ...interface{}) {
	if debug {
		Logf(format, v...)
	}
}
