package types

// Logger is the diagnostic sink used across the repository. Kept
// narrow on purpose so any structured-logging library can back it.
type Logger interface {
	Info(v ...interface{})
	Infof(format string, v ...interface{})
	Warn(v ...interface{})
	Warnf(format string, v ...interface{})
	Error(v ...interface{})
	Errorf(format string, v ...interface{})
	Debug(v ...interface{})
	Debugf(format string, v ...interface{})
	Fatal(v ...interface{})
	Fatalf(format string, v ...interface{})

	// ToggleDebug turns debug-level logging on or off and returns the
	// resulting value, mirroring the teacher's default logger.
	ToggleDebug(value bool) bool
}
