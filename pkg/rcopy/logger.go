package rcopy

import (
	"avaneesh/rcopy-go/pkg/internal/logger"
)

// LogLevel represents logging level
type LogLevel int

const (
	// LevelDebug shows every frame exchange
	LevelDebug LogLevel = iota
	// LevelInfo shows session start and end (default)
	LevelInfo
	// LevelWarn shows failed commands and errors
	LevelWarn
	// LevelError shows only aborted sessions
	LevelError
)

// SetLogLevel sets the global logging level
func SetLogLevel(level LogLevel) {
	logger.SetDefault(logger.NewDefaultLogger(logger.Level(level)))
}

// ConfigureLogging installs the default logger described by the log level
// name and color flag. RCOPY_LOG_LEVEL and RCOPY_LOG_NOCOLOR override both.
func ConfigureLogging(level string, noColor bool) {
	lvl, ok := logger.ParseLevel(level)
	if !ok {
		lvl = logger.LevelInfo
	}
	logger.Configure(lvl, noColor)
}
