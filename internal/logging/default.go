package logging

import "os"

var defaultLogger Logger = NewConsole(os.Stdout)

// SetDefault sets the package-wide default logger used by caches created
// without an explicit WithLogger option.
func SetDefault(l Logger) {
	if l != nil {
		defaultLogger = l
	}
}

// Default returns the package-wide default logger.
func Default() Logger {
	return defaultLogger
}
