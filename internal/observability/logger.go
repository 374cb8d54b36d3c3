package observability

import (
	"io"
	"time"

	"github.com/charmbracelet/log"
)

// NewLogger returns the diagnostic logger. Debug output is enabled by debug;
// otherwise only warnings and errors are printed.
func NewLogger(w io.Writer, debug bool) *log.Logger {
	level := log.WarnLevel
	if debug {
		level = log.DebugLevel
	}
	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.Kitchen,
		Prefix:          "otk",
		Level:           level,
	})
}
