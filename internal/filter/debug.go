package filter

import (
	"io"

	"github.com/banshee-data/fieldstate/internal/monitoring"
)

var logs = monitoring.NewStreams("[filter] ")

// SetLogWriters configures the logging streams for the filter package.
// Pass nil for any writer to disable that stream.
func SetLogWriters(ops, diag, trace io.Writer) {
	logs.SetWriters(ops, diag, trace)
}

func diagf(format string, args ...interface{}) {
	logs.Diagf(format, args...)
}
