package worldmodel

import (
	"io"

	"github.com/banshee-data/fieldstate/internal/monitoring"
)

var logs = monitoring.NewStreams("[worldmodel] ")

// SetLogWriters configures the three logging streams for the worldmodel
// package. Pass nil for any writer to disable that stream. Run only writes
// to the trace stream.
func SetLogWriters(ops, diag, trace io.Writer) {
	logs.SetWriters(ops, diag, trace)
}

func tracef(format string, args ...interface{}) {
	logs.Tracef(format, args...)
}

func traceEnabled() bool {
	return logs.TraceEnabled()
}
