package pipeline

import (
	"io"

	"github.com/banshee-data/fieldstate/internal/monitoring"
)

var logs = monitoring.NewStreams("[pipeline] ")

// SetLogWriters configures the logging streams for the pipeline package.
// Pass nil for any writer to disable that stream. Every cycle writes one
// trace line.
func SetLogWriters(ops, diag, trace io.Writer) {
	logs.SetWriters(ops, diag, trace)
}

func opsf(format string, args ...interface{})   { logs.Opsf(format, args...) }
func tracef(format string, args ...interface{}) { logs.Tracef(format, args...) }
