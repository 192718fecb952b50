package monitoring

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	called := false
	SetLogger(func(format string, v ...interface{}) {
		called = true
	})
	Logf("test message")
	assert.True(t, called, "custom logger was not called")

	// nil installs a no-op; the previous logger must no longer fire.
	called = false
	SetLogger(nil)
	Logf("test message")
	assert.False(t, called)
}

func TestStreams(t *testing.T) {
	t.Run("zero value is silent", func(t *testing.T) {
		var s Streams
		s.Opsf("x")
		s.Diagf("x")
		s.Tracef("x")
		assert.False(t, s.TraceEnabled())
	})

	t.Run("each stream goes to its own writer", func(t *testing.T) {
		var ops, diag, trace bytes.Buffer
		s := NewStreams("[test] ")
		s.SetWriters(&ops, &diag, &trace)

		s.Opsf("ops %d", 1)
		s.Diagf("diag %d", 2)
		s.Tracef("trace %d", 3)

		for _, tc := range []struct {
			got, msg string
		}{
			{ops.String(), "ops 1\n"},
			{diag.String(), "diag 2\n"},
			{trace.String(), "trace 3\n"},
		} {
			// The prefix comes before the timestamp.
			assert.True(t, strings.HasPrefix(tc.got, "[test] "), "got %q", tc.got)
			assert.True(t, strings.HasSuffix(tc.got, tc.msg), "got %q", tc.got)
		}
		assert.NotContains(t, ops.String(), "diag")
		assert.True(t, s.TraceEnabled())
	})

	t.Run("nil writer disables a stream", func(t *testing.T) {
		var ops bytes.Buffer
		s := NewStreams("[test] ")
		s.SetWriters(&ops, nil, nil)

		s.Diagf("dropped")
		s.Tracef("dropped")
		s.Opsf("kept")

		assert.Equal(t, 1, strings.Count(ops.String(), "\n"))
		assert.False(t, s.TraceEnabled())
	})

	t.Run("single writer receives all streams", func(t *testing.T) {
		var w bytes.Buffer
		s := NewStreams("[all] ")
		s.SetSingleWriter(&w)

		s.Opsf("a")
		s.Diagf("b")
		s.Tracef("c")

		assert.Equal(t, 3, strings.Count(w.String(), "[all] "))
	})
}
