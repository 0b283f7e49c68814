package logger

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOptionsLevel(t *testing.T) {
	assert.Equal(t, slog.LevelWarn, Options{}.Level())
	assert.Equal(t, slog.LevelError, Options{Quiet: true}.Level())
	assert.Equal(t, slog.LevelDebug, Options{Quiet: true, Verbose: true}.Level())
}

func TestNewFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, Options{Quiet: true})
	l.Warn("hidden")
	l.Error("shown", Step("upload"))
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
	assert.Contains(t, buf.String(), "step=upload")
}

func TestFieldKeys(t *testing.T) {
	cases := []struct {
		attr slog.Attr
		key  string
		val  string
	}{
		{RunID("r1"), KeyRunID, "r1"},
		{Package("demo"), KeyPackage, "demo"},
		{Step("integrity"), KeyStep, "integrity"},
		{Path("src/lib.rs"), KeyPath, "src/lib.rs"},
		{ExitCode(101), KeyExitCode, "101"},
		{Attempt(2), KeyAttempt, "2"},
		{Error(errors.New("boom")), KeyError, "boom"},
		{Error(nil), KeyError, ""},
		{Duration(1500 * time.Microsecond), KeyDurationMS, "1.5"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.key, tc.attr.Key)
		assert.Equal(t, tc.val, tc.attr.Value.String())
	}
}

func TestReporter(t *testing.T) {
	var buf bytes.Buffer
	r := NewReporter(&buf, false)

	r.Error("%d files would be published", 2)
	r.List([]string{"a.rs", "b.rs"})
	r.Warning("careful")
	r.Status("Verifying", "demo v0.1.0")
	r.Diff("--- a\n+++ b\n@@ -1 +1 @@\n-old\n+new\n")

	out := buf.String()
	assert.Contains(t, out, "error: 2 files would be published\n")
	assert.Contains(t, out, "  - a.rs\n  - b.rs\n")
	assert.Contains(t, out, "warning: careful\n")
	assert.Contains(t, out, "   Verifying demo v0.1.0\n")
	assert.Contains(t, out, "    -old\n    +new\n")
}

func TestReporterQuiet(t *testing.T) {
	var buf bytes.Buffer
	r := NewReporter(&buf, true)
	r.Status("Packaging", "demo")
	r.Success("Verified", "demo")
	assert.Empty(t, buf.String())

	r.Error("still shown")
	assert.Equal(t, "error: still shown\n", buf.String())
}
