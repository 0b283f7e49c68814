package logger

import (
	"log/slog"
	"time"
)

// Canonical log field names.
const (
	KeyRunID      = "run_id"
	KeyPackage    = "package"
	KeyVersion    = "version"
	KeyStep       = "step"
	KeyState      = "state"
	KeyPath       = "path"
	KeyCommand    = "command"
	KeyExitCode   = "exit_code"
	KeyAttempt    = "attempt"
	KeyDelay      = "delay"
	KeyURL        = "url"
	KeyStatus     = "http_status"
	KeyCount      = "count"
	KeyDurationMS = "duration_ms"
	KeyDigest     = "sha256"
	KeyError      = "error"
)

func RunID(id string) slog.Attr       { return slog.String(KeyRunID, id) }
func Package(name string) slog.Attr   { return slog.String(KeyPackage, name) }
func Version(v string) slog.Attr      { return slog.String(KeyVersion, v) }
func Step(s string) slog.Attr         { return slog.String(KeyStep, s) }
func State(s string) slog.Attr        { return slog.String(KeyState, s) }
func Path(p string) slog.Attr         { return slog.String(KeyPath, p) }
func Command(c string) slog.Attr      { return slog.String(KeyCommand, c) }
func ExitCode(c int) slog.Attr        { return slog.Int(KeyExitCode, c) }
func Attempt(n int) slog.Attr         { return slog.Int(KeyAttempt, n) }
func Delay(d time.Duration) slog.Attr { return slog.Duration(KeyDelay, d) }
func URL(u string) slog.Attr          { return slog.String(KeyURL, u) }
func HTTPStatus(code int) slog.Attr   { return slog.Int(KeyStatus, code) }
func Count(n int) slog.Attr           { return slog.Int(KeyCount, n) }
func Digest(sum string) slog.Attr     { return slog.String(KeyDigest, sum) }
func Duration(d time.Duration) slog.Attr {
	return slog.Float64(KeyDurationMS, float64(d.Microseconds())/1000)
}

func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
