// Package cargo drives the external cargo binary.
//
// Runner is the port the pipeline talks to; ExecRunner is the subprocess
// implementation. Only the exit status and the captured output of a call are
// part of the contract.
package cargo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
)

// Result is the observable outcome of one cargo invocation.
type Result struct {
	Args     []string
	ExitCode int
	Stdout   string
	Stderr   string
}

// Success reports whether cargo exited with status 0.
func (r Result) Success() bool {
	return r.ExitCode == 0
}

// Output returns stdout followed by stderr.
func (r Result) Output() string {
	switch {
	case r.Stdout == "":
		return r.Stderr
	case r.Stderr == "":
		return r.Stdout
	default:
		return r.Stdout + "\n" + r.Stderr
	}
}

// Runner runs cargo with the given arguments in dir and blocks until it exits.
// A non-nil error means the process could not be run at all; a non-zero exit
// is reported through Result.ExitCode.
type Runner interface {
	Run(ctx context.Context, dir string, args ...string) (Result, error)
}

// ExecRunner runs cargo as a subprocess. Output is captured and, when
// Stdout/Stderr are set, streamed to them as well.
type ExecRunner struct {
	Binary string
	Stdout io.Writer
	Stderr io.Writer
	Env    []string
}

func NewExecRunner(binary string, stdout, stderr io.Writer) *ExecRunner {
	if binary == "" {
		binary = "cargo"
	}
	return &ExecRunner{
		Binary: binary,
		Stdout: stdout,
		Stderr: stderr,
	}
}

func (r *ExecRunner) Run(ctx context.Context, dir string, args ...string) (Result, error) {
	var stdout, stderr bytes.Buffer

	cmd := exec.CommandContext(ctx, r.Binary, args...)
	cmd.Dir = dir
	if len(r.Env) > 0 {
		cmd.Env = r.Env
	}
	cmd.Stdout = tee(&stdout, r.Stdout)
	cmd.Stderr = tee(&stderr, r.Stderr)

	err := cmd.Run()
	result := Result{
		Args:   append([]string(nil), args...),
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if err == nil {
		return result, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		result.ExitCode = exitErr.ExitCode()
		return result, nil
	}

	result.ExitCode = -1
	return result, fmt.Errorf("failed to run %s %s: %w", r.Binary, strings.Join(args, " "), err)
}

func tee(capture *bytes.Buffer, w io.Writer) io.Writer {
	if w == nil {
		return capture
	}
	return io.MultiWriter(capture, w)
}

// CommandLine renders args the way they are shown to the user.
func CommandLine(args []string) string {
	return "cargo " + strings.Join(args, " ")
}
