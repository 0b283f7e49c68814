// Package failure defines the error taxonomy of the publish pipeline.
//
// Every component boundary reports failures as *Error values carrying a Kind,
// the pipeline step that produced them and, for subprocess failures, the
// captured output and exit code of the external tool. Inside packages errors
// are wrapped with fmt.Errorf as usual; classification happens once, where a
// step hands its result back to the controller.
package failure

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline failure.
type Kind string

const (
	KindConfig                  Kind = "config"
	KindIntegrityViolation      Kind = "integrity-violation"
	KindBuildVerificationFailed Kind = "build-verification-failed"
	KindArtifactGuardFailed     Kind = "artifact-guard-failed"
	KindUploadFailed            Kind = "upload-failed"
	KindPostPublishMismatch     Kind = "post-publish-mismatch"
	KindRegistryUnavailable     Kind = "registry-unavailable"
)

// Severity indicates how bad a failure is for the package being published.
type Severity string

const (
	SeverityFatal    Severity = "fatal"    // stops the run before anything was published
	SeverityCritical Severity = "critical" // the tamper window could not be closed
	SeverityPostHoc  Severity = "post-hoc" // publication already happened, needs manual remediation
)

// Severity returns the severity associated with the kind.
func (k Kind) Severity() Severity {
	switch k {
	case KindArtifactGuardFailed:
		return SeverityCritical
	case KindPostPublishMismatch, KindRegistryUnavailable:
		return SeverityPostHoc
	default:
		return SeverityFatal
	}
}

// Published reports whether a failure of this kind happens after the
// package was uploaded. UploadFailed is not included: a failed upload may or
// may not have reached the registry and has to be inspected by hand.
func (k Kind) Published() bool {
	return k.Severity() == SeverityPostHoc
}

// Error is a classified pipeline failure.
type Error struct {
	kind     Kind
	step     string
	message  string
	cause    error
	output   string
	exitCode int
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.kind, e.message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.kind, e.message)
}

func (e *Error) Unwrap() error { return e.cause }

func (e *Error) Kind() Kind         { return e.kind }
func (e *Error) Step() string       { return e.step }
func (e *Error) Message() string    { return e.message }
func (e *Error) Output() string     { return e.output }
func (e *Error) ExitCode() int      { return e.exitCode }
func (e *Error) Severity() Severity { return e.kind.Severity() }
func (e *Error) WithStep(step string) *Error {
	cp := *e
	cp.step = step
	return &cp
}

// As extracts the *Error from err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the kind of err, or "" when err is not classified.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.kind
	}
	return ""
}

// IsKind reports whether err is a classified error of the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
