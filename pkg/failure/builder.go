package failure

// Builder assembles an *Error fluently.
type Builder struct {
	err Error
}

// New starts a classified error with a message.
func New(kind Kind, message string) *Builder {
	return &Builder{err: Error{kind: kind, message: message}}
}

// Wrap starts a classified error around an existing cause.
func Wrap(cause error, kind Kind, message string) *Builder {
	return &Builder{err: Error{kind: kind, message: message, cause: cause}}
}

func (b *Builder) Step(step string) *Builder {
	b.err.step = step
	return b
}

// Output attaches captured subprocess output, surfaced verbatim to the user.
func (b *Builder) Output(output string) *Builder {
	b.err.output = output
	return b
}

func (b *Builder) ExitCode(code int) *Builder {
	b.err.exitCode = code
	return b
}

func (b *Builder) Build() *Error {
	e := b.err
	return &e
}

// Convenience constructors.

func Config(message string) *Builder {
	return New(KindConfig, message)
}

func Integrity(message string) *Builder {
	return New(KindIntegrityViolation, message)
}

func Build(message string) *Builder {
	return New(KindBuildVerificationFailed, message)
}

func Guard(message string) *Builder {
	return New(KindArtifactGuardFailed, message)
}

func Upload(message string) *Builder {
	return New(KindUploadFailed, message)
}

func Mismatch(message string) *Builder {
	return New(KindPostPublishMismatch, message)
}

func Registry(message string) *Builder {
	return New(KindRegistryUnavailable, message)
}
