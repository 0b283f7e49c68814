package failure

// ExitCode maps an error to the process exit code.
//
// Build and upload failures propagate the exit code of cargo itself so that
// scripts wrapping `cargo publish` keep seeing the same status.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	e, ok := As(err)
	if !ok {
		return 1
	}
	switch e.kind {
	case KindBuildVerificationFailed, KindUploadFailed:
		if e.exitCode > 0 {
			return e.exitCode
		}
		return 1
	case KindConfig:
		return 2
	case KindIntegrityViolation:
		return 3
	case KindArtifactGuardFailed:
		return 4
	case KindPostPublishMismatch:
		return 5
	case KindRegistryUnavailable:
		return 6
	default:
		return 1
	}
}
