package cargo

import (
	"fmt"
	"path/filepath"
)

const (
	flagDryRun   = "--dry-run"
	flagNoVerify = "--no-verify"
)

// DryRunArgs builds `cargo publish --dry-run` with the forwarded arguments.
// Cargo verifies the package and leaves the archive under target/package
// without uploading it.
func DryRunArgs(forward []string) []string {
	args := []string{"publish", flagDryRun}
	return append(args, without(forward, flagDryRun, flagNoVerify)...)
}

// PublishArgs builds `cargo publish --no-verify` with the forwarded arguments.
// The verification build already ran, so cargo only repackages from source
// and uploads.
func PublishArgs(forward []string) []string {
	args := []string{"publish", flagNoVerify}
	return append(args, without(forward, flagDryRun, flagNoVerify)...)
}

// MetadataArgs builds `cargo metadata` for the workspace containing manifestPath
// (or the current directory when empty).
func MetadataArgs(manifestPath string) []string {
	args := []string{"metadata", "--no-deps", "--format-version", "1", "--locked"}
	if manifestPath != "" {
		args = append(args, "--manifest-path", manifestPath)
	}
	return args
}

// ArchiveBaseName is the `<name>-<version>` stem cargo uses for packages.
func ArchiveBaseName(name, version string) string {
	return fmt.Sprintf("%s-%s", name, version)
}

// ArchivePath is where `cargo package` writes the compressed archive.
func ArchivePath(targetDir, name, version string) string {
	return filepath.Join(targetDir, "package", ArchiveBaseName(name, version)+".crate")
}

// UnpackedPath is where cargo unpacks the archive for the verification build.
func UnpackedPath(targetDir, name, version string) string {
	return filepath.Join(targetDir, "package", ArchiveBaseName(name, version))
}

func without(args []string, drop ...string) []string {
	out := make([]string, 0, len(args))
	for _, a := range args {
		skip := false
		for _, d := range drop {
			if a == d {
				skip = true
				break
			}
		}
		if !skip {
			out = append(out, a)
		}
	}
	return out
}
