// Package verifier runs the verification build: cargo packages the sources,
// builds the unpacked archive and leaves it in the target directory without
// uploading it.
package verifier

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/yuya-takeyama/cargo-safe-publish/pkg/cargo"
	"github.com/yuya-takeyama/cargo-safe-publish/pkg/failure"
	"github.com/yuya-takeyama/cargo-safe-publish/pkg/guard"
	"github.com/yuya-takeyama/cargo-safe-publish/pkg/logger"
	"github.com/yuya-takeyama/cargo-safe-publish/pkg/manifest"
)

const Step = "build-verification"

type Verifier struct {
	runner cargo.Runner
	log    *slog.Logger
}

func New(runner cargo.Runner, log *slog.Logger) *Verifier {
	return &Verifier{runner: runner, log: logger.OrDiscard(log)}
}

// Verify runs `cargo publish --dry-run` in the package directory. Failures
// are never retried; cargo's output and exit status are attached verbatim.
func (v *Verifier) Verify(ctx context.Context, pkg manifest.Package, forward []string) (*guard.Artifact, error) {
	args := cargo.DryRunArgs(forward)
	v.log.Info("running verification build", logger.Command(cargo.CommandLine(args)), logger.Package(pkg.Name))

	res, err := v.runner.Run(ctx, pkg.Root, args...)
	if err != nil {
		return nil, failure.Wrap(err, failure.KindBuildVerificationFailed, "could not run the verification build").
			Step(Step).Output(res.Output()).ExitCode(res.ExitCode).Build()
	}
	if !res.Success() {
		return nil, failure.Build(fmt.Sprintf("%s exited with status %d", cargo.CommandLine(args), res.ExitCode)).
			Step(Step).Output(res.Output()).ExitCode(res.ExitCode).Build()
	}

	a := guard.NewArtifact(pkg)
	if err := a.MarkProduced(); err != nil {
		return nil, failure.Wrap(err, failure.KindArtifactGuardFailed, "the verification build succeeded but left no archive behind").
			Step(Step).Build()
	}
	v.log.Debug("verification build produced archive", logger.Path(a.Path()))
	return a, nil
}
