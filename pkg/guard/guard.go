// Package guard closes the window between the verification build and the
// upload. The archive the verification build produced is deleted before the
// upload runs, so cargo has to package the sources again and nothing placed
// in the target directory in between can be published.
package guard

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/yuya-takeyama/cargo-safe-publish/pkg/cargo"
	"github.com/yuya-takeyama/cargo-safe-publish/pkg/failure"
	"github.com/yuya-takeyama/cargo-safe-publish/pkg/logger"
	"github.com/yuya-takeyama/cargo-safe-publish/pkg/manifest"
)

const (
	StepGuard  = "artifact-guard"
	StepUpload = "upload"
)

// Guard deletes the dry-run archive and then uploads.
type Guard struct {
	runner    cargo.Runner
	log       *slog.Logger
	remove    func(string) error
	removeAll func(string) error
}

type Option func(*Guard)

// WithRemover replaces the file removal functions.
func WithRemover(remove, removeAll func(string) error) Option {
	return func(g *Guard) {
		g.remove = remove
		g.removeAll = removeAll
	}
}

func New(runner cargo.Runner, log *slog.Logger, opts ...Option) *Guard {
	g := &Guard{
		runner:    runner,
		log:       logger.OrDiscard(log),
		remove:    os.Remove,
		removeAll: os.RemoveAll,
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// SealAndUpload deletes the archive and the unpacked directory, checks that
// both are gone and only then runs the upload. An Artifact that was never
// produced (the verification build was skipped) is purged if present: any
// stale archive is removed but its absence is not an error.
func (g *Guard) SealAndUpload(ctx context.Context, pkg manifest.Package, a *Artifact, forward []string) error {
	purge := a.State() == ArtifactAbsent
	if !purge && a.State() != ArtifactProduced {
		return failure.Guard(fmt.Sprintf("archive %s is in state %s, expected %s", a.Path(), a.State(), ArtifactProduced)).
			Step(StepGuard).Build()
	}

	if err := g.seal(a, purge); err != nil {
		return err
	}

	args := cargo.PublishArgs(forward)
	g.log.Info("uploading", logger.Command(cargo.CommandLine(args)), logger.Package(pkg.Name), logger.Version(pkg.Version))
	res, err := g.runner.Run(ctx, pkg.Root, args...)
	if err != nil {
		return failure.Wrap(err, failure.KindUploadFailed, "could not run the upload").
			Step(StepUpload).Output(res.Output()).ExitCode(res.ExitCode).Build()
	}
	if !res.Success() {
		return failure.Upload(fmt.Sprintf("%s exited with status %d", cargo.CommandLine(args), res.ExitCode)).
			Step(StepUpload).Output(res.Output()).ExitCode(res.ExitCode).Build()
	}
	a.markRebuilt()
	return nil
}

// Seal deletes a produced archive without uploading, leaving the target
// directory as a run without the verification build would.
func (g *Guard) Seal(a *Artifact) error {
	if a.State() != ArtifactProduced {
		return nil
	}
	return g.seal(a, false)
}

func (g *Guard) seal(a *Artifact, purge bool) error {
	if err := g.removeAll(a.UnpackedDir()); err != nil {
		return failure.Wrap(err, failure.KindArtifactGuardFailed, "could not delete the unpacked archive").
			Step(StepGuard).Build()
	}

	switch err := g.remove(a.Path()); {
	case err == nil:
		g.log.Debug("deleted verified archive", logger.Path(a.Path()))
	case purge && os.IsNotExist(err):
	default:
		return failure.Wrap(err, failure.KindArtifactGuardFailed, "could not delete the verified archive").
			Step(StepGuard).Build()
	}

	for _, p := range []string{a.Path(), a.UnpackedDir()} {
		if exists(p) {
			return failure.Guard(fmt.Sprintf("%s still exists after deletion; refusing to upload", p)).
				Step(StepGuard).Build()
		}
	}
	a.markDeleted()
	return nil
}
