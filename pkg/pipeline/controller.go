// Package pipeline sequences the publish steps and owns the state of one run.
//
// Steps run strictly in order: integrity check, verification build, archive
// deletion and upload, post-publish verification. The first failure ends the
// run in StateFailed with the failing step and its classified error attached;
// nothing is retried or cleaned up afterwards.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/yuya-takeyama/cargo-safe-publish/pkg/failure"
	"github.com/yuya-takeyama/cargo-safe-publish/pkg/guard"
	"github.com/yuya-takeyama/cargo-safe-publish/pkg/integrity"
	"github.com/yuya-takeyama/cargo-safe-publish/pkg/logger"
	"github.com/yuya-takeyama/cargo-safe-publish/pkg/manifest"
	"github.com/yuya-takeyama/cargo-safe-publish/pkg/matcher"
	"github.com/yuya-takeyama/cargo-safe-publish/pkg/postpublish"
	"github.com/yuya-takeyama/cargo-safe-publish/pkg/vcs"
	"github.com/yuya-takeyama/cargo-safe-publish/pkg/verifier"
)

// Step names a unit of work of the pipeline.
type Step string

const (
	StepIntegrity         Step = "integrity"
	StepBuildVerification Step = verifier.Step
	StepArtifactGuard     Step = guard.StepGuard
	StepUpload            Step = guard.StepUpload
	StepPostPublish       Step = postpublish.Step
)

// BuildVerifier runs the verification build and returns the archive it left.
type BuildVerifier interface {
	Verify(ctx context.Context, pkg manifest.Package, forward []string) (*guard.Artifact, error)
}

// ArtifactGuard deletes the verified archive and uploads.
type ArtifactGuard interface {
	Seal(a *guard.Artifact) error
	SealAndUpload(ctx context.Context, pkg manifest.Package, a *guard.Artifact, forward []string) error
}

// PublishVerifier compares the published version with the expected files.
type PublishVerifier interface {
	Verify(ctx context.Context, pkg manifest.Package, expected integrity.FileSet) (postpublish.Result, error)
}

type Options struct {
	DryRun     bool
	NoVerify   bool
	AllowDirty bool
	Precedence matcher.Precedence
	// CargoArgs are forwarded to both cargo publish invocations.
	CargoArgs []string
}

// Event is emitted after every step.
type Event struct {
	Step     Step
	State    State
	Duration time.Duration
	Err      error
}

type Observer func(Event)

// Outcome is everything a run produced, populated as far as it got.
type Outcome struct {
	Package    manifest.Package
	State      State
	History    []State
	FailedStep Step
	Err        error

	Expected   integrity.FileSet
	Violations []integrity.Violation
	Warnings   []string
	Report     postpublish.Report
	Digest     string
	Durations  map[Step]time.Duration

	Started  time.Time
	Finished time.Time
}

type Controller struct {
	vcs      vcs.Backend
	fallback vcs.Backend
	build    BuildVerifier
	guard    ArtifactGuard
	verify   PublishVerifier
	log      *slog.Logger
	observer Observer
	now      func() time.Time
}

type Option func(*Controller)

func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.log = l }
}

func WithObserver(o Observer) Option {
	return func(c *Controller) { c.observer = o }
}

// WithFallbackBackend sets the backend used with AllowDirty when the
// package is not inside a repository.
func WithFallbackBackend(b vcs.Backend) Option {
	return func(c *Controller) { c.fallback = b }
}

func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

func NewController(backend vcs.Backend, build BuildVerifier, g ArtifactGuard, verify PublishVerifier, opts ...Option) *Controller {
	c := &Controller{
		vcs:      backend,
		fallback: vcs.DirectoryBackend{},
		build:    build,
		guard:    g,
		verify:   verify,
		now:      time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	c.log = logger.OrDiscard(c.log)
	return c
}

type run struct {
	c   *Controller
	m   *machine
	out *Outcome
}

// Run executes the pipeline for pkg. The returned error is Outcome.Err.
func (c *Controller) Run(ctx context.Context, pkg manifest.Package, opts Options) (*Outcome, error) {
	r := &run{
		c: c,
		m: newMachine(),
		out: &Outcome{
			Package:   pkg,
			Durations: map[Step]time.Duration{},
			Started:   c.now(),
		},
	}
	r.execute(ctx, pkg, opts)

	r.out.State = r.m.state
	r.out.History = append([]State(nil), r.m.history...)
	r.out.Finished = c.now()
	return r.out, r.out.Err
}

func (r *run) execute(ctx context.Context, pkg manifest.Package, opts Options) {
	if !r.step(ctx, StepIntegrity, StateIntegrityChecked, func() error { return r.checkIntegrity(ctx, pkg, opts) }) {
		return
	}

	var artifact *guard.Artifact
	verify := func() error {
		if opts.NoVerify {
			r.c.log.Warn("skipping the verification build; any stale archive is deleted before the upload")
			artifact = guard.NewArtifact(pkg)
			return nil
		}
		var err error
		artifact, err = r.c.build.Verify(ctx, pkg, opts.CargoArgs)
		return err
	}
	if !r.step(ctx, StepBuildVerification, StateBuildVerified, verify) {
		return
	}

	if opts.DryRun {
		r.step(ctx, StepArtifactGuard, StateDryRunComplete, func() error { return r.c.guard.Seal(artifact) })
		return
	}

	start := r.c.now()
	if err := ctx.Err(); err != nil {
		r.fail(StepArtifactGuard, start, err)
		return
	}
	// the upload is only reachable once the archive is gone, so any failure
	// other than an upload failure happened before it
	err := r.c.guard.SealAndUpload(ctx, pkg, artifact, opts.CargoArgs)
	if err != nil && !failure.IsKind(err, failure.KindUploadFailed) {
		r.fail(StepArtifactGuard, start, err)
		return
	}
	r.advance(StateArtifactGuarded)
	if err != nil {
		r.fail(StepUpload, start, err)
		return
	}
	r.finish(StepUpload, StatePublished, start)

	r.step(ctx, StepPostPublish, StateVerified, func() error {
		res, err := r.c.verify.Verify(ctx, pkg, r.out.Expected)
		r.out.Report = res.Report
		r.out.Digest = res.SHA256
		return err
	})
}

// step runs fn and moves to next on success. It reports whether the run
// may continue.
func (r *run) step(ctx context.Context, s Step, next State, fn func() error) bool {
	start := r.c.now()
	if err := ctx.Err(); err != nil {
		r.fail(s, start, err)
		return false
	}
	r.c.log.Debug("step started", logger.Step(string(s)))
	if err := fn(); err != nil {
		r.fail(s, start, err)
		return false
	}
	r.finish(s, next, start)
	return true
}

func (r *run) finish(s Step, next State, start time.Time) {
	d := r.c.now().Sub(start)
	r.out.Durations[s] = d
	r.advance(next)
	r.c.log.Info("step finished", logger.Step(string(s)), logger.State(string(next)), logger.Duration(d))
	r.emit(Event{Step: s, State: next, Duration: d})
}

func (r *run) advance(to State) {
	if err := r.m.transition(to); err != nil {
		// the step sequence above only requests valid transitions
		panic(err)
	}
}

func (r *run) fail(s Step, start time.Time, err error) {
	d := r.c.now().Sub(start)
	if fe, ok := failure.As(err); ok && fe.Step() == "" {
		err = fe.WithStep(string(s))
	}
	r.out.Durations[s] = d
	r.out.FailedStep = s
	r.out.Err = err
	r.advance(StateFailed)
	r.c.log.Error("step failed", logger.Step(string(s)), logger.Duration(d), logger.Error(err))
	r.emit(Event{Step: s, State: StateFailed, Duration: d, Err: err})
}

func (r *run) emit(e Event) {
	if r.c.observer != nil {
		r.c.observer(e)
	}
}

func (r *run) checkIntegrity(ctx context.Context, pkg manifest.Package, opts Options) error {
	// build output is never packaged
	targetDir := pkg.ResolvedTargetDir()
	status, err := r.c.vcs.Snapshot(ctx, pkg.Root, targetDir)
	switch {
	case errors.Is(err, vcs.ErrNotRepository) && opts.AllowDirty:
		r.c.log.Warn("package is not inside a git repository; every file counts as committed")
		status, err = r.c.fallback.Snapshot(ctx, pkg.Root, targetDir)
		if err != nil {
			return failure.Wrap(err, failure.KindConfig, "could not list the package files").Build()
		}
	case errors.Is(err, vcs.ErrNotRepository):
		return failure.Wrap(err, failure.KindConfig,
			fmt.Sprintf("%s is not inside a git repository; commit the package or pass --allow-dirty", pkg.Root)).Build()
	case err != nil:
		return failure.Wrap(err, failure.KindConfig, "could not read the repository status").Build()
	}
	if err := status.Validate(); err != nil {
		return failure.Wrap(err, failure.KindConfig, "inconsistent repository status").Build()
	}

	m, err := matcher.New(pkg.Rules(), opts.Precedence)
	if err != nil {
		return failure.Wrap(err, failure.KindConfig, "invalid include/exclude pattern in "+manifest.FileName).Build()
	}

	res, err := integrity.Check(pkg, status, m)
	r.out.Expected = res.Expected
	r.out.Violations = res.Violations
	r.out.Warnings = res.Warnings
	for _, w := range res.Warnings {
		r.c.log.Warn(w)
	}
	if err != nil && opts.AllowDirty && failure.IsKind(err, failure.KindIntegrityViolation) {
		r.c.log.Warn("publishing with uncommitted files because --allow-dirty is set", logger.Count(len(res.Violations)))
		return nil
	}
	return err
}
