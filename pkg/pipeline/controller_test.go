package pipeline

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yuya-takeyama/cargo-safe-publish/pkg/cargo"
	"github.com/yuya-takeyama/cargo-safe-publish/pkg/failure"
	"github.com/yuya-takeyama/cargo-safe-publish/pkg/guard"
	"github.com/yuya-takeyama/cargo-safe-publish/pkg/integrity"
	"github.com/yuya-takeyama/cargo-safe-publish/pkg/logger"
	"github.com/yuya-takeyama/cargo-safe-publish/pkg/manifest"
	"github.com/yuya-takeyama/cargo-safe-publish/pkg/postpublish"
	"github.com/yuya-takeyama/cargo-safe-publish/pkg/vcs"
	"github.com/yuya-takeyama/cargo-safe-publish/pkg/verifier"
)

type fakeBackend struct {
	status vcs.Status
	err    error
	calls  int
	pruned []string
}

func (f *fakeBackend) Snapshot(_ context.Context, _ string, prune ...string) (vcs.Status, error) {
	f.calls++
	f.pruned = prune
	return f.status, f.err
}

// fakeCargo behaves like cargo publish: the dry run writes the archive, the
// upload succeeds or fails with the configured exit code.
type fakeCargo struct {
	pkg          manifest.Package
	dryRunExit   int
	uploadExit   int
	calls        [][]string
	archiveAtRun []bool
}

func (f *fakeCargo) Run(_ context.Context, _ string, args ...string) (cargo.Result, error) {
	f.calls = append(f.calls, args)
	archive := cargo.ArchivePath(f.pkg.TargetDir, f.pkg.Name, f.pkg.Version)
	_, err := os.Lstat(archive)
	f.archiveAtRun = append(f.archiveAtRun, err == nil)

	switch args[1] {
	case "--dry-run":
		if f.dryRunExit != 0 {
			return cargo.Result{ExitCode: f.dryRunExit, Stderr: "error: could not compile `demo`"}, nil
		}
		if err := os.MkdirAll(filepath.Join(filepath.Dir(archive), "demo-0.1.0"), 0o755); err != nil {
			return cargo.Result{}, err
		}
		return cargo.Result{Stderr: "Packaging demo v0.1.0"}, os.WriteFile(archive, []byte("crate"), 0o644)
	default:
		if f.uploadExit != 0 {
			return cargo.Result{ExitCode: f.uploadExit, Stderr: "error: failed to publish"}, nil
		}
		return cargo.Result{Stderr: "Uploaded demo v0.1.0"}, nil
	}
}

type fakePublishVerifier struct {
	result postpublish.Result
	err    error
	got    integrity.FileSet
	calls  int
}

func (f *fakePublishVerifier) Verify(_ context.Context, _ manifest.Package, expected integrity.FileSet) (postpublish.Result, error) {
	f.calls++
	f.got = expected
	return f.result, f.err
}

type harness struct {
	pkg     manifest.Package
	backend *fakeBackend
	cargo   *fakeCargo
	post    *fakePublishVerifier
	events  []Event
	remover guard.Option
}

func newHarness(t *testing.T, includes []string) *harness {
	t.Helper()
	root := t.TempDir()
	pkg := manifest.NewPackage("demo", "0.1.0", root, filepath.Join(root, "Cargo.toml"), filepath.Join(root, "target"), includes, nil)

	st := vcs.NewStatus(root)
	for _, p := range []string{"Cargo.toml", "src/lib.rs", "README.md"} {
		st.Tracked.Add(p)
	}
	return &harness{
		pkg:     pkg,
		backend: &fakeBackend{status: st},
		cargo:   &fakeCargo{pkg: pkg},
		post:    &fakePublishVerifier{result: postpublish.Result{SHA256: "abc123", Files: 3}},
	}
}

func (h *harness) controller() *Controller {
	var gopts []guard.Option
	if h.remover != nil {
		gopts = append(gopts, h.remover)
	}
	return NewController(
		h.backend,
		verifier.New(h.cargo, nil),
		guard.New(h.cargo, nil, gopts...),
		h.post,
		WithObserver(func(e Event) { h.events = append(h.events, e) }),
	)
}

func (h *harness) run(t *testing.T, opts Options) (*Outcome, error) {
	t.Helper()
	return h.controller().Run(context.Background(), h.pkg, opts)
}

func TestRunVerified(t *testing.T) {
	h := newHarness(t, nil)

	out, err := h.run(t, Options{CargoArgs: []string{"--features", "x"}})
	require.NoError(t, err)

	assert.Equal(t, StateVerified, out.State)
	assert.Equal(t, []State{
		StateInit, StateIntegrityChecked, StateBuildVerified, StateArtifactGuarded, StatePublished, StateVerified,
	}, out.History)
	assert.Equal(t, [][]string{
		{"publish", "--dry-run", "--features", "x"},
		{"publish", "--no-verify", "--features", "x"},
	}, h.cargo.calls)
	assert.Equal(t, []bool{false, false}, h.cargo.archiveAtRun)
	assert.Equal(t, []string{"Cargo.toml", "README.md", "src/lib.rs"}, h.post.got.Paths())
	assert.Equal(t, "abc123", out.Digest)
	assert.Empty(t, out.FailedStep)

	var steps []Step
	for _, e := range h.events {
		steps = append(steps, e.Step)
	}
	assert.Equal(t, []Step{StepIntegrity, StepBuildVerification, StepUpload, StepPostPublish}, steps)
}

// An untracked file matched by the include rules stops the run before cargo
// is ever invoked.
func TestRunIntegrityViolation(t *testing.T) {
	h := newHarness(t, []string{"src/lib.*", "Cargo.toml"})
	h.backend.status.Untracked.Add("src/lib.secret.rs")

	out, err := h.run(t, Options{})
	require.Error(t, err)
	assert.True(t, failure.IsKind(err, failure.KindIntegrityViolation))
	assert.Equal(t, StateFailed, out.State)
	assert.Equal(t, StepIntegrity, out.FailedStep)
	assert.Equal(t, []State{StateInit, StateFailed}, out.History)
	require.Len(t, out.Violations, 1)
	assert.Equal(t, "src/lib.secret.rs", out.Violations[0].Path)
	assert.Empty(t, h.cargo.calls)
	assert.Zero(t, h.post.calls)

	fe, ok := failure.As(err)
	require.True(t, ok)
	assert.Equal(t, string(StepIntegrity), fe.Step())
}

func TestRunBuildFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.cargo.dryRunExit = 101

	out, err := h.run(t, Options{})
	require.Error(t, err)
	assert.True(t, failure.IsKind(err, failure.KindBuildVerificationFailed))
	assert.Equal(t, StepBuildVerification, out.FailedStep)
	assert.Equal(t, 101, failure.ExitCode(err))
	assert.Len(t, h.cargo.calls, 1, "no upload after a failed build")
	assert.Equal(t, []State{StateInit, StateIntegrityChecked, StateFailed}, out.History)
}

// The archive survives deletion, so the upload must never start.
func TestRunGuardFailure(t *testing.T) {
	h := newHarness(t, nil)
	noop := func(string) error { return nil }
	h.remover = guard.WithRemover(noop, noop)

	out, err := h.run(t, Options{})
	require.Error(t, err)
	assert.True(t, failure.IsKind(err, failure.KindArtifactGuardFailed))
	assert.Equal(t, StepArtifactGuard, out.FailedStep)
	assert.Equal(t, []State{StateInit, StateIntegrityChecked, StateBuildVerified, StateFailed}, out.History)
	require.Len(t, h.cargo.calls, 1)
	assert.Equal(t, "--dry-run", h.cargo.calls[0][1])
	assert.Zero(t, h.post.calls)
}

func TestRunUploadFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.cargo.uploadExit = 3

	out, err := h.run(t, Options{})
	require.Error(t, err)
	assert.True(t, failure.IsKind(err, failure.KindUploadFailed))
	assert.Equal(t, StepUpload, out.FailedStep)
	assert.Equal(t, 3, failure.ExitCode(err))
	assert.Equal(t, []State{StateInit, StateIntegrityChecked, StateBuildVerified, StateArtifactGuarded, StateFailed}, out.History)
	assert.Zero(t, h.post.calls)
}

// The registry serves content that differs from what was verified.
func TestRunPostPublishMismatch(t *testing.T) {
	h := newHarness(t, nil)
	h.post.result.Report = postpublish.Report{Discrepancies: []postpublish.Discrepancy{
		{Path: "src/lib.rs", Kind: postpublish.ContentMismatch, Diff: "-a\n+b\n"},
	}}
	h.post.err = failure.Mismatch("found 1 differences").Step(string(StepPostPublish)).Build()

	out, err := h.run(t, Options{})
	require.Error(t, err)
	assert.True(t, failure.IsKind(err, failure.KindPostPublishMismatch))
	assert.True(t, failure.KindOf(err).Published())
	assert.Equal(t, StepPostPublish, out.FailedStep)
	assert.Equal(t, []State{
		StateInit, StateIntegrityChecked, StateBuildVerified, StateArtifactGuarded, StatePublished, StateFailed,
	}, out.History)
	require.Len(t, out.Report.Discrepancies, 1)
	assert.Equal(t, postpublish.ContentMismatch, out.Report.Discrepancies[0].Kind)
}

func TestRunDryRun(t *testing.T) {
	h := newHarness(t, nil)

	out, err := h.run(t, Options{DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, StateDryRunComplete, out.State)
	assert.True(t, out.State.Successful())
	require.Len(t, h.cargo.calls, 1)
	assert.Equal(t, "--dry-run", h.cargo.calls[0][1])
	assert.NoFileExists(t, cargo.ArchivePath(h.pkg.TargetDir, "demo", "0.1.0"))
	assert.Zero(t, h.post.calls)
}

func TestRunNoVerify(t *testing.T) {
	h := newHarness(t, nil)
	stale := cargo.ArchivePath(h.pkg.TargetDir, "demo", "0.1.0")
	require.NoError(t, os.MkdirAll(filepath.Dir(stale), 0o755))
	require.NoError(t, os.WriteFile(stale, []byte("stale"), 0o644))

	out, err := h.run(t, Options{NoVerify: true})
	require.NoError(t, err)
	assert.Equal(t, StateVerified, out.State)
	assert.Equal(t, [][]string{{"publish", "--no-verify"}}, h.cargo.calls)
	assert.Equal(t, []bool{false}, h.cargo.archiveAtRun, "stale archive is purged before the upload")
}

func TestRunAllowDirty(t *testing.T) {
	t.Run("violations become warnings", func(t *testing.T) {
		h := newHarness(t, nil)
		h.backend.status.Untracked.Add("notes.txt")

		out, err := h.run(t, Options{AllowDirty: true})
		require.NoError(t, err)
		assert.Len(t, out.Violations, 1)
		assert.True(t, h.post.got.Has("notes.txt"), "dirty files are published and verified too")
	})

	t.Run("no repository falls back to the directory", func(t *testing.T) {
		h := newHarness(t, nil)
		h.backend.err = vcs.ErrNotRepository
		require.NoError(t, os.WriteFile(filepath.Join(h.pkg.Root, "Cargo.toml"), []byte("[package]"), 0o644))

		out, err := h.run(t, Options{AllowDirty: true})
		require.NoError(t, err)
		assert.Equal(t, []string{"Cargo.toml"}, out.Expected.Paths())
	})
}

func TestRunNotARepository(t *testing.T) {
	h := newHarness(t, nil)
	h.backend.err = vcs.ErrNotRepository

	out, err := h.run(t, Options{})
	require.Error(t, err)
	assert.True(t, failure.IsKind(err, failure.KindConfig))
	assert.ErrorIs(t, err, vcs.ErrNotRepository)
	assert.Equal(t, StepIntegrity, out.FailedStep)
	assert.Equal(t, 2, failure.ExitCode(err))
}

func TestRunCancelled(t *testing.T) {
	h := newHarness(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, err := h.controller().Run(ctx, h.pkg, Options{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateFailed, out.State)
	assert.Zero(t, h.backend.calls)
}

func TestRunIsDeterministic(t *testing.T) {
	h := newHarness(t, []string{"src/**", "Cargo.toml"})
	h.backend.status.Untracked.Add("src/b.rs")
	h.backend.status.Untracked.Add("src/a.rs")

	first, err1 := h.run(t, Options{})
	second, err2 := h.run(t, Options{})
	assert.Equal(t, err1.Error(), err2.Error())
	assert.Equal(t, first.Violations, second.Violations)
	assert.Equal(t, first.History, second.History)
}

func TestRunRecordsTimes(t *testing.T) {
	h := newHarness(t, nil)
	clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	now := func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	c := NewController(h.backend, verifier.New(h.cargo, nil), guard.New(h.cargo, nil), h.post, WithClock(now))

	out, err := c.Run(context.Background(), h.pkg, Options{})
	require.NoError(t, err)
	assert.True(t, out.Finished.After(out.Started))
	assert.Equal(t, time.Second, out.Durations[StepIntegrity])
	assert.Len(t, out.Durations, 4)
}

func TestTransitions(t *testing.T) {
	m := newMachine()
	require.NoError(t, m.transition(StateIntegrityChecked))
	assert.Error(t, m.transition(StatePublished), "steps cannot be skipped")
	require.NoError(t, m.transition(StateBuildVerified))
	require.NoError(t, m.transition(StateDryRunComplete))
	assert.Error(t, m.transition(StateFailed), "terminal states are final")

	for _, s := range []State{StateVerified, StateDryRunComplete, StateFailed} {
		assert.True(t, s.Terminal(), s)
	}
	assert.False(t, StatePublished.Terminal())
	assert.False(t, StateFailed.Successful())
}

func TestRunPrunesTargetDir(t *testing.T) {
	h := newHarness(t, nil)

	_, err := h.run(t, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(h.pkg.Root, "target")}, h.backend.pruned)
}

func TestRunWarnsAboutIgnoredExcludesBeforeBuilding(t *testing.T) {
	h := newHarness(t, nil)
	h.pkg = manifest.NewPackage("demo", "0.1.0", h.pkg.Root, h.pkg.ManifestPath, h.pkg.TargetDir,
		[]string{"src/**", "Cargo.toml"}, []string{"README.md"})

	var buf bytes.Buffer
	var atIntegrity string
	c := NewController(
		h.backend,
		verifier.New(h.cargo, nil),
		guard.New(h.cargo, nil),
		h.post,
		WithLogger(logger.New(&buf, logger.Options{})),
		WithObserver(func(e Event) {
			if e.Step == StepIntegrity {
				atIntegrity = buf.String()
			}
		}),
	)

	out, err := c.Run(context.Background(), h.pkg, Options{})
	require.NoError(t, err)
	require.Len(t, out.Warnings, 1)
	assert.Contains(t, atIntegrity, "level=WARN")
	assert.Contains(t, atIntegrity, "cargo ignores `package.exclude`")
}
