package verifier

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yuya-takeyama/cargo-safe-publish/pkg/cargo"
	"github.com/yuya-takeyama/cargo-safe-publish/pkg/failure"
	"github.com/yuya-takeyama/cargo-safe-publish/pkg/guard"
	"github.com/yuya-takeyama/cargo-safe-publish/pkg/manifest"
)

type fakeRunner struct {
	run   func(dir string, args []string) (cargo.Result, error)
	calls int
}

func (f *fakeRunner) Run(_ context.Context, dir string, args ...string) (cargo.Result, error) {
	f.calls++
	return f.run(dir, args)
}

func testPackage(t *testing.T) manifest.Package {
	t.Helper()
	root := t.TempDir()
	return manifest.NewPackage("demo", "0.1.0", root, filepath.Join(root, "Cargo.toml"), filepath.Join(root, "target"), nil, nil)
}

func TestVerifyProducesArtifact(t *testing.T) {
	pkg := testPackage(t)
	runner := &fakeRunner{run: func(dir string, args []string) (cargo.Result, error) {
		assert.Equal(t, pkg.Root, dir)
		assert.Equal(t, []string{"publish", "--dry-run", "--features", "x"}, args)
		path := cargo.ArchivePath(pkg.TargetDir, pkg.Name, pkg.Version)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte("crate"), 0o644))
		return cargo.Result{}, nil
	}}

	a, err := New(runner, nil).Verify(context.Background(), pkg, []string{"--no-verify", "--features", "x"})
	require.NoError(t, err)
	assert.Equal(t, guard.ArtifactProduced, a.State())
	assert.True(t, a.Exists())
}

func TestVerifyBuildFailure(t *testing.T) {
	tests := []struct {
		name     string
		result   cargo.Result
		err      error
		wantCode int
	}{
		{
			name:     "compile error",
			result:   cargo.Result{ExitCode: 101, Stderr: "error[E0425]: cannot find value `x` in this scope"},
			wantCode: 101,
		},
		{
			name:     "cargo missing",
			result:   cargo.Result{ExitCode: -1},
			err:      errors.New(`exec: "cargo": executable file not found in $PATH`),
			wantCode: -1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{run: func(string, []string) (cargo.Result, error) { return tt.result, tt.err }}

			a, err := New(runner, nil).Verify(context.Background(), testPackage(t), nil)
			require.Error(t, err)
			assert.Nil(t, a)
			fe, ok := failure.As(err)
			require.True(t, ok)
			assert.Equal(t, failure.KindBuildVerificationFailed, fe.Kind())
			assert.Equal(t, Step, fe.Step())
			assert.Equal(t, tt.wantCode, fe.ExitCode())
			assert.Equal(t, tt.result.Output(), fe.Output())
			assert.Equal(t, 1, runner.calls)
		})
	}
}

func TestVerifyMissingArtifact(t *testing.T) {
	runner := &fakeRunner{run: func(string, []string) (cargo.Result, error) { return cargo.Result{}, nil }}

	_, err := New(runner, nil).Verify(context.Background(), testPackage(t), nil)
	require.Error(t, err)
	assert.True(t, failure.IsKind(err, failure.KindArtifactGuardFailed))
}
