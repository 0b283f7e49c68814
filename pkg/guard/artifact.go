package guard

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/yuya-takeyama/cargo-safe-publish/pkg/cargo"
	"github.com/yuya-takeyama/cargo-safe-publish/pkg/manifest"
)

// ArtifactState is the lifecycle of the dry-run archive.
type ArtifactState string

const (
	ArtifactAbsent   ArtifactState = "absent"
	ArtifactProduced ArtifactState = "produced"
	ArtifactDeleted  ArtifactState = "deleted"
	// ArtifactRebuilt means the upload regenerated and published a fresh archive.
	ArtifactRebuilt ArtifactState = "rebuilt"
)

// Artifact is the archive written by the verification build together with
// the directory cargo unpacked it into.
type Artifact struct {
	path     string
	unpacked string
	state    ArtifactState
}

// NewArtifact locates the archive of pkg under its target directory.
func NewArtifact(pkg manifest.Package) *Artifact {
	return &Artifact{
		path:     cargo.ArchivePath(pkg.TargetDir, pkg.Name, pkg.Version),
		unpacked: cargo.UnpackedPath(pkg.TargetDir, pkg.Name, pkg.Version),
		state:    ArtifactAbsent,
	}
}

func (a *Artifact) Path() string         { return a.path }
func (a *Artifact) UnpackedDir() string  { return a.unpacked }
func (a *Artifact) State() ArtifactState { return a.state }

// Exists reports whether the archive is on disk. Errors other than
// not-exist count as present.
func (a *Artifact) Exists() bool {
	return exists(a.path)
}

// MarkProduced records that the verification build left the archive behind.
func (a *Artifact) MarkProduced() error {
	if !a.Exists() {
		return fmt.Errorf("archive %s was not produced", a.path)
	}
	a.state = ArtifactProduced
	return nil
}

func (a *Artifact) markDeleted() { a.state = ArtifactDeleted }
func (a *Artifact) markRebuilt() { a.state = ArtifactRebuilt }

func exists(path string) bool {
	_, err := os.Lstat(path)
	return !errors.Is(err, fs.ErrNotExist)
}
