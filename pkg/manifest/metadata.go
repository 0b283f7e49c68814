// Package manifest loads the declared metadata of the package to publish.
package manifest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/yuya-takeyama/cargo-safe-publish/pkg/cargo"
)

type metadata struct {
	Packages        []metadataPackage `json:"packages"`
	TargetDirectory string            `json:"target_directory"`
}

type metadataPackage struct {
	Name         string `json:"name"`
	Version      string `json:"version"`
	ManifestPath string `json:"manifest_path"`
}

// CargoReader resolves the package through `cargo metadata` and reads its
// include/exclude rules from the package's Cargo.toml.
type CargoReader struct {
	runner       cargo.Runner
	manifestPath string
	packageName  string
	workDir      string
}

// NewCargoReader creates a reader. workDir is where cargo runs and what a
// relative manifestPath is resolved against; empty means the current
// directory. manifestPath and packageName mirror cargo's --manifest-path and
// --package and may be empty.
func NewCargoReader(runner cargo.Runner, workDir, manifestPath, packageName string) *CargoReader {
	return &CargoReader{
		runner:       runner,
		workDir:      workDir,
		manifestPath: manifestPath,
		packageName:  packageName,
	}
}

func (r *CargoReader) Read(ctx context.Context) (Package, error) {
	workDir := r.workDir
	if workDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return Package{}, fmt.Errorf("failed to get working directory: %w", err)
		}
		workDir = wd
	}

	res, err := r.runner.Run(ctx, workDir, cargo.MetadataArgs(r.manifestPath)...)
	if err != nil {
		return Package{}, err
	}
	if !res.Success() {
		return Package{}, fmt.Errorf("cargo metadata exited with status %d: %s", res.ExitCode, res.Stderr)
	}

	var meta metadata
	if err := json.Unmarshal([]byte(res.Stdout), &meta); err != nil {
		return Package{}, fmt.Errorf("failed to decode cargo metadata: %w", err)
	}

	checkDir := workDir
	if r.manifestPath != "" {
		mp := r.manifestPath
		if !filepath.IsAbs(mp) {
			mp = filepath.Join(workDir, mp)
		}
		checkDir = filepath.Dir(mp)
	}

	selected, err := selectPackage(meta.Packages, r.packageName, checkDir)
	if err != nil {
		return Package{}, err
	}

	includes, excludes, err := ReadRules(selected.ManifestPath)
	if err != nil {
		return Package{}, err
	}

	return NewPackage(
		selected.Name,
		selected.Version,
		filepath.Dir(selected.ManifestPath),
		selected.ManifestPath,
		meta.TargetDirectory,
		includes,
		excludes,
	), nil
}

// selectPackage picks the package to publish: the one named by --package,
// the only package of the workspace, or the one whose manifest lives in checkDir.
func selectPackage(pkgs []metadataPackage, name, checkDir string) (metadataPackage, error) {
	if name != "" {
		for _, p := range pkgs {
			if p.Name == name {
				return p, nil
			}
		}
		return metadataPackage{}, fmt.Errorf("no package with name `%s` found", name)
	}

	if len(pkgs) == 1 {
		return pkgs[0], nil
	}

	want := canonical(checkDir)
	for _, p := range pkgs {
		if canonical(filepath.Dir(p.ManifestPath)) == want {
			return p, nil
		}
	}
	return metadataPackage{}, fmt.Errorf("could not identify package to publish in %s; use --package", checkDir)
}

func canonical(dir string) string {
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	if resolved, err := filepath.EvalSymlinks(dir); err == nil {
		dir = resolved
	}
	return filepath.Clean(dir)
}
