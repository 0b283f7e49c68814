package vcs

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
)

// walkFiles lists every non-directory entry under root as slash-separated
// relative paths. Nested .git directories and the prune directories are
// skipped.
func walkFiles(ctx context.Context, root string, prune []string) ([]string, error) {
	var files []string

	skip := make(map[string]bool, len(prune))
	for _, dir := range prune {
		if resolved, err := resolveRoot(dir); err == nil {
			skip[resolved] = true
		}
	}

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		if d.IsDir() {
			if path != root && (d.Name() == ".git" || skip[path]) {
				return filepath.SkipDir
			}
			return nil
		}
		// a .git file marks a submodule or worktree checkout
		if d.Name() == ".git" {
			return nil
		}

		relPath, err := filepath.Rel(root, path)
		if err != nil {
			return fmt.Errorf("get relative path: %w", err)
		}
		files = append(files, filepath.ToSlash(relPath))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk directory: %w", err)
	}

	return files, nil
}

// DirectoryBackend treats every file on disk as tracked. It stands in for a
// repository when the user explicitly allows publishing from an unversioned
// directory.
type DirectoryBackend struct{}

func (DirectoryBackend) Snapshot(ctx context.Context, root string, prune ...string) (Status, error) {
	abs, err := resolveRoot(root)
	if err != nil {
		return Status{}, err
	}
	files, err := walkFiles(ctx, abs, prune)
	if err != nil {
		return Status{}, err
	}
	st := NewStatus(abs)
	for _, f := range files {
		st.Tracked.Add(f)
	}
	return st, nil
}

func resolveRoot(root string) (string, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("get absolute path: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", abs, err)
	}
	return resolved, nil
}
