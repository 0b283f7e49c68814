package vcs

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
)

// GitBackend reads repository status with go-git.
type GitBackend struct{}

func NewGitBackend() *GitBackend {
	return &GitBackend{}
}

func (b *GitBackend) Snapshot(ctx context.Context, root string, prune ...string) (Status, error) {
	absRoot, err := resolveRoot(root)
	if err != nil {
		return Status{}, err
	}

	repo, err := git.PlainOpenWithOptions(absRoot, &git.PlainOpenOptions{
		DetectDotGit:          true,
		EnableDotGitCommonDir: true,
	})
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return Status{}, fmt.Errorf("%s: %w", absRoot, ErrNotRepository)
		}
		return Status{}, fmt.Errorf("failed to open git repository: %w", err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return Status{}, fmt.Errorf("failed to get git worktree: %w", err)
	}

	gitRoot, err := resolveRoot(wt.Filesystem.Root())
	if err != nil {
		return Status{}, err
	}
	prefix, err := filepath.Rel(gitRoot, absRoot)
	if err != nil {
		return Status{}, fmt.Errorf("package root is outside the repository: %w", err)
	}
	prefix = filepath.ToSlash(prefix)

	idx, err := repo.Storer.Index()
	if err != nil {
		return Status{}, fmt.Errorf("failed to read git index: %w", err)
	}

	st := NewStatus(absRoot)
	for _, entry := range idx.Entries {
		if rel, ok := underPrefix(entry.Name, prefix); ok {
			st.Tracked.Add(rel)
		}
	}

	if err := ctx.Err(); err != nil {
		return Status{}, err
	}

	changes, err := wt.Status()
	if err != nil {
		return Status{}, fmt.Errorf("failed to get git status: %w", err)
	}
	for path, fs := range changes {
		rel, ok := underPrefix(path, prefix)
		if !ok {
			continue
		}
		switch {
		case fs.Worktree == git.Untracked || fs.Staging == git.Untracked:
			if !st.Tracked.Has(rel) {
				st.Untracked.Add(rel)
			}
		case fs.Worktree != git.Unmodified || fs.Staging != git.Unmodified:
			if st.Tracked.Has(rel) {
				st.Modified.Add(rel)
			}
		}
	}

	// go-git leaves ignored files out of the status, so whatever is on disk
	// and neither tracked nor untracked is ignored.
	files, err := walkFiles(ctx, absRoot, prune)
	if err != nil {
		return Status{}, err
	}
	for _, f := range files {
		if !st.Tracked.Has(f) && !st.Untracked.Has(f) {
			st.Ignored.Add(f)
		}
	}

	return st, nil
}

// underPrefix converts a repository-relative path into a package-relative one.
func underPrefix(path, prefix string) (string, bool) {
	path = filepath.ToSlash(path)
	if prefix == "." || prefix == "" {
		return path, true
	}
	if !strings.HasPrefix(path, prefix+"/") {
		return "", false
	}
	return strings.TrimPrefix(path, prefix+"/"), true
}
